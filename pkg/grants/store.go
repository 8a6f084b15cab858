package grants

import (
	"context"

	"github.com/trialsite/siteaccess/pkg/auth"
)

// Store persists grants. Implementations must make Create and Delete atomic
// with respect to concurrent readers and return grants in creation order.
type Store interface {
	// Create validates and stores a grant, returning it with ID and GrantedAt set
	Create(ctx context.Context, g Grant) (*Grant, error)

	// Delete removes a grant by id; NotFoundError if it does not exist
	Delete(ctx context.Context, id int64) error

	// Get returns a single grant by id
	Get(ctx context.Context, id int64) (*Grant, error)

	// FindByDocument returns grants targeting exactly this document
	FindByDocument(ctx context.Context, documentID int64) ([]Grant, error)

	// FindByFolder returns grants targeting exactly this folder
	FindByFolder(ctx context.Context, folderID int64) ([]Grant, error)

	// FindByPrincipal returns every grant made to this user id
	FindByPrincipal(ctx context.Context, userID int64) ([]Grant, error)

	// FindByRole returns every grant made to this role
	FindByRole(ctx context.Context, role auth.Role) ([]Grant, error)

	// DeleteByDocument removes all grants on a document and reports how many
	DeleteByDocument(ctx context.Context, documentID int64) (int, error)

	// DeleteByFolder removes all grants on a folder and reports how many
	DeleteByFolder(ctx context.Context, folderID int64) (int, error)
}

const resourceGrant = "grant"
