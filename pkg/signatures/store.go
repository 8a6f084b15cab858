package signatures

import (
	"context"
	"time"
)

// Store persists signature requests. Create must reject a second open
// request for the same document and assignee atomically.
type Store interface {
	// Create stores a new request and returns it with ID and timestamps set.
	// An open duplicate is an InvariantViolation.
	Create(ctx context.Context, r Request) (*Request, error)

	// Get returns a request by id
	Get(ctx context.Context, id int64) (*Request, error)

	// Update overwrites the mutable fields of an existing request, provided
	// its stored status is still from. A request that has moved on is an
	// InvariantViolation and is left untouched.
	Update(ctx context.Context, r Request, from Status) error

	// FindByDocument returns every request on a document, oldest first
	FindByDocument(ctx context.Context, documentID int64) ([]Request, error)

	// FindByAssignee returns requests assigned to a user, optionally limited
	// to the given statuses.
	FindByAssignee(ctx context.Context, userID int64, statuses ...Status) ([]Request, error)

	// FindByProviderRef returns the request the provider knows as ref
	FindByProviderRef(ctx context.Context, ref string) (*Request, error)

	// FindOpenOlderThan returns open requests created before cutoff
	FindOpenOlderThan(ctx context.Context, cutoff time.Time) ([]Request, error)
}
