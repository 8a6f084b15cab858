package hierarchy

import (
	"context"

	"github.com/trialsite/siteaccess/pkg/domain"
)

const (
	resourceFolder   = "folder"
	resourceDocument = "document"
)

// Reader answers the structural questions permission resolution needs
type Reader interface {
	// ParentOf returns the parent folder id, nil for a root folder
	ParentOf(ctx context.Context, folderID int64) (*int64, error)
	// AncestorsOf returns ancestor ids from the immediate parent to the root
	AncestorsOf(ctx context.Context, folderID int64) ([]int64, error)
	// FolderOf returns the document's folder id, nil for a root document
	FolderOf(ctx context.Context, documentID int64) (*int64, error)
}

// Index is the full folder/document hierarchy
type Index interface {
	Reader

	GetFolder(ctx context.Context, id int64) (*Folder, error)
	// ListChildren lists the direct subfolders of parentID, or the root
	// folders when parentID is nil.
	ListChildren(ctx context.Context, parentID *int64) ([]Folder, error)
	CreateFolder(ctx context.Context, f Folder) (*Folder, error)
	MoveFolder(ctx context.Context, id int64, newParentID *int64) error
	// DeleteFolder removes an empty folder
	DeleteFolder(ctx context.Context, id int64) error

	GetDocument(ctx context.Context, id int64) (*Document, error)
	ListDocuments(ctx context.Context, filter DocumentFilter) ([]Document, error)
	AddDocument(ctx context.Context, d Document) (*Document, error)
	MoveDocument(ctx context.Context, id int64, folderID *int64) error
	DeleteDocument(ctx context.Context, id int64) error
}

type parentFunc func(ctx context.Context, folderID int64) (*int64, error)

// walkAncestors follows parent links from folderID. A folder seen twice
// means the stored tree is corrupt.
func walkAncestors(ctx context.Context, folderID int64, parentOf parentFunc) ([]int64, error) {
	ancestors := make([]int64, 0)
	seen := map[int64]bool{folderID: true}

	current := folderID
	for {
		parent, err := parentOf(ctx, current)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			return ancestors, nil
		}
		if seen[*parent] {
			return nil, domain.NewInvariantViolation("folder %d: cycle detected at folder %d", folderID, *parent)
		}
		seen[*parent] = true
		ancestors = append(ancestors, *parent)
		current = *parent
	}
}

// checkPlacement verifies that making newParentID the parent of folderID
// keeps the tree acyclic. folderID is zero for a folder not yet created.
func checkPlacement(ctx context.Context, folderID int64, newParentID *int64, parentOf parentFunc) error {
	if newParentID == nil {
		return nil
	}
	if *newParentID == folderID {
		return domain.NewInvariantViolation("folder %d cannot be its own parent", folderID)
	}

	// the walk also surfaces NotFound for an unknown parent
	ancestors, err := walkAncestors(ctx, *newParentID, parentOf)
	if err != nil {
		return err
	}
	if folderID == 0 {
		return nil
	}
	for _, id := range ancestors {
		if id == folderID {
			return domain.NewInvariantViolation("cannot move folder %d under its own descendant %d", folderID, *newParentID)
		}
	}
	return nil
}
