package access

import (
	"context"
	"strconv"

	"github.com/trialsite/siteaccess/pkg/audit"
	"github.com/trialsite/siteaccess/pkg/auth"
	"github.com/trialsite/siteaccess/pkg/domain"
	"github.com/trialsite/siteaccess/pkg/hierarchy"
)

// Catalog guards document and folder operations with the Authorizer and
// keeps grants consistent when their targets are deleted.
type Catalog struct {
	index hierarchy.Index
	authz *Authorizer
}

// NewCatalog creates a catalog. authz must resolve against the same index.
func NewCatalog(index hierarchy.Index, authz *Authorizer) *Catalog {
	return &Catalog{index: index, authz: authz}
}

// FolderView is a folder with its ancestor chain, immediate parent first
type FolderView struct {
	hierarchy.Folder
	Ancestors []int64 `json:"ancestors"`
}

// DocumentStats counts accessible documents by type
type DocumentStats struct {
	Total  int                            `json:"total"`
	ByType map[hierarchy.DocumentType]int `json:"by_type"`
}

// ListDocuments lists the documents matching filter that p may read
func (c *Catalog) ListDocuments(ctx context.Context, p auth.Principal, filter hierarchy.DocumentFilter) ([]hierarchy.Document, error) {
	docs, err := c.index.ListDocuments(ctx, filter)
	if err != nil {
		return nil, err
	}
	return c.authz.FilterAccessibleDocuments(ctx, p, docs)
}

// Stats counts the documents p may read, grouped by type
func (c *Catalog) Stats(ctx context.Context, p auth.Principal, filter hierarchy.DocumentFilter) (*DocumentStats, error) {
	docs, err := c.ListDocuments(ctx, p, filter)
	if err != nil {
		return nil, err
	}
	stats := &DocumentStats{Total: len(docs), ByType: make(map[hierarchy.DocumentType]int)}
	for _, t := range hierarchy.AllDocumentTypes {
		stats.ByType[t] = 0
	}
	for _, d := range docs {
		stats.ByType[d.Type]++
	}
	return stats, nil
}

// GetDocument returns a document p may read
func (c *Catalog) GetDocument(ctx context.Context, p auth.Principal, id int64) (*hierarchy.Document, error) {
	if err := c.require(ctx, p, id, domain.LevelRead); err != nil {
		return nil, err
	}
	return c.index.GetDocument(ctx, id)
}

// CreateDocument registers a document. Only ADMIN and DOCTOR may upload.
func (c *Catalog) CreateDocument(ctx context.Context, p auth.Principal, d hierarchy.Document) (*hierarchy.Document, error) {
	if err := requirePrivileged(p, "create documents"); err != nil {
		return nil, err
	}
	d.CreatedBy = p.Name()
	created, err := c.index.AddDocument(ctx, d)
	if err != nil {
		return nil, err
	}
	c.record(ctx, p, audit.EventDocumentCreate, audit.ResourceDocument, created.ID, "document created")
	return created, nil
}

// MoveDocument places a document in folderID, or at the root when nil. It
// requires WRITE on the document.
func (c *Catalog) MoveDocument(ctx context.Context, p auth.Principal, id int64, folderID *int64) error {
	if err := c.require(ctx, p, id, domain.LevelWrite); err != nil {
		return err
	}
	if err := c.index.MoveDocument(ctx, id, folderID); err != nil {
		return err
	}
	c.record(ctx, p, audit.EventDocumentMove, audit.ResourceDocument, id, "document moved")
	return nil
}

// DeleteDocument removes a document and every grant targeting it. It
// requires DELETE on the document.
func (c *Catalog) DeleteDocument(ctx context.Context, p auth.Principal, id int64) error {
	if err := c.require(ctx, p, id, domain.LevelDelete); err != nil {
		return err
	}
	if err := c.index.DeleteDocument(ctx, id); err != nil {
		return err
	}
	if _, err := c.authz.grants.DeleteByDocument(ctx, id); err != nil {
		c.cascadeFailed(ctx, "document", id, err)
	}
	c.record(ctx, p, audit.EventDocumentDelete, audit.ResourceDocument, id, "document deleted")
	return nil
}

// GetFolder returns a folder and its ancestors
func (c *Catalog) GetFolder(ctx context.Context, id int64) (*FolderView, error) {
	f, err := c.index.GetFolder(ctx, id)
	if err != nil {
		return nil, err
	}
	ancestors, err := c.index.AncestorsOf(ctx, id)
	if err != nil {
		return nil, err
	}
	if ancestors == nil {
		ancestors = []int64{}
	}
	return &FolderView{Folder: *f, Ancestors: ancestors}, nil
}

// ListFolders lists the subfolders of parentID, or the root folders when nil
func (c *Catalog) ListFolders(ctx context.Context, parentID *int64) ([]hierarchy.Folder, error) {
	return c.index.ListChildren(ctx, parentID)
}

// CreateFolder creates a folder. Only ADMIN and DOCTOR manage folders.
func (c *Catalog) CreateFolder(ctx context.Context, p auth.Principal, f hierarchy.Folder) (*hierarchy.Folder, error) {
	if err := requirePrivileged(p, "create folders"); err != nil {
		return nil, err
	}
	f.CreatedBy = p.Name()
	created, err := c.index.CreateFolder(ctx, f)
	if err != nil {
		return nil, err
	}
	c.record(ctx, p, audit.EventFolderCreate, audit.ResourceFolder, created.ID, "folder created")
	return created, nil
}

// MoveFolder re-parents a folder, refusing moves that would form a cycle
func (c *Catalog) MoveFolder(ctx context.Context, p auth.Principal, id int64, parentID *int64) error {
	if err := requirePrivileged(p, "move folders"); err != nil {
		return err
	}
	if err := c.index.MoveFolder(ctx, id, parentID); err != nil {
		return err
	}
	c.record(ctx, p, audit.EventFolderMove, audit.ResourceFolder, id, "folder moved")
	return nil
}

// DeleteFolder removes an empty folder and every grant targeting it
func (c *Catalog) DeleteFolder(ctx context.Context, p auth.Principal, id int64) error {
	if err := requirePrivileged(p, "delete folders"); err != nil {
		return err
	}
	if err := c.index.DeleteFolder(ctx, id); err != nil {
		return err
	}
	if _, err := c.authz.grants.DeleteByFolder(ctx, id); err != nil {
		c.cascadeFailed(ctx, "folder", id, err)
	}
	c.record(ctx, p, audit.EventFolderDelete, audit.ResourceFolder, id, "folder deleted")
	return nil
}

// cascadeFailed reports grants left behind by a delete that already
// happened. Ids are never reused, so the leftovers match nothing.
func (c *Catalog) cascadeFailed(ctx context.Context, resource string, id int64, err error) {
	c.authz.recordMutation(ctx, "cascade", "error")
	c.authz.log(ctx).WithError(err).WithFields(map[string]interface{}{
		"resource": resource,
		"id":       id,
	}).Warn("failed to delete grants of removed " + resource)
}

func (c *Catalog) require(ctx context.Context, p auth.Principal, id int64, level domain.Level) error {
	ok, err := c.authz.Check(ctx, p, id, level)
	if err != nil {
		return err
	}
	if !ok {
		return domain.NewPermissionDenied("%s access to document %d denied", level, id)
	}
	return nil
}

func (c *Catalog) record(ctx context.Context, p auth.Principal, t audit.EventType, rt audit.ResourceType, id int64, msg string) {
	c.authz.logAudit(ctx, p, &audit.Event{
		Type:         t,
		Status:       audit.StatusSuccess,
		ResourceType: rt,
		ResourceID:   strconv.FormatInt(id, 10),
		Message:      msg,
	})
}
