package fixture

import (
	"context"

	"github.com/trialsite/siteaccess/pkg/auth"
	"github.com/trialsite/siteaccess/pkg/grants"
	"github.com/trialsite/siteaccess/pkg/hierarchy"
)

// Applied maps fixture ids to the ids the stores assigned
type Applied struct {
	Folders   map[int64]int64
	Documents map[int64]int64
	Grants    int
}

// Document returns the stored id of a fixture document
func (a *Applied) Document(fixtureID int64) (int64, bool) {
	id, ok := a.Documents[fixtureID]
	return id, ok
}

// Apply loads the fixture into an index, a grant store and, when dir is
// non-nil, a principal directory. Folders are created in file order.
func (f *Fixture) Apply(ctx context.Context, index hierarchy.Index, store grants.Store, dir *auth.StaticDirectory) (*Applied, error) {
	applied := &Applied{
		Folders:   make(map[int64]int64, len(f.Folders)),
		Documents: make(map[int64]int64, len(f.Documents)),
	}

	if dir != nil {
		for _, p := range f.Principals {
			dir.Put(p.Principal())
		}
	}

	for _, fo := range f.Folders {
		folder := hierarchy.Folder{Name: fo.Name, Description: fo.Description, CreatedBy: "fixture"}
		if fo.Parent != nil {
			parent := applied.Folders[*fo.Parent]
			folder.ParentID = &parent
		}
		created, err := index.CreateFolder(ctx, folder)
		if err != nil {
			return nil, &EntryError{Pos: fo.Pos, Err: err}
		}
		applied.Folders[fo.ID] = created.ID
	}

	for _, d := range f.Documents {
		doc := hierarchy.Document{Title: d.Title, CreatedBy: "fixture"}
		if d.Title == "" {
			doc.Title = "document " + d.Pos.String()
		}
		if d.Type != "" {
			t, err := hierarchy.ParseDocumentType(d.Type)
			if err != nil {
				return nil, &EntryError{Pos: d.Pos, Err: err}
			}
			doc.Type = t
		}
		if d.Folder != nil {
			folderID := applied.Folders[*d.Folder]
			doc.FolderID = &folderID
		}
		created, err := index.AddDocument(ctx, doc)
		if err != nil {
			return nil, &EntryError{Pos: d.Pos, Err: err}
		}
		applied.Documents[d.ID] = created.ID
	}

	for _, g := range f.Grants {
		grant := g.grant()
		if g.Document != nil {
			id := applied.Documents[*g.Document]
			grant.DocumentID = &id
		}
		if g.Folder != nil {
			id := applied.Folders[*g.Folder]
			grant.FolderID = &id
		}
		if _, err := store.Create(ctx, grant); err != nil {
			return nil, &EntryError{Pos: g.Pos, Err: err}
		}
		applied.Grants++
	}

	return applied, nil
}
