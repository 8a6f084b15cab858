package hierarchy

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trialsite/siteaccess/pkg/domain"
	"github.com/trialsite/siteaccess/pkg/storage"
)

func ref(v int64) *int64 { return &v }

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = storage.Migrate(context.Background(), db, storage.DialectSQLite, Migrations())
	require.NoError(t, err)
	return db
}

// forEachIndex runs fn against every Index implementation
func forEachIndex(t *testing.T, fn func(t *testing.T, idx Index)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryIndex()) })
	t.Run("sqlite", func(t *testing.T) { fn(t, NewSQLIndex(setupTestDB(t), storage.DialectSQLite)) })
	t.Run("cached", func(t *testing.T) { fn(t, NewCachedIndex(NewMemoryIndex(), DefaultCacheConfig())) })
}

func mustFolder(t *testing.T, idx Index, name string, parent *int64) int64 {
	t.Helper()
	f, err := idx.CreateFolder(context.Background(), Folder{Name: name, ParentID: parent})
	require.NoError(t, err)
	return f.ID
}

func mustDocument(t *testing.T, idx Index, title string, folder *int64) int64 {
	t.Helper()
	d, err := idx.AddDocument(context.Background(), Document{Title: title, FolderID: folder, Type: TypeReport})
	require.NoError(t, err)
	return d.ID
}

func TestIndex_ParentsAndAncestors(t *testing.T) {
	forEachIndex(t, func(t *testing.T, idx Index) {
		ctx := context.Background()
		root := mustFolder(t, idx, "Trials", nil)
		site := mustFolder(t, idx, "Site 12", &root)
		visit := mustFolder(t, idx, "Visit 3", &site)

		parent, err := idx.ParentOf(ctx, root)
		require.NoError(t, err)
		assert.Nil(t, parent)

		parent, err = idx.ParentOf(ctx, visit)
		require.NoError(t, err)
		require.NotNil(t, parent)
		assert.Equal(t, site, *parent)

		ancestors, err := idx.AncestorsOf(ctx, visit)
		require.NoError(t, err)
		assert.Equal(t, []int64{site, root}, ancestors)

		ancestors, err = idx.AncestorsOf(ctx, root)
		require.NoError(t, err)
		assert.Empty(t, ancestors)

		_, err = idx.ParentOf(ctx, 999)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
		_, err = idx.AncestorsOf(ctx, 999)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})
}

func TestIndex_FolderOf(t *testing.T) {
	forEachIndex(t, func(t *testing.T, idx Index) {
		ctx := context.Background()
		folder := mustFolder(t, idx, "Contracts", nil)
		inFolder := mustDocument(t, idx, "CTA", &folder)
		atRoot := mustDocument(t, idx, "Protocol", nil)

		got, err := idx.FolderOf(ctx, inFolder)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, folder, *got)

		got, err = idx.FolderOf(ctx, atRoot)
		require.NoError(t, err)
		assert.Nil(t, got)

		_, err = idx.FolderOf(ctx, 999)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})
}

func TestIndex_CreateFolderValidation(t *testing.T) {
	forEachIndex(t, func(t *testing.T, idx Index) {
		ctx := context.Background()

		_, err := idx.CreateFolder(ctx, Folder{Name: ""})
		assert.True(t, errors.Is(err, domain.ErrValidation))

		_, err = idx.CreateFolder(ctx, Folder{Name: "Orphan", ParentID: ref(42)})
		assert.True(t, errors.Is(err, domain.ErrNotFound))

		f, err := idx.CreateFolder(ctx, Folder{Name: "Regulatory", Description: "IRB", CreatedBy: "dr.lee", ProjectID: ref(3)})
		require.NoError(t, err)
		assert.NotZero(t, f.ID)
		assert.False(t, f.CreatedAt.IsZero())

		got, err := idx.GetFolder(ctx, f.ID)
		require.NoError(t, err)
		assert.Equal(t, "Regulatory", got.Name)
		assert.Equal(t, "IRB", got.Description)
		assert.Equal(t, "dr.lee", got.CreatedBy)
		require.NotNil(t, got.ProjectID)
		assert.Equal(t, int64(3), *got.ProjectID)
	})
}

func TestIndex_MoveFolderRejectsCycles(t *testing.T) {
	forEachIndex(t, func(t *testing.T, idx Index) {
		ctx := context.Background()
		a := mustFolder(t, idx, "A", nil)
		b := mustFolder(t, idx, "B", &a)
		c := mustFolder(t, idx, "C", &b)

		err := idx.MoveFolder(ctx, a, &c)
		assert.True(t, errors.Is(err, domain.ErrInvariant), "moving A under its grandchild")

		err = idx.MoveFolder(ctx, b, &b)
		assert.True(t, errors.Is(err, domain.ErrInvariant), "folder as its own parent")

		err = idx.MoveFolder(ctx, a, ref(999))
		assert.True(t, errors.Is(err, domain.ErrNotFound))

		err = idx.MoveFolder(ctx, 999, &a)
		assert.True(t, errors.Is(err, domain.ErrNotFound))

		// the tree is unchanged after refused moves
		ancestors, err := idx.AncestorsOf(ctx, c)
		require.NoError(t, err)
		assert.Equal(t, []int64{b, a}, ancestors)

		require.NoError(t, idx.MoveFolder(ctx, c, nil))
		parent, err := idx.ParentOf(ctx, c)
		require.NoError(t, err)
		assert.Nil(t, parent)

		require.NoError(t, idx.MoveFolder(ctx, a, &c))
		ancestors, err = idx.AncestorsOf(ctx, b)
		require.NoError(t, err)
		assert.Equal(t, []int64{a, c}, ancestors)
	})
}

func TestIndex_DeleteFolderRefusesNonEmpty(t *testing.T) {
	forEachIndex(t, func(t *testing.T, idx Index) {
		ctx := context.Background()
		parent := mustFolder(t, idx, "Parent", nil)
		child := mustFolder(t, idx, "Child", &parent)
		doc := mustDocument(t, idx, "Consent form", &child)

		err := idx.DeleteFolder(ctx, parent)
		assert.True(t, errors.Is(err, domain.ErrInvariant))

		err = idx.DeleteFolder(ctx, child)
		assert.True(t, errors.Is(err, domain.ErrInvariant))

		require.NoError(t, idx.DeleteDocument(ctx, doc))
		require.NoError(t, idx.DeleteFolder(ctx, child))
		require.NoError(t, idx.DeleteFolder(ctx, parent))

		err = idx.DeleteFolder(ctx, parent)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})
}

func TestIndex_ListChildren(t *testing.T) {
	forEachIndex(t, func(t *testing.T, idx Index) {
		ctx := context.Background()
		r1 := mustFolder(t, idx, "R1", nil)
		r2 := mustFolder(t, idx, "R2", nil)
		c1 := mustFolder(t, idx, "C1", &r1)
		c2 := mustFolder(t, idx, "C2", &r1)

		roots, err := idx.ListChildren(ctx, nil)
		require.NoError(t, err)
		require.Len(t, roots, 2)
		assert.Equal(t, r1, roots[0].ID)
		assert.Equal(t, r2, roots[1].ID)

		children, err := idx.ListChildren(ctx, &r1)
		require.NoError(t, err)
		require.Len(t, children, 2)
		assert.Equal(t, c1, children[0].ID)
		assert.Equal(t, c2, children[1].ID)

		none, err := idx.ListChildren(ctx, &r2)
		require.NoError(t, err)
		assert.Empty(t, none)

		_, err = idx.ListChildren(ctx, ref(999))
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})
}

func TestIndex_Documents(t *testing.T) {
	forEachIndex(t, func(t *testing.T, idx Index) {
		ctx := context.Background()
		f1 := mustFolder(t, idx, "F1", nil)
		f2 := mustFolder(t, idx, "F2", nil)

		d1 := mustDocument(t, idx, "Report A", &f1)
		d2, err := idx.AddDocument(ctx, Document{Title: "Budget", FolderID: &f1, Type: TypeContract, FileName: "budget.pdf"})
		require.NoError(t, err)
		d3 := mustDocument(t, idx, "Root report", nil)

		untyped, err := idx.AddDocument(ctx, Document{Title: "Misc"})
		require.NoError(t, err)
		assert.Equal(t, TypeOther, untyped.Type)

		_, err = idx.AddDocument(ctx, Document{Title: ""})
		assert.True(t, errors.Is(err, domain.ErrValidation))
		_, err = idx.AddDocument(ctx, Document{Title: "Bad", Type: DocumentType("SPREADSHEET")})
		assert.True(t, errors.Is(err, domain.ErrValidation))
		_, err = idx.AddDocument(ctx, Document{Title: "Lost", FolderID: ref(999)})
		assert.True(t, errors.Is(err, domain.ErrNotFound))

		all, err := idx.ListDocuments(ctx, DocumentFilter{})
		require.NoError(t, err)
		require.Len(t, all, 4)
		assert.Equal(t, d1, all[0].ID)

		inF1, err := idx.ListDocuments(ctx, DocumentFilter{FolderID: &f1})
		require.NoError(t, err)
		require.Len(t, inF1, 2)
		assert.Equal(t, []int64{d1, d2.ID}, []int64{inF1[0].ID, inF1[1].ID})

		contracts, err := idx.ListDocuments(ctx, DocumentFilter{FolderID: &f1, Type: TypeContract})
		require.NoError(t, err)
		require.Len(t, contracts, 1)
		assert.Equal(t, "budget.pdf", contracts[0].FileName)

		roots, err := idx.ListDocuments(ctx, DocumentFilter{RootOnly: true})
		require.NoError(t, err)
		require.Len(t, roots, 2)
		assert.Equal(t, d3, roots[0].ID)

		require.NoError(t, idx.MoveDocument(ctx, d1, &f2))
		got, err := idx.FolderOf(ctx, d1)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, f2, *got)

		require.NoError(t, idx.MoveDocument(ctx, d1, nil))
		got, err = idx.FolderOf(ctx, d1)
		require.NoError(t, err)
		assert.Nil(t, got)

		err = idx.MoveDocument(ctx, d1, ref(999))
		assert.True(t, errors.Is(err, domain.ErrNotFound))
		err = idx.MoveDocument(ctx, 999, &f1)
		assert.True(t, errors.Is(err, domain.ErrNotFound))

		require.NoError(t, idx.DeleteDocument(ctx, d3))
		_, err = idx.GetDocument(ctx, d3)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
		err = idx.DeleteDocument(ctx, d3)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})
}

func TestParseDocumentType(t *testing.T) {
	got, err := ParseDocumentType(" training_material ")
	require.NoError(t, err)
	assert.Equal(t, TypeTrainingMaterial, got)

	_, err = ParseDocumentType("memo")
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestWalkAncestors_DetectsCorruptTree(t *testing.T) {
	links := map[int64]int64{1: 2, 2: 3, 3: 1}
	parentOf := func(_ context.Context, folderID int64) (*int64, error) {
		p := links[folderID]
		return &p, nil
	}

	_, err := walkAncestors(context.Background(), 1, parentOf)
	assert.True(t, errors.Is(err, domain.ErrInvariant))
}
