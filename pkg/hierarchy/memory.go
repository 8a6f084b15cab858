package hierarchy

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/trialsite/siteaccess/pkg/domain"
)

// MemoryIndex is an in-process Index
type MemoryIndex struct {
	mu           sync.RWMutex
	folders      map[int64]Folder
	documents    map[int64]Document
	nextFolder   int64
	nextDocument int64
	now          func() time.Time
}

// NewMemoryIndex creates an empty hierarchy
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		folders:      make(map[int64]Folder),
		documents:    make(map[int64]Document),
		nextFolder:   1,
		nextDocument: 1,
		now:          time.Now,
	}
}

// ParentOf returns the parent of a folder
func (m *MemoryIndex) ParentOf(ctx context.Context, folderID int64) (*int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.parentLocked(ctx, folderID)
}

func (m *MemoryIndex) parentLocked(_ context.Context, folderID int64) (*int64, error) {
	f, ok := m.folders[folderID]
	if !ok {
		return nil, domain.NewNotFoundError(resourceFolder, folderID)
	}
	return cloneID(f.ParentID), nil
}

// AncestorsOf returns the ancestors of a folder, nearest first
func (m *MemoryIndex) AncestorsOf(ctx context.Context, folderID int64) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.folders[folderID]; !ok {
		return nil, domain.NewNotFoundError(resourceFolder, folderID)
	}
	return walkAncestors(ctx, folderID, m.parentLocked)
}

// FolderOf returns the folder holding a document
func (m *MemoryIndex) FolderOf(ctx context.Context, documentID int64) (*int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.documents[documentID]
	if !ok {
		return nil, domain.NewNotFoundError(resourceDocument, documentID)
	}
	return cloneID(d.FolderID), nil
}

// GetFolder returns a folder by id
func (m *MemoryIndex) GetFolder(ctx context.Context, id int64) (*Folder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.folders[id]
	if !ok {
		return nil, domain.NewNotFoundError(resourceFolder, id)
	}
	out := f.clone()
	return &out, nil
}

// ListChildren lists direct subfolders in id order
func (m *MemoryIndex) ListChildren(ctx context.Context, parentID *int64) ([]Folder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if parentID != nil {
		if _, ok := m.folders[*parentID]; !ok {
			return nil, domain.NewNotFoundError(resourceFolder, *parentID)
		}
	}

	result := make([]Folder, 0)
	for _, f := range m.folders {
		if sameID(f.ParentID, parentID) {
			result = append(result, f.clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// CreateFolder stores a new folder under an existing parent
func (m *MemoryIndex) CreateFolder(ctx context.Context, f Folder) (*Folder, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := checkPlacement(ctx, 0, f.ParentID, m.parentLocked); err != nil {
		return nil, err
	}

	stored := f.clone()
	stored.ID = m.nextFolder
	m.nextFolder++
	stored.CreatedAt = m.now().UTC()
	m.folders[stored.ID] = stored

	out := stored.clone()
	return &out, nil
}

// MoveFolder reparents a folder, refusing moves that would form a cycle
func (m *MemoryIndex) MoveFolder(ctx context.Context, id int64, newParentID *int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.folders[id]
	if !ok {
		return domain.NewNotFoundError(resourceFolder, id)
	}
	if err := checkPlacement(ctx, id, newParentID, m.parentLocked); err != nil {
		return err
	}
	f.ParentID = cloneID(newParentID)
	m.folders[id] = f
	return nil
}

// DeleteFolder removes a folder that has no subfolders and no documents
func (m *MemoryIndex) DeleteFolder(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.folders[id]; !ok {
		return domain.NewNotFoundError(resourceFolder, id)
	}
	for _, f := range m.folders {
		if f.ParentID != nil && *f.ParentID == id {
			return domain.NewInvariantViolation("folder %d has subfolders", id)
		}
	}
	for _, d := range m.documents {
		if d.FolderID != nil && *d.FolderID == id {
			return domain.NewInvariantViolation("folder %d contains documents", id)
		}
	}
	delete(m.folders, id)
	return nil
}

// GetDocument returns a document by id
func (m *MemoryIndex) GetDocument(ctx context.Context, id int64) (*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.documents[id]
	if !ok {
		return nil, domain.NewNotFoundError(resourceDocument, id)
	}
	out := d.clone()
	return &out, nil
}

// ListDocuments lists matching documents in id order
func (m *MemoryIndex) ListDocuments(ctx context.Context, filter DocumentFilter) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Document, 0)
	for _, d := range m.documents {
		if filter.matches(d) {
			result = append(result, d.clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// AddDocument stores a new document in an existing folder or at the root
func (m *MemoryIndex) AddDocument(ctx context.Context, d Document) (*Document, error) {
	if d.Type == "" {
		d.Type = TypeOther
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if d.FolderID != nil {
		if _, ok := m.folders[*d.FolderID]; !ok {
			return nil, domain.NewNotFoundError(resourceFolder, *d.FolderID)
		}
	}

	stored := d.clone()
	stored.ID = m.nextDocument
	m.nextDocument++
	stored.CreatedAt = m.now().UTC()
	m.documents[stored.ID] = stored

	out := stored.clone()
	return &out, nil
}

// MoveDocument places a document in a folder, or at the root for nil
func (m *MemoryIndex) MoveDocument(ctx context.Context, id int64, folderID *int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.documents[id]
	if !ok {
		return domain.NewNotFoundError(resourceDocument, id)
	}
	if folderID != nil {
		if _, ok := m.folders[*folderID]; !ok {
			return domain.NewNotFoundError(resourceFolder, *folderID)
		}
	}
	d.FolderID = cloneID(folderID)
	m.documents[id] = d
	return nil
}

// DeleteDocument removes a document
func (m *MemoryIndex) DeleteDocument(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.documents[id]; !ok {
		return domain.NewNotFoundError(resourceDocument, id)
	}
	delete(m.documents, id)
	return nil
}

func sameID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
