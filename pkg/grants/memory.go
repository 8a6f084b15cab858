package grants

import (
	"context"
	"sync"
	"time"

	"github.com/trialsite/siteaccess/pkg/auth"
	"github.com/trialsite/siteaccess/pkg/domain"
)

// MemoryStore is an in-process Store
type MemoryStore struct {
	mu     sync.RWMutex
	grants map[int64]Grant
	order  []int64
	nextID int64
	now    func() time.Time
}

// NewMemoryStore creates an empty in-memory grant store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		grants: make(map[int64]Grant),
		nextID: 1,
		now:    time.Now,
	}
}

// Create stores a validated copy of g
func (s *MemoryStore) Create(ctx context.Context, g Grant) (*Grant, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	stored := g.clone()

	s.mu.Lock()
	stored.ID = s.nextID
	s.nextID++
	stored.GrantedAt = s.now().UTC()
	s.grants[stored.ID] = stored
	s.order = append(s.order, stored.ID)
	s.mu.Unlock()

	out := stored.clone()
	return &out, nil
}

// Delete removes a grant by id
func (s *MemoryStore) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.grants[id]; !ok {
		return domain.NewNotFoundError(resourceGrant, id)
	}
	s.removeLocked(func(g Grant) bool { return g.ID == id })
	return nil
}

// Get returns a grant by id
func (s *MemoryStore) Get(ctx context.Context, id int64) (*Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.grants[id]
	if !ok {
		return nil, domain.NewNotFoundError(resourceGrant, id)
	}
	out := g.clone()
	return &out, nil
}

// FindByDocument returns grants on a document
func (s *MemoryStore) FindByDocument(ctx context.Context, documentID int64) ([]Grant, error) {
	return s.filter(func(g Grant) bool {
		return g.DocumentID != nil && *g.DocumentID == documentID
	}), nil
}

// FindByFolder returns grants on a folder
func (s *MemoryStore) FindByFolder(ctx context.Context, folderID int64) ([]Grant, error) {
	return s.filter(func(g Grant) bool {
		return g.FolderID != nil && *g.FolderID == folderID
	}), nil
}

// FindByPrincipal returns grants made to a user
func (s *MemoryStore) FindByPrincipal(ctx context.Context, userID int64) ([]Grant, error) {
	return s.filter(func(g Grant) bool {
		return g.UserID != nil && *g.UserID == userID
	}), nil
}

// FindByRole returns grants made to a role
func (s *MemoryStore) FindByRole(ctx context.Context, role auth.Role) ([]Grant, error) {
	return s.filter(func(g Grant) bool {
		return g.Role != "" && g.Role == role
	}), nil
}

// DeleteByDocument removes every grant on a document
func (s *MemoryStore) DeleteByDocument(ctx context.Context, documentID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(func(g Grant) bool {
		return g.DocumentID != nil && *g.DocumentID == documentID
	}), nil
}

// DeleteByFolder removes every grant on a folder
func (s *MemoryStore) DeleteByFolder(ctx context.Context, folderID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(func(g Grant) bool {
		return g.FolderID != nil && *g.FolderID == folderID
	}), nil
}

// Len returns the number of stored grants
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.grants)
}

func (s *MemoryStore) filter(match func(Grant) bool) []Grant {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Grant, 0)
	for _, id := range s.order {
		g := s.grants[id]
		if match(g) {
			result = append(result, g.clone())
		}
	}
	return result
}

// removeLocked drops matching grants; caller holds the write lock
func (s *MemoryStore) removeLocked(match func(Grant) bool) int {
	kept := s.order[:0]
	removed := 0
	for _, id := range s.order {
		if match(s.grants[id]) {
			delete(s.grants, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return removed
}
