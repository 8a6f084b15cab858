package signatures

import (
	"context"
	"sync"
	"time"

	"github.com/trialsite/siteaccess/pkg/domain"
)

// MemoryStore is an in-process Store
type MemoryStore struct {
	mu       sync.RWMutex
	requests map[int64]Request
	order    []int64
	nextID   int64
	now      func() time.Time
}

// NewMemoryStore creates an empty in-memory signature store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		requests: make(map[int64]Request),
		nextID:   1,
		now:      time.Now,
	}
}

// Create stores r after checking for an open duplicate under the write lock
func (s *MemoryStore) Create(ctx context.Context, r Request) (*Request, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if r.Status.Open() {
		for _, existing := range s.requests {
			if existing.DocumentID == r.DocumentID && existing.AssigneeID == r.AssigneeID && existing.Status.Open() {
				return nil, duplicateError(r)
			}
		}
	}

	stored := r.clone()
	stored.ID = s.nextID
	s.nextID++
	now := s.now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.requests[stored.ID] = stored
	s.order = append(s.order, stored.ID)

	out := stored.clone()
	return &out, nil
}

// Get returns a request by id
func (s *MemoryStore) Get(ctx context.Context, id int64) (*Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.requests[id]
	if !ok {
		return nil, domain.NewNotFoundError(resourceSignature, id)
	}
	out := r.clone()
	return &out, nil
}

// Update replaces the stored request with the same id if its status is
// still from.
func (s *MemoryStore) Update(ctx context.Context, r Request, from Status) error {
	if err := r.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.requests[r.ID]
	if !ok {
		return domain.NewNotFoundError(resourceSignature, r.ID)
	}
	if existing.Status != from {
		return statusConflict(r.ID, existing.Status, from)
	}
	updated := r.clone()
	updated.CreatedAt = existing.CreatedAt
	if updated.UpdatedAt.IsZero() {
		updated.UpdatedAt = s.now().UTC()
	}
	s.requests[r.ID] = updated
	return nil
}

// FindByDocument returns requests on a document
func (s *MemoryStore) FindByDocument(ctx context.Context, documentID int64) ([]Request, error) {
	return s.filter(func(r Request) bool { return r.DocumentID == documentID }), nil
}

// FindByAssignee returns requests assigned to a user
func (s *MemoryStore) FindByAssignee(ctx context.Context, userID int64, statuses ...Status) ([]Request, error) {
	return s.filter(func(r Request) bool {
		return r.AssigneeID == userID && hasStatus(r.Status, statuses)
	}), nil
}

// FindByProviderRef returns the request with a provider reference
func (s *MemoryStore) FindByProviderRef(ctx context.Context, ref string) (*Request, error) {
	if ref != "" {
		found := s.filter(func(r Request) bool { return r.ProviderRef == ref })
		if len(found) > 0 {
			return &found[0], nil
		}
	}
	return nil, domain.NewNotFoundKey(resourceSignature, ref)
}

// FindOpenOlderThan returns open requests created before cutoff
func (s *MemoryStore) FindOpenOlderThan(ctx context.Context, cutoff time.Time) ([]Request, error) {
	return s.filter(func(r Request) bool {
		return r.Status.Open() && r.CreatedAt.Before(cutoff)
	}), nil
}

// Len returns the number of stored requests
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.requests)
}

func (s *MemoryStore) filter(keep func(Request) bool) []Request {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Request, 0)
	for _, id := range s.order {
		r := s.requests[id]
		if keep(r) {
			result = append(result, r.clone())
		}
	}
	return result
}

// hasStatus reports whether s is in statuses; an empty list matches all
func hasStatus(s Status, statuses []Status) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, want := range statuses {
		if s == want {
			return true
		}
	}
	return false
}

func duplicateError(r Request) error {
	return domain.NewInvariantViolation("document %d already has an open signature request for user %d", r.DocumentID, r.AssigneeID)
}

func statusConflict(id int64, current, from Status) error {
	return domain.NewInvariantViolation("signature request %d is %s, not %s; it changed concurrently", id, current, from)
}
