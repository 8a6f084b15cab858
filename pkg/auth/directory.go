package auth

import (
	"context"
	"sort"
	"sync"
)

// Directory looks up principals by id. ok is false for unknown ids.
type Directory interface {
	Principal(ctx context.Context, id int64) (p Principal, ok bool, err error)
}

// StaticDirectory is an in-memory Directory, populated from fixtures or by
// the identity sync.
type StaticDirectory struct {
	mu         sync.RWMutex
	principals map[int64]Principal
}

// NewStaticDirectory creates a directory holding the given principals
func NewStaticDirectory(principals ...Principal) *StaticDirectory {
	d := &StaticDirectory{principals: make(map[int64]Principal, len(principals))}
	for _, p := range principals {
		d.principals[p.ID] = p
	}
	return d
}

// Put adds or replaces a principal
func (d *StaticDirectory) Put(p Principal) {
	d.mu.Lock()
	d.principals[p.ID] = p
	d.mu.Unlock()
}

// Remove deletes a principal
func (d *StaticDirectory) Remove(id int64) {
	d.mu.Lock()
	delete(d.principals, id)
	d.mu.Unlock()
}

// Principal implements Directory
func (d *StaticDirectory) Principal(_ context.Context, id int64) (Principal, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.principals[id]
	return p, ok, nil
}

// All returns every principal ordered by id
func (d *StaticDirectory) All() []Principal {
	d.mu.RLock()
	out := make([]Principal, 0, len(d.principals))
	for _, p := range d.principals {
		out = append(out, p)
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
