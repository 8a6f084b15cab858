package access

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/trialsite/siteaccess/pkg/auth"
	"github.com/trialsite/siteaccess/pkg/domain"
	"github.com/trialsite/siteaccess/pkg/grants"
)

func ref(v int64) *int64 { return &v }

var (
	admin       = auth.Principal{ID: 1, Username: "alice", Role: auth.RoleAdmin, Active: true}
	doctor      = auth.Principal{ID: 2, Username: "dr.bob", Role: auth.RoleDoctor, Active: true}
	user7       = auth.Principal{ID: 7, Username: "carol", Role: auth.RoleUser, Active: true}
	auditor     = auth.Principal{ID: 8, Username: "dave", Role: auth.RoleAuditor, Active: true}
	coordinator = auth.Principal{ID: 9, Username: "erin", Role: auth.RoleCoordinator, Active: true}
)

// stubTree places documents in folders by fixed ids
type stubTree struct {
	docs map[int64]*int64
}

// ParentOf knows only the folders that hold a document; all are roots
func (s stubTree) ParentOf(_ context.Context, folderID int64) (*int64, error) {
	for _, folder := range s.docs {
		if folder != nil && *folder == folderID {
			return nil, nil
		}
	}
	return nil, domain.NewNotFoundError("folder", folderID)
}

func (s stubTree) AncestorsOf(context.Context, int64) ([]int64, error) { return nil, nil }

func (s stubTree) FolderOf(_ context.Context, documentID int64) (*int64, error) {
	folder, ok := s.docs[documentID]
	if !ok {
		return nil, domain.NewNotFoundError("document", documentID)
	}
	return folder, nil
}

var errStoreDown = errors.New("store unavailable")

// failingStore fails the lookups named in fail
type failingStore struct {
	grants.Store
	fail map[string]bool
}

func (s failingStore) FindByDocument(ctx context.Context, id int64) ([]grants.Grant, error) {
	if s.fail["document"] {
		return nil, errStoreDown
	}
	return s.Store.FindByDocument(ctx, id)
}

func (s failingStore) FindByFolder(ctx context.Context, id int64) ([]grants.Grant, error) {
	if s.fail["folder"] {
		return nil, errStoreDown
	}
	return s.Store.FindByFolder(ctx, id)
}

func (s failingStore) DeleteByDocument(ctx context.Context, id int64) (int, error) {
	if s.fail["cascade"] {
		return 0, errStoreDown
	}
	return s.Store.DeleteByDocument(ctx, id)
}

func (s failingStore) DeleteByFolder(ctx context.Context, id int64) (int, error) {
	if s.fail["cascade"] {
		return 0, errStoreDown
	}
	return s.Store.DeleteByFolder(ctx, id)
}

func (s failingStore) FindByRole(ctx context.Context, role auth.Role) ([]grants.Grant, error) {
	if s.fail["role"] {
		return nil, errStoreDown
	}
	return s.Store.FindByRole(ctx, role)
}

// fakeRecorder captures metrics calls
type fakeRecorder struct {
	mu        sync.Mutex
	decisions []string
	mutations []string
}

func (f *fakeRecorder) RecordDecision(_ context.Context, level, outcome string, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decisions = append(f.decisions, level+":"+outcome)
}

func (f *fakeRecorder) RecordGrantMutation(_ context.Context, operation, outcome string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mutations = append(f.mutations, operation+":"+outcome)
}

func mustGrant(t *testing.T, store grants.Store, target grants.Target, subject grants.Subject, level domain.Level) *grants.Grant {
	t.Helper()
	g, err := store.Create(context.Background(), grants.New(target, subject, level))
	require.NoError(t, err)
	return g
}
