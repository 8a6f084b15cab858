package signatures

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trialsite/siteaccess/pkg/audit"
	"github.com/trialsite/siteaccess/pkg/auth"
	"github.com/trialsite/siteaccess/pkg/domain"
)

var (
	admin   = auth.Principal{ID: 1, Username: "alice", Role: auth.RoleAdmin, Active: true}
	doctor  = auth.Principal{ID: 2, Username: "dr.bob", Role: auth.RoleDoctor, Active: true}
	carol   = auth.Principal{ID: 7, Username: "carol", Role: auth.RoleUser, Active: true}
	dave    = auth.Principal{ID: 8, Username: "dave", Role: auth.RoleAuditor, Active: true}
	retired = auth.Principal{ID: 9, Username: "erin", Role: auth.RoleCoordinator, Active: false}
)

// readers maps document id to the user ids that may read it
type stubAuthorizer struct {
	readers map[int64][]int64
	err     error
}

func (s *stubAuthorizer) CanRead(_ context.Context, p auth.Principal, documentID int64) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	if p.IsPrivileged() {
		return true, nil
	}
	for _, id := range s.readers[documentID] {
		if id == p.ID {
			return true, nil
		}
	}
	return false, nil
}

type transitions []string

func (tr *transitions) RecordSignatureTransition(_ context.Context, status string) {
	*tr = append(*tr, status)
}

type fixture struct {
	svc      *Service
	store    *MemoryStore
	audit    *audit.MemoryLogger
	recorded *transitions
	clock    *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := NewMemoryStore()
	logger := audit.NewMemoryLogger()
	recorded := &transitions{}
	clock := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

	authz := &stubAuthorizer{readers: map[int64][]int64{100: {7}, 101: {7, 8}}}
	dir := auth.NewStaticDirectory(admin, doctor, carol, dave, retired)
	svc := NewService(store, authz, dir,
		WithAuditLogger(logger),
		WithRecorder(recorded),
		WithTTL(7*24*time.Hour),
	)

	f := &fixture{svc: svc, store: store, audit: logger, recorded: recorded, clock: &clock}
	svc.now = func() time.Time { return *f.clock }
	store.now = func() time.Time { return *f.clock }
	return f
}

func TestAssign(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	r, err := f.svc.Assign(ctx, doctor, 100, carol.ID, "please review")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, r.Status)
	assert.Equal(t, doctor.ID, r.AssignedByID)
	assert.Equal(t, "dr.bob", r.AssignedBy)
	assert.Equal(t, []string{"PENDING"}, []string(*f.recorded))

	events := f.audit.OfType(audit.EventSignatureAssign)
	require.Len(t, events, 1)
	assert.Equal(t, audit.ResourceSignature, events[0].ResourceType)

	_, err = f.svc.Assign(ctx, admin, 100, carol.ID, "")
	assert.True(t, errors.Is(err, domain.ErrInvariant), "open duplicate")
}

func TestAssign_Rejections(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		assigner auth.Principal
		doc      int64
		assignee int64
		want     error
	}{
		{"non privileged assigner", carol, 100, dave.ID, domain.ErrPermissionDenied},
		{"assignee cannot read", doctor, 100, dave.ID, domain.ErrPermissionDenied},
		{"inactive assignee", doctor, 100, retired.ID, domain.ErrPermissionDenied},
		{"unknown assignee", doctor, 100, 404, domain.ErrNotFound},
		{"missing document id", doctor, 0, carol.ID, domain.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.Assign(ctx, tt.assigner, tt.doc, tt.assignee, "")
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.Zero(t, f.store.Len())
		})
	}
}

func TestAssign_AuthorizerError(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store, &stubAuthorizer{err: errors.New("grant store down")}, auth.NewStaticDirectory(carol))

	_, err := svc.Assign(context.Background(), admin, 100, carol.ID, "")
	require.Error(t, err)
	assert.Equal(t, 500, domain.StatusCode(err))
	assert.Zero(t, store.Len())
}

func TestLifecycle_ProviderEvents(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	r, err := f.svc.Assign(ctx, admin, 101, dave.ID, "")
	require.NoError(t, err)

	sent, err := f.svc.MarkSent(ctx, r.ID, "pd-42", "https://sign.example.com/pd-42")
	require.NoError(t, err)
	assert.Equal(t, StatusSent, sent.Status)

	ev := ProviderEvent{Event: "document.viewed"}
	ev.Data.ID = "pd-42"
	viewed, err := f.svc.ApplyEvent(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, StatusViewed, viewed.Status)

	// replay is idempotent
	_, err = f.svc.ApplyEvent(ctx, ev)
	require.NoError(t, err)

	*f.clock = f.clock.Add(time.Hour)
	ev.Event = "document.completed"
	signed, err := f.svc.ApplyEvent(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, StatusSigned, signed.Status)
	require.NotNil(t, signed.SignedAt)
	assert.True(t, signed.SignedAt.Equal(*f.clock))

	ev.Event = "document.declined"
	_, err = f.svc.ApplyEvent(ctx, ev)
	assert.True(t, errors.Is(err, domain.ErrInvariant))

	_, err = f.svc.MarkSent(ctx, r.ID, "pd-43", "")
	assert.True(t, errors.Is(err, domain.ErrInvariant))

	assert.Equal(t, []string{"PENDING", "SENT", "VIEWED", "SIGNED"}, []string(*f.recorded))
}

func TestApplyEvent_Errors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	ev := ProviderEvent{Event: "document.state_changed"}
	ev.Data.ID = "pd-1"
	_, err := f.svc.ApplyEvent(ctx, ev)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	ev.Event = "document.viewed"
	_, err = f.svc.ApplyEvent(ctx, ev)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	r, err := f.svc.Assign(ctx, admin, 100, carol.ID, "")
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, carol, r.ID)
	assert.True(t, errors.Is(err, domain.ErrPermissionDenied))

	cancelled, err := f.svc.Cancel(ctx, doctor, r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.Len(t, f.audit.OfType(audit.EventSignatureCancel), 1)

	_, err = f.svc.Cancel(ctx, doctor, r.ID)
	assert.True(t, errors.Is(err, domain.ErrInvariant))

	_, err = f.svc.Cancel(ctx, doctor, 999)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	// cancellation frees the slot for a new request
	_, err = f.svc.Assign(ctx, admin, 100, carol.ID, "")
	assert.NoError(t, err)
}

// interleavedStore runs between once, right after a Get returns
type interleavedStore struct {
	*MemoryStore
	between func()
	once    sync.Once
}

func (s *interleavedStore) Get(ctx context.Context, id int64) (*Request, error) {
	r, err := s.MemoryStore.Get(ctx, id)
	if s.between != nil {
		s.once.Do(s.between)
	}
	return r, err
}

func TestCancel_LosesToConcurrentCompletion(t *testing.T) {
	ctx := context.Background()
	store := &interleavedStore{MemoryStore: NewMemoryStore()}
	authz := &stubAuthorizer{readers: map[int64][]int64{100: {7}}}
	svc := NewService(store, authz, auth.NewStaticDirectory(admin, carol))

	r, err := svc.Assign(ctx, admin, 100, carol.ID, "")
	require.NoError(t, err)
	_, err = svc.MarkSent(ctx, r.ID, "pd-7", "")
	require.NoError(t, err)

	store.between = func() {
		ev := ProviderEvent{Event: "document.completed"}
		ev.Data.ID = "pd-7"
		_, err := svc.ApplyEvent(ctx, ev)
		require.NoError(t, err)
	}

	_, err = svc.Cancel(ctx, admin, r.ID)
	assert.True(t, errors.Is(err, domain.ErrInvariant))

	got, err := store.MemoryStore.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSigned, got.Status)
	assert.NotNil(t, got.SignedAt)
}

func TestExpireStale(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	old, err := f.svc.Assign(ctx, admin, 100, carol.ID, "")
	require.NoError(t, err)
	*f.clock = f.clock.Add(6 * 24 * time.Hour)
	fresh, err := f.svc.Assign(ctx, admin, 101, carol.ID, "")
	require.NoError(t, err)

	n, err := f.svc.ExpireStale(ctx, f.clock.Add(2*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, _ := f.store.Get(ctx, old.ID)
	assert.Equal(t, StatusExpired, got.Status)
	got, _ = f.store.Get(ctx, fresh.ID)
	assert.Equal(t, StatusPending, got.Status)

	n, err = f.svc.ExpireStale(ctx, f.clock.Add(2*24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestExpireStale_Disabled(t *testing.T) {
	f := newFixture(t)
	WithTTL(0)(f.svc)
	_, err := f.svc.Assign(context.Background(), admin, 100, carol.ID, "")
	require.NoError(t, err)

	n, err := f.svc.ExpireStale(context.Background(), f.clock.Add(365*24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestQueries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	r, err := f.svc.Assign(ctx, admin, 101, carol.ID, "")
	require.NoError(t, err)
	done, err := f.svc.Assign(ctx, admin, 100, carol.ID, "")
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, admin, done.ID)
	require.NoError(t, err)

	mine, err := f.svc.Mine(ctx, carol, false)
	require.NoError(t, err)
	assert.Len(t, mine, 2)
	open, err := f.svc.Mine(ctx, carol, true)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, r.ID, open[0].ID)

	got, err := f.svc.Get(ctx, carol, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)
	_, err = f.svc.Get(ctx, dave, r.ID)
	assert.True(t, errors.Is(err, domain.ErrPermissionDenied))
	_, err = f.svc.Get(ctx, doctor, r.ID)
	assert.NoError(t, err)

	byDoc, err := f.svc.ForDocument(ctx, dave, 101)
	require.NoError(t, err)
	assert.Len(t, byDoc, 1)
	_, err = f.svc.ForDocument(ctx, dave, 100)
	assert.True(t, errors.Is(err, domain.ErrPermissionDenied))
}
