package access

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/trialsite/siteaccess/pkg/auth"
	"github.com/trialsite/siteaccess/pkg/domain"
	"github.com/trialsite/siteaccess/pkg/grants"
)

// Folder 10 holds documents 100 and 101, folder 11 is its sibling holding
// 110, folder 12 is its child holding 120. Folder 2 is a child of folder 1
// and holds document 200. Document 300 is at the root.
var scenarioTree = stubTree{docs: map[int64]*int64{
	100: ref(10),
	101: ref(10),
	110: ref(11),
	120: ref(12),
	200: ref(2),
	300: nil,
}}

var allLevels = []domain.Level{domain.LevelRead, domain.LevelWrite, domain.LevelDelete}

func newTestResolver() (*Resolver, *grants.MemoryStore) {
	store := grants.NewMemoryStore()
	return NewResolver(store, scenarioTree), store
}

func TestResolver_PrivilegedRolesBypass(t *testing.T) {
	r, _ := newTestResolver()
	ctx := context.Background()

	for _, p := range []auth.Principal{admin, doctor} {
		for doc := range scenarioTree.docs {
			for _, level := range allLevels {
				ok, err := r.HasPermission(ctx, p, doc, level)
				require.NoError(t, err)
				assert.True(t, ok, "%s on %d at %s", p.Role, doc, level)
			}
		}
	}
}

func TestResolver_PrivilegedBypassNeedsNoDocumentLookup(t *testing.T) {
	r, _ := newTestResolver()
	d, err := r.Explain(context.Background(), admin, 9999, domain.LevelDelete)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.True(t, d.Privileged)
	assert.Equal(t, domain.LevelDelete, d.EffectiveLevel)
}

func TestResolver_DefaultDeny(t *testing.T) {
	r, _ := newTestResolver()
	ctx := context.Background()

	for _, p := range []auth.Principal{user7, auditor, coordinator} {
		for doc := range scenarioTree.docs {
			for _, level := range allLevels {
				ok, err := r.HasPermission(ctx, p, doc, level)
				require.NoError(t, err)
				assert.False(t, ok)
			}
		}
	}
}

func TestResolver_Entailment(t *testing.T) {
	tests := []struct {
		granted domain.Level
		want    map[domain.Level]bool
	}{
		{domain.LevelRead, map[domain.Level]bool{domain.LevelRead: true, domain.LevelWrite: false, domain.LevelDelete: false}},
		{domain.LevelWrite, map[domain.Level]bool{domain.LevelRead: true, domain.LevelWrite: true, domain.LevelDelete: false}},
		{domain.LevelDelete, map[domain.Level]bool{domain.LevelRead: true, domain.LevelWrite: true, domain.LevelDelete: true}},
	}

	for _, tt := range tests {
		t.Run(tt.granted.String(), func(t *testing.T) {
			r, store := newTestResolver()
			mustGrant(t, store, grants.OnDocument(100), grants.ForUser(user7.ID), tt.granted)

			for level, want := range tt.want {
				ok, err := r.HasPermission(context.Background(), user7, 100, level)
				require.NoError(t, err)
				assert.Equal(t, want, ok, "requested %s", level)
			}
		})
	}
}

func TestResolver_MaxLevelWins(t *testing.T) {
	r, store := newTestResolver()
	mustGrant(t, store, grants.OnDocument(100), grants.ForUser(user7.ID), domain.LevelRead)
	mustGrant(t, store, grants.OnDocument(100), grants.ForUser(user7.ID), domain.LevelRead)
	mustGrant(t, store, grants.OnDocument(100), grants.ForRole(auth.RoleUser), domain.LevelWrite)
	mustGrant(t, store, grants.OnFolder(10), grants.ForUser(user7.ID), domain.LevelDelete)

	d, err := r.Explain(context.Background(), user7, 100, domain.LevelDelete)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, domain.LevelDelete, d.EffectiveLevel)
	assert.Len(t, d.MatchedGrants, 4)
	assert.Equal(t, ref(10), d.FolderID)
}

func TestResolver_RoleGrantOnDocument(t *testing.T) {
	r, store := newTestResolver()
	mustGrant(t, store, grants.OnDocument(300), grants.ForRole(auth.RoleAuditor), domain.LevelRead)
	ctx := context.Background()

	ok, err := r.HasPermission(ctx, auditor, 300, domain.LevelRead)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.HasPermission(ctx, coordinator, 300, domain.LevelRead)
	require.NoError(t, err)
	assert.False(t, ok, "role grants apply to their role only")
}

func TestResolver_SingleLevelFolderInheritance(t *testing.T) {
	r, store := newTestResolver()
	mustGrant(t, store, grants.OnFolder(10), grants.ForRole(auth.RoleAuditor), domain.LevelRead)
	ctx := context.Background()

	tests := []struct {
		doc  int64
		want bool
	}{
		{100, true},  // directly in folder 10
		{101, true},  // directly in folder 10
		{110, false}, // sibling folder
		{120, false}, // child folder
		{300, false}, // root document
	}
	for _, tt := range tests {
		ok, err := r.HasPermission(ctx, auditor, tt.doc, domain.LevelRead)
		require.NoError(t, err)
		assert.Equal(t, tt.want, ok, "document %d", tt.doc)
	}
}

func TestResolver_RootDocumentsIgnoreFolderGrants(t *testing.T) {
	r, store := newTestResolver()
	for _, folder := range []int64{1, 2, 10, 11, 12} {
		mustGrant(t, store, grants.OnFolder(folder), grants.ForUser(user7.ID), domain.LevelDelete)
		mustGrant(t, store, grants.OnFolder(folder), grants.ForRole(auth.RoleUser), domain.LevelDelete)
	}

	for _, level := range allLevels {
		ok, err := r.HasPermission(context.Background(), user7, 300, level)
		require.NoError(t, err)
		assert.False(t, ok)
	}
}

func TestResolver_RevokeRemovesAccess(t *testing.T) {
	r, store := newTestResolver()
	ctx := context.Background()
	g := mustGrant(t, store, grants.OnDocument(100), grants.ForUser(user7.ID), domain.LevelRead)

	ok, err := r.HasPermission(ctx, user7, 100, domain.LevelRead)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, store.Delete(ctx, g.ID))

	ok, err = r.HasPermission(ctx, user7, 100, domain.LevelRead)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolver_UserWriteOnFolderScenario(t *testing.T) {
	r, store := newTestResolver()
	mustGrant(t, store, grants.OnFolder(10), grants.ForUser(7), domain.LevelWrite)
	ctx := context.Background()

	canRead, err := r.HasPermission(ctx, user7, 100, domain.LevelRead)
	require.NoError(t, err)
	canWrite, err := r.HasPermission(ctx, user7, 100, domain.LevelWrite)
	require.NoError(t, err)
	canDelete, err := r.HasPermission(ctx, user7, 100, domain.LevelDelete)
	require.NoError(t, err)

	assert.True(t, canRead)
	assert.True(t, canWrite)
	assert.False(t, canDelete)

	asAdmin := auth.Principal{ID: 7, Role: auth.RoleAdmin, Active: true}
	ok, err := NewResolver(grants.NewMemoryStore(), scenarioTree).HasPermission(ctx, asAdmin, 100, domain.LevelDelete)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestResolver_GrandparentGrantDoesNotApply(t *testing.T) {
	r, store := newTestResolver()
	mustGrant(t, store, grants.OnFolder(1), grants.ForUser(user7.ID), domain.LevelDelete)

	ok, err := r.HasPermission(context.Background(), user7, 200, domain.LevelRead)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolver_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid level", func(t *testing.T) {
		r, _ := newTestResolver()
		for _, level := range []domain.Level{domain.LevelNone, domain.Level(9)} {
			_, err := r.HasPermission(ctx, user7, 100, level)
			assert.True(t, errors.Is(err, domain.ErrValidation))
		}
	})

	t.Run("invalid level for privileged roles", func(t *testing.T) {
		r, _ := newTestResolver()
		_, err := r.HasPermission(ctx, admin, 100, domain.LevelNone)
		assert.True(t, errors.Is(err, domain.ErrValidation))
	})

	t.Run("unknown document", func(t *testing.T) {
		r, _ := newTestResolver()
		_, err := r.HasPermission(ctx, user7, 404, domain.LevelRead)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})

	t.Run("document grant lookup fails", func(t *testing.T) {
		store := failingStore{Store: grants.NewMemoryStore(), fail: map[string]bool{"document": true}}
		_, err := NewResolver(store, scenarioTree).HasPermission(ctx, user7, 100, domain.LevelRead)
		assert.ErrorIs(t, err, errStoreDown)
	})

	t.Run("folder grant lookup fails", func(t *testing.T) {
		store := failingStore{Store: grants.NewMemoryStore(), fail: map[string]bool{"folder": true}}
		_, err := NewResolver(store, scenarioTree).HasPermission(ctx, user7, 100, domain.LevelRead)
		assert.ErrorIs(t, err, errStoreDown)

		// root documents never consult folder grants
		_, err = NewResolver(store, scenarioTree).HasPermission(ctx, user7, 300, domain.LevelRead)
		assert.NoError(t, err)
	})
}

func TestResolver_CheckedAt(t *testing.T) {
	r, _ := newTestResolver()
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	d, err := r.Explain(context.Background(), user7, 100, domain.LevelRead)
	require.NoError(t, err)
	assert.Equal(t, fixed, d.CheckedAt)
	assert.False(t, d.Allowed)
	assert.Equal(t, "no applicable grant", d.Reason)
}

func TestResolver_Span(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	r, store := newTestResolver()
	r.tracer = provider.Tracer("test")
	mustGrant(t, store, grants.OnDocument(100), grants.ForUser(user7.ID), domain.LevelWrite)
	ctx := context.Background()

	_, err := r.Explain(ctx, user7, 100, domain.LevelRead)
	require.NoError(t, err)
	_, err = r.Explain(ctx, user7, 404, domain.LevelRead)
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	assert.Equal(t, "access.Resolve", spans[0].Name())
	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range spans[0].Attributes() {
		attrs[kv.Key] = kv.Value
	}
	assert.Equal(t, int64(100), attrs["document.id"].AsInt64())
	assert.True(t, attrs["permission.allowed"].AsBool())
	assert.Equal(t, "WRITE", attrs["permission.effective"].AsString())

	assert.Equal(t, codes.Error, spans[1].Status().Code)
}
