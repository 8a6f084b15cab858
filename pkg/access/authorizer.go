package access

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/trialsite/siteaccess/pkg/audit"
	"github.com/trialsite/siteaccess/pkg/auth"
	"github.com/trialsite/siteaccess/pkg/domain"
	"github.com/trialsite/siteaccess/pkg/grants"
	"github.com/trialsite/siteaccess/pkg/hierarchy"
	"github.com/trialsite/siteaccess/pkg/observability"
)

// Recorder receives decision and grant mutation counts. Both
// observability.Metrics and observability.OTelMetrics satisfy it.
type Recorder interface {
	RecordDecision(ctx context.Context, level, outcome string, elapsed time.Duration)
	RecordGrantMutation(ctx context.Context, operation, outcome string)
}

// Option configures an Authorizer
type Option func(*Authorizer)

// WithAuditLogger records grants, revokes and denied checks to logger
func WithAuditLogger(logger audit.Logger) Option {
	return func(a *Authorizer) { a.audit = logger }
}

// WithRecorder adds a metrics sink; it may be given more than once
func WithRecorder(r Recorder) Option {
	return func(a *Authorizer) { a.recorders = append(a.recorders, r) }
}

// WithLogger sets the service logger
func WithLogger(logger *observability.Logger) Option {
	return func(a *Authorizer) { a.logger = logger }
}

// Authorizer is the façade callers use for every access question and for
// grant management.
type Authorizer struct {
	resolver  *Resolver
	grants    grants.Store
	audit     audit.Logger
	recorders []Recorder
	logger    *observability.Logger
}

// NewAuthorizer creates the façade over a grant store and a folder index
func NewAuthorizer(store grants.Store, tree hierarchy.Reader, opts ...Option) *Authorizer {
	a := &Authorizer{
		resolver: NewResolver(store, tree),
		grants:   store,
		audit:    audit.NopLogger{},
		logger:   observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Resolver returns the underlying resolver
func (a *Authorizer) Resolver() *Resolver { return a.resolver }

// Check reports whether p holds level on the document
func (a *Authorizer) Check(ctx context.Context, p auth.Principal, documentID int64, level domain.Level) (bool, error) {
	d, err := a.Explain(ctx, p, documentID, level)
	if err != nil {
		return false, err
	}
	return d.Allowed, nil
}

// CanRead reports whether p may read the document
func (a *Authorizer) CanRead(ctx context.Context, p auth.Principal, documentID int64) (bool, error) {
	return a.Check(ctx, p, documentID, domain.LevelRead)
}

// CanWrite reports whether p may modify the document
func (a *Authorizer) CanWrite(ctx context.Context, p auth.Principal, documentID int64) (bool, error) {
	return a.Check(ctx, p, documentID, domain.LevelWrite)
}

// CanDelete reports whether p may delete the document
func (a *Authorizer) CanDelete(ctx context.Context, p auth.Principal, documentID int64) (bool, error) {
	return a.Check(ctx, p, documentID, domain.LevelDelete)
}

// Explain runs a check and records its outcome
func (a *Authorizer) Explain(ctx context.Context, p auth.Principal, documentID int64, level domain.Level) (*Decision, error) {
	start := time.Now()
	d, err := a.resolver.Explain(ctx, p, documentID, level)
	elapsed := time.Since(start)

	if err != nil {
		a.recordDecision(ctx, level, "error", elapsed)
		if !errors.Is(err, domain.ErrNotFound) && !errors.Is(err, domain.ErrValidation) {
			a.log(ctx).WithError(err).Errorf("permission check on document %d failed", documentID)
		}
		return nil, err
	}

	a.recordDecision(ctx, level, d.outcome(), elapsed)
	if !d.Allowed {
		a.logAudit(ctx, p, &audit.Event{
			Type:         audit.EventAccessDenied,
			Status:       audit.StatusDenied,
			ResourceType: audit.ResourceDocument,
			ResourceID:   strconv.FormatInt(documentID, 10),
			Message:      d.Reason,
			Metadata: map[string]interface{}{
				"requested": level.String(),
				"effective": d.EffectiveLevel.String(),
			},
		})
	}
	return d, nil
}

// FilterAccessibleDocuments returns the documents p may read, in input
// order. The principal's grants are fetched once; each document's folder
// comes from the index, never from the caller's FolderID. Documents the
// index does not know are dropped.
func (a *Authorizer) FilterAccessibleDocuments(ctx context.Context, p auth.Principal, docs []hierarchy.Document) ([]hierarchy.Document, error) {
	if p.IsPrivileged() {
		return docs, nil
	}

	set, err := a.PrefetchGrants(ctx, p)
	if err != nil {
		return nil, err
	}

	out := make([]hierarchy.Document, 0, len(docs))
	for _, d := range docs {
		folderID, err := a.resolver.tree.FolderOf(ctx, d.ID)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to place document %d: %w", d.ID, err)
		}
		if set.LevelFor(d.ID, folderID).Entails(domain.LevelRead) {
			out = append(out, d)
		}
	}
	return out, nil
}

// PrefetchGrants loads every grant naming p or p's role
func (a *Authorizer) PrefetchGrants(ctx context.Context, p auth.Principal) (*GrantSet, error) {
	var byUser, byRole []grants.Grant
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		byUser, err = a.grants.FindByPrincipal(gctx, p.ID)
		if err != nil {
			return fmt.Errorf("failed to load user grants: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		byRole, err = a.grants.FindByRole(gctx, p.Role)
		if err != nil {
			return fmt.Errorf("failed to load role grants: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return NewGrantSet(p, byUser, byRole), nil
}

// GrantPermission stores a grant on behalf of an ADMIN grantor
func (a *Authorizer) GrantPermission(ctx context.Context, grantor auth.Principal, g grants.Grant) (*grants.Grant, error) {
	event := &audit.Event{
		Type:         audit.EventPermissionGrant,
		ResourceType: audit.ResourcePermission,
		Metadata:     grantMetadata(g),
	}

	if !grantor.IsAdmin() {
		a.recordMutation(ctx, "grant", "denied")
		event.Status = audit.StatusDenied
		event.Message = "only ADMIN may grant permissions"
		a.logAudit(ctx, grantor, event)
		return nil, domain.NewPermissionDenied("only ADMIN may grant permissions")
	}

	g.ID = 0
	g.GrantedBy = grantor.Name()
	created, err := a.createGrant(ctx, g)
	if err != nil {
		a.recordMutation(ctx, "grant", "error")
		event.Status = audit.StatusFailure
		event.ErrorMessage = err.Error()
		a.logAudit(ctx, grantor, event)
		return nil, err
	}

	a.recordMutation(ctx, "grant", "success")
	event.Status = audit.StatusSuccess
	event.ResourceID = strconv.FormatInt(created.ID, 10)
	event.Message = "permission granted"
	a.logAudit(ctx, grantor, event)
	a.log(ctx).WithFields(map[string]interface{}{
		"grant_id": created.ID,
		"level":    created.Level.String(),
	}).Info("permission granted")
	return created, nil
}

// createGrant stores g once its document or folder is known to the index.
// Validation runs first so a malformed grant is a ValidationError, not a
// lookup of a half-specified target.
func (a *Authorizer) createGrant(ctx context.Context, g grants.Grant) (*grants.Grant, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	var err error
	switch {
	case g.DocumentID != nil:
		_, err = a.resolver.tree.FolderOf(ctx, *g.DocumentID)
	case g.FolderID != nil:
		_, err = a.resolver.tree.ParentOf(ctx, *g.FolderID)
	}
	if err != nil {
		return nil, err
	}
	return a.grants.Create(ctx, g)
}

// RevokePermission deletes a grant on behalf of an ADMIN grantor
func (a *Authorizer) RevokePermission(ctx context.Context, grantor auth.Principal, id int64) error {
	event := &audit.Event{
		Type:         audit.EventPermissionRevoke,
		ResourceType: audit.ResourcePermission,
		ResourceID:   strconv.FormatInt(id, 10),
	}

	if !grantor.IsAdmin() {
		a.recordMutation(ctx, "revoke", "denied")
		event.Status = audit.StatusDenied
		event.Message = "only ADMIN may revoke permissions"
		a.logAudit(ctx, grantor, event)
		return domain.NewPermissionDenied("only ADMIN may revoke permissions")
	}

	if err := a.grants.Delete(ctx, id); err != nil {
		a.recordMutation(ctx, "revoke", "error")
		event.Status = audit.StatusFailure
		event.ErrorMessage = err.Error()
		a.logAudit(ctx, grantor, event)
		return err
	}

	a.recordMutation(ctx, "revoke", "success")
	event.Status = audit.StatusSuccess
	event.Message = "permission revoked"
	a.logAudit(ctx, grantor, event)
	return nil
}

// GrantsForDocument lists the grants targeting a document
func (a *Authorizer) GrantsForDocument(ctx context.Context, viewer auth.Principal, documentID int64) ([]grants.Grant, error) {
	if err := requireAdmin(viewer, "list permissions"); err != nil {
		return nil, err
	}
	return a.grants.FindByDocument(ctx, documentID)
}

// GrantsForFolder lists the grants targeting a folder
func (a *Authorizer) GrantsForFolder(ctx context.Context, viewer auth.Principal, folderID int64) ([]grants.Grant, error) {
	if err := requireAdmin(viewer, "list permissions"); err != nil {
		return nil, err
	}
	return a.grants.FindByFolder(ctx, folderID)
}

// GrantsForUser lists the grants made to a user
func (a *Authorizer) GrantsForUser(ctx context.Context, viewer auth.Principal, userID int64) ([]grants.Grant, error) {
	if err := requireAdmin(viewer, "list permissions"); err != nil {
		return nil, err
	}
	return a.grants.FindByPrincipal(ctx, userID)
}

// GrantsForRole lists the grants made to a role
func (a *Authorizer) GrantsForRole(ctx context.Context, viewer auth.Principal, role auth.Role) ([]grants.Grant, error) {
	if err := requireAdmin(viewer, "list permissions"); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, domain.NewValidationError("unknown role: %q", role)
	}
	return a.grants.FindByRole(ctx, role)
}

func requireAdmin(p auth.Principal, action string) error {
	if !p.IsAdmin() {
		return domain.NewPermissionDenied("only ADMIN may %s", action)
	}
	return nil
}

func requirePrivileged(p auth.Principal, action string) error {
	if !p.IsPrivileged() {
		return domain.NewPermissionDenied("only ADMIN or DOCTOR may %s", action)
	}
	return nil
}

func (a *Authorizer) recordDecision(ctx context.Context, level domain.Level, outcome string, elapsed time.Duration) {
	for _, r := range a.recorders {
		r.RecordDecision(ctx, level.String(), outcome, elapsed)
	}
}

func (a *Authorizer) recordMutation(ctx context.Context, operation, outcome string) {
	for _, r := range a.recorders {
		r.RecordGrantMutation(ctx, operation, outcome)
	}
}

// logAudit fills the actor fields and writes the event. Audit failures are
// logged and never fail the operation.
func (a *Authorizer) logAudit(ctx context.Context, actor auth.Principal, event *audit.Event) {
	uid := actor.ID
	event.Timestamp = time.Now().UTC()
	event.UserID = &uid
	event.Username = actor.Name()
	event.Role = string(actor.Role)
	event.RequestID = observability.GetRequestID(ctx)
	if err := a.audit.Log(ctx, event); err != nil {
		a.logger.WithError(err).Warnf("failed to write audit event %s", event.Type)
	}
}

func (a *Authorizer) log(ctx context.Context) *observability.Logger {
	logger := a.logger
	if requestID := observability.GetRequestID(ctx); requestID != "" {
		logger = logger.WithField("request_id", requestID)
	}
	return observability.UpdateLoggerWithTraceContext(ctx, logger)
}

func grantMetadata(g grants.Grant) map[string]interface{} {
	md := map[string]interface{}{"level": g.Level.String()}
	if g.DocumentID != nil {
		md["document_id"] = *g.DocumentID
	}
	if g.FolderID != nil {
		md["folder_id"] = *g.FolderID
	}
	if g.UserID != nil {
		md["user_id"] = *g.UserID
	}
	if g.Role != "" {
		md["role"] = string(g.Role)
	}
	return md
}
