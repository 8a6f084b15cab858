package access

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/trialsite/siteaccess/pkg/auth"
	"github.com/trialsite/siteaccess/pkg/domain"
	"github.com/trialsite/siteaccess/pkg/grants"
	"github.com/trialsite/siteaccess/pkg/hierarchy"
	"github.com/trialsite/siteaccess/pkg/observability"
)

// Resolver decides whether a principal holds a level on a document. It keeps
// no state between calls; every check reads the stores afresh.
type Resolver struct {
	grants grants.Store
	tree   hierarchy.Reader
	tracer trace.Tracer
	now    func() time.Time
}

// NewResolver creates a resolver over a grant store and a folder index
func NewResolver(store grants.Store, tree hierarchy.Reader) *Resolver {
	return &Resolver{
		grants: store,
		tree:   tree,
		tracer: observability.Tracer(),
		now:    time.Now,
	}
}

// HasPermission reports whether p holds level on the document. Missing
// access is (false, nil); errors are reserved for an invalid level, an
// unknown document or a store failure.
func (r *Resolver) HasPermission(ctx context.Context, p auth.Principal, documentID int64, level domain.Level) (bool, error) {
	d, err := r.Explain(ctx, p, documentID, level)
	if err != nil {
		return false, err
	}
	return d.Allowed, nil
}

// Explain resolves the check and returns the full decision
func (r *Resolver) Explain(ctx context.Context, p auth.Principal, documentID int64, level domain.Level) (decision *Decision, err error) {
	if !level.Valid() {
		return nil, domain.NewValidationError("invalid permission level: %s", level)
	}

	ctx, span := r.tracer.Start(ctx, "access.Resolve", trace.WithAttributes(
		attribute.Int64("principal.id", p.ID),
		attribute.String("principal.role", string(p.Role)),
		attribute.Int64("document.id", documentID),
		attribute.String("permission.level", level.String()),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(
				attribute.Bool("permission.allowed", decision.Allowed),
				attribute.String("permission.effective", decision.EffectiveLevel.String()),
			)
		}
		span.End()
	}()

	if p.IsPrivileged() {
		return &Decision{
			Allowed:        true,
			Reason:         fmt.Sprintf("role %s bypasses grant resolution", p.Role),
			DocumentID:     documentID,
			Requested:      level,
			EffectiveLevel: domain.LevelDelete,
			Privileged:     true,
			CheckedAt:      r.now(),
		}, nil
	}

	folderID, err := r.tree.FolderOf(ctx, documentID)
	if err != nil {
		return nil, err
	}

	direct, err := r.grants.FindByDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load document grants: %w", err)
	}
	var inherited []grants.Grant
	if folderID != nil {
		inherited, err = r.grants.FindByFolder(ctx, *folderID)
		if err != nil {
			return nil, fmt.Errorf("failed to load folder grants: %w", err)
		}
	}

	decision = NewGrantSet(p, direct, inherited).Decide(documentID, folderID, level)
	decision.CheckedAt = r.now()
	return decision, nil
}
