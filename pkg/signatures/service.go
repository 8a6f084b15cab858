package signatures

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/trialsite/siteaccess/pkg/audit"
	"github.com/trialsite/siteaccess/pkg/auth"
	"github.com/trialsite/siteaccess/pkg/domain"
	"github.com/trialsite/siteaccess/pkg/observability"
)

// DefaultTTL is how long an open request survives before the sweeper
// expires it.
const DefaultTTL = 30 * 24 * time.Hour

// DocumentAuthorizer answers read checks; access.Authorizer satisfies it
type DocumentAuthorizer interface {
	CanRead(ctx context.Context, p auth.Principal, documentID int64) (bool, error)
}

// Recorder counts status transitions
type Recorder interface {
	RecordSignatureTransition(ctx context.Context, status string)
}

// Option configures a Service
type Option func(*Service)

// WithAuditLogger records assignments, transitions and cancellations
func WithAuditLogger(logger audit.Logger) Option {
	return func(s *Service) { s.audit = logger }
}

// WithRecorder adds a metrics sink
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorders = append(s.recorders, r) }
}

// WithLogger sets the service logger
func WithLogger(logger *observability.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithTTL sets the expiry age of open requests; zero disables expiry
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) { s.ttl = ttl }
}

// Service runs the signature request lifecycle
type Service struct {
	store     Store
	authz     DocumentAuthorizer
	directory auth.Directory
	audit     audit.Logger
	recorders []Recorder
	logger    *observability.Logger
	ttl       time.Duration
	now       func() time.Time
}

// NewService creates a signature service
func NewService(store Store, authz DocumentAuthorizer, directory auth.Directory, opts ...Option) *Service {
	s := &Service{
		store:     store,
		authz:     authz,
		directory: directory,
		audit:     audit.NopLogger{},
		logger:    observability.NopLogger(),
		ttl:       DefaultTTL,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Assign asks assigneeID to sign a document. Only privileged staff may
// assign, and the assignee must be able to read the document.
func (s *Service) Assign(ctx context.Context, assigner auth.Principal, documentID, assigneeID int64, message string) (*Request, error) {
	if !assigner.IsPrivileged() {
		return nil, domain.NewPermissionDenied("only ADMIN or DOCTOR may request signatures")
	}
	if documentID <= 0 || assigneeID <= 0 {
		return nil, domain.NewValidationError("document_id and assignee_id are required")
	}

	assignee, ok, err := s.directory.Principal(ctx, assigneeID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.NewNotFoundError("user", assigneeID)
	}
	if !assignee.Active {
		return nil, domain.NewPermissionDenied("user %d is inactive", assigneeID)
	}

	canRead, err := s.authz.CanRead(ctx, assignee, documentID)
	if err != nil {
		return nil, err
	}
	if !canRead {
		return nil, domain.NewPermissionDenied("user %d cannot read document %d", assigneeID, documentID)
	}

	created, err := s.store.Create(ctx, Request{
		DocumentID:   documentID,
		AssigneeID:   assigneeID,
		AssignedByID: assigner.ID,
		AssignedBy:   assigner.Name(),
		Status:       StatusPending,
		Message:      message,
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, StatusPending)
	s.logAudit(ctx, assigner, created, audit.EventSignatureAssign, "signature requested")
	return created, nil
}

// MarkSent records that the provider accepted the request. It may be
// repeated while the request is SENT to refresh the reference and URL.
func (s *Service) MarkSent(ctx context.Context, id int64, providerRef, signingURL string) (*Request, error) {
	if providerRef == "" {
		return nil, domain.NewValidationError("provider reference is required")
	}
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status != StatusPending && r.Status != StatusSent {
		return nil, domain.NewInvariantViolation("signature request %d is %s and cannot be sent", r.ID, r.Status)
	}

	from := r.Status
	changed, err := r.transition(StatusSent, s.now().UTC())
	if err != nil {
		return nil, err
	}
	r.ProviderRef = providerRef
	r.SigningURL = signingURL
	r.UpdatedAt = s.now().UTC()
	if err := s.store.Update(ctx, *r, from); err != nil {
		return nil, err
	}
	if changed {
		s.record(ctx, StatusSent)
	}
	return r, nil
}

// ApplyEvent applies a provider status callback
func (s *Service) ApplyEvent(ctx context.Context, ev ProviderEvent) (*Request, error) {
	next, ok := StatusForEvent(ev.Event)
	if !ok {
		return nil, domain.NewValidationError("unknown provider event %q", ev.Event)
	}
	r, err := s.store.FindByProviderRef(ctx, ev.Data.ID)
	if err != nil {
		return nil, err
	}

	from := r.Status
	changed, err := r.transition(next, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if !changed {
		return r, nil
	}
	if err := s.store.Update(ctx, *r, from); err != nil {
		return nil, err
	}

	s.record(ctx, next)
	s.log(ctx).WithFields(map[string]interface{}{
		"signature_id": r.ID,
		"event":        ev.Event,
		"status":       string(next),
	}).Info("signature status updated")
	return r, nil
}

// Cancel withdraws an open request
func (s *Service) Cancel(ctx context.Context, actor auth.Principal, id int64) (*Request, error) {
	if !actor.IsPrivileged() {
		return nil, domain.NewPermissionDenied("only ADMIN or DOCTOR may cancel signature requests")
	}
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !r.Status.Open() {
		return nil, domain.NewInvariantViolation("signature request %d is %s and cannot be cancelled", r.ID, r.Status)
	}
	from := r.Status
	if _, err := r.transition(StatusCancelled, s.now().UTC()); err != nil {
		return nil, err
	}
	if err := s.store.Update(ctx, *r, from); err != nil {
		return nil, err
	}

	s.record(ctx, StatusCancelled)
	s.logAudit(ctx, actor, r, audit.EventSignatureCancel, "signature request cancelled")
	return r, nil
}

// ExpireStale expires open requests older than the TTL and reports how
// many were expired. A failure on one request does not stop the others.
func (s *Service) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	stale, err := s.store.FindOpenOlderThan(ctx, now.Add(-s.ttl))
	if err != nil {
		return 0, err
	}

	expired := 0
	var firstErr error
	for i := range stale {
		r := stale[i]
		from := r.Status
		if _, err := r.transition(StatusExpired, now.UTC()); err != nil {
			continue
		}
		err := s.store.Update(ctx, r, from)
		if errors.Is(err, domain.ErrInvariant) {
			// moved on since the sweep read it
			continue
		}
		if err != nil {
			s.log(ctx).WithError(err).Warnf("failed to expire signature request %d", r.ID)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		expired++
		s.record(ctx, StatusExpired)
	}
	return expired, firstErr
}

// Get returns a request to its assignee or to privileged staff
func (s *Service) Get(ctx context.Context, p auth.Principal, id int64) (*Request, error) {
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.IsPrivileged() && r.AssigneeID != p.ID {
		return nil, domain.NewPermissionDenied("signature request %d is not assigned to you", id)
	}
	return r, nil
}

// ForDocument lists requests on a document the caller can read
func (s *Service) ForDocument(ctx context.Context, p auth.Principal, documentID int64) ([]Request, error) {
	ok, err := s.authz.CanRead(ctx, p, documentID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.NewPermissionDenied("READ access to document %d denied", documentID)
	}
	return s.store.FindByDocument(ctx, documentID)
}

// Mine lists requests assigned to the caller
func (s *Service) Mine(ctx context.Context, p auth.Principal, openOnly bool) ([]Request, error) {
	if openOnly {
		return s.store.FindByAssignee(ctx, p.ID, OpenStatuses...)
	}
	return s.store.FindByAssignee(ctx, p.ID)
}

func (s *Service) record(ctx context.Context, status Status) {
	for _, r := range s.recorders {
		r.RecordSignatureTransition(ctx, string(status))
	}
}

func (s *Service) logAudit(ctx context.Context, actor auth.Principal, r *Request, t audit.EventType, msg string) {
	uid := actor.ID
	event := &audit.Event{
		Timestamp:    s.now().UTC(),
		Type:         t,
		Status:       audit.StatusSuccess,
		UserID:       &uid,
		Username:     actor.Name(),
		Role:         string(actor.Role),
		ResourceType: audit.ResourceSignature,
		ResourceID:   strconv.FormatInt(r.ID, 10),
		RequestID:    observability.GetRequestID(ctx),
		Message:      msg,
		Metadata: map[string]interface{}{
			"document_id": r.DocumentID,
			"assignee_id": r.AssigneeID,
			"status":      string(r.Status),
		},
	}
	if err := s.audit.Log(ctx, event); err != nil {
		s.logger.WithError(err).Warnf("failed to write audit event %s", event.Type)
	}
}

func (s *Service) log(ctx context.Context) *observability.Logger {
	logger := s.logger
	if requestID := observability.GetRequestID(ctx); requestID != "" {
		logger = logger.WithField("request_id", requestID)
	}
	return observability.UpdateLoggerWithTraceContext(ctx, logger)
}
