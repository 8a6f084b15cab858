package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/trialsite/siteaccess"

// OTelMetrics mirrors the decision metrics as OpenTelemetry instruments
type OTelMetrics struct {
	decisions        metric.Int64Counter
	decisionDuration metric.Float64Histogram
	grantMutations   metric.Int64Counter
	signatures       metric.Int64Counter
}

// NewOTelMetrics creates instruments on the global meter provider
func NewOTelMetrics() (*OTelMetrics, error) {
	meter := otel.Meter(instrumentationName)
	m := &OTelMetrics{}
	var err error

	m.decisions, err = meter.Int64Counter(
		"authz.decisions",
		metric.WithDescription("Document permission decisions"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create authz.decisions counter: %w", err)
	}

	m.decisionDuration, err = meter.Float64Histogram(
		"authz.decision.duration",
		metric.WithDescription("Time spent resolving a document permission"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create authz.decision.duration histogram: %w", err)
	}

	m.grantMutations, err = meter.Int64Counter(
		"authz.grant.mutations",
		metric.WithDescription("Grant creations and revocations"),
		metric.WithUnit("{mutation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create authz.grant.mutations counter: %w", err)
	}

	m.signatures, err = meter.Int64Counter(
		"signatures.transitions",
		metric.WithDescription("Signature request status changes"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create signatures.transitions counter: %w", err)
	}

	return m, nil
}

// RecordDecision records one permission decision
func (m *OTelMetrics) RecordDecision(ctx context.Context, level, outcome string, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("level", level),
		attribute.String("outcome", outcome),
	)
	m.decisions.Add(ctx, 1, attrs)
	m.decisionDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String("level", level)))
}

// RecordGrantMutation records one grant or revoke attempt
func (m *OTelMetrics) RecordGrantMutation(ctx context.Context, operation, outcome string) {
	m.grantMutations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
}

// RecordSignatureTransition records a signature request entering status
func (m *OTelMetrics) RecordSignatureTransition(ctx context.Context, status string) {
	m.signatures.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
