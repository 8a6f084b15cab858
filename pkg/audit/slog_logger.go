package audit

import (
	"context"

	"github.com/trialsite/siteaccess/pkg/observability"
)

// SlogLogger writes audit events to the service log
type SlogLogger struct {
	logger *observability.Logger
}

// NewSlogLogger creates a logger that emits one line per event
func NewSlogLogger(logger *observability.Logger) *SlogLogger {
	return &SlogLogger{logger: logger.WithField("component", "audit")}
}

func (s *SlogLogger) Log(ctx context.Context, event *Event) error {
	fields := map[string]interface{}{
		"event_type":    string(event.Type),
		"status":        string(event.Status),
		"resource_type": string(event.ResourceType),
		"resource_id":   event.ResourceID,
	}
	if event.UserID != nil {
		fields["user_id"] = *event.UserID
	}
	if event.RequestID != "" {
		fields["request_id"] = event.RequestID
	}
	entry := s.logger.WithFields(fields)
	if event.Status == StatusSuccess {
		entry.Info(event.Message)
	} else {
		entry.Warn(event.Message)
	}
	return nil
}

func (s *SlogLogger) Close() error { return nil }
