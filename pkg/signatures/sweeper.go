package signatures

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/trialsite/siteaccess/pkg/observability"
)

// DefaultSweepSchedule runs the expiry sweep hourly
const DefaultSweepSchedule = "0 * * * *"

// Sweeper expires stale signature requests on a cron schedule
type Sweeper struct {
	service *Service
	cron    *cron.Cron
	logger  *observability.Logger
	now     func() time.Time
}

// NewSweeper schedules svc.ExpireStale. The schedule uses the standard
// five-field cron syntax.
func NewSweeper(svc *Service, schedule string, logger *observability.Logger) (*Sweeper, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	s := &Sweeper{
		service: svc,
		cron:    cron.New(),
		logger:  logger,
		now:     time.Now,
	}
	if _, err := s.cron.AddFunc(schedule, func() {
		defer observability.RecoverPanic(s.logger, "signature sweep")
		s.RunOnce(context.Background())
	}); err != nil {
		return nil, fmt.Errorf("failed to schedule signature sweep %q: %w", schedule, err)
	}
	return s, nil
}

// Start runs the scheduler in the background
func (s *Sweeper) Start() {
	s.cron.Start()
	s.logger.Infof("signature sweeper started with %d job(s)", len(s.cron.Entries()))
}

// Stop stops scheduling and waits for a running sweep to finish or ctx to
// be done.
func (s *Sweeper) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce performs a single sweep and reports how many requests expired
func (s *Sweeper) RunOnce(ctx context.Context) int {
	expired, err := s.service.ExpireStale(ctx, s.now())
	if err != nil {
		s.logger.WithError(err).Warn("signature sweep finished with errors")
	}
	if expired > 0 {
		s.logger.Infof("expired %d signature request(s)", expired)
	}
	return expired
}
