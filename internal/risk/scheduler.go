package risk

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Scheduler runs daily resets and periodic exit evaluations.
// Jobs only enqueue work; the follower worker performs the mutation.
type Scheduler struct {
	cron   *cron.Cron
	logger logrus.FieldLogger
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(logger logrus.FieldLogger) *Scheduler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Scheduler{
		cron:   cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger))),
		logger: logger.WithField("component", "risk-scheduler"),
	}
}

// DailyResetSpec returns the cron spec firing at local midnight in timezone.
func DailyResetSpec(timezone string) string {
	if timezone == "" {
		timezone = "UTC"
	}
	return fmt.Sprintf("CRON_TZ=%s 0 0 * * *", timezone)
}

// AddDailyReset schedules fn at every local midnight of timezone.
func (s *Scheduler) AddDailyReset(timezone string, fn func()) (cron.EntryID, error) {
	if _, err := time.LoadLocation(timezone); err != nil {
		return 0, fmt.Errorf("daily reset timezone %q: %w", timezone, err)
	}
	id, err := s.cron.AddFunc(DailyResetSpec(timezone), fn)
	if err != nil {
		return 0, fmt.Errorf("schedule daily reset: %w", err)
	}
	s.logger.WithField("timezone", timezone).Debug("daily reset scheduled")
	return id, nil
}

// Every schedules fn at a fixed interval.
func (s *Scheduler) Every(interval time.Duration, fn func()) (cron.EntryID, error) {
	if interval <= 0 {
		return 0, fmt.Errorf("interval must be positive, got %s", interval)
	}
	return s.cron.AddFunc("@every "+interval.String(), fn)
}

// Remove unschedules a job.
func (s *Scheduler) Remove(id cron.EntryID) {
	s.cron.Remove(id)
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
