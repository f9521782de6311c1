package monitoring

import (
	"context"
	"database/sql"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"github.com/samber/oops"

	"github.com/isdelr/lab-portal/internal/database"
)

// Scheduler runs periodic database maintenance on a cron schedule.
type Scheduler struct {
	db      *sql.DB
	cron    *cron.Cron
	timeout time.Duration
}

// NewScheduler creates a scheduler for spec, a standard cron expression or a
// descriptor such as "@every 6h".
func NewScheduler(db *sql.DB, spec string) (*Scheduler, error) {
	s := &Scheduler{
		db:      db,
		cron:    cron.New(cron.WithChain(cron.Recover(cronLogger{}), cron.SkipIfStillRunning(cronLogger{}))),
		timeout: 5 * time.Minute,
	}
	if _, err := s.cron.AddFunc(spec, s.runMaintenance); err != nil {
		return nil, oops.Code("SCHEDULE_INVALID").With("schedule", spec).Wrap(err)
	}
	return s, nil
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	log.Info().Msg("Starting background scheduler...")
	s.cron.Start()
}

// Stop halts the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Info().Msg("Stopped background scheduler.")
}

// Next reports when maintenance will run next. It is zero until Start.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (s *Scheduler) runMaintenance() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := RunMaintenance(ctx, s.db); err != nil {
		log.Error().Err(err).Msg("Scheduler: database maintenance failed")
	}
}

// RunMaintenance truncates the WAL and refreshes query planner statistics.
func RunMaintenance(ctx context.Context, db *sql.DB) error {
	start := time.Now()
	if err := database.Checkpoint(ctx, db); err != nil {
		return err
	}
	if err := database.Optimize(ctx, db); err != nil {
		return err
	}
	log.Info().Dur("took", time.Since(start)).Msg("Scheduler: database maintenance complete")
	return nil
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	log.Debug().Fields(keysAndValues).Msg(msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
