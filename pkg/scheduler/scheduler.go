package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mcclellann/laborledger/pkg/archive"
	"github.com/mcclellann/laborledger/pkg/models"
)

// Runner performs one plan update pass.
type Runner interface {
	Run(ctx context.Context) (models.RunReport, error)
}

type Config struct {
	CronSchedule string
	Location     *time.Location
	RunTimeout   time.Duration
}

// Scheduler triggers the plan update run on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	runner  Runner
	archive archive.Repository
	cfg     Config
	logger  *zap.Logger
}

// NewScheduler creates a scheduler. Overlapping ticks are skipped and a panicking
// run is recovered. archive may be nil.
func NewScheduler(cfg Config, runner Runner, repo archive.Repository, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 10 * time.Minute
	}

	cl := cronLogger{logger: logger.Sugar()}
	c := cron.New(
		cron.WithLocation(cfg.Location),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	return &Scheduler{
		cron:    c,
		runner:  runner,
		archive: repo,
		cfg:     cfg,
		logger:  logger,
	}
}

// Start registers the payout job and starts the cron loop.
func (s *Scheduler) Start() error {
	s.logger.Info("starting scheduler", zap.String("schedule", s.cfg.CronSchedule), zap.String("location", s.cfg.Location.String()))

	if _, err := s.cron.AddFunc(s.cfg.CronSchedule, s.tick); err != nil {
		return fmt.Errorf("failed to schedule plan update run: %w", err)
	}

	s.cron.Start()
	return nil
}

// Stop stops the cron loop and waits for a running job to finish.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
}

func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RunTimeout)
	defer cancel()
	if _, err := s.RunNow(ctx); err != nil {
		s.logger.Error("scheduled plan update run finished with errors", zap.Error(err))
	}
}

// RunNow runs the update immediately and archives the report.
func (s *Scheduler) RunNow(ctx context.Context) (models.RunReport, error) {
	s.logger.Info("running plan update")
	report, runErr := s.runner.Run(ctx)

	if s.archive != nil {
		if err := s.archive.SaveRunReport(ctx, report); err != nil {
			s.logger.Error("failed to archive run report", zap.String("run_id", report.ID.String()), zap.Error(err))
		}
	}
	return report, runErr
}

// cronLogger routes cron's own logging into zap.
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
