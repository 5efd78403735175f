package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"rre_filing_agent/internal/app/lifecycle"
)

// BatchRunner is the part of lifecycle.Runner the scheduler drives.
type BatchRunner interface {
	SubmitPending(ctx context.Context) (*lifecycle.RunReport, error)
	PollPending(ctx context.Context) (*lifecycle.RunReport, error)
}

type FilingScheduler struct {
	cronEngine     *cron.Cron
	runner         BatchRunner
	logger         *logrus.Entry
	cronSpecSubmit string
	cronSpecPoll   string
	jobTimeout     time.Duration

	// baseCtx parents every job context; Stop cancels it.
	baseCtx    context.Context
	cancelJobs context.CancelFunc
}

func NewFilingScheduler(
	runner BatchRunner,
	logger *logrus.Entry,
	cronSpecSubmit string, // e.g., "*/5 * * * *" (every 5 minutes)
	cronSpecPoll string, // e.g., "*/15 * * * *" (every 15 minutes)
	jobTimeout time.Duration,
) *FilingScheduler {
	logger = logger.WithField("component", "scheduler")
	cronLogger := cron.PrintfLogger(logger)
	baseCtx, cancel := context.WithCancel(context.Background())
	return &FilingScheduler{
		// A run still in progress when its next tick fires is skipped, not stacked.
		cronEngine: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		runner:         runner,
		logger:         logger,
		cronSpecSubmit: cronSpecSubmit,
		cronSpecPoll:   cronSpecPoll,
		jobTimeout:     jobTimeout,
		baseCtx:        baseCtx,
		cancelJobs:     cancel,
	}
}

// Start registers the submit and poll jobs and starts the cron engine.
func (s *FilingScheduler) Start() error {
	s.logger.Info("Starting filing scheduler...")

	if _, err := s.cronEngine.AddFunc(s.cronSpecSubmit, func() {
		s.runJob("submit", s.runner.SubmitPending)
	}); err != nil {
		return fmt.Errorf("could not add submit cron job %q: %w", s.cronSpecSubmit, err)
	}

	if _, err := s.cronEngine.AddFunc(s.cronSpecPoll, func() {
		s.runJob("poll", s.runner.PollPending)
	}); err != nil {
		return fmt.Errorf("could not add poll cron job %q: %w", s.cronSpecPoll, err)
	}

	s.cronEngine.Start()
	s.logger.WithFields(logrus.Fields{
		"submit_spec": s.cronSpecSubmit,
		"poll_spec":   s.cronSpecPoll,
	}).Info("Filing scheduler started with jobs.")
	return nil
}

func (s *FilingScheduler) runJob(job string, run func(context.Context) (*lifecycle.RunReport, error)) {
	logCtx := s.logger.WithField("job", job)
	logCtx.Debug("Cron job triggered")

	ctx, cancel := context.WithTimeout(s.baseCtx, s.jobTimeout)
	defer cancel()

	report, err := run(ctx)
	if err != nil {
		logCtx.WithError(err).Error("Filing batch run failed")
		return
	}
	if report != nil && report.Claimed > 0 {
		logCtx.WithFields(logrus.Fields{
			"claimed": report.Claimed,
			"failed":  report.Failed,
		}).Info("Filing batch run completed")
	}
}

func (s *FilingScheduler) Stop() {
	s.logger.Info("Stopping filing scheduler...")
	ctx := s.cronEngine.Stop() // Stops the scheduler from adding new jobs, waits for running jobs.
	// cancel in-flight runs
	s.cancelJobs()
	<-ctx.Done()
	s.logger.Info("Filing scheduler gracefully stopped.")
}
