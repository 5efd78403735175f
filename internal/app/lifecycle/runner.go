// internal/app/lifecycle/runner.go
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"rre_filing_agent/internal/app/builder"
	"rre_filing_agent/internal/domain/filing"
	"rre_filing_agent/internal/domain/transport"
	"rre_filing_agent/internal/infra/metrics"
)

// Alerter delivers operator alerts, e.g. to the admin Telegram chat.
type Alerter interface {
	Alert(ctx context.Context, text string) error
}

// LogAlerter writes alerts to the log when no chat is configured.
type LogAlerter struct {
	Logger *logrus.Entry
}

func (a LogAlerter) Alert(_ context.Context, text string) error {
	a.Logger.WithField("alert", true).Error(text)
	return nil
}

type RunnerConfig struct {
	Owner       string
	BatchSize   int
	Workers     int
	Lease       time.Duration
	ItemTimeout time.Duration
}

// RunReport summarises one batch run.
type RunReport struct {
	Job       string
	Claimed   int
	Succeeded int
	Failed    int
	// Skipped counts items whose claim was lost to another runner before they started.
	Skipped   int
	Statuses  map[filing.Status]int
	Aborted   bool
}

// Runner processes claimed batches of submissions over one shared transport
// session per run.
type Runner struct {
	manager *Manager
	repo    filing.Repository
	dialer  transport.Dialer
	alerter Alerter
	metrics *metrics.Metrics
	logger  *logrus.Entry
	cfg     RunnerConfig
	now     func() time.Time
}

func NewRunner(
	manager *Manager,
	repo filing.Repository,
	dialer transport.Dialer,
	alerter Alerter,
	m *metrics.Metrics,
	cfg RunnerConfig,
	logger *logrus.Entry,
) *Runner {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Lease <= 0 {
		cfg.Lease = 10 * time.Minute
	}
	if cfg.ItemTimeout <= 0 {
		cfg.ItemTimeout = time.Minute
	}
	if cfg.Owner == "" {
		cfg.Owner = "filer"
	}
	return &Runner{
		manager: manager,
		repo:    repo,
		dialer:  dialer,
		alerter: alerter,
		metrics: m,
		logger:  logger.WithField("component", "runner"),
		cfg:     cfg,
		now:     time.Now,
	}
}

// SubmitPending pushes every claimable queued submission.
func (r *Runner) SubmitPending(ctx context.Context) (*RunReport, error) {
	return r.run(ctx, "submit", filing.StatusQueued, func(ctx context.Context, sess transport.Session, sub *filing.Submission) (filing.Status, error) {
		err := r.manager.Submit(ctx, sess, sub)
		return sub.Status, err
	})
}

// PollPending checks every claimable submitted filing for response artifacts.
func (r *Runner) PollPending(ctx context.Context) (*RunReport, error) {
	return r.run(ctx, "poll", filing.StatusSubmitted, r.manager.Poll)
}

type itemFunc func(ctx context.Context, sess transport.Session, sub *filing.Submission) (filing.Status, error)

func (r *Runner) run(ctx context.Context, job string, status filing.Status, fn itemFunc) (*RunReport, error) {
	start := time.Now()
	defer r.metrics.ObserveRun(job, start)

	report := &RunReport{Job: job, Statuses: make(map[filing.Status]int)}
	entry := r.logger.WithField("job", job)

	subs, err := r.repo.ClaimBatch(ctx, []filing.Status{status}, r.cfg.Owner, r.now().Add(r.cfg.Lease), r.cfg.BatchSize)
	if err != nil {
		return report, fmt.Errorf("failed to claim %s batch: %w", job, err)
	}
	report.Claimed = len(subs)
	if len(subs) == 0 {
		entry.Debug("Nothing to do")
		return report, nil
	}
	defer r.release(ctx, subs)

	sess, err := r.dialer.Connect(ctx)
	if err != nil {
		report.Aborted = true
		r.metrics.ObserveTransportError("connect", err)
		if errors.Is(err, transport.ErrAuth) {
			r.alert(ctx, fmt.Sprintf("Filing %s run aborted: SFTP authentication failed: %v", job, err))
		}
		entry.WithError(err).Warn("Could not open transport session, batch left untouched")
		return report, err
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			entry.WithError(cerr).Debug("Error closing transport session")
		}
	}()

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for _, sub := range subs {
		sub := sub
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			itemLog := entry.WithFields(logrus.Fields{
				"submission_id": sub.ID,
				"report_id":     sub.ReportID,
			})

			// The batch may have outlived its lease; only touch rows still ours.
			if err := r.repo.Renew(gctx, sub, r.cfg.Owner, r.now().Add(r.cfg.Lease)); err != nil {
				mu.Lock()
				if errors.Is(err, filing.ErrClaimLost) {
					report.Skipped++
				} else {
					report.Failed++
				}
				mu.Unlock()
				itemLog.WithError(err).Warn("Could not renew claim, skipping submission")
				return nil
			}

			itemCtx, cancel := context.WithTimeout(gctx, r.cfg.ItemTimeout)
			defer cancel()

			st, err := fn(itemCtx, sess, sub)

			mu.Lock()
			report.Statuses[st]++
			if err != nil {
				report.Failed++
			} else {
				report.Succeeded++
			}
			mu.Unlock()

			if err == nil {
				return nil
			}
			itemLog = itemLog.WithError(err)
			var pe *builder.PreflightError
			switch {
			case errors.Is(err, transport.ErrAuth):
				itemLog.Error("SFTP authentication failed, aborting run")
				r.recordFailure(itemCtx, sub, err)
				return err
			case errors.As(err, &pe):
				itemLog.Warn("Submission needs review")
			case errors.Is(err, filing.ErrInvalidTransition), errors.Is(err, filing.ErrStaleSubmission):
				itemLog.Error("Submission changed under the run")
			default:
				itemLog.Warn("Submission left unchanged, will retry next run")
				r.recordFailure(itemCtx, sub, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		report.Aborted = true
		r.alert(ctx, fmt.Sprintf("Filing %s run aborted: %v", job, err))
		return report, err
	}

	entry.WithFields(logrus.Fields{
		"claimed":   report.Claimed,
		"succeeded": report.Succeeded,
		"failed":    report.Failed,
		"skipped":   report.Skipped,
		"duration":  time.Since(start).String(),
	}).Info("Batch run finished")
	return report, nil
}

// recordFailure keeps the error on the submission for operators. The item's
// context may already be done, so the write gets its own deadline.
func (r *Runner) recordFailure(ctx context.Context, sub *filing.Submission, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveAfterPushTimeout)
	defer cancel()
	if err := r.manager.RecordFailure(ctx, sub, cause); err != nil {
		r.logger.WithError(err).WithField("submission_id", sub.ID).Debug("Could not record last error")
	}
}

func (r *Runner) release(ctx context.Context, subs []*filing.Submission) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	for _, sub := range subs {
		if err := r.repo.Release(ctx, sub.ID, r.cfg.Owner); err != nil {
			r.logger.WithError(err).WithField("submission_id", sub.ID).Warn("Failed to release claim")
		}
	}
}

func (r *Runner) alert(ctx context.Context, text string) {
	if r.alerter == nil {
		return
	}
	if err := r.alerter.Alert(ctx, text); err != nil {
		r.logger.WithError(err).Error("Failed to deliver alert")
	}
}

// Ping reports transport reachability and a sample of both remote directories.
func (r *Runner) Ping(ctx context.Context) transport.PingResult {
	return r.dialer.Ping(ctx)
}
