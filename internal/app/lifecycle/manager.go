// internal/app/lifecycle/manager.go
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"rre_filing_agent/internal/app/builder"
	"rre_filing_agent/internal/app/response"
	"rre_filing_agent/internal/codec"
	"rre_filing_agent/internal/domain/filing"
	"rre_filing_agent/internal/domain/report"
	"rre_filing_agent/internal/domain/transport"
	"rre_filing_agent/internal/infra/metrics"
)

// saveAfterPushTimeout bounds the write that records a push that already happened,
// even when the caller's context was cancelled mid-flight.
const saveAfterPushTimeout = 10 * time.Second

// Config is the part of the application configuration the lifecycle needs.
type Config struct {
	// Environment is the receiving-system environment new submissions target.
	Environment filing.Environment
	// Production is true when the deployment itself runs as production. The demo
	// override is never reachable when it is set.
	Production     bool
	DemoMode       bool
	SubmissionsDir string
	AcksDir        string
}

func (c Config) demoAllowed() bool {
	return c.DemoMode && !c.Production && c.Environment != filing.EnvironmentProduction
}

// Manager drives FilingSubmission through its lifecycle. It never claims rows;
// callers hand it submissions they already own.
type Manager struct {
	repo    filing.Repository
	reports report.Source
	builder *builder.Builder
	metrics *metrics.Metrics
	logger  *logrus.Entry
	cfg     Config
	now     func() time.Time
	// seq feeds the 4-digit filename sequence. Seeded randomly so replicas
	// pushing in the same second do not collide.
	seq atomic.Uint32
}

func NewManager(
	repo filing.Repository,
	reports report.Source,
	b *builder.Builder,
	m *metrics.Metrics,
	cfg Config,
	logger *logrus.Entry,
) *Manager {
	mgr := &Manager{
		repo:    repo,
		reports: reports,
		builder: b,
		metrics: m,
		logger:  logger.WithField("component", "lifecycle"),
		cfg:     cfg,
		now:     time.Now,
	}
	mgr.seq.Store(uint32(rand.Int31n(10000)))
	return mgr
}

func (m *Manager) log(sub *filing.Submission) *logrus.Entry {
	fields := logrus.Fields{
		"submission_id": sub.ID,
		"report_id":     sub.ReportID,
		"status":        sub.Status,
	}
	if sub.Filename.Valid {
		fields["filename"] = sub.Filename.String
	}
	return m.logger.WithFields(fields)
}

// commit applies mutate to a copy of sub and saves it. sub is only updated when
// the save succeeds, so a failed operation leaves the caller's handle untouched.
func (m *Manager) commit(ctx context.Context, sub *filing.Submission, mutate func(*filing.Submission) error) error {
	next := sub.Clone()
	if err := mutate(next); err != nil {
		return err
	}
	if err := m.repo.Save(ctx, next); err != nil {
		return fmt.Errorf("failed to save submission %s: %w", sub.ID, err)
	}
	from := sub.Status
	*sub = *next
	if from != sub.Status {
		m.metrics.ObserveTransition(sub.Status)
		m.log(sub).WithField("from", from).Info("Filing status changed")
	}
	return nil
}

// GetOrCreate returns the report's submission, creating it in not_started.
func (m *Manager) GetOrCreate(ctx context.Context, reportID uuid.UUID) (*filing.Submission, error) {
	sub, err := m.repo.GetByReportID(ctx, reportID)
	if err == nil {
		return sub, nil
	}
	if !errors.Is(err, filing.ErrSubmissionNotFound) {
		return nil, fmt.Errorf("failed to get submission for report %s: %w", reportID, err)
	}

	sub = filing.New(reportID, m.cfg.Environment)
	if err := m.repo.Create(ctx, sub); err != nil {
		if errors.Is(err, filing.ErrDuplicateReport) {
			// lost a race with another creator
			return m.repo.GetByReportID(ctx, reportID)
		}
		return nil, fmt.Errorf("failed to create submission for report %s: %w", reportID, err)
	}
	m.log(sub).Info("Filing submission created")
	return sub, nil
}

// Enqueue moves a not_started or rejected submission to queued.
func (m *Manager) Enqueue(ctx context.Context, sub *filing.Submission) error {
	return m.commit(ctx, sub, (*filing.Submission).Enqueue)
}

// Retry is the explicit human re-queue of a rejected or needs_review submission.
func (m *Manager) Retry(ctx context.Context, sub *filing.Submission) error {
	return m.commit(ctx, sub, (*filing.Submission).Retry)
}

// EnqueueReport is GetOrCreate followed by Enqueue.
func (m *Manager) EnqueueReport(ctx context.Context, reportID uuid.UUID) (*filing.Submission, error) {
	sub, err := m.GetOrCreate(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if err := m.Enqueue(ctx, sub); err != nil {
		return sub, err
	}
	return sub, nil
}

// RetryReport re-queues the report's submission.
func (m *Manager) RetryReport(ctx context.Context, reportID uuid.UUID) (*filing.Submission, error) {
	sub, err := m.repo.GetByReportID(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if err := m.Retry(ctx, sub); err != nil {
		return sub, err
	}
	return sub, nil
}

// Submit builds, snapshots and pushes a queued submission. A *builder.PreflightError
// moves it to needs_review and is returned to the caller. Transport failures leave
// the stored submission exactly as it was, attempts included.
func (m *Manager) Submit(ctx context.Context, sess transport.Session, sub *filing.Submission) error {
	if sub.Status != filing.StatusQueued {
		return &filing.TransitionError{Op: "submit", From: sub.Status}
	}
	entry := m.log(sub)

	fields, err := m.reports.GetFields(ctx, sub.ReportID)
	if err != nil {
		return fmt.Errorf("failed to load report %s: %w", sub.ReportID, err)
	}

	now := m.now()
	doc, err := m.builder.Build(fields, builder.Meta{GeneratedAt: now, Sequence: int(m.seq.Add(1) % 10000)})
	if err != nil {
		var pe *builder.PreflightError
		if !errors.As(err, &pe) {
			return fmt.Errorf("failed to build document: %w", err)
		}
		m.metrics.IncrementPreflightFailure()
		entry.WithField("issues", len(pe.Issues)).Warn("Preflight failed, routing to needs_review")
		if serr := m.commit(ctx, sub, func(s *filing.Submission) error {
			return s.FlagForReview(pe.Error())
		}); serr != nil {
			return errors.Join(pe, serr)
		}
		return pe
	}

	snapshot, err := codec.CompressEncodeString(doc.Text)
	if err != nil {
		return fmt.Errorf("failed to snapshot document: %w", err)
	}
	sha := codec.DigestString(doc.Text)

	entry = entry.WithFields(logrus.Fields{"filename": doc.Filename, "sha256": sha})
	if err := sess.Push(ctx, m.cfg.SubmissionsDir, doc.Filename, []byte(doc.Text)); err != nil {
		m.metrics.ObserveTransportError("push", err)
		entry.WithError(err).Warn("Push failed, submission stays queued")
		return fmt.Errorf("failed to push %s: %w", doc.Filename, err)
	}
	m.metrics.IncrementPush()

	// The file is on the remote side now; record it even if ctx has expired.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveAfterPushTimeout)
	defer cancel()
	if err := m.commit(saveCtx, sub, func(s *filing.Submission) error {
		return s.MarkSubmitted(doc.Filename, snapshot, sha, now)
	}); err != nil {
		entry.WithError(err).Error("Pushed document but failed to record it; it will be pushed again")
		return err
	}
	return nil
}

// Poll looks for response artifacts of a submitted filing and applies them.
// With nothing deposited yet it returns submitted and no error. Transport and
// parse errors are returned with the status unchanged.
func (m *Manager) Poll(ctx context.Context, sess transport.Session, sub *filing.Submission) (filing.Status, error) {
	if sub.Status != filing.StatusSubmitted {
		return sub.Status, &filing.TransitionError{Op: "poll", From: sub.Status}
	}
	if !sub.Filename.Valid || sub.Filename.String == "" {
		return sub.Status, fmt.Errorf("submission %s is submitted without a filename: %w", sub.ID, filing.ErrInvalidTransition)
	}
	filename := sub.Filename.String
	entry := m.log(sub)

	names, err := sess.List(ctx, m.cfg.AcksDir)
	if err != nil {
		m.metrics.ObserveTransportError("list", err)
		return sub.Status, fmt.Errorf("failed to list %s: %w", m.cfg.AcksDir, err)
	}
	artifacts := response.Match(names, filename)

	if artifacts.Final != "" {
		data, err := sess.Fetch(ctx, m.cfg.AcksDir, artifacts.Final)
		switch {
		case errors.Is(err, transport.ErrNotFound):
			entry.Debug("Final artifact disappeared between list and fetch")
		case err != nil:
			m.metrics.ObserveTransportError("fetch", err)
			return sub.Status, fmt.Errorf("failed to fetch %s: %w", artifacts.Final, err)
		default:
			outcome, err := response.ParseFinal(data)
			if err != nil {
				m.metrics.ObserveParseError("final")
				entry.WithError(err).WithField("artifact", artifacts.Final).Warn("Unreadable final artifact, submission stays submitted")
				return sub.Status, err
			}
			if err := m.applyOutcome(ctx, sub, outcome); err != nil {
				return sub.Status, err
			}
			return sub.Status, nil
		}
	}

	if artifacts.Interim != "" {
		data, err := sess.Fetch(ctx, m.cfg.AcksDir, artifacts.Interim)
		switch {
		case errors.Is(err, transport.ErrNotFound):
			return sub.Status, nil
		case err != nil:
			m.metrics.ObserveTransportError("fetch", err)
			return sub.Status, fmt.Errorf("failed to fetch %s: %w", artifacts.Interim, err)
		}
		records, err := response.ParseInterim(data)
		if err != nil {
			m.metrics.ObserveParseError("interim")
			entry.WithError(err).WithField("artifact", artifacts.Interim).Warn("Unreadable interim artifact, submission stays submitted")
			return sub.Status, err
		}
		for _, rec := range response.ForFile(records, filename) {
			switch rec.Class() {
			case response.InterimValidationError:
				if err := m.commit(ctx, sub, func(s *filing.Submission) error {
					return s.Reject(rec.Code, rec.Detail)
				}); err != nil {
					return sub.Status, err
				}
				return sub.Status, nil
			case response.InterimAcknowledged:
				entry.WithField("code", rec.Code).Debug("Submission acknowledged, awaiting adjudication")
			default:
				entry.WithField("code", rec.Code).Warn("Unrecognised interim status code, awaiting final artifact")
			}
		}
	}

	return sub.Status, nil
}

// RecordFailure stores the error of a failed try on sub as its last error. It is
// a write of its own, separate from the operation that failed.
func (m *Manager) RecordFailure(ctx context.Context, sub *filing.Submission, cause error) error {
	return m.commit(ctx, sub, func(s *filing.Submission) error {
		return s.NoteFailure(cause.Error())
	})
}

func (m *Manager) applyOutcome(ctx context.Context, sub *filing.Submission, o *response.Outcome) error {
	return m.commit(ctx, sub, func(s *filing.Submission) error {
		switch o.Status {
		case filing.StatusAccepted:
			return s.Accept(o.ReceiptID)
		case filing.StatusRejected:
			return s.Reject(o.RejectionCode, o.RejectionMessage)
		default:
			return s.FlagForReview(o.ReviewReason)
		}
	})
}

// DemoOverride forces a terminal outcome without touching the transport. It is
// only available when demo mode is on and neither the deployment nor the
// submission targets production.
func (m *Manager) DemoOverride(ctx context.Context, sub *filing.Submission, outcome filing.DemoOutcome, code, message string) error {
	if !m.cfg.demoAllowed() || sub.Environment == filing.EnvironmentProduction {
		return filing.ErrDemoDisabled
	}
	receipt := "DEMO" + strings.ToUpper(codec.DigestString(sub.ID.String())[:10])
	if err := m.commit(ctx, sub, func(s *filing.Submission) error {
		return s.ApplyDemo(outcome, code, message, receipt)
	}); err != nil {
		return err
	}
	m.log(sub).WithField("outcome", outcome).Warn("Demo outcome override applied")
	return nil
}

// Lookup returns the report's submission.
func (m *Manager) Lookup(ctx context.Context, reportID uuid.UUID) (*filing.Submission, error) {
	return m.repo.GetByReportID(ctx, reportID)
}

// DemoOverrideReport is GetOrCreate followed by DemoOverride.
func (m *Manager) DemoOverrideReport(ctx context.Context, reportID uuid.UUID, outcome filing.DemoOutcome, code, message string) (*filing.Submission, error) {
	if !m.cfg.demoAllowed() {
		return nil, filing.ErrDemoDisabled
	}
	sub, err := m.GetOrCreate(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if err := m.DemoOverride(ctx, sub, outcome, code, message); err != nil {
		return sub, err
	}
	return sub, nil
}

// Stats counts submissions per status. Every status is present in the result.
func (m *Manager) Stats(ctx context.Context) (map[filing.Status]int, error) {
	counts, err := m.repo.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[filing.Status]int, len(filing.AllStatuses))
	for _, st := range filing.AllStatuses {
		out[st] = counts[st]
	}
	return out, nil
}

// Snapshot returns the document stored with the last push, verified against its digest.
func (m *Manager) Snapshot(sub *filing.Submission) ([]byte, error) {
	if !sub.PayloadSnapshot.Valid {
		return nil, fmt.Errorf("submission %s has no stored snapshot: %w", sub.ID, filing.ErrSubmissionNotFound)
	}
	return codec.Verify(sub.PayloadSnapshot.String, sub.PayloadSHA256.String)
}
