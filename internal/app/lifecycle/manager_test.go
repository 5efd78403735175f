package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"rre_filing_agent/internal/app/builder"
	"rre_filing_agent/internal/app/response"
	"rre_filing_agent/internal/codec"
	"rre_filing_agent/internal/domain/filing"
	"rre_filing_agent/internal/domain/transport"
	"rre_filing_agent/internal/infra/database"
)

type ManagerSuite struct {
	suite.Suite
	ctx     context.Context
	repo    *database.InMemorySubmissionRepository
	reports *database.InMemoryReportRepository
	session *fakeSession
	manager *Manager
}

func TestManagerSuite(t *testing.T) {
	suite.Run(t, new(ManagerSuite))
}

func (s *ManagerSuite) SetupTest() {
	s.ctx = context.Background()
	s.repo = database.NewInMemorySubmissionRepository()
	s.reports = database.NewInMemoryReportRepository()
	s.session = newFakeSession()
	s.manager = s.newManager(Config{
		Environment:    filing.EnvironmentStaging,
		DemoMode:       true,
		SubmissionsDir: submissionsDir,
		AcksDir:        acksDir,
	})
}

func (s *ManagerSuite) newManager(cfg Config) *Manager {
	m := NewManager(s.repo, s.reports, builder.New(testFiler()), testMetrics(), cfg, discardLogger())
	m.now = func() time.Time { return fixedNow }
	m.seq.Store(0)
	return m
}

func (s *ManagerSuite) queued() *filing.Submission {
	id := uuid.New()
	s.Require().NoError(s.reports.Put(reportFields(id)))
	sub, err := s.manager.EnqueueReport(s.ctx, id)
	s.Require().NoError(err)
	s.Require().Equal(filing.StatusQueued, sub.Status)
	return sub
}

func (s *ManagerSuite) submitted() *filing.Submission {
	sub := s.queued()
	s.Require().NoError(s.manager.Submit(s.ctx, s.session, sub))
	s.Require().Equal(filing.StatusSubmitted, sub.Status)
	return sub
}

func (s *ManagerSuite) stored(id uuid.UUID) *filing.Submission {
	sub, err := s.repo.GetByID(s.ctx, id)
	s.Require().NoError(err)
	return sub
}

func (s *ManagerSuite) deposit(name, body string) {
	s.session.put(acksDir, name, []byte(body))
}

func (s *ManagerSuite) TestGetOrCreateIsIdempotent() {
	reportID := uuid.New()
	first, err := s.manager.GetOrCreate(s.ctx, reportID)
	s.Require().NoError(err)
	s.Equal(filing.StatusNotStarted, first.Status)
	s.Equal(filing.EnvironmentStaging, first.Environment)

	second, err := s.manager.GetOrCreate(s.ctx, reportID)
	s.Require().NoError(err)
	s.Equal(first.ID, second.ID)
}

func (s *ManagerSuite) TestEnqueue() {
	sub, err := s.manager.GetOrCreate(s.ctx, uuid.New())
	s.Require().NoError(err)
	s.Require().NoError(s.manager.Enqueue(s.ctx, sub))
	s.Equal(filing.StatusQueued, s.stored(sub.ID).Status)

	s.Run("twice is rejected", func() {
		s.ErrorIs(s.manager.Enqueue(s.ctx, sub), filing.ErrInvalidTransition)
	})

	s.Run("not from submitted", func() {
		sub := s.submitted()
		err := s.manager.Enqueue(s.ctx, sub)
		s.ErrorIs(err, filing.ErrInvalidTransition)
		s.Equal(filing.StatusSubmitted, s.stored(sub.ID).Status)
	})
}

func (s *ManagerSuite) TestSubmitPushesDocumentAndStoresSnapshot() {
	sub := s.submitted()

	wantName := builder.Filename("ACME", fixedNow, 1)
	s.Equal(wantName, sub.Filename.String)
	s.Equal(1, sub.Attempts)
	s.Equal(1, s.session.pushes)

	pushed, err := s.session.Fetch(s.ctx, submissionsDir, wantName)
	s.Require().NoError(err)

	stored := s.stored(sub.ID)
	s.Equal(filing.StatusSubmitted, stored.Status)
	s.True(stored.SubmittedAt.Valid)
	s.Equal(codec.Digest(pushed), stored.PayloadSHA256.String)

	snapshot, err := s.manager.Snapshot(stored)
	s.Require().NoError(err)
	s.Equal(pushed, snapshot)
}

func (s *ManagerSuite) TestSubmitRequiresQueued() {
	sub, err := s.manager.GetOrCreate(s.ctx, uuid.New())
	s.Require().NoError(err)
	s.ErrorIs(s.manager.Submit(s.ctx, s.session, sub), filing.ErrInvalidTransition)
	s.Zero(s.session.pushes)
}

func (s *ManagerSuite) TestSubmitUnreachableLeavesQueued() {
	sub := s.queued()
	before := s.stored(sub.ID)
	s.session.pushErr = fmt.Errorf("dial tcp: %w", transport.ErrUnreachable)

	err := s.manager.Submit(s.ctx, s.session, sub)
	s.ErrorIs(err, transport.ErrUnreachable)

	after := s.stored(sub.ID)
	s.Equal(filing.StatusQueued, after.Status)
	s.Equal(before.Attempts, after.Attempts)
	s.Equal(before.Version, after.Version)
	s.False(after.Filename.Valid)
	s.Equal(filing.StatusQueued, sub.Status)

	s.Run("next attempt succeeds", func() {
		s.session.pushErr = nil
		s.Require().NoError(s.manager.Submit(s.ctx, s.session, sub))
		s.Equal(1, s.stored(sub.ID).Attempts)
	})
}

func (s *ManagerSuite) TestSubmitPreflightFailureNeedsReview() {
	id := uuid.New()
	fields := reportFields(id)
	fields.PropertyAddress = nil
	s.Require().NoError(s.reports.Put(fields))
	sub, err := s.manager.EnqueueReport(s.ctx, id)
	s.Require().NoError(err)

	err = s.manager.Submit(s.ctx, s.session, sub)
	var pe *builder.PreflightError
	s.Require().True(errors.As(err, &pe))
	s.True(pe.HasPath("property_address"))

	stored := s.stored(sub.ID)
	s.Equal(filing.StatusNeedsReview, stored.Status)
	s.Contains(stored.ReviewReason.String, "property_address")
	s.Zero(stored.Attempts)
	s.Zero(s.session.pushes)
}

func (s *ManagerSuite) TestPollRequiresSubmitted() {
	fresh, err := s.manager.GetOrCreate(s.ctx, uuid.New())
	s.Require().NoError(err)
	_, err = s.manager.Poll(s.ctx, s.session, fresh)
	s.ErrorIs(err, filing.ErrInvalidTransition)

	queued := s.queued()
	_, err = s.manager.Poll(s.ctx, s.session, queued)
	s.ErrorIs(err, filing.ErrInvalidTransition)
}

func (s *ManagerSuite) TestPollWithoutArtifacts() {
	sub := s.submitted()
	version := s.stored(sub.ID).Version

	for i := 0; i < 2; i++ {
		status, err := s.manager.Poll(s.ctx, s.session, sub)
		s.Require().NoError(err)
		s.Equal(filing.StatusSubmitted, status)
	}
	s.Equal(version, s.stored(sub.ID).Version)
}

func (s *ManagerSuite) TestPollFinalAccepted() {
	sub := s.submitted()
	s.deposit(strings.ToLower(response.FinalName(sub.Filename.String)), `<?xml version="1.0"?>
<EFilingBatchXML><Activity><BSAID>31000123456789</BSAID><ActivityStatus><StatusCode>A</StatusCode></ActivityStatus></Activity></EFilingBatchXML>`)

	status, err := s.manager.Poll(s.ctx, s.session, sub)
	s.Require().NoError(err)
	s.Equal(filing.StatusAccepted, status)

	stored := s.stored(sub.ID)
	s.Equal("31000123456789", stored.ReceiptID.String)
	s.GreaterOrEqual(stored.Attempts, 1)
}

func (s *ManagerSuite) TestPollFinalRejected() {
	sub := s.submitted()
	s.deposit(response.FinalName(sub.Filename.String), `<EFilingBatchXML><Activity>
<ActivityStatus><StatusCode>R</StatusCode></ActivityStatus>
<ActivityErrors><Error><ErrorCode>E101</ErrorCode><ErrorText>Transferee TIN invalid</ErrorText></Error></ActivityErrors>
</Activity></EFilingBatchXML>`)

	status, err := s.manager.Poll(s.ctx, s.session, sub)
	s.Require().NoError(err)
	s.Equal(filing.StatusRejected, status)

	stored := s.stored(sub.ID)
	s.Equal("E101", stored.RejectionCode.String)
	s.Equal("Transferee TIN invalid", stored.RejectionMessage.String)
}

func (s *ManagerSuite) TestPollFinalUnrecognisedCodeNeedsReview() {
	sub := s.submitted()
	s.deposit(response.FinalName(sub.Filename.String), `<EFilingBatchXML><Activity><BSAID>1</BSAID><ActivityStatus><StatusCode>PENDING_MAYBE</StatusCode></ActivityStatus></Activity></EFilingBatchXML>`)

	status, err := s.manager.Poll(s.ctx, s.session, sub)
	s.Require().NoError(err)
	s.Equal(filing.StatusNeedsReview, status)
	s.Contains(s.stored(sub.ID).ReviewReason.String, "PENDING_MAYBE")
}

func (s *ManagerSuite) TestPollFinalWinsOverInterim() {
	sub := s.submitted()
	s.deposit(response.InterimName(sub.Filename.String), `<Messages><Message><StatusCode>ERR</StatusCode><Detail>late</Detail></Message></Messages>`)
	s.deposit(response.FinalName(sub.Filename.String), `<EFilingBatchXML><Activity><BSAID>42</BSAID><ActivityStatus><StatusCode>ACCEPTED</StatusCode></ActivityStatus></Activity></EFilingBatchXML>`)

	status, err := s.manager.Poll(s.ctx, s.session, sub)
	s.Require().NoError(err)
	s.Equal(filing.StatusAccepted, status)
}

func (s *ManagerSuite) TestPollInterim() {
	s.Run("acknowledged keeps waiting", func() {
		sub := s.submitted()
		s.deposit(response.InterimName(sub.Filename.String), fmt.Sprintf(
			`<Messages><Message><FileName>%s</FileName><StatusCode>ACK</StatusCode></Message></Messages>`, sub.Filename.String))

		status, err := s.manager.Poll(s.ctx, s.session, sub)
		s.Require().NoError(err)
		s.Equal(filing.StatusSubmitted, status)
	})

	s.Run("validation error rejects", func() {
		sub := s.submitted()
		s.deposit(response.InterimName(sub.Filename.String), fmt.Sprintf(
			`<Messages><Message><FileName>%s</FileName><StatusCode>VALIDATION_ERROR</StatusCode><Detail>Schema violation at line 4</Detail></Message></Messages>`,
			sub.Filename.String))

		status, err := s.manager.Poll(s.ctx, s.session, sub)
		s.Require().NoError(err)
		s.Equal(filing.StatusRejected, status)
		stored := s.stored(sub.ID)
		s.Equal("VALIDATION_ERROR", stored.RejectionCode.String)
		s.Equal("Schema violation at line 4", stored.RejectionMessage.String)
	})

	s.Run("records for other files are ignored", func() {
		sub := s.submitted()
		s.deposit(response.InterimName(sub.Filename.String),
			`<Messages><Message><FileName>SOMEONEELSE.xml</FileName><StatusCode>ERR</StatusCode></Message></Messages>`)

		status, err := s.manager.Poll(s.ctx, s.session, sub)
		s.Require().NoError(err)
		s.Equal(filing.StatusSubmitted, status)
	})
}

func (s *ManagerSuite) TestPollMalformedArtifactLeavesSubmitted() {
	sub := s.submitted()
	s.deposit(response.FinalName(sub.Filename.String), `<EFilingBatchXML><Activity>`)

	status, err := s.manager.Poll(s.ctx, s.session, sub)
	s.ErrorIs(err, response.ErrResponseParse)
	s.Equal(filing.StatusSubmitted, status)
	s.Equal(filing.StatusSubmitted, s.stored(sub.ID).Status)
}

func (s *ManagerSuite) TestPollTransportErrorLeavesSubmitted() {
	sub := s.submitted()
	s.session.listErr = fmt.Errorf("read: %w", transport.ErrUnreachable)

	status, err := s.manager.Poll(s.ctx, s.session, sub)
	s.ErrorIs(err, transport.ErrUnreachable)
	s.Equal(filing.StatusSubmitted, status)
}

func (s *ManagerSuite) TestDemoOverrideReject() {
	dialer := &fakeDialer{session: s.session}
	sub := s.queued()

	s.Require().NoError(s.manager.DemoOverride(s.ctx, sub, filing.DemoReject, "BAD_FORMAT", "test"))

	stored := s.stored(sub.ID)
	s.Equal(filing.StatusRejected, stored.Status)
	s.Equal("BAD_FORMAT", stored.RejectionCode.String)
	s.Equal("test", stored.RejectionMessage.String)
	s.Equal(string(filing.DemoReject), stored.DemoOutcome.String)
	s.GreaterOrEqual(stored.Attempts, 1)
	s.Zero(dialer.connects)
	s.Zero(s.session.pushes)
}

func (s *ManagerSuite) TestDemoOverrideAccept() {
	sub, err := s.manager.GetOrCreate(s.ctx, uuid.New())
	s.Require().NoError(err)

	s.Require().NoError(s.manager.DemoOverride(s.ctx, sub, filing.DemoAccept, "", ""))
	s.Equal(filing.StatusAccepted, sub.Status)
	s.True(strings.HasPrefix(sub.ReceiptID.String, "DEMO"))
	s.Equal(1, sub.Attempts)
}

func (s *ManagerSuite) TestDemoOverrideIsGated() {
	cases := map[string]Config{
		"demo mode off":          {Environment: filing.EnvironmentStaging},
		"production deployment":  {Environment: filing.EnvironmentStaging, DemoMode: true, Production: true},
		"production environment": {Environment: filing.EnvironmentProduction, DemoMode: true},
	}
	for name, cfg := range cases {
		s.Run(name, func() {
			m := s.newManager(cfg)
			sub, err := m.GetOrCreate(s.ctx, uuid.New())
			s.Require().NoError(err)

			s.ErrorIs(m.DemoOverride(s.ctx, sub, filing.DemoAccept, "", ""), filing.ErrDemoDisabled)
			s.Equal(filing.StatusNotStarted, s.stored(sub.ID).Status)
		})
	}
}

func (s *ManagerSuite) TestRetry() {
	sub := s.submitted()
	s.Require().NoError(s.manager.DemoOverride(s.ctx, sub, filing.DemoReject, "X1", "nope"))

	s.Require().NoError(s.manager.Retry(s.ctx, sub))
	stored := s.stored(sub.ID)
	s.Equal(filing.StatusQueued, stored.Status)
	s.False(stored.RejectionCode.Valid)
	s.False(stored.DemoOutcome.Valid)

	s.Run("accepted is terminal", func() {
		sub := s.submitted()
		s.Require().NoError(s.manager.DemoOverride(s.ctx, sub, filing.DemoAccept, "", ""))
		s.ErrorIs(s.manager.Retry(s.ctx, sub), filing.ErrInvalidTransition)
	})
}

func (s *ManagerSuite) TestStaleHandleIsRefused() {
	sub := s.queued()
	other := s.stored(sub.ID)
	s.Require().NoError(s.manager.Submit(s.ctx, s.session, sub))

	err := s.manager.DemoOverride(s.ctx, other, filing.DemoAccept, "", "")
	s.ErrorIs(err, filing.ErrStaleSubmission)
	s.Equal(filing.StatusSubmitted, s.stored(sub.ID).Status)
}

func (s *ManagerSuite) TestStats() {
	s.queued()
	s.submitted()
	_, err := s.manager.GetOrCreate(s.ctx, uuid.New())
	s.Require().NoError(err)

	stats, err := s.manager.Stats(s.ctx)
	s.Require().NoError(err)
	s.Len(stats, len(filing.AllStatuses))
	s.Equal(1, stats[filing.StatusQueued])
	s.Equal(1, stats[filing.StatusSubmitted])
	s.Equal(1, stats[filing.StatusNotStarted])
	s.Zero(stats[filing.StatusAccepted])
}
