package database

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"rre_filing_agent/internal/domain/filing"
	"rre_filing_agent/internal/domain/report"
)

type SubmissionStoreSuite struct {
	suite.Suite
	store *InMemorySubmissionRepository
	ctx   context.Context
}

func TestSubmissionStoreSuite(t *testing.T) {
	suite.Run(t, new(SubmissionStoreSuite))
}

func (s *SubmissionStoreSuite) SetupTest() {
	s.store = NewInMemorySubmissionRepository()
	s.ctx = context.Background()
}

func (s *SubmissionStoreSuite) create(status filing.Status) *filing.Submission {
	sub := filing.New(uuid.New(), filing.EnvironmentStaging)
	sub.Status = status
	s.Require().NoError(s.store.Create(s.ctx, sub))
	return sub
}

func (s *SubmissionStoreSuite) TestCreateAndLookups() {
	sub := s.create(filing.StatusNotStarted)

	byID, err := s.store.GetByID(s.ctx, sub.ID)
	s.Require().NoError(err)
	s.Equal(sub.ReportID, byID.ReportID)

	byReport, err := s.store.GetByReportID(s.ctx, sub.ReportID)
	s.Require().NoError(err)
	s.Equal(sub.ID, byReport.ID)

	s.Run("one submission per report", func() {
		dup := filing.New(sub.ReportID, filing.EnvironmentStaging)
		s.ErrorIs(s.store.Create(s.ctx, dup), filing.ErrDuplicateReport)
	})

	s.Run("unknown ids", func() {
		_, err := s.store.GetByID(s.ctx, uuid.New())
		s.ErrorIs(err, filing.ErrSubmissionNotFound)
		_, err = s.store.GetByReportID(s.ctx, uuid.New())
		s.ErrorIs(err, filing.ErrSubmissionNotFound)
	})
}

func (s *SubmissionStoreSuite) TestSaveIsCompareAndSwap() {
	sub := s.create(filing.StatusNotStarted)
	stale := sub.Clone()

	s.Require().NoError(sub.Enqueue())
	s.Require().NoError(s.store.Save(s.ctx, sub))
	s.Equal(int64(1), sub.Version)

	s.Require().NoError(stale.Enqueue())
	s.ErrorIs(s.store.Save(s.ctx, stale), filing.ErrStaleSubmission)

	stored, err := s.store.GetByID(s.ctx, sub.ID)
	s.Require().NoError(err)
	s.Equal(filing.StatusQueued, stored.Status)
}

func (s *SubmissionStoreSuite) TestReturnedValuesAreCopies() {
	sub := s.create(filing.StatusNotStarted)
	got, err := s.store.GetByID(s.ctx, sub.ID)
	s.Require().NoError(err)
	got.Status = filing.StatusAccepted

	again, err := s.store.GetByID(s.ctx, sub.ID)
	s.Require().NoError(err)
	s.Equal(filing.StatusNotStarted, again.Status)
}

func (s *SubmissionStoreSuite) TestClaimBatch() {
	queued1 := s.create(filing.StatusQueued)
	queued2 := s.create(filing.StatusQueued)
	s.create(filing.StatusSubmitted)
	until := time.Now().Add(time.Minute)

	first, err := s.store.ClaimBatch(s.ctx, []filing.Status{filing.StatusQueued}, "worker-a", until, 10)
	s.Require().NoError(err)
	s.Len(first, 2)

	s.Run("leased rows are skipped by other owners", func() {
		second, err := s.store.ClaimBatch(s.ctx, []filing.Status{filing.StatusQueued}, "worker-b", until, 10)
		s.Require().NoError(err)
		s.Empty(second)
	})

	s.Run("release makes a row claimable again", func() {
		s.Require().NoError(s.store.Release(s.ctx, queued1.ID, "worker-a"))
		s.Require().NoError(s.store.Release(s.ctx, queued2.ID, "someone-else"))

		third, err := s.store.ClaimBatch(s.ctx, []filing.Status{filing.StatusQueued}, "worker-b", until, 10)
		s.Require().NoError(err)
		s.Require().Len(third, 1)
		s.Equal(queued1.ID, third[0].ID)
	})

	s.Run("expired leases are reclaimable", func() {
		s.store.now = func() time.Time { return until.Add(time.Second) }
		fourth, err := s.store.ClaimBatch(s.ctx, []filing.Status{filing.StatusQueued}, "worker-c", until.Add(time.Hour), 1)
		s.Require().NoError(err)
		s.Len(fourth, 1)
	})
}

func (s *SubmissionStoreSuite) TestSaveKeepsLease() {
	sub := s.create(filing.StatusQueued)
	claimed, err := s.store.ClaimBatch(s.ctx, []filing.Status{filing.StatusQueued}, "worker-a", time.Now().Add(time.Minute), 1)
	s.Require().NoError(err)
	s.Require().Len(claimed, 1)

	plain, err := s.store.GetByID(s.ctx, sub.ID)
	s.Require().NoError(err)
	plain.ClaimedBy.Valid = false
	s.Require().NoError(plain.FlagForReview("manual"))
	s.Require().NoError(s.store.Save(s.ctx, plain))

	stored, err := s.store.GetByID(s.ctx, sub.ID)
	s.Require().NoError(err)
	s.True(stored.ClaimedBy.Valid)
	s.Equal("worker-a", stored.ClaimedBy.String)
}

func (s *SubmissionStoreSuite) TestRenew() {
	sub := s.create(filing.StatusQueued)
	claimed, err := s.store.ClaimBatch(s.ctx, []filing.Status{filing.StatusQueued}, "worker-a", time.Now().Add(time.Millisecond), 1)
	s.Require().NoError(err)
	s.Require().Len(claimed, 1)
	held := claimed[0]

	s.Run("owner extends its lease", func() {
		until := time.Now().Add(time.Hour)
		s.Require().NoError(s.store.Renew(s.ctx, held, "worker-a", until))
		s.Equal(until, held.ClaimExpiresAt.Time)

		again, err := s.store.ClaimBatch(s.ctx, []filing.Status{filing.StatusQueued}, "worker-b", time.Now().Add(time.Hour), 1)
		s.Require().NoError(err)
		s.Empty(again, "a renewed lease is not claimable")
	})

	s.Run("other owners cannot renew", func() {
		s.ErrorIs(s.store.Renew(s.ctx, held, "worker-b", time.Now().Add(time.Hour)), filing.ErrClaimLost)
	})

	s.Run("a changed row cannot be renewed", func() {
		changed, err := s.store.GetByID(s.ctx, sub.ID)
		s.Require().NoError(err)
		s.Require().NoError(changed.FlagForReview("manual"))
		s.Require().NoError(s.store.Save(s.ctx, changed))

		s.ErrorIs(s.store.Renew(s.ctx, held, "worker-a", time.Now().Add(time.Hour)), filing.ErrClaimLost)
	})

	s.Run("a released row cannot be renewed", func() {
		current, err := s.store.GetByID(s.ctx, sub.ID)
		s.Require().NoError(err)
		s.Require().NoError(s.store.Release(s.ctx, sub.ID, "worker-a"))
		s.ErrorIs(s.store.Renew(s.ctx, current, "worker-a", time.Now().Add(time.Hour)), filing.ErrClaimLost)
	})

	s.Run("unknown submission", func() {
		s.ErrorIs(s.store.Renew(s.ctx, filing.New(uuid.New(), filing.EnvironmentStaging), "worker-a", time.Now()), filing.ErrSubmissionNotFound)
	})
}

func (s *SubmissionStoreSuite) TestCountByStatus() {
	s.create(filing.StatusQueued)
	s.create(filing.StatusQueued)
	s.create(filing.StatusAccepted)

	counts, err := s.store.CountByStatus(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, counts[filing.StatusQueued])
	s.Equal(1, counts[filing.StatusAccepted])
	s.Zero(counts[filing.StatusRejected])
}

func TestInMemoryReportRepository(t *testing.T) {
	repo := NewInMemoryReportRepository()
	id := uuid.New()
	fields := &report.Fields{
		ReportID:        id,
		PropertyAddress: &report.Address{Street: "1 Main", City: "X", State: "CA", ZIP: "90001", Country: "US"},
		PurchasePrice:   100,
	}
	if err := repo.Put(fields); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := repo.GetFields(context.Background(), id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ReportID != id || got.PropertyAddress.City != "X" || got.PurchasePrice != 100 {
		t.Fatalf("unexpected fields: %+v", got)
	}

	if _, err := repo.GetFields(context.Background(), uuid.New()); err != report.ErrReportNotFound {
		t.Fatalf("expected ErrReportNotFound, got %v", err)
	}
}
