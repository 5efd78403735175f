// internal/infra/database/memory_submission_repository.go
package database

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"rre_filing_agent/internal/domain/filing"
)

// InMemorySubmissionRepository keeps submissions in process memory. Used with
// STORAGE=memory for demo runs and by tests. Values are copied on the way in
// and out so callers never share state with the store.
type InMemorySubmissionRepository struct {
	mu       sync.Mutex
	byID     map[uuid.UUID]*filing.Submission
	byReport map[uuid.UUID]uuid.UUID
	now      func() time.Time
}

func NewInMemorySubmissionRepository() *InMemorySubmissionRepository {
	return &InMemorySubmissionRepository{
		byID:     make(map[uuid.UUID]*filing.Submission),
		byReport: make(map[uuid.UUID]uuid.UUID),
		now:      time.Now,
	}
}

func (r *InMemorySubmissionRepository) Create(_ context.Context, s *filing.Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byReport[s.ReportID]; ok {
		return filing.ErrDuplicateReport
	}
	now := r.now()
	s.Version = 0
	s.CreatedAt, s.UpdatedAt = now, now
	r.byID[s.ID] = s.Clone()
	r.byReport[s.ReportID] = s.ID
	return nil
}

func (r *InMemorySubmissionRepository) GetByID(_ context.Context, id uuid.UUID) (*filing.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[id]
	if !ok {
		return nil, filing.ErrSubmissionNotFound
	}
	return s.Clone(), nil
}

func (r *InMemorySubmissionRepository) GetByReportID(ctx context.Context, reportID uuid.UUID) (*filing.Submission, error) {
	r.mu.Lock()
	id, ok := r.byReport[reportID]
	r.mu.Unlock()
	if !ok {
		return nil, filing.ErrSubmissionNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *InMemorySubmissionRepository) Save(_ context.Context, s *filing.Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.byID[s.ID]
	if !ok {
		return filing.ErrSubmissionNotFound
	}
	if cur.Version != s.Version {
		return filing.ErrStaleSubmission
	}
	s.Version++
	s.UpdatedAt = r.now()

	stored := s.Clone()
	stored.ClaimedBy, stored.ClaimExpiresAt = cur.ClaimedBy, cur.ClaimExpiresAt
	r.byID[s.ID] = stored
	return nil
}

func (r *InMemorySubmissionRepository) ClaimBatch(_ context.Context, statuses []filing.Status, owner string, until time.Time, limit int) ([]*filing.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	want := make(map[filing.Status]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	now := r.now()

	candidates := make([]*filing.Submission, 0)
	for _, s := range r.byID {
		if !want[s.Status] {
			continue
		}
		if s.ClaimExpiresAt.Valid && s.ClaimExpiresAt.Time.After(now) {
			continue
		}
		candidates = append(candidates, s)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].UpdatedAt.Before(candidates[j].UpdatedAt)
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	out := make([]*filing.Submission, 0, len(candidates))
	for _, s := range candidates {
		s.ClaimedBy.String, s.ClaimedBy.Valid = owner, true
		s.ClaimExpiresAt.Time, s.ClaimExpiresAt.Valid = until, true
		out = append(out, s.Clone())
	}
	return out, nil
}

func (r *InMemorySubmissionRepository) Renew(_ context.Context, s *filing.Submission, owner string, until time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.byID[s.ID]
	if !ok {
		return filing.ErrSubmissionNotFound
	}
	if !cur.ClaimedBy.Valid || cur.ClaimedBy.String != owner || cur.Version != s.Version {
		return fmt.Errorf("submission %s: %w", s.ID, filing.ErrClaimLost)
	}
	cur.ClaimExpiresAt.Time, cur.ClaimExpiresAt.Valid = until, true
	s.ClaimExpiresAt = cur.ClaimExpiresAt
	return nil
}

func (r *InMemorySubmissionRepository) Release(_ context.Context, id uuid.UUID, owner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.byID[id]; ok && s.ClaimedBy.Valid && s.ClaimedBy.String == owner {
		s.ClaimedBy.Valid = false
		s.ClaimExpiresAt.Valid = false
	}
	return nil
}

func (r *InMemorySubmissionRepository) CountByStatus(_ context.Context) (map[filing.Status]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := make(map[filing.Status]int, len(filing.AllStatuses))
	for _, s := range r.byID {
		counts[s.Status]++
	}
	return counts, nil
}
