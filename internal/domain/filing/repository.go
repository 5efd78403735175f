// internal/domain/filing/repository.go
package filing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists FilingSubmission rows. Invariants of the lifecycle are
// enforced by the Submission transition methods, not by the store.
type Repository interface {
	// Create inserts s. Returns ErrDuplicateReport if the report already has a submission.
	Create(ctx context.Context, s *Submission) error
	GetByID(ctx context.Context, id uuid.UUID) (*Submission, error)
	GetByReportID(ctx context.Context, reportID uuid.UUID) (*Submission, error)

	// Save writes s if the stored Version still equals s.Version, then bumps
	// s.Version and s.UpdatedAt. Returns ErrStaleSubmission otherwise.
	Save(ctx context.Context, s *Submission) error

	// ClaimBatch leases up to limit submissions in one of statuses whose lease is
	// free or expired. Claimed rows carry owner until the lease expires or Release.
	ClaimBatch(ctx context.Context, statuses []Status, owner string, until time.Time, limit int) ([]*Submission, error)
	// Renew extends the lease on s to until. It fails with ErrClaimLost unless s
	// is still claimed by owner and unchanged since it was read.
	Renew(ctx context.Context, s *Submission, owner string, until time.Time) error
	Release(ctx context.Context, id uuid.UUID, owner string) error

	CountByStatus(ctx context.Context) (map[Status]int, error)
}
