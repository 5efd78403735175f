// internal/infra/database/postgres_submission_repository.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq" // For pq.Array and *pq.Error

	"rre_filing_agent/internal/domain/filing"
)

const uniqueViolation = "23505"

const submissionColumns = `id, report_id, environment, status, receipt_id, rejection_code, rejection_message,
       review_reason, demo_outcome, demo_rejection_code, demo_rejection_message, filename,
       payload_snapshot, payload_sha256, attempts, last_error, submitted_at, version,
       claimed_by, claim_expires_at, created_at, updated_at`

type PostgresSubmissionRepository struct {
	db *sql.DB
}

func NewPostgresSubmissionRepository(db *sql.DB) *PostgresSubmissionRepository {
	return &PostgresSubmissionRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row rowScanner) (*filing.Submission, error) {
	s := &filing.Submission{}
	err := row.Scan(
		&s.ID, &s.ReportID, &s.Environment, &s.Status, &s.ReceiptID, &s.RejectionCode, &s.RejectionMessage,
		&s.ReviewReason, &s.DemoOutcome, &s.DemoRejectionCode, &s.DemoRejectionMessage, &s.Filename,
		&s.PayloadSnapshot, &s.PayloadSHA256, &s.Attempts, &s.LastError, &s.SubmittedAt, &s.Version,
		&s.ClaimedBy, &s.ClaimExpiresAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Helper to scan multiple rows
func scanSubmissions(rows *sql.Rows) ([]*filing.Submission, error) {
	subs := make([]*filing.Submission, 0)
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning filing submission row: %w", err)
		}
		subs = append(subs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating filing submission rows: %w", err)
	}
	return subs, nil
}

func (r *PostgresSubmissionRepository) Create(ctx context.Context, s *filing.Submission) error {
	query := `INSERT INTO filing_submissions (id, report_id, environment, status, attempts, version)
               VALUES ($1, $2, $3, $4, $5, 0)
               RETURNING version, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query, s.ID, s.ReportID, s.Environment, s.Status, s.Attempts).
		Scan(&s.Version, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return filing.ErrDuplicateReport
		}
		return fmt.Errorf("error creating filing submission: %w", err)
	}
	return nil
}

func (r *PostgresSubmissionRepository) GetByID(ctx context.Context, id uuid.UUID) (*filing.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM filing_submissions WHERE id = $1`
	s, err := scanSubmission(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, filing.ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("error getting filing submission by ID: %w", err)
	}
	return s, nil
}

func (r *PostgresSubmissionRepository) GetByReportID(ctx context.Context, reportID uuid.UUID) (*filing.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM filing_submissions WHERE report_id = $1`
	s, err := scanSubmission(r.db.QueryRowContext(ctx, query, reportID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, filing.ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("error getting filing submission by report ID: %w", err)
	}
	return s, nil
}

// Save is a compare-and-swap on version. Lease columns are left untouched.
func (r *PostgresSubmissionRepository) Save(ctx context.Context, s *filing.Submission) error {
	query := `UPDATE filing_submissions
               SET status = $1, receipt_id = $2, rejection_code = $3, rejection_message = $4,
                   review_reason = $5, demo_outcome = $6, demo_rejection_code = $7,
                   demo_rejection_message = $8, filename = $9, payload_snapshot = $10,
                   payload_sha256 = $11, attempts = $12, last_error = $13, submitted_at = $14,
                   version = version + 1, updated_at = NOW()
               WHERE id = $15 AND version = $16
               RETURNING version, updated_at`
	err := r.db.QueryRowContext(ctx, query,
		s.Status, s.ReceiptID, s.RejectionCode, s.RejectionMessage,
		s.ReviewReason, s.DemoOutcome, s.DemoRejectionCode,
		s.DemoRejectionMessage, s.Filename, s.PayloadSnapshot,
		s.PayloadSHA256, s.Attempts, s.LastError, s.SubmittedAt,
		s.ID, s.Version,
	).Scan(&s.Version, &s.UpdatedAt)
	if err == nil {
		return nil
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("error saving filing submission: %w", err)
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM filing_submissions WHERE id = $1)`, s.ID).Scan(&exists); err != nil {
		return fmt.Errorf("error checking filing submission existence: %w", err)
	}
	if !exists {
		return filing.ErrSubmissionNotFound
	}
	return fmt.Errorf("submission %s at version %d: %w", s.ID, s.Version, filing.ErrStaleSubmission)
}

// ClaimBatch leases rows with SKIP LOCKED so concurrent pollers never pick the same row.
func (r *PostgresSubmissionRepository) ClaimBatch(ctx context.Context, statuses []filing.Status, owner string, until time.Time, limit int) ([]*filing.Submission, error) {
	if len(statuses) == 0 || limit <= 0 {
		return nil, nil
	}
	keys := make([]string, len(statuses))
	for i, st := range statuses {
		keys[i] = string(st)
	}

	query := `UPDATE filing_submissions
               SET claimed_by = $1, claim_expires_at = $2
               WHERE id IN (
                   SELECT id FROM filing_submissions
                   WHERE status = ANY($3::varchar[])
                     AND (claim_expires_at IS NULL OR claim_expires_at < NOW())
                   ORDER BY updated_at ASC
                   LIMIT $4
                   FOR UPDATE SKIP LOCKED)
               RETURNING ` + submissionColumns
	rows, err := r.db.QueryContext(ctx, query, owner, until, pq.Array(keys), limit)
	if err != nil {
		return nil, fmt.Errorf("error claiming filing submissions: %w", err)
	}
	defer rows.Close()
	return scanSubmissions(rows)
}

// Renew extends a lease only while the row is still ours and unchanged. Row
// locking makes it mutually exclusive with another runner's ClaimBatch.
func (r *PostgresSubmissionRepository) Renew(ctx context.Context, s *filing.Submission, owner string, until time.Time) error {
	query := `UPDATE filing_submissions SET claim_expires_at = $1
               WHERE id = $2 AND claimed_by = $3 AND version = $4`
	res, err := r.db.ExecContext(ctx, query, until, s.ID, owner, s.Version)
	if err != nil {
		return fmt.Errorf("error renewing filing submission claim: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error renewing filing submission claim: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("submission %s: %w", s.ID, filing.ErrClaimLost)
	}
	s.ClaimExpiresAt = sql.NullTime{Time: until, Valid: true}
	return nil
}

func (r *PostgresSubmissionRepository) Release(ctx context.Context, id uuid.UUID, owner string) error {
	query := `UPDATE filing_submissions SET claimed_by = NULL, claim_expires_at = NULL
               WHERE id = $1 AND claimed_by = $2`
	if _, err := r.db.ExecContext(ctx, query, id, owner); err != nil {
		return fmt.Errorf("error releasing filing submission claim: %w", err)
	}
	return nil
}

func (r *PostgresSubmissionRepository) CountByStatus(ctx context.Context) (map[filing.Status]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM filing_submissions GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("error counting filing submissions: %w", err)
	}
	defer rows.Close()

	counts := make(map[filing.Status]int, len(filing.AllStatuses))
	for rows.Next() {
		var st filing.Status
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, fmt.Errorf("error scanning status count: %w", err)
		}
		counts[st] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating status counts: %w", err)
	}
	return counts, nil
}
