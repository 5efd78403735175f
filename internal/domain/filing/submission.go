// internal/domain/filing/submission.go
package filing

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Environment is the receiving-system environment a submission targets.
type Environment string

const (
	EnvironmentStaging    Environment = "staging"
	EnvironmentProduction Environment = "production"
)

// Status is the lifecycle status of a FilingSubmission.
type Status string

const (
	StatusNotStarted  Status = "not_started"
	StatusQueued      Status = "queued"
	StatusSubmitted   Status = "submitted"
	StatusAccepted    Status = "accepted"
	StatusRejected    Status = "rejected"
	StatusNeedsReview Status = "needs_review"
)

// AllStatuses lists every status in lifecycle order. Used for stats output.
var AllStatuses = []Status{
	StatusNotStarted,
	StatusQueued,
	StatusSubmitted,
	StatusAccepted,
	StatusRejected,
	StatusNeedsReview,
}

// Terminal reports whether no automatic transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected || s == StatusNeedsReview
}

// DemoOutcome is a forced terminal outcome used only outside production.
type DemoOutcome string

const (
	DemoAccept      DemoOutcome = "accept"
	DemoReject      DemoOutcome = "reject"
	DemoNeedsReview DemoOutcome = "needs_review"
)

// Submission is the filing state of one report. Exactly one exists per report.
// Corresponds to the 'filing_submissions' table.
type Submission struct {
	ID          uuid.UUID
	ReportID    uuid.UUID // unique
	Environment Environment
	Status      Status

	ReceiptID        sql.NullString // set iff Status == accepted
	RejectionCode    sql.NullString // set iff Status == rejected
	RejectionMessage sql.NullString // set iff Status == rejected
	ReviewReason     sql.NullString // set iff Status == needs_review

	DemoOutcome          sql.NullString
	DemoRejectionCode    sql.NullString
	DemoRejectionMessage sql.NullString

	Filename        sql.NullString // remote filename of the last successful push
	PayloadSnapshot sql.NullString // gzip+base64 of the submitted document
	PayloadSHA256   sql.NullString
	Attempts        int
	LastError       sql.NullString
	SubmittedAt     sql.NullTime

	Version        int64 // compare-and-swap token, bumped on every save
	ClaimedBy      sql.NullString
	ClaimExpiresAt sql.NullTime

	CreatedAt time.Time
	UpdatedAt time.Time
}

// New returns a not-yet-persisted submission in not_started state.
func New(reportID uuid.UUID, env Environment) *Submission {
	return &Submission{
		ID:          uuid.New(),
		ReportID:    reportID,
		Environment: env,
		Status:      StatusNotStarted,
	}
}

// Clone returns a copy that can be mutated without affecting s.
func (s *Submission) Clone() *Submission {
	c := *s
	return &c
}

// clearOutcome drops every field whose presence is tied to a terminal status,
// and the diagnostic of the previous try.
func (s *Submission) clearOutcome() {
	s.LastError = sql.NullString{}
	s.ReceiptID = sql.NullString{}
	s.RejectionCode = sql.NullString{}
	s.RejectionMessage = sql.NullString{}
	s.ReviewReason = sql.NullString{}
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: true}
}

// optString is valid only for non-empty values.
func optString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
