package httpapi

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"rre_filing_agent/internal/domain/filing"
)

// submissionView is the JSON shape of a FilingSubmission. The snapshot itself
// is served separately by the document route.
type submissionView struct {
	ID               uuid.UUID  `json:"id"`
	ReportID         uuid.UUID  `json:"report_id"`
	Environment      string     `json:"environment"`
	Status           string     `json:"status"`
	Attempts         int        `json:"attempts"`
	ReceiptID        string     `json:"receipt_id,omitempty"`
	RejectionCode    string     `json:"rejection_code,omitempty"`
	RejectionMessage string     `json:"rejection_message,omitempty"`
	ReviewReason     string     `json:"review_reason,omitempty"`
	DemoOutcome      string     `json:"demo_outcome,omitempty"`
	Filename         string     `json:"filename,omitempty"`
	PayloadSHA256    string     `json:"payload_sha256,omitempty"`
	SubmittedAt      *time.Time `json:"submitted_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func newSubmissionView(s *filing.Submission) submissionView {
	v := submissionView{
		ID:               s.ID,
		ReportID:         s.ReportID,
		Environment:      string(s.Environment),
		Status:           string(s.Status),
		Attempts:         s.Attempts,
		ReceiptID:        str(s.ReceiptID),
		RejectionCode:    str(s.RejectionCode),
		RejectionMessage: str(s.RejectionMessage),
		ReviewReason:     str(s.ReviewReason),
		DemoOutcome:      str(s.DemoOutcome),
		Filename:         str(s.Filename),
		PayloadSHA256:    str(s.PayloadSHA256),
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
	}
	if s.SubmittedAt.Valid {
		t := s.SubmittedAt.Time
		v.SubmittedAt = &t
	}
	return v
}

func str(ns sql.NullString) string {
	if !ns.Valid {
		return ""
	}
	return ns.String
}
