// internal/domain/filing/transition.go
package filing

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidTransition  = errors.New("invalid filing status transition")
	ErrSubmissionNotFound = errors.New("filing submission not found")
	ErrStaleSubmission    = errors.New("filing submission was modified concurrently")
	ErrDemoDisabled       = errors.New("demo outcome override is disabled in this configuration")
	ErrDuplicateReport    = errors.New("filing submission already exists for report")
	ErrClaimLost          = errors.New("filing submission claim is no longer held")
)

// maxLastErrorLen caps the stored diagnostic text.
const maxLastErrorLen = 1000

// TransitionError describes a rejected state change. It matches ErrInvalidTransition.
type TransitionError struct {
	Op   string
	From Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: not allowed from status %q", e.Op, e.From)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// allowed maps each status to the statuses it may move to.
var allowed = map[Status][]Status{
	StatusNotStarted:  {StatusQueued, StatusAccepted, StatusRejected, StatusNeedsReview},
	StatusQueued:      {StatusSubmitted, StatusNeedsReview, StatusAccepted, StatusRejected},
	StatusSubmitted:   {StatusAccepted, StatusRejected, StatusNeedsReview},
	StatusRejected:    {StatusQueued},
	StatusNeedsReview: {StatusQueued},
	StatusAccepted:    {},
}

// CanTransition reports whether the lifecycle permits from -> to.
// Transitions out of not_started/queued straight to a terminal state are only
// reachable through the demo override and preflight paths, which check
// their own preconditions.
func CanTransition(from, to Status) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}

func requireStatus(op string, s *Submission, from ...Status) error {
	for _, f := range from {
		if s.Status == f {
			return nil
		}
	}
	return &TransitionError{Op: op, From: s.Status}
}

// Enqueue moves a fresh or rejected submission to queued.
func (s *Submission) Enqueue() error {
	if err := requireStatus("enqueue", s, StatusNotStarted, StatusRejected); err != nil {
		return err
	}
	s.clearOutcome()
	s.clearDemo()
	s.Status = StatusQueued
	return nil
}

// Retry is the explicit human re-queue of a rejected or needs-review submission.
func (s *Submission) Retry() error {
	if err := requireStatus("retry", s, StatusRejected, StatusNeedsReview); err != nil {
		return err
	}
	s.clearOutcome()
	s.clearDemo()
	s.Status = StatusQueued
	return nil
}

// MarkSubmitted records a completed push. Attempts only grow here and in ApplyDemo.
func (s *Submission) MarkSubmitted(filename, snapshot, sha string, at time.Time) error {
	if err := requireStatus("submit", s, StatusQueued); err != nil {
		return err
	}
	s.Filename = nullString(filename)
	s.PayloadSnapshot = nullString(snapshot)
	s.PayloadSHA256 = nullString(sha)
	s.Attempts++
	s.SubmittedAt.Time, s.SubmittedAt.Valid = at, true
	s.LastError = sql.NullString{}
	s.Status = StatusSubmitted
	return nil
}

// Accept records terminal acceptance with the receiving system's receipt id.
func (s *Submission) Accept(receiptID string) error {
	if err := requireStatus("accept", s, StatusSubmitted); err != nil {
		return err
	}
	if strings.TrimSpace(receiptID) == "" {
		return fmt.Errorf("accept: empty receipt id: %w", ErrInvalidTransition)
	}
	s.clearOutcome()
	s.ReceiptID = nullString(receiptID)
	s.Status = StatusAccepted
	return nil
}

// Reject records terminal rejection. An empty code is stored as "UNSPECIFIED".
func (s *Submission) Reject(code, message string) error {
	if err := requireStatus("reject", s, StatusSubmitted); err != nil {
		return err
	}
	s.setRejected(code, message)
	return nil
}

// FlagForReview parks the submission until a human acts on it.
func (s *Submission) FlagForReview(reason string) error {
	if err := requireStatus("flag_for_review", s, StatusQueued, StatusSubmitted); err != nil {
		return err
	}
	s.clearOutcome()
	s.ReviewReason = nullString(reason)
	s.Status = StatusNeedsReview
	return nil
}

// NoteFailure records why the last try did not get through. Status and attempts
// are left alone; the next scheduled run tries again.
func (s *Submission) NoteFailure(reason string) error {
	if err := requireStatus("note_failure", s, StatusQueued, StatusSubmitted); err != nil {
		return err
	}
	if r := []rune(reason); len(r) > maxLastErrorLen {
		reason = string(r[:maxLastErrorLen])
	}
	s.LastError = optString(reason)
	return nil
}

// ApplyDemo forces a terminal outcome without a transport round trip.
// Callers are responsible for gating this to non-production configurations.
func (s *Submission) ApplyDemo(outcome DemoOutcome, code, message, receiptID string) error {
	if err := requireStatus("demo_override", s, StatusNotStarted, StatusQueued, StatusSubmitted); err != nil {
		return err
	}
	switch outcome {
	case DemoAccept, DemoReject, DemoNeedsReview:
	default:
		return fmt.Errorf("demo_override: unknown outcome %q: %w", outcome, ErrInvalidTransition)
	}
	s.DemoOutcome = nullString(string(outcome))
	s.DemoRejectionCode = optString(code)
	s.DemoRejectionMessage = optString(message)

	// accepted/rejected always carry at least one attempt
	if s.Attempts == 0 {
		s.Attempts = 1
	}
	switch outcome {
	case DemoAccept:
		s.clearOutcome()
		s.ReceiptID = nullString(receiptID)
		s.Status = StatusAccepted
	case DemoReject:
		s.setRejected(code, message)
	case DemoNeedsReview:
		s.clearOutcome()
		s.ReviewReason = nullString("demo override: " + message)
		s.Status = StatusNeedsReview
	}
	return nil
}

func (s *Submission) clearDemo() {
	s.DemoOutcome = optString("")
	s.DemoRejectionCode = optString("")
	s.DemoRejectionMessage = optString("")
}

func (s *Submission) setRejected(code, message string) {
	if strings.TrimSpace(code) == "" {
		code = "UNSPECIFIED"
	}
	s.clearOutcome()
	s.RejectionCode = nullString(code)
	s.RejectionMessage = nullString(message)
	s.Status = StatusRejected
}
