// internal/app/response/final.go
package response

import (
	"fmt"

	"rre_filing_agent/internal/domain/filing"
)

// Outcome is the adjudication carried by a final artifact. Status is one of
// accepted, rejected or needs_review.
type Outcome struct {
	Status           filing.Status
	ReceiptID        string
	RejectionCode    string
	RejectionMessage string
	ReviewReason     string
	RawCode          string
}

type finalDoc struct {
	StatusCode string          `xml:"StatusCode"`
	BSAID      string          `xml:"BSAID"`
	ErrorCode  string          `xml:"ErrorCode"`
	Message    string          `xml:"Message"`
	Activities []finalActivity `xml:"Activity"`
}

type finalActivity struct {
	BSAID      string       `xml:"BSAID"`
	ReceiptID  string       `xml:"ReceiptID"`
	StatusCode string       `xml:"ActivityStatus>StatusCode"`
	ErrorCode  string       `xml:"ActivityStatus>ErrorCode"`
	Message    string       `xml:"ActivityStatus>Message"`
	Errors     []finalError `xml:"ActivityErrors>Error"`
}

type finalError struct {
	Code string `xml:"ErrorCode"`
	Text string `xml:"ErrorText"`
}

// ParseFinal reads a final adjudication artifact. Malformed XML is
// ErrResponseParse; well-formed documents whose outcome cannot be classified
// with certainty come back as needs_review, never accepted or rejected.
func ParseFinal(data []byte) (*Outcome, error) {
	var doc finalDoc
	if err := decode(data, &doc); err != nil {
		return nil, err
	}

	activities := doc.Activities
	if len(activities) == 0 {
		activities = []finalActivity{{
			BSAID:      doc.BSAID,
			StatusCode: doc.StatusCode,
			ErrorCode:  doc.ErrorCode,
			Message:    doc.Message,
		}}
	}

	var result *Outcome
	for i, act := range activities {
		o := classify(act)
		if result == nil {
			result = o
			continue
		}
		if o.Status != result.Status {
			return review(result.RawCode, fmt.Sprintf("activities disagree: activity 1 is %s, activity %d is %s", result.Status, i+1, o.Status)), nil
		}
	}
	return result, nil
}

func classify(act finalActivity) *Outcome {
	raw := firstNonEmpty(act.StatusCode)
	switch normCode(raw) {
	case "A", "ACCEPTED", "ACCEPT", "ACKED", "SUCCESS":
		receipt := firstNonEmpty(act.BSAID, act.ReceiptID)
		if receipt == "" {
			return review(raw, "accepted without a receipt identifier")
		}
		return &Outcome{Status: filing.StatusAccepted, ReceiptID: receipt, RawCode: raw}
	case "R", "REJECTED", "REJECT", "FAILED", "E", "ERROR":
		var errCode, errText string
		if len(act.Errors) > 0 {
			errCode, errText = act.Errors[0].Code, act.Errors[0].Text
		}
		return &Outcome{
			Status:           filing.StatusRejected,
			RejectionCode:    firstNonEmpty(act.ErrorCode, errCode, raw),
			RejectionMessage: firstNonEmpty(act.Message, errText),
			RawCode:          raw,
		}
	case "":
		return review(raw, "no outcome code present")
	default:
		return review(raw, fmt.Sprintf("unrecognised outcome code %q", raw))
	}
}

func review(raw, reason string) *Outcome {
	return &Outcome{Status: filing.StatusNeedsReview, ReviewReason: reason, RawCode: raw}
}
