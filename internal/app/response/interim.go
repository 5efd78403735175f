// internal/app/response/interim.go
package response

import (
	"fmt"
	"strings"
)

// InterimClass buckets an interim status code.
type InterimClass string

const (
	InterimAcknowledged    InterimClass = "acknowledged"
	InterimValidationError InterimClass = "validation_error"
	InterimUnknown         InterimClass = "unknown"
)

// InterimRecord is one message about one submission file.
type InterimRecord struct {
	Filename string
	Code     string
	Detail   string
}

// Class maps the record's code to acknowledged, validation_error or unknown.
func (r InterimRecord) Class() InterimClass {
	switch normCode(r.Code) {
	case "ACK", "ACKNOWLEDGED", "RECEIVED", "ACCEPTED", "A", "OK", "SUCCESS":
		return InterimAcknowledged
	case "ERR", "ERROR", "E", "REJ", "REJECTED", "R", "FAILED", "VALIDATION_ERROR", "SCHEMA_ERROR":
		return InterimValidationError
	default:
		return InterimUnknown
	}
}

type interimDoc struct {
	Messages []interimMessage `xml:"Message"`
	Nested   []interimMessage `xml:"Messages>Message"`
	Alt      []interimMessage `xml:"SubmissionMessage"`
}

type interimMessage struct {
	FileName           string `xml:"FileName"`
	SubmissionFileName string `xml:"SubmissionFileName"`
	FileNameAttr       string `xml:"FileName,attr"`
	StatusCode         string `xml:"StatusCode"`
	Code               string `xml:"Code"`
	CodeAttr           string `xml:"StatusCode,attr"`
	Detail             string `xml:"Detail"`
	MessageText        string `xml:"MessageText"`
	Description        string `xml:"Description"`
}

// ParseInterim reads an interim status artifact. Unknown elements are ignored.
// A document without any coded message record is reported as ErrResponseParse.
func ParseInterim(data []byte) ([]InterimRecord, error) {
	var doc interimDoc
	if err := decode(data, &doc); err != nil {
		return nil, err
	}

	all := make([]interimMessage, 0, len(doc.Messages)+len(doc.Nested)+len(doc.Alt))
	all = append(all, doc.Messages...)
	all = append(all, doc.Nested...)
	all = append(all, doc.Alt...)

	records := make([]InterimRecord, 0, len(all))
	for _, m := range all {
		code := firstNonEmpty(m.StatusCode, m.Code, m.CodeAttr)
		if code == "" {
			continue
		}
		records = append(records, InterimRecord{
			Filename: firstNonEmpty(m.FileName, m.SubmissionFileName, m.FileNameAttr),
			Code:     code,
			Detail:   firstNonEmpty(m.Detail, m.MessageText, m.Description),
		})
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no message records", ErrResponseParse)
	}
	return records, nil
}

// ForFile keeps the records addressed to filename (case-insensitive). Records
// without a filename are assumed to concern the file the artifact is named after.
func ForFile(records []InterimRecord, filename string) []InterimRecord {
	var out []InterimRecord
	for _, r := range records {
		if r.Filename == "" || strings.EqualFold(strings.TrimSpace(r.Filename), filename) {
			out = append(out, r)
		}
	}
	return out
}
