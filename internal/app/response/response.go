// Package response parses the artifacts the receiving system drops in the
// acknowledgments directory: the interim messages file and the final "acked"
// adjudication file.
package response

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/html/charset"
)

var ErrResponseParse = errors.New("malformed response artifact")

const (
	interimSuffix = ".MESSAGES.XML"
	finalSuffix   = ".ACKED"
)

// InterimName is the interim status artifact deposited for a submission file.
func InterimName(submissionFilename string) string {
	return submissionFilename + interimSuffix
}

// FinalName is the final adjudication artifact deposited for a submission file.
func FinalName(submissionFilename string) string {
	return submissionFilename + finalSuffix
}

// Artifacts is the subset of a directory listing that belongs to one submission.
// Empty names mean the artifact is not present yet.
type Artifacts struct {
	Interim string
	Final   string
}

// Match finds the artifacts for submissionFilename in listing. Names are compared
// case-insensitively and the listed spelling is returned.
func Match(listing []string, submissionFilename string) Artifacts {
	var a Artifacts
	wantInterim := strings.ToUpper(InterimName(submissionFilename))
	wantFinal := strings.ToUpper(FinalName(submissionFilename))
	for _, name := range listing {
		switch strings.ToUpper(strings.TrimSpace(name)) {
		case wantInterim:
			a.Interim = name
		case wantFinal:
			a.Final = name
		}
	}
	return a
}

func decode(data []byte, v any) error {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("%w: empty document", ErrResponseParse)
	}
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = charset.NewReaderLabel
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrResponseParse, err)
	}
	return nil
}

// normCode upper-cases a status code and folds separators so "validation-error",
// "Validation Error" and "VALIDATION_ERROR" compare equal.
func normCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	return strings.NewReplacer("-", "_", " ", "_").Replace(code)
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
