// internal/app/builder/preflight.go
package builder

import (
	"fmt"
	"strings"
	"unicode"
)

// Issue is one field that failed preflight.
type Issue struct {
	Path   string `json:"field_path"`
	Reason string `json:"reason"`
}

// PreflightError lists every field problem found in a report. A submission that
// fails preflight needs a human to fix the data; retrying will not help.
type PreflightError struct {
	Issues []Issue
}

func (e *PreflightError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		parts = append(parts, is.Path+": "+is.Reason)
	}
	return fmt.Sprintf("preflight failed (%d issues): %s", len(e.Issues), strings.Join(parts, "; "))
}

// HasPath reports whether any issue was raised for path.
func (e *PreflightError) HasPath(path string) bool {
	for _, is := range e.Issues {
		if is.Path == path {
			return true
		}
	}
	return false
}

var placeholders = []string{"UNKNOWN", "TBD", "N/A"}

type preflight struct {
	issues []Issue
}

func (p *preflight) add(path, reason string) {
	p.issues = append(p.issues, Issue{Path: path, Reason: reason})
}

func (p *preflight) err() error {
	if len(p.issues) == 0 {
		return nil
	}
	return &PreflightError{Issues: p.issues}
}

// text trims v and checks it for placeholder values. Empty required values are reported.
func (p *preflight) text(path, v string, required bool) string {
	v = strings.TrimSpace(v)
	if v == "" {
		if required {
			p.add(path, "required")
		}
		return ""
	}
	upper := strings.ToUpper(v)
	for _, ph := range placeholders {
		if strings.Contains(upper, ph) {
			p.add(path, fmt.Sprintf("contains placeholder value %q", ph))
			return ""
		}
	}
	return v
}

// digits keeps only 0-9 and checks the resulting length against the allowed set.
func (p *preflight) digits(path, v string, required bool, lengths ...int) string {
	v = p.text(path, v, required)
	if v == "" {
		return ""
	}
	d := onlyDigits(v)
	for _, n := range lengths {
		if len(d) == n {
			return d
		}
	}
	p.add(path, fmt.Sprintf("expected %s digits, got %d", joinInts(lengths), len(d)))
	return ""
}

func (p *preflight) phone(path, v string) string {
	v = p.text(path, v, false)
	if v == "" {
		return ""
	}
	d := onlyDigits(v)
	if len(d) < 10 || len(d) > 15 {
		p.add(path, fmt.Sprintf("expected 10-15 digits, got %d", len(d)))
		return ""
	}
	return d
}

func (p *preflight) country(path, v string) string {
	v = p.text(path, v, true)
	if v == "" {
		return ""
	}
	code, ok := CountryCode(v)
	if !ok {
		p.add(path, fmt.Sprintf("unrecognised country %q", v))
		return ""
	}
	return code
}

func onlyDigits(v string) string {
	var b strings.Builder
	for _, r := range v {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func alphanumeric(v string) string {
	var b strings.Builder
	for _, r := range v {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func joinInts(ns []int) string {
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = fmt.Sprint(n)
	}
	return strings.Join(parts, " or ")
}
