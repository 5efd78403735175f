// internal/domain/transport/client.go
package transport

import (
	"context"
	"errors"
)

var (
	// ErrAuth means the endpoint refused the credentials. Fatal for a run.
	ErrAuth = errors.New("transport authentication failed")
	// ErrUnreachable covers network, host and timeout failures. Retry later.
	ErrUnreachable = errors.New("transport endpoint unreachable")
	// ErrNotFound is returned by Fetch for a missing file. Expected while a
	// response has not been deposited yet.
	ErrNotFound = errors.New("remote file not found")
)

// Session is an authenticated connection to the remote file-drop endpoint.
// Implementations must be safe for concurrent use by one batch run.
type Session interface {
	Push(ctx context.Context, remoteDir, filename string, data []byte) error
	// List returns file names in remoteDir in no particular order.
	List(ctx context.Context, remoteDir string) ([]string, error)
	Fetch(ctx context.Context, remoteDir, filename string) ([]byte, error)
	Close() error
}

// Dialer opens sessions with the credentials it was configured with.
type Dialer interface {
	Connect(ctx context.Context) (Session, error)
	// Ping never returns an error; failures are described in the result.
	Ping(ctx context.Context) PingResult
}

// DirListing summarises one remote directory for health checks.
type DirListing struct {
	Path   string   `json:"path"`
	Count  int      `json:"count"`
	Sample []string `json:"sample"`
	Error  string   `json:"error,omitempty"`
}

// PingResult is the structured outcome of a connectivity self-test.
type PingResult struct {
	OK          bool       `json:"ok"`
	Host        string     `json:"host"`
	LatencyMS   int64      `json:"latency_ms"`
	ErrorKind   string     `json:"error_kind,omitempty"`
	Error       string     `json:"error,omitempty"`
	Submissions DirListing `json:"submissions"`
	Acks        DirListing `json:"acks"`
}

// Kind names the taxonomy bucket of a transport error, for logs and metrics.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrUnreachable):
		return "unreachable"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "other"
	}
}
