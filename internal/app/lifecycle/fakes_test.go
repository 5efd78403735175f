package lifecycle

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"rre_filing_agent/internal/app/builder"
	"rre_filing_agent/internal/domain/report"
	"rre_filing_agent/internal/domain/transport"
	"rre_filing_agent/internal/infra/metrics"
)

const (
	submissionsDir = "/submissions"
	acksDir        = "/acks"
)

type fakeSession struct {
	mu       sync.Mutex
	files    map[string]map[string][]byte
	pushErr  error
	listErr  error
	fetchErr error
	pushes   int
	closed   bool
	// onPush runs before each push is stored.
	onPush func()
}

func newFakeSession() *fakeSession {
	return &fakeSession{files: make(map[string]map[string][]byte)}
}

func (f *fakeSession) put(dir, name string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.files[dir] == nil {
		f.files[dir] = make(map[string][]byte)
	}
	f.files[dir][name] = data
}

func (f *fakeSession) Push(_ context.Context, dir, name string, data []byte) error {
	if f.pushErr != nil {
		return f.pushErr
	}
	if f.onPush != nil {
		f.onPush()
	}
	f.put(dir, name, append([]byte(nil), data...))
	f.mu.Lock()
	f.pushes++
	f.mu.Unlock()
	return nil
}

func (f *fakeSession) List(_ context.Context, dir string) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.files[dir]))
	for name := range f.files[dir] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (f *fakeSession) Fetch(_ context.Context, dir, name string) ([]byte, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[dir][name]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", dir, name, transport.ErrNotFound)
	}
	return data, nil
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

type fakeDialer struct {
	session    *fakeSession
	connectErr error
	connects   int
}

func (d *fakeDialer) Connect(context.Context) (transport.Session, error) {
	d.connects++
	if d.connectErr != nil {
		return nil, d.connectErr
	}
	return d.session, nil
}

func (d *fakeDialer) Ping(context.Context) transport.PingResult {
	return transport.PingResult{OK: d.connectErr == nil, ErrorKind: transport.Kind(d.connectErr)}
}

type recordingAlerter struct {
	mu     sync.Mutex
	alerts []string
}

func (a *recordingAlerter) Alert(_ context.Context, text string) error {
	a.mu.Lock()
	a.alerts = append(a.alerts, text)
	a.mu.Unlock()
	return nil
}

func discardLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func testMetrics() *metrics.Metrics {
	return metrics.New(prometheus.NewRegistry())
}

func testFiler() builder.Filer {
	return builder.Filer{OrgCode: "ACME", TIN: "12-3456789", Name: "Acme Title LLC"}
}

var fixedNow = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

func reportFields(id uuid.UUID) *report.Fields {
	dob := time.Date(1980, 1, 2, 0, 0, 0, 0, time.UTC)
	return &report.Fields{
		ReportID: id,
		PropertyAddress: &report.Address{
			Street: "100 Main St", City: "Springfield", State: "IL", ZIP: "62701", Country: "US",
		},
		ClosingDate:   time.Date(2026, 2, 27, 0, 0, 0, 0, time.UTC),
		PurchasePrice: 45000000,
		Transferees: []report.Party{{
			Kind:       report.PartyEntity,
			EntityName: "Maple Holdings LLC",
			TIN:        "98-7654321",
			Address:    &report.Address{Street: "1 Oak Ave", City: "Chicago", State: "IL", ZIP: "60601", Country: "US"},
		}},
		Transferors: []report.Party{{
			Kind:      report.PartyIndividual,
			FirstName: "Jane",
			LastName:  "Doe",
			TIN:       "123-45-6789",
			Address:   &report.Address{Street: "9 Elm Rd", City: "Peoria", State: "IL", ZIP: "61602", Country: "US"},
		}},
		BeneficialOwners: []report.BeneficialOwner{{
			FirstName:   "John",
			LastName:    "Roe",
			BirthDate:   &dob,
			TIN:         "111223333",
			Citizenship: "US",
			Address:     &report.Address{Street: "1 Oak Ave", City: "Chicago", State: "IL", ZIP: "60601", Country: "US"},
		}},
	}
}
