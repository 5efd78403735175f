// internal/infra/database/memory_report_repository.go
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"rre_filing_agent/internal/domain/report"
)

// InMemoryReportRepository holds report field sets as JSON documents, the same
// shape the Postgres column uses.
type InMemoryReportRepository struct {
	mu      sync.RWMutex
	reports map[uuid.UUID][]byte
}

func NewInMemoryReportRepository() *InMemoryReportRepository {
	return &InMemoryReportRepository{reports: make(map[uuid.UUID][]byte)}
}

// Put stores fields under fields.ReportID.
func (r *InMemoryReportRepository) Put(fields *report.Fields) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("error encoding report fields: %w", err)
	}
	r.mu.Lock()
	r.reports[fields.ReportID] = raw
	r.mu.Unlock()
	return nil
}

func (r *InMemoryReportRepository) GetFields(_ context.Context, reportID uuid.UUID) (*report.Fields, error) {
	r.mu.RLock()
	raw, ok := r.reports[reportID]
	r.mu.RUnlock()
	if !ok {
		return nil, report.ErrReportNotFound
	}
	return decodeFields(reportID, raw)
}
