// internal/infra/database/postgres_report_repository.go
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"rre_filing_agent/internal/domain/report"
)

// PostgresReportRepository reads the normalised field set the reporting
// application stores as JSON on real_estate_reports.filing_fields.
type PostgresReportRepository struct {
	db *sql.DB
}

func NewPostgresReportRepository(db *sql.DB) *PostgresReportRepository {
	return &PostgresReportRepository{db: db}
}

func (r *PostgresReportRepository) GetFields(ctx context.Context, reportID uuid.UUID) (*report.Fields, error) {
	query := `SELECT filing_fields FROM real_estate_reports WHERE id = $1`
	var raw []byte
	err := r.db.QueryRowContext(ctx, query, reportID).Scan(&raw)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, report.ErrReportNotFound
		}
		return nil, fmt.Errorf("error getting report fields: %w", err)
	}
	return decodeFields(reportID, raw)
}

func decodeFields(reportID uuid.UUID, raw []byte) (*report.Fields, error) {
	fields := &report.Fields{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, fields); err != nil {
			return nil, fmt.Errorf("error decoding report %s fields: %w", reportID, err)
		}
	}
	fields.ReportID = reportID
	return fields, nil
}
