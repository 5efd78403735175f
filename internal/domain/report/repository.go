// internal/domain/report/repository.go
package report

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Source reads report field sets owned by the surrounding application.
type Source interface {
	GetFields(ctx context.Context, reportID uuid.UUID) (*Fields, error)
}

var ErrReportNotFound = errors.New("report not found")
