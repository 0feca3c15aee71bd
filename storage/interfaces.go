package storage

import (
	"context"

	"job-market-etl/models"
)

// TableWriter is the interface any sink for the relational output must
// satisfy. Write replaces whatever a previous run stored.
type TableWriter interface {
	Write(ctx context.Context, tables *models.Tables) error
	WriteReport(ctx context.Context, report *models.QualityReport) error
	Close() error
}

var (
	_ TableWriter = (*CSVWriter)(nil)
	_ TableWriter = (*SQLWriter)(nil)
)
