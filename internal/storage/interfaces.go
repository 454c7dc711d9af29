package storage

import (
	"context"

	"bank-reconciliation-service/internal/models"
)

// Repository defines the report store used by the API and the CLI.
// It allows swapping the SQLite implementation in tests.
type Repository interface {
	// Save stores report under name and returns the stored entry
	Save(ctx context.Context, name string, report *models.ReconciliationReport) (*SavedReport, error)

	// List returns one page of saved reports, newest first
	List(ctx context.Context, page int) (*ReportPage, error)

	// Get retrieves a saved report by id
	Get(ctx context.Context, id string) (*SavedReport, error)

	Close() error
}
