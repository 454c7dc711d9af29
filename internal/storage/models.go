package storage

import (
	"time"

	"bank-reconciliation-service/internal/models"
)

const (
	// PageSize is the number of reports returned per page
	PageSize = 10
	// MaxNameLength is the longest report name accepted, in characters
	MaxNameLength = 100
)

// SavedReport is a reconciliation report persisted under a name
type SavedReport struct {
	ID        string                       `json:"id"`
	Name      string                       `json:"name"`
	CreatedAt time.Time                    `json:"created_at"`
	Report    *models.ReconciliationReport `json:"report"`
}

// ReportListItem is the listing view of a saved report
type ReportListItem struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"created_at"`
	MatchedCount int       `json:"matched_count"`
	AnomalyCount int       `json:"anomaly_count"`
}

// ReportPage contains paginated report results
type ReportPage struct {
	Reports    []ReportListItem `json:"reports"`
	Page       int              `json:"page"`
	PageSize   int              `json:"page_size"`
	TotalPages int              `json:"total_pages"`
	Total      int              `json:"total"`
}
