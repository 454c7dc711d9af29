// Package storage persists named reconciliation reports in SQLite.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/pkg/errors"
	"bank-reconciliation-service/pkg/logger"
)

// Storage provides SQLite database access for saved reports.
// It implements the Repository interface.
type Storage struct {
	db     *sql.DB
	logger logger.Logger
	now    func() time.Time
}

// Compile-time check that Storage implements Repository
var _ Repository = (*Storage)(nil)

// NewStorage opens (creating if needed) the database at dbPath and applies
// pending migrations
func NewStorage(ctx context.Context, dbPath string, log logger.Logger) (*Storage, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	if dbPath != ":memory:" {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, errors.FileError(errors.CodeFilePermission, dir, err)
			}
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "open database", err)
	}
	// one connection keeps :memory: databases intact and serializes writers
	db.SetMaxOpenConns(1)

	s := &Storage{
		db:     db,
		logger: log.WithComponent("storage"),
		now:    func() time.Time { return time.Now().UTC() },
	}

	if err := s.runMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, errors.StorageError(errors.CodeQueryFailed, "migrate database", err).
			WithContext("path", dbPath)
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// Save stores report under name. The name is trimmed and must hold between
// 1 and MaxNameLength characters.
func (s *Storage) Save(ctx context.Context, name string, report *models.ReconciliationReport) (*SavedReport, error) {
	name = strings.TrimSpace(name)
	if err := validateName(name); err != nil {
		return nil, errors.StorageError(errors.CodeInvalidRecord, "save report", err).
			WithSuggestion("provide a report name of at most 100 characters")
	}
	if report == nil {
		return nil, errors.StorageError(errors.CodeInvalidRecord, "save report",
			fmt.Errorf("report data is required"))
	}

	reportJSON, err := json.Marshal(report)
	if err != nil {
		return nil, errors.StorageError(errors.CodeInvalidRecord, "save report", err)
	}

	saved := &SavedReport{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: s.now(),
		Report:    report,
	}

	query := `
	INSERT INTO reports (id, name, created_at, report_json, matched_count, anomaly_count)
	VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		saved.ID,
		saved.Name,
		saved.CreatedAt,
		string(reportJSON),
		report.Summary.MatchedCount,
		report.Summary.AnomalyCount,
	)
	if err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "save report", err)
	}

	s.logger.WithFields(logger.Fields{"id": saved.ID, "name": saved.Name}).Info("Report saved")
	return saved, nil
}

// List returns page (1-based) of saved reports, newest first. Pages below 1
// are treated as the first page.
func (s *Storage) List(ctx context.Context, page int) (*ReportPage, error) {
	if page < 1 {
		page = 1
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reports`).Scan(&total); err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "list reports", err)
	}

	query := `
	SELECT id, name, created_at, matched_count, anomaly_count
	FROM reports
	ORDER BY created_at DESC, rowid DESC
	LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, PageSize, (page-1)*PageSize)
	if err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "list reports", err)
	}
	defer func() { _ = rows.Close() }()

	items := make([]ReportListItem, 0, PageSize)
	for rows.Next() {
		var item ReportListItem
		if err := rows.Scan(&item.ID, &item.Name, &item.CreatedAt, &item.MatchedCount, &item.AnomalyCount); err != nil {
			return nil, errors.StorageError(errors.CodeQueryFailed, "list reports", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "list reports", err)
	}

	return &ReportPage{
		Reports:    items,
		Page:       page,
		PageSize:   PageSize,
		TotalPages: (total + PageSize - 1) / PageSize,
		Total:      total,
	}, nil
}

// Get retrieves a saved report by id
func (s *Storage) Get(ctx context.Context, id string) (*SavedReport, error) {
	query := `SELECT id, name, created_at, report_json FROM reports WHERE id = ?`

	saved := &SavedReport{}
	var reportJSON string
	err := s.db.QueryRowContext(ctx, query, id).Scan(&saved.ID, &saved.Name, &saved.CreatedAt, &reportJSON)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.StorageError(errors.CodeNotFound, "get report", err).WithContext("id", id)
	}
	if err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "get report", err).WithContext("id", id)
	}

	saved.Report = &models.ReconciliationReport{}
	if err := json.Unmarshal([]byte(reportJSON), saved.Report); err != nil {
		return nil, errors.StorageError(errors.CodeInvalidRecord, "get report", err).WithContext("id", id)
	}

	return saved, nil
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("report name is required")
	}
	if n := utf8.RuneCountInString(name); n > MaxNameLength {
		return fmt.Errorf("report name cannot be more than %d characters, got %d", MaxNameLength, n)
	}
	return nil
}
