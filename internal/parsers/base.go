// Package parsers reads the two reconciliation datasets from CSV.
//
// Both parsers share BaseParser: a header row is required, header names are
// normalized (trimmed, inner spaces replaced by underscores) and looked up
// case-insensitively, and configured aliases map alternative headers onto
// the standard column names.
//
// A dataset without a header row or without a required column is rejected
// with a MalformedInput error. Rows whose date or amount cannot be parsed are
// skipped and recorded in ParseStats; they never abort a run.
//
// Example usage:
//
//	parser, err := NewBankStatementParser(nil, log)
//	txs, stats, err := parser.ParseFile(ctx, "bank_statement.csv")
//	if stats.HasErrors() {
//		fmt.Print(stats.Errors.FormatForUser())
//	}
package parsers

import (
	"context"
	"encoding/csv"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/pkg/errors"
	"bank-reconciliation-service/pkg/logger"
)

// ParseConfig holds the CSV dialect shared by both parsers
type ParseConfig struct {
	Delimiter        rune
	Comment          rune
	TrimLeadingSpace bool
	SkipEmptyRows    bool
	MaxFieldSize     int
	// MaxErrors caps the row errors kept for reporting; the rest are only counted
	MaxErrors int
}

// DefaultParseConfig returns a configuration with sensible defaults
func DefaultParseConfig() *ParseConfig {
	return &ParseConfig{
		Delimiter:        ',',
		Comment:          0,
		TrimLeadingSpace: true,
		SkipEmptyRows:    true,
		MaxFieldSize:     1000000, // 1MB per field
		MaxErrors:        100,
	}
}

// BaseParser provides common CSV parsing functionality
type BaseParser struct {
	config *ParseConfig
	logger logger.Logger
}

// NewBaseParser creates a new BaseParser with the given configuration
func NewBaseParser(config *ParseConfig, log logger.Logger) *BaseParser {
	if config == nil {
		config = DefaultParseConfig()
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	return &BaseParser{
		config: config,
		logger: log,
	}
}

// ParseContext holds state during parsing operations
type ParseContext struct {
	Source     string
	LineNumber int
	Headers    []string
	HeaderMap  map[string]int
	ctx        context.Context
}

// NewParseContext creates a new parsing context
func NewParseContext(ctx context.Context, source string) *ParseContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &ParseContext{
		Source:    source,
		HeaderMap: make(map[string]int),
		ctx:       ctx,
	}
}

// IsCancelled checks if the parsing context has been cancelled
func (pc *ParseContext) IsCancelled() bool {
	select {
	case <-pc.ctx.Done():
		return true
	default:
		return false
	}
}

// GetColumnIndex returns the index of a column by name, or -1 if not found.
// Lookup is case-insensitive and ignores the difference between spaces and
// underscores.
func (pc *ParseContext) GetColumnIndex(name string) int {
	key := strings.ToLower(models.NormalizeColumnName(name))
	if index, exists := pc.HeaderMap[key]; exists {
		return index
	}
	return -1
}

// OpenFile opens a CSV file for reading
func (bp *BaseParser) OpenFile(filePath string) (*os.File, error) {
	bp.logger.WithField("file_path", filePath).Debug("Opening CSV file")

	file, err := os.Open(filePath)
	if err != nil {
		bp.logger.WithError(err).WithField("file_path", filePath).Error("Failed to open CSV file")

		if os.IsNotExist(err) {
			return nil, errors.FileError(errors.CodeFileNotFound, filePath, err)
		}
		if os.IsPermission(err) {
			return nil, errors.FileError(errors.CodeFilePermission, filePath, err)
		}
		return nil, errors.FileError("", filePath, err)
	}

	return file, nil
}

// NewReader wraps r in a csv.Reader configured with our dialect
func (bp *BaseParser) NewReader(r io.Reader) *csv.Reader {
	reader := csv.NewReader(r)
	reader.Comma = bp.config.Delimiter
	reader.Comment = bp.config.Comment
	reader.TrimLeadingSpace = bp.config.TrimLeadingSpace
	reader.FieldsPerRecord = -1 // Variable number of fields
	reader.ReuseRecord = false
	return reader
}

// ReadHeaders reads the header row, applies aliases and checks that every
// required column is present.
func (bp *BaseParser) ReadHeaders(reader *csv.Reader, parseCtx *ParseContext, required []string, aliases map[string]string) error {
	headers, err := reader.Read()
	if err != nil {
		if stderrors.Is(err, io.EOF) {
			bp.logger.WithField("source", parseCtx.Source).Error("File is empty or contains no header row")
			return errors.MalformedInput(errors.CodeEmptyDataset, parseCtx.Source, "", nil)
		}

		bp.logger.WithError(err).Error("Failed to read header row")
		return errors.MalformedInput(errors.CodeInvalidFormat, parseCtx.Source, "unreadable header row", err)
	}

	parseCtx.LineNumber++
	parseCtx.Headers = bp.cleanHeaders(headers)
	bp.buildHeaderMap(parseCtx, aliases)

	bp.logger.WithFields(logger.Fields{
		"source":  parseCtx.Source,
		"headers": parseCtx.Headers,
	}).Debug("Read CSV headers")

	if missing := bp.findMissingHeaders(parseCtx, required); len(missing) > 0 {
		bp.logger.WithFields(logger.Fields{
			"missing_headers":   missing,
			"available_headers": parseCtx.Headers,
		}).Error("Required headers are missing")

		return errors.MalformedInput(errors.CodeMissingColumn, parseCtx.Source, strings.Join(missing, ", "), nil).
			WithContext("available_columns", parseCtx.Headers)
	}

	return nil
}

// cleanHeaders normalizes header names and strips a UTF-8 byte order mark
func (bp *BaseParser) cleanHeaders(headers []string) []string {
	cleaned := make([]string, len(headers))
	for i, header := range headers {
		if i == 0 {
			header = strings.TrimPrefix(header, "\ufeff")
		}
		cleaned[i] = models.NormalizeColumnName(header)
	}
	return cleaned
}

// buildHeaderMap indexes headers by lower-cased name. The first occurrence of
// a duplicated header wins. An alias only applies when its target column is
// not present under its own name.
func (bp *BaseParser) buildHeaderMap(parseCtx *ParseContext, aliases map[string]string) {
	parseCtx.HeaderMap = make(map[string]int, len(parseCtx.Headers))
	for i, header := range parseCtx.Headers {
		key := strings.ToLower(header)
		if _, exists := parseCtx.HeaderMap[key]; !exists {
			parseCtx.HeaderMap[key] = i
		}
	}

	names := make([]string, 0, len(aliases))
	for name := range aliases {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		target := strings.ToLower(models.NormalizeColumnName(aliases[name]))
		if _, exists := parseCtx.HeaderMap[target]; exists {
			continue
		}
		if index := parseCtx.GetColumnIndex(name); index >= 0 {
			parseCtx.HeaderMap[target] = index
		}
	}
}

// findMissingHeaders returns a list of required headers that are not present
func (bp *BaseParser) findMissingHeaders(parseCtx *ParseContext, required []string) []string {
	var missing []string
	for _, header := range required {
		if parseCtx.GetColumnIndex(header) == -1 {
			missing = append(missing, header)
		}
	}
	return missing
}

// ReadRecord returns the next non-empty record. io.EOF marks the end of the
// data; a *csv.ParseError marks a single malformed line that can be skipped.
func (bp *BaseParser) ReadRecord(reader *csv.Reader, parseCtx *ParseContext) ([]string, error) {
	for {
		if parseCtx.IsCancelled() {
			return nil, errors.InternalComputation(errors.CodeCancelled, "csv parsing", parseCtx.ctx.Err())
		}

		record, err := reader.Read()
		if err != nil {
			if stderrors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			var csvErr *csv.ParseError
			if stderrors.As(err, &csvErr) {
				parseCtx.LineNumber = csvErr.StartLine
			} else {
				parseCtx.LineNumber++
			}
			return nil, err
		}

		parseCtx.LineNumber, _ = reader.FieldPos(0)

		if bp.config.SkipEmptyRows && bp.isEmptyRecord(record) {
			continue
		}

		return record, nil
	}
}

// isEmptyRecord checks if all fields in a record are empty or whitespace
func (bp *BaseParser) isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// GetFieldValue retrieves a trimmed field value by column name. A column
// missing from a short row reads as empty.
func (bp *BaseParser) GetFieldValue(record []string, parseCtx *ParseContext, column string) string {
	index := parseCtx.GetColumnIndex(column)
	if index == -1 || index >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[index])
}

// checkRecord rejects rows with oversized or non UTF-8 fields
func (bp *BaseParser) checkRecord(record []string, parseCtx *ParseContext) *errors.ReconcilerError {
	for i, field := range record {
		column := fmt.Sprintf("column_%d", i+1)
		if i < len(parseCtx.Headers) {
			column = parseCtx.Headers[i]
		}

		if bp.config.MaxFieldSize > 0 && len(field) > bp.config.MaxFieldSize {
			return errors.UnparsableRow(errors.CodeInvalidFormat, parseCtx.Source, parseCtx.LineNumber, column, truncate(field, 50),
				fmt.Errorf("field exceeds maximum size of %d bytes", bp.config.MaxFieldSize))
		}
		if !utf8.ValidString(field) {
			return errors.UnparsableRow(errors.CodeInvalidFormat, parseCtx.Source, parseCtx.LineNumber, column, "",
				fmt.Errorf("invalid UTF-8 encoding"))
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// ParseStats holds statistics about a parsing operation
type ParseStats struct {
	Source      string
	TotalRows   int
	ParsedRows  int
	SkippedRows int
	Errors      *errors.ParseErrorCollector
}

// NewParseStats creates a new ParseStats instance
func NewParseStats(source string, maxErrors int) *ParseStats {
	return &ParseStats{
		Source: source,
		Errors: errors.NewParseErrorCollector(maxErrors),
	}
}

// Skip records a row that was excluded from the dataset
func (ps *ParseStats) Skip(err *errors.ReconcilerError) {
	ps.SkippedRows++
	ps.Errors.Add(err)
}

// HasErrors returns true if any row was skipped
func (ps *ParseStats) HasErrors() bool {
	return ps.SkippedRows > 0
}

// String returns a human-readable summary of parsing statistics
func (ps *ParseStats) String() string {
	return fmt.Sprintf("%s: %d rows, %d parsed, %d skipped",
		ps.Source, ps.TotalRows, ps.ParsedRows, ps.SkippedRows)
}

// Warning summarizes skipped rows in one line, or returns "" when none were skipped
func (ps *ParseStats) Warning() string {
	if !ps.HasErrors() {
		return ""
	}
	return fmt.Sprintf("%d of %d row(s) in %s were skipped because of unparsable values",
		ps.SkippedRows, ps.TotalRows, ps.Source)
}

// GetSampleErrors returns a sample of the row errors for logging
func (ps *ParseStats) GetSampleErrors(maxSamples int) []string {
	errs := ps.Errors.Errors()
	if maxSamples > 0 && maxSamples < len(errs) {
		errs = errs[:maxSamples]
	}

	samples := make([]string, 0, len(errs))
	for _, err := range errs {
		samples = append(samples, err.Message)
	}
	return samples
}

// readDataset runs the shared header and row loop over r. parse converts one
// record into a value or reports why the row is skipped.
func readDataset[T any](ctx context.Context, bp *BaseParser, r io.Reader, source string, required []string, aliases map[string]string,
	parse func([]string, *ParseContext) (T, *errors.ReconcilerError)) ([]T, *ParseStats, error) {
	reader := bp.NewReader(r)
	parseCtx := NewParseContext(ctx, source)
	stats := NewParseStats(source, bp.config.MaxErrors)

	if err := bp.ReadHeaders(reader, parseCtx, required, aliases); err != nil {
		return nil, stats, err
	}

	rows := make([]T, 0)
	for {
		record, err := bp.ReadRecord(reader, parseCtx)
		if err != nil {
			if stderrors.Is(err, io.EOF) {
				break
			}
			if _, cancelled := errors.AsReconcilerError(err); cancelled {
				return nil, stats, err
			}

			stats.TotalRows++
			stats.Skip(errors.UnparsableRow(errors.CodeInvalidFormat, source, parseCtx.LineNumber, "", "", err))
			continue
		}

		stats.TotalRows++

		if rowErr := bp.checkRecord(record, parseCtx); rowErr != nil {
			stats.Skip(rowErr)
			continue
		}

		row, rowErr := parse(record, parseCtx)
		if rowErr != nil {
			stats.Skip(rowErr)
			continue
		}

		rows = append(rows, row)
		stats.ParsedRows++
	}

	bp.logger.WithFields(logger.Fields{
		"source":       source,
		"total_rows":   stats.TotalRows,
		"parsed_rows":  stats.ParsedRows,
		"skipped_rows": stats.SkippedRows,
	}).Info("CSV parsing completed")

	if stats.HasErrors() {
		bp.logger.WithField("sample_errors", stats.GetSampleErrors(3)).Warn("Skipped rows with unparsable values")
	}

	return rows, stats, nil
}

// parseDate tries layout first, then the common layouts
func parseDate(layout, value string) (time.Time, error) {
	if layout != "" {
		if t, err := time.Parse(layout, strings.TrimSpace(value)); err == nil {
			return models.CalendarDate(t), nil
		}
	}
	return models.ParseDate(value)
}
