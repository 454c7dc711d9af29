// Package reporter assembles and renders reconciliation reports.
//
// Aggregate turns the outcome of a run into a models.ReconciliationReport.
// ReportGenerator writes that report in one of the supported formats:
//   - Console: human-readable sections for terminal display, optionally coloured
//   - JSON: the report payload, indented
//   - CSV: one section per list for spreadsheet applications
//
// Example usage:
//
//	report := reporter.Aggregate(bankTxs, internalRecs, matchResult, anomalies)
//	generator, err := reporter.NewReportGenerator(&reporter.ReportConfig{Format: reporter.FormatJSON})
//	err = generator.GenerateReport(report, os.Stdout)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"bank-reconciliation-service/internal/models"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"
)

// OutputFormat represents the supported report output formats
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ContentType returns the MIME type of the format
func (f OutputFormat) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatCSV:
		return "text/csv"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Extension returns the file extension of the format, without the dot
func (f OutputFormat) Extension() string {
	if f == FormatConsole {
		return "txt"
	}
	return string(f)
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format" mapstructure:"format" yaml:"format"`

	// Sections rendered by the console and CSV formats. JSON always carries
	// the full payload.
	IncludeMatched         bool `json:"include_matched" mapstructure:"include_matched" yaml:"include_matched"`
	IncludeAnomalies       bool `json:"include_anomalies" mapstructure:"include_anomalies" yaml:"include_anomalies"`
	IncludeUnmatched       bool `json:"include_unmatched" mapstructure:"include_unmatched" yaml:"include_unmatched"`
	IncludeCategorySummary bool `json:"include_category_summary" mapstructure:"include_category_summary" yaml:"include_category_summary"`

	// Console formatting options
	UseColors bool `json:"use_colors" mapstructure:"use_colors" yaml:"use_colors"`
	// ListLimit caps the rows printed per console section; 0 prints everything
	ListLimit int `json:"list_limit" mapstructure:"list_limit" yaml:"list_limit"`

	// CSV options
	CSVDelimiter rune `json:"csv_delimiter" mapstructure:"csv_delimiter" yaml:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers" mapstructure:"csv_headers" yaml:"csv_headers"`

	SortByAmount bool `json:"sort_by_amount" mapstructure:"sort_by_amount" yaml:"sort_by_amount"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:                 FormatConsole,
		IncludeMatched:         true,
		IncludeAnomalies:       true,
		IncludeUnmatched:       true,
		IncludeCategorySummary: true,
		UseColors:              true,
		ListLimit:              10,
		CSVDelimiter:           ',',
		CSVHeaders:             true,
		SortByAmount:           false,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}

	if c.ListLimit < 0 {
		return fmt.Errorf("list limit cannot be negative, got %d", c.ListLimit)
	}

	switch c.CSVDelimiter {
	case 0, '"', '\r', '\n':
		return fmt.Errorf("invalid CSV delimiter %q", c.CSVDelimiter)
	}

	return nil
}

// ReportGenerator renders reconciliation reports in various formats
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}

	return &ReportGenerator{
		config: config,
	}, nil
}

// GenerateReport writes the report to writer in the configured format
func (rg *ReportGenerator) GenerateReport(report *models.ReconciliationReport, writer io.Writer) error {
	if report == nil {
		return fmt.Errorf("reconciliation report cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(report, writer)
	case FormatJSON:
		return rg.generateJSONReport(report, writer)
	case FormatCSV:
		return rg.generateCSVReport(report, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// palette holds the console colours. Every entry is disabled when colours are off.
type palette struct {
	header *color.Color
	good   *color.Color
	warn   *color.Color
	bad    *color.Color
	subtle *color.Color
}

func (rg *ReportGenerator) palette() palette {
	p := palette{
		header: color.New(color.FgCyan, color.Bold),
		good:   color.New(color.FgGreen),
		warn:   color.New(color.FgYellow),
		bad:    color.New(color.FgRed, color.Bold),
		subtle: color.New(color.Faint),
	}
	if !rg.config.UseColors {
		for _, c := range []*color.Color{p.header, p.good, p.warn, p.bad, p.subtle} {
			c.DisableColor()
		}
	}
	return p
}

// generateConsoleReport generates a human-readable console report
func (rg *ReportGenerator) generateConsoleReport(report *models.ReconciliationReport, writer io.Writer) error {
	p := rg.palette()
	ew := &errWriter{w: writer}

	p.header.Fprintf(ew, "RECONCILIATION REPORT\n")
	fmt.Fprintf(ew, "Generated: %s\n\n", report.GeneratedAt.Format(time.RFC3339))

	p.header.Fprintf(ew, "=== SUMMARY ===\n")
	rg.printSummary(report.Summary, p, ew)
	fmt.Fprintf(ew, "\n")

	if rg.config.IncludeMatched && len(report.Matched) > 0 {
		p.header.Fprintf(ew, "=== MATCHED TRANSACTIONS ===\n")
		rg.printMatched(report.Matched, p, ew)
		fmt.Fprintf(ew, "\n")
	}

	if rg.config.IncludeAnomalies {
		p.header.Fprintf(ew, "=== ANOMALIES ===\n")
		rg.printAnomalies(report.Anomalies, p, ew)
		fmt.Fprintf(ew, "\n")
	}

	if rg.config.IncludeUnmatched && len(report.UnmatchedBank) > 0 {
		p.header.Fprintf(ew, "=== UNMATCHED BANK TRANSACTIONS ===\n")
		rg.printBankList(rg.sortedBank(report.UnmatchedBank), ew)
		fmt.Fprintf(ew, "\n")
	}

	if rg.config.IncludeUnmatched && len(report.UnmatchedInternal) > 0 {
		p.header.Fprintf(ew, "=== UNMATCHED INTERNAL RECORDS ===\n")
		rg.printInternalList(rg.sortedInternal(report.UnmatchedInternal), ew)
		fmt.Fprintf(ew, "\n")
	}

	if rg.config.IncludeCategorySummary && len(report.CategorySummary) > 0 {
		p.header.Fprintf(ew, "=== CATEGORY SUMMARY ===\n")
		rg.printCategorySummary(report.CategorySummary, ew)
		fmt.Fprintf(ew, "\n")
	}

	if len(report.Warnings) > 0 {
		p.header.Fprintf(ew, "=== WARNINGS ===\n")
		for _, w := range report.Warnings {
			p.warn.Fprintf(ew, "  ! %s\n", w)
		}
	}

	return ew.err
}

// generateJSONReport writes the report payload
func (rg *ReportGenerator) generateJSONReport(report *models.ReconciliationReport, writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")

	return encoder.Encode(report)
}

// generateCSVReport writes one titled section per list
func (rg *ReportGenerator) generateCSVReport(report *models.ReconciliationReport, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter

	sections := []struct {
		enabled bool
		title   string
		headers []string
		rows    [][]string
	}{
		{
			enabled: true,
			title:   "Summary",
			headers: []string{"Metric", "Value"},
			rows:    summaryRows(report.Summary),
		},
		{
			enabled: rg.config.IncludeMatched,
			title:   "Matched Transactions",
			headers: []string{"Bank_Date", "Bank_Description", "Bank_Amount", "Internal_Date", "Internal_Vendor", "Internal_Amount", "Category", "Confidence"},
			rows:    matchedRows(report.Matched),
		},
		{
			enabled: rg.config.IncludeAnomalies,
			title:   "Anomalies",
			headers: []string{"Date", "Description", "Amount", "Flagged_Reason"},
			rows:    anomalyRows(report.Anomalies),
		},
		{
			enabled: rg.config.IncludeUnmatched,
			title:   "Unmatched Bank Transactions",
			headers: []string{"Date", "Description", "Amount"},
			rows:    bankRows(rg.sortedBank(report.UnmatchedBank)),
		},
		{
			enabled: rg.config.IncludeUnmatched,
			title:   "Unmatched Internal Records",
			headers: []string{"Date", "Vendor", "Amount", "Category", "Predicted_Category", "Category_Confidence"},
			rows:    internalRows(rg.sortedInternal(report.UnmatchedInternal)),
		},
		{
			enabled: rg.config.IncludeCategorySummary,
			title:   "Category Summary",
			headers: []string{"Category", "Total"},
			rows:    categoryRows(report.CategorySummary),
		},
	}

	first := true
	for _, section := range sections {
		if !section.enabled {
			continue
		}
		if !first {
			if err := csvWriter.Write([]string{}); err != nil {
				return fmt.Errorf("failed to write CSV separator: %w", err)
			}
		}
		first = false

		if err := csvWriter.Write([]string{section.title}); err != nil {
			return fmt.Errorf("failed to write CSV section %q: %w", section.title, err)
		}
		if rg.config.CSVHeaders {
			if err := csvWriter.Write(section.headers); err != nil {
				return fmt.Errorf("failed to write CSV headers for %q: %w", section.title, err)
			}
		}
		if err := csvWriter.WriteAll(section.rows); err != nil {
			return fmt.Errorf("failed to write CSV rows for %q: %w", section.title, err)
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

// Helper methods for console output formatting

func (rg *ReportGenerator) printSummary(summary models.ReportSummary, p palette, writer io.Writer) {
	fmt.Fprintf(writer, "Bank Transactions:   %d\n", summary.TotalBankTransactions)
	fmt.Fprintf(writer, "Internal Records:    %d\n", summary.TotalInternalRecords)
	p.good.Fprintf(writer, "Matched:             %d (%.1f%%)\n",
		summary.MatchedCount, summary.MatchRate())
	fmt.Fprintf(writer, "Unmatched Bank:      %d (%.1f%%)\n",
		summary.UnmatchedBankCount,
		rg.calculatePercentage(summary.UnmatchedBankCount, summary.TotalBankTransactions))
	fmt.Fprintf(writer, "Unmatched Internal:  %d (%.1f%%)\n",
		summary.UnmatchedInternalCount,
		rg.calculatePercentage(summary.UnmatchedInternalCount, summary.TotalInternalRecords))

	anomalies := p.good
	if summary.AnomalyCount > 0 {
		anomalies = p.bad
	}
	anomalies.Fprintf(writer, "Anomalies:           %d\n", summary.AnomalyCount)
}

func (rg *ReportGenerator) printMatched(pairs []models.MatchedPair, p palette, writer io.Writer) {
	for i, pair := range pairs {
		if rg.limitReached(i, len(pairs), writer) {
			break
		}
		fmt.Fprintf(writer, "  %d. %s  %-30s %10s  <->  %s  %-20s %10s  ",
			i+1,
			pair.Bank.Date.Format(models.DateLayout),
			pair.Bank.Description,
			pair.Bank.Amount.StringFixed(2),
			pair.Internal.Date.Format(models.DateLayout),
			pair.Internal.Vendor,
			pair.Internal.Amount.StringFixed(2))
		p.subtle.Fprintf(writer, "(%.2f%%)\n", pair.Confidence)
	}
}

func (rg *ReportGenerator) printAnomalies(anomalies []models.Anomaly, p palette, writer io.Writer) {
	if len(anomalies) == 0 {
		p.good.Fprintf(writer, "No anomalies detected\n")
		return
	}

	fmt.Fprintf(writer, "Total Anomalies: %d\n\n", len(anomalies))
	for i, a := range anomalies {
		if rg.limitReached(i, len(anomalies), writer) {
			break
		}
		fmt.Fprintf(writer, "  %d. %s  %-30s %10s\n",
			i+1,
			a.Date.Format(models.DateLayout),
			a.Description,
			a.Amount.StringFixed(2))
		p.bad.Fprintf(writer, "     %s\n", a.Reason)
	}
}

func (rg *ReportGenerator) printBankList(txs []models.BankTransaction, writer io.Writer) {
	fmt.Fprintf(writer, "Total Unmatched Bank Transactions: %d (%s)\n\n", len(txs),
		totalAmount(txs, func(tx models.BankTransaction) decimal.Decimal { return tx.Amount }).StringFixed(2))
	for i, tx := range txs {
		if rg.limitReached(i, len(txs), writer) {
			break
		}
		fmt.Fprintf(writer, "  %d. %s  %-30s %10s\n",
			i+1,
			tx.Date.Format(models.DateLayout),
			tx.Description,
			tx.Amount.StringFixed(2))
	}
}

func (rg *ReportGenerator) printInternalList(recs []models.InternalRecord, writer io.Writer) {
	fmt.Fprintf(writer, "Total Unmatched Internal Records: %d (%s)\n\n", len(recs),
		totalAmount(recs, func(rec models.InternalRecord) decimal.Decimal { return rec.Amount }).StringFixed(2))
	for i, rec := range recs {
		if rg.limitReached(i, len(recs), writer) {
			break
		}
		fmt.Fprintf(writer, "  %d. %s  %-20s %10s  [%s]\n",
			i+1,
			rec.Date.Format(models.DateLayout),
			rec.Vendor,
			rec.Amount.StringFixed(2),
			rec.CategoryOrDefault())
	}
}

func (rg *ReportGenerator) printCategorySummary(totals models.CategoryTotals, writer io.Writer) {
	for _, category := range totals.Categories() {
		fmt.Fprintf(writer, "  %-25s %12s\n", category, totals[category].StringFixed(2))
	}
}

// limitReached prints the overflow line once the console list limit is hit
func (rg *ReportGenerator) limitReached(i, total int, writer io.Writer) bool {
	limit := rg.config.ListLimit
	if limit == 0 || i < limit {
		return false
	}
	fmt.Fprintf(writer, "  ... and %d more\n", total-limit)
	return true
}

func (rg *ReportGenerator) sortedBank(txs []models.BankTransaction) []models.BankTransaction {
	if !rg.config.SortByAmount {
		return txs
	}
	sorted := make([]models.BankTransaction, len(txs))
	copy(sorted, txs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Amount.Abs().GreaterThan(sorted[j].Amount.Abs())
	})
	return sorted
}

func (rg *ReportGenerator) sortedInternal(recs []models.InternalRecord) []models.InternalRecord {
	if !rg.config.SortByAmount {
		return recs
	}
	sorted := make([]models.InternalRecord, len(recs))
	copy(sorted, recs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Amount.Abs().GreaterThan(sorted[j].Amount.Abs())
	})
	return sorted
}

// CSV row builders

func summaryRows(s models.ReportSummary) [][]string {
	return [][]string{
		{"Total_Bank_Transactions", strconv.Itoa(s.TotalBankTransactions)},
		{"Total_Internal_Records", strconv.Itoa(s.TotalInternalRecords)},
		{"Matched", strconv.Itoa(s.MatchedCount)},
		{"Unmatched_Bank", strconv.Itoa(s.UnmatchedBankCount)},
		{"Unmatched_Internal", strconv.Itoa(s.UnmatchedInternalCount)},
		{"Anomalies", strconv.Itoa(s.AnomalyCount)},
	}
}

func matchedRows(pairs []models.MatchedPair) [][]string {
	rows := make([][]string, 0, len(pairs))
	for _, pair := range pairs {
		rows = append(rows, []string{
			pair.Bank.Date.Format(models.DateLayout),
			pair.Bank.Description,
			pair.Bank.Amount.StringFixed(2),
			pair.Internal.Date.Format(models.DateLayout),
			pair.Internal.Vendor,
			pair.Internal.Amount.StringFixed(2),
			pair.Internal.CategoryOrDefault(),
			strconv.FormatFloat(pair.Confidence, 'f', 2, 64),
		})
	}
	return rows
}

func anomalyRows(anomalies []models.Anomaly) [][]string {
	rows := make([][]string, 0, len(anomalies))
	for _, a := range anomalies {
		rows = append(rows, []string{
			a.Date.Format(models.DateLayout),
			a.Description,
			a.Amount.StringFixed(2),
			a.Reason,
		})
	}
	return rows
}

func bankRows(txs []models.BankTransaction) [][]string {
	rows := make([][]string, 0, len(txs))
	for _, tx := range txs {
		rows = append(rows, []string{
			tx.Date.Format(models.DateLayout),
			tx.Description,
			tx.Amount.StringFixed(2),
		})
	}
	return rows
}

func internalRows(recs []models.InternalRecord) [][]string {
	rows := make([][]string, 0, len(recs))
	for _, rec := range recs {
		rows = append(rows, []string{
			rec.Date.Format(models.DateLayout),
			rec.Vendor,
			rec.Amount.StringFixed(2),
			rec.Category,
			rec.PredictedCategory,
			strconv.FormatFloat(rec.PredictionConfidence, 'f', 2, 64),
		})
	}
	return rows
}

func categoryRows(totals models.CategoryTotals) [][]string {
	rows := make([][]string, 0, len(totals))
	for _, category := range totals.Categories() {
		rows = append(rows, []string{category, totals[category].StringFixed(2)})
	}
	return rows
}

// Helper methods

func (rg *ReportGenerator) calculatePercentage(part, total int) float64 {
	if total == 0 {
		return 0.0
	}
	return float64(part) / float64(total) * 100.0
}

// errWriter remembers the first write error so the console renderer can
// report it once at the end
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) Write(p []byte) (int, error) {
	if ew.err != nil {
		return 0, ew.err
	}
	n, err := ew.w.Write(p)
	ew.err = err
	return n, err
}

// totalAmount sums the absolute amounts of a list
func totalAmount[T any](items []T, amount func(T) decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(amount(item).Abs())
	}
	return total
}
