package reconciler

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"bank-reconciliation-service/internal/categorizer"
	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/internal/parsers"
	"bank-reconciliation-service/pkg/errors"
	"bank-reconciliation-service/pkg/logger"

	"github.com/shopspring/decimal"
)

const bankCSV = `Date,Description,Amount
2025-03-01,OFFICE DEPOT,-100.00
2025-03-02,STARBUCKS #1234,-4.50
2025-03-05,Office Depot,9500.00
2025-03-06,UNKNOWN WIRE,-77.00
2025-03-07,BAD ROW,abc
`

const internalCSV = `Date,Vendor,Amount,Category
2025-03-01,Office Depot Inc,-100.00,Office Supplies
2025-02-01,Office Depot,100.00,Office Supplies
2025-02-02,Office Depot,150.00,Office Supplies
2025-02-03,Office Depot,125.50,Office Supplies
2025-02-04,Office Depot,110.00,Office Supplies
2025-03-02,Starbucks,-4.50,Meals
2025-03-10,Uber,-23.00,Travel
`

// Test fixtures and test data setup

func createTestDataFiles(t *testing.T, bank, internal string) (string, string) {
	t.Helper()

	tmpDir := t.TempDir()
	bankFile := filepath.Join(tmpDir, "bank_statement.csv")
	internalFile := filepath.Join(tmpDir, "internal_records.csv")

	if err := os.WriteFile(bankFile, []byte(bank), 0o644); err != nil {
		t.Fatalf("Failed to write bank file: %v", err)
	}
	if err := os.WriteFile(internalFile, []byte(internal), 0o644); err != nil {
		t.Fatalf("Failed to write internal file: %v", err)
	}

	return bankFile, internalFile
}

func newTestService(t *testing.T, config *Config) *Service {
	t.Helper()

	service, err := NewService(config, logger.NewNopLogger())
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}
	return service
}

func day(s string) time.Time {
	d, err := time.Parse(models.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// panicClassifier fails inside the pipeline
type panicClassifier struct{}

func (panicClassifier) Predict(string, string) (string, float64) {
	panic("classifier exploded")
}

func assertPoolInvariant(t *testing.T, report *models.ReconciliationReport, bankCount, internalCount int) {
	t.Helper()

	if got := len(report.Matched) + len(report.UnmatchedBank); got != bankCount {
		t.Errorf("matched + unmatched bank = %d, want %d", got, bankCount)
	}
	if got := len(report.Matched) + len(report.UnmatchedInternal); got != internalCount {
		t.Errorf("matched + unmatched internal = %d, want %d", got, internalCount)
	}
}

func TestNewService(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError bool
	}{
		{
			name:   "default config",
			modify: func(*Config) {},
		},
		{
			name:   "predefined bank format",
			modify: func(c *Config) { c.BankFormat = "posting" },
		},
		{
			name:        "unknown bank format",
			modify:      func(c *Config) { c.BankFormat = "mt940" },
			expectError: true,
		},
		{
			name: "custom bank layout wins over format",
			modify: func(c *Config) {
				c.BankFormat = "mt940"
				c.BankLayout = &parsers.BankConfig{
					Name: "custom", DateColumn: "Booked", DescriptionColumn: "Text", AmountColumn: "Value", Delimiter: ',',
				}
			},
		},
		{
			name:        "missing matching config",
			modify:      func(c *Config) { c.Matching = nil },
			expectError: true,
		},
		{
			name:        "invalid threshold",
			modify:      func(c *Config) { c.Matching.ConfidenceThreshold = 150 },
			expectError: true,
		},
		{
			name:        "invalid vendor selection",
			modify:      func(c *Config) { c.Anomaly.VendorSelection = "random" },
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.modify(config)

			service, err := NewService(config, logger.NewNopLogger())
			if tt.expectError {
				if err == nil {
					t.Fatal("expected error but got none")
				}
				if !errors.IsCode(err, errors.CodeInvalidConfig) {
					t.Errorf("expected invalid config error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if service.config != config {
				t.Error("service should keep the given configuration")
			}
		})
	}
}

func TestReconcileFiles(t *testing.T) {
	bankFile, internalFile := createTestDataFiles(t, bankCSV, internalCSV)
	service := newTestService(t, nil)

	var steps []Progress
	service.AddProgressCallback(func(p Progress) {
		steps = append(steps, p)
	})

	report, err := service.ReconcileFiles(context.Background(), bankFile, internalFile)
	if err != nil {
		t.Fatalf("ReconcileFiles failed: %v", err)
	}

	want := models.ReportSummary{
		TotalBankTransactions:  4,
		TotalInternalRecords:   7,
		MatchedCount:           2,
		UnmatchedBankCount:     2,
		UnmatchedInternalCount: 5,
		AnomalyCount:           1,
	}
	if report.Summary != want {
		t.Errorf("summary = %+v, want %+v", report.Summary, want)
	}
	assertPoolInvariant(t, report, 4, 7)

	first := report.Matched[0]
	if first.Bank.Description != "OFFICE DEPOT" || first.Internal.Vendor != "Office Depot Inc" {
		t.Errorf("unexpected first match %v <-> %v", first.Bank, first.Internal)
	}
	if first.Confidence < 90 {
		t.Errorf("exact match confidence = %.2f, want >= 90", first.Confidence)
	}

	anomaly := report.Anomalies[0]
	if !anomaly.Amount.Equal(dec("9500")) {
		t.Errorf("anomaly amount = %s, want 9500", anomaly.Amount)
	}
	wantReason := "Amount is outside the typical range for Office Depot ($71.31 to $167.81)"
	if anomaly.Reason != wantReason {
		t.Errorf("reason = %q, want %q", anomaly.Reason, wantReason)
	}

	if len(report.Warnings) != 1 || !strings.HasPrefix(report.Warnings[0], "1 of 5 row(s) in ") {
		t.Errorf("expected one skipped row warning, got %v", report.Warnings)
	}

	if _, ok := report.CategorySummary["Office Supplies"]; !ok {
		t.Errorf("expected Office Supplies in category summary, got %v", report.CategorySummary)
	}

	if len(steps) != totalFileSteps {
		t.Fatalf("expected %d progress updates, got %d", totalFileSteps, len(steps))
	}
	last := steps[len(steps)-1]
	if last.CurrentStep != StepAggregate || last.PercentComplete != 100 {
		t.Errorf("last progress = %+v", last)
	}
	if last.MatchesFound != 2 || last.InternalRecords != 7 {
		t.Errorf("progress counts = %+v", last)
	}
}

func TestReconcileFiles_MalformedInput(t *testing.T) {
	tests := []struct {
		name     string
		bank     string
		internal string
		code     errors.ErrorCode
	}{
		{
			name:     "internal records without vendor column",
			bank:     bankCSV,
			internal: "Date,Amount\n2025-03-01,-100.00\n",
			code:     errors.CodeMissingColumn,
		},
		{
			name:     "empty bank statement",
			bank:     "",
			internal: internalCSV,
			code:     errors.CodeEmptyDataset,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bankFile, internalFile := createTestDataFiles(t, tt.bank, tt.internal)
			service := newTestService(t, nil)

			report, err := service.ReconcileFiles(context.Background(), bankFile, internalFile)
			if err == nil {
				t.Fatal("expected error but got none")
			}
			if report != nil {
				t.Error("no report should be returned on failure")
			}
			if !errors.IsCode(err, tt.code) {
				t.Errorf("expected code %s, got %v", tt.code, err)
			}
		})
	}
}

func TestReconcileFiles_FileNotFound(t *testing.T) {
	service := newTestService(t, nil)

	_, err := service.ReconcileFiles(context.Background(), "/nonexistent/bank.csv", "/nonexistent/internal.csv")
	if !errors.IsCode(err, errors.CodeFileNotFound) {
		t.Errorf("expected file not found, got %v", err)
	}
}

func TestReconcileReaders_AutoDetect(t *testing.T) {
	service := newTestService(t, nil)

	bank := "Value Date;Transaction Details;Amount\n01.03.2025;OFFICE DEPOT;-100.00\n"
	report, err := service.ReconcileReaders(context.Background(),
		parsers.Source{Name: "bank.csv", Reader: strings.NewReader(bank)},
		parsers.Source{Name: "internal.csv", Reader: strings.NewReader(internalCSV)})
	if err != nil {
		t.Fatalf("ReconcileReaders failed: %v", err)
	}

	if report.Summary.MatchedCount != 1 {
		t.Errorf("expected 1 match, got %d", report.Summary.MatchedCount)
	}
	if len(report.Warnings) != 0 {
		t.Errorf("expected no warnings, got %v", report.Warnings)
	}
}

func TestReconcile_Determinism(t *testing.T) {
	bankFile, internalFile := createTestDataFiles(t, bankCSV, internalCSV)
	service := newTestService(t, nil)

	first, err := service.ReconcileFiles(context.Background(), bankFile, internalFile)
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	second, err := service.ReconcileFiles(context.Background(), bankFile, internalFile)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	if !reflect.DeepEqual(first.Matched, second.Matched) {
		t.Error("matched pairs differ between runs")
	}
	if !reflect.DeepEqual(first.Anomalies, second.Anomalies) {
		t.Error("anomalies differ between runs")
	}
	if !reflect.DeepEqual(first.UnmatchedInternal, second.UnmatchedInternal) {
		t.Error("unmatched internal records differ between runs")
	}
}

func TestReconcile_FirstCandidateWins(t *testing.T) {
	service := newTestService(t, nil)
	service.SetClassifier(categorizer.PassThrough{})

	bankTxs := []models.BankTransaction{
		models.NewBankTransaction(day("2025-03-01"), "ACME", dec("-50.00")),
	}
	internalRecs := []models.InternalRecord{
		models.NewInternalRecord(day("2025-03-01"), "Acme", dec("-50.00"), "First"),
		models.NewInternalRecord(day("2025-03-01"), "Acme", dec("-50.00"), "Second"),
	}

	report, err := service.Reconcile(context.Background(), bankTxs, internalRecs)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	if len(report.Matched) != 1 || report.Matched[0].Internal.Category != "First" {
		t.Fatalf("expected the first record to be consumed, got %v", report.Matched)
	}
	if len(report.UnmatchedInternal) != 1 || report.UnmatchedInternal[0].Category != "Second" {
		t.Errorf("expected the second record to remain, got %v", report.UnmatchedInternal)
	}
	assertPoolInvariant(t, report, 1, 2)
}

func TestReconcile_SingleCategoryFallsBack(t *testing.T) {
	service := newTestService(t, nil)

	internalRecs := []models.InternalRecord{
		models.NewInternalRecord(day("2025-03-01"), "Office Depot", dec("-100.00"), "Office Supplies"),
		models.NewInternalRecord(day("2025-03-02"), "Staples", dec("-40.00"), "Office Supplies"),
		models.NewInternalRecord(day("2025-03-03"), "Corner Shop", dec("-9.00"), ""),
	}

	report, err := service.Reconcile(context.Background(), nil, internalRecs)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	if len(report.Warnings) != 1 || !strings.Contains(report.Warnings[0], "Category classifier unavailable") {
		t.Errorf("expected classifier warning, got %v", report.Warnings)
	}

	wantCategories := []string{"Office Supplies", "Office Supplies", models.Uncategorized}
	for i, rec := range report.UnmatchedInternal {
		if rec.PredictedCategory != wantCategories[i] {
			t.Errorf("record %d predicted %q, want %q", i, rec.PredictedCategory, wantCategories[i])
		}
		if rec.PredictionConfidence != 0 {
			t.Errorf("record %d confidence = %v, want 0", i, rec.PredictionConfidence)
		}
	}

	if !report.CategorySummary["Office Supplies"].Equal(dec("140.00")) {
		t.Errorf("Office Supplies total = %s, want 140.00", report.CategorySummary["Office Supplies"])
	}
}

func TestReconcile_CategorizerDisabled(t *testing.T) {
	config := DefaultConfig()
	config.Categorizer.Enabled = false
	service := newTestService(t, config)

	internalRecs := []models.InternalRecord{
		models.NewInternalRecord(day("2025-03-01"), "Office Depot", dec("-100.00"), "Office Supplies"),
		models.NewInternalRecord(day("2025-03-02"), "Delta", dec("-300.00"), "Travel"),
	}

	report, err := service.Reconcile(context.Background(), nil, internalRecs)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if len(report.Warnings) != 0 {
		t.Errorf("disabled categorizer should not warn, got %v", report.Warnings)
	}
	if report.UnmatchedInternal[1].PredictedCategory != "Travel" {
		t.Errorf("expected existing category, got %q", report.UnmatchedInternal[1].PredictedCategory)
	}
}

func TestReconcile_Cancelled(t *testing.T) {
	service := newTestService(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := service.Reconcile(ctx, nil, nil)
	if report != nil {
		t.Error("no report should be returned when cancelled")
	}
	if !errors.IsCode(err, errors.CodeCancelled) {
		t.Errorf("expected cancelled error, got %v", err)
	}
}

func TestReconcile_PanicIsInternalComputationError(t *testing.T) {
	service := newTestService(t, nil)
	service.SetClassifier(panicClassifier{})

	internalRecs := []models.InternalRecord{
		models.NewInternalRecord(day("2025-03-01"), "Acme", dec("-50.00"), ""),
	}

	report, err := service.Reconcile(context.Background(), nil, internalRecs)
	if report != nil {
		t.Error("no report should be returned after a panic")
	}

	reconcilerErr, ok := errors.AsReconcilerError(err)
	if !ok {
		t.Fatalf("expected ReconcilerError, got %v", err)
	}
	if reconcilerErr.Category != errors.CategoryInternal || reconcilerErr.Code != errors.CodeComputationFailed {
		t.Errorf("unexpected error kind %s/%s", reconcilerErr.Category, reconcilerErr.Code)
	}
	if !strings.Contains(err.Error(), "classifier exploded") {
		t.Errorf("error should carry the panic message, got %q", err.Error())
	}
}

func TestReconcile_EmptyInputs(t *testing.T) {
	service := newTestService(t, nil)

	report, err := service.Reconcile(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if report.Summary != (models.ReportSummary{}) {
		t.Errorf("expected empty summary, got %+v", report.Summary)
	}
	if report.Matched == nil || report.Anomalies == nil {
		t.Error("empty lists should be non-nil")
	}
}

func TestReconcile_OutlierDetection(t *testing.T) {
	config := DefaultConfig()
	config.Categorizer.Enabled = false
	config.Anomaly.OutlierDetection = true
	service := newTestService(t, config)

	var internalRecs []models.InternalRecord
	for i, a := range []string{"-50", "-55", "-58", "-60", "-60", "-60", "-62", "-65", "-70", "-75"} {
		internalRecs = append(internalRecs,
			models.NewInternalRecord(day("2025-01-01").AddDate(0, 0, i), "Fuel Stop", dec(a), "Travel"))
	}

	bankTxs := []models.BankTransaction{
		models.NewBankTransaction(day("2025-03-01"), "FUEL STOP 22", dec("-900.00")),
	}

	report, err := service.Reconcile(context.Background(), bankTxs, internalRecs)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	if len(report.Anomalies) != 1 {
		t.Fatalf("expected one anomaly, got %v", report.Anomalies)
	}
	if !strings.Contains(report.Anomalies[0].Reason, "Amount is an unusual volume for Fuel Stop") {
		t.Errorf("expected volume reason, got %q", report.Anomalies[0].Reason)
	}
}

func TestReconcileFiles_SampleData(t *testing.T) {
	bankFile := filepath.Join("..", "..", "testdata", "bank_statement.csv")
	internalFile := filepath.Join("..", "..", "testdata", "internal_records.csv")

	report, err := newTestService(t, nil).ReconcileFiles(context.Background(), bankFile, internalFile)
	if err != nil {
		t.Fatalf("ReconcileFiles failed: %v", err)
	}

	assertPoolInvariant(t, report, 11, 14)
	if report.Summary.MatchedCount != 9 {
		t.Errorf("matched = %d, want 9", report.Summary.MatchedCount)
	}
	if len(report.Warnings) != 1 {
		t.Errorf("expected the CORRECTION row to be skipped, got %v", report.Warnings)
	}

	unmatched := make(map[string]bool)
	for _, tx := range report.UnmatchedBank {
		unmatched[tx.Description] = true
	}
	for _, desc := range []string{"Office Depot", "UNKNOWN WIRE TRANSFER"} {
		if !unmatched[desc] {
			t.Errorf("expected %q to stay unmatched, got %v", desc, report.UnmatchedBank)
		}
	}
}
