package parsers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/pkg/errors"
	"bank-reconciliation-service/pkg/logger"

	"github.com/shopspring/decimal"
)

// Helper function to create temporary CSV file
func createTempCSVFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "input.csv")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write temp file: %v", err)
	}
	return path
}

func newBankParser(t *testing.T, config *BankConfig) *BankStatementParser {
	t.Helper()
	parser, err := NewBankStatementParser(config, logger.NewNopLogger())
	if err != nil {
		t.Fatalf("Failed to create bank parser: %v", err)
	}
	return parser
}

func newInternalParser(t *testing.T, config *InternalRecordConfig) *InternalRecordParser {
	t.Helper()
	parser, err := NewInternalRecordParser(config, logger.NewNopLogger())
	if err != nil {
		t.Fatalf("Failed to create internal parser: %v", err)
	}
	return parser
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestDefaultParseConfig(t *testing.T) {
	config := DefaultParseConfig()

	if config.Delimiter != ',' {
		t.Errorf("Expected delimiter to be ',', got %q", config.Delimiter)
	}
	if !config.TrimLeadingSpace {
		t.Error("Expected TrimLeadingSpace to be true")
	}
	if !config.SkipEmptyRows {
		t.Error("Expected SkipEmptyRows to be true")
	}
	if config.MaxErrors <= 0 {
		t.Error("Expected a positive MaxErrors")
	}
}

func TestBankConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  *BankConfig
		wantErr bool
	}{
		{name: "standard", config: StandardBankConfig},
		{name: "posting", config: PostingBankConfig},
		{name: "semicolon", config: SemicolonBankConfig},
		{
			name:    "missing name",
			config:  &BankConfig{DateColumn: "Date", DescriptionColumn: "Description", AmountColumn: "Amount", Delimiter: ','},
			wantErr: true,
		},
		{
			name:    "missing description column",
			config:  &BankConfig{Name: "x", DateColumn: "Date", AmountColumn: "Amount", Delimiter: ','},
			wantErr: true,
		},
		{
			name:    "missing delimiter",
			config:  &BankConfig{Name: "x", DateColumn: "Date", DescriptionColumn: "Description", AmountColumn: "Amount"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestInternalRecordConfig_Validate(t *testing.T) {
	if err := DefaultInternalRecordConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	config := DefaultInternalRecordConfig()
	config.VendorColumn = " "
	if err := config.Validate(); err == nil {
		t.Error("Expected error for blank vendor column")
	}

	config = DefaultInternalRecordConfig()
	config.CategoryColumn = ""
	if err := config.Validate(); err != nil {
		t.Errorf("category column is optional, got %v", err)
	}
}

func TestNewBankStatementParser(t *testing.T) {
	parser, err := NewBankStatementParser(nil, nil)
	if err != nil {
		t.Fatalf("Failed to create parser with nil config: %v", err)
	}
	if parser.GetBankConfig() != StandardBankConfig {
		t.Error("Expected nil config to select the standard layout")
	}

	_, err = NewBankStatementParser(&BankConfig{Name: ""}, nil)
	if err == nil {
		t.Fatal("Expected error with invalid config")
	}
	if !errors.IsCode(err, errors.CodeInvalidConfig) {
		t.Errorf("Expected configuration error, got %v", err)
	}
}

func TestBankStatementParser_ParseFile(t *testing.T) {
	parser := newBankParser(t, nil)

	csvContent := ` date , DESCRIPTION,Amount
2025-03-01,OFFICE DEPOT #1123,-100.00
03/02/2025,"ACME, INC PAYMENT","$1,250.50"

2025-03-04,Refund,(42.10)`

	txs, stats, err := parser.ParseFile(context.Background(), createTempCSVFile(t, csvContent))
	if err != nil {
		t.Fatalf("Failed to parse bank statement: %v", err)
	}

	want := []models.BankTransaction{
		models.NewBankTransaction(date(2025, 3, 1), "OFFICE DEPOT #1123", decimal.RequireFromString("-100.00")),
		models.NewBankTransaction(date(2025, 3, 2), "ACME, INC PAYMENT", decimal.RequireFromString("1250.50")),
		models.NewBankTransaction(date(2025, 3, 4), "Refund", decimal.RequireFromString("-42.10")),
	}

	if len(txs) != len(want) {
		t.Fatalf("Expected %d transactions, got %d", len(want), len(txs))
	}
	for i := range want {
		if !txs[i].Date.Equal(want[i].Date) || txs[i].Description != want[i].Description || !txs[i].Amount.Equal(want[i].Amount) {
			t.Errorf("transaction %d = %v, want %v", i, txs[i], want[i])
		}
	}

	if stats.TotalRows != 3 || stats.ParsedRows != 3 || stats.SkippedRows != 0 {
		t.Errorf("unexpected stats: %s", stats)
	}
}

func TestBankStatementParser_SkipsUnparsableRows(t *testing.T) {
	parser := newBankParser(t, nil)

	csvContent := `Date,Description,Amount
2025-03-01,Good row,10.00
2025-03-02,Bad amount,ten dollars
not-a-date,Bad date,5.00
2025-03-04,Missing amount,
2025-03-05,Another good row,20.00`

	txs, stats, err := parser.Parse(context.Background(), strings.NewReader(csvContent), "bank.csv")
	if err != nil {
		t.Fatalf("Unparsable rows must not fail the dataset: %v", err)
	}

	if len(txs) != 2 {
		t.Fatalf("Expected 2 transactions, got %d", len(txs))
	}
	if stats.TotalRows != 5 || stats.ParsedRows != 2 || stats.SkippedRows != 3 {
		t.Errorf("unexpected stats: %s", stats)
	}

	errs := stats.Errors.Errors()
	if len(errs) != 3 {
		t.Fatalf("Expected 3 row errors, got %d", len(errs))
	}

	wantCodes := []errors.ErrorCode{errors.CodeInvalidAmount, errors.CodeInvalidDate, errors.CodeMissingField}
	wantLines := []int{3, 4, 5}
	for i, e := range errs {
		if e.Code != wantCodes[i] {
			t.Errorf("error %d code = %s, want %s", i, e.Code, wantCodes[i])
		}
		if e.Category != errors.CategoryParse || e.IsFatal() {
			t.Errorf("error %d should be a non-fatal parse error", i)
		}
		if e.Context["line"] != wantLines[i] {
			t.Errorf("error %d line = %v, want %d", i, e.Context["line"], wantLines[i])
		}
	}

	if !strings.Contains(stats.Warning(), "3 of 5 row(s) in bank.csv") {
		t.Errorf("unexpected warning %q", stats.Warning())
	}
}

func TestBankStatementParser_MalformedInput(t *testing.T) {
	parser := newBankParser(t, nil)

	tests := []struct {
		name     string
		content  string
		wantCode errors.ErrorCode
	}{
		{name: "empty file", content: "", wantCode: errors.CodeEmptyDataset},
		{name: "missing amount column", content: "Date,Description\n2025-03-01,x\n", wantCode: errors.CodeMissingColumn},
		{name: "vendor instead of description", content: "Date,Vendor,Amount\n2025-03-01,x,1\n", wantCode: errors.CodeMissingColumn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txs, _, err := parser.Parse(context.Background(), strings.NewReader(tt.content), "bank.csv")
			if err == nil {
				t.Fatal("Expected malformed input error")
			}
			if txs != nil {
				t.Error("Expected no partial dataset")
			}

			re, ok := errors.AsReconcilerError(err)
			if !ok {
				t.Fatalf("Expected ReconcilerError, got %T", err)
			}
			if re.Category != errors.CategoryInput || re.Code != tt.wantCode {
				t.Errorf("got %s/%s, want input/%s", re.Category, re.Code, tt.wantCode)
			}
			if !re.IsFatal() {
				t.Error("Malformed input must be fatal")
			}
		})
	}
}

func TestBankStatementParser_FileNotFound(t *testing.T) {
	parser := newBankParser(t, nil)

	_, _, err := parser.ParseFile(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))
	if !errors.IsCode(err, errors.CodeFileNotFound) {
		t.Errorf("Expected file not found error, got %v", err)
	}
}

func TestBankStatementParser_Aliases(t *testing.T) {
	parser := newBankParser(t, nil)

	csvContent := "Transaction Date,Memo,Amount\n2025-03-01,COFFEE,-4.50\n"
	txs, _, err := parser.Parse(context.Background(), strings.NewReader(csvContent), "bank.csv")
	if err != nil {
		t.Fatalf("Failed to parse aliased headers: %v", err)
	}
	if len(txs) != 1 || txs[0].Description != "COFFEE" {
		t.Errorf("unexpected transactions %v", txs)
	}
}

func TestBankStatementParser_SemicolonLayout(t *testing.T) {
	parser := newBankParser(t, SemicolonBankConfig)

	csvContent := "Value Date;Transaction Details;Amount\n02.03.2025;Rent;-1200.00\n"
	txs, _, err := parser.Parse(context.Background(), strings.NewReader(csvContent), "bank.csv")
	if err != nil {
		t.Fatalf("Failed to parse: %v", err)
	}
	if len(txs) != 1 || !txs[0].Date.Equal(date(2025, 3, 2)) {
		t.Errorf("unexpected transactions %v", txs)
	}
}

func TestInternalRecordParser_Parse(t *testing.T) {
	parser := newInternalParser(t, nil)

	csvContent := `Date,Vendor,Amount,Category
2025-03-01,Office Depot Inc,-100.00,Office Supplies
2025-03-02,Starbucks,-4.50,
2025-03-03,Broken,abc,Meals`

	records, stats, err := parser.Parse(context.Background(), strings.NewReader(csvContent), "internal.csv")
	if err != nil {
		t.Fatalf("Failed to parse internal records: %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	if records[0].Vendor != "Office Depot Inc" || records[0].Category != "Office Supplies" {
		t.Errorf("unexpected first record %v", records[0])
	}
	if records[1].Category != "" {
		t.Errorf("Expected empty category, got %q", records[1].Category)
	}
	if stats.SkippedRows != 1 {
		t.Errorf("Expected 1 skipped row, got %d", stats.SkippedRows)
	}
}

func TestInternalRecordParser_OptionalCategory(t *testing.T) {
	parser := newInternalParser(t, nil)

	csvContent := "Transaction_Date,Payee,Amount\n2025-03-01,Uber,-23.10\n"
	records, _, err := parser.Parse(context.Background(), strings.NewReader(csvContent), "internal.csv")
	if err != nil {
		t.Fatalf("Category column must be optional: %v", err)
	}
	if len(records) != 1 || records[0].Vendor != "Uber" || records[0].Category != "" {
		t.Errorf("unexpected records %v", records)
	}
}

func TestAutoDetectBankConfig(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		expected string
	}{
		{name: "standard", header: "Date,Description,Amount", expected: "standard"},
		{name: "posting", header: "Posting Date,Description,Amount,Balance", expected: "posting"},
		{name: "semicolon", header: "Value Date;Transaction Details;Amount", expected: "semicolon"},
		{name: "quoted with bom", header: "\ufeff\"Date\",\"Description\",\"Amount\"", expected: "standard"},
		{name: "unknown falls back", header: "foo,bar", expected: "standard"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AutoDetectBankConfig(tt.header).Name; got != tt.expected {
				t.Errorf("AutoDetectBankConfig() = %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestNewBankStatementParserWithAutoDetect(t *testing.T) {
	path := createTempCSVFile(t, "Posting Date,Description,Amount\n03/01/2025,Fuel,-40.00\n")

	parser, err := NewBankStatementParserWithAutoDetect(path, logger.NewNopLogger())
	if err != nil {
		t.Fatalf("auto detect failed: %v", err)
	}
	if parser.GetBankConfig().Name != "posting" {
		t.Errorf("Expected posting layout, got %s", parser.GetBankConfig().Name)
	}
}

func TestDetectBankConfigFromReader(t *testing.T) {
	csvContent := "Value Date;Transaction Details;Amount\r\n02.03.2025;Rent;-1200.00\r\n"

	config, r := DetectBankConfigFromReader(strings.NewReader(csvContent))
	if config.Name != "semicolon" {
		t.Fatalf("Expected semicolon layout, got %s", config.Name)
	}

	parser := newBankParser(t, config)
	txs, _, err := parser.Parse(context.Background(), r, "upload.csv")
	if err != nil {
		t.Fatalf("Failed to parse after detection: %v", err)
	}
	if len(txs) != 1 || txs[0].Description != "Rent" {
		t.Errorf("detection should not consume the stream, got %v", txs)
	}
}

func TestConcurrentParser(t *testing.T) {
	cp := NewConcurrentParser(newBankParser(t, nil), newInternalParser(t, nil))

	datasets, err := cp.ParseReaders(context.Background(),
		Source{Name: "bank.csv", Reader: strings.NewReader("Date,Description,Amount\n2025-03-01,A,1\n2025-03-02,B,x\n")},
		Source{Name: "internal.csv", Reader: strings.NewReader("Date,Vendor,Amount\n2025-03-01,A,1\n")},
	)
	if err != nil {
		t.Fatalf("ParseReaders() error = %v", err)
	}
	if len(datasets.Bank) != 1 || len(datasets.Internal) != 1 {
		t.Errorf("unexpected datasets: %d bank, %d internal", len(datasets.Bank), len(datasets.Internal))
	}
	if w := datasets.Warnings(); len(w) != 1 || !strings.Contains(w[0], "bank.csv") {
		t.Errorf("unexpected warnings %v", w)
	}

	_, err = cp.ParseReaders(context.Background(),
		Source{Name: "bank.csv", Reader: strings.NewReader("Date,Description,Amount\n")},
		Source{Name: "internal.csv", Reader: strings.NewReader("Date,Amount\n")},
	)
	if !errors.IsCode(err, errors.CodeMissingColumn) {
		t.Errorf("Expected missing column error, got %v", err)
	}
}

func TestParseContext_GetColumnIndex(t *testing.T) {
	bp := NewBaseParser(nil, logger.NewNopLogger())
	parseCtx := NewParseContext(context.Background(), "test.csv")
	parseCtx.Headers = []string{"Date", "Transaction_Details", "amount"}
	bp.buildHeaderMap(parseCtx, map[string]string{"Transaction Details": "Description"})

	tests := []struct {
		name     string
		expected int
	}{
		{"Date", 0},
		{"date", 0},
		{"Transaction Details", 1},
		{"Description", 1},
		{"AMOUNT", 2},
		{"Vendor", -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseCtx.GetColumnIndex(tt.name); got != tt.expected {
				t.Errorf("GetColumnIndex(%q) = %d, want %d", tt.name, got, tt.expected)
			}
		})
	}
}

func TestParse_Cancelled(t *testing.T) {
	parser := newBankParser(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := parser.Parse(ctx, strings.NewReader("Date,Description,Amount\n2025-03-01,A,1\n"), "bank.csv")
	if !errors.IsCode(err, errors.CodeCancelled) {
		t.Errorf("Expected cancellation error, got %v", err)
	}
}

func BenchmarkBankStatementParser_Parse(b *testing.B) {
	var sb strings.Builder
	sb.WriteString("Date,Description,Amount\n")
	for i := 0; i < 10000; i++ {
		fmt.Fprintf(&sb, "2025-03-%02d,VENDOR %d,%d.%02d\n", i%28+1, i%50, i%1000, i%100)
	}
	content := sb.String()

	parser, err := NewBankStatementParser(nil, logger.NewNopLogger())
	if err != nil {
		b.Fatalf("Failed to create parser: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := parser.Parse(context.Background(), strings.NewReader(content), "bench.csv"); err != nil {
			b.Fatalf("Failed to parse: %v", err)
		}
	}
}
