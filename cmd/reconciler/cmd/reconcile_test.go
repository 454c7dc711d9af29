package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/pkg/errors"
)

const testBankCSV = `Date,Description,Amount
2025-03-01,OFFICE DEPOT,-100.00
2025-03-02,STARBUCKS #1234,-4.50
2025-03-05,Office Depot,9500.00
2025-03-06,UNKNOWN WIRE,-77.00
2025-03-07,BAD ROW,abc
`

const testInternalCSV = `Date,Vendor,Amount,Category
2025-03-01,Office Depot Inc,-100.00,Office Supplies
2025-02-01,Office Depot,100.00,Office Supplies
2025-02-02,Office Depot,150.00,Office Supplies
2025-02-03,Office Depot,125.50,Office Supplies
2025-02-04,Office Depot,110.00,Office Supplies
2025-03-02,Starbucks,-4.50,Meals
2025-03-10,Uber,-23.00,Travel
`

// testEnv holds input files and a private database for one test
type testEnv struct {
	dir      string
	bank     string
	internal string
	db       string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dir := t.TempDir()
	env := &testEnv{
		dir:      dir,
		bank:     filepath.Join(dir, "bank_statement.csv"),
		internal: filepath.Join(dir, "internal_records.csv"),
		db:       filepath.Join(dir, "reports.db"),
	}
	require.NoError(t, os.WriteFile(env.bank, []byte(testBankCSV), 0644))
	require.NoError(t, os.WriteFile(env.internal, []byte(testInternalCSV), 0644))
	return env
}

// run executes the command tree with args and returns stdout, stderr and the error
func (e *testEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	root := NewRootCommand()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{"--db", e.db, "--log-level", "error"}, args...))

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func (e *testEnv) reconcileArgs(extra ...string) []string {
	args := []string{
		"reconcile",
		"--bank", e.bank,
		"--internal", e.internal,
		"--categorize=false",
	}
	return append(args, extra...)
}

func TestReconcileJSON(t *testing.T) {
	env := newTestEnv(t)

	stdout, _, err := env.run(t, env.reconcileArgs("--format", "json")...)
	require.NoError(t, err)

	var report models.ReconciliationReport
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))

	assert.Equal(t, 4, report.Summary.TotalBankTransactions)
	assert.Equal(t, 7, report.Summary.TotalInternalRecords)
	assert.Equal(t, 2, report.Summary.MatchedCount)
	assert.Equal(t, 1, report.Summary.AnomalyCount)
	require.Len(t, report.Anomalies, 1)
	assert.Equal(t, "Office Depot", report.Anomalies[0].Description)
	assert.NotEmpty(t, report.Warnings, "the unparsable row should be reported")
}

func TestReconcileConsole(t *testing.T) {
	env := newTestEnv(t)

	stdout, _, err := env.run(t, env.reconcileArgs("--format", "console", "--color=false")...)
	require.NoError(t, err)

	assert.Contains(t, stdout, "STARBUCKS #1234")
	assert.Contains(t, stdout, "UNKNOWN WIRE")
	assert.NotContains(t, stdout, "\x1b[", "colour was disabled")
}

func TestReconcileToFile(t *testing.T) {
	env := newTestEnv(t)
	output := filepath.Join(env.dir, "out", "report.csv")

	stdout, stderr, err := env.run(t, env.reconcileArgs("--format", "csv", "--output", output)...)
	require.NoError(t, err)

	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "Report written to")

	content, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Contains(t, string(content), "Matched Transactions")
	assert.Contains(t, string(content), "Internal_Vendor")
}

func TestReconcileFlagsOverrideConfig(t *testing.T) {
	env := newTestEnv(t)

	// no candidate can pass a threshold of 100
	stdout, _, err := env.run(t, env.reconcileArgs("--format", "json", "--threshold", "100")...)
	require.NoError(t, err)

	var report models.ReconciliationReport
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))
	assert.Zero(t, report.Summary.MatchedCount)
	assert.Equal(t, 4, report.Summary.UnmatchedBankCount)
}

func TestReconcilePreset(t *testing.T) {
	env := newTestEnv(t)
	configPath := filepath.Join(env.dir, "reconciler.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("matching_preset: strict\n"), 0644))

	stdout, _, err := env.run(t, "--config", configPath, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, stdout, "matching_preset: strict")
	assert.Contains(t, stdout, "confidence_threshold: 80")

	// an explicit flag still wins over the preset
	stdout, _, err = env.run(t, append([]string{"--config", configPath}, env.reconcileArgs("--format", "json", "--threshold", "100")...)...)
	require.NoError(t, err)

	var report models.ReconciliationReport
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))
	assert.Zero(t, report.Summary.MatchedCount)
}

func TestReconcileConfigFile(t *testing.T) {
	env := newTestEnv(t)
	configPath := filepath.Join(env.dir, "reconciler.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("report:\n  format: json\n"), 0644))

	stdout, _, err := env.run(t, append([]string{"--config", configPath}, env.reconcileArgs()...)...)
	require.NoError(t, err)
	assert.True(t, json.Valid([]byte(stdout)), "format from the config file should apply")
}

func TestReconcileSaveAndBrowse(t *testing.T) {
	env := newTestEnv(t)

	_, stderr, err := env.run(t, env.reconcileArgs("--format", "json", "--save", "  March close  ")...)
	require.NoError(t, err)

	match := regexp.MustCompile(`Saved report "March close" as ([0-9a-f-]{36})`).FindStringSubmatch(stderr)
	require.Len(t, match, 2, "stderr: %s", stderr)
	id := match[1]

	stdout, _, err := env.run(t, "reports", "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, id)
	assert.Contains(t, stdout, "March close")
	assert.Contains(t, stdout, "Page 1 of 1 (1 reports)")

	stdout, _, err = env.run(t, "reports", "show", id, "--format", "json")
	require.NoError(t, err)

	var report models.ReconciliationReport
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))
	assert.Equal(t, 2, report.Summary.MatchedCount)
}

func TestReportsListEmpty(t *testing.T) {
	env := newTestEnv(t)

	stdout, _, err := env.run(t, "reports", "list")
	require.NoError(t, err)
	assert.Equal(t, "No saved reports.\n", stdout)
}

func TestReportsShowUnknownID(t *testing.T) {
	env := newTestEnv(t)

	_, _, err := env.run(t, "reports", "show", "does-not-exist")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeNotFound))
}

func TestReconcileErrors(t *testing.T) {
	env := newTestEnv(t)

	noHeader := filepath.Join(env.dir, "ledger.csv")
	require.NoError(t, os.WriteFile(noHeader, []byte("Date,Amount\n2025-03-01,-100.00\n"), 0644))

	tests := []struct {
		name     string
		args     []string
		wantCode errors.ErrorCode
		wantExit int
	}{
		{
			name:     "missing bank file",
			args:     []string{"reconcile", "--bank", filepath.Join(env.dir, "nope.csv"), "--internal", env.internal},
			wantCode: errors.CodeFileNotFound,
			wantExit: 2,
		},
		{
			name:     "bank path is a directory",
			args:     []string{"reconcile", "--bank", env.dir, "--internal", env.internal},
			wantExit: 2,
		},
		{
			name:     "internal records without vendor column",
			args:     []string{"reconcile", "--bank", env.bank, "--internal", noHeader, "--categorize=false"},
			wantCode: errors.CodeMissingColumn,
			wantExit: 3,
		},
		{
			name:     "empty internal path",
			args:     []string{"reconcile", "--bank", env.bank, "--internal", ""},
			wantCode: errors.CodeInvalidConfig,
			wantExit: 4,
		},
		{
			name:     "threshold out of range",
			args:     env.reconcileArgs("--threshold", "150"),
			wantCode: errors.CodeInvalidConfig,
			wantExit: 4,
		},
		{
			name:     "unknown matching preset",
			args:     env.reconcileArgs("--preset", "loose"),
			wantCode: errors.CodeInvalidConfig,
			wantExit: 4,
		},
		{
			name:     "blank save name",
			args:     env.reconcileArgs("--save", "   "),
			wantCode: errors.CodeInvalidConfig,
			wantExit: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := env.run(t, tt.args...)
			require.Error(t, err)

			if tt.wantCode != "" {
				assert.True(t, errors.IsCode(err, tt.wantCode), "got %v", err)
			}

			var out bytes.Buffer
			assert.Equal(t, tt.wantExit, NewCLIErrorHandler(&out, false).HandleError(err))
			assert.True(t, strings.HasPrefix(out.String(), "Error: "))
		})
	}
}

func TestReconcileRequiresFlags(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name    string
		args    []string
		missing string
	}{
		{"internal missing", []string{"reconcile", "--bank", env.bank}, "internal"},
		{"bank missing", []string{"reconcile", "--internal", env.internal}, "bank"},
		{"bank path does not exist", []string{"reconcile", "--bank", filepath.Join(env.dir, "nope.csv")}, "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := env.run(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.missing)
			assert.False(t, errors.IsCode(err, errors.CodeFileNotFound), "flags are checked before files")

			var out bytes.Buffer
			assert.Equal(t, 1, NewCLIErrorHandler(&out, false).HandleError(err))
		})
	}
}
