package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"bank-reconciliation-service/cmd/reconciler/config"
	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/internal/reconciler"
	"bank-reconciliation-service/internal/reporter"
	"bank-reconciliation-service/internal/storage"
	"bank-reconciliation-service/pkg/errors"
)

// reconcileOptions holds the flags of the reconcile command that are not
// configuration overrides
type reconcileOptions struct {
	bankFile     string
	internalFile string
	outputFile   string
	saveName     string
	showProgress bool
}

func newReconcileCommand(a *app) *cobra.Command {
	opts := &reconcileOptions{}
	defaults := config.Default()

	reconcileCmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Reconcile a bank statement with internal records",
		Long: `Reconcile matches every bank statement transaction against the internal
ledger records, flags unmatched bank transactions whose amount is unusual
for the vendor, and summarizes spending by category.

This command requires:
- A bank statement file (CSV with Date, Description, Amount)
- An internal records file (CSV with Date, Vendor, Amount and optional Category)

Rows with an unparsable date or amount are skipped and listed as warnings.

Examples:
  # Print the report to the terminal
  reconciler reconcile --bank bank_statement.csv --internal internal_records.csv

  # Export CSV sections to a file
  reconciler reconcile -b bank.csv -i ledger.csv --format csv --output report.csv

  # Stricter matching with outlier detection
  reconciler reconcile -b bank.csv -i ledger.csv --threshold 80 --outlier-detection

  # Save the report under a name for later
  reconciler reconcile -b bank.csv -i ledger.csv --save "March close"`,

		// cobra checks required flags after PreRunE, so file checks run here
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateReconcileFlags(opts); err != nil {
				return err
			}
			return runReconcile(cmd, a, opts)
		},
	}

	flags := reconcileCmd.Flags()

	// Required flags
	flags.StringVarP(&opts.bankFile, "bank", "b", "", "path to bank statement CSV file (required)")
	flags.StringVarP(&opts.internalFile, "internal", "i", "", "path to internal records CSV file (required)")
	_ = reconcileCmd.MarkFlagRequired("bank")
	_ = reconcileCmd.MarkFlagRequired("internal")

	// Output flags
	flags.StringP("format", "f", defaults.Report.Format, "output format: console, json, csv")
	flags.StringVarP(&opts.outputFile, "output", "o", "", "output file path (default: stdout)")
	flags.StringVar(&opts.saveName, "save", "", "save the report under this name")
	flags.Bool("color", defaults.Report.UseColors, "colour console output")
	flags.Int("list-limit", defaults.Report.ListLimit, "rows shown per console section, 0 for all")
	bindFlag(flags, "format", "report.format")
	bindFlag(flags, "color", "report.use_colors")
	bindFlag(flags, "list-limit", "report.list_limit")

	// Matching configuration flags
	flags.String("preset", defaults.MatchingPreset, "matching preset: default, strict, relaxed")
	bindFlag(flags, "preset", "matching_preset")
	flags.Float64("threshold", defaults.Matching.ConfidenceThreshold, "confidence a match must exceed (0-100)")
	flags.Int("date-tolerance", defaults.Matching.DateToleranceDays, "date tolerance in days")
	flags.Float64("amount-tolerance", defaults.Matching.AmountTolerance, "absolute amount tolerance")
	bindFlag(flags, "threshold", "matching.confidence_threshold")
	bindFlag(flags, "date-tolerance", "matching.date_tolerance_days")
	bindFlag(flags, "amount-tolerance", "matching.amount_tolerance")

	// Parsing, anomaly and categorizer flags
	flags.String("bank-format", defaults.Parsing.BankFormat, "bank statement layout: auto, standard, posting, semicolon")
	flags.Bool("outlier-detection", defaults.Anomaly.OutlierDetection, "also flag unusual transaction volumes per vendor")
	flags.String("vendor-selection", string(defaults.Anomaly.VendorSelection), "vendor chosen for anomaly checks: first, best")
	flags.Bool("categorize", defaults.Categorizer.Enabled, "predict categories of internal records")
	flags.String("model", defaults.Categorizer.ModelPath, "category model file, empty to disable persistence")
	bindFlag(flags, "bank-format", "parsing.bank_format")
	bindFlag(flags, "outlier-detection", "anomaly.outlier_detection")
	bindFlag(flags, "vendor-selection", "anomaly.vendor_selection")
	bindFlag(flags, "categorize", "categorizer.enabled")
	bindFlag(flags, "model", "categorizer.model_path")

	// UI flags
	flags.BoolVar(&opts.showProgress, "progress", false, "show progress indicators")

	return reconcileCmd
}

func validateReconcileFlags(opts *reconcileOptions) error {
	if strings.TrimSpace(opts.bankFile) == "" {
		return errors.ConfigurationError("bank", opts.bankFile, fmt.Errorf("a bank statement path is required"))
	}
	if strings.TrimSpace(opts.internalFile) == "" {
		return errors.ConfigurationError("internal", opts.internalFile, fmt.Errorf("an internal records path is required"))
	}

	if err := validateFileExists(opts.bankFile); err != nil {
		return err
	}
	if err := validateFileExists(opts.internalFile); err != nil {
		return err
	}

	if opts.saveName != "" {
		name := strings.TrimSpace(opts.saveName)
		if name == "" || len([]rune(name)) > storage.MaxNameLength {
			return errors.ConfigurationError("save", opts.saveName,
				fmt.Errorf("report name must hold 1 to %d characters", storage.MaxNameLength))
		}
	}

	return nil
}

func validateFileExists(filePath string) error {
	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return errors.FileError(errors.CodeFileNotFound, filePath, err)
	}
	if os.IsPermission(err) {
		return errors.FileError(errors.CodeFilePermission, filePath, err)
	}
	if err != nil {
		return errors.FileError("", filePath, err)
	}

	if info.IsDir() {
		return errors.FileError("", filePath, fmt.Errorf("is a directory, expected a file"))
	}

	// Check if file is readable
	file, err := os.Open(filePath)
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, filePath, err)
	}
	file.Close()

	return nil
}

func runReconcile(cmd *cobra.Command, a *app, opts *reconcileOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	stderr := cmd.ErrOrStderr()
	a.logger.WithField("bank_file", opts.bankFile).
		WithField("internal_file", opts.internalFile).
		Debug("Starting reconciliation")

	service, err := reconciler.NewService(a.config.ReconcilerConfig(), a.logger)
	if err != nil {
		return err
	}

	if opts.showProgress {
		service.AddProgressCallback(func(progress reconciler.Progress) {
			fmt.Fprintf(stderr, "\r[%d/%d] %-12s (%.1f%% complete)",
				progress.CompletedSteps, progress.TotalSteps,
				progress.CurrentStep, progress.PercentComplete)
		})
	}

	report, err := service.ReconcileFiles(ctx, opts.bankFile, opts.internalFile)
	if opts.showProgress {
		fmt.Fprintln(stderr)
	}
	if err != nil {
		return err
	}

	reportConfig := a.config.ReportConfig()
	if opts.outputFile != "" {
		reportConfig.UseColors = false
	}
	generator, err := reporter.NewSafeReportGenerator(reportConfig, a.logger)
	if err != nil {
		return err
	}

	if opts.outputFile != "" {
		written, err := generator.GenerateToFile(report, opts.outputFile)
		if err != nil {
			return err
		}
		fmt.Fprintf(stderr, "Report written to %s\n", written)
	} else if err := generator.GenerateReportSafely(report, cmd.OutOrStdout()); err != nil {
		return err
	}

	if opts.saveName != "" {
		if err := saveReport(ctx, a, opts.saveName, report, stderr); err != nil {
			return err
		}
	}

	if a.verbose {
		s := report.Summary
		fmt.Fprintf(stderr, "\nReconciliation completed successfully.\n")
		fmt.Fprintf(stderr, "Processed %d bank transactions and %d internal records.\n",
			s.TotalBankTransactions, s.TotalInternalRecords)
		fmt.Fprintf(stderr, "Found %d matches, %d unmatched bank transactions, %d unmatched internal records.\n",
			s.MatchedCount, s.UnmatchedBankCount, s.UnmatchedInternalCount)
		if s.AnomalyCount > 0 {
			fmt.Fprintf(stderr, "Flagged %d anomalies.\n", s.AnomalyCount)
		}
	}

	return nil
}

func saveReport(ctx context.Context, a *app, name string, report *models.ReconciliationReport, out io.Writer) error {
	store, err := storage.NewStorage(ctx, a.config.Storage.Path, a.logger)
	if err != nil {
		return err
	}
	defer store.Close()

	saved, err := store.Save(ctx, name, report)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Saved report %q as %s\n", saved.Name, saved.ID)
	return nil
}
