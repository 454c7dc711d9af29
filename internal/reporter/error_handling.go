package reporter

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/pkg/errors"
	"bank-reconciliation-service/pkg/logger"
)

// SafeReportGenerator wraps ReportGenerator with output fallbacks. Reports are
// rendered into memory first so a failed format never leaves half a report
// behind.
type SafeReportGenerator struct {
	*ReportGenerator
	logger logger.Logger
}

// NewSafeReportGenerator creates a new safe report generator with error handling
func NewSafeReportGenerator(config *ReportConfig, log logger.Logger) (*SafeReportGenerator, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	generator, err := NewReportGenerator(config)
	if err != nil {
		return nil, errors.ConfigurationError("report", config, err).
			WithSuggestion("Check the report configuration values")
	}

	return &SafeReportGenerator{
		ReportGenerator: generator,
		logger:          log.WithComponent("reporter"),
	}, nil
}

// GenerateReportSafely renders the report and writes it to writer. If the
// configured format fails the console format is used instead.
func (srg *SafeReportGenerator) GenerateReportSafely(report *models.ReconciliationReport, writer io.Writer) error {
	if report == nil {
		return errors.InternalComputation(errors.CodeComputationFailed, "report generation",
			fmt.Errorf("reconciliation report cannot be nil"))
	}
	if writer == nil {
		return errors.InternalComputation(errors.CodeComputationFailed, "report generation",
			fmt.Errorf("output writer cannot be nil"))
	}

	srg.logger.WithFields(logger.Fields{
		"format": srg.config.Format,
		"output": getWriterDescription(writer),
	}).Debug("Starting report generation")

	content, err := srg.render(report)
	if err != nil {
		return err
	}

	if _, err := writer.Write(content); err != nil {
		return srg.wrapGenerationError(err)
	}
	return nil
}

// GenerateToFile writes the report to path and returns the path actually
// written. When path cannot be created the report goes to a backup file in
// the system temp directory.
func (srg *SafeReportGenerator) GenerateToFile(report *models.ReconciliationReport, path string) (string, error) {
	content, err := srg.render(report)
	if err != nil {
		return "", err
	}

	writeErr := writeFile(path, content)
	if writeErr == nil {
		srg.logger.WithField("file", path).Info("Report written")
		return path, nil
	}

	if !isFileError(writeErr) {
		return "", errors.FileError(fileErrorCode(writeErr), path, writeErr)
	}

	backupPath := generateBackupPath(path)
	srg.logger.WithFields(logger.Fields{
		"original_file": path,
		"backup_file":   backupPath,
	}).WithError(writeErr).Warn("Could not write report, attempting backup location")

	if err := writeFile(backupPath, content); err != nil {
		return "", errors.FileError(fileErrorCode(writeErr), path, writeErr).
			WithContext("backup_file", backupPath).
			WithContext("backup_error", err.Error())
	}

	return backupPath, nil
}

// render produces the report bytes, falling back to the console format
func (srg *SafeReportGenerator) render(report *models.ReconciliationReport) ([]byte, error) {
	var buf bytes.Buffer
	err := srg.GenerateReport(report, &buf)
	if err == nil {
		return buf.Bytes(), nil
	}

	if srg.config.Format == FormatConsole {
		return nil, srg.wrapGenerationError(err)
	}

	srg.logger.WithError(err).WithField("fallback_format", FormatConsole).
		Warn("Primary report generation failed, attempting format fallback")

	fallbackConfig := *srg.config
	fallbackConfig.Format = FormatConsole
	fallbackConfig.UseColors = false

	fallbackGenerator, genErr := NewReportGenerator(&fallbackConfig)
	if genErr != nil {
		return nil, srg.wrapGenerationError(err)
	}

	buf.Reset()
	fmt.Fprintf(&buf, "NOTE: Report generated in fallback format due to error with requested format\n")
	fmt.Fprintf(&buf, "Original error: %v\n\n", err)

	if fbErr := fallbackGenerator.GenerateReport(report, &buf); fbErr != nil {
		return nil, srg.wrapGenerationError(
			fmt.Errorf("both primary and fallback generation failed: primary=%v, fallback=%v", err, fbErr))
	}

	return buf.Bytes(), nil
}

// wrapGenerationError wraps generation errors with context
func (srg *SafeReportGenerator) wrapGenerationError(err error) error {
	if reconcilerErr, ok := errors.AsReconcilerError(err); ok {
		return reconcilerErr
	}

	return errors.InternalComputation(errors.CodeComputationFailed, "report generation", err).
		WithSuggestion("Check the output destination and report format settings")
}

func writeFile(path string, content []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, content, 0o644)
}

// isFileError checks if the error is one a different location could avoid
func isFileError(err error) bool {
	return os.IsPermission(err) || os.IsNotExist(err) || os.IsExist(err)
}

func fileErrorCode(err error) errors.ErrorCode {
	if os.IsPermission(err) {
		return errors.CodeFilePermission
	}
	if os.IsNotExist(err) {
		return errors.CodeFileNotFound
	}
	return ""
}

// generateBackupPath places name_backup.ext in the system temp directory
func generateBackupPath(originalPath string) string {
	base := filepath.Base(originalPath)
	ext := filepath.Ext(base)
	name := base[:len(base)-len(ext)]

	return filepath.Join(os.TempDir(), fmt.Sprintf("%s_backup%s", name, ext))
}

func getWriterDescription(writer io.Writer) string {
	switch w := writer.(type) {
	case *os.File:
		if w.Name() != "" {
			return fmt.Sprintf("file:%s", w.Name())
		}
		return "file:unnamed"
	default:
		return fmt.Sprintf("writer:%T", writer)
	}
}
