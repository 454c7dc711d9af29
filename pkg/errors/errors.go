package errors

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// ErrorCategory groups errors by how the caller is expected to react to them
type ErrorCategory string

const (
	// CategoryInput covers malformed datasets. A run that hits one is aborted.
	CategoryInput ErrorCategory = "input"
	// CategoryParse covers single unusable rows. They are skipped, never fatal.
	CategoryParse ErrorCategory = "parse"
	// CategoryTraining covers classifier build/load failures. Callers fall back to pass-through.
	CategoryTraining      ErrorCategory = "training"
	CategoryInternal      ErrorCategory = "internal"
	CategoryFile          ErrorCategory = "file"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryStorage       ErrorCategory = "storage"
	CategoryNetwork       ErrorCategory = "network"
)

// ErrorCode identifies a specific failure within a category
type ErrorCode string

const (
	// Input errors
	CodeMissingColumn   ErrorCode = "missing_column"
	CodeEmptyDataset    ErrorCode = "empty_dataset"
	CodeInvalidFormat   ErrorCode = "invalid_format"
	CodeUnsupportedType ErrorCode = "unsupported_type"

	// Row errors
	CodeInvalidAmount ErrorCode = "invalid_amount"
	CodeInvalidDate   ErrorCode = "invalid_date"
	CodeMissingField  ErrorCode = "missing_field"

	// Training errors
	CodeInsufficientData ErrorCode = "insufficient_training_data"
	CodeModelLoad        ErrorCode = "model_load_failed"
	CodeModelSave        ErrorCode = "model_save_failed"

	// Internal errors
	CodeComputationFailed ErrorCode = "computation_failed"
	CodeCancelled         ErrorCode = "cancelled"

	// File errors
	CodeFileNotFound   ErrorCode = "file_not_found"
	CodeFilePermission ErrorCode = "file_permission"

	// Configuration errors
	CodeInvalidConfig ErrorCode = "invalid_config"

	// Storage errors
	CodeNotFound      ErrorCode = "not_found"
	CodeInvalidRecord ErrorCode = "invalid_record"
	CodeQueryFailed   ErrorCode = "query_failed"

	// Network errors
	CodeBadRequest ErrorCode = "bad_request"
)

// ReconcilerError is the base error type for all application errors
type ReconcilerError struct {
	Category   ErrorCategory     `json:"category"`
	Code       ErrorCode         `json:"code"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Context provides additional information about the error
type Context map[string]interface{}

func (e *ReconcilerError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", msg, e.Suggestion)
	}
	return msg
}

func (e *ReconcilerError) Unwrap() error {
	return e.Cause
}

// IsFatal reports whether the error must abort a reconciliation run.
func (e *ReconcilerError) IsFatal() bool {
	switch e.Category {
	case CategoryParse, CategoryTraining:
		return false
	default:
		return true
	}
}

// GetExitCode returns an appropriate exit code for the error
func (e *ReconcilerError) GetExitCode() int {
	switch e.Category {
	case CategoryFile:
		return 2
	case CategoryInput, CategoryParse:
		return 3
	case CategoryConfiguration:
		return 4
	case CategoryInternal, CategoryTraining:
		return 5
	case CategoryStorage, CategoryNetwork:
		return 6
	default:
		return 1
	}
}

// HTTPStatus maps the error onto a response status for the API
func (e *ReconcilerError) HTTPStatus() int {
	switch {
	case e.Code == CodeNotFound:
		return http.StatusNotFound
	case e.Category == CategoryInput, e.Category == CategoryParse,
		e.Code == CodeBadRequest, e.Code == CodeInvalidRecord:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// WithContext adds context information to the error
func (e *ReconcilerError) WithContext(key string, value interface{}) *ReconcilerError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for fixing the error
func (e *ReconcilerError) WithSuggestion(suggestion string) *ReconcilerError {
	e.Suggestion = suggestion
	return e
}

// New creates a new ReconcilerError
func New(category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	return &ReconcilerError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with ReconcilerError context
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	if err == nil {
		return nil
	}

	return &ReconcilerError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

func build(category ErrorCategory, code ErrorCode, message string, err error) *ReconcilerError {
	if err != nil {
		return Wrap(err, category, code, message)
	}
	return New(category, code, message)
}

// MalformedInput reports a dataset that cannot be processed at all.
func MalformedInput(code ErrorCode, source string, detail string, err error) *ReconcilerError {
	var message, suggestion string

	switch code {
	case CodeMissingColumn:
		message = fmt.Sprintf("missing required column '%s' in %s", detail, source)
		suggestion = "verify the file has all required columns with correct headers"
	case CodeEmptyDataset:
		message = fmt.Sprintf("%s contains no header row", source)
		suggestion = "provide a CSV file with a header row"
	case CodeUnsupportedType:
		message = fmt.Sprintf("unsupported file type for %s: %s", source, detail)
		suggestion = "upload CSV files only"
	default:
		message = fmt.Sprintf("malformed input in %s: %s", source, detail)
		suggestion = "check that the file is valid CSV"
	}

	return build(CategoryInput, code, message, err).
		WithSuggestion(suggestion).
		WithContext("source", source)
}

// UnparsableRow reports a row excluded from processing.
func UnparsableRow(code ErrorCode, source string, line int, column string, value string, err error) *ReconcilerError {
	var message string

	switch code {
	case CodeInvalidAmount:
		message = fmt.Sprintf("invalid amount in %s at line %d, column '%s': '%s'", source, line, column, value)
	case CodeInvalidDate:
		message = fmt.Sprintf("invalid date in %s at line %d, column '%s': '%s'", source, line, column, value)
	case CodeMissingField:
		message = fmt.Sprintf("missing value in %s at line %d, column '%s'", source, line, column)
	default:
		message = fmt.Sprintf("unparsable row in %s at line %d", source, line)
	}

	return build(CategoryParse, code, message, err).
		WithContext("source", source).
		WithContext("line", line).
		WithContext("column", column).
		WithContext("value", value)
}

// InsufficientTrainingData reports a classifier that could not be built or loaded.
func InsufficientTrainingData(code ErrorCode, detail string, err error) *ReconcilerError {
	var message string

	switch code {
	case CodeInsufficientData:
		message = fmt.Sprintf("not enough training data: %s", detail)
	case CodeModelLoad:
		message = fmt.Sprintf("could not load model from %s", detail)
	case CodeModelSave:
		message = fmt.Sprintf("could not save model to %s", detail)
	default:
		message = fmt.Sprintf("classifier unavailable: %s", detail)
	}

	return build(CategoryTraining, code, message, err).
		WithSuggestion("records will keep their existing category")
}

// InternalComputation reports an unexpected failure during matching or scoring.
func InternalComputation(code ErrorCode, operation string, err error) *ReconcilerError {
	var message string

	switch code {
	case CodeCancelled:
		message = fmt.Sprintf("%s was cancelled", operation)
	default:
		message = fmt.Sprintf("unexpected error during %s", operation)
	}

	return build(CategoryInternal, code, message, err).
		WithContext("operation", operation)
}

// FileError creates a file-related error
func FileError(code ErrorCode, path string, err error) *ReconcilerError {
	var message, suggestion string

	switch code {
	case CodeFileNotFound:
		message = fmt.Sprintf("file not found: %s", path)
		suggestion = "check if the file path is correct and the file exists"
	case CodeFilePermission:
		message = fmt.Sprintf("permission denied accessing file: %s", path)
		suggestion = "check file permissions and ensure you have read access"
	default:
		message = fmt.Sprintf("file error: %s", path)
		suggestion = "check the file and try again"
	}

	return build(CategoryFile, code, message, err).
		WithSuggestion(suggestion).
		WithContext("file_path", path)
}

// ConfigurationError creates a configuration-related error
func ConfigurationError(setting string, value interface{}, err error) *ReconcilerError {
	message := fmt.Sprintf("invalid configuration for '%s': %v", setting, value)

	return build(CategoryConfiguration, CodeInvalidConfig, message, err).
		WithSuggestion("check the configuration documentation for valid values").
		WithContext("setting", setting).
		WithContext("value", value)
}

// StorageError creates a report-store error
func StorageError(code ErrorCode, operation string, err error) *ReconcilerError {
	var message string

	switch code {
	case CodeNotFound:
		message = fmt.Sprintf("%s: report not found", operation)
	case CodeInvalidRecord:
		message = fmt.Sprintf("%s: invalid report", operation)
	default:
		message = fmt.Sprintf("%s failed", operation)
	}

	return build(CategoryStorage, code, message, err).
		WithContext("operation", operation)
}

// BadRequest creates an error for a rejected API request
func BadRequest(message string) *ReconcilerError {
	return New(CategoryNetwork, CodeBadRequest, message)
}

// ErrorSummary provides a summary of multiple errors
type ErrorSummary struct {
	Total        int                   `json:"total"`
	ByCategory   map[ErrorCategory]int `json:"by_category"`
	ByCode       map[ErrorCode]int     `json:"by_code"`
	Errors       []*ReconcilerError    `json:"-"`
	SampleErrors []*ReconcilerError    `json:"sample_errors,omitempty"`
}

// NewErrorSummary creates a new error summary
func NewErrorSummary(errs []*ReconcilerError) *ErrorSummary {
	summary := &ErrorSummary{
		Total:      len(errs),
		ByCategory: make(map[ErrorCategory]int),
		ByCode:     make(map[ErrorCode]int),
		Errors:     errs,
	}

	for _, err := range errs {
		summary.ByCategory[err.Category]++
		summary.ByCode[err.Code]++
	}

	maxSamples := 5
	if len(errs) > maxSamples {
		summary.SampleErrors = errs[:maxSamples]
	} else {
		summary.SampleErrors = errs
	}

	return summary
}

func (es *ErrorSummary) Error() string {
	if es.Total == 0 {
		return "no errors"
	}

	if es.Total == 1 {
		return es.Errors[0].Error()
	}

	var categories []string
	for category, count := range es.ByCategory {
		categories = append(categories, fmt.Sprintf("%s: %d", category, count))
	}
	sort.Strings(categories)

	return fmt.Sprintf("%d errors occurred (%s)", es.Total, strings.Join(categories, ", "))
}

// HasCode checks if the summary contains errors with the given code
func (es *ErrorSummary) HasCode(code ErrorCode) bool {
	return es.ByCode[code] > 0
}

// AsReconcilerError extracts a ReconcilerError from an error chain
func AsReconcilerError(err error) (*ReconcilerError, bool) {
	var reconcilerErr *ReconcilerError
	if errors.As(err, &reconcilerErr) {
		return reconcilerErr, true
	}
	return nil, false
}

// WrapIfNeeded wraps an error if it's not already a ReconcilerError
func WrapIfNeeded(err error, category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	if err == nil {
		return nil
	}

	if reconcilerErr, ok := AsReconcilerError(err); ok {
		return reconcilerErr
	}

	return Wrap(err, category, code, message)
}

// IsCode reports whether err carries a ReconcilerError with the given code
func IsCode(err error, code ErrorCode) bool {
	reconcilerErr, ok := AsReconcilerError(err)
	return ok && reconcilerErr.Code == code
}
