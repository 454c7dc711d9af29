package logger

import (
	"time"
)

// OperationLogger provides structured logging for a multi-step operation with timing
type OperationLogger struct {
	logger    Logger
	operation string
	fields    Fields
	startTime time.Time
	stepStart time.Time
}

// NewOperationLogger creates a new operation logger
func NewOperationLogger(operation string, logger Logger) *OperationLogger {
	if logger == nil {
		logger = GetGlobalLogger()
	}

	now := time.Now()
	ol := &OperationLogger{
		logger:    logger,
		operation: operation,
		fields:    make(Fields),
		startTime: now,
		stepStart: now,
	}

	ol.logger.WithField("operation", operation).Debug("Starting operation")
	return ol
}

// WithField adds a field to the operation context
func (ol *OperationLogger) WithField(key string, value interface{}) *OperationLogger {
	ol.fields[key] = value
	return ol
}

func (ol *OperationLogger) entry(extra Fields) Logger {
	fields := Fields{"operation": ol.operation}
	for k, v := range ol.fields {
		fields[k] = v
	}
	for k, v := range extra {
		fields[k] = v
	}
	return ol.logger.WithFields(fields)
}

// Step logs the end of the previous step and the start of the next one
func (ol *OperationLogger) Step(step string, fields Fields) {
	now := time.Now()
	if fields == nil {
		fields = Fields{}
	}
	fields["step"] = step
	fields["since_last_step"] = now.Sub(ol.stepStart).String()
	ol.stepStart = now

	ol.entry(fields).Debug("Operation step")
}

// Success completes the operation successfully
func (ol *OperationLogger) Success(message string, fields Fields) {
	if fields == nil {
		fields = Fields{}
	}
	fields["duration"] = time.Since(ol.startTime).String()
	fields["status"] = "success"

	ol.entry(fields).Info(message)
}

// Fail completes the operation with an error
func (ol *OperationLogger) Fail(err error, message string) {
	ol.entry(Fields{
		"duration": time.Since(ol.startTime).String(),
		"status":   "error",
	}).WithError(err).Error(message)
}

// Warning logs a warning during the operation
func (ol *OperationLogger) Warning(message string, fields Fields) {
	ol.entry(fields).Warn(message)
}
