package errors

import (
	"fmt"
	"strings"
)

// ParseErrorCollector accumulates row-level errors while a dataset is read.
// Rows that fail are dropped by the parser; the collector only keeps the
// first maxErrors of them for reporting and counts the rest.
type ParseErrorCollector struct {
	maxErrors int
	errors    []*ReconcilerError
	dropped   int
}

// NewParseErrorCollector creates a collector. A maxErrors of zero or less keeps every error.
func NewParseErrorCollector(maxErrors int) *ParseErrorCollector {
	return &ParseErrorCollector{maxErrors: maxErrors}
}

// Add records a row error and reports whether it was retained.
func (c *ParseErrorCollector) Add(err *ReconcilerError) bool {
	if err == nil {
		return false
	}
	if c.maxErrors > 0 && len(c.errors) >= c.maxErrors {
		c.dropped++
		return false
	}
	c.errors = append(c.errors, err)
	return true
}

func (c *ParseErrorCollector) HasErrors() bool {
	return len(c.errors) > 0 || c.dropped > 0
}

// Count returns the number of errors seen, retained or not.
func (c *ParseErrorCollector) Count() int {
	return len(c.errors) + c.dropped
}

func (c *ParseErrorCollector) Errors() []*ReconcilerError {
	return c.errors
}

func (c *ParseErrorCollector) Summary() *ErrorSummary {
	return NewErrorSummary(c.errors)
}

// FormatForUser renders the collected errors as an indented list.
func (c *ParseErrorCollector) FormatForUser() string {
	if !c.HasErrors() {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d row(s) skipped:\n", c.Count())
	for _, err := range c.errors {
		fmt.Fprintf(&b, "  • %s\n", err.Message)
	}
	if c.dropped > 0 {
		fmt.Fprintf(&b, "  … and %d more\n", c.dropped)
	}
	return b.String()
}
