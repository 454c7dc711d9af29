package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the ISO-8601 calendar date layout used for every date the service emits.
const DateLayout = "2006-01-02"

// Uncategorized is the label used when no category is known for a record.
const Uncategorized = "Uncategorized"

// BankTransaction is a single line item from an externally issued bank statement
type BankTransaction struct {
	Date        time.Time       `json:"Date"`
	Description string          `json:"Description"`
	Amount      decimal.Decimal `json:"Amount"`
}

// NewBankTransaction creates a BankTransaction with its date truncated to the calendar day
func NewBankTransaction(date time.Time, description string, amount decimal.Decimal) BankTransaction {
	return BankTransaction{
		Date:        CalendarDate(date),
		Description: description,
		Amount:      amount,
	}
}

func (b BankTransaction) String() string {
	return fmt.Sprintf("BankTransaction{Date: %s, Description: %q, Amount: %s}",
		b.Date.Format(DateLayout), b.Description, b.Amount.StringFixed(2))
}

// MarshalJSON renders the date as YYYY-MM-DD and the amount as a 2-decimal number
func (b BankTransaction) MarshalJSON() ([]byte, error) {
	type Alias BankTransaction
	return json.Marshal(&struct {
		Date   string      `json:"Date"`
		Amount json.Number `json:"Amount"`
		Alias
	}{
		Date:   b.Date.Format(DateLayout),
		Amount: Money(b.Amount),
		Alias:  (Alias)(b),
	})
}

func (b *BankTransaction) UnmarshalJSON(data []byte) error {
	type Alias BankTransaction
	aux := &struct {
		Date string `json:"Date"`
		*Alias
	}{
		Alias: (*Alias)(b),
	}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	date, err := time.Parse(DateLayout, aux.Date)
	if err != nil {
		return fmt.Errorf("invalid bank transaction date: %w", err)
	}
	b.Date = date
	return nil
}

// InternalRecord is a single line item from the organization's own ledger.
// PredictedCategory and PredictionConfidence are filled in by a classifier
// before reconciliation starts.
type InternalRecord struct {
	Date                 time.Time       `json:"Date"`
	Vendor               string          `json:"Vendor"`
	Amount               decimal.Decimal `json:"Amount"`
	Category             string          `json:"Category,omitempty"`
	PredictedCategory    string          `json:"Predicted_Category"`
	PredictionConfidence float64         `json:"Category_Confidence"`
}

// NewInternalRecord creates an InternalRecord with its date truncated to the calendar day
func NewInternalRecord(date time.Time, vendor string, amount decimal.Decimal, category string) InternalRecord {
	return InternalRecord{
		Date:     CalendarDate(date),
		Vendor:   vendor,
		Amount:   amount,
		Category: category,
	}
}

func (r InternalRecord) String() string {
	return fmt.Sprintf("InternalRecord{Date: %s, Vendor: %q, Amount: %s, Category: %q}",
		r.Date.Format(DateLayout), r.Vendor, r.Amount.StringFixed(2), r.Category)
}

// CategoryOrDefault returns the predicted category, falling back to the
// recorded one and then to Uncategorized.
func (r InternalRecord) CategoryOrDefault() string {
	if r.PredictedCategory != "" {
		return r.PredictedCategory
	}
	if strings.TrimSpace(r.Category) != "" {
		return r.Category
	}
	return Uncategorized
}

func (r InternalRecord) MarshalJSON() ([]byte, error) {
	type Alias InternalRecord
	return json.Marshal(&struct {
		Date   string      `json:"Date"`
		Amount json.Number `json:"Amount"`
		Alias
	}{
		Date:   r.Date.Format(DateLayout),
		Amount: Money(r.Amount),
		Alias:  (Alias)(r),
	})
}

func (r *InternalRecord) UnmarshalJSON(data []byte) error {
	type Alias InternalRecord
	aux := &struct {
		Date string `json:"Date"`
		*Alias
	}{
		Alias: (*Alias)(r),
	}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	date, err := time.Parse(DateLayout, aux.Date)
	if err != nil {
		return fmt.Errorf("invalid internal record date: %w", err)
	}
	r.Date = date
	return nil
}

// Money renders a decimal as a JSON number with exactly two decimals
func Money(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}

// CalendarDate drops the time-of-day and location, keeping the calendar day
func CalendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the absolute number of whole calendar days between two dates
func DaysBetween(a, b time.Time) int {
	diff := CalendarDate(a).Sub(CalendarDate(b))
	if diff < 0 {
		diff = -diff
	}
	return int(diff.Hours() / 24)
}

// ParseAmount parses a signed decimal amount. Currency symbols, thousand
// separators and surrounding whitespace are ignored; an amount wrapped in
// parentheses is negative.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	}

	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}

	if negative {
		d = d.Neg()
	}
	return d, nil
}

var dateLayouts = []string{
	DateLayout,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006/01/02",
	"1/2/2006",
	"1/2/2006 15:04:05",
	"02-Jan-2006",
	"2 Jan 2006",
	"Jan 2, 2006",
	"January 2, 2006",
}

// ParseDate parses a calendar date using the common layouts found in bank
// exports. Slash-separated dates are read month first.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("date string cannot be empty")
	}

	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return CalendarDate(t), nil
		}
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("unable to parse date '%s': %w", s, lastErr)
}

// NormalizeColumnName trims a header and replaces inner spaces with underscores
func NormalizeColumnName(name string) string {
	return strings.ReplaceAll(strings.TrimSpace(name), " ", "_")
}
