package models

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// VendorStatistics is the amount baseline of one vendor, derived from every
// internal record of that vendor in a run.
type VendorStatistics struct {
	Vendor     string          `json:"vendor"`
	Count      int             `json:"count"`
	Mean       decimal.Decimal `json:"mean"`
	Q1         decimal.Decimal `json:"q1"`
	Q3         decimal.Decimal `json:"q3"`
	IQR        decimal.Decimal `json:"iqr"`
	LowerBound decimal.Decimal `json:"lower_bound"`
	UpperBound decimal.Decimal `json:"upper_bound"`
}

// InBounds reports whether amount lies inside [LowerBound, UpperBound]
func (s VendorStatistics) InBounds(amount decimal.Decimal) bool {
	return amount.GreaterThanOrEqual(s.LowerBound) && amount.LessThanOrEqual(s.UpperBound)
}

// MatchedPair is an accepted pairing of a bank transaction and an internal record
type MatchedPair struct {
	Bank       BankTransaction `json:"bank"`
	Internal   InternalRecord  `json:"internal"`
	Confidence float64         `json:"confidence"`
}

// Anomaly is an unmatched bank transaction whose amount is unusual for its vendor
type Anomaly struct {
	Date        time.Time       `json:"Date"`
	Description string          `json:"Description"`
	Amount      decimal.Decimal `json:"Amount"`
	Reason      string          `json:"Flagged_Reason"`
	Vendor      string          `json:"Vendor,omitempty"`
}

func (a Anomaly) MarshalJSON() ([]byte, error) {
	type Alias Anomaly
	return json.Marshal(&struct {
		Date   string      `json:"Date"`
		Amount json.Number `json:"Amount"`
		Alias
	}{
		Date:   a.Date.Format(DateLayout),
		Amount: Money(a.Amount),
		Alias:  (Alias)(a),
	})
}

func (a *Anomaly) UnmarshalJSON(data []byte) error {
	type Alias Anomaly
	aux := &struct {
		Date string `json:"Date"`
		*Alias
	}{
		Alias: (*Alias)(a),
	}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	date, err := time.Parse(DateLayout, aux.Date)
	if err != nil {
		return fmt.Errorf("invalid anomaly date: %w", err)
	}
	a.Date = date
	return nil
}

// ReportSummary holds the headline counts of a run
type ReportSummary struct {
	TotalBankTransactions  int `json:"total_bank_transactions"`
	TotalInternalRecords   int `json:"total_internal_records"`
	MatchedCount           int `json:"matched_count"`
	UnmatchedBankCount     int `json:"unmatched_bank_count"`
	UnmatchedInternalCount int `json:"unmatched_internal_count"`
	AnomalyCount           int `json:"anomaly_count"`
}

// MatchRate returns the share of bank transactions that were matched, in percent
func (s ReportSummary) MatchRate() float64 {
	if s.TotalBankTransactions == 0 {
		return 0
	}
	rate := float64(s.MatchedCount) / float64(s.TotalBankTransactions) * 100
	return math.Round(rate*100) / 100
}

// CategoryTotals maps a category label to the absolute value of its summed amounts
type CategoryTotals map[string]decimal.Decimal

// Categories returns the labels in sorted order
func (c CategoryTotals) Categories() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (c CategoryTotals) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.Number, len(c))
	for k, v := range c {
		out[k] = Money(v)
	}
	return json.Marshal(out)
}

// ReconciliationReport is the complete, read-only result of one run
type ReconciliationReport struct {
	Summary           ReportSummary     `json:"summary"`
	Matched           []MatchedPair     `json:"matched_transactions"`
	Anomalies         []Anomaly         `json:"anomalies_detected"`
	UnmatchedBank     []BankTransaction `json:"unmatched_bank_transactions"`
	UnmatchedInternal []InternalRecord  `json:"unmatched_internal_records"`
	CategorySummary   CategoryTotals    `json:"category_summary"`
	Warnings          []string          `json:"warnings,omitempty"`
	GeneratedAt       time.Time         `json:"generated_at"`
}
