package matcher

import (
	"sort"

	"bank-reconciliation-service/internal/models"

	"github.com/shopspring/decimal"
)

// AmountIndex orders internal records by absolute amount so the records
// within the amount tolerance of a bank transaction can be found by binary
// search instead of a full scan.
type AmountIndex struct {
	entries []amountIndexEntry
}

type amountIndexEntry struct {
	amount decimal.Decimal
	// input index of the record, as used by Pool
	index int
}

// NewAmountIndex indexes records by input position
func NewAmountIndex(records []models.InternalRecord) *AmountIndex {
	entries := make([]amountIndexEntry, len(records))
	for i, rec := range records {
		entries[i] = amountIndexEntry{amount: rec.Amount.Abs(), index: i}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].amount.LessThan(entries[j].amount)
	})

	return &AmountIndex{entries: entries}
}

// Len returns the number of indexed records
func (ai *AmountIndex) Len() int {
	return len(ai.entries)
}

// Within returns the input indexes of the records whose absolute amount is
// within tolerance of the absolute value of amount, as a membership set
func (ai *AmountIndex) Within(amount, tolerance decimal.Decimal) map[int]struct{} {
	target := amount.Abs()
	low := target.Sub(tolerance)
	high := target.Add(tolerance)

	start := sort.Search(len(ai.entries), func(i int) bool {
		return ai.entries[i].amount.GreaterThanOrEqual(low)
	})

	out := make(map[int]struct{})
	for i := start; i < len(ai.entries) && ai.entries[i].amount.LessThanOrEqual(high); i++ {
		out[ai.entries[i].index] = struct{}{}
	}
	return out
}

// amountGated reports whether a candidate outside the amount tolerance can
// never clear the threshold under config, i.e. the name and date signals
// together cannot lift its score above it
func amountGated(config *MatchingConfig) bool {
	ceiling := roundTo2(100 * (config.Weights.Name + config.Weights.Date))
	return ceiling <= config.ConfidenceThreshold
}
