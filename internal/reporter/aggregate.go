package reporter

import (
	"time"

	"bank-reconciliation-service/internal/matcher"
	"bank-reconciliation-service/internal/models"

	"github.com/shopspring/decimal"
)

// Aggregate assembles the final report of a run. It makes no decisions: the
// counts come from the input sizes and the matching outcome, and the category
// totals from the internal records' predicted categories.
func Aggregate(
	bankTxs []models.BankTransaction,
	internalRecs []models.InternalRecord,
	result *matcher.Result,
	anomalies []models.Anomaly,
) *models.ReconciliationReport {
	if result == nil {
		result = &matcher.Result{}
	}

	report := &models.ReconciliationReport{
		Summary: models.ReportSummary{
			TotalBankTransactions:  len(bankTxs),
			TotalInternalRecords:   len(internalRecs),
			MatchedCount:           len(result.Matched),
			UnmatchedBankCount:     len(result.UnmatchedBank),
			UnmatchedInternalCount: len(result.UnmatchedInternal),
			AnomalyCount:           len(anomalies),
		},
		Matched:           nonNil(result.Matched),
		Anomalies:         nonNil(anomalies),
		UnmatchedBank:     nonNil(result.UnmatchedBank),
		UnmatchedInternal: nonNil(result.UnmatchedInternal),
		CategorySummary:   CategoryTotals(internalRecs),
		GeneratedAt:       time.Now().UTC(),
	}

	return report
}

// CategoryTotals sums the signed amounts per category and keeps the absolute
// value of each sum. Records without a predicted or recorded category are
// grouped under Uncategorized.
func CategoryTotals(records []models.InternalRecord) models.CategoryTotals {
	sums := make(map[string]decimal.Decimal)
	for _, rec := range records {
		category := rec.CategoryOrDefault()
		sums[category] = sums[category].Add(rec.Amount)
	}

	totals := make(models.CategoryTotals, len(sums))
	for category, sum := range sums {
		totals[category] = sum.Abs()
	}
	return totals
}

// nonNil keeps empty lists rendering as [] rather than null
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
