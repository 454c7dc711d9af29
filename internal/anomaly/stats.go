package anomaly

import (
	"sort"
	"strings"

	"bank-reconciliation-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/iter"
)

var (
	quartile1 = decimal.RequireFromString("0.25")
	quartile3 = decimal.RequireFromString("0.75")
	iqrFactor = decimal.RequireFromString("1.5")
)

// StatsTable holds vendor baselines in sorted vendor order
type StatsTable struct {
	vendors  []string
	byVendor map[string]models.VendorStatistics
}

// BuildStats groups records by their exact Vendor string and computes one
// baseline per group. Records with a blank vendor are ignored.
func BuildStats(records []models.InternalRecord) *StatsTable {
	groups := make(map[string][]decimal.Decimal)
	for _, rec := range records {
		if strings.TrimSpace(rec.Vendor) == "" {
			continue
		}
		groups[rec.Vendor] = append(groups[rec.Vendor], rec.Amount)
	}

	vendors := make([]string, 0, len(groups))
	for vendor := range groups {
		vendors = append(vendors, vendor)
	}
	sort.Strings(vendors)

	stats := iter.Map(vendors, func(vendor *string) models.VendorStatistics {
		return computeStats(*vendor, groups[*vendor])
	})

	table := &StatsTable{
		vendors:  vendors,
		byVendor: make(map[string]models.VendorStatistics, len(vendors)),
	}
	for _, s := range stats {
		table.byVendor[s.Vendor] = s
	}
	return table
}

func computeStats(vendor string, amounts []decimal.Decimal) models.VendorStatistics {
	sorted := make([]decimal.Decimal, len(amounts))
	copy(sorted, amounts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })

	q1 := quantile(sorted, quartile1)
	q3 := quantile(sorted, quartile3)
	iqr := q3.Sub(q1)
	spread := iqr.Mul(iqrFactor)

	return models.VendorStatistics{
		Vendor:     vendor,
		Count:      len(sorted),
		Mean:       decimal.Sum(sorted[0], sorted[1:]...).Div(decimal.NewFromInt(int64(len(sorted)))),
		Q1:         q1,
		Q3:         q3,
		IQR:        iqr,
		LowerBound: q1.Sub(spread),
		UpperBound: q3.Add(spread),
	}
}

// quantile interpolates linearly between the two closest ranks of a sorted,
// non-empty slice.
func quantile(sorted []decimal.Decimal, q decimal.Decimal) decimal.Decimal {
	pos := decimal.NewFromInt(int64(len(sorted) - 1)).Mul(q)
	lower := pos.Floor()
	idx := int(lower.IntPart())
	if idx >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}

	frac := pos.Sub(lower)
	return sorted[idx].Add(sorted[idx+1].Sub(sorted[idx]).Mul(frac))
}

// Get returns the baseline of vendor. A vendor without records has none.
func (t *StatsTable) Get(vendor string) (models.VendorStatistics, bool) {
	s, ok := t.byVendor[vendor]
	return s, ok
}

// Vendors returns vendor names in iteration order
func (t *StatsTable) Vendors() []string {
	out := make([]string, len(t.vendors))
	copy(out, t.vendors)
	return out
}

// All returns every baseline in iteration order
func (t *StatsTable) All() []models.VendorStatistics {
	out := make([]models.VendorStatistics, 0, len(t.vendors))
	for _, v := range t.vendors {
		out = append(out, t.byVendor[v])
	}
	return out
}

func (t *StatsTable) Len() int {
	return len(t.vendors)
}
