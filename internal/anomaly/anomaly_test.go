package anomaly

import (
	"strings"
	"testing"
	"time"

	"bank-reconciliation-service/internal/models"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func record(vendor, amount string) models.InternalRecord {
	return models.NewInternalRecord(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), vendor, dec(amount), "")
}

func bank(desc, amount string) models.BankTransaction {
	return models.NewBankTransaction(time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC), desc, dec(amount))
}

func officeDepotHistory() []models.InternalRecord {
	return []models.InternalRecord{
		record("Office Depot", "100"),
		record("Office Depot", "150"),
		record("Office Depot", "125.50"),
		record("Office Depot", "110"),
	}
}

func TestBuildStats(t *testing.T) {
	table := BuildStats(officeDepotHistory())

	s, ok := table.Get("Office Depot")
	if !ok {
		t.Fatal("expected Office Depot baseline")
	}

	checks := []struct {
		name string
		got  decimal.Decimal
		want string
	}{
		{"mean", s.Mean, "121.375"},
		{"q1", s.Q1, "107.5"},
		{"q3", s.Q3, "131.625"},
		{"iqr", s.IQR, "24.125"},
		{"lower", s.LowerBound, "71.3125"},
		{"upper", s.UpperBound, "167.8125"},
	}
	for _, c := range checks {
		if !c.got.Equal(dec(c.want)) {
			t.Errorf("%s = %s, want %s", c.name, c.got, c.want)
		}
	}
	if s.Count != 4 {
		t.Errorf("count = %d, want 4", s.Count)
	}
}

func TestBuildStats_SingleRecord(t *testing.T) {
	table := BuildStats([]models.InternalRecord{record("Acme", "42.10")})

	s, ok := table.Get("Acme")
	if !ok {
		t.Fatal("expected Acme baseline")
	}
	for name, v := range map[string]decimal.Decimal{"q1": s.Q1, "q3": s.Q3, "lower": s.LowerBound, "upper": s.UpperBound, "mean": s.Mean} {
		if !v.Equal(dec("42.10")) {
			t.Errorf("%s = %s, want 42.10", name, v)
		}
	}
	if !s.IQR.IsZero() {
		t.Errorf("iqr = %s, want 0", s.IQR)
	}
}

func TestBuildStats_GroupingAndOrder(t *testing.T) {
	records := []models.InternalRecord{
		record("Uber", "10"),
		record("office depot", "20"),
		record("", "999"),
		record("Office Depot", "30"),
		record("Amazon", "40"),
	}

	table := BuildStats(records)

	want := []string{"Amazon", "Office Depot", "Uber", "office depot"}
	got := table.Vendors()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Vendors() = %v, want %v", got, want)
	}

	if _, ok := table.Get("Missing"); ok {
		t.Error("expected no baseline for an unknown vendor")
	}
	if len(table.All()) != 4 || table.All()[1].Vendor != "Office Depot" {
		t.Errorf("All() out of order: %+v", table.All())
	}
}

func newTestFlagger(t *testing.T, config *Config, detector OutlierDetector) *Flagger {
	t.Helper()
	f, err := NewFlagger(config, detector, nil)
	if err != nil {
		t.Fatalf("NewFlagger() error = %v", err)
	}
	return f
}

func TestFlagger_OfficeDepotSpike(t *testing.T) {
	f := newTestFlagger(t, nil, nil)
	table := BuildStats(officeDepotHistory())

	anomalies := f.Flag([]models.BankTransaction{
		bank("Office Depot", "9500"),
		bank("Office Depot", "120"),
		bank("Unrelated Wire", "9500"),
	}, table)

	if len(anomalies) != 1 {
		t.Fatalf("expected 1 anomaly, got %d: %+v", len(anomalies), anomalies)
	}

	a := anomalies[0]
	want := "Amount is outside the typical range for Office Depot ($71.31 to $167.81)"
	if a.Reason != want {
		t.Errorf("reason = %q, want %q", a.Reason, want)
	}
	if !a.Amount.Equal(dec("9500")) || a.Description != "Office Depot" {
		t.Errorf("unexpected anomaly %+v", a)
	}
}

func TestFlagger_DegenerateBounds(t *testing.T) {
	f := newTestFlagger(t, nil, nil)
	table := BuildStats([]models.InternalRecord{record("Acme", "100")})

	anomalies := f.Flag([]models.BankTransaction{
		bank("ACME", "100"),
		bank("ACME", "100.01"),
	}, table)

	if len(anomalies) != 1 || !anomalies[0].Amount.Equal(dec("100.01")) {
		t.Errorf("expected only the differing amount to be flagged, got %+v", anomalies)
	}
}

func TestFlagger_PartialDescription(t *testing.T) {
	f := newTestFlagger(t, nil, nil)
	table := BuildStats(officeDepotHistory())

	anomalies := f.Flag([]models.BankTransaction{bank("POS PURCHASE OFFICE DEPOT #1123", "900")}, table)
	if len(anomalies) != 1 {
		t.Errorf("expected the vendor to be found inside the description, got %+v", anomalies)
	}
}

func TestFlagger_VendorSelection(t *testing.T) {
	// "Acme Supplier" sorts before "Acme Supplies" and is a near match (92)
	// for the description, "Acme Supplies" is an exact match.
	records := []models.InternalRecord{
		record("Acme Supplier", "500"),
		record("Acme Supplies", "10"),
	}
	table := BuildStats(records)
	tx := []models.BankTransaction{bank("ACME SUPPLIES", "500")}

	first := newTestFlagger(t, nil, nil).Flag(tx, table)
	if len(first) != 0 {
		t.Errorf("first-match policy should stop at the in-range vendor, got %+v", first)
	}

	cfg := DefaultConfig()
	cfg.VendorSelection = SelectBest
	best := newTestFlagger(t, cfg, nil).Flag(tx, table)
	if len(best) != 1 || best[0].Vendor != "Acme Supplies" {
		t.Errorf("best-match policy should use Acme Supplies, got %+v", best)
	}
}

type stubDetector map[string]bool

func (s stubDetector) IsOutlier(_ decimal.Decimal, vendor string) bool {
	return s[vendor]
}

func TestFlagger_OutlierDetector(t *testing.T) {
	table := BuildStats(officeDepotHistory())
	detector := stubDetector{"Office Depot": true}

	disabled := newTestFlagger(t, nil, detector).Flag([]models.BankTransaction{bank("Office Depot", "120")}, table)
	if len(disabled) != 0 {
		t.Errorf("detector must be ignored unless enabled, got %+v", disabled)
	}

	cfg := DefaultConfig()
	cfg.OutlierDetection = true
	f := newTestFlagger(t, cfg, detector)

	anomalies := f.Flag([]models.BankTransaction{
		bank("Office Depot", "120"),
		bank("Office Depot", "9500"),
	}, table)

	if len(anomalies) != 2 {
		t.Fatalf("expected 2 anomalies, got %+v", anomalies)
	}
	if anomalies[0].Reason != "Amount is an unusual volume for Office Depot" {
		t.Errorf("unexpected volume-only reason %q", anomalies[0].Reason)
	}
	if !strings.Contains(anomalies[1].Reason, "outside the typical range") || !strings.Contains(anomalies[1].Reason, "; Amount is an unusual volume") {
		t.Errorf("expected both reasons, got %q", anomalies[1].Reason)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	cfg.VendorSelection = "random"
	if err := cfg.Validate(); err == nil {
		t.Error("expected unknown selection to be rejected")
	}

	cfg = DefaultConfig()
	cfg.OutlierDetection = true
	cfg.Forest.Trees = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected zero trees to be rejected")
	}
}

func TestIsolationForest(t *testing.T) {
	var records []models.InternalRecord
	for i := 0; i < 10; i++ {
		records = append(records, record("Office Depot", "120"))
	}
	for _, a := range []string{"100", "105", "110", "115", "118", "122", "125", "130", "135", "140"} {
		records = append(records, record("Office Depot", a))
	}
	for _, a := range []string{"10", "20", "30"} {
		records = append(records, record("Rare Vendor", a))
	}

	forest := TrainIsolationForest(records, DefaultIsolationForestConfig())

	if got := forest.Vendors(); len(got) != 1 || got[0] != "Office Depot" {
		t.Fatalf("expected a single trained vendor, got %v", got)
	}

	if !forest.IsOutlier(dec("9500"), "Office Depot") {
		score, _ := forest.Score(dec("9500"), "Office Depot")
		t.Errorf("expected 9500 to be an outlier (score %.3f)", score)
	}
	if forest.IsOutlier(dec("-120"), "Office Depot") {
		score, _ := forest.Score(dec("120"), "Office Depot")
		t.Errorf("expected 120 to be normal (score %.3f)", score)
	}
	if forest.IsOutlier(dec("9500"), "Rare Vendor") {
		t.Error("vendors below the minimum history are never outliers")
	}

	again := TrainIsolationForest(records, DefaultIsolationForestConfig())
	s1, _ := forest.Score(dec("130"), "Office Depot")
	s2, _ := again.Score(dec("130"), "Office Depot")
	if s1 != s2 {
		t.Errorf("training is not deterministic: %v vs %v", s1, s2)
	}
}
