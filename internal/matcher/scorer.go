package matcher

import (
	"math"

	"bank-reconciliation-service/internal/fuzzy"
	"bank-reconciliation-service/internal/models"
)

// Scorer computes the match confidence of a bank transaction and an internal record.
// Implementations must be pure: the engine may call Score concurrently.
type Scorer interface {
	Score(bank models.BankTransaction, internal models.InternalRecord) float64
}

// ScoreBreakdown exposes the individual signals behind a confidence score
type ScoreBreakdown struct {
	AmountScore float64 `json:"amount_score"`
	NameScore   float64 `json:"name_score"`
	DateScore   float64 `json:"date_score"`
	DaysApart   int     `json:"days_apart"`
	Confidence  float64 `json:"confidence"`
}

// ConfidenceScorer is the weighted amount/name/date scorer
type ConfidenceScorer struct {
	config *MatchingConfig
}

// NewConfidenceScorer creates a scorer; a nil config uses the defaults
func NewConfidenceScorer(config *MatchingConfig) *ConfidenceScorer {
	if config == nil {
		config = DefaultMatchingConfig()
	}
	return &ConfidenceScorer{config: config.Clone()}
}

func (s *ConfidenceScorer) Score(bank models.BankTransaction, internal models.InternalRecord) float64 {
	return s.Breakdown(bank, internal).Confidence
}

// Breakdown scores a pair and returns every component
func (s *ConfidenceScorer) Breakdown(bank models.BankTransaction, internal models.InternalRecord) ScoreBreakdown {
	days := models.DaysBetween(bank.Date, internal.Date)

	b := ScoreBreakdown{
		AmountScore: s.amountScore(bank, internal),
		NameScore:   nameScore(bank.Description, internal.Vendor),
		DateScore:   s.dateScore(days),
		DaysApart:   days,
	}

	w := s.config.Weights
	raw := 100 * (w.Amount*b.AmountScore + w.Name*b.NameScore + w.Date*b.DateScore)
	b.Confidence = roundTo2(raw)
	return b
}

func (s *ConfidenceScorer) amountScore(bank models.BankTransaction, internal models.InternalRecord) float64 {
	diff := bank.Amount.Abs().Sub(internal.Amount.Abs()).Abs()
	if diff.LessThanOrEqual(s.config.AmountToleranceDecimal()) {
		return 1.0
	}
	return 0.0
}

func nameScore(description, vendor string) float64 {
	return float64(fuzzy.TokenSortRatio(fuzzy.Normalize(description), fuzzy.Normalize(vendor))) / 100
}

func (s *ConfidenceScorer) dateScore(days int) float64 {
	window := float64(2 * s.config.DateToleranceDays)
	return math.Max(0, 1-float64(days)/window)
}

func roundTo2(v float64) float64 {
	return math.Round(v*100) / 100
}
