// Package matcher pairs bank transactions with internal ledger records.
//
// Every (bank, internal) pair gets a confidence score on a 0-100 scale built
// from three signals:
//   - Amount: binary, absolute amounts within AmountTolerance
//   - Name: token-sort similarity of the normalized description and vendor
//   - Date: linear decay that reaches zero at twice DateToleranceDays
//
// The engine is greedy and order-sensitive. Bank transactions are processed
// in input order; each one takes the best still-available internal record
// whose score is strictly above ConfidenceThreshold, ties going to the record
// seen first. An earlier bank transaction can therefore take a record that a
// later one would have fit better. The result is not an optimal assignment.
//
// When the name and date weights together cannot lift a score above the
// threshold, only records within the amount tolerance are scored at all.
//
// Example usage:
//
//	config := matcher.DefaultMatchingConfig()
//	config.DateToleranceDays = 5
//
//	engine, err := matcher.NewEngine(config, log)
//	if err != nil {
//		return err
//	}
//	result, err := engine.Match(ctx, bankTxs, internalRecs)
package matcher

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// MatchingConfig holds the tunable constants of the scorer and the engine.
//
// Use the provided factory functions for common scenarios:
//   - DefaultMatchingConfig(): the reference constants
//   - StrictMatchingConfig(): exact amounts and a higher threshold
//   - RelaxedMatchingConfig(): wider tolerances for messy exports
//
// PresetConfig selects one of them by name.
type MatchingConfig struct {
	// ConfidenceThreshold is the score a candidate must strictly exceed to be accepted
	ConfidenceThreshold float64 `json:"confidence_threshold" mapstructure:"confidence_threshold" yaml:"confidence_threshold"`

	// AmountTolerance is the largest absolute difference of |amount| still counted as equal
	AmountTolerance float64 `json:"amount_tolerance" mapstructure:"amount_tolerance" yaml:"amount_tolerance"`

	// DateToleranceDays is half the day gap at which the date score reaches zero
	DateToleranceDays int `json:"date_tolerance_days" mapstructure:"date_tolerance_days" yaml:"date_tolerance_days"`

	// ParallelScoring scores large candidate pools concurrently. Decisions stay sequential.
	ParallelScoring bool `json:"parallel_scoring" mapstructure:"parallel_scoring" yaml:"parallel_scoring"`

	// ParallelMinPool is the pool size from which concurrent scoring kicks in
	ParallelMinPool int `json:"parallel_min_pool" mapstructure:"parallel_min_pool" yaml:"parallel_min_pool"`

	// MaxGoroutines bounds concurrent scoring; zero means GOMAXPROCS
	MaxGoroutines int `json:"max_goroutines" mapstructure:"max_goroutines" yaml:"max_goroutines"`

	Weights MatchingWeights `json:"weights" mapstructure:"weights" yaml:"weights"`
}

// MatchingWeights defines the relative importance of the three signals
type MatchingWeights struct {
	Amount float64 `json:"amount" mapstructure:"amount" yaml:"amount"`
	Name   float64 `json:"name" mapstructure:"name" yaml:"name"`
	Date   float64 `json:"date" mapstructure:"date" yaml:"date"`
}

const (
	DefaultConfidenceThreshold = 65.0
	DefaultAmountTolerance     = 0.01
	DefaultDateToleranceDays   = 3
)

// DefaultMatchingConfig returns the reference configuration
func DefaultMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		ConfidenceThreshold: DefaultConfidenceThreshold,
		AmountTolerance:     DefaultAmountTolerance,
		DateToleranceDays:   DefaultDateToleranceDays,
		ParallelScoring:     true,
		ParallelMinPool:     512,
		Weights: MatchingWeights{
			Amount: 0.50,
			Name:   0.40,
			Date:   0.10,
		},
	}
}

// StrictMatchingConfig returns a configuration for strict matching
func StrictMatchingConfig() *MatchingConfig {
	config := DefaultMatchingConfig()
	config.ConfidenceThreshold = 80.0
	config.AmountTolerance = 0.0
	config.DateToleranceDays = 1
	return config
}

// RelaxedMatchingConfig returns a configuration for relaxed matching
func RelaxedMatchingConfig() *MatchingConfig {
	config := DefaultMatchingConfig()
	config.ConfidenceThreshold = 55.0
	config.AmountTolerance = 1.0
	config.DateToleranceDays = 5
	config.Weights = MatchingWeights{Amount: 0.45, Name: 0.40, Date: 0.15}
	return config
}

// Preset names understood by PresetConfig
const (
	PresetDefault = "default"
	PresetStrict  = "strict"
	PresetRelaxed = "relaxed"
)

// PresetConfig returns the named preset. An empty name selects the default.
func PresetConfig(name string) (*MatchingConfig, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", PresetDefault:
		return DefaultMatchingConfig(), nil
	case PresetStrict:
		return StrictMatchingConfig(), nil
	case PresetRelaxed:
		return RelaxedMatchingConfig(), nil
	}
	return nil, fmt.Errorf("unknown matching preset %q (expected %s, %s or %s)",
		name, PresetDefault, PresetStrict, PresetRelaxed)
}

// Validate checks if the matching configuration is valid
func (mc *MatchingConfig) Validate() error {
	if mc.ConfidenceThreshold < 0.0 || mc.ConfidenceThreshold > 100.0 {
		return fmt.Errorf("confidence threshold must be between 0 and 100: %.2f", mc.ConfidenceThreshold)
	}

	if mc.AmountTolerance < 0.0 {
		return fmt.Errorf("amount tolerance cannot be negative: %f", mc.AmountTolerance)
	}

	if mc.DateToleranceDays <= 0 {
		return fmt.Errorf("date tolerance days must be positive: %d", mc.DateToleranceDays)
	}

	if mc.ParallelMinPool < 0 || mc.MaxGoroutines < 0 {
		return fmt.Errorf("parallel scoring limits cannot be negative")
	}

	if err := mc.Weights.Validate(); err != nil {
		return fmt.Errorf("invalid weights: %w", err)
	}

	return nil
}

// Validate checks that every weight is in [0, 1] and that they sum to 1
func (mw *MatchingWeights) Validate() error {
	for name, w := range map[string]float64{"amount": mw.Amount, "name": mw.Name, "date": mw.Date} {
		if w < 0.0 || w > 1.0 {
			return fmt.Errorf("%s weight must be between 0.0 and 1.0: %f", name, w)
		}
	}

	total := mw.Amount + mw.Name + mw.Date
	if math.Abs(total-1.0) > 1e-6 {
		return fmt.Errorf("weights must sum to 1.0, got %f", total)
	}

	return nil
}

// Clone creates a copy of the matching configuration
func (mc *MatchingConfig) Clone() *MatchingConfig {
	if mc == nil {
		return nil
	}
	clone := *mc
	return &clone
}

// AmountToleranceDecimal returns the amount tolerance as a decimal
func (mc *MatchingConfig) AmountToleranceDecimal() decimal.Decimal {
	return decimal.NewFromFloat(mc.AmountTolerance)
}

func (mc *MatchingConfig) String() string {
	return fmt.Sprintf("MatchingConfig{Threshold: %.2f, AmountTolerance: %.2f, DateTolerance: %d days, Weights: %.2f/%.2f/%.2f}",
		mc.ConfidenceThreshold, mc.AmountTolerance, mc.DateToleranceDays,
		mc.Weights.Amount, mc.Weights.Name, mc.Weights.Date)
}
