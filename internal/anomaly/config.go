// Package anomaly builds per-vendor amount baselines from the internal ledger
// and flags unmatched bank transactions whose amounts fall outside them.
package anomaly

import (
	"fmt"
)

// VendorSelection decides which vendor an unmatched bank transaction is compared against
type VendorSelection string

const (
	// SelectFirst takes the first vendor, in sorted vendor order, whose
	// similarity exceeds the threshold.
	SelectFirst VendorSelection = "first"
	// SelectBest takes the vendor with the highest similarity; ties go to the earlier vendor.
	SelectBest VendorSelection = "best"
)

// Config controls the anomaly flagger and the optional volume outlier detector
type Config struct {
	// SimilarityThreshold is the partial-ratio score (0-100) a vendor must strictly exceed
	SimilarityThreshold int             `json:"similarity_threshold" mapstructure:"similarity_threshold" yaml:"similarity_threshold"`
	VendorSelection     VendorSelection `json:"vendor_selection" mapstructure:"vendor_selection" yaml:"vendor_selection"`

	OutlierDetection bool                 `json:"outlier_detection" mapstructure:"outlier_detection" yaml:"outlier_detection"`
	Forest           IsolationForestConfig `json:"isolation_forest" mapstructure:"isolation_forest" yaml:"isolation_forest"`
}

// IsolationForestConfig configures the per-vendor volume outlier detector
type IsolationForestConfig struct {
	MinTransactions int   `json:"min_transactions" mapstructure:"min_transactions" yaml:"min_transactions"`
	Trees           int   `json:"trees" mapstructure:"trees" yaml:"trees"`
	MaxSamples      int   `json:"max_samples" mapstructure:"max_samples" yaml:"max_samples"`
	Seed            int64 `json:"seed" mapstructure:"seed" yaml:"seed"`
}

// DefaultConfig returns the reference flagger configuration
func DefaultConfig() *Config {
	return &Config{
		SimilarityThreshold: 85,
		VendorSelection:     SelectFirst,
		OutlierDetection:    false,
		Forest:              DefaultIsolationForestConfig(),
	}
}

// DefaultIsolationForestConfig returns 100 trees over at most 256 samples
// for vendors with at least 5 records.
func DefaultIsolationForestConfig() IsolationForestConfig {
	return IsolationForestConfig{
		MinTransactions: 5,
		Trees:           100,
		MaxSamples:      256,
		Seed:            42,
	}
}

func (c *Config) Validate() error {
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 100 {
		return fmt.Errorf("similarity threshold must be between 0 and 100: %d", c.SimilarityThreshold)
	}

	switch c.VendorSelection {
	case SelectFirst, SelectBest:
	default:
		return fmt.Errorf("unknown vendor selection %q (want %q or %q)", c.VendorSelection, SelectFirst, SelectBest)
	}

	if c.OutlierDetection {
		if c.Forest.MinTransactions < 2 {
			return fmt.Errorf("isolation forest needs at least 2 transactions per vendor: %d", c.Forest.MinTransactions)
		}
		if c.Forest.Trees <= 0 || c.Forest.MaxSamples < 2 {
			return fmt.Errorf("isolation forest needs positive trees and at least 2 samples")
		}
	}

	return nil
}
