package reconciler

import (
	"fmt"
	"strings"

	"bank-reconciliation-service/internal/anomaly"
	"bank-reconciliation-service/internal/matcher"
	"bank-reconciliation-service/internal/parsers"
)

// BankFormatAuto selects the bank statement layout from the header row
const BankFormatAuto = "auto"

// Config holds configuration options for the reconciliation service
type Config struct {
	Matching    *matcher.MatchingConfig `json:"matching" mapstructure:"matching" yaml:"matching"`
	Anomaly     *anomaly.Config         `json:"anomaly" mapstructure:"anomaly" yaml:"anomaly"`
	Categorizer CategorizerConfig       `json:"categorizer" mapstructure:"categorizer" yaml:"categorizer"`

	// BankFormat names a predefined bank layout or BankFormatAuto. BankLayout,
	// when set, takes precedence.
	BankFormat     string                        `json:"bank_format" mapstructure:"bank_format" yaml:"bank_format"`
	BankLayout     *parsers.BankConfig           `json:"bank_layout,omitempty" mapstructure:"bank_layout" yaml:"bank_layout,omitempty"`
	InternalLayout *parsers.InternalRecordConfig `json:"internal_layout,omitempty" mapstructure:"internal_layout" yaml:"internal_layout,omitempty"`
}

// CategorizerConfig controls the category classifier run before matching
type CategorizerConfig struct {
	Enabled bool `json:"enabled" mapstructure:"enabled" yaml:"enabled"`
	// ModelPath is where the trained model is loaded from and saved to.
	// Empty disables persistence.
	ModelPath string `json:"model_path" mapstructure:"model_path" yaml:"model_path"`
}

// DefaultConfig returns a default configuration for the reconciliation service
func DefaultConfig() *Config {
	return &Config{
		Matching: matcher.DefaultMatchingConfig(),
		Anomaly:  anomaly.DefaultConfig(),
		Categorizer: CategorizerConfig{
			Enabled:   true,
			ModelPath: "",
		},
		BankFormat:     BankFormatAuto,
		InternalLayout: parsers.DefaultInternalRecordConfig(),
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Matching == nil {
		return fmt.Errorf("matching configuration is required")
	}
	if err := c.Matching.Validate(); err != nil {
		return fmt.Errorf("matching: %w", err)
	}

	if c.Anomaly == nil {
		return fmt.Errorf("anomaly configuration is required")
	}
	if err := c.Anomaly.Validate(); err != nil {
		return fmt.Errorf("anomaly: %w", err)
	}

	if c.BankLayout != nil {
		if err := c.BankLayout.Validate(); err != nil {
			return fmt.Errorf("bank layout: %w", err)
		}
	} else if !strings.EqualFold(c.BankFormat, BankFormatAuto) && parsers.GetBankConfig(c.BankFormat) == nil {
		return fmt.Errorf("unknown bank format %q", c.BankFormat)
	}

	if c.InternalLayout != nil {
		if err := c.InternalLayout.Validate(); err != nil {
			return fmt.Errorf("internal layout: %w", err)
		}
	}

	return nil
}

// autoDetect reports whether the bank layout comes from the header row
func (c *Config) autoDetect() bool {
	return c.BankLayout == nil && strings.EqualFold(c.BankFormat, BankFormatAuto)
}

// bankLayout returns the fixed bank layout; only valid when autoDetect is false
func (c *Config) bankLayout() *parsers.BankConfig {
	if c.BankLayout != nil {
		return c.BankLayout
	}
	return parsers.GetBankConfig(c.BankFormat)
}
