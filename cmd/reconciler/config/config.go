// Package config holds the CLI configuration document. Values come from
// defaults, an optional YAML file, RECONCILER_* environment variables and
// command-line flags, in increasing order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"bank-reconciliation-service/internal/anomaly"
	"bank-reconciliation-service/internal/api"
	"bank-reconciliation-service/internal/matcher"
	"bank-reconciliation-service/internal/parsers"
	"bank-reconciliation-service/internal/reconciler"
	"bank-reconciliation-service/internal/reporter"
	"bank-reconciliation-service/pkg/logger"
)

// EnvPrefix is the prefix of environment variable overrides, e.g.
// RECONCILER_MATCHING_CONFIDENCE_THRESHOLD
const EnvPrefix = "RECONCILER"

// Config is the complete CLI and server configuration
type Config struct {
	// MatchingPreset supplies the matching defaults. Keys set under matching
	// still override it.
	MatchingPreset string                       `mapstructure:"matching_preset" yaml:"matching_preset"`
	Matching       matcher.MatchingConfig       `mapstructure:"matching" yaml:"matching"`
	Anomaly        anomaly.Config               `mapstructure:"anomaly" yaml:"anomaly"`
	Categorizer    reconciler.CategorizerConfig `mapstructure:"categorizer" yaml:"categorizer"`
	Parsing        ParsingConfig                `mapstructure:"parsing" yaml:"parsing"`
	Report         ReportConfig                 `mapstructure:"report" yaml:"report"`
	Storage        StorageConfig                `mapstructure:"storage" yaml:"storage"`
	Server         api.Config                   `mapstructure:"server" yaml:"server"`
	Logging        logger.Config                `mapstructure:"logging" yaml:"logging"`
}

// ParsingConfig selects the CSV layouts
type ParsingConfig struct {
	// BankFormat is "auto" or one of the predefined bank layouts
	BankFormat        string `mapstructure:"bank_format" yaml:"bank_format"`
	InternalDelimiter string `mapstructure:"internal_delimiter" yaml:"internal_delimiter"`
	// DateFormat, when set, is tried first for both files
	DateFormat string `mapstructure:"date_format" yaml:"date_format"`
}

// ReportConfig mirrors reporter.ReportConfig with a string delimiter so it
// can be written by hand in YAML and environment variables
type ReportConfig struct {
	Format                 string `mapstructure:"format" yaml:"format"`
	IncludeMatched         bool   `mapstructure:"include_matched" yaml:"include_matched"`
	IncludeAnomalies       bool   `mapstructure:"include_anomalies" yaml:"include_anomalies"`
	IncludeUnmatched       bool   `mapstructure:"include_unmatched" yaml:"include_unmatched"`
	IncludeCategorySummary bool   `mapstructure:"include_category_summary" yaml:"include_category_summary"`
	UseColors              bool   `mapstructure:"use_colors" yaml:"use_colors"`
	ListLimit              int    `mapstructure:"list_limit" yaml:"list_limit"`
	CSVDelimiter           string `mapstructure:"csv_delimiter" yaml:"csv_delimiter"`
	CSVHeaders             bool   `mapstructure:"csv_headers" yaml:"csv_headers"`
	SortByAmount           bool   `mapstructure:"sort_by_amount" yaml:"sort_by_amount"`
}

// StorageConfig locates the saved-report database
type StorageConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	report := reporter.DefaultReportConfig()
	internal := parsers.DefaultInternalRecordConfig()

	return &Config{
		MatchingPreset: matcher.PresetDefault,
		Matching:       *matcher.DefaultMatchingConfig(),
		Anomaly:  *anomaly.DefaultConfig(),
		Categorizer: reconciler.CategorizerConfig{
			Enabled:   true,
			ModelPath: filepath.Join("data", "category_model.json"),
		},
		Parsing: ParsingConfig{
			BankFormat:        reconciler.BankFormatAuto,
			InternalDelimiter: string(internal.Delimiter),
		},
		Report: ReportConfig{
			Format:                 string(report.Format),
			IncludeMatched:         report.IncludeMatched,
			IncludeAnomalies:       report.IncludeAnomalies,
			IncludeUnmatched:       report.IncludeUnmatched,
			IncludeCategorySummary: report.IncludeCategorySummary,
			UseColors:              report.UseColors,
			ListLimit:              report.ListLimit,
			CSVDelimiter:           string(report.CSVDelimiter),
			CSVHeaders:             report.CSVHeaders,
			SortByAmount:           report.SortByAmount,
		},
		Storage: StorageConfig{
			Path: filepath.Join("data", "reports.db"),
		},
		Server:  api.DefaultConfig(),
		Logging: *logger.DefaultConfig(),
	}
}

// Load builds the configuration from v. The defaults are registered on v
// first so that every key can be overridden from the environment.
func Load(v *viper.Viper) (*Config, error) {
	if err := SetDefaults(v); err != nil {
		return nil, err
	}

	preset := v.GetString("matching_preset")
	base, err := matcher.PresetConfig(preset)
	if err != nil {
		return nil, fmt.Errorf("matching_preset: %w", err)
	}
	if err := registerDefaults(v, "matching", base); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SetDefaults registers every default value on v and enables
// RECONCILER_* environment overrides for them
func SetDefaults(v *viper.Viper) error {
	if err := registerDefaults(v, "", Default()); err != nil {
		return err
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return nil
}

// registerDefaults sets the YAML keys of value as defaults under prefix
func registerDefaults(v *viper.Viper, prefix string, value interface{}) error {
	raw, err := yaml.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode defaults: %w", err)
	}

	var tree map[string]interface{}
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return fmt.Errorf("failed to decode defaults: %w", err)
	}

	for key, value := range flatten(prefix, tree) {
		v.SetDefault(key, value)
	}
	return nil
}

func flatten(prefix string, tree map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{})
	for key, value := range tree {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if nested, ok := value.(map[string]interface{}); ok && len(nested) > 0 {
			for k, v := range flatten(full, nested) {
				out[k] = v
			}
			continue
		}
		out[full] = value
	}
	return out
}

// Validate checks every section
func (c *Config) Validate() error {
	if _, err := matcher.PresetConfig(c.MatchingPreset); err != nil {
		return fmt.Errorf("matching_preset: %w", err)
	}
	if err := c.Matching.Validate(); err != nil {
		return fmt.Errorf("matching: %w", err)
	}
	if err := c.Anomaly.Validate(); err != nil {
		return fmt.Errorf("anomaly: %w", err)
	}
	if err := c.ReconcilerConfig().Validate(); err != nil {
		return fmt.Errorf("parsing: %w", err)
	}
	if _, err := singleRune(c.Parsing.InternalDelimiter); err != nil {
		return fmt.Errorf("parsing.internal_delimiter: %w", err)
	}
	if _, err := singleRune(c.Report.CSVDelimiter); err != nil {
		return fmt.Errorf("report.csv_delimiter: %w", err)
	}
	if err := c.ReportConfig().Validate(); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		return fmt.Errorf("storage.path cannot be empty")
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}

// ReconcilerConfig returns the pipeline configuration
func (c *Config) ReconcilerConfig() *reconciler.Config {
	cfg := reconciler.DefaultConfig()

	matching := c.Matching
	anomalyCfg := c.Anomaly
	cfg.Matching = &matching
	cfg.Anomaly = &anomalyCfg
	cfg.Categorizer = c.Categorizer
	cfg.BankFormat = c.Parsing.BankFormat

	if r, err := singleRune(c.Parsing.InternalDelimiter); err == nil {
		cfg.InternalLayout.Delimiter = r
	}
	if c.Parsing.DateFormat != "" {
		cfg.InternalLayout.DateFormat = c.Parsing.DateFormat
		if !strings.EqualFold(c.Parsing.BankFormat, reconciler.BankFormatAuto) {
			if layout := parsers.GetBankConfig(c.Parsing.BankFormat); layout != nil {
				bank := *layout
				bank.DateFormat = c.Parsing.DateFormat
				cfg.BankLayout = &bank
			}
		}
	}

	return cfg
}

// ReportConfig returns the report generator configuration
func (c *Config) ReportConfig() *reporter.ReportConfig {
	cfg := reporter.DefaultReportConfig()
	cfg.Format = reporter.OutputFormat(strings.ToLower(c.Report.Format))
	cfg.IncludeMatched = c.Report.IncludeMatched
	cfg.IncludeAnomalies = c.Report.IncludeAnomalies
	cfg.IncludeUnmatched = c.Report.IncludeUnmatched
	cfg.IncludeCategorySummary = c.Report.IncludeCategorySummary
	cfg.UseColors = c.Report.UseColors
	cfg.ListLimit = c.Report.ListLimit
	cfg.CSVHeaders = c.Report.CSVHeaders
	cfg.SortByAmount = c.Report.SortByAmount
	if r, err := singleRune(c.Report.CSVDelimiter); err == nil {
		cfg.CSVDelimiter = r
	}
	return cfg
}

// Save writes the configuration as YAML to path, creating parent directories
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func singleRune(s string) (rune, error) {
	if s == `\t` {
		return '\t', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("must be exactly one character, got %q", s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, nil
}
