package parsers

import (
	"fmt"
	"strings"

	"bank-reconciliation-service/internal/models"
)

// Standard column names of the two datasets
const (
	ColumnDate        = "Date"
	ColumnDescription = "Description"
	ColumnAmount      = "Amount"
	ColumnVendor      = "Vendor"
	ColumnCategory    = "Category"
)

// BankConfig describes the column layout of a bank statement export
type BankConfig struct {
	Name              string `json:"name" mapstructure:"name" yaml:"name"`
	DateColumn        string `json:"date_column" mapstructure:"date_column" yaml:"date_column"`
	DescriptionColumn string `json:"description_column" mapstructure:"description_column" yaml:"description_column"`
	AmountColumn      string `json:"amount_column" mapstructure:"amount_column" yaml:"amount_column"`
	// DateFormat, when set, is tried before the common layouts
	DateFormat string `json:"date_format,omitempty" mapstructure:"date_format" yaml:"date_format,omitempty"`
	Delimiter  rune   `json:"delimiter" mapstructure:"delimiter" yaml:"delimiter"`
	// ColumnAliases maps a header found in the file onto a column name
	ColumnAliases map[string]string `json:"column_aliases,omitempty" mapstructure:"column_aliases" yaml:"column_aliases,omitempty"`
	Description   string            `json:"description,omitempty" mapstructure:"description" yaml:"description,omitempty"`
}

// Validate checks if the bank configuration is valid
func (bc *BankConfig) Validate() error {
	if strings.TrimSpace(bc.Name) == "" {
		return fmt.Errorf("bank name cannot be empty")
	}
	if strings.TrimSpace(bc.DateColumn) == "" {
		return fmt.Errorf("date column cannot be empty")
	}
	if strings.TrimSpace(bc.DescriptionColumn) == "" {
		return fmt.Errorf("description column cannot be empty")
	}
	if strings.TrimSpace(bc.AmountColumn) == "" {
		return fmt.Errorf("amount column cannot be empty")
	}
	if bc.Delimiter == 0 {
		return fmt.Errorf("delimiter cannot be empty")
	}
	return nil
}

// RequiredColumns returns the configured date, description and amount columns
func (bc *BankConfig) RequiredColumns() []string {
	return []string{bc.DateColumn, bc.DescriptionColumn, bc.AmountColumn}
}

// InternalRecordConfig describes the column layout of the internal ledger export
type InternalRecordConfig struct {
	DateColumn     string            `json:"date_column" mapstructure:"date_column" yaml:"date_column"`
	VendorColumn   string            `json:"vendor_column" mapstructure:"vendor_column" yaml:"vendor_column"`
	AmountColumn   string            `json:"amount_column" mapstructure:"amount_column" yaml:"amount_column"`
	CategoryColumn string            `json:"category_column" mapstructure:"category_column" yaml:"category_column"`
	DateFormat     string            `json:"date_format,omitempty" mapstructure:"date_format" yaml:"date_format,omitempty"`
	Delimiter      rune              `json:"delimiter" mapstructure:"delimiter" yaml:"delimiter"`
	ColumnAliases  map[string]string `json:"column_aliases,omitempty" mapstructure:"column_aliases" yaml:"column_aliases,omitempty"`
}

// Validate checks if the internal record configuration is valid
func (ic *InternalRecordConfig) Validate() error {
	if strings.TrimSpace(ic.DateColumn) == "" {
		return fmt.Errorf("date column cannot be empty")
	}
	if strings.TrimSpace(ic.VendorColumn) == "" {
		return fmt.Errorf("vendor column cannot be empty")
	}
	if strings.TrimSpace(ic.AmountColumn) == "" {
		return fmt.Errorf("amount column cannot be empty")
	}
	if ic.Delimiter == 0 {
		return fmt.Errorf("delimiter cannot be empty")
	}
	return nil
}

// RequiredColumns returns the configured date, vendor and amount columns.
// The category column is optional.
func (ic *InternalRecordConfig) RequiredColumns() []string {
	return []string{ic.DateColumn, ic.VendorColumn, ic.AmountColumn}
}

// DefaultInternalRecordConfig returns the standard ledger layout
func DefaultInternalRecordConfig() *InternalRecordConfig {
	return &InternalRecordConfig{
		DateColumn:     ColumnDate,
		VendorColumn:   ColumnVendor,
		AmountColumn:   ColumnAmount,
		CategoryColumn: ColumnCategory,
		Delimiter:      ',',
		ColumnAliases: map[string]string{
			"Transaction_Date": ColumnDate,
			"Payee":            ColumnVendor,
			"Merchant":         ColumnVendor,
		},
	}
}

// Predefined bank statement layouts
var (
	// StandardBankConfig is the Date/Description/Amount layout
	StandardBankConfig = &BankConfig{
		Name:              "standard",
		DateColumn:        ColumnDate,
		DescriptionColumn: ColumnDescription,
		AmountColumn:      ColumnAmount,
		Delimiter:         ',',
		ColumnAliases: map[string]string{
			"Transaction_Date": ColumnDate,
			"Memo":             ColumnDescription,
			"Details":          ColumnDescription,
		},
		Description: "Date, Description, Amount",
	}

	// PostingBankConfig is the layout of card exports keyed by posting date
	PostingBankConfig = &BankConfig{
		Name:              "posting",
		DateColumn:        "Posting_Date",
		DescriptionColumn: ColumnDescription,
		AmountColumn:      ColumnAmount,
		DateFormat:        "01/02/2006",
		Delimiter:         ',',
		Description:       "Posting Date, Description, Amount with MM/DD/YYYY dates",
	}

	// SemicolonBankConfig is a semicolon delimited layout with day-first dates
	SemicolonBankConfig = &BankConfig{
		Name:              "semicolon",
		DateColumn:        "Value_Date",
		DescriptionColumn: "Transaction_Details",
		AmountColumn:      ColumnAmount,
		DateFormat:        "02.01.2006",
		Delimiter:         ';',
		Description:       "Value Date; Transaction Details; Amount with DD.MM.YYYY dates",
	}
)

// GetBankConfig returns a predefined bank configuration by name
func GetBankConfig(name string) *BankConfig {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "standard":
		return StandardBankConfig
	case "posting":
		return PostingBankConfig
	case "semicolon":
		return SemicolonBankConfig
	default:
		return nil
	}
}

// ListAvailableBankConfigs returns all available predefined bank configurations
func ListAvailableBankConfigs() []*BankConfig {
	return []*BankConfig{
		StandardBankConfig,
		PostingBankConfig,
		SemicolonBankConfig,
	}
}

// AutoDetectBankConfig returns the first predefined layout whose columns are
// all present in the raw header line, or the standard layout.
func AutoDetectBankConfig(headerLine string) *BankConfig {
	headerLine = strings.TrimPrefix(strings.TrimSpace(headerLine), "\ufeff")

	for _, config := range ListAvailableBankConfigs() {
		present := make(map[string]bool)
		for _, header := range strings.Split(headerLine, string(config.Delimiter)) {
			header = strings.Trim(strings.TrimSpace(header), `"`)
			present[strings.ToLower(models.NormalizeColumnName(header))] = true
		}

		matched := true
		for _, column := range config.RequiredColumns() {
			if !present[strings.ToLower(models.NormalizeColumnName(column))] {
				matched = false
				break
			}
		}
		if matched {
			return config
		}
	}

	return StandardBankConfig
}
