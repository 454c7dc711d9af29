package parsers

import (
	"context"
	"io"

	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/pkg/errors"
	"bank-reconciliation-service/pkg/logger"
)

// InternalRecordParser reads the organization's ledger export
type InternalRecordParser struct {
	*BaseParser
	config *InternalRecordConfig
}

// NewInternalRecordParser creates a parser for the given layout. A nil
// config selects DefaultInternalRecordConfig.
func NewInternalRecordParser(config *InternalRecordConfig, log logger.Logger) (*InternalRecordParser, error) {
	if config == nil {
		config = DefaultInternalRecordConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError("internal_record_parser", config, err).
			WithSuggestion("Check the internal record column configuration")
	}

	if log == nil {
		log = logger.GetGlobalLogger()
	}

	parseConfig := DefaultParseConfig()
	parseConfig.Delimiter = config.Delimiter

	return &InternalRecordParser{
		BaseParser: NewBaseParser(parseConfig, log.WithComponent("internal_record_parser")),
		config:     config,
	}, nil
}

// ParseFile parses the ledger export at filePath
func (ip *InternalRecordParser) ParseFile(ctx context.Context, filePath string) ([]models.InternalRecord, *ParseStats, error) {
	file, err := ip.OpenFile(filePath)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	return ip.Parse(ctx, file, filePath)
}

// Parse reads internal records from r. source names the dataset in errors.
func (ip *InternalRecordParser) Parse(ctx context.Context, r io.Reader, source string) ([]models.InternalRecord, *ParseStats, error) {
	ip.logger.WithField("source", source).Debug("Parsing internal records")

	return readDataset(ctx, ip.BaseParser, r, source,
		ip.config.RequiredColumns(), ip.config.ColumnAliases, ip.parseRecord)
}

// parseRecord creates an InternalRecord from a CSV record. A missing
// category column leaves Category empty.
func (ip *InternalRecordParser) parseRecord(record []string, parseCtx *ParseContext) (models.InternalRecord, *errors.ReconcilerError) {
	cfg := ip.config

	dateStr := ip.GetFieldValue(record, parseCtx, cfg.DateColumn)
	amountStr := ip.GetFieldValue(record, parseCtx, cfg.AmountColumn)
	vendor := ip.GetFieldValue(record, parseCtx, cfg.VendorColumn)

	var category string
	if cfg.CategoryColumn != "" {
		category = ip.GetFieldValue(record, parseCtx, cfg.CategoryColumn)
	}

	if dateStr == "" {
		return models.InternalRecord{}, errors.UnparsableRow(errors.CodeMissingField, parseCtx.Source, parseCtx.LineNumber, cfg.DateColumn, "", nil)
	}
	if amountStr == "" {
		return models.InternalRecord{}, errors.UnparsableRow(errors.CodeMissingField, parseCtx.Source, parseCtx.LineNumber, cfg.AmountColumn, "", nil)
	}

	date, err := parseDate(cfg.DateFormat, dateStr)
	if err != nil {
		return models.InternalRecord{}, errors.UnparsableRow(errors.CodeInvalidDate, parseCtx.Source, parseCtx.LineNumber, cfg.DateColumn, dateStr, err)
	}

	amount, err := models.ParseAmount(amountStr)
	if err != nil {
		return models.InternalRecord{}, errors.UnparsableRow(errors.CodeInvalidAmount, parseCtx.Source, parseCtx.LineNumber, cfg.AmountColumn, amountStr, err)
	}

	return models.NewInternalRecord(date, vendor, amount, category), nil
}
