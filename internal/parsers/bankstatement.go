package parsers

import (
	"bufio"
	"context"
	"io"
	"strings"

	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/pkg/errors"
	"bank-reconciliation-service/pkg/logger"
)

// BankStatementParser reads bank statement CSV files
type BankStatementParser struct {
	*BaseParser
	bankConfig *BankConfig
}

// NewBankStatementParser creates a parser for the given layout. A nil
// config selects StandardBankConfig.
func NewBankStatementParser(bankConfig *BankConfig, log logger.Logger) (*BankStatementParser, error) {
	if bankConfig == nil {
		bankConfig = StandardBankConfig
	}

	if err := bankConfig.Validate(); err != nil {
		return nil, errors.ConfigurationError("bank_format", bankConfig.Name, err)
	}

	if log == nil {
		log = logger.GetGlobalLogger()
	}

	parseConfig := DefaultParseConfig()
	parseConfig.Delimiter = bankConfig.Delimiter

	return &BankStatementParser{
		BaseParser: NewBaseParser(parseConfig, log.WithComponent("bank_statement_parser")),
		bankConfig: bankConfig,
	}, nil
}

// NewBankStatementParserWithAutoDetect creates a parser by detecting the
// layout from the file's header line
func NewBankStatementParserWithAutoDetect(filePath string, log logger.Logger) (*BankStatementParser, error) {
	tempParser, err := NewBankStatementParser(StandardBankConfig, log)
	if err != nil {
		return nil, err
	}

	config, err := tempParser.DetectBankFormat(filePath)
	if err != nil {
		return nil, err
	}

	return NewBankStatementParser(config, log)
}

// ParseFile parses the bank statement at filePath
func (bsp *BankStatementParser) ParseFile(ctx context.Context, filePath string) ([]models.BankTransaction, *ParseStats, error) {
	file, err := bsp.OpenFile(filePath)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	return bsp.Parse(ctx, file, filePath)
}

// Parse reads bank transactions from r. source names the dataset in errors.
func (bsp *BankStatementParser) Parse(ctx context.Context, r io.Reader, source string) ([]models.BankTransaction, *ParseStats, error) {
	bsp.logger.WithFields(logger.Fields{
		"source": source,
		"format": bsp.bankConfig.Name,
	}).Debug("Parsing bank statement")

	return readDataset(ctx, bsp.BaseParser, r, source,
		bsp.bankConfig.RequiredColumns(), bsp.bankConfig.ColumnAliases, bsp.parseRecord)
}

// parseRecord creates a BankTransaction from a CSV record
func (bsp *BankStatementParser) parseRecord(record []string, parseCtx *ParseContext) (models.BankTransaction, *errors.ReconcilerError) {
	cfg := bsp.bankConfig

	dateStr := bsp.GetFieldValue(record, parseCtx, cfg.DateColumn)
	amountStr := bsp.GetFieldValue(record, parseCtx, cfg.AmountColumn)
	description := bsp.GetFieldValue(record, parseCtx, cfg.DescriptionColumn)

	if dateStr == "" {
		return models.BankTransaction{}, errors.UnparsableRow(errors.CodeMissingField, parseCtx.Source, parseCtx.LineNumber, cfg.DateColumn, "", nil)
	}
	if amountStr == "" {
		return models.BankTransaction{}, errors.UnparsableRow(errors.CodeMissingField, parseCtx.Source, parseCtx.LineNumber, cfg.AmountColumn, "", nil)
	}

	date, err := parseDate(cfg.DateFormat, dateStr)
	if err != nil {
		return models.BankTransaction{}, errors.UnparsableRow(errors.CodeInvalidDate, parseCtx.Source, parseCtx.LineNumber, cfg.DateColumn, dateStr, err)
	}

	amount, err := models.ParseAmount(amountStr)
	if err != nil {
		return models.BankTransaction{}, errors.UnparsableRow(errors.CodeInvalidAmount, parseCtx.Source, parseCtx.LineNumber, cfg.AmountColumn, amountStr, err)
	}

	return models.NewBankTransaction(date, description, amount), nil
}

// DetectBankFormat picks a predefined layout from the header line of filePath
func (bsp *BankStatementParser) DetectBankFormat(filePath string) (*BankConfig, error) {
	file, err := bsp.OpenFile(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, errors.MalformedInput(errors.CodeInvalidFormat, filePath, "unreadable header row", err)
		}
		return nil, errors.MalformedInput(errors.CodeEmptyDataset, filePath, "", nil)
	}

	detected := AutoDetectBankConfig(scanner.Text())
	bsp.logger.WithFields(logger.Fields{
		"file_path": filePath,
		"format":    detected.Name,
	}).Debug("Detected bank statement format")

	return detected, nil
}

// DetectBankConfigFromReader picks a predefined layout from the first line of
// r without consuming it. The returned reader must be used in place of r.
func DetectBankConfigFromReader(r io.Reader) (*BankConfig, io.Reader) {
	buffered := bufio.NewReaderSize(r, 4096)

	// Peek returns what it has together with io.EOF or ErrBufferFull on
	// short or long first lines; either way the header is in head
	head, _ := buffered.Peek(4096)
	line := string(head)
	if i := strings.IndexAny(line, "\r\n"); i >= 0 {
		line = line[:i]
	}

	return AutoDetectBankConfig(line), buffered
}

// GetBankConfig returns the current bank configuration
func (bsp *BankStatementParser) GetBankConfig() *BankConfig {
	return bsp.bankConfig
}
