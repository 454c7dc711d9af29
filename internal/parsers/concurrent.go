package parsers

import (
	"context"
	"io"

	"bank-reconciliation-service/internal/models"

	"github.com/sourcegraph/conc/pool"
)

// Source is a named CSV stream, typically an uploaded file
type Source struct {
	Name   string
	Reader io.Reader
}

// Datasets holds both parsed inputs of a reconciliation run
type Datasets struct {
	Bank          []models.BankTransaction
	Internal      []models.InternalRecord
	BankStats     *ParseStats
	InternalStats *ParseStats
}

// Warnings returns one line per dataset that had skipped rows
func (d *Datasets) Warnings() []string {
	var out []string
	for _, stats := range []*ParseStats{d.BankStats, d.InternalStats} {
		if stats == nil {
			continue
		}
		if w := stats.Warning(); w != "" {
			out = append(out, w)
		}
	}
	return out
}

// ConcurrentParser reads the bank statement and the internal records at the
// same time. The first failure cancels the other parser.
type ConcurrentParser struct {
	bank     *BankStatementParser
	internal *InternalRecordParser
}

// NewConcurrentParser creates a concurrent parser from the two dataset parsers
func NewConcurrentParser(bank *BankStatementParser, internal *InternalRecordParser) *ConcurrentParser {
	return &ConcurrentParser{bank: bank, internal: internal}
}

// ParseFiles parses both datasets from disk
func (cp *ConcurrentParser) ParseFiles(ctx context.Context, bankPath, internalPath string) (*Datasets, error) {
	return cp.parse(ctx,
		func(ctx context.Context) ([]models.BankTransaction, *ParseStats, error) {
			return cp.bank.ParseFile(ctx, bankPath)
		},
		func(ctx context.Context) ([]models.InternalRecord, *ParseStats, error) {
			return cp.internal.ParseFile(ctx, internalPath)
		})
}

// ParseReaders parses both datasets from streams
func (cp *ConcurrentParser) ParseReaders(ctx context.Context, bank, internal Source) (*Datasets, error) {
	return cp.parse(ctx,
		func(ctx context.Context) ([]models.BankTransaction, *ParseStats, error) {
			return cp.bank.Parse(ctx, bank.Reader, bank.Name)
		},
		func(ctx context.Context) ([]models.InternalRecord, *ParseStats, error) {
			return cp.internal.Parse(ctx, internal.Reader, internal.Name)
		})
}

func (cp *ConcurrentParser) parse(
	ctx context.Context,
	parseBank func(context.Context) ([]models.BankTransaction, *ParseStats, error),
	parseInternal func(context.Context) ([]models.InternalRecord, *ParseStats, error),
) (*Datasets, error) {
	result := &Datasets{}

	p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()
	p.Go(func(ctx context.Context) error {
		var err error
		result.Bank, result.BankStats, err = parseBank(ctx)
		return err
	})
	p.Go(func(ctx context.Context) error {
		var err error
		result.Internal, result.InternalStats, err = parseInternal(ctx)
		return err
	})

	if err := p.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}
