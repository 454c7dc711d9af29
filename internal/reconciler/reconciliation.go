// Package reconciler runs the reconciliation pipeline end to end.
//
// A run categorizes the internal records, builds per-vendor statistics,
// greedily matches bank transactions to internal records, flags unusual
// unmatched bank transactions and aggregates everything into a report.
//
// A run either returns a complete report or an error; a partially built
// report is never returned. Rows that could not be parsed and a classifier
// that could not be built are not errors: they are reported as warnings on
// the report.
//
// Example usage:
//
//	service, err := reconciler.NewService(reconciler.DefaultConfig(), log)
//	service.AddProgressCallback(func(p reconciler.Progress) {
//		fmt.Printf("%.0f%% %s\n", p.PercentComplete, p.CurrentStep)
//	})
//	report, err := service.ReconcileFiles(ctx, "bank_statement.csv", "internal_records.csv")
package reconciler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"bank-reconciliation-service/internal/anomaly"
	"bank-reconciliation-service/internal/categorizer"
	"bank-reconciliation-service/internal/matcher"
	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/internal/parsers"
	"bank-reconciliation-service/internal/reporter"
	"bank-reconciliation-service/pkg/errors"
	"bank-reconciliation-service/pkg/logger"
)

// Service orchestrates the complete reconciliation process. It is safe for
// concurrent use once configured.
type Service struct {
	config         *Config
	engine         *matcher.Engine
	internalParser *parsers.InternalRecordParser
	logger         logger.Logger

	// classifier, when set, replaces the trained categorizer
	classifier categorizer.Classifier
	// modelMu serializes training and saving of the persisted model
	modelMu sync.Mutex

	progressCallbacks []ProgressCallback
}

// NewService creates a new reconciliation service
func NewService(config *Config, log logger.Logger) (*Service, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError("reconciler", config.BankFormat, err)
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	engine, err := matcher.NewEngine(config.Matching, log)
	if err != nil {
		return nil, err
	}

	internalParser, err := parsers.NewInternalRecordParser(config.InternalLayout, log)
	if err != nil {
		return nil, err
	}

	return &Service{
		config:         config,
		engine:         engine,
		internalParser: internalParser,
		logger:         log.WithComponent("reconciler"),
	}, nil
}

// SetClassifier replaces the trained categorizer with c. A nil c restores
// training from the internal records.
func (s *Service) SetClassifier(c categorizer.Classifier) {
	s.classifier = c
}

// AddProgressCallback adds a progress callback function. Register callbacks
// before the service is shared between goroutines.
func (s *Service) AddProgressCallback(callback ProgressCallback) {
	s.progressCallbacks = append(s.progressCallbacks, callback)
}

// Reconcile runs the pipeline over already parsed datasets
func (s *Service) Reconcile(
	ctx context.Context,
	bankTxs []models.BankTransaction,
	internalRecs []models.InternalRecord,
) (*models.ReconciliationReport, error) {
	return s.run(ctx, bankTxs, internalRecs, nil, newProgressTracker(totalCoreSteps, s.progressCallbacks))
}

// ReconcileFiles parses both CSV files concurrently and reconciles them
func (s *Service) ReconcileFiles(ctx context.Context, bankPath, internalPath string) (*models.ReconciliationReport, error) {
	progress := newProgressTracker(totalFileSteps, s.progressCallbacks)

	bankParser, err := s.bankParserForFile(bankPath)
	if err != nil {
		return nil, err
	}

	datasets, err := parsers.NewConcurrentParser(bankParser, s.internalParser).ParseFiles(ctx, bankPath, internalPath)
	if err != nil {
		return nil, err
	}
	progress.complete(StepParse, nil)

	return s.run(ctx, datasets.Bank, datasets.Internal, datasets.Warnings(), progress)
}

// ReconcileReaders parses both CSV streams concurrently and reconciles them
func (s *Service) ReconcileReaders(ctx context.Context, bank, internal parsers.Source) (*models.ReconciliationReport, error) {
	progress := newProgressTracker(totalFileSteps, s.progressCallbacks)

	bankLayout := s.config.bankLayout()
	if s.config.autoDetect() {
		bankLayout, bank.Reader = parsers.DetectBankConfigFromReader(bank.Reader)
	}
	bankParser, err := parsers.NewBankStatementParser(bankLayout, s.logger)
	if err != nil {
		return nil, err
	}

	datasets, err := parsers.NewConcurrentParser(bankParser, s.internalParser).ParseReaders(ctx, bank, internal)
	if err != nil {
		return nil, err
	}
	progress.complete(StepParse, nil)

	return s.run(ctx, datasets.Bank, datasets.Internal, datasets.Warnings(), progress)
}

func (s *Service) bankParserForFile(path string) (*parsers.BankStatementParser, error) {
	if s.config.autoDetect() {
		return parsers.NewBankStatementParserWithAutoDetect(path, s.logger)
	}
	return parsers.NewBankStatementParser(s.config.bankLayout(), s.logger)
}

// run executes categorize, statistics, match, anomalies and aggregate. Any
// panic in those steps is turned into an internal computation error.
func (s *Service) run(
	ctx context.Context,
	bankTxs []models.BankTransaction,
	internalRecs []models.InternalRecord,
	warnings []string,
	progress *progressTracker,
) (report *models.ReconciliationReport, err error) {
	op := logger.NewOperationLogger("reconciliation", s.logger).
		WithField("bank_transactions", len(bankTxs)).
		WithField("internal_records", len(internalRecs))

	defer func() {
		if r := recover(); r != nil {
			report = nil
			err = errors.InternalComputation(errors.CodeComputationFailed, "reconciliation", fmt.Errorf("%v", r)).
				WithContext("stack", string(debug.Stack()))
		}
		if err != nil {
			op.Fail(err, "Reconciliation failed")
		}
	}()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, errors.InternalComputation(errors.CodeCancelled, "reconciliation", ctxErr)
	}

	classifier, warning := s.resolveClassifier(internalRecs)
	if warning != "" {
		warnings = append(warnings, warning)
		op.Warning(warning, nil)
	}
	records := categorizer.Apply(internalRecs, classifier)
	op.Step(StepCategorize, nil)
	progress.complete(StepCategorize, func(p *Progress) {
		p.BankTransactions = len(bankTxs)
		p.InternalRecords = len(records)
	})

	stats := anomaly.BuildStats(records)
	op.Step(StepStatistics, logger.Fields{"vendors": stats.Len()})
	progress.complete(StepStatistics, nil)

	result, err := s.engine.Match(ctx, bankTxs, records)
	if err != nil {
		return nil, errors.WrapIfNeeded(err, errors.CategoryInternal, errors.CodeComputationFailed, "matching failed")
	}
	op.Step(StepMatch, logger.Fields{"matched": len(result.Matched)})
	progress.complete(StepMatch, func(p *Progress) { p.MatchesFound = len(result.Matched) })

	anomalies, err := s.flagAnomalies(result.UnmatchedBank, records, stats)
	if err != nil {
		return nil, err
	}
	op.Step(StepAnomalies, logger.Fields{"anomalies": len(anomalies)})
	progress.complete(StepAnomalies, nil)

	report = reporter.Aggregate(bankTxs, records, result, anomalies)
	report.Warnings = warnings
	progress.complete(StepAggregate, nil)

	op.Success("Reconciliation completed", logger.Fields{
		"matched":   report.Summary.MatchedCount,
		"anomalies": report.Summary.AnomalyCount,
		"warnings":  len(warnings),
	})

	return report, nil
}

// resolveClassifier returns the classifier for this run and, when the
// categorizer had to fall back to pass-through, a warning for the report
func (s *Service) resolveClassifier(records []models.InternalRecord) (categorizer.Classifier, string) {
	if s.classifier != nil {
		return s.classifier, ""
	}
	if !s.config.Categorizer.Enabled {
		return categorizer.PassThrough{}, ""
	}

	s.modelMu.Lock()
	defer s.modelMu.Unlock()

	classifier, err := categorizer.LoadOrTrain(records, s.config.Categorizer.ModelPath, s.logger)
	if err != nil {
		return classifier, fmt.Sprintf("Category classifier unavailable, existing categories kept: %v", err)
	}
	return classifier, ""
}

func (s *Service) flagAnomalies(
	unmatched []models.BankTransaction,
	records []models.InternalRecord,
	stats *anomaly.StatsTable,
) ([]models.Anomaly, error) {
	var detector anomaly.OutlierDetector
	if s.config.Anomaly.OutlierDetection {
		detector = anomaly.TrainIsolationForest(records, s.config.Anomaly.Forest)
	}

	flagger, err := anomaly.NewFlagger(s.config.Anomaly, detector, s.logger)
	if err != nil {
		return nil, err
	}

	return flagger.Flag(unmatched, stats), nil
}
