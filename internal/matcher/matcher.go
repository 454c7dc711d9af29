package matcher

import (
	"context"
	"fmt"

	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/pkg/errors"
	"bank-reconciliation-service/pkg/logger"

	"github.com/sourcegraph/conc/iter"
)

// Engine greedily pairs bank transactions with internal records
type Engine struct {
	config *MatchingConfig
	scorer Scorer
	logger logger.Logger
	// gated is set when only records within the amount tolerance can match
	gated bool
}

// Result is the outcome of one matching run. Every input bank transaction is
// either in Matched or UnmatchedBank, and every internal record is either in
// Matched or UnmatchedInternal.
type Result struct {
	Matched           []models.MatchedPair
	UnmatchedBank     []models.BankTransaction
	UnmatchedInternal []models.InternalRecord
}

// NewEngine creates an engine that uses the weighted ConfidenceScorer
func NewEngine(config *MatchingConfig, log logger.Logger) (*Engine, error) {
	if config == nil {
		config = DefaultMatchingConfig()
	}
	return NewEngineWithScorer(config, NewConfidenceScorer(config), log)
}

// NewEngineWithScorer creates an engine with a custom scorer
func NewEngineWithScorer(config *MatchingConfig, scorer Scorer, log logger.Logger) (*Engine, error) {
	if config == nil {
		config = DefaultMatchingConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError("matching", config.String(), err)
	}
	if scorer == nil {
		return nil, errors.ConfigurationError("matching.scorer", nil, fmt.Errorf("scorer is required"))
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	_, weighted := scorer.(*ConfidenceScorer)

	return &Engine{
		config: config.Clone(),
		scorer: scorer,
		logger: log.WithComponent("matcher"),
		gated:  weighted && amountGated(config),
	}, nil
}

// Config returns a copy of the engine configuration
func (e *Engine) Config() *MatchingConfig {
	return e.config.Clone()
}

// Match runs the greedy assignment. Bank transactions are processed in input
// order and each one scans the current pool in pool order. The context is
// only checked between bank transactions.
func (e *Engine) Match(ctx context.Context, bankTxs []models.BankTransaction, internalRecs []models.InternalRecord) (*Result, error) {
	pool := NewPool(internalRecs)
	var index *AmountIndex
	if e.gated {
		index = NewAmountIndex(internalRecs)
	}
	result := &Result{
		Matched:       make([]models.MatchedPair, 0),
		UnmatchedBank: make([]models.BankTransaction, 0),
	}

	for i, bank := range bankTxs {
		if err := ctx.Err(); err != nil {
			return nil, errors.InternalComputation(errors.CodeCancelled, "matching", err).
				WithContext("processed", i)
		}

		var candidates map[int]struct{}
		if index != nil {
			candidates = index.Within(bank.Amount, e.config.AmountToleranceDecimal())
		}

		pos, confidence := e.best(bank, pool, candidates)
		if pos < 0 {
			result.UnmatchedBank = append(result.UnmatchedBank, bank)
			continue
		}

		internal := pool.Take(pos)
		result.Matched = append(result.Matched, models.MatchedPair{
			Bank:       bank,
			Internal:   internal,
			Confidence: confidence,
		})

		e.logger.WithFields(logger.Fields{
			"description": bank.Description,
			"vendor":      internal.Vendor,
			"confidence":  confidence,
		}).Debug("Matched bank transaction")
	}

	result.UnmatchedInternal = pool.Remaining()

	e.logger.WithFields(logger.Fields{
		"bank_transactions":  len(bankTxs),
		"internal_records":   len(internalRecs),
		"matched":            len(result.Matched),
		"unmatched_bank":     len(result.UnmatchedBank),
		"unmatched_internal": len(result.UnmatchedInternal),
	}).Info("Matching completed")

	return result, nil
}

// best returns the pool position of the highest scoring candidate strictly
// above the threshold, or -1. Ties keep the earliest position. A non-nil
// candidates set restricts scoring to those input indexes.
func (e *Engine) best(bank models.BankTransaction, pool *Pool, candidates map[int]struct{}) (int, float64) {
	scores := e.scoreAll(bank, pool, candidates)

	bestPos := -1
	bestScore := e.config.ConfidenceThreshold
	for pos, score := range scores {
		if score > bestScore {
			bestPos = pos
			bestScore = score
		}
	}
	return bestPos, bestScore
}

func (e *Engine) scoreAll(bank models.BankTransaction, pool *Pool, candidates map[int]struct{}) []float64 {
	n := pool.Len()
	scores := make([]float64, n)

	positions := make([]int, 0, n)
	for pos := 0; pos < n; pos++ {
		if candidates != nil {
			if _, ok := candidates[pool.InputIndex(pos)]; !ok {
				continue
			}
		}
		positions = append(positions, pos)
	}

	if !e.config.ParallelScoring || len(positions) < e.config.ParallelMinPool {
		for _, pos := range positions {
			scores[pos] = e.scorer.Score(bank, pool.At(pos))
		}
		return scores
	}

	mapper := iter.Mapper[int, float64]{MaxGoroutines: e.config.MaxGoroutines}
	scored := mapper.Map(positions, func(pos *int) float64 {
		return e.scorer.Score(bank, pool.At(*pos))
	})
	for i, pos := range positions {
		scores[pos] = scored[i]
	}
	return scores
}
