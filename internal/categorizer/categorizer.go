// Package categorizer assigns a spending category to internal ledger records.
//
// Two Classifier variants exist: a naive Bayes model trained on the vendor
// names of records that already carry a category, and a pass-through that
// keeps whatever category a record was given. LoadOrTrain picks one at
// construction time so callers never deal with an absent model.
package categorizer

import (
	"strings"

	"bank-reconciliation-service/internal/fuzzy"
	"bank-reconciliation-service/internal/models"
)

// Classifier predicts a category and a 0-100 confidence for a vendor.
// existing is the category already recorded on the row, possibly empty.
type Classifier interface {
	Predict(vendor, existing string) (string, float64)
}

// PassThrough keeps the existing category, or Uncategorized, with zero confidence
type PassThrough struct{}

func (PassThrough) Predict(_ string, existing string) (string, float64) {
	if strings.TrimSpace(existing) == "" {
		return models.Uncategorized, 0
	}
	return existing, 0
}

// Apply returns a copy of records with PredictedCategory and
// PredictionConfidence filled in by classifier.
func Apply(records []models.InternalRecord, classifier Classifier) []models.InternalRecord {
	if classifier == nil {
		classifier = PassThrough{}
	}

	out := make([]models.InternalRecord, len(records))
	for i, rec := range records {
		rec.PredictedCategory, rec.PredictionConfidence = classifier.Predict(rec.Vendor, rec.Category)
		out[i] = rec
	}
	return out
}

// tokenize splits a vendor into the words the model learns from
func tokenize(vendor string) []string {
	return strings.Fields(fuzzy.Normalize(vendor))
}
