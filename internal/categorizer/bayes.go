package categorizer

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/pkg/errors"

	"github.com/jbrukh/bayesian"
)

// BayesClassifier is a multinomial naive Bayes model over vendor name tokens
type BayesClassifier struct {
	model *bayesian.Classifier
}

// TrainBayes learns categories from records that have both a Vendor and a
// Category. At least two distinct categories are required.
func TrainBayes(records []models.InternalRecord) (*BayesClassifier, error) {
	type sample struct {
		tokens   []string
		category string
	}

	var samples []sample
	seen := make(map[string]struct{})
	for _, rec := range records {
		category := strings.TrimSpace(rec.Category)
		tokens := tokenize(rec.Vendor)
		if category == "" || len(tokens) == 0 {
			continue
		}
		samples = append(samples, sample{tokens: tokens, category: category})
		seen[category] = struct{}{}
	}

	if len(seen) < 2 {
		return nil, errors.InsufficientTrainingData(errors.CodeInsufficientData,
			fmt.Sprintf("%d labelled records across %d distinct categories, need at least 2 categories", len(samples), len(seen)), nil)
	}

	names := make([]string, 0, len(seen))
	for c := range seen {
		names = append(names, c)
	}
	sort.Strings(names)

	classes := make([]bayesian.Class, len(names))
	for i, n := range names {
		classes[i] = bayesian.Class(n)
	}

	model := bayesian.NewClassifier(classes...)
	for _, s := range samples {
		model.Learn(s.tokens, bayesian.Class(s.category))
	}

	return &BayesClassifier{model: model}, nil
}

// LoadBayes reads a model written by Save
func LoadBayes(path string) (*BayesClassifier, error) {
	model, err := bayesian.NewClassifierFromFile(path)
	if err != nil {
		return nil, errors.InsufficientTrainingData(errors.CodeModelLoad, path, err)
	}
	if len(model.Classes) < 2 {
		return nil, errors.InsufficientTrainingData(errors.CodeModelLoad, path,
			fmt.Errorf("model has %d classes", len(model.Classes)))
	}
	return &BayesClassifier{model: model}, nil
}

// Save persists the model to path, creating parent directories as needed
func (b *BayesClassifier) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.InsufficientTrainingData(errors.CodeModelSave, path, err)
		}
	}
	if err := b.model.WriteToFile(path); err != nil {
		return errors.InsufficientTrainingData(errors.CodeModelSave, path, err)
	}
	return nil
}

// Categories returns the labels the model can predict
func (b *BayesClassifier) Categories() []string {
	out := make([]string, len(b.model.Classes))
	for i, c := range b.model.Classes {
		out[i] = string(c)
	}
	return out
}

// Predict returns the most probable category and its probability scaled to
// 0-100 and rounded to two decimals. If the scores underflow the existing
// category is kept.
func (b *BayesClassifier) Predict(vendor, existing string) (string, float64) {
	scores, best, _, err := b.model.SafeProbScores(tokenize(vendor))
	if err != nil {
		return PassThrough{}.Predict(vendor, existing)
	}
	return string(b.model.Classes[best]), math.Round(scores[best]*100*100) / 100
}
