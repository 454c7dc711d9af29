package anomaly

import (
	"fmt"
	"strings"

	"bank-reconciliation-service/internal/fuzzy"
	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/pkg/errors"
	"bank-reconciliation-service/pkg/logger"
)

// Flagger checks unmatched bank transactions against vendor baselines
type Flagger struct {
	config   *Config
	detector OutlierDetector
	logger   logger.Logger
}

// NewFlagger creates a flagger. A nil detector disables the volume signal.
func NewFlagger(config *Config, detector OutlierDetector, log logger.Logger) (*Flagger, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError("anomaly", config.VendorSelection, err)
	}
	if detector == nil {
		detector = NoopDetector{}
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	cfg := *config
	return &Flagger{
		config:   &cfg,
		detector: detector,
		logger:   log.WithComponent("anomaly"),
	}, nil
}

type vendorKey struct {
	name       string
	normalized string
}

// Flag returns the anomalies among unmatched, in input order
func (f *Flagger) Flag(unmatched []models.BankTransaction, stats *StatsTable) []models.Anomaly {
	keys := make([]vendorKey, 0, stats.Len())
	for _, v := range stats.Vendors() {
		keys = append(keys, vendorKey{name: v, normalized: fuzzy.Normalize(v)})
	}

	anomalies := make([]models.Anomaly, 0)
	for _, tx := range unmatched {
		vendor, ok := f.lookupVendor(fuzzy.Normalize(tx.Description), keys)
		if !ok {
			continue
		}

		s, ok := stats.Get(vendor)
		if !ok {
			continue
		}

		var reasons []string
		if !s.InBounds(tx.Amount) {
			reasons = append(reasons, fmt.Sprintf("Amount is outside the typical range for %s ($%s to $%s)",
				vendor, s.LowerBound.StringFixed(2), s.UpperBound.StringFixed(2)))
		}
		if f.config.OutlierDetection && f.detector.IsOutlier(tx.Amount, vendor) {
			reasons = append(reasons, fmt.Sprintf("Amount is an unusual volume for %s", vendor))
		}
		if len(reasons) == 0 {
			continue
		}

		anomalies = append(anomalies, models.Anomaly{
			Date:        tx.Date,
			Description: tx.Description,
			Amount:      tx.Amount,
			Reason:      strings.Join(reasons, "; "),
			Vendor:      vendor,
		})
	}

	f.logger.WithFields(logger.Fields{
		"unmatched": len(unmatched),
		"vendors":   stats.Len(),
		"anomalies": len(anomalies),
	}).Info("Anomaly flagging completed")

	return anomalies
}

// lookupVendor finds the vendor whose normalized name partially matches the
// normalized description above the similarity threshold.
func (f *Flagger) lookupVendor(description string, keys []vendorKey) (string, bool) {
	bestScore := f.config.SimilarityThreshold
	best := ""
	found := false

	for _, k := range keys {
		score := fuzzy.PartialRatio(description, k.normalized)
		if score <= bestScore {
			continue
		}
		if f.config.VendorSelection == SelectFirst {
			return k.name, true
		}
		bestScore, best, found = score, k.name, true
	}

	return best, found
}
