package categorizer

import (
	"os"

	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/pkg/logger"
)

// LoadOrTrain returns a model persisted at modelPath if there is one,
// otherwise it trains on records and saves the result. An empty modelPath
// disables persistence.
//
// The returned Classifier is never nil. When no model can be produced the
// PassThrough classifier is returned together with the reason, which callers
// should treat as a warning.
func LoadOrTrain(records []models.InternalRecord, modelPath string, log logger.Logger) (Classifier, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}
	log = log.WithComponent("categorizer")

	if modelPath != "" {
		if _, err := os.Stat(modelPath); err == nil {
			model, err := LoadBayes(modelPath)
			if err == nil {
				log.WithField("model_path", modelPath).Info("Categorizer model loaded")
				return model, nil
			}
			log.WithError(err).Warn("Could not load categorizer model, retraining")
		}
	}

	model, err := TrainBayes(records)
	if err != nil {
		log.WithError(err).Warn("Categorizer unavailable, keeping existing categories")
		return PassThrough{}, err
	}

	log.WithFields(logger.Fields{
		"categories": len(model.Categories()),
		"records":    len(records),
	}).Info("Categorizer model trained")

	if modelPath != "" {
		if err := model.Save(modelPath); err != nil {
			// the trained model is still usable for this run
			log.WithError(err).Warn("Could not save categorizer model")
		} else {
			log.WithField("model_path", modelPath).Debug("Categorizer model saved")
		}
	}

	return model, nil
}
