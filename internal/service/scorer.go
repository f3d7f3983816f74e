// internal/service/scorer.go
package service

import (
	"errors"
	"math"

	"risk-engine/internal/models"
)

var ErrNoFactorData = errors.New("no risk factor produced data")

// Strategy turns factor results into a composite score. The weighted
// scorer is the default; a learned model can be plugged in instead.
type Strategy interface {
	Score(factors []models.RiskFactorResult, weights models.Weights) (int, error)
}

// WeightedScorer computes a weighted average over the factors that have
// data, re-normalizing weights so missing factors neither add nor dilute.
type WeightedScorer struct{}

func (WeightedScorer) Score(factors []models.RiskFactorResult, weights models.Weights) (int, error) {
	var sum, totalWeight float64
	for _, f := range factors {
		if !f.DataAvailable {
			continue
		}
		w := weights[f.Factor]
		if w <= 0 {
			continue
		}
		sum += float64(models.ClampScore(f.Score)) * w
		totalWeight += w
	}
	if totalWeight == 0 {
		return 0, ErrNoFactorData
	}
	return models.ClampScore(int(math.Round(sum / totalWeight))), nil
}
