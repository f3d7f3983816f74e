// internal/service/classifier.go
package service

import "risk-engine/internal/models"

// Classify maps a composite score to a risk level. The highest threshold
// met or exceeded wins.
func Classify(score int, t models.Thresholds) models.RiskLevel {
	switch {
	case score >= t.Critical:
		return models.RiskLevelCritical
	case score >= t.High:
		return models.RiskLevelHigh
	case score >= t.Medium:
		return models.RiskLevelMedium
	default:
		return models.RiskLevelLow
	}
}
