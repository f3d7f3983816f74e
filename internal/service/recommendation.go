// internal/service/recommendation.go
package service

import (
	"math"

	"risk-engine/internal/models"
)

const (
	targetedActionScore = 50
	strongSignalScore   = 70
	strongSignalCount   = 2
	consistentFactor    = 0.9
	mixedFactor         = 0.6
)

var levelActions = map[models.RiskLevel][]models.Action{
	models.RiskLevelCritical: {models.ActionBlockTransaction, models.ActionFlagAccount, models.ActionNotifyOperators},
	models.RiskLevelHigh:     {models.ActionRequireManualReview, models.ActionRequestAdditionalVerification, models.ActionDelayProcessing},
	models.RiskLevelMedium:   {models.ActionEnhancedMonitoring, models.ActionRequestVerification},
	models.RiskLevelLow:      {models.ActionProceedNormally},
}

var factorActions = map[models.FactorName]models.Action{
	models.FactorPayment:        models.ActionVerifyPaymentMethod,
	models.FactorUserHistory:    models.ActionVerifyIdentity,
	models.FactorVelocity:       models.ActionApplyRateLimiting,
	models.FactorGeographic:     models.ActionVerifyLocation,
	models.FactorDevice:         models.ActionVerifyDevice,
	models.FactorBehavioral:     models.ActionRequireCaptcha,
	models.FactorBookingPattern: models.ActionReviewBookingDetails,
}

var levelPriority = map[models.RiskLevel]models.Priority{
	models.RiskLevelCritical: models.PriorityCritical,
	models.RiskLevelHigh:     models.PriorityHigh,
	models.RiskLevelMedium:   models.PriorityNormal,
	models.RiskLevelLow:      models.PriorityLow,
}

// Recommend derives actions, confidence, and priority for a classified result.
func Recommend(level models.RiskLevel, factors []models.RiskFactorResult) models.Recommendation {
	seen := make(map[models.Action]bool)
	var actions []models.Action
	add := func(a models.Action) {
		if !seen[a] {
			seen[a] = true
			actions = append(actions, a)
		}
	}

	for _, a := range levelActions[level] {
		add(a)
	}

	available := 0
	strong := 0
	for _, f := range factors {
		if !f.DataAvailable {
			continue
		}
		available++
		if f.Score > strongSignalScore {
			strong++
		}
		if f.Score > targetedActionScore {
			if a, ok := factorActions[f.Factor]; ok {
				add(a)
			}
		}
	}

	return models.Recommendation{
		Actions:    actions,
		Confidence: confidence(available, strong),
		Priority:   levelPriority[level],
	}
}

// confidence = data availability x signal consistency, as a percentage.
func confidence(available, strong int) int {
	availability := float64(available) / float64(len(models.AllFactors))
	consistency := mixedFactor
	if strong > strongSignalCount {
		consistency = consistentFactor
	}
	return int(math.Round(availability * consistency * 100))
}
