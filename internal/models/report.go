// internal/models/report.go
package models

import "time"

type FactorStat struct {
	Factor       FactorName `json:"factor"`
	Occurrences  int        `json:"occurrences"`
	AverageScore float64    `json:"average_score"`
}

// FraudReport aggregates analyses over a time window.
type FraudReport struct {
	Window            string            `json:"window"`
	From              time.Time         `json:"from"`
	To                time.Time         `json:"to"`
	TotalAnalyses     int               `json:"total_analyses"`
	CountsByLevel     map[RiskLevel]int `json:"counts_by_level"`
	BlockedCount      int               `json:"blocked_count"`
	ManualReviewCount int               `json:"manual_review_count"`
	FailSafeCount     int               `json:"fail_safe_count"`
	AverageScore      float64           `json:"average_score"`
	TopFactors        []FactorStat      `json:"top_factors"`
	GeneratedAt       time.Time         `json:"generated_at"`
}
