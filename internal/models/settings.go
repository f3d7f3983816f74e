// internal/models/settings.go
package models

import (
	"fmt"
	"time"
)

// Weights maps each factor to its share of the composite score.
type Weights map[FactorName]float64

// Thresholds are the minimum composite scores for each non-low level.
type Thresholds struct {
	Medium   int `json:"medium"`
	High     int `json:"high"`
	Critical int `json:"critical"`
}

type Settings struct {
	Weights           Weights    `json:"weights"`
	Thresholds        Thresholds `json:"thresholds"`
	AnalyzerTimeoutMS int64      `json:"analyzer_timeout_ms"`
	AnalysisTimeoutMS int64      `json:"analysis_timeout_ms"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func DefaultWeights() Weights {
	return Weights{
		FactorVelocity:       0.20,
		FactorGeographic:     0.15,
		FactorBehavioral:     0.15,
		FactorPayment:        0.25,
		FactorUserHistory:    0.15,
		FactorDevice:         0.05,
		FactorBookingPattern: 0.05,
	}
}

func DefaultThresholds() Thresholds {
	return Thresholds{Medium: 30, High: 60, Critical: 90}
}

func DefaultSettings() Settings {
	return Settings{
		Weights:           DefaultWeights(),
		Thresholds:        DefaultThresholds(),
		AnalyzerTimeoutMS: 2000,
		AnalysisTimeoutMS: 5000,
	}
}

func (s Settings) AnalyzerTimeout() time.Duration {
	return time.Duration(s.AnalyzerTimeoutMS) * time.Millisecond
}

func (s Settings) AnalysisTimeout() time.Duration {
	return time.Duration(s.AnalysisTimeoutMS) * time.Millisecond
}

// Clone copies the weights map.
func (s Settings) Clone() Settings {
	cp := s
	cp.Weights = make(Weights, len(s.Weights))
	for k, v := range s.Weights {
		cp.Weights[k] = v
	}
	return cp
}

// Validate checks thresholds are strictly increasing within (0, 100] and
// weights are known and non-negative with a positive sum.
func (s Settings) Validate() error {
	if err := s.Thresholds.Validate(); err != nil {
		return err
	}

	known := make(map[FactorName]bool, len(AllFactors))
	for _, f := range AllFactors {
		known[f] = true
	}
	var sum float64
	for factor, w := range s.Weights {
		if !known[factor] {
			return fmt.Errorf("%w: unknown factor %q", ErrInvalidSettings, factor)
		}
		if w < 0 {
			return fmt.Errorf("%w: weight for %s must not be negative", ErrInvalidSettings, factor)
		}
		sum += w
	}
	if sum <= 0 {
		return fmt.Errorf("%w: weights must sum to a positive value", ErrInvalidSettings)
	}

	if s.AnalyzerTimeoutMS <= 0 || s.AnalysisTimeoutMS <= 0 {
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidSettings)
	}
	return nil
}

func (t Thresholds) Validate() error {
	if t.Medium <= 0 || t.Critical > 100 {
		return fmt.Errorf("%w: thresholds must lie within (0, 100]", ErrInvalidSettings)
	}
	if !(t.Medium < t.High && t.High < t.Critical) {
		return fmt.Errorf("%w: thresholds must be strictly increasing (medium < high < critical)", ErrInvalidSettings)
	}
	return nil
}
