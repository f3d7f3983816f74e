// internal/models/analysis.go
package models

import "time"

type FactorName string
type RiskLevel string
type Priority string
type Action string

const (
	FactorVelocity       FactorName = "velocity"
	FactorGeographic     FactorName = "geographic"
	FactorBehavioral     FactorName = "behavioral"
	FactorPayment        FactorName = "payment"
	FactorUserHistory    FactorName = "user_history"
	FactorDevice         FactorName = "device"
	FactorBookingPattern FactorName = "booking_pattern"

	RiskLevelLow      RiskLevel = "low"
	RiskLevelMedium   RiskLevel = "medium"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelCritical RiskLevel = "critical"

	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

const (
	ActionBlockTransaction              Action = "block_transaction"
	ActionFlagAccount                   Action = "flag_account"
	ActionNotifyOperators               Action = "notify_operators"
	ActionRequireManualReview           Action = "require_manual_review"
	ActionRequestAdditionalVerification Action = "request_additional_verification"
	ActionDelayProcessing               Action = "delay_processing"
	ActionEnhancedMonitoring            Action = "enhanced_monitoring"
	ActionRequestVerification           Action = "request_verification"
	ActionProceedNormally               Action = "proceed_normally"
	ActionVerifyPaymentMethod           Action = "verify_payment_method"
	ActionVerifyIdentity                Action = "verify_identity"
	ActionApplyRateLimiting             Action = "apply_rate_limiting"
	ActionVerifyLocation                Action = "verify_location"
	ActionVerifyDevice                  Action = "verify_device"
	ActionRequireCaptcha                Action = "require_captcha"
	ActionReviewBookingDetails          Action = "review_booking_details"
)

// AllFactors is the canonical factor order used for fan-in and persistence.
var AllFactors = []FactorName{
	FactorVelocity,
	FactorGeographic,
	FactorBehavioral,
	FactorPayment,
	FactorUserHistory,
	FactorDevice,
	FactorBookingPattern,
}

// SignalDataUnavailable marks a factor whose analyzer failed or timed out.
const SignalDataUnavailable = "data_unavailable"

// Signal is a single rule that fired inside an analyzer.
type Signal struct {
	Code   string `json:"code" bson:"code"`
	Points int    `json:"points" bson:"points"`
}

// RiskFactorResult is the outcome of one analyzer.
type RiskFactorResult struct {
	Factor        FactorName         `json:"factor" bson:"factor"`
	Score         int                `json:"score" bson:"score"`
	DataAvailable bool               `json:"data_available" bson:"data_available"`
	Signals       []Signal           `json:"signals" bson:"signals"`
	Measurements  map[string]float64 `json:"measurements,omitempty" bson:"measurements,omitempty"`
	Attributes    map[string]string  `json:"attributes,omitempty" bson:"attributes,omitempty"`
}

func NewFactorResult(factor FactorName) RiskFactorResult {
	return RiskFactorResult{
		Factor:        factor,
		DataAvailable: true,
		Signals:       []Signal{},
		Measurements:  map[string]float64{},
		Attributes:    map[string]string{},
	}
}

// Fire records a triggered rule and adds its points to the score.
func (r *RiskFactorResult) Fire(code string, points int) {
	r.Signals = append(r.Signals, Signal{Code: code, Points: points})
	r.Score += points
}

func (r *RiskFactorResult) Measure(name string, value float64) {
	if r.Measurements == nil {
		r.Measurements = map[string]float64{}
	}
	r.Measurements[name] = value
}

func (r *RiskFactorResult) Attribute(name, value string) {
	if r.Attributes == nil {
		r.Attributes = map[string]string{}
	}
	r.Attributes[name] = value
}

// Fired reports whether the named signal was triggered.
func (r *RiskFactorResult) Fired(code string) bool {
	for _, s := range r.Signals {
		if s.Code == code {
			return true
		}
	}
	return false
}

// Clamp bounds the score to [0, 100].
func (r *RiskFactorResult) Clamp() {
	r.Score = ClampScore(r.Score)
}

func ClampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

type Recommendation struct {
	Actions    []Action `json:"actions" bson:"actions"`
	Confidence int      `json:"confidence" bson:"confidence"`
	Priority   Priority `json:"priority" bson:"priority"`
}

// HasAction reports whether the recommendation includes the action.
func (r Recommendation) HasAction(action Action) bool {
	for _, a := range r.Actions {
		if a == action {
			return true
		}
	}
	return false
}

type FraudAnalysisResult struct {
	ID                   string             `json:"id" bson:"_id"`
	TransactionID        string             `json:"transaction_id" bson:"transaction_id"`
	UserID               string             `json:"user_id" bson:"user_id"`
	Score                int                `json:"score" bson:"score"`
	RiskLevel            RiskLevel          `json:"risk_level" bson:"risk_level"`
	Factors              []RiskFactorResult `json:"factors" bson:"factors"`
	Recommendation       Recommendation     `json:"recommendation" bson:"recommendation"`
	RequiresManualReview bool               `json:"requires_manual_review" bson:"requires_manual_review"`
	ShouldBlock          bool               `json:"should_block" bson:"should_block"`
	FailSafe             bool               `json:"fail_safe" bson:"fail_safe"`
	AnalyzedAt           time.Time          `json:"analyzed_at" bson:"analyzed_at"`
	DurationMS           int64              `json:"duration_ms" bson:"duration_ms"`
}

// Factor returns the result for the named factor.
func (a *FraudAnalysisResult) Factor(name FactorName) (RiskFactorResult, bool) {
	for _, f := range a.Factors {
		if f.Factor == name {
			return f, true
		}
	}
	return RiskFactorResult{}, false
}

// Clone returns a deep copy so stores never share maps or slices with callers.
func (a *FraudAnalysisResult) Clone() *FraudAnalysisResult {
	if a == nil {
		return nil
	}
	cp := *a
	cp.Factors = make([]RiskFactorResult, len(a.Factors))
	for i, f := range a.Factors {
		fc := f
		fc.Signals = append([]Signal(nil), f.Signals...)
		fc.Measurements = make(map[string]float64, len(f.Measurements))
		for k, v := range f.Measurements {
			fc.Measurements[k] = v
		}
		fc.Attributes = make(map[string]string, len(f.Attributes))
		for k, v := range f.Attributes {
			fc.Attributes[k] = v
		}
		cp.Factors[i] = fc
	}
	cp.Recommendation.Actions = append([]Action(nil), a.Recommendation.Actions...)
	return &cp
}
