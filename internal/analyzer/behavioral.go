// internal/analyzer/behavioral.go
package analyzer

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"risk-engine/internal/models"
)

type BehavioralConfig struct {
	MinSessionSeconds int
	BotPatterns       []string
	AmountMultiplier  decimal.Decimal
	UnusualHourStart  int
	UnusualHourEnd    int
	SessionPoints     int
	BotPoints         int
	AmountPoints      int
	HourPoints        int
}

func DefaultBehavioralConfig() BehavioralConfig {
	return BehavioralConfig{
		MinSessionSeconds: 30,
		BotPatterns:       []string{"bot", "crawler", "spider", "scraper", "headless", "phantomjs", "selenium", "puppeteer", "curl", "wget", "python-requests"},
		AmountMultiplier:  decimal.NewFromInt(10),
		UnusualHourStart:  2,
		UnusualHourEnd:    5,
		SessionPoints:     15,
		BotPoints:         30,
		AmountPoints:      20,
		HourPoints:        10,
	}
}

// BehavioralAnalyzer looks at how the purchase was made rather than what was bought.
type BehavioralAnalyzer struct {
	history    HistoryReader
	reputation Reputation
	cfg        BehavioralConfig
}

func NewBehavioralAnalyzer(history HistoryReader, reputation Reputation, cfg BehavioralConfig) *BehavioralAnalyzer {
	return &BehavioralAnalyzer{history: history, reputation: reputation, cfg: cfg}
}

func (a *BehavioralAnalyzer) Factor() models.FactorName { return models.FactorBehavioral }

func (a *BehavioralAnalyzer) Analyze(ctx context.Context, in *Input) (models.RiskFactorResult, error) {
	tx := in.Transaction
	result := models.NewFactorResult(models.FactorBehavioral)

	result.Measure("session_seconds", float64(tx.SessionDuration))
	if tx.SessionDuration < a.cfg.MinSessionSeconds {
		result.Fire("short_session", a.cfg.SessionPoints)
	}

	if matchesAny(tx.UserAgent, a.cfg.BotPatterns) {
		result.Fire("automated_user_agent", a.cfg.BotPoints)
	}

	profile, err := a.history.UserProfile(ctx, tx.UserID)
	if err != nil {
		return result, fmt.Errorf("failed to load user profile: %w", err)
	}
	if profile != nil && profile.AvgTransactionAmount.IsPositive() {
		ratio := tx.Amount.Div(profile.AvgTransactionAmount)
		r, _ := ratio.Round(2).Float64()
		result.Measure("amount_to_average_ratio", r)
		if ratio.GreaterThan(a.cfg.AmountMultiplier) {
			result.Fire("amount_far_above_average", a.cfg.AmountPoints)
		}
	}

	loc, tzSource := a.localTime(ctx, tx)
	hour := tx.CreatedAt.In(loc).Hour()
	result.Measure("local_hour", float64(hour))
	result.Attribute("timezone", loc.String())
	result.Attribute("timezone_source", tzSource)
	if hour >= a.cfg.UnusualHourStart && hour < a.cfg.UnusualHourEnd {
		result.Fire("unusual_hour", a.cfg.HourPoints)
	}

	result.Clamp()
	return result, nil
}

// localTime resolves the buyer's timezone: the one sent with the
// transaction, else the one geolocated from the IP, else UTC.
func (a *BehavioralAnalyzer) localTime(ctx context.Context, tx *models.Transaction) (*time.Location, string) {
	if loc, ok := tx.Location(); ok {
		return loc, "transaction"
	}
	if a.reputation != nil {
		// a failed lookup only costs the local-hour precision
		intel, err := a.reputation.LookupIP(ctx, tx.IPAddress)
		if err == nil && intel != nil && intel.Timezone != "" {
			if loc, err := time.LoadLocation(intel.Timezone); err == nil {
				return loc, "ip"
			}
		}
	}
	return time.UTC, "default"
}
