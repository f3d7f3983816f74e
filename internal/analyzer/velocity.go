// internal/analyzer/velocity.go
package analyzer

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"risk-engine/internal/models"
)

type VelocityConfig struct {
	Window        time.Duration
	MaxCount      int
	MaxTotal      decimal.Decimal
	MaxFailures   int
	CountPoints   int
	TotalPoints   int
	FailurePoints int
}

func DefaultVelocityConfig() VelocityConfig {
	return VelocityConfig{
		Window:        time.Hour,
		MaxCount:      5,
		MaxTotal:      decimal.NewFromInt(50000),
		MaxFailures:   3,
		CountPoints:   25,
		TotalPoints:   30,
		FailurePoints: 20,
	}
}

// VelocityAnalyzer scores how much the user transacted in the trailing window.
type VelocityAnalyzer struct {
	history HistoryReader
	cfg     VelocityConfig
}

func NewVelocityAnalyzer(history HistoryReader, cfg VelocityConfig) *VelocityAnalyzer {
	return &VelocityAnalyzer{history: history, cfg: cfg}
}

func (a *VelocityAnalyzer) Factor() models.FactorName { return models.FactorVelocity }

func (a *VelocityAnalyzer) Analyze(ctx context.Context, in *Input) (models.RiskFactorResult, error) {
	tx := in.Transaction
	result := models.NewFactorResult(models.FactorVelocity)

	since := tx.CreatedAt.Add(-a.cfg.Window)
	recent, err := a.history.RecentTransactions(ctx, tx.UserID, since, tx.ID)
	if err != nil {
		return result, fmt.Errorf("failed to load recent transactions: %w", err)
	}

	count := 0
	failures := 0
	total := decimal.Zero
	for _, h := range recent {
		// only prior activity counts
		if !h.CreatedAt.Before(tx.CreatedAt) {
			continue
		}
		count++
		total = total.Add(h.Amount)
		if h.Status == models.HistoricalStatusFailed {
			failures++
		}
	}

	totalF, _ := total.Float64()
	result.Measure("transaction_count", float64(count))
	result.Measure("total_amount", totalF)
	result.Measure("failed_attempts", float64(failures))
	result.Measure("window_minutes", a.cfg.Window.Minutes())

	if count >= a.cfg.MaxCount {
		result.Fire("high_transaction_count", a.cfg.CountPoints)
	}
	if total.GreaterThanOrEqual(a.cfg.MaxTotal) {
		result.Fire("high_total_amount", a.cfg.TotalPoints)
	}
	if failures >= a.cfg.MaxFailures {
		result.Fire("repeated_failures", a.cfg.FailurePoints)
	}

	result.Clamp()
	return result, nil
}
