// internal/analyzer/user_history.go
package analyzer

import (
	"context"
	"fmt"
	"math"
	"time"

	"risk-engine/internal/models"
)

type UserHistoryConfig struct {
	NewAccountAge          time.Duration
	YoungAccountAge        time.Duration
	MinVerificationLevel   int
	NewAccountPoints       int
	YoungAccountPoints     int
	VerificationPoints     int
	RiskFlagPoints         int
	FirstTransactionPoints int
	FraudReportPoints      int
}

func DefaultUserHistoryConfig() UserHistoryConfig {
	return UserHistoryConfig{
		NewAccountAge:          24 * time.Hour,
		YoungAccountAge:        7 * 24 * time.Hour,
		MinVerificationLevel:   2,
		NewAccountPoints:       30,
		YoungAccountPoints:     15,
		VerificationPoints:     20,
		RiskFlagPoints:         25,
		FirstTransactionPoints: 10,
		FraudReportPoints:      80,
	}
}

// UserHistoryAnalyzer scores the account behind the transaction.
type UserHistoryAnalyzer struct {
	history   HistoryReader
	blacklist Blacklist
	cfg       UserHistoryConfig
}

func NewUserHistoryAnalyzer(history HistoryReader, blacklist Blacklist, cfg UserHistoryConfig) *UserHistoryAnalyzer {
	return &UserHistoryAnalyzer{history: history, blacklist: blacklist, cfg: cfg}
}

func (a *UserHistoryAnalyzer) Factor() models.FactorName { return models.FactorUserHistory }

func (a *UserHistoryAnalyzer) Analyze(ctx context.Context, in *Input) (models.RiskFactorResult, error) {
	tx := in.Transaction
	result := models.NewFactorResult(models.FactorUserHistory)

	profile, err := a.history.UserProfile(ctx, tx.UserID)
	if err != nil {
		return result, fmt.Errorf("failed to load user profile: %w", err)
	}
	if profile == nil {
		// unknown user: nothing to age or verify, but it is their first transaction
		result.Attribute("profile", "absent")
		result.Fire("first_transaction", a.cfg.FirstTransactionPoints)
		result.Clamp()
		return result, nil
	}

	age := tx.CreatedAt.Sub(profile.AccountCreatedAt)
	result.Measure("account_age_days", math.Round(age.Hours()/24*100)/100)
	switch {
	case age < a.cfg.NewAccountAge:
		result.Fire("new_account", a.cfg.NewAccountPoints)
	case age < a.cfg.YoungAccountAge:
		result.Fire("young_account", a.cfg.YoungAccountPoints)
	}

	result.Measure("verification_level", float64(profile.VerificationLevel))
	if profile.VerificationLevel < a.cfg.MinVerificationLevel {
		result.Fire("low_verification", a.cfg.VerificationPoints)
	}

	flagged := len(profile.RiskFlags) > 0
	if !flagged && profile.Email != "" {
		flagged, err = a.blacklist.IsBlacklisted(ctx, models.BlacklistEmail, profile.Email, in.Now)
		if err != nil {
			return result, fmt.Errorf("failed to check email blacklist: %w", err)
		}
	}
	result.Measure("risk_flags", float64(len(profile.RiskFlags)))
	if flagged {
		result.Fire("existing_risk_flags", a.cfg.RiskFlagPoints)
	}

	result.Measure("total_transactions", float64(profile.TotalTransactions))
	if profile.TotalTransactions == 0 {
		result.Fire("first_transaction", a.cfg.FirstTransactionPoints)
	}

	result.Measure("confirmed_fraud_reports", float64(profile.ConfirmedFraudReports))
	if profile.ConfirmedFraudReports > 0 {
		result.Fire("confirmed_fraud_history", a.cfg.FraudReportPoints)
	}

	result.Clamp()
	return result, nil
}
