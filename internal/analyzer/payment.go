// internal/analyzer/payment.go
package analyzer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"risk-engine/internal/models"
)

type PaymentConfig struct {
	SuspiciousBINPrefixes []string
	VerificationCeiling   decimal.Decimal
	CardTestingWindow     time.Duration
	MaxFailedAttempts     int
	DefaultBINPenalty     int
	BINPoints             int
	CeilingPoints         int
	CryptoPoints          int
	CardTestingPoints     int
}

func DefaultPaymentConfig() PaymentConfig {
	return PaymentConfig{
		SuspiciousBINPrefixes: []string{"400000", "411111", "555555", "378282"},
		VerificationCeiling:   decimal.NewFromInt(10000),
		CardTestingWindow:     24 * time.Hour,
		MaxFailedAttempts:     5,
		DefaultBINPenalty:     20,
		BINPoints:             35,
		CeilingPoints:         15,
		CryptoPoints:          10,
		CardTestingPoints:     40,
	}
}

// PaymentAnalyzer scores the payment instrument.
type PaymentAnalyzer struct {
	history    HistoryReader
	blacklist  Blacklist
	reputation Reputation
	cfg        PaymentConfig
}

func NewPaymentAnalyzer(history HistoryReader, blacklist Blacklist, reputation Reputation, cfg PaymentConfig) *PaymentAnalyzer {
	return &PaymentAnalyzer{
		history:    history,
		blacklist:  blacklist,
		reputation: reputation,
		cfg:        cfg,
	}
}

func (a *PaymentAnalyzer) Factor() models.FactorName { return models.FactorPayment }

func (a *PaymentAnalyzer) Analyze(ctx context.Context, in *Input) (models.RiskFactorResult, error) {
	tx := in.Transaction
	result := models.NewFactorResult(models.FactorPayment)
	result.Attribute("payment_method", string(tx.PaymentMethod))

	if tx.CardBIN != "" {
		if network := DetectCardNetwork(tx.CardBIN); network != "" {
			result.Attribute("card_network", network)
		}

		blacklisted, err := a.blacklist.IsBlacklisted(ctx, models.BlacklistCardBIN, tx.CardBIN, in.Now)
		if err != nil {
			return result, fmt.Errorf("failed to check bin blacklist: %w", err)
		}
		if blacklisted || a.suspiciousBIN(tx.CardBIN) {
			result.Fire("suspicious_bin", a.cfg.BINPoints)
		}

		intel, err := a.reputation.LookupBIN(ctx, tx.CardBIN)
		if err != nil {
			return result, fmt.Errorf("failed to look up bin reputation: %w", err)
		}
		if intel != nil {
			if intel.Provider != "" {
				result.Attribute("bin_provider", intel.Provider)
			}
			if intel.Flagged {
				penalty := intel.Penalty
				if penalty <= 0 {
					penalty = a.cfg.DefaultBINPenalty
				}
				result.Fire("bin_reputation_flagged", penalty)
			}
		}

		failed, err := a.history.FailedAttemptsByBIN(ctx, tx.CardBIN, tx.CreatedAt.Add(-a.cfg.CardTestingWindow))
		if err != nil {
			return result, fmt.Errorf("failed to count failed attempts: %w", err)
		}
		result.Measure("failed_attempts_24h", float64(failed))
		if failed > a.cfg.MaxFailedAttempts {
			result.Fire("card_testing", a.cfg.CardTestingPoints)
		}
	}

	if tx.Amount.GreaterThan(a.cfg.VerificationCeiling) {
		result.Fire("amount_above_verification_ceiling", a.cfg.CeilingPoints)
	}
	if tx.PaymentMethod == models.PaymentMethodCrypto {
		result.Fire("crypto_payment", a.cfg.CryptoPoints)
	}

	result.Clamp()
	return result, nil
}

func (a *PaymentAnalyzer) suspiciousBIN(bin string) bool {
	for _, prefix := range a.cfg.SuspiciousBINPrefixes {
		if strings.HasPrefix(bin, prefix) {
			return true
		}
	}
	return false
}

// DetectCardNetwork detects the card network from the leading digits.
func DetectCardNetwork(cardNumber string) string {
	if len(cardNumber) < 2 {
		return ""
	}

	prefix := cardNumber[:2]

	switch {
	case prefix == "34" || prefix == "37":
		return "amex"
	case prefix >= "40" && prefix <= "49":
		return "visa"
	case prefix >= "51" && prefix <= "55":
		return "mastercard"
	case prefix >= "22" && prefix <= "27":
		return "mastercard"
	case prefix >= "60" && prefix <= "65":
		return "discover"
	default:
		return ""
	}
}
