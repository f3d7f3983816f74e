// internal/models/intel.go
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Read-only data supplied by the surrounding platform.

type UserRiskProfile struct {
	UserID                string          `json:"user_id" db:"user_id"`
	Email                 string          `json:"email" db:"email"`
	AccountCreatedAt      time.Time       `json:"account_created_at" db:"account_created_at"`
	VerificationLevel     int             `json:"verification_level" db:"verification_level"`
	ConfirmedFraudReports int             `json:"confirmed_fraud_reports" db:"confirmed_fraud_reports"`
	AvgTransactionAmount  decimal.Decimal `json:"avg_transaction_amount" db:"avg_transaction_amount"`
	MaxTransactionAmount  decimal.Decimal `json:"max_transaction_amount" db:"max_transaction_amount"`
	TotalTransactions     int             `json:"total_transactions" db:"total_transactions"`
	RiskFlags             []string        `json:"risk_flags" db:"risk_flags"`
}

// HistoricalTransaction is a past transaction used for velocity and travel checks.
// Status may also be "failed" for declined attempts.
type HistoricalTransaction struct {
	ID        string          `json:"id" db:"id"`
	UserID    string          `json:"user_id" db:"user_id"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	Status    string          `json:"status" db:"status"`
	CardBIN   string          `json:"card_bin" db:"card_bin"`
	IPAddress string          `json:"ip_address" db:"ip_address"`
	Country   string          `json:"country" db:"country"`
	Latitude  *float64        `json:"latitude,omitempty" db:"latitude"`
	Longitude *float64        `json:"longitude,omitempty" db:"longitude"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

const HistoricalStatusFailed = "failed"

func (h *HistoricalTransaction) HasLocation() bool {
	return h.Latitude != nil && h.Longitude != nil
}

type DeviceHistory struct {
	Fingerprint string    `json:"fingerprint" db:"fingerprint"`
	UserIDs     []string  `json:"user_ids" db:"user_ids"`
	Flagged     bool      `json:"flagged" db:"flagged"`
	LastSeenAt  time.Time `json:"last_seen_at" db:"last_seen_at"`
}

type BlacklistKind string

const (
	BlacklistCardBIN BlacklistKind = "card_bin"
	BlacklistIP      BlacklistKind = "ip"
	BlacklistEmail   BlacklistKind = "email"
)

type BlacklistEntry struct {
	Kind      BlacklistKind `json:"kind" db:"kind"`
	Value     string        `json:"value" db:"value"`
	Severity  string        `json:"severity" db:"severity"`
	Reason    string        `json:"reason" db:"reason"`
	ExpiresAt *time.Time    `json:"expires_at,omitempty" db:"expires_at"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
}

// Active reports whether the entry still applies at t.
func (b *BlacklistEntry) Active(t time.Time) bool {
	return b.ExpiresAt == nil || t.Before(*b.ExpiresAt)
}

// BookingRecord is an existing reservation held by some user.
type BookingRecord struct {
	TransactionID string    `json:"transaction_id" db:"transaction_id"`
	UserID        string    `json:"user_id" db:"user_id"`
	ResourceID    string    `json:"resource_id" db:"resource_id"`
	EventDate     time.Time `json:"event_date" db:"event_date"`
}

// Reputation lookups.

type IPIntel struct {
	IP        string  `json:"ip"`
	Country   string  `json:"country"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	ISP       string  `json:"isp"`
	Org       string  `json:"org"`
	Timezone  string  `json:"timezone,omitempty"`
	Proxy     bool    `json:"proxy"`
	VPN       bool    `json:"vpn"`
	Tor       bool    `json:"tor"`
	Malicious bool    `json:"malicious"`
	Source    string  `json:"source"`
}

type BINIntel struct {
	BIN         string `json:"bin"`
	CardNetwork string `json:"card_network,omitempty"`
	Country     string `json:"country,omitempty"`
	Flagged     bool   `json:"flagged"`
	Penalty     int    `json:"penalty"`
	Provider    string `json:"provider"`
}

// Side-effect records written by the action executor.

type AccountRiskFlag struct {
	ID         string    `json:"id" db:"id"`
	UserID     string    `json:"user_id" db:"user_id"`
	Reason     string    `json:"reason" db:"reason"`
	AnalysisID string    `json:"analysis_id" db:"analysis_id"`
	Score      int       `json:"score" db:"score"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

type Advisory struct {
	TransactionID string    `json:"transaction_id" db:"transaction_id"`
	AnalysisID    string    `json:"analysis_id" db:"analysis_id"`
	Action        Action    `json:"action" db:"action"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}
