// internal/models/transaction.go
package models

import (
	"fmt"
	"net"
	"time"

	"github.com/shopspring/decimal"
)

type TransactionStatus string
type PaymentMethod string

const (
	StatusPending       TransactionStatus = "pending"
	StatusApproved      TransactionStatus = "approved"
	StatusBlockedFraud  TransactionStatus = "blocked_fraud"
	StatusRejectedFraud TransactionStatus = "rejected_fraud"

	PaymentMethodCard         PaymentMethod = "card"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodWallet       PaymentMethod = "wallet"
	PaymentMethodCrypto       PaymentMethod = "crypto"
)

// BookingContext describes the reservation a transaction pays for.
type BookingContext struct {
	ResourceID string    `json:"resource_id"`
	EventDate  time.Time `json:"event_date"`
	EventType  string    `json:"event_type"`
}

type Transaction struct {
	ID                string            `json:"id" db:"id"`
	UserID            string            `json:"user_id" db:"user_id"`
	Amount            decimal.Decimal   `json:"amount" db:"amount"`
	Currency          string            `json:"currency" db:"currency"`
	PaymentMethod     PaymentMethod     `json:"payment_method" db:"payment_method"`
	CardBIN           string            `json:"card_bin,omitempty" db:"card_bin"`
	IPAddress         string            `json:"ip_address" db:"ip_address"`
	UserAgent         string            `json:"user_agent" db:"user_agent"`
	DeviceFingerprint string            `json:"device_fingerprint,omitempty" db:"device_fingerprint"`
	SessionDuration   int               `json:"session_duration" db:"session_duration"`
	Timezone          string            `json:"timezone,omitempty" db:"timezone"`
	Booking           *BookingContext   `json:"booking,omitempty"`
	Status            TransactionStatus `json:"status" db:"status"`
	CreatedAt         time.Time         `json:"created_at" db:"created_at"`
	BlockedAt         *time.Time        `json:"blocked_at,omitempty" db:"blocked_at"`
}

// AnalyzeRequest is the body accepted by the analyze endpoint.
type AnalyzeRequest struct {
	TransactionID     string          `json:"transaction_id" binding:"required"`
	UserID            string          `json:"user_id" binding:"required"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	PaymentMethod     PaymentMethod   `json:"payment_method" binding:"required"`
	CardBIN           string          `json:"card_bin"`
	IPAddress         string          `json:"ip_address" binding:"required,ip"`
	UserAgent         string          `json:"user_agent"`
	DeviceFingerprint string          `json:"device_fingerprint"`
	SessionDuration   int             `json:"session_duration" binding:"gte=0"`
	Timezone          string          `json:"timezone"`
	Booking           *BookingContext `json:"booking"`
	CreatedAt         *time.Time      `json:"created_at"`
}

// ToTransaction builds a pending transaction, stamping now when the caller sent no timestamp.
func (r *AnalyzeRequest) ToTransaction(now time.Time) *Transaction {
	createdAt := now
	if r.CreatedAt != nil && !r.CreatedAt.IsZero() {
		createdAt = *r.CreatedAt
	}
	return &Transaction{
		ID:                r.TransactionID,
		UserID:            r.UserID,
		Amount:            r.Amount,
		Currency:          r.Currency,
		PaymentMethod:     r.PaymentMethod,
		CardBIN:           r.CardBIN,
		IPAddress:         r.IPAddress,
		UserAgent:         r.UserAgent,
		DeviceFingerprint: r.DeviceFingerprint,
		SessionDuration:   r.SessionDuration,
		Timezone:          r.Timezone,
		Booking:           r.Booking,
		Status:            StatusPending,
		CreatedAt:         createdAt,
	}
}

// Validate rejects malformed transactions before any analysis runs.
func (t *Transaction) Validate() error {
	switch {
	case t == nil:
		return fmt.Errorf("%w: transaction is required", ErrInvalidTransaction)
	case t.ID == "":
		return fmt.Errorf("%w: id is required", ErrInvalidTransaction)
	case t.UserID == "":
		return fmt.Errorf("%w: user_id is required", ErrInvalidTransaction)
	case !t.Amount.IsPositive():
		return fmt.Errorf("%w: amount must be positive", ErrInvalidTransaction)
	case t.PaymentMethod == "":
		return fmt.Errorf("%w: payment_method is required", ErrInvalidTransaction)
	case net.ParseIP(t.IPAddress) == nil:
		return fmt.Errorf("%w: ip_address %q is not a valid address", ErrInvalidTransaction, t.IPAddress)
	case t.SessionDuration < 0:
		return fmt.Errorf("%w: session_duration must not be negative", ErrInvalidTransaction)
	case t.CreatedAt.IsZero():
		return fmt.Errorf("%w: created_at is required", ErrInvalidTransaction)
	}

	if t.CardBIN != "" && !isDigits(t.CardBIN, 6, 8) {
		return fmt.Errorf("%w: card_bin must be 6 to 8 digits", ErrInvalidTransaction)
	}
	if t.Booking != nil && t.Booking.ResourceID == "" {
		return fmt.Errorf("%w: booking.resource_id is required", ErrInvalidTransaction)
	}
	return nil
}

// Location resolves the transaction's IANA timezone. ok is false when the
// caller sent none or an unknown zone; loc is then UTC.
func (t *Transaction) Location() (loc *time.Location, ok bool) {
	if t.Timezone == "" {
		return time.UTC, false
	}
	loc, err := time.LoadLocation(t.Timezone)
	if err != nil {
		return time.UTC, false
	}
	return loc, true
}

// TransactionSummary is the slice of a transaction shown next to a review entry.
type TransactionSummary struct {
	ID            string            `json:"id"`
	UserID        string            `json:"user_id"`
	Amount        decimal.Decimal   `json:"amount"`
	Currency      string            `json:"currency"`
	PaymentMethod PaymentMethod     `json:"payment_method"`
	Status        TransactionStatus `json:"status"`
	CreatedAt     time.Time         `json:"created_at"`
}

func (t *Transaction) Summary() TransactionSummary {
	return TransactionSummary{
		ID:            t.ID,
		UserID:        t.UserID,
		Amount:        t.Amount,
		Currency:      t.Currency,
		PaymentMethod: t.PaymentMethod,
		Status:        t.Status,
		CreatedAt:     t.CreatedAt,
	}
}

func isDigits(s string, minLen, maxLen int) bool {
	if len(s) < minLen || len(s) > maxLen {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
