// internal/analyzer/booking.go
package analyzer

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"risk-engine/internal/models"
)

// PriceBand is the expected amount range for an event type.
type PriceBand struct {
	Min decimal.Decimal
	Max decimal.Decimal
}

type BookingConfig struct {
	MinLeadTime      time.Duration
	MaxLeadTime      time.Duration
	PriceBands       map[string]PriceBand
	LastMinutePoints int
	FarFuturePoints  int
	PricePoints      int
	ConflictPoints   int
}

func band(lo, hi int64) PriceBand {
	return PriceBand{Min: decimal.NewFromInt(lo), Max: decimal.NewFromInt(hi)}
}

func DefaultBookingConfig() BookingConfig {
	return BookingConfig{
		MinLeadTime: 24 * time.Hour,
		MaxLeadTime: 365 * 24 * time.Hour,
		PriceBands: map[string]PriceBand{
			"concert":    band(20, 1500),
			"sports":     band(15, 2000),
			"theater":    band(20, 800),
			"conference": band(50, 5000),
			"hotel":      band(40, 3000),
			"flight":     band(50, 10000),
		},
		LastMinutePoints: 20,
		FarFuturePoints:  15,
		PricePoints:      10,
		ConflictPoints:   30,
	}
}

// BookingAnalyzer scores the reservation the transaction pays for.
type BookingAnalyzer struct {
	history HistoryReader
	cfg     BookingConfig
}

func NewBookingAnalyzer(history HistoryReader, cfg BookingConfig) *BookingAnalyzer {
	return &BookingAnalyzer{history: history, cfg: cfg}
}

func (a *BookingAnalyzer) Factor() models.FactorName { return models.FactorBookingPattern }

func (a *BookingAnalyzer) Analyze(ctx context.Context, in *Input) (models.RiskFactorResult, error) {
	tx := in.Transaction
	result := models.NewFactorResult(models.FactorBookingPattern)

	b := tx.Booking
	if b == nil {
		result.Attribute("booking", "absent")
		return result, nil
	}
	result.Attribute("resource_id", b.ResourceID)
	result.Attribute("event_type", b.EventType)

	if !b.EventDate.IsZero() {
		lead := b.EventDate.Sub(tx.CreatedAt)
		result.Measure("lead_time_days", math.Round(lead.Hours()/24*100)/100)
		switch {
		case lead < a.cfg.MinLeadTime:
			result.Fire("last_minute_booking", a.cfg.LastMinutePoints)
		case lead > a.cfg.MaxLeadTime:
			result.Fire("far_future_booking", a.cfg.FarFuturePoints)
		}
	}

	if pb, ok := a.cfg.PriceBands[strings.ToLower(b.EventType)]; ok {
		if tx.Amount.LessThan(pb.Min) || tx.Amount.GreaterThan(pb.Max) {
			result.Fire("price_outside_event_band", a.cfg.PricePoints)
		}
	}

	conflicts, err := a.history.ConflictingBookings(ctx, b.ResourceID, b.EventDate, tx.UserID)
	if err != nil {
		return result, fmt.Errorf("failed to check conflicting bookings: %w", err)
	}
	result.Measure("conflicting_bookings", float64(conflicts))
	if conflicts > 0 {
		result.Fire("conflicting_booking", a.cfg.ConflictPoints)
	}

	result.Clamp()
	return result, nil
}
