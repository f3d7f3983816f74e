// internal/analyzer/analyzer.go
// Package analyzer holds the independent risk factor evaluators. Each
// analyzer is stateless; its data sources are injected at construction.
package analyzer

import (
	"context"
	"time"

	"risk-engine/internal/models"
)

// Input is what every analyzer sees for one evaluation.
type Input struct {
	Transaction *models.Transaction
	Now         time.Time
}

// Analyzer evaluates one risk factor. Analyze must return promptly once ctx
// is done: the engine stops waiting at the deadline but the call keeps its
// goroutine until it returns.
type Analyzer interface {
	Factor() models.FactorName
	Analyze(ctx context.Context, in *Input) (models.RiskFactorResult, error)
}

// HistoryReader exposes the platform's historical data. "Not found" is
// reported as a nil result or zero count, never as an error.
type HistoryReader interface {
	RecentTransactions(ctx context.Context, userID string, since time.Time, excludeID string) ([]models.HistoricalTransaction, error)
	PreviousTransaction(ctx context.Context, userID string, before time.Time, excludeID string) (*models.HistoricalTransaction, error)
	FailedAttemptsByBIN(ctx context.Context, bin string, since time.Time) (int, error)
	UserProfile(ctx context.Context, userID string) (*models.UserRiskProfile, error)
	DeviceHistory(ctx context.Context, fingerprint string) (*models.DeviceHistory, error)
	ConflictingBookings(ctx context.Context, resourceID string, eventDate time.Time, userID string) (int, error)
}

type Blacklist interface {
	IsBlacklisted(ctx context.Context, kind models.BlacklistKind, value string, at time.Time) (bool, error)
}

// Reputation resolves IP geolocation and BIN reputation.
type Reputation interface {
	LookupIP(ctx context.Context, ip string) (*models.IPIntel, error)
	LookupBIN(ctx context.Context, bin string) (*models.BINIntel, error)
}

// Sources bundles the data sources shared by the analyzers.
type Sources struct {
	History    HistoryReader
	Blacklist  Blacklist
	Reputation Reputation
}

// NewDefaultSet builds the seven analyzers in canonical factor order.
func NewDefaultSet(src Sources, cfg Config) []Analyzer {
	return []Analyzer{
		NewVelocityAnalyzer(src.History, cfg.Velocity),
		NewGeographicAnalyzer(src.History, src.Reputation, cfg.Geographic),
		NewBehavioralAnalyzer(src.History, src.Reputation, cfg.Behavioral),
		NewPaymentAnalyzer(src.History, src.Blacklist, src.Reputation, cfg.Payment),
		NewUserHistoryAnalyzer(src.History, src.Blacklist, cfg.UserHistory),
		NewDeviceAnalyzer(src.History, src.Blacklist, src.Reputation, cfg.Device),
		NewBookingAnalyzer(src.History, cfg.Booking),
	}
}

// Config carries the tunable rule constants of every analyzer.
type Config struct {
	Velocity    VelocityConfig
	Geographic  GeographicConfig
	Behavioral  BehavioralConfig
	Payment     PaymentConfig
	UserHistory UserHistoryConfig
	Device      DeviceConfig
	Booking     BookingConfig
}

func DefaultConfig() Config {
	return Config{
		Velocity:    DefaultVelocityConfig(),
		Geographic:  DefaultGeographicConfig(),
		Behavioral:  DefaultBehavioralConfig(),
		Payment:     DefaultPaymentConfig(),
		UserHistory: DefaultUserHistoryConfig(),
		Device:      DefaultDeviceConfig(),
		Booking:     DefaultBookingConfig(),
	}
}
