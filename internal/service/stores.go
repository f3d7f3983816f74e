// internal/service/stores.go
package service

import (
	"context"
	"time"

	"risk-engine/internal/models"
)

// TransactionStore reads and conditionally mutates transactions owned by
// the platform. UpdateStatus only succeeds when the current status is one
// of from; otherwise it returns models.ErrStatusConflict.
type TransactionStore interface {
	EnsureTransaction(ctx context.Context, tx *models.Transaction) error
	GetTransaction(ctx context.Context, id string) (*models.Transaction, error)
	UpdateStatus(ctx context.Context, id string, from []models.TransactionStatus, to models.TransactionStatus, at time.Time) error
	RecordAdvisories(ctx context.Context, advisories []models.Advisory) error
	TransactionSummaries(ctx context.Context, ids []string) (map[string]models.TransactionSummary, error)
}

type AnalysisStore interface {
	SaveAnalysis(ctx context.Context, result *models.FraudAnalysisResult) error
	LatestAnalysis(ctx context.Context, transactionID string) (*models.FraudAnalysisResult, error)
	ListAnalyses(ctx context.Context, from, to time.Time) ([]*models.FraudAnalysisResult, error)
}

// ReviewStore persists manual review entries. CreatePendingReview returns
// the existing pending entry and created=false when one already exists.
// ResolveReview and EscalateReview only touch entries that are still pending.
type ReviewStore interface {
	CreatePendingReview(ctx context.Context, entry *models.ManualReviewEntry) (*models.ManualReviewEntry, bool, error)
	GetReview(ctx context.Context, id string) (*models.ManualReviewEntry, error)
	ResolveReview(ctx context.Context, entry *models.ManualReviewEntry) error
	EscalateReview(ctx context.Context, entry *models.ManualReviewEntry) error
	ListReviews(ctx context.Context, filter models.ReviewFilter) ([]*models.ManualReviewEntry, error)
}

type AccountFlagger interface {
	AddRiskFlag(ctx context.Context, flag *models.AccountRiskFlag) error
}

type SettingsStore interface {
	LoadSettings(ctx context.Context) (*models.Settings, error)
	SaveSettings(ctx context.Context, settings *models.Settings) error
}
