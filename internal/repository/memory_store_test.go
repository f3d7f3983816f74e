package repository

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"risk-engine/internal/models"
)

var t0 = time.Date(2024, 6, 14, 12, 0, 0, 0, time.UTC)

func testTransaction(id, userID string) *models.Transaction {
	return &models.Transaction{
		ID:                id,
		UserID:            userID,
		Amount:            decimal.NewFromInt(120),
		Currency:          "USD",
		PaymentMethod:     models.PaymentMethodCard,
		CardBIN:           "411111",
		IPAddress:         "203.0.113.7",
		DeviceFingerprint: "fp-1",
		Status:            models.StatusPending,
		CreatedAt:         t0,
	}
}

func TestMemoryStore_UpdateStatusIsConditional(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.EnsureTransaction(ctx, testTransaction("tx-1", "u-1")))

	pending := []models.TransactionStatus{models.StatusPending}
	require.NoError(t, s.UpdateStatus(ctx, "tx-1", pending, models.StatusBlockedFraud, t0))

	tx, err := s.GetTransaction(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusBlockedFraud, tx.Status)
	require.NotNil(t, tx.BlockedAt)

	err = s.UpdateStatus(ctx, "tx-1", pending, models.StatusBlockedFraud, t0)
	assert.ErrorIs(t, err, models.ErrStatusConflict)

	err = s.UpdateStatus(ctx, "missing", pending, models.StatusApproved, t0)
	assert.ErrorIs(t, err, models.ErrTransactionNotFound)
}

func TestMemoryStore_EnsureTransactionKeepsExisting(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.EnsureTransaction(ctx, testTransaction("tx-1", "u-1")))
	require.NoError(t, s.UpdateStatus(ctx, "tx-1", []models.TransactionStatus{models.StatusPending}, models.StatusApproved, t0))

	require.NoError(t, s.EnsureTransaction(ctx, testTransaction("tx-1", "u-1")))
	tx, err := s.GetTransaction(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, tx.Status)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.EnsureTransaction(ctx, testTransaction("tx-1", "u-1")))

	tx, _ := s.GetTransaction(ctx, "tx-1")
	tx.Status = models.StatusRejectedFraud

	again, _ := s.GetTransaction(ctx, "tx-1")
	assert.Equal(t, models.StatusPending, again.Status)
}

func TestMemoryStore_History(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	s.AddHistoricalTransaction(models.HistoricalTransaction{ID: "h-1", UserID: "u-1", CardBIN: "411111", Status: models.HistoricalStatusFailed, CreatedAt: t0.Add(-30 * time.Minute)})
	s.AddHistoricalTransaction(models.HistoricalTransaction{ID: "h-2", UserID: "u-1", CardBIN: "411111", Status: "completed", CreatedAt: t0.Add(-2 * time.Hour)})
	s.AddHistoricalTransaction(models.HistoricalTransaction{ID: "h-3", UserID: "u-2", CardBIN: "411111", Status: models.HistoricalStatusFailed, CreatedAt: t0.Add(-10 * time.Minute)})
	require.NoError(t, s.EnsureTransaction(ctx, testTransaction("tx-1", "u-1")))

	recent, err := s.RecentTransactions(ctx, "u-1", t0.Add(-time.Hour), "tx-1")
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "h-1", recent[0].ID)

	prev, err := s.PreviousTransaction(ctx, "u-1", t0, "tx-1")
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, "h-1", prev.ID)

	failed, err := s.FailedAttemptsByBIN(ctx, "411111", t0.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, failed)

	none, err := s.PreviousTransaction(ctx, "u-9", t0, "")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestMemoryStore_DeviceHistoryLearnsUsers(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.EnsureTransaction(ctx, testTransaction("tx-1", "u-1")))
	require.NoError(t, s.EnsureTransaction(ctx, testTransaction("tx-2", "u-2")))
	require.NoError(t, s.EnsureTransaction(ctx, testTransaction("tx-3", "u-1")))

	d, err := s.DeviceHistory(ctx, "fp-1")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.ElementsMatch(t, []string{"u-1", "u-2"}, d.UserIDs)
}

func TestMemoryStore_ConflictingBookings(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	event := time.Date(2024, 7, 1, 19, 0, 0, 0, time.UTC)

	s.AddBooking(models.BookingRecord{TransactionID: "b-1", UserID: "u-2", ResourceID: "venue-1", EventDate: event.Add(-3 * time.Hour)})
	s.AddBooking(models.BookingRecord{TransactionID: "b-2", UserID: "u-1", ResourceID: "venue-1", EventDate: event})
	s.AddBooking(models.BookingRecord{TransactionID: "b-3", UserID: "u-3", ResourceID: "venue-1", EventDate: event.Add(48 * time.Hour)})

	blocked := testTransaction("tx-9", "u-4")
	blocked.Booking = &models.BookingContext{ResourceID: "venue-1", EventDate: event}
	blocked.Status = models.StatusBlockedFraud
	require.NoError(t, s.EnsureTransaction(ctx, blocked))

	other := testTransaction("tx-8", "u-5")
	other.Booking = &models.BookingContext{ResourceID: "venue-1", EventDate: event}
	require.NoError(t, s.EnsureTransaction(ctx, other))

	n, err := s.ConflictingBookings(ctx, "venue-1", event, "u-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMemoryStore_Blacklist(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	expired := t0.Add(-time.Hour)
	s.AddBlacklistEntry(models.BlacklistEntry{Kind: models.BlacklistIP, Value: "198.51.100.1", CreatedAt: t0.Add(-48 * time.Hour)})
	s.AddBlacklistEntry(models.BlacklistEntry{Kind: models.BlacklistCardBIN, Value: "400000", CreatedAt: t0.Add(-48 * time.Hour), ExpiresAt: &expired})

	tests := []struct {
		name  string
		kind  models.BlacklistKind
		value string
		want  bool
	}{
		{"active ip", models.BlacklistIP, "198.51.100.1", true},
		{"expired bin", models.BlacklistCardBIN, "400000", false},
		{"kind mismatch", models.BlacklistCardBIN, "198.51.100.1", false},
		{"unknown", models.BlacklistEmail, "a@example.com", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.IsBlacklisted(ctx, tt.kind, tt.value, t0)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMemoryStore_ProfileIncludesRecordedFlags(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.SetUserProfile(models.UserRiskProfile{UserID: "u-1", RiskFlags: []string{"chargeback"}})
	require.NoError(t, s.AddRiskFlag(ctx, &models.AccountRiskFlag{ID: "f-1", UserID: "u-1", Reason: "critical risk transaction tx-1"}))

	p, err := s.UserProfile(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"chargeback", "critical risk transaction tx-1"}, p.RiskFlags)
	assert.Len(t, s.RiskFlags("u-1"), 1)

	missing, err := s.UserProfile(ctx, "u-2")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryStore_OnePendingReviewPerTransaction(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	first, created, err := s.CreatePendingReview(ctx, &models.ManualReviewEntry{ID: "r-1", TransactionID: "tx-1", Status: models.ReviewStatusPending, Priority: models.PriorityHigh, CreatedAt: t0})
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := s.CreatePendingReview(ctx, &models.ManualReviewEntry{ID: "r-2", TransactionID: "tx-1", Status: models.ReviewStatusPending, Priority: models.PriorityHigh, CreatedAt: t0})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	entry, err := s.GetReview(ctx, "r-1")
	require.NoError(t, err)
	_, err = entry.Resolve(models.DecisionApprove, "op-1", "", t0)
	require.NoError(t, err)
	require.NoError(t, s.ResolveReview(ctx, entry))

	// resolving again is a conflict
	assert.ErrorIs(t, s.ResolveReview(ctx, entry), models.ErrStatusConflict)

	// once resolved, a new pending entry may be created
	_, created, err = s.CreatePendingReview(ctx, &models.ManualReviewEntry{ID: "r-3", TransactionID: "tx-1", Status: models.ReviewStatusPending, Priority: models.PriorityHigh, CreatedAt: t0})
	require.NoError(t, err)
	assert.True(t, created)
}

func TestMemoryStore_ListReviewsCursor(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for i, id := range []string{"r-a", "r-b", "r-c", "r-d"} {
		_, _, err := s.CreatePendingReview(ctx, &models.ManualReviewEntry{
			ID:            id,
			TransactionID: "tx-" + id,
			Status:        models.ReviewStatusPending,
			Priority:      models.PriorityNormal,
			CreatedAt:     t0.Add(time.Duration(i/2) * time.Minute),
		})
		require.NoError(t, err)
	}

	page, err := s.ListReviews(ctx, models.ReviewFilter{Status: models.ReviewStatusPending, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "r-a", page[0].ID)
	assert.Equal(t, "r-b", page[1].ID)

	after := page[1].CreatedAt
	rest, err := s.ListReviews(ctx, models.ReviewFilter{Status: models.ReviewStatusPending, After: &after, AfterID: page[1].ID})
	require.NoError(t, err)
	require.Len(t, rest, 2)
	assert.Equal(t, "r-c", rest[0].ID)
	assert.Equal(t, "r-d", rest[1].ID)

	none, err := s.ListReviews(ctx, models.ReviewFilter{Priority: models.PriorityCritical})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryStore_Analyses(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.SaveAnalysis(ctx, &models.FraudAnalysisResult{ID: "a-1", TransactionID: "tx-1", Score: 20, AnalyzedAt: t0}))
	require.NoError(t, s.SaveAnalysis(ctx, &models.FraudAnalysisResult{ID: "a-2", TransactionID: "tx-1", Score: 70, AnalyzedAt: t0.Add(time.Minute)}))
	require.NoError(t, s.SaveAnalysis(ctx, &models.FraudAnalysisResult{ID: "a-3", TransactionID: "tx-2", Score: 5, AnalyzedAt: t0.Add(-48 * time.Hour)}))

	latest, err := s.LatestAnalysis(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, "a-2", latest.ID)

	missing, err := s.LatestAnalysis(ctx, "tx-9")
	require.NoError(t, err)
	assert.Nil(t, missing)

	window, err := s.ListAnalyses(ctx, t0.Add(-time.Hour), t0.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, window, 2)
	assert.Equal(t, "a-1", window[0].ID)
}

func TestMemoryStore_Settings(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	got, err := s.LoadSettings(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	settings := models.DefaultSettings()
	require.NoError(t, s.SaveSettings(ctx, &settings))
	settings.Weights[models.FactorVelocity] = 0.9

	got, err = s.LoadSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.20, got.Weights[models.FactorVelocity])
}
