package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"risk-engine/internal/models"
	"risk-engine/internal/notify"
)

func seedReview(t *testing.T, env *testEnv, txID string, priority models.Priority, createdAt time.Time, status models.TransactionStatus) *models.ManualReviewEntry {
	t.Helper()
	ctx := context.Background()
	tx := newTransaction(txID)
	tx.Status = status
	require.NoError(t, env.store.EnsureTransaction(ctx, tx))

	entry, created, err := env.store.CreatePendingReview(ctx, &models.ManualReviewEntry{
		ID:            "review-" + txID,
		TransactionID: txID,
		AnalysisID:    "analysis-" + txID,
		RiskScore:     70,
		Priority:      priority,
		Status:        models.ReviewStatusPending,
		CreatedAt:     createdAt,
	})
	require.NoError(t, err)
	require.True(t, created)
	return entry
}

func TestReviewService_Decide(t *testing.T) {
	tests := []struct {
		name       string
		txStatus   models.TransactionStatus
		decision   models.ReviewDecision
		wantReview models.ReviewStatus
		wantTx     models.TransactionStatus
	}{
		{"approve pending", models.StatusPending, models.DecisionApprove, models.ReviewStatusApproved, models.StatusApproved},
		{"reject pending", models.StatusPending, models.DecisionReject, models.ReviewStatusRejected, models.StatusRejectedFraud},
		{"approve blocked", models.StatusBlockedFraud, models.DecisionApprove, models.ReviewStatusApproved, models.StatusApproved},
		{"reject blocked", models.StatusBlockedFraud, models.DecisionReject, models.ReviewStatusRejected, models.StatusRejectedFraud},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()
			entry := seedReview(t, env, "tx-1", models.PriorityHigh, testNow, tt.txStatus)

			res, err := env.reviews.Decide(context.Background(), entry.ID, models.ReviewDecisionRequest{
				Decision:   tt.decision,
				ReviewerID: "op-7",
				Notes:      "checked with cardholder",
			})
			require.NoError(t, err)
			assert.Equal(t, tt.wantReview, res.Review.Status)
			assert.Equal(t, "op-7", res.Review.ReviewerID)
			require.NotNil(t, res.Review.DecidedAt)
			assert.Equal(t, tt.wantTx, res.TransactionStatus)

			tx, _ := env.store.GetTransaction(context.Background(), "tx-1")
			assert.Equal(t, tt.wantTx, tx.Status)
		})
	}
}

func TestReviewService_DecideErrors(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	entry := seedReview(t, env, "tx-1", models.PriorityHigh, testNow, models.StatusPending)

	_, err := env.reviews.Decide(ctx, entry.ID, models.ReviewDecisionRequest{Decision: "maybe", ReviewerID: "op-1"})
	assert.ErrorIs(t, err, models.ErrInvalidDecision)

	_, err = env.reviews.Decide(ctx, entry.ID, models.ReviewDecisionRequest{Decision: models.DecisionApprove})
	assert.ErrorIs(t, err, models.ErrReviewerRequired)

	_, err = env.reviews.Decide(ctx, "missing", models.ReviewDecisionRequest{Decision: models.DecisionApprove, ReviewerID: "op-1"})
	assert.ErrorIs(t, err, models.ErrReviewNotFound)

	// failed attempts changed nothing
	stored, _ := env.store.GetReview(ctx, entry.ID)
	assert.Equal(t, models.ReviewStatusPending, stored.Status)

	_, err = env.reviews.Decide(ctx, entry.ID, models.ReviewDecisionRequest{Decision: models.DecisionReject, ReviewerID: "op-1"})
	require.NoError(t, err)

	_, err = env.reviews.Decide(ctx, entry.ID, models.ReviewDecisionRequest{Decision: models.DecisionApprove, ReviewerID: "op-2"})
	assert.ErrorIs(t, err, models.ErrReviewAlreadyResolved)

	tx, _ := env.store.GetTransaction(ctx, "tx-1")
	assert.Equal(t, models.StatusRejectedFraud, tx.Status)
}

func TestReviewService_ConcurrentDecisionsResolveOnce(t *testing.T) {
	env := newTestEnv()
	entry := seedReview(t, env, "tx-1", models.PriorityHigh, testNow, models.StatusPending)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			decision := models.DecisionApprove
			if i%2 == 1 {
				decision = models.DecisionReject
			}
			_, err := env.reviews.Decide(context.Background(), entry.ID, models.ReviewDecisionRequest{
				Decision:   decision,
				ReviewerID: fmt.Sprintf("op-%d", i),
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, models.ErrReviewAlreadyResolved)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
}

func TestReviewService_ListQueue(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		seedReview(t, env, fmt.Sprintf("tx-%d", i), models.PriorityHigh, testNow.Add(time.Duration(i)*time.Minute), models.StatusPending)
	}
	seedReview(t, env, "tx-low", models.PriorityLow, testNow.Add(time.Hour), models.StatusPending)

	first, err := env.reviews.ListQueue(ctx, models.ReviewStatusPending, models.PriorityHigh, 3, "")
	require.NoError(t, err)
	require.Len(t, first.Items, 3)
	assert.True(t, first.HasMore)
	assert.NotEmpty(t, first.NextCursor)
	assert.Equal(t, "tx-0", first.Items[0].TransactionID)
	require.NotNil(t, first.Items[0].Transaction)
	assert.Equal(t, "user-1", first.Items[0].Transaction.UserID)

	second, err := env.reviews.ListQueue(ctx, models.ReviewStatusPending, models.PriorityHigh, 3, first.NextCursor)
	require.NoError(t, err)
	require.Len(t, second.Items, 2)
	assert.False(t, second.HasMore)
	assert.Empty(t, second.NextCursor)
	assert.Equal(t, "tx-3", second.Items[0].TransactionID)

	_, err = env.reviews.ListQueue(ctx, models.ReviewStatusPending, "", 10, "not-a-cursor!")
	assert.ErrorIs(t, err, models.ErrInvalidCursor)
}

func TestReviewService_EscalateStale(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	stale := seedReview(t, env, "tx-stale", models.PriorityNormal, testNow.Add(-25*time.Hour), models.StatusPending)
	fresh := seedReview(t, env, "tx-fresh", models.PriorityNormal, testNow.Add(-2*time.Hour), models.StatusPending)
	critical := seedReview(t, env, "tx-critical", models.PriorityCritical, testNow.Add(-2*time.Hour), models.StatusPending)

	n, err := env.reviews.EscalateStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, _ := env.store.GetReview(ctx, stale.ID)
	assert.Equal(t, models.PriorityHigh, got.Priority)
	require.NotNil(t, got.EscalatedAt)
	assert.Equal(t, models.ReviewStatusPending, got.Status)

	got, _ = env.store.GetReview(ctx, fresh.ID)
	assert.Equal(t, models.PriorityNormal, got.Priority)

	got, _ = env.store.GetReview(ctx, critical.ID)
	assert.Equal(t, models.PriorityCritical, got.Priority)

	alerts := env.notifier.sent()
	require.Len(t, alerts, 2)
	for _, a := range alerts {
		assert.Equal(t, notify.AlertReviewEscalated, a.Type)
	}

	// the SLA restarts from the escalation time
	n, err = env.reviews.EscalateStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestReviewService_RunEscalationStops(t *testing.T) {
	env := newTestEnv()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		env.reviews.RunEscalation(ctx, time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("escalation loop did not stop")
	}
}
