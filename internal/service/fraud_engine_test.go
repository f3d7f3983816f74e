package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"risk-engine/internal/analyzer"
	"risk-engine/internal/metrics"
	"risk-engine/internal/models"
	"risk-engine/internal/notify"
	"risk-engine/internal/reputation"
)

func TestAnalyzeTransaction_Levels(t *testing.T) {
	tests := []struct {
		name        string
		score       int
		wantLevel   models.RiskLevel
		wantStatus  models.TransactionStatus
		wantReview  bool
		wantBlock   bool
		wantActions []models.Action
	}{
		{
			name:        "low risk proceeds",
			score:       0,
			wantLevel:   models.RiskLevelLow,
			wantStatus:  models.StatusPending,
			wantActions: []models.Action{models.ActionProceedNormally},
		},
		{
			name:       "medium risk monitored",
			score:      40,
			wantLevel:  models.RiskLevelMedium,
			wantStatus: models.StatusPending,
			wantActions: []models.Action{
				models.ActionEnhancedMonitoring,
				models.ActionRequestVerification,
			},
		},
		{
			name:       "high risk queued for review",
			score:      65,
			wantLevel:  models.RiskLevelHigh,
			wantStatus: models.StatusPending,
			wantReview: true,
			wantActions: []models.Action{
				models.ActionRequireManualReview,
				models.ActionRequestAdditionalVerification,
				models.ActionDelayProcessing,
			},
		},
		{
			name:       "critical risk blocked",
			score:      95,
			wantLevel:  models.RiskLevelCritical,
			wantStatus: models.StatusBlockedFraud,
			wantReview: true,
			wantBlock:  true,
			wantActions: []models.Action{
				models.ActionBlockTransaction,
				models.ActionFlagAccount,
				models.ActionNotifyOperators,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()
			engine := env.engine(uniformAnalyzers(tt.score))
			ctx := context.Background()

			result, err := engine.AnalyzeTransaction(ctx, newTransaction("tx-1"))
			require.NoError(t, err)
			env.executor.Wait()

			assert.Equal(t, tt.score, result.Score)
			assert.Equal(t, tt.wantLevel, result.RiskLevel)
			assert.Equal(t, tt.wantReview, result.RequiresManualReview)
			assert.Equal(t, tt.wantBlock, result.ShouldBlock)
			assert.False(t, result.FailSafe)
			assert.Len(t, result.Factors, len(models.AllFactors))
			for _, a := range tt.wantActions {
				assert.Contains(t, result.Recommendation.Actions, a)
			}

			tx, err := env.store.GetTransaction(ctx, "tx-1")
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, tx.Status)

			pending, err := env.store.ListReviews(ctx, models.ReviewFilter{Status: models.ReviewStatusPending})
			require.NoError(t, err)
			if tt.wantReview {
				require.Len(t, pending, 1)
				assert.Equal(t, result.ID, pending[0].AnalysisID)
				assert.Equal(t, result.Score, pending[0].RiskScore)
			} else {
				assert.Empty(t, pending)
			}

			saved, err := engine.GetAnalysis(ctx, "tx-1")
			require.NoError(t, err)
			assert.Equal(t, result.ID, saved.ID)
		})
	}
}

func TestAnalyzeTransaction_CriticalSideEffects(t *testing.T) {
	env := newTestEnv()
	engine := env.engine(uniformAnalyzers(95))

	result, err := engine.AnalyzeTransaction(context.Background(), newTransaction("tx-1"))
	require.NoError(t, err)
	env.executor.Wait()

	assert.Equal(t, models.PriorityCritical, result.Recommendation.Priority)
	assert.Equal(t, 90, result.Recommendation.Confidence)

	flags := env.store.RiskFlags("user-1")
	require.Len(t, flags, 1)
	assert.Equal(t, result.ID, flags[0].AnalysisID)

	alerts := env.notifier.sent()
	require.Len(t, alerts, 1)
	assert.Equal(t, notify.AlertHighRiskTransaction, alerts[0].Type)
	assert.Equal(t, "tx-1", alerts[0].TransactionID)

	// targeted actions are advisory and recorded
	advisories := env.store.Advisories("tx-1")
	assert.NotEmpty(t, advisories)
}

func TestAnalyzeTransaction_InvalidInputFailsFast(t *testing.T) {
	env := newTestEnv()
	engine := env.engine(uniformAnalyzers(0))

	tx := newTransaction("tx-1")
	tx.Amount = decimal.Zero

	_, err := engine.AnalyzeTransaction(context.Background(), tx)
	assert.ErrorIs(t, err, models.ErrInvalidTransaction)

	stored, err := env.store.GetTransaction(context.Background(), "tx-1")
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestAnalyzeTransaction_DegradedAnalyzers(t *testing.T) {
	tests := []struct {
		name   string
		broken analyzer.Analyzer
	}{
		{"error", &stubAnalyzer{factor: models.FactorPayment, err: errors.New("bin service down")}},
		{"timeout", &stubAnalyzer{factor: models.FactorPayment, score: 80, delay: time.Second}},
		{"panic", &stubAnalyzer{factor: models.FactorPayment, panics: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()
			analyzers := uniformAnalyzers(0)
			analyzers[3] = tt.broken

			result, err := env.engine(analyzers).AnalyzeTransaction(context.Background(), newTransaction("tx-1"))
			require.NoError(t, err)

			assert.False(t, result.FailSafe)
			assert.Equal(t, 0, result.Score)
			assert.Equal(t, models.RiskLevelLow, result.RiskLevel)

			payment, ok := result.Factor(models.FactorPayment)
			require.True(t, ok)
			assert.False(t, payment.DataAvailable)
			assert.Equal(t, DefaultUnavailableScore, payment.Score)
			assert.True(t, payment.Fired(models.SignalDataUnavailable))

			// 6 of 7 factors available, mixed signals
			assert.Equal(t, 51, result.Recommendation.Confidence)
		})
	}
}

func TestAnalyzeTransaction_FailSafeWhenNothingAvailable(t *testing.T) {
	env := newTestEnv()
	analyzers := make([]analyzer.Analyzer, len(models.AllFactors))
	for i, f := range models.AllFactors {
		analyzers[i] = &stubAnalyzer{factor: f, err: errors.New("unavailable")}
	}

	result, err := env.engine(analyzers).AnalyzeTransaction(context.Background(), newTransaction("tx-1"))
	require.NoError(t, err)

	assert.True(t, result.FailSafe)
	assert.Equal(t, 45, result.Score)
	assert.Equal(t, models.RiskLevelMedium, result.RiskLevel)
	assert.True(t, result.RequiresManualReview)
	assert.False(t, result.ShouldBlock)
	assert.Equal(t, []models.Action{models.ActionRequireManualReview, models.ActionEnhancedMonitoring}, result.Recommendation.Actions)
	assert.Equal(t, models.PriorityNormal, result.Recommendation.Priority)

	pending, err := env.store.ListReviews(context.Background(), models.ReviewFilter{Status: models.ReviewStatusPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, models.PriorityNormal, pending[0].Priority)
}

type panickingStrategy struct{}

func (panickingStrategy) Score([]models.RiskFactorResult, models.Weights) (int, error) {
	panic("model crashed")
}

func TestAnalyzeTransaction_FailSafeOnStrategyPanic(t *testing.T) {
	env := newTestEnv()
	engine := env.engine(uniformAnalyzers(95), WithStrategy(panickingStrategy{}))

	result, err := engine.AnalyzeTransaction(context.Background(), newTransaction("tx-1"))
	require.NoError(t, err)
	assert.True(t, result.FailSafe)

	tx, _ := env.store.GetTransaction(context.Background(), "tx-1")
	assert.Equal(t, models.StatusPending, tx.Status)
}

func TestAnalyzeTransaction_PersistenceFailureStillActs(t *testing.T) {
	env := newTestEnv()
	analyses := &failingAnalyses{MemoryStore: env.store}
	engine := NewFraudEngine(uniformAnalyzers(65), env.settings, env.executor, env.store, analyses,
		metrics.NewNop(), zap.NewNop(),
		WithClock(func() time.Time { return testNow }),
		WithBackOff(func() backoff.BackOff { return &backoff.StopBackOff{} }))

	result, err := engine.AnalyzeTransaction(context.Background(), newTransaction("tx-1"))
	require.NoError(t, err)
	assert.Equal(t, models.RiskLevelHigh, result.RiskLevel)
	assert.Equal(t, 1, analyses.calls)

	pending, err := env.store.ListReviews(context.Background(), models.ReviewFilter{Status: models.ReviewStatusPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Empty(t, pending[0].AnalysisID)
}

func TestAnalyzeTransaction_ReanalysisIsIdempotent(t *testing.T) {
	env := newTestEnv()
	engine := env.engine(uniformAnalyzers(95))
	ctx := context.Background()

	_, err := engine.AnalyzeTransaction(ctx, newTransaction("tx-1"))
	require.NoError(t, err)
	_, err = engine.AnalyzeTransaction(ctx, newTransaction("tx-1"))
	require.NoError(t, err)
	env.executor.Wait()

	tx, _ := env.store.GetTransaction(ctx, "tx-1")
	assert.Equal(t, models.StatusBlockedFraud, tx.Status)

	pending, err := env.store.ListReviews(ctx, models.ReviewFilter{Status: models.ReviewStatusPending})
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestAnalyzeTransaction_UsesUpdatedThresholds(t *testing.T) {
	env := newTestEnv()
	engine := env.engine(uniformAnalyzers(40))
	ctx := context.Background()

	next := env.settings.Get()
	next.Thresholds = models.Thresholds{Medium: 10, High: 20, Critical: 40}
	_, err := env.settings.Update(ctx, next)
	require.NoError(t, err)

	result, err := engine.AnalyzeTransaction(ctx, newTransaction("tx-1"))
	require.NoError(t, err)
	env.executor.Wait()
	assert.Equal(t, models.RiskLevelCritical, result.RiskLevel)
	assert.True(t, result.ShouldBlock)
}

func TestAnalyzeTransaction_DefaultAnalyzerSet(t *testing.T) {
	env := newTestEnv()
	for i := 0; i < 12; i++ {
		env.store.AddHistoricalTransaction(models.HistoricalTransaction{
			ID:        "h-" + string(rune('a'+i)),
			UserID:    "user-1",
			Amount:    decimal.NewFromInt(20),
			Status:    "completed",
			CreatedAt: testNow.Add(-time.Duration(i+1) * time.Minute),
		})
	}
	env.store.AddBlacklistEntry(models.BlacklistEntry{Kind: models.BlacklistIP, Value: "203.0.113.10", CreatedAt: testNow.Add(-time.Hour)})

	analyzers := analyzer.NewDefaultSet(analyzer.Sources{
		History:    env.store,
		Blacklist:  env.store,
		Reputation: staticReputation{},
	}, analyzer.DefaultConfig())

	result, err := env.engine(analyzers).AnalyzeTransaction(context.Background(), newTransaction("tx-1"))
	require.NoError(t, err)
	env.executor.Wait()

	require.Len(t, result.Factors, len(models.AllFactors))
	for i, f := range result.Factors {
		assert.Equal(t, models.AllFactors[i], f.Factor)
		assert.True(t, f.DataAvailable, f.Factor)
	}
	velocity, _ := result.Factor(models.FactorVelocity)
	assert.Greater(t, velocity.Score, 0)
	assert.GreaterOrEqual(t, result.Score, 0)
	assert.LessOrEqual(t, result.Score, 100)
}

type staticReputation struct{}

func (staticReputation) LookupIP(ctx context.Context, ip string) (*models.IPIntel, error) {
	return &models.IPIntel{IP: ip, Country: "US", Timezone: "America/New_York"}, nil
}

func (staticReputation) LookupBIN(ctx context.Context, bin string) (*models.BINIntel, error) {
	return &models.BINIntel{BIN: bin, Country: "US"}, nil
}

// blockingAnalyzer ignores its context and returns only once released.
type blockingAnalyzer struct {
	factor   models.FactorName
	release  chan struct{}
	finished atomic.Bool
}

func (b *blockingAnalyzer) Factor() models.FactorName { return b.factor }

func (b *blockingAnalyzer) Analyze(ctx context.Context, in *analyzer.Input) (models.RiskFactorResult, error) {
	<-b.release
	b.finished.Store(true)
	return models.NewFactorResult(b.factor), nil
}

func TestFraudEngine_WaitCoversAnalyzerPastDeadline(t *testing.T) {
	env := newTestEnv()
	slow := &blockingAnalyzer{factor: models.AllFactors[0], release: make(chan struct{})}
	analyzers := uniformAnalyzers(0)
	analyzers[0] = slow
	engine := env.engine(analyzers)

	result, err := engine.AnalyzeTransaction(context.Background(), newTransaction("tx-1"))
	require.NoError(t, err)
	env.executor.Wait()
	assert.False(t, result.Factors[0].DataAvailable)
	assert.False(t, slow.finished.Load())

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, engine.Wait(short), context.DeadlineExceeded)

	close(slow.release)
	require.NoError(t, engine.Wait(context.Background()))
	assert.True(t, slow.finished.Load())
}

func TestAnalyzeTransaction_ExampleScenarios(t *testing.T) {
	newScenario := func(t *testing.T) (*testEnv, *FraudEngine) {
		t.Helper()
		env := newTestEnv()
		env.settings = NewSettingsService(models.DefaultSettings(), env.store, zap.NewNop())
		analyzers := analyzer.NewDefaultSet(analyzer.Sources{
			History:    env.store,
			Blacklist:  env.store,
			Reputation: reputation.NewStaticProvider("US"),
		}, analyzer.DefaultConfig())
		return env, env.engine(analyzers)
	}

	t.Run("burst of large payments on a flagged device and blacklisted bin", func(t *testing.T) {
		env, engine := newScenario(t)
		env.store.SetUserProfile(models.UserRiskProfile{
			UserID:               "user-1",
			AccountCreatedAt:     testNow.Add(-400 * 24 * time.Hour),
			VerificationLevel:    2,
			AvgTransactionAmount: decimal.NewFromInt(10000),
			TotalTransactions:    50,
		})
		for i := 0; i < 6; i++ {
			env.store.AddHistoricalTransaction(models.HistoricalTransaction{
				ID:        "burst-" + string(rune('a'+i)),
				UserID:    "user-1",
				Amount:    decimal.NewFromInt(10000),
				Status:    "completed",
				Country:   "US",
				CreatedAt: testNow.Add(-time.Duration(i+1) * 5 * time.Minute),
			})
		}
		env.store.SetDeviceHistory(models.DeviceHistory{Fingerprint: "fp-123", UserIDs: []string{"user-1"}, Flagged: true})
		env.store.AddBlacklistEntry(models.BlacklistEntry{Kind: models.BlacklistCardBIN, Value: "411111", CreatedAt: testNow.Add(-24 * time.Hour)})

		tx := newTransaction("tx-risky")
		tx.Amount = decimal.NewFromInt(50000)
		tx.CardBIN = "411111"

		result, err := engine.AnalyzeTransaction(context.Background(), tx)
		require.NoError(t, err)
		env.executor.Wait()

		velocity, _ := result.Factor(models.FactorVelocity)
		payment, _ := result.Factor(models.FactorPayment)
		device, _ := result.Factor(models.FactorDevice)
		assert.GreaterOrEqual(t, velocity.Score, 55)
		assert.LessOrEqual(t, velocity.Score, 75)
		assert.GreaterOrEqual(t, payment.Score, 75)
		assert.GreaterOrEqual(t, device.Score, 40)
		assert.True(t, velocity.Fired("high_transaction_count"))
		assert.True(t, velocity.Fired("high_total_amount"))
		assert.True(t, payment.Fired("suspicious_bin"))
		assert.True(t, payment.Fired("bin_reputation_flagged"))
		assert.True(t, device.Fired("flagged_device"))

		// the remaining factors are clean, so the weighted composite stays
		// well below the hot factors: (55*0.20 + 75*0.25 + 40*0.05) / 1.0
		assert.Equal(t, 32, result.Score)
		assert.Equal(t, models.RiskLevelMedium, result.RiskLevel)
		assert.False(t, result.FailSafe)
		assert.Equal(t, []models.Action{
			models.ActionEnhancedMonitoring,
			models.ActionRequestVerification,
			models.ActionApplyRateLimiting,
			models.ActionVerifyPaymentMethod,
		}, result.Recommendation.Actions)
	})

	t.Run("established account booking a concert", func(t *testing.T) {
		env, engine := newScenario(t)
		env.store.SetUserProfile(models.UserRiskProfile{
			UserID:               "user-1",
			AccountCreatedAt:     testNow.Add(-2 * 365 * 24 * time.Hour),
			VerificationLevel:    3,
			AvgTransactionAmount: decimal.NewFromInt(80),
			TotalTransactions:    120,
		})
		for i := 0; i < 10; i++ {
			env.store.AddHistoricalTransaction(models.HistoricalTransaction{
				ID:        "past-" + string(rune('a'+i)),
				UserID:    "user-1",
				Amount:    decimal.NewFromInt(80),
				Status:    "completed",
				Country:   "US",
				CreatedAt: testNow.Add(-time.Duration(i+1) * 72 * time.Hour),
			})
		}

		tx := newTransaction("tx-clean")
		tx.Amount = decimal.NewFromInt(50)
		tx.CardBIN = "453201"
		tx.DeviceFingerprint = "fp-new-laptop"
		tx.Booking = &models.BookingContext{ResourceID: "venue-1", EventType: "concert", EventDate: testNow.Add(30 * 24 * time.Hour)}

		result, err := engine.AnalyzeTransaction(context.Background(), tx)
		require.NoError(t, err)
		env.executor.Wait()

		for _, f := range result.Factors {
			assert.True(t, f.DataAvailable, f.Factor)
			assert.Equal(t, 0, f.Score, f.Factor)
		}
		assert.Equal(t, 0, result.Score)
		assert.Equal(t, models.RiskLevelLow, result.RiskLevel)
		assert.Equal(t, []models.Action{models.ActionProceedNormally}, result.Recommendation.Actions)
		assert.Empty(t, env.notifier.sent())
	})
}
