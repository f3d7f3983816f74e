package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"risk-engine/internal/analyzer"
	"risk-engine/internal/metrics"
	"risk-engine/internal/models"
	"risk-engine/internal/notify"
	"risk-engine/internal/repository"
	"risk-engine/pkg/syncutil"
)

var testNow = time.Date(2024, 6, 14, 15, 0, 0, 0, time.UTC)

type stubAnalyzer struct {
	factor models.FactorName
	score  int
	err    error
	delay  time.Duration
	panics bool
}

func (s *stubAnalyzer) Factor() models.FactorName { return s.factor }

func (s *stubAnalyzer) Analyze(ctx context.Context, in *analyzer.Input) (models.RiskFactorResult, error) {
	if s.panics {
		panic("boom")
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return models.RiskFactorResult{}, ctx.Err()
		}
	}
	if s.err != nil {
		return models.RiskFactorResult{}, s.err
	}
	res := models.NewFactorResult(s.factor)
	if s.score > 0 {
		res.Fire("stub", s.score)
	}
	return res, nil
}

// uniformAnalyzers returns one stub per factor, all scoring score.
func uniformAnalyzers(score int) []analyzer.Analyzer {
	out := make([]analyzer.Analyzer, len(models.AllFactors))
	for i, f := range models.AllFactors {
		out[i] = &stubAnalyzer{factor: f, score: score}
	}
	return out
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []notify.Alert
	err    error
}

func (n *recordingNotifier) Notify(ctx context.Context, alert notify.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alert)
	return n.err
}

func (n *recordingNotifier) sent() []notify.Alert {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Alert(nil), n.alerts...)
}

// failingAnalyses fails every write.
type failingAnalyses struct {
	*repository.MemoryStore
	calls int
}

func (f *failingAnalyses) SaveAnalysis(ctx context.Context, result *models.FraudAnalysisResult) error {
	f.calls++
	return errors.New("analysis store unavailable")
}

type testEnv struct {
	store    *repository.MemoryStore
	notifier *recordingNotifier
	settings *SettingsService
	executor *ActionExecutor
	reviews  *ReviewService
}

func newTestEnv() *testEnv {
	store := repository.NewMemoryStore()
	notifier := &recordingNotifier{}
	locks := &syncutil.ShardedMutex{}
	m := metrics.NewNop()
	logger := zap.NewNop()

	settings := models.DefaultSettings()
	settings.AnalyzerTimeoutMS = 50
	settings.AnalysisTimeoutMS = 500

	executor := NewActionExecutor(store, store, store, notifier, locks, m, logger)
	executor.now = func() time.Time { return testNow }

	reviews := NewReviewService(store, store, notifier, locks, m, logger)
	reviews.now = func() time.Time { return testNow }

	return &testEnv{
		store:    store,
		notifier: notifier,
		settings: NewSettingsService(settings, store, logger),
		executor: executor,
		reviews:  reviews,
	}
}

func (env *testEnv) engine(analyzers []analyzer.Analyzer, opts ...EngineOption) *FraudEngine {
	opts = append([]EngineOption{
		WithClock(func() time.Time { return testNow }),
		WithBackOff(func() backoff.BackOff { return &backoff.StopBackOff{} }),
	}, opts...)
	return NewFraudEngine(analyzers, env.settings, env.executor, env.store, env.store, metrics.NewNop(), zap.NewNop(), opts...)
}

func newTransaction(id string) *models.Transaction {
	return &models.Transaction{
		ID:                id,
		UserID:            "user-1",
		Amount:            decimal.NewFromInt(250),
		Currency:          "USD",
		PaymentMethod:     models.PaymentMethodCard,
		CardBIN:           "411111",
		IPAddress:         "203.0.113.10",
		UserAgent:         "Mozilla/5.0",
		DeviceFingerprint: "fp-123",
		SessionDuration:   300,
		Timezone:          "America/New_York",
		Status:            models.StatusPending,
		CreatedAt:         testNow,
	}
}
