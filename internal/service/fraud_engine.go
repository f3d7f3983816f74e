// internal/service/fraud_engine.go
// Fraud checks
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"risk-engine/internal/analyzer"
	"risk-engine/internal/metrics"
	"risk-engine/internal/models"
	"risk-engine/pkg/tracing"
)

// DefaultUnavailableScore is the sub-score recorded for a factor whose
// analyzer failed, panicked, or timed out.
const DefaultUnavailableScore = 10

type FraudEngine struct {
	analyzers    []analyzer.Analyzer
	strategy     Strategy
	settings     *SettingsService
	executor     *ActionExecutor
	transactions TransactionStore
	analyses     AnalysisStore
	metrics      *metrics.Metrics
	logger       *zap.Logger
	now          func() time.Time
	newBackOff   func() backoff.BackOff
	// inflight counts analyzer calls, including those past their deadline
	inflight sync.WaitGroup
}

type EngineOption func(*FraudEngine)

// WithStrategy replaces the weighted scorer.
func WithStrategy(s Strategy) EngineOption {
	return func(e *FraudEngine) { e.strategy = s }
}

func WithClock(now func() time.Time) EngineOption {
	return func(e *FraudEngine) { e.now = now }
}

// WithBackOff sets the retry policy used for persisting analyses.
func WithBackOff(f func() backoff.BackOff) EngineOption {
	return func(e *FraudEngine) { e.newBackOff = f }
}

func NewFraudEngine(
	analyzers []analyzer.Analyzer,
	settings *SettingsService,
	executor *ActionExecutor,
	transactions TransactionStore,
	analyses AnalysisStore,
	m *metrics.Metrics,
	logger *zap.Logger,
	opts ...EngineOption,
) *FraudEngine {
	e := &FraudEngine{
		analyzers:    analyzers,
		strategy:     WeightedScorer{},
		settings:     settings,
		executor:     executor,
		transactions: transactions,
		analyses:     analyses,
		metrics:      m,
		logger:       logger,
		now:          time.Now,
		newBackOff:   defaultBackOff,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 2 * time.Second
	return b
}

// AnalyzeTransaction performs fraud analysis on a transaction and triggers
// the resulting security actions. Malformed input fails before any analyzer
// runs; every other failure degrades to a result.
func (e *FraudEngine) AnalyzeTransaction(ctx context.Context, tx *models.Transaction) (*models.FraudAnalysisResult, error) {
	if err := tx.Validate(); err != nil {
		return nil, err
	}

	ctx, span := tracing.StartSpan(ctx, "fraud.analyze", tracing.TransactionID(tx.ID))
	defer span.End()

	startTime := e.now()
	settings := e.settings.Get()

	if err := e.transactions.EnsureTransaction(ctx, tx); err != nil {
		e.metrics.PersistenceFailures.WithLabelValues("ensure_transaction").Inc()
		e.logger.Error("failed to register transaction",
			zap.String("transaction_id", tx.ID),
			zap.Error(err))
	}

	analysisCtx, cancel := context.WithTimeout(ctx, settings.AnalysisTimeout())
	factors := e.runAnalyzers(analysisCtx, &analyzer.Input{Transaction: tx, Now: startTime}, settings.AnalyzerTimeout())
	cancel()

	result, err := e.evaluate(factors, settings)
	if err != nil {
		e.logger.Error("analysis pipeline failed, returning fail-safe result",
			zap.String("transaction_id", tx.ID),
			zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "fail-safe")
		e.metrics.FailSafeTotal.Inc()
		result = failSafeResult(factors, settings.Thresholds)
	}

	result.ID = uuid.New().String()
	result.TransactionID = tx.ID
	result.UserID = tx.UserID
	result.AnalyzedAt = e.now().UTC()
	result.DurationMS = e.now().Sub(startTime).Milliseconds()

	span.SetAttributes(tracing.Score(result.Score))

	// The analysis record is written before any review entry that references it.
	if err := e.saveAnalysis(ctx, result); err != nil {
		e.metrics.PersistenceFailures.WithLabelValues("save_analysis").Inc()
		e.logger.Error("failed to save fraud analysis",
			zap.String("transaction_id", tx.ID),
			zap.String("analysis_id", result.ID),
			zap.Error(err))
		e.executor.Execute(ctx, result, "")
	} else {
		e.executor.Execute(ctx, result, result.ID)
	}

	e.metrics.AnalysesTotal.WithLabelValues(string(result.RiskLevel)).Inc()
	e.metrics.AnalysisDuration.Observe(e.now().Sub(startTime).Seconds())

	e.logger.Info("transaction analyzed",
		zap.String("transaction_id", tx.ID),
		zap.Int("score", result.Score),
		zap.String("risk_level", string(result.RiskLevel)),
		zap.Bool("fail_safe", result.FailSafe),
		zap.Int64("duration_ms", result.DurationMS))

	return result, nil
}

// GetAnalysis returns the latest analysis for a transaction.
func (e *FraudEngine) GetAnalysis(ctx context.Context, transactionID string) (*models.FraudAnalysisResult, error) {
	result, err := e.analyses.LatestAnalysis(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load analysis: %w", err)
	}
	if result == nil {
		return nil, models.ErrAnalysisNotFound
	}
	return result, nil
}

// Wait blocks until every analyzer call has returned, including calls the
// engine already gave up on after their timeout, or until ctx is done.
func (e *FraudEngine) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runAnalyzers fans out every analyzer and places each result at its
// canonical index, so fan-in order never depends on completion order.
func (e *FraudEngine) runAnalyzers(ctx context.Context, in *analyzer.Input, timeout time.Duration) []models.RiskFactorResult {
	results := make([]models.RiskFactorResult, len(e.analyzers))

	g, gctx := errgroup.WithContext(ctx)
	for i, a := range e.analyzers {
		i, a := i, a
		g.Go(func() error {
			results[i] = e.runAnalyzer(gctx, a, in, timeout)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

type analyzerOutcome struct {
	result models.RiskFactorResult
	err    error
}

func (e *FraudEngine) runAnalyzer(ctx context.Context, a analyzer.Analyzer, in *analyzer.Input, timeout time.Duration) models.RiskFactorResult {
	factor := a.Factor()
	ctx, span := tracing.StartSpan(ctx, "fraud.analyzer", tracing.Factor(string(factor)))
	defer span.End()

	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan analyzerOutcome, 1)
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				done <- analyzerOutcome{err: fmt.Errorf("analyzer panicked: %v", r)}
			}
		}()
		res, err := a.Analyze(actx, in)
		done <- analyzerOutcome{result: res, err: err}
	}()

	var out analyzerOutcome
	select {
	case out = <-done:
	case <-actx.Done():
		out = analyzerOutcome{err: actx.Err()}
	}

	if out.err != nil {
		reason := "error"
		if errors.Is(out.err, context.DeadlineExceeded) {
			reason = "timeout"
		} else if errors.Is(out.err, context.Canceled) {
			reason = "canceled"
		}
		e.metrics.AnalyzerDegradations.WithLabelValues(string(factor), reason).Inc()
		e.logger.Warn("risk analyzer degraded",
			zap.String("factor", string(factor)),
			zap.String("transaction_id", in.Transaction.ID),
			zap.String("reason", reason),
			zap.Error(out.err))
		span.RecordError(out.err)
		return unavailableResult(factor)
	}

	res := out.result
	res.Factor = factor
	res.DataAvailable = true
	res.Clamp()
	return res
}

func unavailableResult(factor models.FactorName) models.RiskFactorResult {
	res := models.NewFactorResult(factor)
	res.DataAvailable = false
	res.Fire(models.SignalDataUnavailable, DefaultUnavailableScore)
	return res
}

// evaluate scores, classifies, and recommends. A panic anywhere in the
// aggregation is reported as an error so the caller can fall back.
func (e *FraudEngine) evaluate(factors []models.RiskFactorResult, settings models.Settings) (result *models.FraudAnalysisResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("aggregation panicked: %v", r)
		}
	}()

	score, err := e.strategy.Score(factors, settings.Weights)
	if err != nil {
		return nil, err
	}
	score = models.ClampScore(score)

	level := Classify(score, settings.Thresholds)
	rec := Recommend(level, factors)

	return &models.FraudAnalysisResult{
		Score:                score,
		RiskLevel:            level,
		Factors:              factors,
		Recommendation:       rec,
		RequiresManualReview: score >= settings.Thresholds.High,
		ShouldBlock:          score >= settings.Thresholds.Critical,
	}, nil
}

// failSafeResult is the conservative outcome when aggregation fails: medium
// risk with mandatory human review.
func failSafeResult(factors []models.RiskFactorResult, t models.Thresholds) *models.FraudAnalysisResult {
	return &models.FraudAnalysisResult{
		Score:     (t.Medium + t.High) / 2,
		RiskLevel: models.RiskLevelMedium,
		Factors:   factors,
		Recommendation: models.Recommendation{
			Actions:    []models.Action{models.ActionRequireManualReview, models.ActionEnhancedMonitoring},
			Confidence: 0,
			Priority:   models.PriorityNormal,
		},
		RequiresManualReview: true,
		ShouldBlock:          false,
		FailSafe:             true,
	}
}

func (e *FraudEngine) saveAnalysis(ctx context.Context, result *models.FraudAnalysisResult) error {
	op := func() error {
		err := e.analyses.SaveAnalysis(ctx, result)
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.Retry(op, backoff.WithContext(e.newBackOff(), ctx))
}
