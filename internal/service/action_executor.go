// internal/service/action_executor.go
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"risk-engine/internal/metrics"
	"risk-engine/internal/models"
	"risk-engine/internal/notify"
	"risk-engine/pkg/syncutil"
)

const (
	OutcomeApplied = "applied"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
	OutcomeQueued  = "queued"
)

type ActionOutcome struct {
	Action  models.Action `json:"action"`
	Outcome string        `json:"outcome"`
	Detail  string        `json:"detail,omitempty"`
}

// ExecutionReport lists what happened to each recommended action.
type ExecutionReport struct {
	Outcomes []ActionOutcome `json:"outcomes"`
	ReviewID string          `json:"review_id,omitempty"`
}

func (r *ExecutionReport) add(action models.Action, outcome, detail string) {
	r.Outcomes = append(r.Outcomes, ActionOutcome{Action: action, Outcome: outcome, Detail: detail})
}

// Outcome returns the recorded outcome for an action.
func (r *ExecutionReport) Outcome(action models.Action) (ActionOutcome, bool) {
	for _, o := range r.Outcomes {
		if o.Action == action {
			return o, true
		}
	}
	return ActionOutcome{}, false
}

// ActionExecutor applies the side effects of a recommendation. Every action
// is independent and best-effort: one failing never prevents the others, and
// nothing already applied is rolled back.
type ActionExecutor struct {
	transactions  TransactionStore
	accounts      AccountFlagger
	reviews       ReviewStore
	notifier      notify.Notifier
	locks         *syncutil.ShardedMutex
	metrics       *metrics.Metrics
	logger        *zap.Logger
	now           func() time.Time
	notifyTimeout time.Duration
	inflight      sync.WaitGroup
}

func NewActionExecutor(
	transactions TransactionStore,
	accounts AccountFlagger,
	reviews ReviewStore,
	notifier notify.Notifier,
	locks *syncutil.ShardedMutex,
	m *metrics.Metrics,
	logger *zap.Logger,
) *ActionExecutor {
	return &ActionExecutor{
		transactions:  transactions,
		accounts:      accounts,
		reviews:       reviews,
		notifier:      notifier,
		locks:         locks,
		metrics:       m,
		logger:        logger,
		now:           time.Now,
		notifyTimeout: 5 * time.Second,
	}
}

// Execute applies result's recommendation. analysisID is empty when the
// analysis record could not be persisted.
func (x *ActionExecutor) Execute(ctx context.Context, result *models.FraudAnalysisResult, analysisID string) *ExecutionReport {
	report := &ExecutionReport{}
	rec := result.Recommendation
	var advisories []models.Advisory

	for _, action := range rec.Actions {
		switch action {
		case models.ActionBlockTransaction:
			x.blockTransaction(ctx, result, report)
		case models.ActionFlagAccount:
			x.flagAccount(ctx, result, analysisID, report)
		case models.ActionNotifyOperators:
			x.notifyOperators(result, report)
		case models.ActionRequireManualReview:
			// handled below so the entry is created exactly once
		default:
			advisories = append(advisories, models.Advisory{
				TransactionID: result.TransactionID,
				AnalysisID:    analysisID,
				Action:        action,
				CreatedAt:     x.now().UTC(),
			})
		}
	}

	if result.RequiresManualReview || rec.HasAction(models.ActionRequireManualReview) {
		x.enqueueReview(ctx, result, analysisID, report)
	}

	if len(advisories) > 0 {
		x.recordAdvisories(ctx, advisories, report)
	}

	return report
}

func (x *ActionExecutor) blockTransaction(ctx context.Context, result *models.FraudAnalysisResult, report *ExecutionReport) {
	unlock := x.locks.Lock(result.TransactionID)
	defer unlock()

	err := x.transactions.UpdateStatus(ctx, result.TransactionID,
		[]models.TransactionStatus{models.StatusPending}, models.StatusBlockedFraud, x.now().UTC())
	switch {
	case err == nil:
		x.record(report, models.ActionBlockTransaction, OutcomeApplied, "")
		x.logger.Warn("transaction blocked",
			zap.String("transaction_id", result.TransactionID),
			zap.Int("score", result.Score))
	case errors.Is(err, models.ErrStatusConflict):
		x.record(report, models.ActionBlockTransaction, OutcomeSkipped, "transaction no longer pending")
		x.logger.Info("block skipped, transaction no longer pending",
			zap.String("transaction_id", result.TransactionID))
	default:
		x.record(report, models.ActionBlockTransaction, OutcomeFailed, err.Error())
		x.logger.Error("failed to block transaction",
			zap.String("transaction_id", result.TransactionID),
			zap.Error(err))
	}
}

func (x *ActionExecutor) flagAccount(ctx context.Context, result *models.FraudAnalysisResult, analysisID string, report *ExecutionReport) {
	flag := &models.AccountRiskFlag{
		ID:         uuid.New().String(),
		UserID:     result.UserID,
		Reason:     fmt.Sprintf("%s risk transaction %s", result.RiskLevel, result.TransactionID),
		AnalysisID: analysisID,
		Score:      result.Score,
		CreatedAt:  x.now().UTC(),
	}
	if err := x.accounts.AddRiskFlag(ctx, flag); err != nil {
		x.record(report, models.ActionFlagAccount, OutcomeFailed, err.Error())
		x.logger.Error("failed to flag account",
			zap.String("user_id", result.UserID),
			zap.Error(err))
		return
	}
	x.record(report, models.ActionFlagAccount, OutcomeApplied, "")
}

// notifyOperators is fire-and-forget; delivery failures are only logged.
func (x *ActionExecutor) notifyOperators(result *models.FraudAnalysisResult, report *ExecutionReport) {
	alert := notify.Alert{
		Type:          notify.AlertHighRiskTransaction,
		TransactionID: result.TransactionID,
		UserID:        result.UserID,
		AnalysisID:    result.ID,
		Score:         result.Score,
		RiskLevel:     result.RiskLevel,
		Priority:      result.Recommendation.Priority,
		Actions:       result.Recommendation.Actions,
		Message:       fmt.Sprintf("%s risk transaction scored %d", result.RiskLevel, result.Score),
		CreatedAt:     x.now().UTC(),
	}

	x.inflight.Add(1)
	go func() {
		defer x.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), x.notifyTimeout)
		defer cancel()
		if err := x.notifier.Notify(ctx, alert); err != nil {
			x.metrics.AlertsTotal.WithLabelValues(string(alert.Type), "failed").Inc()
			x.logger.Error("failed to notify operators",
				zap.String("transaction_id", alert.TransactionID),
				zap.Error(err))
			return
		}
		x.metrics.AlertsTotal.WithLabelValues(string(alert.Type), "sent").Inc()
	}()
	x.record(report, models.ActionNotifyOperators, OutcomeQueued, "")
}

func (x *ActionExecutor) enqueueReview(ctx context.Context, result *models.FraudAnalysisResult, analysisID string, report *ExecutionReport) {
	entry := &models.ManualReviewEntry{
		ID:            uuid.New().String(),
		TransactionID: result.TransactionID,
		AnalysisID:    analysisID,
		RiskScore:     result.Score,
		Priority:      result.Recommendation.Priority,
		Status:        models.ReviewStatusPending,
		CreatedAt:     x.now().UTC(),
	}
	if !entry.Priority.Valid() {
		entry.Priority = models.PriorityNormal
	}

	stored, created, err := x.reviews.CreatePendingReview(ctx, entry)
	if err != nil {
		x.record(report, models.ActionRequireManualReview, OutcomeFailed, err.Error())
		x.logger.Error("failed to create manual review entry",
			zap.String("transaction_id", result.TransactionID),
			zap.Error(err))
		return
	}
	report.ReviewID = stored.ID
	if !created {
		x.record(report, models.ActionRequireManualReview, OutcomeSkipped, "pending review already exists")
		return
	}
	x.record(report, models.ActionRequireManualReview, OutcomeApplied, "")
	x.logger.Info("transaction queued for manual review",
		zap.String("transaction_id", result.TransactionID),
		zap.String("review_id", stored.ID),
		zap.String("priority", string(stored.Priority)))
}

func (x *ActionExecutor) recordAdvisories(ctx context.Context, advisories []models.Advisory, report *ExecutionReport) {
	err := x.transactions.RecordAdvisories(ctx, advisories)
	for _, a := range advisories {
		if err != nil {
			x.record(report, a.Action, OutcomeFailed, err.Error())
			continue
		}
		x.record(report, a.Action, OutcomeApplied, "")
	}
	if err != nil {
		x.logger.Error("failed to record advisory actions",
			zap.String("transaction_id", advisories[0].TransactionID),
			zap.Error(err))
	}
}

func (x *ActionExecutor) record(report *ExecutionReport, action models.Action, outcome, detail string) {
	report.add(action, outcome, detail)
	x.metrics.ActionsTotal.WithLabelValues(string(action), outcome).Inc()
}

// Wait blocks until queued notifications finish. Used on shutdown and in tests.
func (x *ActionExecutor) Wait() {
	x.inflight.Wait()
}
