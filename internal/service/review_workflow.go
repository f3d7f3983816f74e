// internal/service/review_workflow.go
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"risk-engine/internal/metrics"
	"risk-engine/internal/models"
	"risk-engine/internal/notify"
	"risk-engine/internal/pagination"
	"risk-engine/pkg/syncutil"
)

// DefaultReviewSLA is how long an entry may stay pending at each priority
// before it is escalated.
var DefaultReviewSLA = map[models.Priority]time.Duration{
	models.PriorityCritical: 1 * time.Hour,
	models.PriorityHigh:     4 * time.Hour,
	models.PriorityNormal:   24 * time.Hour,
	models.PriorityLow:      72 * time.Hour,
}

// ReviewService resolves manual review entries and keeps the queue moving.
type ReviewService struct {
	reviews      ReviewStore
	transactions TransactionStore
	notifier     notify.Notifier
	locks        *syncutil.ShardedMutex
	metrics      *metrics.Metrics
	logger       *zap.Logger
	sla          map[models.Priority]time.Duration
	now          func() time.Time
}

func NewReviewService(
	reviews ReviewStore,
	transactions TransactionStore,
	notifier notify.Notifier,
	locks *syncutil.ShardedMutex,
	m *metrics.Metrics,
	logger *zap.Logger,
) *ReviewService {
	return &ReviewService{
		reviews:      reviews,
		transactions: transactions,
		notifier:     notifier,
		locks:        locks,
		metrics:      m,
		logger:       logger,
		sla:          DefaultReviewSLA,
		now:          time.Now,
	}
}

// Decide applies an operator decision to a pending entry and moves the
// transaction to approved or rejected_fraud. Invalid decisions and entries
// that are already resolved change nothing.
func (s *ReviewService) Decide(ctx context.Context, reviewID string, req models.ReviewDecisionRequest) (*models.DecisionResult, error) {
	if !req.Decision.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidDecision, req.Decision)
	}
	if req.ReviewerID == "" {
		return nil, models.ErrReviewerRequired
	}

	entry, err := s.reviews.GetReview(ctx, reviewID)
	if err != nil {
		return nil, fmt.Errorf("failed to load review: %w", err)
	}
	if entry == nil {
		return nil, models.ErrReviewNotFound
	}

	unlock := s.locks.Lock(entry.TransactionID)
	defer unlock()

	// re-read under the lock so a concurrent decision is observed
	entry, err = s.reviews.GetReview(ctx, reviewID)
	if err != nil {
		return nil, fmt.Errorf("failed to load review: %w", err)
	}
	if entry == nil {
		return nil, models.ErrReviewNotFound
	}

	txStatus, err := entry.Resolve(req.Decision, req.ReviewerID, req.Notes, s.now().UTC())
	if err != nil {
		return nil, err
	}

	if err := s.reviews.ResolveReview(ctx, entry); err != nil {
		if errors.Is(err, models.ErrStatusConflict) {
			return nil, models.ErrReviewAlreadyResolved
		}
		return nil, fmt.Errorf("failed to resolve review: %w", err)
	}

	err = s.transactions.UpdateStatus(ctx, entry.TransactionID,
		[]models.TransactionStatus{models.StatusPending, models.StatusBlockedFraud}, txStatus, s.now().UTC())
	if err != nil {
		// The decision stands; the transaction may have been settled elsewhere.
		s.logger.Error("failed to apply review decision to transaction",
			zap.String("review_id", entry.ID),
			zap.String("transaction_id", entry.TransactionID),
			zap.String("target_status", string(txStatus)),
			zap.Error(err))
		if current, getErr := s.transactions.GetTransaction(ctx, entry.TransactionID); getErr == nil && current != nil {
			txStatus = current.Status
		}
	}

	s.metrics.ReviewDecisions.WithLabelValues(string(req.Decision)).Inc()
	s.logger.Info("manual review resolved",
		zap.String("review_id", entry.ID),
		zap.String("transaction_id", entry.TransactionID),
		zap.String("decision", string(req.Decision)),
		zap.String("reviewer_id", req.ReviewerID))

	return &models.DecisionResult{Review: entry, TransactionStatus: txStatus}, nil
}

// ListQueue returns a page of review entries joined with their transaction summary.
func (s *ReviewService) ListQueue(ctx context.Context, status models.ReviewStatus, priority models.Priority, limit int, cursor string) (*models.ReviewPage, error) {
	c, err := pagination.Decode(cursor)
	if err != nil {
		return nil, err
	}
	limit = pagination.ClampLimit(limit)

	filter := models.ReviewFilter{Status: status, Priority: priority, Limit: limit + 1}
	if c != nil {
		filter.After = &c.CreatedAt
		filter.AfterID = c.ID
	}

	entries, err := s.reviews.ListReviews(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}

	entries, next, more := pagination.ComputePage(entries, limit, func(e *models.ManualReviewEntry) (time.Time, string) {
		return e.CreatedAt, e.ID
	})

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.TransactionID
	}
	summaries, err := s.transactions.TransactionSummaries(ctx, ids)
	if err != nil {
		s.logger.Warn("failed to load transaction summaries", zap.Error(err))
		summaries = nil
	}

	page := &models.ReviewPage{
		Items:      make([]models.ReviewQueueItem, 0, len(entries)),
		NextCursor: next,
		HasMore:    more,
	}
	for _, e := range entries {
		item := models.ReviewQueueItem{ManualReviewEntry: *e}
		if sum, ok := summaries[e.TransactionID]; ok {
			sum := sum
			item.Transaction = &sum
		}
		page.Items = append(page.Items, item)
	}
	return page, nil
}

// EscalateStale raises the priority of pending entries that outlived their
// SLA and alerts operators. Entries are never resolved automatically.
func (s *ReviewService) EscalateStale(ctx context.Context) (int, error) {
	now := s.now().UTC()
	escalated := 0
	var after *time.Time
	afterID := ""

	for {
		batch, err := s.reviews.ListReviews(ctx, models.ReviewFilter{
			Status:  models.ReviewStatusPending,
			Limit:   pagination.MaxLimit,
			After:   after,
			AfterID: afterID,
		})
		if err != nil {
			return escalated, fmt.Errorf("failed to list pending reviews: %w", err)
		}

		for _, entry := range batch {
			if !s.isStale(entry, now) {
				continue
			}
			entry.Escalate(now)
			if err := s.reviews.EscalateReview(ctx, entry); err != nil {
				if !errors.Is(err, models.ErrStatusConflict) {
					s.logger.Error("failed to escalate review",
						zap.String("review_id", entry.ID),
						zap.Error(err))
				}
				continue
			}
			escalated++
			s.metrics.ReviewEscalations.WithLabelValues(string(entry.Priority)).Inc()
			s.alertEscalation(ctx, entry)
		}

		if len(batch) < pagination.MaxLimit {
			break
		}
		last := batch[len(batch)-1]
		createdAt := last.CreatedAt
		after, afterID = &createdAt, last.ID
	}

	if escalated > 0 {
		s.logger.Info("stale reviews escalated", zap.Int("count", escalated))
	}
	return escalated, nil
}

func (s *ReviewService) isStale(entry *models.ManualReviewEntry, now time.Time) bool {
	since := entry.CreatedAt
	if entry.EscalatedAt != nil {
		since = *entry.EscalatedAt
	}
	sla, ok := s.sla[entry.Priority]
	if !ok {
		sla = s.sla[models.PriorityNormal]
	}
	return now.Sub(since) > sla
}

func (s *ReviewService) alertEscalation(ctx context.Context, entry *models.ManualReviewEntry) {
	alert := notify.Alert{
		Type:          notify.AlertReviewEscalated,
		TransactionID: entry.TransactionID,
		AnalysisID:    entry.AnalysisID,
		ReviewID:      entry.ID,
		Score:         entry.RiskScore,
		Priority:      entry.Priority,
		Message:       fmt.Sprintf("review pending since %s escalated to %s", entry.CreatedAt.Format(time.RFC3339), entry.Priority),
		CreatedAt:     s.now().UTC(),
	}
	if err := s.notifier.Notify(ctx, alert); err != nil {
		s.metrics.AlertsTotal.WithLabelValues(string(alert.Type), "failed").Inc()
		s.logger.Error("failed to send escalation alert",
			zap.String("review_id", entry.ID),
			zap.Error(err))
		return
	}
	s.metrics.AlertsTotal.WithLabelValues(string(alert.Type), "sent").Inc()
}

// RunEscalation runs EscalateStale every interval until ctx is done.
func (s *ReviewService) RunEscalation(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.EscalateStale(ctx); err != nil {
				s.logger.Error("review escalation failed", zap.Error(err))
			}
		}
	}
}
