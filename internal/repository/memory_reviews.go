// internal/repository/memory_reviews.go
package repository

import (
	"context"
	"sort"
	"time"

	"risk-engine/internal/models"
)

// Analyses

func (s *MemoryStore) SaveAnalysis(ctx context.Context, result *models.FraudAnalysisResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analyses[result.TransactionID] = append(s.analyses[result.TransactionID], result.Clone())
	return nil
}

func (s *MemoryStore) LatestAnalysis(ctx context.Context, transactionID string) (*models.FraudAnalysisResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.analyses[transactionID]
	if len(list) == 0 {
		return nil, nil
	}
	latest := list[0]
	for _, a := range list[1:] {
		if !a.AnalyzedAt.Before(latest.AnalyzedAt) {
			latest = a
		}
	}
	return latest.Clone(), nil
}

func (s *MemoryStore) ListAnalyses(ctx context.Context, from, to time.Time) ([]*models.FraudAnalysisResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.FraudAnalysisResult
	for _, list := range s.analyses {
		for _, a := range list {
			if !a.AnalyzedAt.Before(from) && !a.AnalyzedAt.After(to) {
				out = append(out, a.Clone())
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AnalyzedAt.Before(out[j].AnalyzedAt) })
	return out, nil
}

// Reviews

func cloneReview(e *models.ManualReviewEntry) *models.ManualReviewEntry {
	cp := *e
	if e.DecidedAt != nil {
		at := *e.DecidedAt
		cp.DecidedAt = &at
	}
	if e.EscalatedAt != nil {
		at := *e.EscalatedAt
		cp.EscalatedAt = &at
	}
	return &cp
}

func (s *MemoryStore) CreatePendingReview(ctx context.Context, entry *models.ManualReviewEntry) (*models.ManualReviewEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.reviews {
		if e.TransactionID == entry.TransactionID && e.Status == models.ReviewStatusPending {
			return cloneReview(e), false, nil
		}
	}
	s.reviews[entry.ID] = cloneReview(entry)
	return cloneReview(entry), true, nil
}

func (s *MemoryStore) GetReview(ctx context.Context, id string) (*models.ManualReviewEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.reviews[id]
	if !ok {
		return nil, nil
	}
	return cloneReview(e), nil
}

func (s *MemoryStore) ResolveReview(ctx context.Context, entry *models.ManualReviewEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.reviews[entry.ID]
	if !ok {
		return models.ErrReviewNotFound
	}
	if current.Status != models.ReviewStatusPending {
		return models.ErrStatusConflict
	}
	s.reviews[entry.ID] = cloneReview(entry)
	return nil
}

func (s *MemoryStore) EscalateReview(ctx context.Context, entry *models.ManualReviewEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.reviews[entry.ID]
	if !ok {
		return models.ErrReviewNotFound
	}
	if current.Status != models.ReviewStatusPending {
		return models.ErrStatusConflict
	}
	current.Priority = entry.Priority
	if entry.EscalatedAt != nil {
		at := *entry.EscalatedAt
		current.EscalatedAt = &at
	}
	return nil
}

// ListReviews returns entries ordered by (created_at, id) after the cursor.
func (s *MemoryStore) ListReviews(ctx context.Context, filter models.ReviewFilter) ([]*models.ManualReviewEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.ManualReviewEntry
	for _, e := range s.reviews {
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		if filter.Priority != "" && e.Priority != filter.Priority {
			continue
		}
		if filter.After != nil {
			if e.CreatedAt.Before(*filter.After) {
				continue
			}
			if e.CreatedAt.Equal(*filter.After) && e.ID <= filter.AfterID {
				continue
			}
		}
		out = append(out, cloneReview(e))
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Settings

func (s *MemoryStore) LoadSettings(ctx context.Context) (*models.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.settings == nil {
		return nil, nil
	}
	cp := s.settings.Clone()
	return &cp, nil
}

func (s *MemoryStore) SaveSettings(ctx context.Context, settings *models.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := settings.Clone()
	s.settings = &cp
	return nil
}
