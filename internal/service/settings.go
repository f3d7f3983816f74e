// internal/service/settings.go
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"risk-engine/internal/models"
)

// SettingsService holds the live scoring settings. Reads
// return a copy; updates are validated before they replace the current value.
type SettingsService struct {
	mu      sync.RWMutex
	current models.Settings
	// writes serializes read-modify-write cycles without blocking readers
	writes sync.Mutex
	store  SettingsStore
	logger *zap.Logger
	now    func() time.Time
}

func NewSettingsService(initial models.Settings, store SettingsStore, logger *zap.Logger) *SettingsService {
	return &SettingsService{
		current: initial.Clone(),
		store:   store,
		logger:  logger,
		now:     time.Now,
	}
}

// Load replaces the in-memory settings with the persisted ones, if any.
func (s *SettingsService) Load(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	stored, err := s.store.LoadSettings(ctx)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	if stored == nil {
		return nil
	}
	if err := stored.Validate(); err != nil {
		s.logger.Warn("ignoring invalid persisted settings", zap.Error(err))
		return nil
	}

	s.mu.Lock()
	s.current = stored.Clone()
	s.mu.Unlock()

	s.logger.Info("risk settings loaded",
		zap.Int("medium", stored.Thresholds.Medium),
		zap.Int("high", stored.Thresholds.High),
		zap.Int("critical", stored.Thresholds.Critical))
	return nil
}

func (s *SettingsService) Get() models.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// Update validates and persists new settings. Invalid settings change nothing.
func (s *SettingsService) Update(ctx context.Context, next models.Settings) (models.Settings, error) {
	return s.Patch(ctx, func(current *models.Settings) error {
		*current = next.Clone()
		return nil
	})
}

// Patch applies apply to a copy of the current settings, then validates and
// persists the result. Concurrent patches run one at a time, so each sees
// the outcome of the previous one. An error from apply is returned as is.
func (s *SettingsService) Patch(ctx context.Context, apply func(*models.Settings) error) (models.Settings, error) {
	s.writes.Lock()
	defer s.writes.Unlock()

	next := s.Get()
	if err := apply(&next); err != nil {
		return models.Settings{}, err
	}
	if err := next.Validate(); err != nil {
		return models.Settings{}, err
	}
	next.UpdatedAt = s.now().UTC()

	if s.store != nil {
		if err := s.store.SaveSettings(ctx, &next); err != nil {
			return models.Settings{}, fmt.Errorf("failed to save settings: %w", err)
		}
	}

	s.mu.Lock()
	s.current = next.Clone()
	s.mu.Unlock()

	s.logger.Info("risk settings updated",
		zap.Int("medium", next.Thresholds.Medium),
		zap.Int("high", next.Thresholds.High),
		zap.Int("critical", next.Thresholds.Critical))
	return next, nil
}
