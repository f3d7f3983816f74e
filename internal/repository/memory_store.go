// internal/repository/memory_store.go
package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"risk-engine/internal/models"
)

// MemoryStore is an in-process implementation of every store the engine
// uses. It backs development mode and tests. Values are copied on the way
// in and out so callers never share state with the store.
type MemoryStore struct {
	mu sync.RWMutex

	transactions map[string]*models.Transaction
	history      []models.HistoricalTransaction
	profiles     map[string]*models.UserRiskProfile
	devices      map[string]*models.DeviceHistory
	blacklist    []models.BlacklistEntry
	bookings     []models.BookingRecord
	flags        map[string][]models.AccountRiskFlag
	advisories   map[string][]models.Advisory

	analyses map[string][]*models.FraudAnalysisResult
	reviews  map[string]*models.ManualReviewEntry
	settings *models.Settings
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		transactions: make(map[string]*models.Transaction),
		profiles:     make(map[string]*models.UserRiskProfile),
		devices:      make(map[string]*models.DeviceHistory),
		flags:        make(map[string][]models.AccountRiskFlag),
		advisories:   make(map[string][]models.Advisory),
		analyses:     make(map[string][]*models.FraudAnalysisResult),
		reviews:      make(map[string]*models.ManualReviewEntry),
	}
}

// Seeding helpers for the platform-owned data.

func (s *MemoryStore) AddHistoricalTransaction(h models.HistoricalTransaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, h)
}

func (s *MemoryStore) SetUserProfile(p models.UserRiskProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.RiskFlags = append([]string(nil), p.RiskFlags...)
	s.profiles[p.UserID] = &p
}

func (s *MemoryStore) SetDeviceHistory(d models.DeviceHistory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d.UserIDs = append([]string(nil), d.UserIDs...)
	s.devices[d.Fingerprint] = &d
}

func (s *MemoryStore) AddBlacklistEntry(e models.BlacklistEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blacklist = append(s.blacklist, e)
}

func (s *MemoryStore) AddBooking(b models.BookingRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings = append(s.bookings, b)
}

// RiskFlags returns the flags recorded for a user.
func (s *MemoryStore) RiskFlags(userID string) []models.AccountRiskFlag {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.AccountRiskFlag(nil), s.flags[userID]...)
}

// Advisories returns the advisory actions recorded for a transaction.
func (s *MemoryStore) Advisories(transactionID string) []models.Advisory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Advisory(nil), s.advisories[transactionID]...)
}

// Transactions

func cloneTransaction(tx *models.Transaction) *models.Transaction {
	cp := *tx
	if tx.Booking != nil {
		b := *tx.Booking
		cp.Booking = &b
	}
	if tx.BlockedAt != nil {
		at := *tx.BlockedAt
		cp.BlockedAt = &at
	}
	return &cp
}

func (s *MemoryStore) EnsureTransaction(ctx context.Context, tx *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.transactions[tx.ID]; ok {
		return nil
	}
	cp := cloneTransaction(tx)
	if cp.Status == "" {
		cp.Status = models.StatusPending
	}
	s.transactions[tx.ID] = cp

	if tx.DeviceFingerprint != "" {
		d, ok := s.devices[tx.DeviceFingerprint]
		if !ok {
			d = &models.DeviceHistory{Fingerprint: tx.DeviceFingerprint}
			s.devices[tx.DeviceFingerprint] = d
		}
		if !contains(d.UserIDs, tx.UserID) {
			d.UserIDs = append(d.UserIDs, tx.UserID)
		}
		if tx.CreatedAt.After(d.LastSeenAt) {
			d.LastSeenAt = tx.CreatedAt
		}
	}
	return nil
}

func (s *MemoryStore) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactions[id]
	if !ok {
		return nil, nil
	}
	return cloneTransaction(tx), nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, id string, from []models.TransactionStatus, to models.TransactionStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[id]
	if !ok {
		return models.ErrTransactionNotFound
	}
	allowed := false
	for _, f := range from {
		if tx.Status == f {
			allowed = true
			break
		}
	}
	if !allowed {
		return models.ErrStatusConflict
	}

	tx.Status = to
	if to == models.StatusBlockedFraud {
		blockedAt := at
		tx.BlockedAt = &blockedAt
	}
	return nil
}

func (s *MemoryStore) RecordAdvisories(ctx context.Context, advisories []models.Advisory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range advisories {
		s.advisories[a.TransactionID] = append(s.advisories[a.TransactionID], a)
	}
	return nil
}

func (s *MemoryStore) TransactionSummaries(ctx context.Context, ids []string) (map[string]models.TransactionSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]models.TransactionSummary, len(ids))
	for _, id := range ids {
		if tx, ok := s.transactions[id]; ok {
			out[id] = tx.Summary()
		}
	}
	return out, nil
}

// History

// allHistory merges seeded history with transactions registered for analysis.
// Caller must hold the read lock.
func (s *MemoryStore) allHistory() []models.HistoricalTransaction {
	out := make([]models.HistoricalTransaction, 0, len(s.history)+len(s.transactions))
	out = append(out, s.history...)
	for _, tx := range s.transactions {
		out = append(out, models.HistoricalTransaction{
			ID:        tx.ID,
			UserID:    tx.UserID,
			Amount:    tx.Amount,
			Status:    string(tx.Status),
			CardBIN:   tx.CardBIN,
			IPAddress: tx.IPAddress,
			CreatedAt: tx.CreatedAt,
		})
	}
	return out
}

func (s *MemoryStore) RecentTransactions(ctx context.Context, userID string, since time.Time, excludeID string) ([]models.HistoricalTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.HistoricalTransaction
	for _, h := range s.allHistory() {
		if h.UserID == userID && h.ID != excludeID && !h.CreatedAt.Before(since) {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) PreviousTransaction(ctx context.Context, userID string, before time.Time, excludeID string) (*models.HistoricalTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var prev *models.HistoricalTransaction
	for _, h := range s.allHistory() {
		if h.UserID != userID || h.ID == excludeID || !h.CreatedAt.Before(before) {
			continue
		}
		if prev == nil || h.CreatedAt.After(prev.CreatedAt) {
			h := h
			prev = &h
		}
	}
	return prev, nil
}

func (s *MemoryStore) FailedAttemptsByBIN(ctx context.Context, bin string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, h := range s.allHistory() {
		if h.CardBIN == bin && h.Status == models.HistoricalStatusFailed && !h.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) UserProfile(ctx context.Context, userID string) (*models.UserRiskProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, nil
	}
	cp := *p
	cp.RiskFlags = append([]string(nil), p.RiskFlags...)
	for _, f := range s.flags[userID] {
		cp.RiskFlags = append(cp.RiskFlags, f.Reason)
	}
	return &cp, nil
}

func (s *MemoryStore) DeviceHistory(ctx context.Context, fingerprint string) (*models.DeviceHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.devices[fingerprint]
	if !ok {
		return nil, nil
	}
	cp := *d
	cp.UserIDs = append([]string(nil), d.UserIDs...)
	return &cp, nil
}

func (s *MemoryStore) ConflictingBookings(ctx context.Context, resourceID string, eventDate time.Time, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, b := range s.bookings {
		if b.ResourceID == resourceID && b.UserID != userID && sameDay(b.EventDate, eventDate) {
			count++
		}
	}
	for _, tx := range s.transactions {
		if tx.Booking == nil || tx.UserID == userID || tx.Booking.ResourceID != resourceID {
			continue
		}
		if tx.Status == models.StatusBlockedFraud || tx.Status == models.StatusRejectedFraud {
			continue
		}
		if sameDay(tx.Booking.EventDate, eventDate) {
			count++
		}
	}
	return count, nil
}

// Blacklist and account flags

func (s *MemoryStore) IsBlacklisted(ctx context.Context, kind models.BlacklistKind, value string, at time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.blacklist {
		e := &s.blacklist[i]
		if e.Kind == kind && e.Value == value && e.Active(at) {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) AddRiskFlag(ctx context.Context, flag *models.AccountRiskFlag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags[flag.UserID] = append(s.flags[flag.UserID], *flag)
	return nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
