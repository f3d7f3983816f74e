// internal/repository/history_repository.go
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"risk-engine/internal/models"
)

// HistoryRepository reads the platform data the analyzers score against and
// holds the blacklist and account risk flags.
type HistoryRepository struct {
	db *sql.DB
}

func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

const historyColumns = `
	id, user_id, amount, status, COALESCE(card_bin, ''), COALESCE(ip_address, ''),
	COALESCE(country, ''), latitude, longitude, created_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHistorical(row rowScanner) (models.HistoricalTransaction, error) {
	var h models.HistoricalTransaction
	var lat, lon sql.NullFloat64
	err := row.Scan(&h.ID, &h.UserID, &h.Amount, &h.Status, &h.CardBIN, &h.IPAddress, &h.Country, &lat, &lon, &h.CreatedAt)
	if err != nil {
		return h, err
	}
	if lat.Valid && lon.Valid {
		h.Latitude = &lat.Float64
		h.Longitude = &lon.Float64
	}
	return h, nil
}

func (r *HistoryRepository) RecentTransactions(ctx context.Context, userID string, since time.Time, excludeID string) ([]models.HistoricalTransaction, error) {
	query := `SELECT ` + historyColumns + `
		FROM transactions
		WHERE user_id = $1 AND created_at >= $2 AND id <> $3
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID, since, excludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.HistoricalTransaction
	for rows.Next() {
		h, err := scanHistorical(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (r *HistoryRepository) PreviousTransaction(ctx context.Context, userID string, before time.Time, excludeID string) (*models.HistoricalTransaction, error) {
	query := `SELECT ` + historyColumns + `
		FROM transactions
		WHERE user_id = $1 AND created_at < $2 AND id <> $3
		ORDER BY created_at DESC
		LIMIT 1
	`
	h, err := scanHistorical(r.db.QueryRowContext(ctx, query, userID, before, excludeID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func (r *HistoryRepository) FailedAttemptsByBIN(ctx context.Context, bin string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM transactions
		WHERE card_bin = $1 AND status = 'failed' AND created_at >= $2
	`
	var count int
	err := r.db.QueryRowContext(ctx, query, bin, since).Scan(&count)
	return count, err
}

// UserProfile merges platform risk flags with the ones the engine recorded.
func (r *HistoryRepository) UserProfile(ctx context.Context, userID string) (*models.UserRiskProfile, error) {
	query := `
		SELECT p.user_id, COALESCE(p.email, ''), p.account_created_at, p.verification_level,
			   p.confirmed_fraud_reports, p.avg_transaction_amount, p.max_transaction_amount,
			   p.total_transactions,
			   p.risk_flags || COALESCE(
				   (SELECT array_agg(f.reason ORDER BY f.created_at) FROM account_risk_flags f WHERE f.user_id = p.user_id),
				   '{}'::text[])
		FROM user_risk_profiles p
		WHERE p.user_id = $1
	`

	p := &models.UserRiskProfile{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&p.UserID,
		&p.Email,
		&p.AccountCreatedAt,
		&p.VerificationLevel,
		&p.ConfirmedFraudReports,
		&p.AvgTransactionAmount,
		&p.MaxTransactionAmount,
		&p.TotalTransactions,
		pq.Array(&p.RiskFlags),
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func (r *HistoryRepository) DeviceHistory(ctx context.Context, fingerprint string) (*models.DeviceHistory, error) {
	query := `
		SELECT COUNT(*),
			   COALESCE(array_agg(DISTINCT user_id::text), '{}'::text[]),
			   COALESCE(bool_or(flagged), FALSE),
			   max(last_seen_at)
		FROM device_fingerprints
		WHERE fingerprint = $1
	`

	var count int
	var lastSeen sql.NullTime
	d := &models.DeviceHistory{Fingerprint: fingerprint}
	err := r.db.QueryRowContext(ctx, query, fingerprint).Scan(&count, pq.Array(&d.UserIDs), &d.Flagged, &lastSeen)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	d.LastSeenAt = lastSeen.Time
	return d, nil
}

// ConflictingBookings counts live bookings by other users for the same
// resource on the same UTC calendar day.
func (r *HistoryRepository) ConflictingBookings(ctx context.Context, resourceID string, eventDate time.Time, userID string) (int, error) {
	y, m, d := eventDate.UTC().Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)

	query := `
		SELECT COUNT(*) FROM transactions
		WHERE booking_resource_id = $1
		  AND booking_event_date >= $2 AND booking_event_date < $3
		  AND user_id <> $4
		  AND status NOT IN ('blocked_fraud', 'rejected_fraud', 'failed')
	`
	var count int
	err := r.db.QueryRowContext(ctx, query, resourceID, start, end, userID).Scan(&count)
	return count, err
}

func (r *HistoryRepository) IsBlacklisted(ctx context.Context, kind models.BlacklistKind, value string, at time.Time) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM blacklist
			WHERE kind = $1 AND value = $2 AND (expires_at IS NULL OR expires_at > $3)
		)
	`
	var listed bool
	err := r.db.QueryRowContext(ctx, query, kind, value, at).Scan(&listed)
	return listed, err
}

func (r *HistoryRepository) AddBlacklistEntry(ctx context.Context, e *models.BlacklistEntry) error {
	query := `
		INSERT INTO blacklist (kind, value, severity, reason, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (kind, value) DO UPDATE
		SET severity = EXCLUDED.severity, reason = EXCLUDED.reason, expires_at = EXCLUDED.expires_at
	`
	severity := e.Severity
	if severity == "" {
		severity = "high"
	}
	_, err := r.db.ExecContext(ctx, query, e.Kind, e.Value, severity, nullString(e.Reason), e.ExpiresAt, e.CreatedAt)
	return err
}

func (r *HistoryRepository) AddRiskFlag(ctx context.Context, flag *models.AccountRiskFlag) error {
	query := `
		INSERT INTO account_risk_flags (id, user_id, reason, analysis_id, score, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		flag.ID,
		flag.UserID,
		flag.Reason,
		nullString(flag.AnalysisID),
		flag.Score,
		flag.CreatedAt,
	)
	return err
}
