// internal/repository/transaction_repository.go
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"risk-engine/internal/models"
)

type TransactionRepository struct {
	db *sql.DB
}

func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// EnsureTransaction registers a transaction if it is not known yet and
// records the device fingerprint against the user.
func (r *TransactionRepository) EnsureTransaction(ctx context.Context, tx *models.Transaction) error {
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = dbTx.Rollback() }()

	query := `
		INSERT INTO transactions (
			id, user_id, amount, currency, payment_method, card_bin, ip_address,
			user_agent, device_fingerprint, session_duration, timezone,
			booking_resource_id, booking_event_date, booking_event_type,
			status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $16)
		ON CONFLICT (id) DO NOTHING
	`

	var resourceID, eventType sql.NullString
	var eventDate sql.NullTime
	if tx.Booking != nil {
		resourceID = nullString(tx.Booking.ResourceID)
		eventType = nullString(tx.Booking.EventType)
		eventDate = sql.NullTime{Time: tx.Booking.EventDate, Valid: !tx.Booking.EventDate.IsZero()}
	}
	status := tx.Status
	if status == "" {
		status = models.StatusPending
	}

	_, err = dbTx.ExecContext(ctx, query,
		tx.ID,
		tx.UserID,
		tx.Amount,
		tx.Currency,
		tx.PaymentMethod,
		nullString(tx.CardBIN),
		nullString(tx.IPAddress),
		nullString(tx.UserAgent),
		nullString(tx.DeviceFingerprint),
		tx.SessionDuration,
		nullString(tx.Timezone),
		resourceID,
		eventDate,
		eventType,
		status,
		tx.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}

	if tx.DeviceFingerprint != "" {
		_, err = dbTx.ExecContext(ctx, `
			INSERT INTO device_fingerprints (fingerprint, user_id, last_seen_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (fingerprint, user_id)
			DO UPDATE SET last_seen_at = GREATEST(device_fingerprints.last_seen_at, EXCLUDED.last_seen_at)
		`, tx.DeviceFingerprint, tx.UserID, tx.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to record device fingerprint: %w", err)
		}
	}

	return dbTx.Commit()
}

func (r *TransactionRepository) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	query := `
		SELECT id, user_id, amount, currency, payment_method, card_bin, ip_address,
			   user_agent, device_fingerprint, session_duration, timezone,
			   booking_resource_id, booking_event_date, booking_event_type,
			   status, created_at, blocked_at
		FROM transactions WHERE id = $1
	`

	tx := &models.Transaction{}
	var cardBIN, ip, ua, fp, tz, resourceID, eventType sql.NullString
	var eventDate, blockedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&tx.ID,
		&tx.UserID,
		&tx.Amount,
		&tx.Currency,
		&tx.PaymentMethod,
		&cardBIN,
		&ip,
		&ua,
		&fp,
		&tx.SessionDuration,
		&tz,
		&resourceID,
		&eventDate,
		&eventType,
		&tx.Status,
		&tx.CreatedAt,
		&blockedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	tx.CardBIN = cardBIN.String
	tx.IPAddress = ip.String
	tx.UserAgent = ua.String
	tx.DeviceFingerprint = fp.String
	tx.Timezone = tz.String
	if resourceID.Valid {
		tx.Booking = &models.BookingContext{
			ResourceID: resourceID.String,
			EventDate:  eventDate.Time,
			EventType:  eventType.String,
		}
	}
	if blockedAt.Valid {
		at := blockedAt.Time
		tx.BlockedAt = &at
	}
	return tx, nil
}

// UpdateStatus moves a transaction to `to` only if its current status is in from.
func (r *TransactionRepository) UpdateStatus(ctx context.Context, id string, from []models.TransactionStatus, to models.TransactionStatus, at time.Time) error {
	query := `
		UPDATE transactions
		SET status = $2,
			updated_at = $3,
			blocked_at = CASE WHEN $5 THEN $3 ELSE blocked_at END
		WHERE id = $1 AND status = ANY($4)
	`

	allowed := make([]string, len(from))
	for i, s := range from {
		allowed[i] = string(s)
	}

	res, err := r.db.ExecContext(ctx, query, id, string(to), at, pq.Array(allowed), to == models.StatusBlockedFraud)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM transactions WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return models.ErrTransactionNotFound
	}
	return models.ErrStatusConflict
}

func (r *TransactionRepository) RecordAdvisories(ctx context.Context, advisories []models.Advisory) error {
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = dbTx.Rollback() }()

	query := `
		INSERT INTO transaction_advisories (transaction_id, analysis_id, action, created_at)
		VALUES ($1, $2, $3, $4)
	`
	for _, a := range advisories {
		if _, err := dbTx.ExecContext(ctx, query, a.TransactionID, nullString(a.AnalysisID), a.Action, a.CreatedAt); err != nil {
			return err
		}
	}
	return dbTx.Commit()
}

func (r *TransactionRepository) TransactionSummaries(ctx context.Context, ids []string) (map[string]models.TransactionSummary, error) {
	out := make(map[string]models.TransactionSummary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query := `
		SELECT id, user_id, amount, currency, payment_method, status, created_at
		FROM transactions WHERE id = ANY($1)
	`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var s models.TransactionSummary
		if err := rows.Scan(&s.ID, &s.UserID, &s.Amount, &s.Currency, &s.PaymentMethod, &s.Status, &s.CreatedAt); err != nil {
			return nil, err
		}
		out[s.ID] = s
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
