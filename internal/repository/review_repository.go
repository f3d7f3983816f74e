// internal/repository/review_repository.go
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"risk-engine/internal/models"
)

type ReviewRepository struct {
	db *sql.DB
}

func NewReviewRepository(db *sql.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

const reviewColumns = `
	id, transaction_id, analysis_id, risk_score, priority, status,
	reviewer_id, notes, decided_at, escalated_at, created_at
`

func scanReview(row rowScanner) (*models.ManualReviewEntry, error) {
	e := &models.ManualReviewEntry{}
	var analysisID, reviewerID, notes sql.NullString
	var decidedAt, escalatedAt sql.NullTime
	err := row.Scan(
		&e.ID,
		&e.TransactionID,
		&analysisID,
		&e.RiskScore,
		&e.Priority,
		&e.Status,
		&reviewerID,
		&notes,
		&decidedAt,
		&escalatedAt,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.AnalysisID = analysisID.String
	e.ReviewerID = reviewerID.String
	e.Notes = notes.String
	if decidedAt.Valid {
		at := decidedAt.Time
		e.DecidedAt = &at
	}
	if escalatedAt.Valid {
		at := escalatedAt.Time
		e.EscalatedAt = &at
	}
	return e, nil
}

// CreatePendingReview relies on the partial unique index on pending entries,
// so concurrent callers for the same transaction end up with one entry.
func (r *ReviewRepository) CreatePendingReview(ctx context.Context, entry *models.ManualReviewEntry) (*models.ManualReviewEntry, bool, error) {
	query := `
		INSERT INTO manual_reviews (id, transaction_id, analysis_id, risk_score, priority, status, created_at)
		VALUES ($1, $2, $3, $4, $5, 'pending', $6)
		ON CONFLICT (transaction_id) WHERE status = 'pending' DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.TransactionID,
		nullString(entry.AnalysisID),
		entry.RiskScore,
		entry.Priority,
		entry.CreatedAt,
	)
	if err != nil {
		return nil, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	if n > 0 {
		created := *entry
		created.Status = models.ReviewStatusPending
		return &created, true, nil
	}

	existing, err := scanReview(r.db.QueryRowContext(ctx,
		`SELECT `+reviewColumns+` FROM manual_reviews WHERE transaction_id = $1 AND status = 'pending'`,
		entry.TransactionID))
	if err != nil {
		return nil, false, fmt.Errorf("failed to load existing review: %w", err)
	}
	return existing, false, nil
}

func (r *ReviewRepository) GetReview(ctx context.Context, id string) (*models.ManualReviewEntry, error) {
	e, err := scanReview(r.db.QueryRowContext(ctx, `SELECT `+reviewColumns+` FROM manual_reviews WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

func (r *ReviewRepository) ResolveReview(ctx context.Context, entry *models.ManualReviewEntry) error {
	query := `
		UPDATE manual_reviews
		SET status = $2, reviewer_id = $3, notes = $4, decided_at = $5
		WHERE id = $1 AND status = 'pending'
	`
	res, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.Status,
		nullString(entry.ReviewerID),
		nullString(entry.Notes),
		entry.DecidedAt,
	)
	if err != nil {
		return err
	}
	return r.checkPendingUpdate(ctx, res, entry.ID)
}

func (r *ReviewRepository) EscalateReview(ctx context.Context, entry *models.ManualReviewEntry) error {
	query := `
		UPDATE manual_reviews
		SET priority = $2, escalated_at = $3
		WHERE id = $1 AND status = 'pending'
	`
	res, err := r.db.ExecContext(ctx, query, entry.ID, entry.Priority, entry.EscalatedAt)
	if err != nil {
		return err
	}
	return r.checkPendingUpdate(ctx, res, entry.ID)
}

func (r *ReviewRepository) checkPendingUpdate(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM manual_reviews WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return models.ErrReviewNotFound
	}
	return models.ErrStatusConflict
}

// ListReviews pages through entries in (created_at, id) order.
func (r *ReviewRepository) ListReviews(ctx context.Context, filter models.ReviewFilter) ([]*models.ManualReviewEntry, error) {
	var conds []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Status != "" {
		conds = append(conds, "status = "+arg(filter.Status))
	}
	if filter.Priority != "" {
		conds = append(conds, "priority = "+arg(filter.Priority))
	}
	if filter.After != nil {
		conds = append(conds, fmt.Sprintf("(created_at, id) > (%s, %s)", arg(*filter.After), arg(filter.AfterID)))
	}

	query := `SELECT ` + reviewColumns + ` FROM manual_reviews`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at, id"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.ManualReviewEntry
	for rows.Next() {
		e, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
