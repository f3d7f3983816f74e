// internal/repository/analysis_repository.go
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"risk-engine/internal/models"
)

// AnalysisRepository stores analysis results as JSONB with the columns the
// report and lookups filter on pulled out alongside.
type AnalysisRepository struct {
	db *sql.DB
}

func NewAnalysisRepository(db *sql.DB) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

func (r *AnalysisRepository) SaveAnalysis(ctx context.Context, result *models.FraudAnalysisResult) error {
	payload, err := encodeAnalysis(result)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO fraud_analyses (
			id, transaction_id, user_id, score, risk_level,
			requires_manual_review, should_block, fail_safe, result, analyzed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`
	_, err = r.db.ExecContext(ctx, query,
		result.ID,
		result.TransactionID,
		result.UserID,
		result.Score,
		result.RiskLevel,
		result.RequiresManualReview,
		result.ShouldBlock,
		result.FailSafe,
		string(payload),
		result.AnalyzedAt,
	)
	return err
}

func (r *AnalysisRepository) LatestAnalysis(ctx context.Context, transactionID string) (*models.FraudAnalysisResult, error) {
	query := `
		SELECT result FROM fraud_analyses
		WHERE transaction_id = $1
		ORDER BY analyzed_at DESC
		LIMIT 1
	`

	var payload []byte
	err := r.db.QueryRowContext(ctx, query, transactionID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeAnalysis(payload)
}

func (r *AnalysisRepository) ListAnalyses(ctx context.Context, from, to time.Time) ([]*models.FraudAnalysisResult, error) {
	query := `
		SELECT result FROM fraud_analyses
		WHERE analyzed_at >= $1 AND analyzed_at <= $2
		ORDER BY analyzed_at
	`
	rows, err := r.db.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.FraudAnalysisResult
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		a, err := decodeAnalysis(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func encodeAnalysis(result *models.FraudAnalysisResult) ([]byte, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode analysis: %w", err)
	}
	return payload, nil
}

func decodeAnalysis(payload []byte) (*models.FraudAnalysisResult, error) {
	var a models.FraudAnalysisResult
	if err := json.Unmarshal(payload, &a); err != nil {
		return nil, fmt.Errorf("failed to decode analysis: %w", err)
	}
	return &a, nil
}
