// internal/notify/notifier.go
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"risk-engine/internal/models"
)

type AlertType string

const (
	AlertHighRiskTransaction AlertType = "high_risk_transaction"
	AlertReviewEscalated     AlertType = "review_escalated"
)

// Alert is the operator notification payload.
type Alert struct {
	Type          AlertType        `json:"type"`
	TransactionID string           `json:"transaction_id"`
	UserID        string           `json:"user_id,omitempty"`
	AnalysisID    string           `json:"analysis_id,omitempty"`
	ReviewID      string           `json:"review_id,omitempty"`
	Score         int              `json:"score"`
	RiskLevel     models.RiskLevel `json:"risk_level,omitempty"`
	Priority      models.Priority  `json:"priority,omitempty"`
	Actions       []models.Action  `json:"actions,omitempty"`
	Message       string           `json:"message"`
	CreatedAt     time.Time        `json:"created_at"`
}

// Notifier delivers operator alerts.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the structured log. Used when no broker is configured.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, alert Alert) error {
	actions := make([]string, len(alert.Actions))
	for i, a := range alert.Actions {
		actions[i] = string(a)
	}
	n.logger.Warn("operator alert",
		zap.String("type", string(alert.Type)),
		zap.String("transaction_id", alert.TransactionID),
		zap.String("review_id", alert.ReviewID),
		zap.Int("score", alert.Score),
		zap.String("risk_level", string(alert.RiskLevel)),
		zap.String("priority", string(alert.Priority)),
		zap.Strings("actions", actions),
		zap.String("message", alert.Message))
	return nil
}
