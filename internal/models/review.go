// internal/models/review.go
package models

import (
	"fmt"
	"time"
)

type ReviewStatus string
type ReviewDecision string

const (
	ReviewStatusPending  ReviewStatus = "pending"
	ReviewStatusApproved ReviewStatus = "approved"
	ReviewStatusRejected ReviewStatus = "rejected"

	DecisionApprove ReviewDecision = "approve"
	DecisionReject  ReviewDecision = "reject"
)

// ManualReviewEntry is a transaction queued for a human decision.
// Status only moves pending -> approved or pending -> rejected, through Resolve.
type ManualReviewEntry struct {
	ID            string       `json:"id" db:"id"`
	TransactionID string       `json:"transaction_id" db:"transaction_id"`
	AnalysisID    string       `json:"analysis_id,omitempty" db:"analysis_id"`
	RiskScore     int          `json:"risk_score" db:"risk_score"`
	Priority      Priority     `json:"priority" db:"priority"`
	Status        ReviewStatus `json:"status" db:"status"`
	ReviewerID    string       `json:"reviewer_id,omitempty" db:"reviewer_id"`
	Notes         string       `json:"notes,omitempty" db:"notes"`
	DecidedAt     *time.Time   `json:"decided_at,omitempty" db:"decided_at"`
	EscalatedAt   *time.Time   `json:"escalated_at,omitempty" db:"escalated_at"`
	CreatedAt     time.Time    `json:"created_at" db:"created_at"`
}

func (d ReviewDecision) Valid() bool {
	return d == DecisionApprove || d == DecisionReject
}

// Resolve applies an operator decision and returns the status the
// transaction must move to.
func (e *ManualReviewEntry) Resolve(decision ReviewDecision, reviewerID, notes string, at time.Time) (TransactionStatus, error) {
	if !decision.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidDecision, decision)
	}
	if reviewerID == "" {
		return "", ErrReviewerRequired
	}
	if e.Status != ReviewStatusPending {
		return "", fmt.Errorf("%w: entry %s is %s", ErrReviewAlreadyResolved, e.ID, e.Status)
	}

	decidedAt := at
	e.ReviewerID = reviewerID
	e.Notes = notes
	e.DecidedAt = &decidedAt

	if decision == DecisionApprove {
		e.Status = ReviewStatusApproved
		return StatusApproved, nil
	}
	e.Status = ReviewStatusRejected
	return StatusRejectedFraud, nil
}

// Escalate raises the entry one priority level. Critical stays critical.
func (e *ManualReviewEntry) Escalate(at time.Time) {
	e.Priority = e.Priority.Next()
	escalatedAt := at
	e.EscalatedAt = &escalatedAt
}

// Next returns the priority one level above p.
func (p Priority) Next() Priority {
	switch p {
	case PriorityLow:
		return PriorityNormal
	case PriorityNormal:
		return PriorityHigh
	default:
		return PriorityCritical
	}
}

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

type ReviewDecisionRequest struct {
	Decision   ReviewDecision `json:"decision" binding:"required"`
	ReviewerID string         `json:"reviewer_id" binding:"required"`
	Notes      string         `json:"notes"`
}

type DecisionResult struct {
	Review            *ManualReviewEntry `json:"review"`
	TransactionStatus TransactionStatus  `json:"transaction_status"`
}

// ReviewFilter selects entries from the review queue.
type ReviewFilter struct {
	Status   ReviewStatus
	Priority Priority
	Limit    int
	After    *time.Time
	AfterID  string
}

type ReviewQueueItem struct {
	ManualReviewEntry
	Transaction *TransactionSummary `json:"transaction,omitempty"`
}

type ReviewPage struct {
	Items      []ReviewQueueItem `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
	HasMore    bool              `json:"has_more"`
}
