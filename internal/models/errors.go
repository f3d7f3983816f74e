// internal/models/errors.go
package models

import "errors"

var (
	ErrInvalidTransaction    = errors.New("invalid transaction")
	ErrTransactionNotFound   = errors.New("transaction not found")
	ErrStatusConflict        = errors.New("transaction status changed concurrently")
	ErrAnalysisNotFound      = errors.New("analysis not found")
	ErrReviewNotFound        = errors.New("review entry not found")
	ErrInvalidDecision       = errors.New("invalid review decision")
	ErrReviewAlreadyResolved = errors.New("review entry already resolved")
	ErrReviewerRequired      = errors.New("reviewer_id is required")
	ErrInvalidSettings       = errors.New("invalid risk settings")
	ErrInvalidWindow         = errors.New("invalid report window")
	ErrInvalidCursor         = errors.New("invalid cursor")
)
