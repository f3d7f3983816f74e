// internal/handler/errors.go
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"risk-engine/internal/models"
)

type apiError struct {
	Code   string
	Status int
}

var errorTable = []struct {
	err error
	api apiError
}{
	{models.ErrInvalidTransaction, apiError{"INVALID_TRANSACTION", http.StatusBadRequest}},
	{models.ErrInvalidDecision, apiError{"INVALID_DECISION", http.StatusBadRequest}},
	{models.ErrReviewerRequired, apiError{"REVIEWER_REQUIRED", http.StatusBadRequest}},
	{models.ErrInvalidSettings, apiError{"INVALID_SETTINGS", http.StatusBadRequest}},
	{models.ErrInvalidWindow, apiError{"INVALID_WINDOW", http.StatusBadRequest}},
	{models.ErrInvalidCursor, apiError{"INVALID_CURSOR", http.StatusBadRequest}},
	{models.ErrAnalysisNotFound, apiError{"ANALYSIS_NOT_FOUND", http.StatusNotFound}},
	{models.ErrReviewNotFound, apiError{"REVIEW_NOT_FOUND", http.StatusNotFound}},
	{models.ErrTransactionNotFound, apiError{"TRANSACTION_NOT_FOUND", http.StatusNotFound}},
	{models.ErrReviewAlreadyResolved, apiError{"REVIEW_ALREADY_RESOLVED", http.StatusConflict}},
	{models.ErrStatusConflict, apiError{"STATUS_CONFLICT", http.StatusConflict}},
}

// respondError renders err using the sentinel table. Anything unknown is a
// 500 with a generic message; the detail only goes to the log.
func respondError(c *gin.Context, logger *zap.Logger, err error, msg string) {
	for _, e := range errorTable {
		if errors.Is(err, e.err) {
			c.JSON(e.api.Status, gin.H{"error": err.Error(), "code": e.api.Code})
			return
		}
	}

	logger.Error(msg, zap.Error(err), zap.String("path", c.FullPath()))
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg, "code": "INTERNAL"})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "BAD_REQUEST"})
}
