// internal/handler/review_handler.go
package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"risk-engine/internal/models"
	"risk-engine/internal/service"
)

type ReviewHandler struct {
	reviews *service.ReviewService
	logger  *zap.Logger
}

func NewReviewHandler(reviews *service.ReviewService, logger *zap.Logger) *ReviewHandler {
	return &ReviewHandler{
		reviews: reviews,
		logger:  logger,
	}
}

// ListReviews handles GET /api/v1/fraud/reviews
func (h *ReviewHandler) ListReviews(c *gin.Context) {
	status := models.ReviewStatus(c.DefaultQuery("status", string(models.ReviewStatusPending)))
	switch status {
	case models.ReviewStatusPending, models.ReviewStatusApproved, models.ReviewStatusRejected:
	default:
		badRequest(c, fmt.Errorf("unknown status %q", status))
		return
	}

	priority := models.Priority(c.Query("priority"))
	if priority != "" && !priority.Valid() {
		badRequest(c, fmt.Errorf("unknown priority %q", priority))
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(c, fmt.Errorf("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	page, err := h.reviews.ListQueue(c.Request.Context(), status, priority, limit, c.Query("cursor"))
	if err != nil {
		respondError(c, h.logger, err, "Failed to list reviews")
		return
	}

	c.JSON(http.StatusOK, page)
}

// Decide handles POST /api/v1/fraud/reviews/:id/decision
func (h *ReviewHandler) Decide(c *gin.Context) {
	var req models.ReviewDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.reviews.Decide(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, h.logger, err, "Failed to apply decision")
		return
	}

	c.JSON(http.StatusOK, result)
}
