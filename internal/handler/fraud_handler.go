// internal/handler/fraud_handler.go
package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"risk-engine/internal/models"
	"risk-engine/internal/service"
)

type FraudHandler struct {
	engine  *service.FraudEngine
	reports *service.ReportService
	logger  *zap.Logger
	now     func() time.Time
}

func NewFraudHandler(engine *service.FraudEngine, reports *service.ReportService, logger *zap.Logger) *FraudHandler {
	return &FraudHandler{
		engine:  engine,
		reports: reports,
		logger:  logger,
		now:     time.Now,
	}
}

// AnalyzeTransaction handles POST /api/v1/fraud/analyze
func (h *FraudHandler) AnalyzeTransaction(c *gin.Context) {
	var req models.AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.engine.AnalyzeTransaction(c.Request.Context(), req.ToTransaction(h.now().UTC()))
	if err != nil {
		respondError(c, h.logger, err, "Failed to analyze transaction")
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetAnalysis handles GET /api/v1/fraud/analysis/:transaction_id
func (h *FraudHandler) GetAnalysis(c *gin.Context) {
	result, err := h.engine.GetAnalysis(c.Request.Context(), c.Param("transaction_id"))
	if err != nil {
		respondError(c, h.logger, err, "Failed to load analysis")
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetReport handles GET /api/v1/fraud/report?window=7d
func (h *FraudHandler) GetReport(c *gin.Context) {
	report, err := h.reports.Generate(c.Request.Context(), c.Query("window"))
	if err != nil {
		respondError(c, h.logger, err, "Failed to generate report")
		return
	}

	c.JSON(http.StatusOK, report)
}
