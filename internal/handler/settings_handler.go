// internal/handler/settings_handler.go
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"

	"risk-engine/internal/models"
	"risk-engine/internal/service"
)

type SettingsHandler struct {
	settings *service.SettingsService
	logger   *zap.Logger
}

func NewSettingsHandler(settings *service.SettingsService, logger *zap.Logger) *SettingsHandler {
	return &SettingsHandler{
		settings: settings,
		logger:   logger,
	}
}

// GetSettings handles GET /api/v1/fraud/settings
func (h *SettingsHandler) GetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, h.settings.Get())
}

// UpdateSettings handles PUT /api/v1/fraud/settings. Fields missing from
// the body keep their current values.
func (h *SettingsHandler) UpdateSettings(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		badRequest(c, err)
		return
	}

	var bindErr error
	updated, err := h.settings.Patch(c.Request.Context(), func(next *models.Settings) error {
		bindErr = binding.JSON.BindBody(body, next)
		return bindErr
	})
	if bindErr != nil {
		badRequest(c, bindErr)
		return
	}
	if err != nil {
		respondError(c, h.logger, err, "Failed to update settings")
		return
	}

	c.JSON(http.StatusOK, updated)
}
