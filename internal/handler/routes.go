// internal/handler/routes.go
package handler

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the fraud API under rg.
func RegisterRoutes(rg *gin.RouterGroup, fraud *FraudHandler, reviews *ReviewHandler, settings *SettingsHandler) {
	g := rg.Group("/fraud")
	{
		g.POST("/analyze", fraud.AnalyzeTransaction)
		g.GET("/analysis/:transaction_id", fraud.GetAnalysis)
		g.GET("/report", fraud.GetReport)

		g.GET("/reviews", reviews.ListReviews)
		g.POST("/reviews/:id/decision", reviews.Decide)

		g.GET("/settings", settings.GetSettings)
		g.PUT("/settings", settings.UpdateSettings)
	}
}
