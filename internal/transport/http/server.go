package http

import (
	"github.com/gin-gonic/gin"

	"askdoc/internal/bootstrap"
	"askdoc/internal/transport/http/handler"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	qaHandler := handler.NewQAHandler(app)

	v1 := router.Group("/api/v1")
	qa := v1.Group("/qa")
	qa.POST("/ask", qaHandler.Ask)
	qa.POST("/uploads", qaHandler.Upload)
	qa.POST("/index", qaHandler.Prewarm)
	qa.GET("/sessions/:id/history", qaHandler.History)
	qa.DELETE("/sessions/:id/history", qaHandler.ClearHistory)

	return router
}
