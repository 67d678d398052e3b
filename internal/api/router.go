package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fieldops/canvass-backend-go/internal/config"
	"github.com/fieldops/canvass-backend-go/internal/handler"
	"github.com/fieldops/canvass-backend-go/internal/middleware"
	"github.com/fieldops/canvass-backend-go/internal/service"
)

// SetupRouter wires the HTTP surface of the canvassing backend
func SetupRouter(cfg *config.Config, sessionService *service.SessionService, walkListService *service.WalkListService) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger())

	// CORS for the mobile UI shell
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Canvass Backend API is running",
		})
	})

	authHandler := handler.NewAuthHandler(cfg.JWTSecret)
	sessionHandler := handler.NewSessionHandler(sessionService)
	walkListHandler := handler.NewWalkListHandler(walkListService)

	api := r.Group("/api/v1")
	api.Use(middleware.RateLimit(300, time.Minute))
	{
		api.POST("/auth/token", authHandler.IssueToken)

		authed := api.Group("")
		authed.Use(middleware.Auth(cfg.JWTSecret))
		{
			walklists := authed.Group("/walklists")
			{
				walklists.POST("", walkListHandler.Create)
				walklists.GET("", walkListHandler.List)
				walklists.GET("/:id", walkListHandler.GetByID)
			}

			sessions := authed.Group("/sessions")
			{
				sessions.POST("", sessionHandler.StartSession)
				sessions.GET("/:id", sessionHandler.GetSession)
				sessions.DELETE("/:id", sessionHandler.EndSession)
				sessions.POST("/:id/resume", sessionHandler.ResumeSession)

				sessions.POST("/:id/location", sessionHandler.PushFix)
				sessions.POST("/:id/location-error", sessionHandler.ReportFailure)
				sessions.GET("/:id/locate", sessionHandler.Locate)

				sessions.PATCH("/:id/fields", sessionHandler.UpdateFields)
				sessions.POST("/:id/advance", sessionHandler.Advance)
				sessions.POST("/:id/skip", sessionHandler.Skip)
				sessions.POST("/:id/retreat", sessionHandler.Retreat)
				sessions.POST("/:id/undo", sessionHandler.Undo)
				sessions.POST("/:id/redo", sessionHandler.Redo)
				sessions.POST("/:id/retry", sessionHandler.RetryVerification)
				sessions.POST("/:id/reverify", sessionHandler.Reverify)
			}
		}
	}

	return r
}
