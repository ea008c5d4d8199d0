package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/grodonkey/crowdcoach-backend/internal/handlers"
	"github.com/grodonkey/crowdcoach-backend/internal/middleware"
)

type RouterConfig struct {
	AuthHandler    *handlers.AuthHandler
	AuthMiddleware *middleware.AuthMiddleware
	UserHandler    *handlers.UserHandler
	CoachHandler   *handlers.CoachHandler
	DraftHandler   *handlers.DraftHandler
	ProjectHandler *handlers.ProjectHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	// Cors
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
			"http://localhost:5173",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With", "X-Session-ID"},
		AllowCredentials: true,
	}))

	// ===============
	// || Public    ||
	// ===============
	router.GET("/healthcheck", handlers.HealthCheck)
	api := router.Group("/api")
	{
		api.POST("/auth/register", cfg.AuthHandler.Register)
		api.POST("/auth/login", cfg.AuthHandler.Login)
		api.GET("/projects/:slug", cfg.ProjectHandler.GetBySlug)
	}

	// =====================================
	// || Coach (anonymous or logged in)  ||
	// =====================================
	coach := api.Group("/ai-coach")
	coach.Use(cfg.AuthMiddleware.OptionalAuth())
	{
		coach.GET("/settings", cfg.CoachHandler.Settings)
		coach.POST("/generate", cfg.CoachHandler.Generate)
		coach.GET("/threads/:id", cfg.CoachHandler.GetThread)
		coach.POST("/drafts/generate/:id", cfg.DraftHandler.Generate)
		coach.GET("/drafts/:id", cfg.DraftHandler.Get)
		coach.PATCH("/drafts/:id", cfg.DraftHandler.Update)
	}

	// ===============
	// || Protected ||
	// ===============
	protected := api.Group("/")
	protected.Use(cfg.AuthMiddleware.RequireAuth())
	// Coach
	protected.GET("/ai-coach/threads", cfg.CoachHandler.ListThreads)
	protected.POST("/ai-coach/threads/:id/claim", cfg.CoachHandler.ClaimThread)
	protected.POST("/ai-coach/drafts/:id/convert", cfg.DraftHandler.Convert)
	// User
	protected.GET("/users/me", cfg.UserHandler.GetMe)
	// Projects
	protected.GET("/projects", cfg.ProjectHandler.ListMine)

	return router
}
