package main

import (
	"fmt"
	"os"
	"time"

	"github.com/grodonkey/crowdcoach-backend/internal/db"
	"github.com/grodonkey/crowdcoach-backend/internal/handlers"
	"github.com/grodonkey/crowdcoach-backend/internal/logger"
	"github.com/grodonkey/crowdcoach-backend/internal/middleware"
	"github.com/grodonkey/crowdcoach-backend/internal/repos"
	"github.com/grodonkey/crowdcoach-backend/internal/server"
	"github.com/grodonkey/crowdcoach-backend/internal/services"
	"github.com/grodonkey/crowdcoach-backend/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Env
	log.Info("Loading environment variables from main...")
	jwtSecretKey := utils.GetEnv("JWT_SECRET_KEY", "defaultsecret", log)
	accessTokenTTL := utils.GetEnvAsInt("ACCESS_TOKEN_TTL", 3600, log)
	coachCfg := services.CoachConfig{
		MaxAnonymousMessages: utils.GetEnvAsInt("AI_MAX_ANONYMOUS_MESSAGES", 5, log),
		MinMessagesForDraft:  utils.GetEnvAsInt("AI_MIN_MESSAGES_FOR_DRAFT", 3, log),
		MaxAnonymousDrafts:   utils.GetEnvAsInt("AI_MAX_ANONYMOUS_DRAFTS", 2, log),
		ReplyMaxTokens:       utils.GetEnvAsInt("AI_REPLY_MAX_TOKENS", 500, log),
	}

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Warn("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up Repos from main...")
	userRepo := repos.NewUserRepo(thePG, log)
	threadRepo := repos.NewAIThreadRepo(thePG, log)
	messageRepo := repos.NewAIMessageRepo(thePG, log)
	draftRepo := repos.NewAIDraftRepo(thePG, log)
	projectRepo := repos.NewProjectRepo(thePG, log)

	// Services
	log.Info("Setting up Services from main...")
	openaiClient, err := services.NewOpenAIClient(log)
	if err != nil {
		log.Error("Could not init OpenAIClient", "error", err)
		os.Exit(1)
	}
	authService := services.NewAuthService(thePG, log, userRepo, jwtSecretKey, time.Duration(accessTokenTTL)*time.Second)
	userService := services.NewUserService(thePG, log, userRepo)
	coachService := services.NewCoachService(thePG, log, coachCfg, threadRepo, messageRepo, draftRepo, openaiClient)
	draftService := services.NewDraftService(thePG, log, coachCfg, threadRepo, messageRepo, draftRepo, projectRepo, userRepo, openaiClient)
	projectService := services.NewProjectService(thePG, log, projectRepo)

	// Handlers
	log.Info("Setting up handlers from main...")
	authHandler := handlers.NewAuthHandler(log, authService)
	userHandler := handlers.NewUserHandler(log, userService)
	coachHandler := handlers.NewCoachHandler(log, coachService)
	draftHandler := handlers.NewDraftHandler(log, draftService)
	projectHandler := handlers.NewProjectHandler(log, projectService)

	// Middleware
	log.Info("Setting up middleware from main...")
	authMiddleware := middleware.NewAuthMiddleware(log, authService)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		AuthHandler:    authHandler,
		AuthMiddleware: authMiddleware,
		UserHandler:    userHandler,
		CoachHandler:   coachHandler,
		DraftHandler:   draftHandler,
		ProjectHandler: projectHandler,
	})

	port := utils.GetEnv("PORT", "8080", log)
	fmt.Printf("Server listening on :%s\n", port)
	if err := router.Run(":" + port); err != nil {
		log.Warn("Server failed", "error", err)
	}
}
