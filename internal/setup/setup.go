// Package setup bootstraps the shared application dependencies:
// configuration, logging, Postgres, Redis and the platform client.
package setup

import (
	"context"
	"log"

	"github.com/disgoorg/disgo/rest"
	"github.com/quorumbot/quorum/internal/database"
	"github.com/quorumbot/quorum/internal/platform"
	platformdiscord "github.com/quorumbot/quorum/internal/platform/discord"
	"github.com/quorumbot/quorum/internal/redis"
	"github.com/quorumbot/quorum/internal/setup/config"
	"go.uber.org/zap"
)

// App bundles all core dependencies needed by the application. Each
// field represents a subsystem that needs initialization and cleanup.
type App struct {
	Config       *config.Config  // Application configuration
	Logger       *zap.Logger     // Main application logger
	DBLogger     *zap.Logger     // Database-specific logger
	DB           database.Client // Database connection pool
	RedisManager *redis.Manager  // Redis connection manager
	Platform     platform.Client // Chat platform REST adapter
}

// InitializeApp bootstraps all application dependencies in order,
// ensuring each component has its requirements available.
func InitializeApp(ctx context.Context, logDir string) (*App, error) {
	cfg, _, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	// Logging comes up first to capture setup issues.
	logger, dbLogger, err := GetLoggers(logDir, cfg.Common.Debug.LogLevel, cfg.Common.Debug.MaxLogsToKeep)
	if err != nil {
		return nil, err
	}

	redisManager := redis.NewManager(&cfg.Common.Redis, logger)

	db, err := database.NewConnection(ctx, &cfg.Common.PostgreSQL, dbLogger.Named("database"), true)
	if err != nil {
		return nil, err
	}

	// The REST-only client serves the workers; the gateway client in
	// internal/bot owns its own connection.
	restClient := rest.New(rest.NewClient(cfg.Bot.Discord.Token))
	platformClient := platformdiscord.NewClient(restClient, logger)

	return &App{
		Config:       cfg,
		Logger:       logger,
		DBLogger:     dbLogger.Named("database"),
		DB:           db,
		RedisManager: redisManager,
		Platform:     platformClient,
	}, nil
}

// Cleanup shuts down components in reverse initialization order. Logs
// but does not fail on cleanup errors so every component gets a try.
func (s *App) Cleanup(_ context.Context) {
	if err := s.Logger.Sync(); err != nil {
		log.Printf("Failed to sync logger: %v", err)
	}

	if err := s.DBLogger.Sync(); err != nil {
		log.Printf("Failed to sync DB logger: %v", err)
	}

	if err := s.DB.Close(); err != nil {
		log.Printf("Failed to close database connection: %v", err)
	}

	s.RedisManager.Close()
}
