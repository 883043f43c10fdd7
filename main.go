package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"expense-tracker-gateway/config"
	"expense-tracker-gateway/internal/ai"
	"expense-tracker-gateway/internal/api"
	"expense-tracker-gateway/internal/auth"
	"expense-tracker-gateway/internal/database"
	"expense-tracker-gateway/internal/license"
	"expense-tracker-gateway/internal/logging"
	"expense-tracker-gateway/internal/storage"
	"expense-tracker-gateway/internal/vault"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := logging.New(&logging.Config{
		Level:      cfg.LoggingConfig.Level,
		JSONFormat: cfg.LoggingConfig.JSONFormat,
		Component:  "gateway",
	})
	logger.Info().Msg("structured logging initialized")

	ctx := context.Background()

	// Overlay secrets from Vault when enabled
	vaultClient, err := vault.NewClient(cfg.VaultConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create vault client")
	}
	if vaultClient != nil {
		if err := vaultClient.ApplySecrets(ctx, cfg); err != nil {
			log.Fatal().Err(err).Msg("failed to load secrets from vault")
		}
	}

	if cfg.AdminConfig.Secret == "" {
		log.Fatal().Msg("ADMIN_SECRET must be configured")
	}

	// License record store
	var repo license.Repository
	if cfg.RedisConfig.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisConfig.Address,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
			PoolSize: cfg.RedisConfig.PoolSize,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		repo = license.NewRedisRepository(client)
		log.Info().Str("address", cfg.RedisConfig.Address).Msg("license store: redis")
	} else {
		repo = license.NewMemoryRepository()
		log.Warn().Msg("license store: in-memory (records are lost on restart)")
	}

	// Usage audit log
	var audit auth.AuditRecorder
	if cfg.DBConfig.Enabled {
		db, err := database.NewDB(database.Config{
			Host:     cfg.DBConfig.Host,
			Port:     cfg.DBConfig.Port,
			User:     cfg.DBConfig.User,
			Password: cfg.DBConfig.Password,
			Database: cfg.DBConfig.Database,
			SSLMode:  cfg.DBConfig.SSLMode,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()

		if err := db.RunMigrations(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to run migrations")
		}
		audit = database.NewAuditRepository(db)
	}

	// Object storage
	store, err := storage.NewMinioStore(storage.Config{
		Endpoint:  cfg.StorageConfig.Endpoint,
		AccessKey: cfg.StorageConfig.AccessKey,
		SecretKey: cfg.StorageConfig.SecretKey,
		Bucket:    cfg.StorageConfig.Bucket,
		Region:    cfg.StorageConfig.Region,
		Secure:    cfg.StorageConfig.Secure,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create storage client")
	}
	mediator := storage.NewMediator(store)

	// Extraction client
	extractor := ai.NewClient(&ai.ClientConfig{
		Provider:  ai.Provider(cfg.AIConfig.Provider),
		APIKey:    aiKey(cfg),
		Model:     cfg.AIConfig.Model,
		MaxTokens: cfg.AIConfig.MaxTokens,
		Timeout:   cfg.AIConfig.Timeout,
	})

	server := api.NewServer(api.ServerConfig{
		Port:           cfg.ServerConfig.Port,
		Host:           cfg.ServerConfig.Host,
		AllowedOrigins: api.SplitOrigins(cfg.ServerConfig.AllowedOrigins),
		AdminSecret:    cfg.AdminConfig.Secret,
		ProductionMode: cfg.ServerConfig.ProductionMode,
		ReadTimeout:    time.Duration(cfg.ServerConfig.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.ServerConfig.WriteTimeout) * time.Second,
	}, repo, extractor, mediator, audit)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.ServerConfig.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}
}

func aiKey(cfg *config.Config) string {
	if cfg.AIConfig.Provider == "openai" {
		return cfg.AIConfig.OpenAIAPIKey
	}
	return cfg.AIConfig.GeminiAPIKey
}
