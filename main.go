package main

import (
	"log"

	"github.com/gin-gonic/gin"

	"bankadvisor/internal/api"
	"bankadvisor/internal/config"
	"bankadvisor/internal/logging"
	"bankadvisor/internal/redis"
	"bankadvisor/internal/service/advisor"
	"bankadvisor/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.New(cfg.LogLevel)

	db, err := storage.Open(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	if err := storage.Migrate(db, cfg.DatabaseDriver); err != nil {
		log.Fatalf("migrate database: %v", err)
	}
	store := storage.NewStore(db)

	// Redis is optional: without it the rate limiter is a pass-through.
	var limiter *redis.Client
	if cfg.RedisAddr != "" {
		limiter, err = redis.NewClient(redis.Options{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			log.Fatalf("create redis client: %v", err)
		}
		defer limiter.Close()
	}

	advisorService := advisor.NewService(advisor.Config{
		APIKey:  cfg.UpstreamAPIKey,
		BaseURL: cfg.UpstreamBaseURL,
		Model:   cfg.UpstreamModel,
	}, store, logger)
	if cfg.UpstreamAPIKey == "" {
		logger.Warn("UPSTREAM_API_KEY not set, advisor requests will fail until configured")
	}

	handlers := api.NewHandler(advisorService, store, limiter, cfg.RateLimit, cfg.UploadDir, logger)

	router := gin.Default()
	handlers.RegisterRoutes(router)

	if err := router.Run(cfg.ServerAddress); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
