package main

import (
	"context"
	"database/sql"
	"embed"
	"log"
	"net/http"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for migrations
	"go.uber.org/zap"

	"github.com/pulsedash/analytics-engine/pkg/cache"
	"github.com/pulsedash/analytics-engine/pkg/config"
	"github.com/pulsedash/analytics-engine/pkg/database"
	"github.com/pulsedash/analytics-engine/pkg/handlers"
	"github.com/pulsedash/analytics-engine/pkg/logging"
	"github.com/pulsedash/analytics-engine/pkg/middleware"
	"github.com/pulsedash/analytics-engine/pkg/repositories"
	"github.com/pulsedash/analytics-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

//go:embed migrations/*.sql
var migrations embed.FS

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("database", cfg.Database.Host),
		zap.String("redis", cfg.Redis.Host))

	ctx := context.Background()

	db, err := database.NewConnection(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	migrationDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		logger.Fatal("Failed to open migration connection", zap.Error(err))
	}
	if err := database.RunMigrations(migrationDB, migrations, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	_ = migrationDB.Close()

	redisClient, err := database.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}

	store := cache.NewNoopStore()
	if redisClient != nil {
		store = cache.NewRedisStore(redisClient)
	} else {
		logger.Warn("Redis not configured, running without cache")
	}
	queryCache := cache.New(store, cfg.Cache.MappingTTL(), cfg.Cache.ConfigTTL(), logger)

	repo := repositories.NewDataSourceConfigRepository(db)
	resolver := services.NewConfigResolver(repo, queryCache)
	executor := services.NewQueryExecutor(services.NewAnalyticsDB(db), queryCache, resolver, &cfg.Cache, &cfg.Query, logger)
	queryService := services.NewQueryService(executor, resolver, repo, queryCache, &cfg.Query, logger)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewAnalyticsHandler(queryService, logger).RegisterRoutes(mux)

	handler := middleware.RequestLogger(logger)(mux)

	addr := cfg.BindAddr + ":" + cfg.Port
	logger.Info("Starting analytics-engine", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}
