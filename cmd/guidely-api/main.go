// Package main is the entry point for the guidely-api server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/guidely/guidely-api/internal/auth"
	"github.com/guidely/guidely-api/internal/config"
	"github.com/guidely/guidely-api/internal/constants"
	"github.com/guidely/guidely-api/internal/crypto"
	"github.com/guidely/guidely-api/internal/database"
	"github.com/guidely/guidely-api/internal/database/migrations"
	"github.com/guidely/guidely-api/internal/http/handlers"
	"github.com/guidely/guidely-api/internal/http/mw"
	"github.com/guidely/guidely-api/internal/http/routes"
	"github.com/guidely/guidely-api/internal/llm"
	"github.com/guidely/guidely-api/internal/logging"
	"github.com/guidely/guidely-api/internal/repository"
	"github.com/guidely/guidely-api/internal/service"
	"github.com/guidely/guidely-api/internal/shutdown"
	"github.com/guidely/guidely-api/internal/version"
	"github.com/guidely/guidely-api/internal/worker"
)

func main() {
	// Initialize logger with TTY detection and format control
	logger := logging.SetDefault()

	// Log version info first thing
	v := version.Get()
	logger.Info("starting guidely-api",
		"version", v.Version,
		"commit", v.Commit,
		"built", v.Date,
		"go_version", v.GoVersion,
	)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize database
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	// Run migrations (with logging for each migration applied)
	if err := database.MigrateWithLogger(db, logger); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Log current schema version
	schemaVersion, err := migrations.GetLatestVersion(db)
	if err != nil {
		logger.Warn("failed to get schema version", "error", err)
	} else if schemaVersion != "" {
		migrationCount, _ := migrations.GetMigrationCount(db)
		logger.Info("database schema ready", "schema_version", schemaVersion, "migrations_applied", migrationCount)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Chat content is encrypted at rest with a key derived from the JWT secret
	encryptor, err := crypto.NewEncryptor(cfg.ContentKey)
	if err != nil {
		logger.Error("failed to initialize content encryption", "error", err)
		os.Exit(1)
	}

	// Initialize repositories
	repos := repository.NewRepositories(db, encryptor)

	// Legacy usage mirror (best effort, optional)
	var mirror repository.LegacyMirror = repository.NoopMirror{}
	if cfg.MirrorEnabled() {
		mongoMirror, err := repository.NewMongoMirror(ctx, cfg.MongoURL, cfg.MongoDatabase)
		if err != nil {
			logger.Warn("legacy usage mirror unavailable, continuing without it", "error", err)
		} else {
			mirror = mongoMirror
			defer func() { _ = mongoMirror.Close(context.Background()) }()
			logger.Info("legacy usage mirror enabled", "database", cfg.MongoDatabase)
		}
	}

	// LLM provider registry
	registry := llm.NewRegistry(cfg, logger)

	// Initialize services
	services := service.NewServices(cfg, repos, mirror, registry, logger)

	// JWT verifier for session tokens
	verifier := auth.NewVerifier(cfg.JWTSecret)

	// Background retention worker for the usage ledger
	retention := worker.New(repository.NewSQLiteUsageRepository(db), worker.Config{}, logger)
	retention.Start(ctx)

	// Idle monitor for scale-to-zero hosting (disabled unless IDLE_TIMEOUT set)
	idleMonitor := shutdown.NewIdleMonitor(shutdown.IdleMonitorConfig{
		Timeout:      cfg.IdleTimeout,
		Logger:       logger,
		ExcludePaths: []string{"/healthz", "/readyz"},
	})
	idleMonitor.Start()

	// Create router
	router := chi.NewRouter()

	// Global middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(mw.ClientIP())
	router.Use(mw.APIVersion())
	router.Use(idleMonitor.Middleware)

	// S3-backed configuration loaders
	// Both use the same bucket with different keys under config/
	var logFiltersLoader *mw.LogFiltersLoader
	if cfg.StorageEnabled {
		s3Client, err := config.NewS3Client(ctx, cfg)
		if err != nil {
			logger.Warn("S3 client init failed, remote config disabled", "error", err)
		} else {
			// Plan settings (override hardcoded quotas from S3)
			constants.InitPlanLoader(constants.PlanSettingsConfig{
				S3Client: s3Client,
				Bucket:   cfg.StorageBucket,
				Key:      cfg.PlanSettingsKey,
				Logger:   logger,
			})

			// Log filters (dynamic log filtering from S3)
			logFiltersLoader = mw.NewLogFiltersLoader(mw.LogFiltersConfig{
				SettingsLoaderConfig: config.SettingsLoaderConfig{
					S3Client: s3Client,
					Bucket:   cfg.StorageBucket,
					Logger:   logger,
				},
			})
			logFiltersLoader.Start(ctx)

			logger.Info("S3 config loaders enabled",
				"bucket", cfg.StorageBucket,
				"configs", []string{cfg.PlanSettingsKey, "config/logfilters.json"},
			)
		}
	}

	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	// Request timeout middleware with different timeouts per endpoint type
	router.Use(mw.Timeout(mw.TimeoutConfig{
		Default:  constants.DefaultRequestTimeout,
		Extended: constants.GenerationRequestTimeout,
		// Model inference gets the extended timeout
		ExtendedPatterns: []string{"/generate", "/messages"},
	}))

	// CORS configuration
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link", "X-Request-ID", "X-API-Version", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Request size limit - image payloads are inlined as base64
	router.Use(middleware.RequestSize(constants.MaxRequestBodySize))

	// Global rate limit by IP (fallback for unauthenticated requests)
	router.Use(httprate.LimitByIP(constants.GlobalIPRateLimitPerMinute, time.Minute))

	// Global concurrency throttle
	router.Use(middleware.Throttle(constants.GlobalConcurrencyLimit))

	// Handler implementations shared across route groups
	h := &routes.Handlers{
		Readyz:   handlers.NewReadyzHandler(db),
		Generate: handlers.NewGenerateHandler(services.Generate, services.Guest),
		Chat:     handlers.NewChatHandler(services.Chat),
		Usage:    handlers.NewUsageHandler(services.Usage),
	}

	// Main API with OpenAPI docs
	api := humachi.New(router, routes.NewHumaConfig(cfg.BaseURL))
	routes.RegisterPublic(api, h)

	// K8s probes (no docs needed)
	hiddenAPI := humachi.New(router, routes.NewUndocumentedConfig())
	routes.RegisterHidden(hiddenAPI, h)

	// Generate routes: token optional, anonymous callers metered as guests
	router.Group(func(r chi.Router) {
		r.Use(mw.OptionalAuth(verifier))
		generateAPI := humachi.New(r, routes.NewUndocumentedConfig())
		routes.RegisterGenerate(generateAPI, h)
	})

	// Protected routes: bearer token required
	router.Group(func(r chi.Router) {
		r.Use(mw.Auth(verifier))
		protectedAPI := humachi.New(r, routes.NewUndocumentedConfig())
		routes.RegisterProtected(protectedAPI, h)
	})

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: constants.GenerationRequestTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown on signal or idle timeout
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

		select {
		case sig := <-sigChan:
			logger.Info("shutting down server", "signal", sig.String())
		case <-idleMonitor.ShutdownChan():
			logger.Info("shutting down server", "reason", "idle timeout")
		}

		cancel()
		retention.Stop()
		idleMonitor.Stop()
		if logFiltersLoader != nil {
			logFiltersLoader.Stop()
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
	}()

	// Start server
	logger.Info("starting server", "port", cfg.Port, "base_url", cfg.BaseURL)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
