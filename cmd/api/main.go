package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/scalable-coupon-system/internal/config"
	"github.com/fairyhunter13/scalable-coupon-system/internal/handler"
	"github.com/fairyhunter13/scalable-coupon-system/internal/redisconn"
	"github.com/fairyhunter13/scalable-coupon-system/internal/repository"
	"github.com/fairyhunter13/scalable-coupon-system/internal/reservation"
	"github.com/fairyhunter13/scalable-coupon-system/internal/service"
	customvalidator "github.com/fairyhunter13/scalable-coupon-system/internal/validator"
	"github.com/fairyhunter13/scalable-coupon-system/pkg/database"
)

func main() {
	// Load configuration first
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Initialize zerolog based on configuration
	initLogger(cfg)

	for _, warning := range cfg.WarnIfDefaultCredentials() {
		log.Warn().Msg(warning)
	}

	// Create context for startup
	ctx := context.Background()

	// Initialize database pool with retry
	pool, err := database.NewPool(ctx, cfg.DB.DSN(), 5)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}

	// Connect to every configured coordination node.
	redisPool, err := redisconn.Open(cfg.Redis.NodeList(), redisconn.Options{
		DialTimeout:  cfg.Redis.NodeTimeout(),
		PoolSize:     20,
		MinIdleConns: 5,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to configure coordination node connections")
	}
	if unreachable := redisPool.Ping(ctx); len(unreachable) > 0 {
		log.Warn().Strs("unreachable_nodes", unreachable).Msg("one or more coordination nodes unreachable at startup")
	}

	// Initialize Fiber with production-ready configuration
	app := fiber.New(fiber.Config{
		AppName:      "Scalable Inventory Reservation Service",
		ReadTimeout:  30 * time.Second,  // Max time to read request
		WriteTimeout: 30 * time.Second,  // Max time to write response
		IdleTimeout:  120 * time.Second, // Max time for keep-alive connections
		BodyLimit:    1 * 1024 * 1024,   // 1MB body limit (explicit, prevents large payloads)
	})

	// Middleware
	app.Use(recover.New())
	app.Use(requestid.New()) // Adds X-Request-ID header to all requests
	app.Use(logger.New())

	// Initialize validator
	validate := customvalidator.New()

	// Coordination layer: lock strategy (single-node or quorum, per config)
	// and the per-node atomic stock primitive share one node index space.
	locker, stocks := reservation.BuildLocker(redisPool, cfg.Redis)

	// Durable persistence layer
	productRepo := repository.NewProductRepository(pool)
	purchaseRepo := repository.NewPurchaseRepository(pool)

	// Reservation coordinator ties locking, stock, and persistence together.
	coordinator := reservation.New(
		locker,
		stocks,
		productRepo,
		purchaseRepo,
		cfg.Redis.LockTTL(),
		cfg.Reservation.SafetyMargin(),
		cfg.Redis.NodeTimeout(),
		cfg.Retry.MaxRetries,
		cfg.Retry.BaseDelay(),
		cfg.Retry.MaxDelay(),
	)

	// Product service seeds coordination-node stock on creation.
	stockSeeders := make([]service.StockSeeder, len(stocks))
	for i, s := range stocks {
		stockSeeders[i] = s
	}
	productService := service.NewProductService(productRepo, purchaseRepo, stockSeeders)

	productHandler := handler.NewProductHandler(productService, validate)
	purchaseHandler := handler.NewPurchaseHandler(coordinator, validate)

	// Health handler degrades to unhealthy when fewer than a quorum of
	// coordination nodes are reachable, in addition to the database check.
	quorum := len(cfg.Redis.NodeList())/2 + 1
	healthHandler := handler.NewHealthHandlerWithRedis(pool, redisPool, len(cfg.Redis.NodeList()), quorum)
	app.Get("/health", healthHandler.Check)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Product and purchase routes
	app.Post("/api/products", productHandler.CreateProduct)
	app.Get("/api/products/:name", productHandler.GetProduct)
	app.Post("/api/purchases", purchaseHandler.CreatePurchase)

	// Start server with graceful shutdown
	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("starting server")
		if err := app.Listen(":" + cfg.Server.Port); err != nil {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	log.Info().Int("timeout_seconds", cfg.Server.ShutdownTimeout).Msg("shutting down server...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout)*time.Second,
	)
	defer shutdownCancel()

	// Shutdown server (waits for in-flight requests)
	log.Info().Msg("waiting for in-flight requests to complete...")
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during server shutdown")
	}

	// Close database pool and coordination node connections AFTER server
	// shutdown (even if shutdown timed out)
	log.Info().Msg("closing database connections...")
	pool.Close()
	log.Info().Msg("closing coordination node connections...")
	if err := redisPool.Close(); err != nil {
		log.Error().Err(err).Msg("error closing coordination node connections")
	}
	log.Info().Msg("server stopped")
}

// initLogger configures zerolog based on the application configuration.
func initLogger(cfg *config.Config) {
	// Set log level
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Configure output format
	if cfg.Log.Pretty {
		// Human-readable output for development
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().Timestamp().Logger()
	} else {
		// JSON output for production
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
}
