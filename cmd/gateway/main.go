package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"market-gateway/internal/api/handler"
	"market-gateway/internal/api/router"
	"market-gateway/internal/auth"
	"market-gateway/internal/config"
	"market-gateway/internal/gateway"
	"market-gateway/internal/loggers"
	"market-gateway/internal/ratelimit"
	"market-gateway/internal/registry"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// Load environment variables
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := loggers.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("Gateway stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	log.Info("Starting Market Gateway",
		zap.String("environment", cfg.Environment),
		zap.String("port", cfg.Server.Port),
		zap.Int("services", len(cfg.Gateway.Services)),
		zap.Bool("rate_limit", cfg.RateLimit.Enabled),
	)

	reg, err := registry.New(cfg.Gateway.Services)
	if err != nil {
		return fmt.Errorf("failed to build service registry: %w", err)
	}

	fwd := gateway.NewHTTPForwarder(cfg, reg.All(), log)
	defer fwd.Close()

	gw := gateway.New(reg, fwd)

	var (
		admitter gateway.Admitter
		pinger   handler.Pinger
	)
	if cfg.Redis.Active || cfg.RateLimit.Enabled {
		rdb := ratelimit.NewRedisClient(cfg.Redis)
		defer rdb.Close()

		store := ratelimit.NewRedisStore(rdb)
		if cfg.Redis.Active {
			pinger = store
		}

		if cfg.RateLimit.Enabled {
			limiter, err := ratelimit.New(store, cfg.RateLimit.Threshold, cfg.RateLimit.Interval)
			if err != nil {
				return fmt.Errorf("failed to build rate limiter: %w", err)
			}
			admitter = limiter
			log.Info("Rate limiter enabled",
				zap.Int64("threshold", limiter.Threshold()),
				zap.Duration("interval", limiter.Window()),
				zap.String("redis", cfg.Redis.Addr()),
			)
		}
	}

	delegate := auth.NewDelegate(gw, cfg.Gateway.AuthService, log)
	pipeline := gateway.NewPipeline(admitter, delegate)

	app := router.NewApp(cfg, log, router.Dependencies{
		Gateway:  gw,
		Pipeline: pipeline,
		Services: reg.All(),
		Redis:    pinger,
		Breakers: fwd,
	})

	// Start server in a goroutine
	addr := cfg.Server.Host + ":" + cfg.Server.Port
	serverErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", addr))
		serverErr <- app.Listen(addr)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case <-quit:
	}
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	log.Info("Server stopped gracefully")
	return nil
}
