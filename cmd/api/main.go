package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/imessage-ai-bridge/internal/api/router"
	"github.com/wolfman30/imessage-ai-bridge/internal/channels/bluebubbles"
	appconfig "github.com/wolfman30/imessage-ai-bridge/internal/config"
	"github.com/wolfman30/imessage-ai-bridge/internal/conversation"
	"github.com/wolfman30/imessage-ai-bridge/internal/events"
	"github.com/wolfman30/imessage-ai-bridge/internal/observability/metrics"
	"github.com/wolfman30/imessage-ai-bridge/pkg/logging"
)

func main() {
	// Load .env in development; ignored when absent.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting imessage-ai-bridge",
		"env", cfg.Env,
		"port", cfg.Port,
		"dedup_backend", cfg.DedupBackend,
	)

	ctx := context.Background()

	seen, cleanup := setupProcessedSet(ctx, cfg, logger)
	defer cleanup()
	classifier := events.NewClassifier(seen)

	llm, err := conversation.NewGeminiLLMClient(ctx, cfg.GoogleAIAPIKey, cfg.GeminiModelID)
	if err != nil {
		logger.Error("failed to create gemini client", "error", err)
		os.Exit(1)
	}
	defer llm.Close()
	replier := conversation.NewReplier(llm, cfg.GenerateTimeout, logger.With("component", "replier"))

	bbClient := bluebubbles.NewClient(cfg.BlueBubblesURL, cfg.BlueBubblesPassword)

	metricsHandler, bridgeMetrics := setupBridgeMetrics()
	webhookHandler := bluebubbles.NewWebhookHandler(
		classifier,
		bbClient,
		replier,
		bridgeMetrics,
		logger.With("component", "webhook"),
		cfg.Env,
	)

	r := router.New(&router.Config{
		WebhookHandler: webhookHandler,
		MetricsHandler: metricsHandler,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// setupProcessedSet picks the duplicate-suppression backend from config.
// The returned cleanup closes any backing connections.
func setupProcessedSet(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (events.ProcessedSet, func()) {
	switch cfg.DedupBackend {
	case appconfig.DedupBackendRedis:
		opts := &redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Error("failed to connect to redis", "error", err, "addr", cfg.RedisAddr)
			os.Exit(1)
		}
		logger.Info("using redis dedup backend", "addr", cfg.RedisAddr, "ttl", cfg.DedupTTL)
		return events.NewRedisSet(client, cfg.DedupTTL), func() { client.Close() }

	case appconfig.DedupBackendPostgres:
		pool := connectPostgresPool(ctx, cfg.DatabaseURL, logger)
		if pool == nil {
			logger.Error("postgres dedup backend requires DATABASE_URL")
			os.Exit(1)
		}
		logger.Info("using postgres dedup backend")
		return events.NewPostgresSet(pool), pool.Close

	default:
		logger.Info("using in-memory dedup backend", "capacity", cfg.DedupCapacity)
		return events.NewMemorySet(cfg.DedupCapacity), func() {}
	}
}

// connectPostgresPool returns nil when no database URL is configured.
func connectPostgresPool(ctx context.Context, databaseURL string, logger *logging.Logger) *pgxpool.Pool {
	if databaseURL == "" {
		return nil
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		logger.Error("failed to create postgres pool", "error", err)
		os.Exit(1)
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Error("failed to ping postgres", "error", err)
		os.Exit(1)
	}
	return pool
}

// setupBridgeMetrics wires a dedicated registry so tests can run in isolation
// from the default one.
func setupBridgeMetrics() (http.Handler, *metrics.BridgeMetrics) {
	reg := prometheus.NewRegistry()
	m := metrics.NewBridgeMetrics(reg)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), m
}
