package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/fx-rate-scraper/pkg/cache"
	"github.com/Sternrassler/fx-rate-scraper/pkg/client"
	"github.com/Sternrassler/fx-rate-scraper/pkg/config"
	"github.com/Sternrassler/fx-rate-scraper/pkg/logging"
	"github.com/Sternrassler/fx-rate-scraper/pkg/output"
	"github.com/Sternrassler/fx-rate-scraper/pkg/scrape"
)

const shutdownTimeout = 5 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one scrape and returns the process exit code.
func run(ctx context.Context, args []string, stderr io.Writer) int {
	flags := flag.NewFlagSet("fxscrape", flag.ContinueOnError)
	flags.SetOutput(stderr)
	configPath := flags.String("config", getEnv("FXSCRAPE_CONFIG", "settings.yaml"), "path to the YAML settings file")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	cfg, cfgErr := config.Load(*configPath)

	logCfg := cfg.LoggingConfig()
	logCfg.Output = stderr
	logging.Setup(logCfg)

	runID := uuid.New().String()
	log.Logger = log.Logger.With().Str("run_id", runID).Logger()

	if cfgErr != nil {
		log.Error().Err(cfgErr).Str("path", *configPath).Msg("Invalid configuration")
		return 1
	}
	if err := cfg.EnsureOutputDir(); err != nil {
		log.Error().Err(err).Msg("Output directory unusable")
		return 1
	}

	documentCache, closeCache := openCache(ctx, cfg)
	defer closeCache()

	sink, closeSink, err := openSink(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to open output sink")
		return 1
	}
	defer closeSink()

	clientCfg := client.Config{
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.RequestTimeout,
		Retry: client.RetryConfig{
			MaxAttempts: cfg.MaxAttempts,
			Backoff:     cfg.RetryBackoff,
		},
		CacheTTL: cfg.Redis.TTL,
	}
	if documentCache != nil {
		clientCfg.Cache = documentCache
	}
	fetcher, err := client.New(clientCfg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create client")
		return 1
	}

	status := newRunStatus(runID)
	if cfg.MetricsAddr != "" {
		gin.SetMode(gin.ReleaseMode)
		srv := newHTTPServer(cfg.MetricsAddr, setupRouter(status, readinessCheck(documentCache)))
		go func() {
			log.Info().Str("addr", cfg.MetricsAddr).Msg("Status server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("Status server failed")
			}
		}()
		defer gracefulShutdown(srv)
	}

	orchestrator := scrape.NewOrchestrator(fetcher, sink, scrape.Config{
		URL:               cfg.BaseURL,
		LookbackDays:      cfg.Lookback(),
		EntityConcurrency: cfg.Entities(),
		PageConcurrency:   cfg.Pages(),
		Mode:              cfg.Mode(),
		Now:               time.Now,
	})

	summary, err := orchestrator.RunSummary(ctx)
	status.finish(summary, err)
	if err != nil {
		log.Error().Err(err).Msg("Run failed")
		return 1
	}

	log.Info().
		Int("currencies", summary.Currencies).
		Str("output_dir", cfg.OutputDir()).
		Msg("Run finished")
	return 0
}

// openCache connects the Redis document cache when configured. An
// unreachable Redis disables caching rather than failing the run.
func openCache(ctx context.Context, cfg config.Config) (*cache.Manager, func()) {
	if cfg.Redis.Addr == "" {
		return nil, func() {}
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	manager := cache.NewManager(redisClient)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := manager.Ping(pingCtx); err != nil {
		log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis unavailable, document cache disabled")
		redisClient.Close()
		return nil, func() {}
	}

	log.Info().Str("addr", cfg.Redis.Addr).Dur("ttl", cfg.Redis.TTL).Msg("Document cache enabled")
	return manager, func() { redisClient.Close() }
}

// openSink returns the CSV sink, fanned out to Postgres when configured.
func openSink(ctx context.Context, cfg config.Config) (output.Sink, func(), error) {
	csvSink := output.NewCSVSink(cfg.OutputDir())
	if cfg.Postgres.DSN == "" {
		return csvSink, func() {}, nil
	}

	pgSink, err := output.OpenPostgresSink(ctx, cfg.Postgres.DSN, cfg.Postgres.Table)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres sink: %w", err)
	}

	log.Info().Str("table", cfg.Postgres.Table).Msg("Postgres sink enabled")
	return chainSinks(pgSink, csvSink), pgSink.Close, nil
}

// chainSinks writes to the database before the file, so a failed
// transaction leaves no CSV behind for that currency.
func chainSinks(db, file output.Sink) output.Sink {
	return output.MultiSink{db, file}
}

func readinessCheck(documentCache *cache.Manager) func(ctx context.Context) error {
	if documentCache == nil {
		return nil
	}
	return documentCache.Ping
}

func newHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func gracefulShutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("Status server shutdown warning")
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
