package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog/log"

	httpapi "github.com/i474232898/ambient-history-cache/internal/api/http"
	"github.com/i474232898/ambient-history-cache/internal/config"
	"github.com/i474232898/ambient-history-cache/internal/logging"
	"github.com/i474232898/ambient-history-cache/internal/metrics"
	"github.com/i474232898/ambient-history-cache/internal/scheduler"
	"github.com/i474232898/ambient-history-cache/internal/settings"
	"github.com/i474232898/ambient-history-cache/internal/store"
	"github.com/i474232898/ambient-history-cache/internal/weather"
	"github.com/i474232898/ambient-history-cache/internal/weather/providers"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logging.Init(cfg.LogLevel, cfg.LogFormat)

	cache, closeStore, err := openStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open cache store")
	}
	defer closeStore()

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	var provider weather.Provider
	if cfg.UseMockData {
		log.Info().Msg("using mock provider")
		provider = providers.NewMockProvider(time.Now().UnixNano())
	} else {
		provider = providers.NewAmbientProvider(httpClient, cfg.AmbientBaseURL, cfg.AmbientAPIKey, cfg.AmbientApplicationKey)
	}

	m := metrics.New()
	service := weather.NewService(cache, provider, cfg.DeviceMAC, cfg.Fetcher,
		weather.WithObserver(m),
		weather.WithCurrentDayRefresh(cfg.RefreshToday),
		weather.WithLocation(cfg.PatternLocation),
	)

	testConnection(service, cfg.HTTPTimeout)

	// Scheduler that keeps the trailing window cached.
	sched := scheduler.New(service, cfg.WarmInterval, cfg.WarmWindow)
	if err := sched.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}
	defer sched.Stop()

	app := fiber.New(fiber.Config{
		AppName:               "ambient-history-cache",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	httpapi.RegisterRoutes(app, httpapi.Deps{
		Service:      service,
		Settings:     settings.NewFileStore(cfg.SettingsFile),
		Metrics:      m,
		PatternTimes: cfg.PatternTimes,
	})

	go func() {
		log.Info().Str("port", cfg.Port).Str("provider", provider.Name()).Msg("http server listening")
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Error().Err(err).Msg("fiber server stopped")
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during shutdown")
	}
}

func openStore(cfg *config.AppConfig) (weather.Store, func(), error) {
	switch cfg.CacheBackend {
	case config.BackendSQLite:
		s, err := store.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("path", cfg.SQLitePath).Msg("using sqlite cache")
		return s, func() { _ = s.Close() }, nil
	case config.BackendMemory:
		log.Warn().Msg("using in-memory cache; data is lost on restart")
		return store.NewMemoryStore(), func() {}, nil
	default:
		log.Info().Str("path", cfg.CacheFile).Msg("using json file cache")
		return store.NewFileStore(cfg.CacheFile), func() {}, nil
	}
}

// testConnection asks for the latest record once so a bad key or MAC shows
// up in the logs at startup rather than on the first request.
func testConnection(service *weather.Service, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	r, err := service.Current(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("station connection test failed")
		return
	}
	log.Info().Time("last_reading", r.Date).Msg("station connection ok")
}
