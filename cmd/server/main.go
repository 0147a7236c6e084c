package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"

	"toolshed/internal/api"
	"toolshed/internal/config"
	"toolshed/internal/database"
	"toolshed/internal/domain"
	"toolshed/internal/events"
	"toolshed/internal/export"
	"toolshed/internal/logging"
	"toolshed/internal/metrics"
	"toolshed/internal/models"
	"toolshed/internal/repository"
	"toolshed/internal/service"
	"toolshed/internal/worker"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer func() { _ = closer.Close() }()
	}

	db, err := initDatabase(cfg, &logger)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient := initRedis(cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	var calendarCache *repository.RedisCalendarCache
	if redisClient != nil {
		calendarCache = repository.NewRedisCalendarCache(redisClient, cfg.Booking.CalendarCacheTTL())
	}

	eventBus := events.NewBus()

	reconcilerLogger := logging.Component(&logger, "reconciler")
	reconciler := worker.NewReconciler(db, eventBus, redisClient, worker.RetryPolicy{
		MaxRetries:   cfg.Booking.ReconcileMaxRetries,
		InitialDelay: time.Duration(cfg.Booking.ReconcileInitialDelay) * time.Second,
	}, &reconcilerLogger)

	serviceLogger := logging.Component(&logger, "service")
	// a typed nil must not reach the interface field
	var cache domain.CalendarCache
	if calendarCache != nil {
		cache = calendarCache
	}
	bookings := service.NewBookingService(db, eventBus, reconciler, cache, cfg.Booking.MaxAdvanceDays, &serviceLogger)
	coordinations := service.NewCoordinationService(db, eventBus, &serviceLogger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go reconciler.Start(ctx)

	startMetrics(ctx, cfg, &logger)

	apiLogger := logging.Component(&logger, "api")
	httpServer := api.NewHTTPServer(cfg.API, bookings, coordinations, &apiLogger)
	wireExports(httpServer, db, cfg, &logger)
	if calendarCache != nil {
		httpServer.WithWriteLimiter(calendarCache, cfg.API.RateLimit.UserWriteLimit, cfg.API.RateLimit.UserWriteWindow())
	}

	return serve(ctx, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "server").Logger()

	return cfg, logger, closer, nil
}

func initDatabase(cfg *config.Config, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}

	resources, err := loadResources(logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	for i := range resources {
		if err := db.SeedResource(context.Background(), &resources[i]); err != nil {
			db.Close()
			return nil, fmt.Errorf("seed resource %s: %w", resources[i].Name, err)
		}
	}
	if len(resources) > 0 {
		logger.Info().Int("count", len(resources)).Msg("resources seeded")
	}
	return db, nil
}

// loadResources reads the shared-resource catalog. The file is optional; an
// absent file means the catalog is managed entirely through the database.
func loadResources(logger *zerolog.Logger) ([]models.Resource, error) {
	resourcesPath := os.Getenv("RESOURCES_PATH")
	if resourcesPath == "" {
		resourcesPath = "configs/resources.yaml"
	}

	data, err := os.ReadFile(resourcesPath)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Info().Str("resources_path", resourcesPath).Msg("no resources file, skipping seed")
			return nil, nil
		}
		return nil, fmt.Errorf("read resources: %w", err)
	}

	var catalog struct {
		Resources []models.Resource `yaml:"resources"`
	}
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("parse resources: %w", err)
	}
	return catalog.Resources, nil
}

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if !cfg.Redis.Enabled || cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(context.Background(), redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

func wireExports(httpServer *api.HTTPServer, db *database.DB, cfg *config.Config, logger *zerolog.Logger) {
	if cfg.Exports.Path == "" {
		return
	}

	exportLogger := logging.Component(logger, "export")
	exporter := export.NewExporter(db, cfg.Exports.Path, &exportLogger)

	httpServer.WithExports(
		func(ctx context.Context, start, end time.Time) (string, error) {
			resources, err := db.ListResources(ctx)
			if err != nil {
				return "", err
			}
			return exporter.LoanSchedule(ctx, resources, start, end)
		},
		func(ctx context.Context, userID string) (string, error) {
			bookings, err := db.ListBookingsForUser(ctx, userID)
			if err != nil {
				return "", err
			}
			return exporter.UserBookings(ctx, userID, bookings)
		},
	)
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	go startMetricsServer(ctx, port, logger)
}

func serve(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	go func() {
		if !cfg.API.Enabled {
			logger.Warn().Msg("http api disabled in config")
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Int("http_port", cfg.API.Port).Msg("server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
