package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"kinderbook/internal/api"
	"kinderbook/internal/availability"
	"kinderbook/internal/booking"
	"kinderbook/internal/catalog"
	"kinderbook/internal/config"
	"kinderbook/internal/events"
	"kinderbook/internal/ledger"
	"kinderbook/internal/metrics"
	"kinderbook/internal/storage"
)

func main() {
	// Initialize logger
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	if err := config.LoadDotEnv(); err != nil {
		logger.Fatal().Err(err).Msg("failed to load .env")
	}

	cfg, err := config.Load(os.Getenv("KINDERBOOK_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	logger = logger.Level(cfg.LogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cat := catalog.New()
	if err := catalog.WatchInto(ctx, cat, cfg.Booking.VenuesConfigPath, cfg.CatalogReloadInterval(), time.Now, &logger); err != nil {
		logger.Fatal().Err(err).Msg("failed to load venues config")
	}

	store, rdb, closeStore := openStorage(ctx, cfg, &logger)
	defer closeStore()

	bus := events.NewEventBus(&logger)
	metrics.Subscribe(bus)

	led := ledger.New(store, ledger.Options{
		Logger:            &logger,
		Timeout:           cfg.StorageTimeout(),
		ReferenceAttempts: cfg.Booking.ReferenceAttempts,
		Events:            bus,
	})
	if err := led.Open(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to load bookings")
	}

	validator, err := booking.NewValidator(cfg.Booking.PhonePattern)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid booking.phone_pattern")
	}

	var policyOpts []availability.Option
	if cfg.Booking.ClosedDays == "weekends" {
		policyOpts = append(policyOpts, availability.WithClosedDays(availability.ClosedOnWeekends))
	}
	policy := availability.NewPolicy(cat, policyOpts...)

	workflow := booking.NewWorkflow(cat, led, booking.WorkflowOptions{
		Policy:       policy,
		Validator:    validator,
		BlockedDates: cfg.Booking.BlockedDates,
		Logger:       &logger,
		Events:       bus,
	})

	sessions := booking.NewSessionStore(cfg.SessionTimeout())
	go sessions.RunCleanup(ctx, cfg.SessionCleanupInterval(), &logger)

	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, store, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	rps, burst := cfg.RateLimit()
	server := api.NewHTTPServer(api.Deps{
		Catalog:  cat,
		Policy:   policy,
		Ledger:   led,
		Workflow: workflow,
		Sessions: sessions,
	}, api.Options{
		Address:      cfg.Server.Address,
		RateLimit:    rps,
		Burst:        burst,
		BlockedDates: cfg.Booking.BlockedDates,
		Logger:       &logger,
	})

	logger.Info().Str("storage", cfg.Storage.Driver).Int("venues", len(cat.Venues())).Msg("booking service started")
	if err := server.Start(ctx); err != nil {
		logger.Error().Err(err).Msg("API server error")
	}
}

// openStorage builds the snapshot backend for the configured driver. The
// returned redis client is nil unless redis is in use.
func openStorage(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (storage.Backend, *redis.Client, func()) {
	var (
		rdb     *redis.Client
		sqlite  *storage.SQLite
		err     error
		closers []func()
	)

	if cfg.Storage.Driver == config.DriverRedis || cfg.Storage.Driver == config.DriverFailover {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		closers = append(closers, func() { _ = rdb.Close() })
	}

	if cfg.Storage.Driver == config.DriverSQLite || cfg.Storage.Driver == config.DriverFailover {
		sqlite, err = storage.NewSQLite(cfg.Database.Path, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("open db error")
		}
		closers = append(closers, func() { _ = sqlite.Close() })

		backup := storage.NewBackupService(sqlite, storage.BackupConfig{
			Enabled:       cfg.Backup.Enabled,
			Dir:           cfg.Backup.Path,
			Interval:      cfg.BackupInterval(),
			RetentionDays: cfg.BackupRetentionDays(),
		}, logger)
		go backup.Start(ctx)
	}

	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	switch cfg.Storage.Driver {
	case config.DriverMemory:
		logger.Warn().Msg("memory storage: bookings are lost on restart")
		return storage.NewMemory(), nil, closeAll
	case config.DriverRedis:
		return storage.NewRedis(rdb, cfg.Storage.KeyPrefix), rdb, closeAll
	case config.DriverFailover:
		return storage.NewFailover(storage.NewRedis(rdb, cfg.Storage.KeyPrefix), sqlite, logger), rdb, closeAll
	default:
		return sqlite, nil, closeAll
	}
}

func startHealthServer(ctx context.Context, port int, store storage.Backend, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := store.Ping(ctxPing); err != nil {
			http.Error(w, "storage not ready", http.StatusServiceUnavailable)
			return
		}
		if f, ok := store.(*storage.Failover); ok && f.Degraded() {
			// Fallback is serving, readiness holds.
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready (degraded)"))
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
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
