package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"eventregistration/config"
	"eventregistration/internal/adapters/auth"
	"eventregistration/internal/adapters/lock"
	"eventregistration/internal/adapters/payment"
	deliveryhttp "eventregistration/internal/delivery/http"
	"eventregistration/internal/delivery/http/controllers"
	"eventregistration/internal/domain"
	"eventregistration/internal/metrics"
	"eventregistration/internal/repository/memory"
	"eventregistration/internal/repository/postgres"
	"eventregistration/internal/services"
)

const shutdownTimeout = 15 * time.Second

// @title Event Registration API
// @version 1.0
// @description Registration, capacity and check-in for events.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @securityDefinitions.apikey WebhookSecret
// @in header
// @name X-Webhook-Secret
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	logger := config.NewLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited", "err", err)
		os.Exit(1)
	}
}

// storage is the set of ports backed by the configured store driver.
type storage struct {
	events        domain.EventRepository
	registrations domain.RegistrationRepository
	coordinator   domain.CapacityCoordinator
	ping          func(ctx context.Context) error
	close         func() error
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	store, err := openStorage(ctx, cfg, logger, m)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.close(); err != nil {
			logger.Warn("closing store", "err", err)
		}
	}()

	locker, closeLocker, err := openLocker(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLocker()

	payments, err := payment.New(payment.Mode(cfg.PaymentMode))
	if err != nil {
		return err
	}

	regSvc := services.NewRegistrationService(store.events, store.registrations, store.coordinator, payments, m, logger)
	checkInSvc := services.NewCheckInService(store.registrations, store.coordinator, m, logger)
	reaper := services.NewReaper(store.registrations, store.coordinator, locker, m, logger, services.ReaperConfig{
		TTL:       cfg.PendingPaymentTTL,
		Interval:  cfg.ReaperInterval,
		BatchSize: cfg.ReaperBatchSize,
	})

	if cfg.PaymentWebhookSecret == "" {
		logger.Warn("PAYMENT_WEBHOOK_SECRET not set; payment callbacks require an operator token")
	}

	router := deliveryhttp.NewRouter(deliveryhttp.RouterDeps{
		Logger:         logger,
		Registration:   controllers.NewRegistrationController(logger, regSvc),
		CheckIn:        controllers.NewCheckInController(logger, checkInSvc),
		Verifier:       auth.NewJWTVerifier(cfg.JWTSecret),
		WebhookSecret:  cfg.PaymentWebhookSecret,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Health:         store.ping,
		Metrics:        promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	reaperDone := make(chan struct{})
	go func() {
		defer close(reaperDone)
		reaper.Run(ctx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", "port", cfg.Port, "env", cfg.Environment, "store", cfg.StoreDriver, "payment_mode", cfg.PaymentMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	<-reaperDone
	return nil
}

func openStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*storage, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		s := memory.NewStore()
		if cfg.SeedEventsFile != "" {
			n, err := seedEvents(s, cfg.SeedEventsFile)
			if err != nil {
				return nil, err
			}
			logger.Info("seeded events", "file", cfg.SeedEventsFile, "count", n)
		}
		logger.Warn("using in-memory store; data is lost on restart")
		return &storage{
			events:        s.Events(),
			registrations: s.Registrations(),
			coordinator:   s.Coordinator(),
			ping:          func(context.Context) error { return nil },
			close:         func() error { return nil },
		}, nil
	default:
		db, err := postgres.Open(ctx, cfg.DBUrl, logger)
		if err != nil {
			return nil, err
		}
		return &storage{
			events:        postgres.NewEventRepository(db),
			registrations: postgres.NewEventRegistrationRepository(db),
			coordinator:   postgres.NewCapacityCoordinator(db, cfg.DBMaxRetries, m),
			ping:          db.PingContext,
			close:         db.Close,
		}, nil
	}
}

func seedEvents(s *memory.Store, path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read seed file: %w", err)
	}
	var events []*domain.Event
	if err := json.Unmarshal(raw, &events); err != nil {
		return 0, fmt.Errorf("decode seed file: %w", err)
	}
	for _, ev := range events {
		s.PutEvent(ev)
	}
	return len(events), nil
}

// openLocker returns the Redis lock when REDIS_URL is set. Without it only a single replica may run.
func openLocker(ctx context.Context, cfg *config.Config, logger *slog.Logger) (domain.Locker, func(), error) {
	if cfg.RedisURL == "" {
		logger.Info("REDIS_URL not set; reaper uses a process-local lock")
		return lock.NewLocalLocker(), func() {}, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := lock.HealthCheck(ctx, client); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return lock.NewRedisLocker(client), func() { _ = client.Close() }, nil
}
