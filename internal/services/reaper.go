package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"eventregistration/internal/domain"
	"eventregistration/internal/metrics"
)

const reaperLockKey = "lock:registration-reaper"

// ReaperConfig controls how pending registrations are expired.
type ReaperConfig struct {
	// TTL is how long a registration may wait for a payment callback.
	TTL       time.Duration
	Interval  time.Duration
	BatchSize int
}

// Reaper cancels pending registrations whose payment never arrived and releases their held slots.
// Sweeps are serialised across replicas through the Locker.
type Reaper struct {
	registrations domain.RegistrationRepository
	coordinator   domain.CapacityCoordinator
	locker        domain.Locker
	metrics       *metrics.Metrics
	logger        *slog.Logger
	cfg           ReaperConfig
	now           func() time.Time
}

func NewReaper(
	registrations domain.RegistrationRepository,
	coordinator domain.CapacityCoordinator,
	locker domain.Locker,
	m *metrics.Metrics,
	logger *slog.Logger,
	cfg ReaperConfig,
) *Reaper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Reaper{
		registrations: registrations,
		coordinator:   coordinator,
		locker:        locker,
		metrics:       m,
		logger:        logger,
		cfg:           cfg,
		now:           time.Now,
	}
}

// Run sweeps once immediately and then every Interval until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.logger.Info("reaper started", "interval", r.cfg.Interval.String(), "ttl", r.cfg.TTL.String())
	for {
		if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error("reaper sweep failed", "err", err)
		}
		select {
		case <-ctx.Done():
			r.logger.Info("reaper stopped")
			return
		case <-ticker.C:
		}
	}
}

// Sweep expires at most one batch of stale pending registrations and returns how many it cancelled.
// It returns 0 without error when another replica holds the sweep lock.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	release, ok, err := r.locker.TryLock(ctx, reaperLockKey, r.cfg.Interval)
	if err != nil {
		r.metrics.ReaperSweep("error", 0)
		return 0, fmt.Errorf("acquire reaper lock: %w", err)
	}
	if !ok {
		r.metrics.ReaperSweep("skipped", 0)
		return 0, nil
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			r.logger.Warn("release reaper lock", "err", err)
		}
	}()

	now := r.now()
	stale, err := r.registrations.ListExpiredPending(ctx, now.Add(-r.cfg.TTL), r.cfg.BatchSize)
	if err != nil {
		r.metrics.ReaperSweep("error", 0)
		return 0, fmt.Errorf("list expired registrations: %w", err)
	}

	expired := 0
	var errs []error
	for _, reg := range stale {
		_, err := r.coordinator.Transition(ctx, reg.ID, domain.StateChange{
			From:         domain.StatusPending,
			To:           domain.StatusCancelled,
			CancelReason: domain.CancelExpired,
			At:           now,
		})
		if err != nil {
			var terr *domain.TransitionError
			if errors.As(err, &terr) {
				// Payment or cancellation landed after the listing.
				continue
			}
			errs = append(errs, fmt.Errorf("expire registration %s: %w", reg.ID, err))
			continue
		}
		expired++
		r.metrics.Transition(string(domain.StatusPending), string(domain.StatusCancelled))
	}

	result := "ok"
	if len(errs) > 0 {
		result = "error"
	}
	r.metrics.ReaperSweep(result, expired)
	if expired > 0 {
		r.logger.Info("expired pending registrations", "count", expired)
	}
	return expired, errors.Join(errs...)
}
