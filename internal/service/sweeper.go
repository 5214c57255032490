package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pergamon-io/pergamon/internal/lock"
)

// Sweeper periodically retires lapsed reservations.
//
// The sweep itself is idempotent, so the distributed lock is only there
// to keep multiple instances from doing the same work; a lost or expired
// lock never corrupts anything.
type Sweeper struct {
	reservations *ReservationService
	locker       lock.Locker
	logger       zerolog.Logger
	config       SweepConfig

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	doneChan chan struct{}
}

// SweepConfig contains expiry sweep configuration.
type SweepConfig struct {
	// Interval is how often to run the sweep.
	Interval time.Duration

	// LockTTL is how long the sweep lock is held at most.
	LockTTL time.Duration
}

// DefaultSweepConfig returns sensible defaults.
func DefaultSweepConfig() SweepConfig {
	return SweepConfig{
		Interval: 5 * time.Minute,
		LockTTL:  1 * time.Minute,
	}
}

// NewSweeper creates a new reservation expiry sweeper.
func NewSweeper(
	reservations *ReservationService,
	locker lock.Locker,
	logger zerolog.Logger,
	config SweepConfig,
) *Sweeper {
	if config.Interval <= 0 {
		config.Interval = DefaultSweepConfig().Interval
	}
	if config.LockTTL <= 0 {
		config.LockTTL = DefaultSweepConfig().LockTTL
	}
	return &Sweeper{
		reservations: reservations,
		locker:       locker,
		logger:       logger.With().Str("service", "sweeper").Logger(),
		config:       config,
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
}

// Start begins the sweep scheduler.
func (sw *Sweeper) Start() {
	sw.mu.Lock()
	if sw.running {
		sw.mu.Unlock()
		return
	}
	sw.running = true
	sw.mu.Unlock()

	sw.logger.Info().
		Dur("interval", sw.config.Interval).
		Dur("lock_ttl", sw.config.LockTTL).
		Msg("starting reservation sweeper")

	go sw.runLoop()
}

// Stop stops the sweep scheduler.
func (sw *Sweeper) Stop() {
	sw.mu.Lock()
	if !sw.running {
		sw.mu.Unlock()
		return
	}
	sw.running = false
	sw.mu.Unlock()

	close(sw.stopChan)
	<-sw.doneChan

	sw.logger.Info().Msg("reservation sweeper stopped")
}

// runLoop is the main sweep loop.
func (sw *Sweeper) runLoop() {
	defer close(sw.doneChan)

	// Run immediately on start
	sw.runOnce()

	ticker := time.NewTicker(sw.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sw.runOnce()
		case <-sw.stopChan:
			return
		}
	}
}

func (sw *Sweeper) runOnce() {
	_, _ = sw.RunOnce(context.Background())
}

// RunOnce executes a single sweep. Can be called manually or by the
// scheduler. Returns the number of reservations expired.
func (sw *Sweeper) RunOnce(ctx context.Context) (int64, error) {
	acquired, err := sw.locker.Acquire(ctx, lock.SweepKey, sw.config.LockTTL)
	if err != nil {
		sw.logger.Error().Err(err).Msg("failed to acquire sweep lock")
		return 0, err
	}
	if !acquired {
		sw.logger.Debug().Msg("sweep lock held by another instance, skipping run")
		return 0, nil
	}
	defer func() {
		if _, err := sw.locker.Release(ctx, lock.SweepKey); err != nil {
			sw.logger.Error().Err(err).Msg("failed to release sweep lock")
		}
	}()

	expired, err := sw.reservations.ExpireSweep(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}

	return expired, nil
}
