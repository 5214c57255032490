// Package main is the entry point for the Pergamon circulation server.
// Pergamon manages a library's catalog, loans, and reservations behind a
// JSON HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/pergamon-io/pergamon/internal/auth"
	"github.com/pergamon-io/pergamon/internal/config"
	"github.com/pergamon-io/pergamon/internal/handler"
	"github.com/pergamon-io/pergamon/internal/lock"
	"github.com/pergamon-io/pergamon/internal/metrics"
	"github.com/pergamon-io/pergamon/internal/repository"
	"github.com/pergamon-io/pergamon/internal/repository/postgres"
	"github.com/pergamon-io/pergamon/internal/repository/sqlite"
	"github.com/pergamon-io/pergamon/internal/service"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "path to configuration file")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("pergamon-server %s (built %s, commit %s)\n", Version, BuildTime, GitCommit)
		return
	}

	cfg := config.MustLoad(*configPath)
	logger := newLogger(cfg.Logging)

	logger.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("git_commit", GitCommit).
		Str("driver", cfg.Database.Driver).
		Msg("Starting Pergamon server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("Server exited with error")
	}
	logger.Info().Msg("Server stopped")
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	repos, db, err := openDatabase(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	locker, closeLocker, err := newLocker(ctx, cfg.Redis, logger)
	if err != nil {
		return err
	}
	defer closeLocker()

	var (
		recorder       metrics.Recorder = metrics.Noop{}
		metricsHandler http.Handler
	)
	if cfg.Metrics.Enabled {
		registry := prometheus.NewRegistry()
		recorder = metrics.NewCollector(registry)
		metricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	}

	codec := auth.NewTokenCodec(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, cfg.Auth.Issuer)

	authService := service.NewAuthService(repos.User, codec, logger)
	userService := service.NewUserService(repos.User, logger)
	bookService := service.NewBookService(repos.Book, repos.Loan, logger)
	loanService := service.NewLoanService(
		repos.Loan, repos.Book, repos.User,
		cfg.Lending.LoanPeriod, cfg.Lending.Extension,
		recorder, logger,
	)
	reservationService := service.NewReservationService(
		repos.Reservation, repos.Book, repos.User,
		loanService, cfg.Lending.ReservationHold,
		service.NewLogNotifier(logger),
		recorder, logger,
	)
	loanService.SetReturnListener(reservationService)

	if cfg.Sweep.Enabled {
		sweeper := service.NewSweeper(reservationService, locker, logger, service.SweepConfig{
			Interval: cfg.Sweep.Interval,
			LockTTL:  cfg.Sweep.LockTTL,
		})
		sweeper.Start()
		defer sweeper.Stop()
	}

	router := handler.NewRouter(handler.RouterConfig{
		AuthHandler:        handler.NewAuthHandler(authService, userService, codec),
		UserHandler:        handler.NewUserHandler(userService),
		BookHandler:        handler.NewBookHandler(bookService),
		LoanHandler:        handler.NewLoanHandler(loanService),
		ReservationHandler: handler.NewReservationHandler(reservationService),
		DashboardHandler:   handler.NewDashboardHandler(bookService, userService, loanService, reservationService),
		AuthMiddleware:     auth.Middleware(codec, repos.User, recorder, logger),
		Recorder:           recorder,
		Database:           db,
		RateLimit:          cfg.RateLimit,
		Metrics:            cfg.Metrics,
		MetricsHandler:     metricsHandler,
		Logger:             logger,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// openDatabase connects to the configured backend, applies pending
// migrations, and returns the repository bundle.
func openDatabase(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*repository.Repositories, repository.DatabaseHealth, error) {
	switch cfg.Driver {
	case "postgres":
		db, err := postgres.NewDB(ctx, cfg, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to migrate postgres: %w", err)
		}
		return postgres.NewRepositories(db), db, nil

	case "sqlite":
		db, err := sqlite.NewDB(ctx, sqliteConfig(cfg), logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to migrate sqlite: %w", err)
		}
		return sqlite.NewRepositories(db), db, nil

	default:
		return nil, nil, fmt.Errorf("unsupported database driver: %q", cfg.Driver)
	}
}

func sqliteConfig(cfg config.DatabaseConfig) sqlite.Config {
	c := sqlite.DefaultConfig(cfg.Path)
	if cfg.JournalMode != "" {
		c.JournalMode = cfg.JournalMode
	}
	if cfg.BusyTimeout > 0 {
		c.BusyTimeout = cfg.BusyTimeout
	}
	if cfg.CacheSize != 0 {
		c.CacheSize = cfg.CacheSize
	}
	if cfg.SynchronousMode != "" {
		c.SynchronousMode = cfg.SynchronousMode
	}
	return c
}

// newLocker returns the sweep coordination lock. Redis coordinates
// multi-instance deployments; a single node uses the in-memory lock.
func newLocker(ctx context.Context, cfg config.RedisConfig, logger zerolog.Logger) (lock.Locker, func(), error) {
	if !cfg.Enabled {
		return lock.NewMemoryLocker(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr(),
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: cfg.DialTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	logger.Info().Str("addr", cfg.Addr()).Msg("Connected to Redis")
	return lock.NewRedisLocker(client), func() { client.Close() }, nil
}

func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Format == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: cfg.TimeFormat})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Logger()
}
