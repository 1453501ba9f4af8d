package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirinyoku/tixmarket/internal/clock"
	"github.com/kirinyoku/tixmarket/internal/config"
	"github.com/kirinyoku/tixmarket/internal/entropy"
	"github.com/kirinyoku/tixmarket/internal/ledger"
	"github.com/kirinyoku/tixmarket/internal/postgres"
	redisx "github.com/kirinyoku/tixmarket/internal/redis"
	postgresrepo "github.com/kirinyoku/tixmarket/internal/repository/postgres"
	redisrepo "github.com/kirinyoku/tixmarket/internal/repository/redis"
	"github.com/kirinyoku/tixmarket/internal/service"
	"github.com/kirinyoku/tixmarket/internal/service/query"
	"github.com/kirinyoku/tixmarket/internal/store"
	httpgin "github.com/kirinyoku/tixmarket/internal/transport/http/gin"
)

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server

	events    *store.EventStore
	tickets   *store.TicketStore
	snapshots *postgresrepo.SnapshotRepo
}

func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	// The host grants a finite execution budget; running below the floor
	// risks dying mid-operation, so refuse to start at all. An unset grant
	// counts as zero; unmetered hosts opt out with MIN_EXECUTION_BUDGET=0.
	if cfg.Budget.Granted < cfg.Budget.Minimum {
		return nil, fmt.Errorf(
			"insufficient execution budget: granted %d, minimum %d",
			cfg.Budget.Granted, cfg.Budget.Minimum,
		)
	}

	// Initialize dependencies
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.Name,
		cfg.Postgres.SSLMode,
	)

	pgxPool, err := postgres.New(context.Background(), postgres.Config{DSN: dsn})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres: %w", err)
	}

	rdb, err := redisx.New(context.Background(), redisx.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	// Initialize stores and restore the pre-upgrade snapshot, if any.
	events := store.NewEventStore()
	tickets := store.NewTicketStore()

	snapshots := postgresrepo.NewSnapshotRepo(pgxPool)
	if err := snapshots.Init(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to initialize snapshot storage: %w", err)
	}

	if data, ok, err := snapshots.Load(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	} else if ok {
		snap, err := store.DecodeSnapshot(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode snapshot: %w", err)
		}
		if err := store.Restore(snap, events, tickets); err != nil {
			return nil, fmt.Errorf("failed to restore snapshot: %w", err)
		}
		logger.Info("state restored",
			"events", len(snap.Events), "tickets", len(snap.Tickets))
	}

	// Initialize repositories and collaborators
	cache := redisrepo.New(rdb)
	pubsub := redisx.NewEventsPubSub(rdb)
	limiter := redisrepo.NewSlidingWindowLimiter(rdb, "purchase", 10, 1*time.Minute)
	idempotencyStore := redisrepo.NewIdempotencyStore(rdb, 2*time.Hour)

	ledgerClient := ledger.NewHTTPClient(ledger.Config{
		BaseURL: cfg.Ledger.BaseURL,
		Fee:     cfg.Ledger.Fee,
	})

	// Initialize services
	services := service.NewServices(
		events,
		tickets,
		ledgerClient,
		entropy.NewCrypto(),
		clock.NewSystem(),
		cache,
		pubsub,
		logger,
		service.Config{Query: query.Config{}},
	)

	// Initialize Gin router
	router := httpgin.NewRouter(
		services,
		idempotencyStore,
		limiter,
		[]byte(cfg.Auth.JWTSecret),
		logger,
	)

	return &App{
		cfg:    cfg,
		logger: logger,
		httpServer: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler: router,
		},
		events:    events,
		tickets:   tickets,
		snapshots: snapshots,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	// Start HTTP server
	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	// Graceful shutdown: drain the server, then persist the state snapshot.
	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return a.saveSnapshot(shutdownCtx)
	})

	return g.Wait()
}

func (a *App) saveSnapshot(ctx context.Context) error {
	data, err := store.Capture(a.events, a.tickets).Encode()
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	if err := a.snapshots.Save(ctx, data); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	a.logger.Info("state snapshot saved", "bytes", len(data))

	return nil
}
