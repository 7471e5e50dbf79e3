package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/efreitasn/pairexchange/internal/config"
	"github.com/efreitasn/pairexchange/internal/handler"
	"github.com/efreitasn/pairexchange/internal/lock"
	"github.com/efreitasn/pairexchange/internal/metrics"
	"github.com/efreitasn/pairexchange/internal/service"
	"github.com/efreitasn/pairexchange/internal/settlement"
	"github.com/efreitasn/pairexchange/internal/store/memory"
	"github.com/efreitasn/pairexchange/internal/store/postgres"
)

// exchangeStore is satisfied by both the in-memory and the Postgres store.
type exchangeStore interface {
	service.PairStore
	service.OrderStore
	service.AccountStore
	settlement.OrderBook
	lock.Store
}

func main() {
	healthcheck := flag.Bool("healthcheck", false, "Run health check against running server")
	migrateOnly := flag.Bool("migrate", false, "Apply the database schema and exit")
	flag.Parse()

	// Handle -healthcheck flag: HTTP GET to localhost:PORT/healthz, exit 0/1.
	if *healthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		resp, err := http.Get(fmt.Sprintf("http://localhost:%s/healthz", port))
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		st     exchangeStore
		health func(context.Context) error
	)
	if cfg.DatabaseURL == "" {
		if *migrateOnly {
			logger.Error("-migrate requires DATABASE_URL")
			os.Exit(1)
		}
		logger.Info("using in-memory store")
		st = memory.New()
	} else {
		pg, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer pg.Close()
		if err := pg.Migrate(ctx); err != nil {
			logger.Error("failed to apply schema", slog.String("error", err.Error()))
			os.Exit(1)
		}
		if *migrateOnly {
			logger.Info("schema applied")
			return
		}
		logger.Info("using postgres store")
		st = pg
		health = pg.Ping
	}

	m := metrics.New()

	locks := lock.NewManager(st, lock.Config{
		StaleAfter:   cfg.LockStaleAfter,
		TradeAtDelay: cfg.TradeAtDelay,
	}, logger, lock.WithObserver(m))
	coordinator := settlement.NewCoordinator(st, locks, logger, settlement.WithObserver(m))

	pairSvc := service.NewPairService(st)
	accountSvc := service.NewAccountService(st)
	exchangeSvc := service.NewExchangeService(st, coordinator, locks,
		service.ExchangeConfig{CancelRetryTimeout: cfg.CancelRetryTimeout},
		logger, service.WithOrderObserver(m))

	sweeper := settlement.NewSweeper(coordinator, pairSvc, cfg.SweepInterval, cfg.SweepConcurrency, logger)
	sweeper.Start(ctx)

	router := handler.NewRouter(handler.Services{
		Pairs:    pairSvc,
		Exchange: exchangeSvc,
		Accounts: accountSvc,
	}, handler.Options{
		AmountScale: cfg.AmountScale,
		Metrics:     m.Handler(),
		Health:      health,
	}, logger)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		logger.Info("server starting", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown signal received", slog.String("signal", sig.String()))

	// Stop accepting requests first, then let the sweeper finish its pass.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}
	cancel()
	select {
	case <-sweeper.Done():
	case <-shutdownCtx.Done():
		logger.Warn("sweeper did not stop before the shutdown timeout")
	}

	logger.Info("server stopped")
}
