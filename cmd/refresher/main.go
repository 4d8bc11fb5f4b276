package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tmarek/stockfolio/internal/backfill"
	"github.com/tmarek/stockfolio/internal/config"
	"github.com/tmarek/stockfolio/internal/engine"
	"github.com/tmarek/stockfolio/internal/ledger"
	"github.com/tmarek/stockfolio/internal/provider"
	"github.com/tmarek/stockfolio/internal/store"
	"github.com/tmarek/stockfolio/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/refresher.local.yaml", "path to config file")
	mode := flag.String("mode", "auto", "what to run: auto, backfill, intraday, close, snapshot")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting refresher",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"mode", *mode,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Connect to database
	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	st := store.NewPostgres(pool)
	if err := st.Migrate(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database connected")

	// Create price source
	backend, err := newBackend(cfg, logger)
	if err != nil {
		logger.Error("failed to create price backend", "error", err)
		os.Exit(1)
	}
	client := provider.NewClient(backend,
		provider.WithLogger(logger),
		provider.WithRetry(cfg.Provider.MaxRetries, cfg.Provider.RetryDelay),
	)
	logger.Info("price source ready", "backend", client.Name())

	initialCash, err := decimal.NewFromString(cfg.Portfolio.InitialCash)
	if err != nil {
		logger.Error("invalid initial cash", "value", cfg.Portfolio.InitialCash, "error", err)
		os.Exit(1)
	}

	led := ledger.New(st,
		ledger.WithInitialCash(initialCash),
		ledger.WithLogger(logger),
	)
	eng := engine.New(st, client, led,
		engine.WithLogger(logger),
		engine.WithCooldown(cfg.Refresh.Cooldown),
		engine.WithBenchmark(cfg.Portfolio.Benchmark),
		engine.WithDefaultTickers(cfg.Portfolio.DefaultTickers),
		engine.WithPlanner(backfill.New(
			backfill.WithLookbackDays(cfg.Backfill.LookbackDays),
			backfill.WithToleranceDays(cfg.Backfill.ToleranceDays),
		)),
	)

	if err := eng.Bootstrap(ctx, initialCash); err != nil {
		logger.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}

	if err := run(ctx, eng, cfg, *mode, logger); err != nil {
		logger.Error("run failed", "mode", *mode, "error", err)
		os.Exit(1)
	}
	logger.Info("done", "mode", *mode)
}

func newBackend(cfg *config.Config, logger *slog.Logger) (provider.Backend, error) {
	switch cfg.Provider.Backend {
	case "stooq":
		return provider.NewStooq(
			provider.WithStooqTimeout(cfg.Provider.Timeout),
			provider.WithStooqLogger(logger),
		), nil
	default:
		return provider.NewAlphaVantage(cfg.Provider.APIKey,
			provider.WithAlphaVantagePaidTier(cfg.Provider.PaidTier),
			provider.WithAlphaVantageTimeout(cfg.Provider.Timeout),
			provider.WithAlphaVantageLogger(logger),
		)
	}
}

func run(ctx context.Context, eng *engine.Engine, cfg *config.Config, mode string, logger *slog.Logger) error {
	switch mode {
	case "auto":
		return runScheduled(ctx, eng, cfg, logger)
	case "backfill":
		return runBackfill(ctx, eng, logger)
	case "intraday":
		return eng.IntradayUpdate(ctx)
	case "close":
		return eng.DailyClose(ctx)
	case "snapshot":
		written, err := eng.TakeSnapshot(ctx)
		if err != nil {
			return err
		}
		logger.Info("snapshot written", "rows", written)
		return nil
	default:
		return errors.New("unknown mode: " + mode)
	}
}

// runScheduled picks the task appropriate for the current time. Meant
// to be invoked from cron every few minutes.
func runScheduled(ctx context.Context, eng *engine.Engine, cfg *config.Config, logger *slog.Logger) error {
	task := engine.PlanTask(time.Now(),
		cfg.Schedule.BackfillHour,
		cfg.Schedule.MarketOpenHour,
		cfg.Schedule.MarketCloseHour,
	)
	logger.Info("scheduled task selected", "task", string(task))

	switch task {
	case engine.TaskBackfill:
		return runBackfill(ctx, eng, logger)
	case engine.TaskIntraday:
		return eng.IntradayUpdate(ctx)
	case engine.TaskClose:
		if err := eng.DailyClose(ctx); err != nil {
			return err
		}
		_, err := eng.TakeSnapshot(ctx)
		return err
	default:
		return nil
	}
}

// runBackfill clears the refresh cooldown first: the scheduled morning
// run must not be blocked by a recent manual refresh.
func runBackfill(ctx context.Context, eng *engine.Engine, logger *slog.Logger) error {
	if err := eng.ClearCooldown(ctx); err != nil {
		return err
	}
	summary, err := eng.ManualRefresh(ctx)
	if err != nil {
		var cderr *engine.CooldownError
		if errors.As(err, &cderr) {
			logger.Warn("refresh on cooldown", "retry_in", cderr.Remaining)
			return nil
		}
		return err
	}
	logger.Info("backfill finished",
		"run_id", summary.RunID.String(),
		"tickers", len(summary.Tickers),
		"failed", len(summary.Errors),
		"aborted", summary.Aborted,
	)
	return nil
}
