// quotetest exercises a price backend from the console: it fetches the
// current quote and recent history for the given tickers and prints the
// results. Useful for verifying an API key and watching quota usage
// without touching the database.
//
// Usage: go run ./cmd/quotetest --config configs/refresher.local.yaml AAPL MSFT
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tmarek/stockfolio/internal/config"
	"github.com/tmarek/stockfolio/internal/model"
	"github.com/tmarek/stockfolio/internal/provider"
)

func main() {
	configPath := flag.String("config", "configs/refresher.local.yaml", "path to config file")
	days := flag.Int("days", 7, "days of history to fetch")
	verbose := flag.Bool("verbose", false, "print every candle as JSON")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	// Load config
	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	tickers, err := model.NormalizeTickers(flag.Args())
	if err != nil || len(tickers) == 0 {
		logger.Error("usage: quotetest [flags] TICKER [TICKER...]", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("interrupted")
		cancel()
	}()

	backend, err := newBackend(cfg, logger)
	if err != nil {
		logger.Error("failed to create backend", "error", err)
		os.Exit(1)
	}
	client := provider.NewClient(backend, provider.WithLogger(logger))

	logger.Info("backend ready", "name", client.Name(), "market_open", client.MarketOpen(ctx))

	quotes, err := client.CurrentPrices(ctx, tickers)
	if err != nil {
		logger.Error("quote fetch failed", "error", err)
		os.Exit(1)
	}
	for _, ticker := range tickers {
		if price := quotes[ticker]; price != nil {
			fmt.Printf("%-8s %s\n", ticker, price.String())
		} else {
			fmt.Printf("%-8s (no quote)\n", ticker)
		}
	}

	end := time.Now().UTC()
	start := end.AddDate(0, 0, -*days)
	for _, ticker := range tickers {
		candles, err := client.HistoricalPrices(ctx, ticker, start, end)
		if err != nil {
			logger.Error("history fetch failed", "ticker", ticker, "error", err)
			continue
		}
		fmt.Printf("%s: %d candles over the last %d days\n", ticker, len(candles), *days)
		if *verbose {
			for _, c := range candles {
				data, _ := json.Marshal(c)
				fmt.Println(string(data))
			}
		}
	}

	status := client.Quota()
	logger.Info("quota after run",
		"minute_calls", status.MinuteCalls,
		"minute_limit", status.MinuteLimit,
		"daily_calls", status.DailyCalls,
		"daily_limit", status.DailyLimit,
	)
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
