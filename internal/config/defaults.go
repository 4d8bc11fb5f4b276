package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultBackend         = "alphavantage"
	DefaultAPITimeout      = 30 * time.Second
	DefaultMaxRetries      = 3
	DefaultRetryDelay      = 5 * time.Second
	DefaultDBPort          = 5432
	DefaultDBSSLMode       = "prefer"
	DefaultMaxConns        = 10
	DefaultMinConns        = 2
	DefaultInitialCash     = "100000"
	DefaultBenchmark       = "SPY"
	DefaultLookbackDays    = 365
	DefaultToleranceDays   = 5
	DefaultRefreshCooldown = 60 * time.Second
	DefaultBackfillHour    = 9
	DefaultMarketOpenHour  = 13
	DefaultMarketCloseHour = 21
)

func (c *Config) applyDefaults() {
	// Provider defaults
	if c.Provider.Backend == "" {
		c.Provider.Backend = DefaultBackend
	}
	if c.Provider.Timeout == 0 {
		c.Provider.Timeout = DefaultAPITimeout
	}
	if c.Provider.MaxRetries == 0 {
		c.Provider.MaxRetries = DefaultMaxRetries
	}
	if c.Provider.RetryDelay == 0 {
		c.Provider.RetryDelay = DefaultRetryDelay
	}

	// Database defaults
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	// Portfolio defaults
	if c.Portfolio.InitialCash == "" {
		c.Portfolio.InitialCash = DefaultInitialCash
	}
	if c.Portfolio.Benchmark == "" {
		c.Portfolio.Benchmark = DefaultBenchmark
	}

	// Backfill defaults
	if c.Backfill.LookbackDays == 0 {
		c.Backfill.LookbackDays = DefaultLookbackDays
	}
	if c.Backfill.ToleranceDays == 0 {
		c.Backfill.ToleranceDays = DefaultToleranceDays
	}

	// Refresh defaults
	if c.Refresh.Cooldown == 0 {
		c.Refresh.Cooldown = DefaultRefreshCooldown
	}

	// Schedule defaults
	if c.Schedule.BackfillHour == 0 {
		c.Schedule.BackfillHour = DefaultBackfillHour
	}
	if c.Schedule.MarketOpenHour == 0 {
		c.Schedule.MarketOpenHour = DefaultMarketOpenHour
	}
	if c.Schedule.MarketCloseHour == 0 {
		c.Schedule.MarketCloseHour = DefaultMarketCloseHour
	}
}
