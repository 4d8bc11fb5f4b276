package config

import "time"

// Config is the root configuration for the refresher.
type Config struct {
	Provider  ProviderConfig  `yaml:"provider"`
	Database  DBConfig        `yaml:"database"`
	Portfolio PortfolioConfig `yaml:"portfolio"`
	Backfill  BackfillConfig  `yaml:"backfill"`
	Refresh   RefreshConfig   `yaml:"refresh"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
}

// ProviderConfig holds price API settings.
type ProviderConfig struct {
	Backend    string        `yaml:"backend"` // alphavantage or stooq
	APIKey     string        `yaml:"api_key"`
	PaidTier   bool          `yaml:"paid_tier"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// DBConfig holds the Postgres connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// PortfolioConfig holds the simulated portfolio settings.
type PortfolioConfig struct {
	InitialCash    string   `yaml:"initial_cash"` // decimal string, e.g. "100000"
	DefaultTickers []string `yaml:"default_tickers"`
	Benchmark      string   `yaml:"benchmark"`
}

// BackfillConfig holds history backfill settings.
type BackfillConfig struct {
	LookbackDays  int `yaml:"lookback_days"`
	ToleranceDays int `yaml:"tolerance_days"`
}

// RefreshConfig holds manual refresh settings.
type RefreshConfig struct {
	Cooldown time.Duration `yaml:"cooldown"`
}

// ScheduleConfig holds the cron window settings, all in UTC hours.
type ScheduleConfig struct {
	BackfillHour    int `yaml:"backfill_hour"`
	MarketOpenHour  int `yaml:"market_open_hour"`
	MarketCloseHour int `yaml:"market_close_hour"`
}
