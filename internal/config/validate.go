package config

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	switch c.Provider.Backend {
	case "alphavantage":
		if c.Provider.APIKey == "" {
			return errors.New("provider.api_key is required for alphavantage")
		}
	case "stooq":
	default:
		return fmt.Errorf("provider.backend must be alphavantage or stooq, got %q", c.Provider.Backend)
	}

	if err := c.Database.validate("database"); err != nil {
		return err
	}

	if cash, err := decimal.NewFromString(c.Portfolio.InitialCash); err != nil {
		return fmt.Errorf("portfolio.initial_cash is not a number: %q", c.Portfolio.InitialCash)
	} else if !cash.IsPositive() {
		return errors.New("portfolio.initial_cash must be positive")
	}

	if c.Backfill.LookbackDays < 1 {
		return errors.New("backfill.lookback_days must be >= 1")
	}
	if c.Backfill.ToleranceDays < 0 {
		return errors.New("backfill.tolerance_days must be >= 0")
	}

	if c.Refresh.Cooldown < 0 {
		return errors.New("refresh.cooldown must be >= 0")
	}

	if c.Schedule.BackfillHour < 0 || c.Schedule.BackfillHour > 23 {
		return fmt.Errorf("schedule.backfill_hour must be between 0 and 23, got %d", c.Schedule.BackfillHour)
	}
	if c.Schedule.MarketOpenHour < 0 || c.Schedule.MarketOpenHour > 23 {
		return fmt.Errorf("schedule.market_open_hour must be between 0 and 23, got %d", c.Schedule.MarketOpenHour)
	}
	if c.Schedule.MarketCloseHour < 0 || c.Schedule.MarketCloseHour > 23 {
		return fmt.Errorf("schedule.market_close_hour must be between 0 and 23, got %d", c.Schedule.MarketCloseHour)
	}
	if c.Schedule.MarketOpenHour >= c.Schedule.MarketCloseHour {
		return fmt.Errorf("schedule.market_open_hour (%d) must be before market_close_hour (%d)",
			c.Schedule.MarketOpenHour, c.Schedule.MarketCloseHour)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
