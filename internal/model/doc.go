// Package model defines shared data types used across the portfolio engine.
//
// Conventions:
//   - Prices and cash: shopspring decimal (exact money math)
//   - Timestamps: time.Time, always UTC
//   - IDs: normalized uppercase tickers; content-derived event ids for
//     idempotent writes (see EventID)
package model
