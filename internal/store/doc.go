// Package store is the durable home of prices, trades, snapshots and
// process-wide configuration.
//
// Two implementations share one Store interface: Postgres (pgx) for
// production and Memory for tests and local development. Writes of
// prices and snapshots are idempotent by event id (insert-if-absent);
// trades are append-only with the event id as a dedup guard.
package store
