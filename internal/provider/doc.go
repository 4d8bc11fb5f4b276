// Package provider fetches current and historical security prices from
// interchangeable market-data backends.
//
// A Backend is one concrete upstream (Alpha Vantage, Stooq) advertising
// its name, quota limits and inter-call delay. Client wraps a Backend
// with quota checks, exponential-backoff retry and self-throttling; it
// is the only type callers should use.
//
// Error taxonomy surfaced to callers:
//   - ErrInvalidCredentials: fatal, stop all further calls
//   - *quota.ExceededError: stop and resume after RetryAfter
//   - *TransientError: retried internally, surfaced after the budget
//   - ErrNoData: not an error, mapped to an empty result
package provider
