package model

import (
	"fmt"
	"strings"
)

// MaxTickerLength bounds ticker symbols, matching the store schema.
const MaxTickerLength = 10

// NormalizeTicker trims, upper-cases and validates a ticker symbol.
func NormalizeTicker(s string) (string, error) {
	t := strings.ToUpper(strings.TrimSpace(s))
	if t == "" {
		return "", fmt.Errorf("invalid ticker %q", s)
	}
	if len(t) > MaxTickerLength {
		return "", fmt.Errorf("ticker %q exceeds %d characters", t, MaxTickerLength)
	}
	for _, r := range t {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '.' && r != '-' {
			return "", fmt.Errorf("ticker %q contains invalid character %q", t, r)
		}
	}
	return t, nil
}

// NormalizeTickers normalizes a list of tickers, removing duplicates
// while preserving order. Fails on the first invalid symbol.
func NormalizeTickers(tickers []string) ([]string, error) {
	if len(tickers) == 0 {
		return nil, fmt.Errorf("tickers must be a non-empty list")
	}
	seen := make(map[string]struct{}, len(tickers))
	out := make([]string, 0, len(tickers))
	for _, s := range tickers {
		t, err := NormalizeTicker(s)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out, nil
}

// SanitizeNote neutralizes spreadsheet formula injection in free-form
// notes before they reach the store or a CSV export.
func SanitizeNote(s string) string {
	if len(s) > 0 {
		switch s[0] {
		case '=', '+', '-', '@':
			return "'" + s
		}
	}
	return s
}
