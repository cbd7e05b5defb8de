package models

import (
	"errors"
	"time"
)

// Resolution records a market having resolved. Resolutions are append-only and
// keyed by market ID: re-observing a known market is a no-op upstream.
type Resolution struct {
	MarketID   string    `json:"market_id"`
	ResolvedAt time.Time `json:"resolved_at"`
	Outcome    Outcome   `json:"outcome"`
	Question   string    `json:"question,omitempty"`
}

// Validate checks that all resolution fields are valid.
func (r *Resolution) Validate() error {
	if r.MarketID == "" {
		return errors.New("market ID must not be empty")
	}
	if r.ResolvedAt.IsZero() {
		return errors.New("resolved at must be set")
	}
	return r.Outcome.Validate()
}
