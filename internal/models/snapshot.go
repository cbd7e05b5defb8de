package models

import (
	"errors"
	"time"
)

// MarketSnapshot is a point-in-time price reading for a market, used to
// reconstruct how followers repriced after a leader resolved.
type MarketSnapshot struct {
	ID        string    `json:"id"`
	MarketID  string    `json:"market_id"`
	Timestamp time.Time `json:"timestamp"`
	YesPrice  float64   `json:"yes_price"`
	Volume    float64   `json:"volume"`
	Liquidity float64   `json:"liquidity"`
}

// Validate checks that all snapshot fields are valid.
func (s *MarketSnapshot) Validate() error {
	if s.ID == "" {
		return errors.New("snapshot ID must not be empty")
	}
	if s.MarketID == "" {
		return errors.New("market ID must not be empty")
	}
	if s.Timestamp.IsZero() {
		return errors.New("timestamp must be set")
	}
	if s.YesPrice < 0.0 || s.YesPrice > 1.0 {
		return errors.New("yes price must be between 0.0 and 1.0")
	}
	return nil
}
