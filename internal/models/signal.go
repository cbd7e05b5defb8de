package models

import (
	"errors"
	"time"
)

// Signal directions.
const (
	DirectionBuy  = "BUY"
	DirectionSell = "SELL"
)

// Signal is a directional price-movement prediction for a follower market,
// emitted when its leader resolves. Signals are immutable once created and
// appended to a persisted history log.
type Signal struct {
	ID             string    `json:"id"`
	MarketID       string    `json:"market_id"` // follower market to trade
	Direction      string    `json:"direction"`
	CurrentPrice   float64   `json:"current_price"`
	ExpectedPrice  float64   `json:"expected_price"`
	ExpectedMove   float64   `json:"expected_move"`
	Confidence     float64   `json:"confidence"`
	LeaderMarketID string    `json:"leader_market_id"`
	LeaderOutcome  Outcome   `json:"leader_outcome"`
	SourceEdge     EventEdge `json:"source_edge"`
	GeneratedAt    time.Time `json:"generated_at"`
}

// Validate checks that all signal fields are valid.
func (s *Signal) Validate() error {
	if s.ID == "" {
		return errors.New("signal ID must not be empty")
	}
	if s.MarketID == "" {
		return errors.New("market ID must not be empty")
	}
	if s.Direction != DirectionBuy && s.Direction != DirectionSell {
		return errors.New("direction must be 'BUY' or 'SELL'")
	}
	if s.CurrentPrice < 0.0 || s.CurrentPrice > 1.0 {
		return errors.New("current price must be between 0.0 and 1.0")
	}
	if s.ExpectedPrice < 0.0 || s.ExpectedPrice > 1.0 {
		return errors.New("expected price must be between 0.0 and 1.0")
	}
	if s.Confidence < 0.0 || s.Confidence > 1.0 {
		return errors.New("confidence must be between 0.0 and 1.0")
	}
	if s.LeaderMarketID == "" {
		return errors.New("leader market ID must not be empty")
	}
	if err := s.LeaderOutcome.Validate(); err != nil {
		return err
	}
	if s.GeneratedAt.IsZero() {
		return errors.New("generated at must be set")
	}
	return s.SourceEdge.Validate()
}
