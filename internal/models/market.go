// Package models defines the core domain entities for the polyarb engine.
// These models represent prediction markets, resolution records, learned
// relationship edges, trading signals, and backtest results. Persisted models
// include built-in validation to ensure data integrity throughout the pipeline.
//
// Terminology:
//   - Leader / follower: in a directed edge, the market expected to resolve
//     first (leader) and the market expected to reprice afterward (follower).
//   - Candidate edge: an edge with similarity data but no historical delta
//     evidence yet (not actionable).
package models

import (
	"time"
)

// Market represents a single yes/no prediction market as fetched from the
// Polymarket Gamma API. Markets are not persisted as entities; only derived
// facts (edges, resolutions, signals) are written to disk.
type Market struct {
	ID          string    `json:"id"`
	Question    string    `json:"question"`
	Description string    `json:"description,omitempty"`
	Slug        string    `json:"slug,omitempty"`
	YesPrice    float64   `json:"yes_price"`
	Volume      float64   `json:"volume"`
	Liquidity   float64   `json:"liquidity"`
	EndDate     time.Time `json:"end_date,omitempty"` // zero when the API omits or mangles it
	Closed      bool      `json:"closed"`
}

// NoPrice returns the implied NO price.
func (m *Market) NoPrice() float64 {
	return 1.0 - m.YesPrice
}

// EmbeddingText returns the text used to embed this market: the question
// followed by a bounded prefix of the description, so that verbose
// descriptions cannot dominate the vector.
func (m *Market) EmbeddingText() string {
	const maxDescription = 200
	desc := m.Description
	if len(desc) > maxDescription {
		desc = desc[:maxDescription]
	}
	if desc == "" {
		return m.Question
	}
	return m.Question + " " + desc
}

// ClearlyResolved reports whether a closed market's final price is decisive
// enough to read an outcome from (deep in either tail).
func (m *Market) ClearlyResolved() bool {
	return m.YesPrice > 0.9 || m.YesPrice < 0.1
}
