package models

import (
	"errors"
	"math"
	"time"
)

// ConditionalDelta describes how a follower market's price historically moved,
// conditioned on the leader resolving to a specific outcome.
type ConditionalDelta struct {
	Condition        Outcome `json:"condition"`
	AvgDelta         float64 `json:"avg_delta"`
	MedianDelta      float64 `json:"median_delta"`
	StdDelta         float64 `json:"std_delta"`
	AvgLagSeconds    float64 `json:"avg_lag_seconds"`
	MedianLagSeconds float64 `json:"median_lag_seconds"`
	SampleCount      int     `json:"sample_count"`
}

// Validate checks that all conditional delta fields are valid.
func (d *ConditionalDelta) Validate() error {
	if err := d.Condition.Validate(); err != nil {
		return err
	}
	if d.SampleCount < 0 {
		return errors.New("sample count must not be negative")
	}
	if d.AvgLagSeconds < 0 || d.MedianLagSeconds < 0 {
		return errors.New("lag seconds must not be negative")
	}
	if d.StdDelta < 0 {
		return errors.New("std delta must not be negative")
	}
	return nil
}

// EventEdge is a directed relationship from a leader market to a follower
// market. At most one edge exists per ordered (leader, follower) pair; adding
// an edge with an existing key replaces the stored edge.
type EventEdge struct {
	FromMarketID string            `json:"from_market_id"`
	ToMarketID   string            `json:"to_market_id"`
	Similarity   float64           `json:"similarity"`
	Confidence   float64           `json:"confidence"`
	YesDelta     *ConditionalDelta `json:"yes_delta,omitempty"`
	NoDelta      *ConditionalDelta `json:"no_delta,omitempty"`
	LastUpdated  time.Time         `json:"last_updated"`
}

// EdgeKey builds the unique key for an ordered (leader, follower) pair.
func EdgeKey(fromID, toID string) string {
	return fromID + "::" + toID
}

// Key returns the edge's unique (leader, follower) key.
func (e *EventEdge) Key() string {
	return EdgeKey(e.FromMarketID, e.ToMarketID)
}

// Delta returns the conditional delta for the given leader outcome, or nil
// when no evidence exists at that condition.
func (e *EventEdge) Delta(outcome Outcome) *ConditionalDelta {
	if outcome == OutcomeYes {
		return e.YesDelta
	}
	return e.NoDelta
}

// IsValid reports whether the edge has enough historical evidence to be
// actionable. Every non-nil delta must clear the sample, magnitude, and lag
// minimums; an edge with no deltas at all is never valid.
func (e *EventEdge) IsValid(minSamples int, minDelta, minLagSeconds float64) bool {
	for _, delta := range []*ConditionalDelta{e.YesDelta, e.NoDelta} {
		if delta == nil {
			continue
		}
		if delta.SampleCount < minSamples {
			return false
		}
		if math.Abs(delta.AvgDelta) < minDelta {
			return false
		}
		if delta.AvgLagSeconds < minLagSeconds {
			return false
		}
	}
	return e.YesDelta != nil || e.NoDelta != nil
}

// Validate checks that all edge fields are valid.
func (e *EventEdge) Validate() error {
	if e.FromMarketID == "" {
		return errors.New("from market ID must not be empty")
	}
	if e.ToMarketID == "" {
		return errors.New("to market ID must not be empty")
	}
	if e.FromMarketID == e.ToMarketID {
		return errors.New("edge must not be a self-loop")
	}
	if e.Similarity < 0.0 || e.Similarity > 1.0 {
		return errors.New("similarity must be between 0.0 and 1.0")
	}
	if e.Confidence < 0.0 || e.Confidence > 1.0 {
		return errors.New("confidence must be between 0.0 and 1.0")
	}
	for _, delta := range []*ConditionalDelta{e.YesDelta, e.NoDelta} {
		if delta == nil {
			continue
		}
		if err := delta.Validate(); err != nil {
			return err
		}
	}
	return nil
}
