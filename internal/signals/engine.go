// Package signals turns observed market resolutions into directional trade
// signals using the learned event graph.
package signals

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/samayp01/polyarb-engine/internal/config"
	"github.com/samayp01/polyarb-engine/internal/logger"
	"github.com/samayp01/polyarb-engine/internal/models"
	"github.com/samayp01/polyarb-engine/internal/polymarket"
)

// GraphReader is the view of the event graph the engine needs.
type GraphReader interface {
	GetOutgoing(leaderID string) []models.EventEdge
}

// MarketFetcher retrieves current active markets for price lookups.
type MarketFetcher interface {
	FetchMarkets(ctx context.Context, filters polymarket.MarketFilters) ([]models.Market, error)
}

// Engine generates signals when leader markets resolve. Follower prices come
// from a cached market table refreshed once per check cycle, so a resolution
// touching many followers does not fan out into per-edge API calls.
type Engine struct {
	graph    GraphReader
	client   MarketFetcher
	cfg      config.SignalsConfig
	filters  polymarket.MarketFilters
	filePath string
	markets  map[string]models.Market
	history  []models.Signal
}

// NewEngine creates a signal engine persisting its signal log to filePath.
func NewEngine(graph GraphReader, client MarketFetcher, cfg config.SignalsConfig, filters polymarket.MarketFilters, filePath string) *Engine {
	return &Engine{
		graph:    graph,
		client:   client,
		cfg:      cfg,
		filters:  filters,
		filePath: filePath,
		markets:  make(map[string]models.Market),
	}
}

// Load restores the persisted signal history. A missing file is not an error.
func (e *Engine) Load() error {
	tempPath := e.filePath + ".tmp"
	if _, err := os.Stat(tempPath); err == nil {
		_ = os.Remove(tempPath)
	}

	if _, err := os.Stat(e.filePath); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(e.filePath)
	if err != nil {
		return fmt.Errorf("failed to read signals file: %w", err)
	}
	if err := json.Unmarshal(data, &e.history); err != nil {
		return fmt.Errorf("failed to unmarshal signals: %w", err)
	}

	logger.Info("Loaded %d historical signals", len(e.history))
	return nil
}

// RefreshMarkets updates the cached market table from upstream. Called once
// per check cycle before evaluating resolutions.
func (e *Engine) RefreshMarkets(ctx context.Context) error {
	markets, err := e.client.FetchMarkets(ctx, e.filters)
	if err != nil {
		return fmt.Errorf("failed to refresh markets: %w", err)
	}

	e.markets = make(map[string]models.Market, len(markets))
	for _, m := range markets {
		e.markets[m.ID] = m
	}
	return nil
}

// OnResolution evaluates every follower of the resolved market and returns the
// signals that pass all thresholds. Emitted signals are appended to the
// persisted history. A leader with no outgoing edges yields an empty slice.
func (e *Engine) OnResolution(ctx context.Context, marketID string, outcome models.Outcome) ([]models.Signal, error) {
	edges := e.graph.GetOutgoing(marketID)
	if len(edges) == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	var emitted []models.Signal

	for i := range edges {
		edge := &edges[i]
		signal, ok := e.evaluate(edge, outcome, now)
		if !ok {
			continue
		}
		emitted = append(emitted, signal)
		logger.Info("Signal: %s %s at %.3f, expecting %.3f (confidence %.2f)",
			signal.Direction, signal.MarketID, signal.CurrentPrice, signal.ExpectedPrice, signal.Confidence)
	}

	if len(emitted) > 0 {
		e.history = append(e.history, emitted...)
		if err := e.save(); err != nil {
			return emitted, err
		}
	}
	return emitted, nil
}

// evaluate applies the signal rule to one edge: conditional delta when
// evidence exists, similarity-scaled estimate as the configured fallback,
// otherwise no signal.
func (e *Engine) evaluate(edge *models.EventEdge, outcome models.Outcome, now time.Time) (models.Signal, bool) {
	if edge.Confidence < e.cfg.MinConfidence {
		return models.Signal{}, false
	}

	follower, ok := e.markets[edge.ToMarketID]
	if !ok {
		logger.Debug("Follower %s not in market cache, skipping", edge.ToMarketID)
		return models.Signal{}, false
	}
	if follower.Liquidity < e.cfg.MinLiquidity {
		return models.Signal{}, false
	}

	var expectedMove float64
	var confidence float64

	delta := edge.Delta(outcome)
	switch {
	case delta != nil:
		expectedMove = delta.AvgDelta
		confidence = edge.Confidence * math.Min(1.0, float64(delta.SampleCount)/e.cfg.SampleScale)
	case e.cfg.SimilarityFallback:
		expectedMove = edge.Similarity * e.cfg.FallbackScale
		if outcome == models.OutcomeNo {
			expectedMove = -expectedMove
		}
		confidence = edge.Confidence * 0.5
	default:
		return models.Signal{}, false
	}

	expectedPrice := clamp(follower.YesPrice+expectedMove, 0.0, 1.0)
	mispricing := expectedPrice - follower.YesPrice
	if math.Abs(mispricing) < e.cfg.MinMispricing {
		return models.Signal{}, false
	}

	direction := models.DirectionBuy
	if mispricing < 0 {
		direction = models.DirectionSell
	}

	return models.Signal{
		ID:             uuid.New().String(),
		MarketID:       edge.ToMarketID,
		Direction:      direction,
		CurrentPrice:   follower.YesPrice,
		ExpectedPrice:  expectedPrice,
		ExpectedMove:   mispricing,
		Confidence:     confidence,
		LeaderMarketID: edge.FromMarketID,
		LeaderOutcome:  outcome,
		SourceEdge:     *edge,
		GeneratedAt:    now,
	}, true
}

// Recent returns signals generated within maxAge of now, newest first.
func (e *Engine) Recent(maxAge time.Duration) []models.Signal {
	cutoff := time.Now().UTC().Add(-maxAge)

	var out []models.Signal
	for _, s := range e.history {
		if s.GeneratedAt.After(cutoff) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GeneratedAt.After(out[j].GeneratedAt) })
	return out
}

// All returns the full signal history in generation order.
func (e *Engine) All() []models.Signal {
	out := make([]models.Signal, len(e.history))
	copy(out, e.history)
	return out
}

func (e *Engine) save() error {
	if err := os.MkdirAll(filepath.Dir(e.filePath), 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	data, err := json.MarshalIndent(e.history, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal signals: %w", err)
	}

	tempPath := e.filePath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write signals file: %w", err)
	}
	if err := os.Rename(tempPath, e.filePath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename signals file: %w", err)
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
