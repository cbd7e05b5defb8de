// Package ingest handles continuous collection of market data: tracking
// market resolutions and capturing point-in-time price snapshots.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/samayp01/polyarb-engine/internal/logger"
	"github.com/samayp01/polyarb-engine/internal/models"
	"github.com/samayp01/polyarb-engine/internal/polymarket"
)

// ClosedMarketFetcher retrieves closed/resolved markets from upstream.
type ClosedMarketFetcher interface {
	FetchClosedMarkets(ctx context.Context) ([]models.Market, error)
}

// Tracker records market resolutions as they are observed. Resolutions are
// append-only and keyed by market id: re-observing a known market is a no-op,
// so CheckNew reports each resolution exactly once across process restarts.
type Tracker struct {
	client      ClosedMarketFetcher
	filePath    string
	resolutions map[string]models.Resolution
}

// NewTracker creates a resolution tracker persisting to filePath.
func NewTracker(client ClosedMarketFetcher, filePath string) *Tracker {
	return &Tracker{
		client:      client,
		filePath:    filePath,
		resolutions: make(map[string]models.Resolution),
	}
}

// Load restores previously observed resolutions. A missing file is not an
// error.
func (t *Tracker) Load() error {
	tempPath := t.filePath + ".tmp"
	if _, err := os.Stat(tempPath); err == nil {
		_ = os.Remove(tempPath)
	}

	if _, err := os.Stat(t.filePath); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(t.filePath)
	if err != nil {
		return fmt.Errorf("failed to read resolutions file: %w", err)
	}

	var records []models.Resolution
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("failed to unmarshal resolutions: %w", err)
	}

	for _, r := range records {
		if err := r.Validate(); err != nil {
			logger.Debug("Dropping invalid persisted resolution %s: %v", r.MarketID, err)
			continue
		}
		t.resolutions[r.MarketID] = r
	}

	logger.Info("Loaded %d known resolutions", len(t.resolutions))
	return nil
}

// CheckNew polls upstream for closed markets and returns only resolutions not
// previously tracked. New resolutions are persisted before returning.
func (t *Tracker) CheckNew(ctx context.Context) ([]models.Resolution, error) {
	closed, err := t.client.FetchClosedMarkets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch closed markets: %w", err)
	}

	var fresh []models.Resolution
	for i := range closed {
		market := &closed[i]
		if _, known := t.resolutions[market.ID]; known {
			continue
		}

		resolution, ok := marketToResolution(market)
		if !ok {
			continue
		}

		t.resolutions[market.ID] = resolution
		fresh = append(fresh, resolution)
		logger.Info("New resolution: %s -> %s", truncate(resolution.Question, 50), resolution.Outcome)
	}

	if len(fresh) > 0 {
		if err := t.save(); err != nil {
			return fresh, err
		}
	}
	return fresh, nil
}

// Get returns the resolution for a specific market.
func (t *Tracker) Get(marketID string) (models.Resolution, bool) {
	r, ok := t.resolutions[marketID]
	return r, ok
}

// All returns every tracked resolution, sorted by market id.
func (t *Tracker) All() []models.Resolution {
	out := make([]models.Resolution, 0, len(t.resolutions))
	for _, r := range t.resolutions {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MarketID < out[j].MarketID })
	return out
}

// AsMap returns market id -> resolution for graph building.
func (t *Tracker) AsMap() map[string]models.Resolution {
	out := make(map[string]models.Resolution, len(t.resolutions))
	for id, r := range t.resolutions {
		out[id] = r
	}
	return out
}

func (t *Tracker) save() error {
	if err := os.MkdirAll(filepath.Dir(t.filePath), 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	data, err := json.MarshalIndent(t.All(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal resolutions: %w", err)
	}

	tempPath := t.filePath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write resolutions file: %w", err)
	}
	if err := os.Rename(tempPath, t.filePath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename resolutions file: %w", err)
	}
	return nil
}

// marketToResolution derives a resolution record from a closed market.
func marketToResolution(market *models.Market) (models.Resolution, bool) {
	if market.ID == "" {
		return models.Resolution{}, false
	}

	resolvedAt := market.EndDate
	if resolvedAt.IsZero() {
		resolvedAt = time.Now().UTC()
	}

	return models.Resolution{
		MarketID:   market.ID,
		ResolvedAt: resolvedAt,
		Outcome:    models.OutcomeFromPrice(market.YesPrice),
		Question:   market.Question,
	}, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var _ ClosedMarketFetcher = (*polymarket.Client)(nil)
