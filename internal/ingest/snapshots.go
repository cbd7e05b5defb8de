package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/samayp01/polyarb-engine/internal/logger"
	"github.com/samayp01/polyarb-engine/internal/models"
	"github.com/samayp01/polyarb-engine/internal/polymarket"
)

// ActiveMarketFetcher retrieves active markets from upstream.
type ActiveMarketFetcher interface {
	FetchMarkets(ctx context.Context, filters polymarket.MarketFilters) ([]models.Market, error)
}

// SnapshotIngester captures point-in-time price snapshots for active markets.
// Snapshots are appended to daily JSON files for historical analysis.
type SnapshotIngester struct {
	client  ActiveMarketFetcher
	dir     string
	filters polymarket.MarketFilters
}

// NewSnapshotIngester creates an ingester writing daily files under dir.
func NewSnapshotIngester(client ActiveMarketFetcher, dir string, filters polymarket.MarketFilters) *SnapshotIngester {
	return &SnapshotIngester{client: client, dir: dir, filters: filters}
}

// Capture records current prices for all active markets passing the filters
// and appends them to today's snapshot file.
func (s *SnapshotIngester) Capture(ctx context.Context) ([]models.MarketSnapshot, error) {
	now := time.Now().UTC()

	markets, err := s.client.FetchMarkets(ctx, s.filters)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch markets: %w", err)
	}

	snapshots := make([]models.MarketSnapshot, 0, len(markets))
	for i := range markets {
		m := &markets[i]
		snapshots = append(snapshots, models.MarketSnapshot{
			ID:        uuid.New().String(),
			MarketID:  m.ID,
			Timestamp: now,
			YesPrice:  m.YesPrice,
			Volume:    m.Volume,
			Liquidity: m.Liquidity,
		})
	}

	if err := s.append(snapshots); err != nil {
		return nil, err
	}
	logger.Info("Captured %d snapshots at %s", len(snapshots), now.Format(time.RFC3339))
	return snapshots, nil
}

// Load returns stored snapshots matching the filters, sorted by timestamp.
// Zero start/end times and an empty marketID disable the respective filter.
func (s *SnapshotIngester) Load(start, end time.Time, marketID string) ([]models.MarketSnapshot, error) {
	paths, err := filepath.Glob(filepath.Join(s.dir, "snapshots_*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	var snapshots []models.MarketSnapshot
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read snapshot file %s: %w", path, err)
		}
		var batch []models.MarketSnapshot
		if err := json.Unmarshal(data, &batch); err != nil {
			logger.Warn("Skipping unreadable snapshot file %s: %v", path, err)
			continue
		}
		for _, snap := range batch {
			if !start.IsZero() && snap.Timestamp.Before(start) {
				continue
			}
			if !end.IsZero() && snap.Timestamp.After(end) {
				continue
			}
			if marketID != "" && snap.MarketID != marketID {
				continue
			}
			snapshots = append(snapshots, snap)
		}
	}

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].Timestamp.Before(snapshots[j].Timestamp)
	})
	return snapshots, nil
}

// PriceAt returns the market's price closest to the target time, if any
// snapshot falls within the tolerance.
func (s *SnapshotIngester) PriceAt(marketID string, target time.Time, tolerance time.Duration) (float64, bool) {
	snapshots, err := s.Load(time.Time{}, time.Time{}, marketID)
	if err != nil || len(snapshots) == 0 {
		return 0, false
	}

	var best *models.MarketSnapshot
	var bestDiff time.Duration
	for i := range snapshots {
		diff := snapshots[i].Timestamp.Sub(target)
		if diff < 0 {
			diff = -diff
		}
		if best == nil || diff < bestDiff {
			best = &snapshots[i]
			bestDiff = diff
		}
	}

	if bestDiff > tolerance {
		return 0, false
	}
	return best.YesPrice, true
}

// append adds snapshots to the daily file for their capture date.
func (s *SnapshotIngester) append(snapshots []models.MarketSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create snapshots directory: %w", err)
	}

	path := filepath.Join(s.dir, "snapshots_"+snapshots[0].Timestamp.Format("2006-01-02")+".json")

	var existing []models.MarketSnapshot
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &existing); err != nil {
			logger.Warn("Snapshot file %s is unreadable, starting fresh: %v", path, err)
			existing = nil
		}
	}
	existing = append(existing, snapshots...)

	data, err := json.Marshal(existing)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshots: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename snapshot file: %w", err)
	}
	return nil
}

var _ ActiveMarketFetcher = (*polymarket.Client)(nil)
