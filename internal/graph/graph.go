// Package graph stores the directed relationship graph between markets and
// builds its edges from semantic similarity.
//
// Each edge represents a learned relationship: when the 'from' market (leader)
// resolves, the 'to' market (follower) is expected to reprice according to the
// edge's outcome-conditional deltas. The graph owns edge creation, update, and
// removal; other components only read edges.
package graph

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/samayp01/polyarb-engine/internal/logger"
	"github.com/samayp01/polyarb-engine/internal/models"
)

// EventGraph is a directed graph of market relationships with at most one
// edge per ordered (leader, follower) pair. The outgoing and incoming indices
// are derived from the edge map and rebuilt whenever it mutates; they store
// edge keys only, never duplicate edge records.
type EventGraph struct {
	filePath string
	edges    map[string]models.EventEdge
	outgoing map[string][]string // leader id -> edge keys
	incoming map[string][]string // follower id -> edge keys
	mu       sync.RWMutex
}

// graphFile is the persisted JSON document layout.
type graphFile struct {
	Version   int                `json:"version"`
	UpdatedAt time.Time          `json:"updated_at"`
	EdgeCount int                `json:"edge_count"`
	Edges     []models.EventEdge `json:"edges"`
}

// Stats summarizes the graph's shape.
type Stats struct {
	TotalEdges      int     `json:"total_edges"`
	ValidEdges      int     `json:"valid_edges"`
	UniqueLeaders   int     `json:"unique_leaders"`
	UniqueFollowers int     `json:"unique_followers"`
	AvgSimilarity   float64 `json:"avg_similarity"`
}

// New creates an empty graph persisted at filePath.
func New(filePath string) *EventGraph {
	return &EventGraph{
		filePath: filePath,
		edges:    make(map[string]models.EventEdge),
		outgoing: make(map[string][]string),
		incoming: make(map[string][]string),
	}
}

// Add inserts or replaces edges keyed by their (leader, follower) pair.
// Re-adding an existing key replaces the stored edge wholesale (latest wins,
// no merge). Indices are rebuilt before Add returns.
func (g *EventGraph) Add(edges []models.EventEdge) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, edge := range edges {
		g.edges[edge.Key()] = edge
	}
	g.rebuildIndices()
}

// GetEdge returns the edge between two specific markets.
func (g *EventGraph) GetEdge(fromID, toID string) (models.EventEdge, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	edge, ok := g.edges[models.EdgeKey(fromID, toID)]
	return edge, ok
}

// GetOutgoing returns all edges where the given market is the leader.
func (g *EventGraph) GetOutgoing(leaderID string) []models.EventEdge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.collect(g.outgoing[leaderID])
}

// GetIncoming returns all edges where the given market is the follower.
func (g *EventGraph) GetIncoming(followerID string) []models.EventEdge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.collect(g.incoming[followerID])
}

// GetAll returns every edge, sorted by key for reproducible iteration.
func (g *EventGraph) GetAll() []models.EventEdge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	keys := g.sortedKeys()
	return g.collect(keys)
}

// GetValid returns edges with enough historical evidence to be actionable.
func (g *EventGraph) GetValid(minSamples int, minDelta, minLagSeconds float64) []models.EventEdge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var valid []models.EventEdge
	for _, key := range g.sortedKeys() {
		edge := g.edges[key]
		if edge.IsValid(minSamples, minDelta, minLagSeconds) {
			valid = append(valid, edge)
		}
	}
	return valid
}

// Clear removes all edges and their indices.
func (g *EventGraph) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.edges = make(map[string]models.EventEdge)
	g.rebuildIndices()
}

// Stats computes summary statistics; the validity thresholds match GetValid.
func (g *EventGraph) Stats(minSamples int, minDelta, minLagSeconds float64) Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	stats := Stats{
		TotalEdges:      len(g.edges),
		UniqueLeaders:   len(g.outgoing),
		UniqueFollowers: len(g.incoming),
	}
	if len(g.edges) == 0 {
		return stats
	}

	var simSum float64
	for _, edge := range g.edges {
		simSum += edge.Similarity
		if edge.IsValid(minSamples, minDelta, minLagSeconds) {
			stats.ValidEdges++
		}
	}
	stats.AvgSimilarity = simSum / float64(len(g.edges))
	return stats
}

// Save persists the graph as a single JSON document, written atomically via a
// temp file and rename so readers never observe a torn write.
func (g *EventGraph) Save() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	dir := filepath.Dir(g.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	doc := graphFile{
		Version:   1,
		UpdatedAt: time.Now().UTC(),
		EdgeCount: len(g.edges),
		Edges:     g.collect(g.sortedKeys()),
	}
	if doc.Edges == nil {
		doc.Edges = []models.EventEdge{}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal graph: %w", err)
	}

	tempPath := g.filePath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write graph file: %w", err)
	}
	if err := os.Rename(tempPath, g.filePath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename graph file: %w", err)
	}
	return nil
}

// Load restores the graph from its file. A missing file is not an error; the
// graph starts empty.
func (g *EventGraph) Load() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	// Clean up any stale temp file from a previous crash
	tempPath := g.filePath + ".tmp"
	if _, err := os.Stat(tempPath); err == nil {
		_ = os.Remove(tempPath)
	}

	if _, err := os.Stat(g.filePath); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(g.filePath)
	if err != nil {
		return fmt.Errorf("failed to read graph file: %w", err)
	}

	var doc graphFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to unmarshal graph: %w", err)
	}

	g.edges = make(map[string]models.EventEdge, len(doc.Edges))
	for _, edge := range doc.Edges {
		if err := edge.Validate(); err != nil {
			logger.Debug("Dropping invalid persisted edge %s: %v", edge.Key(), err)
			continue
		}
		g.edges[edge.Key()] = edge
	}
	g.rebuildIndices()

	logger.Info("Loaded %d edges from %s", len(g.edges), g.filePath)
	return nil
}

// rebuildIndices reconstructs the outgoing and incoming key indices from the
// primary edge map. Callers must hold the write lock.
func (g *EventGraph) rebuildIndices() {
	g.outgoing = make(map[string][]string)
	g.incoming = make(map[string][]string)
	for key, edge := range g.edges {
		g.outgoing[edge.FromMarketID] = append(g.outgoing[edge.FromMarketID], key)
		g.incoming[edge.ToMarketID] = append(g.incoming[edge.ToMarketID], key)
	}
	for _, keys := range g.outgoing {
		sort.Strings(keys)
	}
	for _, keys := range g.incoming {
		sort.Strings(keys)
	}
}

func (g *EventGraph) sortedKeys() []string {
	keys := make([]string, 0, len(g.edges))
	for key := range g.edges {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (g *EventGraph) collect(keys []string) []models.EventEdge {
	var edges []models.EventEdge
	for _, key := range keys {
		if edge, ok := g.edges[key]; ok {
			edges = append(edges, edge)
		}
	}
	return edges
}
