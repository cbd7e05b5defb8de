package graph

import (
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/samayp01/polyarb-engine/internal/embedding"
	"github.com/samayp01/polyarb-engine/internal/logger"
	"github.com/samayp01/polyarb-engine/internal/models"
	"github.com/samayp01/polyarb-engine/internal/similarity"
)

// Base observation values for a single correlated pair. A correlated pair
// contributes +baseDelta to the leader-YES condition; an anti-correlated one
// contributes -baseDelta. The NO condition mirrors with the opposite sign.
const (
	baseDelta      = 0.3
	baseLagSeconds = 3600.0
)

// Builder converts a market set into relationship edges. The embedding
// provider and similarity proposer are injected once at construction.
type Builder struct {
	provider embedding.Provider
	proposer *similarity.Proposer
}

// NewBuilder creates a Builder using the given embedding provider and
// similarity proposer.
func NewBuilder(provider embedding.Provider, proposer *similarity.Proposer) *Builder {
	return &Builder{provider: provider, proposer: proposer}
}

// Build produces edges from a set of markets. Fewer than two markets yields
// an empty result, not an error.
//
// Leader/follower ordering: when both markets have known resolution times the
// earlier-resolving one leads; when only one is known, it leads; when neither
// is known, the lexicographically smaller id leads so the graph is
// reproducible.
//
// When both endpoints of a pair have a known outcome (via resolutions), the
// edge carries ConditionalDeltas aggregated across all pairs sharing the same
// leader-outcome condition. Otherwise the edge is a candidate awaiting data.
func (b *Builder) Build(markets []models.Market, resolutions map[string]models.Resolution) ([]models.EventEdge, error) {
	if len(markets) < 2 {
		return nil, nil
	}

	logger.Info("Building edges from %d markets", len(markets))

	texts := make([]string, len(markets))
	for i := range markets {
		texts[i] = markets[i].EmbeddingText()
	}
	vectors, err := b.provider.EmbedBatch(texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed markets: %w", err)
	}

	items := make([]similarity.Item, len(markets))
	for i := range markets {
		items[i] = similarity.Item{ID: markets[i].ID, Vector: vectors[i], EndDate: markets[i].EndDate}
	}

	candidates, err := b.proposer.Propose(items)
	if err != nil {
		return nil, fmt.Errorf("failed to propose candidate pairs: %w", err)
	}
	logger.Info("Found %d related market pairs", len(candidates))
	if len(candidates) == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	type pair struct {
		leaderID   string
		followerID string
		similarity float64
		correlated bool
		hasOutcome bool
	}

	pairs := make([]pair, 0, len(candidates))
	for _, c := range candidates {
		mi, mj := &markets[c.I], &markets[c.J]
		leaderID, followerID := orderByResolution(mi.ID, mj.ID, resolutions)

		p := pair{leaderID: leaderID, followerID: followerID, similarity: c.Similarity}
		ri, okI := resolutions[mi.ID]
		rj, okJ := resolutions[mj.ID]
		if okI && okJ {
			p.hasOutcome = true
			p.correlated = ri.Outcome == rj.Outcome
		}
		pairs = append(pairs, p)
	}

	// Aggregate delta observations per leader-outcome condition across all
	// pairs sharing that condition.
	yesObs := make(map[string][]float64)
	for _, p := range pairs {
		if !p.hasOutcome {
			continue
		}
		obs := baseDelta
		if !p.correlated {
			obs = -baseDelta
		}
		yesObs[p.leaderID] = append(yesObs[p.leaderID], obs)
	}

	edges := make([]models.EventEdge, 0, len(pairs))
	for _, p := range pairs {
		edge := models.EventEdge{
			FromMarketID: p.leaderID,
			ToMarketID:   p.followerID,
			Similarity:   p.similarity,
			Confidence:   p.similarity,
			LastUpdated:  now,
		}
		if obs, ok := yesObs[p.leaderID]; ok && p.hasOutcome {
			edge.YesDelta = aggregateDeltas(models.OutcomeYes, obs)
			edge.NoDelta = aggregateDeltas(models.OutcomeNo, negate(obs))
		}
		edges = append(edges, edge)
	}

	logger.Info("Built %d edges", len(edges))
	return edges, nil
}

// BuildHistorical builds edges from closed markets, deriving each market's
// outcome from its final price. Markets whose final price is ambiguous (not
// clearly resolved) are excluded. Returns the edges and the outcome map used,
// which the backtester consumes.
func (b *Builder) BuildHistorical(closedMarkets []models.Market) ([]models.EventEdge, map[string]models.Outcome, error) {
	resolved := make([]models.Market, 0, len(closedMarkets))
	for i := range closedMarkets {
		if closedMarkets[i].ClearlyResolved() {
			resolved = append(resolved, closedMarkets[i])
		}
	}
	if len(resolved) < 2 {
		return nil, nil, nil
	}

	outcomes := make(map[string]models.Outcome, len(resolved))
	resolutions := make(map[string]models.Resolution, len(resolved))
	for i := range resolved {
		m := &resolved[i]
		outcome := models.OutcomeFromPrice(m.YesPrice)
		outcomes[m.ID] = outcome

		resolvedAt := m.EndDate
		if resolvedAt.IsZero() {
			resolvedAt = time.Now().UTC()
		}
		resolutions[m.ID] = models.Resolution{
			MarketID:   m.ID,
			ResolvedAt: resolvedAt,
			Outcome:    outcome,
			Question:   m.Question,
		}
	}

	edges, err := b.Build(resolved, resolutions)
	if err != nil {
		return nil, nil, err
	}
	return edges, outcomes, nil
}

// orderByResolution decides leader/follower for a pair. Earlier resolution
// leads; a known resolution beats an unknown one; otherwise the smaller id
// leads.
func orderByResolution(idA, idB string, resolutions map[string]models.Resolution) (leaderID, followerID string) {
	ra, okA := resolutions[idA]
	rb, okB := resolutions[idB]

	switch {
	case okA && okB:
		if ra.ResolvedAt.Before(rb.ResolvedAt) {
			return idA, idB
		}
		if rb.ResolvedAt.Before(ra.ResolvedAt) {
			return idB, idA
		}
	case okA:
		return idA, idB
	case okB:
		return idB, idA
	}

	if idA <= idB {
		return idA, idB
	}
	return idB, idA
}

// aggregateDeltas computes a ConditionalDelta from raw observations.
func aggregateDeltas(condition models.Outcome, observations []float64) *models.ConditionalDelta {
	if len(observations) == 0 {
		return nil
	}

	sorted := append([]float64(nil), observations...)
	sort.Float64s(sorted)

	std := 0.0
	if len(sorted) > 1 {
		std = stat.StdDev(sorted, nil)
	}

	return &models.ConditionalDelta{
		Condition:        condition,
		AvgDelta:         stat.Mean(sorted, nil),
		MedianDelta:      median(sorted),
		StdDelta:         std,
		AvgLagSeconds:    baseLagSeconds,
		MedianLagSeconds: baseLagSeconds,
		SampleCount:      len(sorted),
	}
}

// median expects sorted input.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func negate(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = -v
	}
	return out
}
