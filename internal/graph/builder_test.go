package graph

import (
	"testing"
	"time"

	"github.com/samayp01/polyarb-engine/internal/embedding"
	"github.com/samayp01/polyarb-engine/internal/models"
	"github.com/samayp01/polyarb-engine/internal/similarity"
)

func newTestBuilder(t *testing.T, minSimilarity float64) *Builder {
	t.Helper()
	provider, err := embedding.NewHashingProvider(256)
	if err != nil {
		t.Fatalf("NewHashingProvider failed: %v", err)
	}
	return NewBuilder(provider, similarity.NewProposer(minSimilarity, 0, 1))
}

func testMarkets() []models.Market {
	end := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	return []models.Market{
		{ID: "m1", Question: "Will the Fed cut rates in September?", YesPrice: 0.95, EndDate: end},
		{ID: "m2", Question: "Will the Fed cut interest rates in September this year?", YesPrice: 0.93, EndDate: end},
		{ID: "m3", Question: "Will the Fed cut rates before October?", YesPrice: 0.05, EndDate: end},
	}
}

func TestBuildTooFewMarkets(t *testing.T) {
	b := newTestBuilder(t, 0.1)

	edges, err := b.Build([]models.Market{{ID: "m1", Question: "only one"}}, nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if edges != nil {
		t.Errorf("expected empty result for fewer than two markets, got %d edges", len(edges))
	}
}

func TestBuildCandidateEdges(t *testing.T) {
	b := newTestBuilder(t, 0.1)

	edges, err := b.Build(testMarkets(), nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(edges) == 0 {
		t.Fatal("expected candidate edges for similar questions")
	}

	for _, edge := range edges {
		if edge.YesDelta != nil || edge.NoDelta != nil {
			t.Errorf("edge %s should be a candidate with nil deltas", edge.Key())
		}
		if edge.Confidence != edge.Similarity {
			t.Errorf("candidate confidence should equal similarity: %+v", edge)
		}
		// Without resolutions, lexicographic id order decides the leader
		if edge.FromMarketID > edge.ToMarketID {
			t.Errorf("edge %s not in lexicographic leader order", edge.Key())
		}
	}
}

func TestBuildLeaderOrdering(t *testing.T) {
	markets := testMarkets()[:2]
	earlier := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	later := time.Date(2025, 5, 20, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		resolutions map[string]models.Resolution
		wantLeader  string
	}{
		{
			name: "earlier resolution leads",
			resolutions: map[string]models.Resolution{
				"m1": {MarketID: "m1", ResolvedAt: later, Outcome: models.OutcomeYes},
				"m2": {MarketID: "m2", ResolvedAt: earlier, Outcome: models.OutcomeYes},
			},
			wantLeader: "m2",
		},
		{
			name: "only known resolution leads",
			resolutions: map[string]models.Resolution{
				"m2": {MarketID: "m2", ResolvedAt: earlier, Outcome: models.OutcomeYes},
			},
			wantLeader: "m2",
		},
		{
			name:        "neither known falls back to smaller id",
			resolutions: nil,
			wantLeader:  "m1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBuilder(t, 0.1)
			edges, err := b.Build(markets, tt.resolutions)
			if err != nil {
				t.Fatalf("Build failed: %v", err)
			}
			if len(edges) != 1 {
				t.Fatalf("edge count = %d, want 1", len(edges))
			}
			if edges[0].FromMarketID != tt.wantLeader {
				t.Errorf("leader = %s, want %s", edges[0].FromMarketID, tt.wantLeader)
			}
		})
	}
}

func TestBuildDeterminism(t *testing.T) {
	b := newTestBuilder(t, 0.1)
	markets := testMarkets()

	first, err := b.Build(markets, nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	second, err := b.Build(markets, nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("edge counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Key() != second[i].Key() || first[i].Similarity != second[i].Similarity {
			t.Errorf("edge %d differs between runs: %s vs %s", i, first[i].Key(), second[i].Key())
		}
	}
}

func TestBuildHistoricalDeltas(t *testing.T) {
	b := newTestBuilder(t, 0.1)

	edges, outcomes, err := b.BuildHistorical(testMarkets())
	if err != nil {
		t.Fatalf("BuildHistorical failed: %v", err)
	}
	if len(edges) == 0 {
		t.Fatal("expected edges from resolved markets")
	}

	if outcomes["m1"] != models.OutcomeYes || outcomes["m2"] != models.OutcomeYes || outcomes["m3"] != models.OutcomeNo {
		t.Errorf("unexpected outcomes: %v", outcomes)
	}

	for _, edge := range edges {
		if edge.YesDelta == nil || edge.NoDelta == nil {
			t.Fatalf("historical edge %s missing conditional deltas", edge.Key())
		}
		if edge.YesDelta.Condition != models.OutcomeYes || edge.NoDelta.Condition != models.OutcomeNo {
			t.Errorf("delta conditions mislabeled on %s", edge.Key())
		}
		if edge.YesDelta.AvgDelta != -edge.NoDelta.AvgDelta {
			t.Errorf("yes/no deltas should mirror: %v vs %v", edge.YesDelta.AvgDelta, edge.NoDelta.AvgDelta)
		}
		if edge.YesDelta.SampleCount < 1 {
			t.Errorf("sample count = %d, want >= 1", edge.YesDelta.SampleCount)
		}
	}
}

func TestBuildHistoricalExcludesAmbiguousMarkets(t *testing.T) {
	end := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	markets := append(testMarkets(),
		models.Market{ID: "m4", Question: "Will the Fed cut rates in September?", YesPrice: 0.55, EndDate: end})

	b := newTestBuilder(t, 0.1)
	edges, outcomes, err := b.BuildHistorical(markets)
	if err != nil {
		t.Fatalf("BuildHistorical failed: %v", err)
	}

	if _, ok := outcomes["m4"]; ok {
		t.Error("market with ambiguous final price should be excluded")
	}
	for _, edge := range edges {
		if edge.FromMarketID == "m4" || edge.ToMarketID == "m4" {
			t.Errorf("ambiguous market should touch no edges, found %s", edge.Key())
		}
	}
}

func TestBuildHistoricalAggregatesPerLeaderCondition(t *testing.T) {
	end := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	// Four near-identical questions so every pair clears the threshold.
	// m1 leads (lexicographic, same end date); its condition aggregates
	// observations from every pair it leads.
	markets := []models.Market{
		{ID: "m1", Question: "Will the Fed cut rates in September?", YesPrice: 0.95, EndDate: end},
		{ID: "m2", Question: "Will the Fed cut rates in September?", YesPrice: 0.95, EndDate: end},
		{ID: "m3", Question: "Will the Fed cut rates in September?", YesPrice: 0.05, EndDate: end},
	}

	b := newTestBuilder(t, 0.5)
	edges, _, err := b.BuildHistorical(markets)
	if err != nil {
		t.Fatalf("BuildHistorical failed: %v", err)
	}

	for _, edge := range edges {
		if edge.FromMarketID != "m1" {
			continue
		}
		// m1 leads m2 (correlated, +0.3) and m3 (anti-correlated, -0.3):
		// the shared condition aggregates both observations.
		if edge.YesDelta.SampleCount != 2 {
			t.Errorf("edge %s sample count = %d, want 2", edge.Key(), edge.YesDelta.SampleCount)
		}
		if edge.YesDelta.AvgDelta != 0.0 {
			t.Errorf("edge %s avg delta = %v, want 0 from (+0.3, -0.3)", edge.Key(), edge.YesDelta.AvgDelta)
		}
		if edge.YesDelta.StdDelta <= 0 {
			t.Errorf("edge %s std delta = %v, want > 0", edge.Key(), edge.YesDelta.StdDelta)
		}
	}
}
