// Package backtest evaluates whether similar markets resolve the same way,
// by splitting the graph's markets into train and test sets and predicting
// each test market's outcome from a connected train market.
package backtest

import (
	"math/rand"
	"sort"

	"github.com/samayp01/polyarb-engine/internal/config"
	"github.com/samayp01/polyarb-engine/internal/logger"
	"github.com/samayp01/polyarb-engine/internal/models"
)

// EdgeSource is the view of the event graph the harness needs.
type EdgeSource interface {
	GetAll() []models.EventEdge
}

// Engine runs train/test evaluations of the learned graph.
type Engine struct {
	graph    EdgeSource
	outcomes map[string]models.Outcome
	cfg      config.BacktestConfig
}

// NewEngine creates a backtest engine over the graph and a table of known
// final outcomes keyed by market id.
func NewEngine(graph EdgeSource, outcomes map[string]models.Outcome, cfg config.BacktestConfig) *Engine {
	return &Engine{graph: graph, outcomes: outcomes, cfg: cfg}
}

// Run partitions markets into train and test sets and scores the
// leader-follower prediction hypothesis. Too few qualifying markets or no
// bridging edges yields an empty result, never an error. Identical inputs
// always produce identical results.
func (e *Engine) Run(testFraction float64) models.BacktestResult {
	edges := e.graph.GetAll()

	universe := e.marketUniverse(edges)
	if len(universe) < e.cfg.MinMarkets {
		logger.Warn("Backtest needs at least %d markets with known outcomes, have %d", e.cfg.MinMarkets, len(universe))
		return models.BacktestResult{Buckets: similarityBuckets()}
	}

	train, test := e.split(universe, testFraction)

	// Leakage boundary: correlation statistics come only from edges with
	// both endpoints in the train set.
	trainEdges := 0
	agree := 0
	for i := range edges {
		edge := &edges[i]
		if !train[edge.FromMarketID] || !train[edge.ToMarketID] {
			continue
		}
		trainEdges++
		if e.outcomes[edge.FromMarketID] == e.outcomes[edge.ToMarketID] {
			agree++
		}
	}
	if trainEdges > 0 {
		logger.Info("Train set: %d edges, %.1f%% same-outcome agreement", trainEdges, 100*float64(agree)/float64(trainEdges))
	}

	result := models.BacktestResult{Buckets: similarityBuckets()}
	majority := e.trainMajority(train)
	baselineCorrect := 0

	for i := range edges {
		edge := &edges[i]
		trade, ok := e.evaluateBridge(edge, train, test)
		if !ok {
			continue
		}

		result.TotalSignals++
		if trade.Profitable {
			result.ProfitableSignals++
			result.TotalPnL += 1.0
		} else {
			result.TotalPnL -= 1.0
		}
		if trade.ActualOutcome == majority {
			baselineCorrect++
		}
		bucketTrade(result.Buckets, edge.Similarity, trade.Profitable)

		if len(result.Trades) < e.cfg.MaxTradeDetail {
			result.Trades = append(result.Trades, trade)
		}
	}

	if result.TotalSignals == 0 {
		logger.Warn("Backtest produced no bridging edges")
		return result
	}

	result.HitRate = float64(result.ProfitableSignals) / float64(result.TotalSignals)
	result.BaselineHitRate = float64(baselineCorrect) / float64(result.TotalSignals)
	result.TotalPnL /= e.cfg.PnLScale
	result.AvgPnLPerSignal = result.TotalPnL / float64(result.TotalSignals)
	for i := range result.Buckets {
		b := &result.Buckets[i]
		if b.Count > 0 {
			b.HitRate = float64(b.Correct) / float64(b.Count)
		}
	}

	logger.Info("Backtest: %d predictions, %.1f%% hit rate", result.TotalSignals, 100*result.HitRate)
	return result
}

// trainMajority returns the most common outcome among train markets, the
// baseline predictor the learned graph must beat. Ties resolve to YES.
func (e *Engine) trainMajority(train map[string]bool) models.Outcome {
	yes := 0
	total := 0
	for id := range train {
		total++
		if e.outcomes[id] == models.OutcomeYes {
			yes++
		}
	}
	if 2*yes >= total {
		return models.OutcomeYes
	}
	return models.OutcomeNo
}

// marketUniverse collects every market touched by an edge that has a known
// final outcome.
func (e *Engine) marketUniverse(edges []models.EventEdge) []string {
	seen := make(map[string]bool)
	var ids []string
	for i := range edges {
		for _, id := range []string{edges[i].FromMarketID, edges[i].ToMarketID} {
			if seen[id] {
				continue
			}
			seen[id] = true
			if _, known := e.outcomes[id]; known {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// split deterministically shuffles the universe and partitions it. Ids are
// sorted before shuffling so map iteration order never leaks into the split.
func (e *Engine) split(ids []string, testFraction float64) (train, test map[string]bool) {
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)

	rng := rand.New(rand.NewSource(e.cfg.Seed))
	rng.Shuffle(len(sorted), func(i, j int) { sorted[i], sorted[j] = sorted[j], sorted[i] })

	testCount := int(float64(len(sorted)) * testFraction)
	train = make(map[string]bool, len(sorted)-testCount)
	test = make(map[string]bool, testCount)
	for i, id := range sorted {
		if i < testCount {
			test[id] = true
		} else {
			train[id] = true
		}
	}
	return train, test
}

// evaluateBridge scores one train-test bridging edge: the train endpoint's
// known outcome is the prediction for the test endpoint. Edges that do not
// bridge the split return ok=false.
func (e *Engine) evaluateBridge(edge *models.EventEdge, train, test map[string]bool) (models.Trade, bool) {
	var trainID, testID string
	switch {
	case train[edge.FromMarketID] && test[edge.ToMarketID]:
		trainID, testID = edge.FromMarketID, edge.ToMarketID
	case train[edge.ToMarketID] && test[edge.FromMarketID]:
		trainID, testID = edge.ToMarketID, edge.FromMarketID
	default:
		return models.Trade{}, false
	}

	prediction := e.outcomes[trainID]
	actual := e.outcomes[testID]

	return models.Trade{
		TestMarketID:     testID,
		TrainMarketID:    trainID,
		Similarity:       edge.Similarity,
		TrainOutcome:     prediction,
		PredictedOutcome: prediction,
		ActualOutcome:    actual,
		Profitable:       prediction == actual,
	}, true
}

// similarityBuckets builds the accuracy table bands, highest first.
func similarityBuckets() []models.BucketStat {
	bounds := []float64{0.95, 0.90, 0.85, 0.80, 0.75}
	buckets := make([]models.BucketStat, len(bounds))
	for i, low := range bounds {
		buckets[i] = models.BucketStat{Low: low, High: low + 0.05}
	}
	return buckets
}

// bucketTrade assigns a trade to the single bucket containing its similarity.
// Similarities below the lowest floor fall outside the table.
func bucketTrade(buckets []models.BucketStat, similarity float64, profitable bool) {
	for i := range buckets {
		b := &buckets[i]
		if similarity >= b.Low && (similarity < b.High || b.High >= 1.0) {
			b.Count++
			if profitable {
				b.Correct++
			}
			return
		}
	}
}
