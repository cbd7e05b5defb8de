package models

// Trade records the outcome of one leader→follower prediction made during a
// backtest: the held-out market's outcome was predicted from the training
// market's known outcome.
type Trade struct {
	TestMarketID     string  `json:"test_market_id"`
	TrainMarketID    string  `json:"train_market_id"`
	Similarity       float64 `json:"similarity"`
	TrainOutcome     Outcome `json:"train_outcome"`
	PredictedOutcome Outcome `json:"predicted_outcome"`
	ActualOutcome    Outcome `json:"actual_outcome"`
	Profitable       bool    `json:"profitable"`
}

// BucketStat aggregates prediction accuracy within a half-open similarity
// range [Low, High).
type BucketStat struct {
	Low     float64 `json:"low"`
	High    float64 `json:"high"`
	Count   int     `json:"count"`
	Correct int     `json:"correct"`
	HitRate float64 `json:"hit_rate"`
}

// BacktestResult aggregates trades from a backtest run into summary metrics.
// BaselineHitRate is the accuracy of always predicting the train set's
// majority outcome, for comparison. Trades holds a bounded sample of
// trade-level detail for inspection.
type BacktestResult struct {
	TotalSignals      int          `json:"total_signals"`
	ProfitableSignals int          `json:"profitable_signals"`
	TotalPnL          float64      `json:"total_pnl"`
	AvgPnLPerSignal   float64      `json:"avg_pnl_per_signal"`
	HitRate           float64      `json:"hit_rate"`
	BaselineHitRate   float64      `json:"baseline_hit_rate"`
	Buckets           []BucketStat `json:"buckets,omitempty"`
	Trades            []Trade      `json:"trades,omitempty"`
}

// Empty reports whether the result carries no evaluated trades.
func (r *BacktestResult) Empty() bool {
	return r.TotalSignals == 0
}
