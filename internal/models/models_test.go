package models

import (
	"testing"
	"time"
)

func TestOutcomeFromPrice(t *testing.T) {
	tests := []struct {
		name     string
		yesPrice float64
		want     Outcome
	}{
		{name: "clear yes", yesPrice: 0.97, want: OutcomeYes},
		{name: "clear no", yesPrice: 0.02, want: OutcomeNo},
		{name: "just above half", yesPrice: 0.5001, want: OutcomeYes},
		{name: "exact boundary resolves no", yesPrice: 0.5, want: OutcomeNo},
		{name: "zero", yesPrice: 0.0, want: OutcomeNo},
		{name: "one", yesPrice: 1.0, want: OutcomeYes},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := OutcomeFromPrice(tt.yesPrice); got != tt.want {
				t.Errorf("OutcomeFromPrice(%v) = %v, want %v", tt.yesPrice, got, tt.want)
			}
		})
	}
}

func TestOutcomeOpposite(t *testing.T) {
	if OutcomeYes.Opposite() != OutcomeNo {
		t.Error("YES.Opposite() should be NO")
	}
	if OutcomeNo.Opposite() != OutcomeYes {
		t.Error("NO.Opposite() should be YES")
	}
}

func delta(condition Outcome, avg, lag float64, samples int) *ConditionalDelta {
	return &ConditionalDelta{
		Condition:        condition,
		AvgDelta:         avg,
		MedianDelta:      avg,
		StdDelta:         0.1,
		AvgLagSeconds:    lag,
		MedianLagSeconds: lag,
		SampleCount:      samples,
	}
}

func TestEventEdgeIsValid(t *testing.T) {
	tests := []struct {
		name string
		edge EventEdge
		want bool
	}{
		{
			name: "no deltas is never valid",
			edge: EventEdge{FromMarketID: "a", ToMarketID: "b", Similarity: 0.9},
			want: false,
		},
		{
			name: "yes delta clearing all minimums",
			edge: EventEdge{
				FromMarketID: "a", ToMarketID: "b", Similarity: 0.9,
				YesDelta: delta(OutcomeYes, 0.3, 3600, 5),
			},
			want: true,
		},
		{
			name: "sample count below minimum",
			edge: EventEdge{
				FromMarketID: "a", ToMarketID: "b", Similarity: 0.9,
				YesDelta: delta(OutcomeYes, 0.3, 3600, 0),
			},
			want: false,
		},
		{
			name: "delta magnitude below minimum",
			edge: EventEdge{
				FromMarketID: "a", ToMarketID: "b", Similarity: 0.9,
				YesDelta: delta(OutcomeYes, 0.01, 3600, 5),
			},
			want: false,
		},
		{
			name: "negative delta magnitude counts",
			edge: EventEdge{
				FromMarketID: "a", ToMarketID: "b", Similarity: 0.9,
				YesDelta: delta(OutcomeYes, -0.3, 3600, 5),
			},
			want: true,
		},
		{
			name: "lag below minimum",
			edge: EventEdge{
				FromMarketID: "a", ToMarketID: "b", Similarity: 0.9,
				YesDelta: delta(OutcomeYes, 0.3, 10, 5),
			},
			want: false,
		},
		{
			name: "one good delta and one bad delta",
			edge: EventEdge{
				FromMarketID: "a", ToMarketID: "b", Similarity: 0.9,
				YesDelta: delta(OutcomeYes, 0.3, 3600, 5),
				NoDelta:  delta(OutcomeNo, 0.001, 3600, 5),
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.edge.IsValid(1, 0.03, 60); got != tt.want {
				t.Errorf("IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEventEdgeDelta(t *testing.T) {
	yes := delta(OutcomeYes, 0.2, 3600, 3)
	no := delta(OutcomeNo, -0.2, 3600, 3)
	edge := EventEdge{FromMarketID: "a", ToMarketID: "b", Similarity: 0.8, YesDelta: yes, NoDelta: no}

	if edge.Delta(OutcomeYes) != yes {
		t.Error("Delta(YES) should return the yes delta")
	}
	if edge.Delta(OutcomeNo) != no {
		t.Error("Delta(NO) should return the no delta")
	}

	bare := EventEdge{FromMarketID: "a", ToMarketID: "b", Similarity: 0.8}
	if bare.Delta(OutcomeYes) != nil || bare.Delta(OutcomeNo) != nil {
		t.Error("Delta on a candidate edge should be nil for both outcomes")
	}
}

func TestEventEdgeValidate(t *testing.T) {
	tests := []struct {
		name    string
		edge    EventEdge
		wantErr bool
	}{
		{
			name:    "valid candidate edge",
			edge:    EventEdge{FromMarketID: "a", ToMarketID: "b", Similarity: 0.85, Confidence: 0.85},
			wantErr: false,
		},
		{
			name:    "missing follower",
			edge:    EventEdge{FromMarketID: "a", Similarity: 0.85},
			wantErr: true,
		},
		{
			name:    "self loop",
			edge:    EventEdge{FromMarketID: "a", ToMarketID: "a", Similarity: 0.85},
			wantErr: true,
		},
		{
			name:    "similarity out of range",
			edge:    EventEdge{FromMarketID: "a", ToMarketID: "b", Similarity: 1.2},
			wantErr: true,
		},
		{
			name: "bad nested delta",
			edge: EventEdge{
				FromMarketID: "a", ToMarketID: "b", Similarity: 0.85,
				YesDelta: &ConditionalDelta{Condition: "MAYBE"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.edge.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("EventEdge.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSignalValidate(t *testing.T) {
	valid := Signal{
		ID:             "sig-1",
		MarketID:       "m2",
		Direction:      DirectionBuy,
		CurrentPrice:   0.50,
		ExpectedPrice:  0.65,
		ExpectedMove:   0.15,
		Confidence:     0.6,
		LeaderMarketID: "m1",
		LeaderOutcome:  OutcomeYes,
		SourceEdge:     EventEdge{FromMarketID: "m1", ToMarketID: "m2", Similarity: 0.9, Confidence: 0.9},
		GeneratedAt:    time.Now(),
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid signal failed validation: %v", err)
	}

	bad := valid
	bad.Direction = "HOLD"
	if err := bad.Validate(); err == nil {
		t.Error("expected error for unknown direction")
	}

	bad = valid
	bad.ExpectedPrice = 1.5
	if err := bad.Validate(); err == nil {
		t.Error("expected error for expected price out of range")
	}
}

func TestResolutionValidate(t *testing.T) {
	valid := Resolution{MarketID: "m1", ResolvedAt: time.Now(), Outcome: OutcomeYes, Question: "Will X happen?"}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid resolution failed validation: %v", err)
	}

	bad := valid
	bad.Outcome = "UNKNOWN"
	if err := bad.Validate(); err == nil {
		t.Error("expected error for unknown outcome")
	}

	bad = valid
	bad.MarketID = ""
	if err := bad.Validate(); err == nil {
		t.Error("expected error for empty market ID")
	}
}

func TestMarketHelpers(t *testing.T) {
	m := Market{ID: "m1", Question: "Will X happen?", YesPrice: 0.72}
	if got := m.NoPrice(); got != 0.28 {
		t.Errorf("NoPrice() = %v, want 0.28", got)
	}

	long := Market{Question: "Q", Description: string(make([]byte, 500))}
	if len(long.EmbeddingText()) > len("Q ")+200 {
		t.Errorf("EmbeddingText should bound the description prefix, got len %d", len(long.EmbeddingText()))
	}

	if !(&Market{YesPrice: 0.95}).ClearlyResolved() {
		t.Error("0.95 should be clearly resolved")
	}
	if (&Market{YesPrice: 0.5}).ClearlyResolved() {
		t.Error("0.5 should not be clearly resolved")
	}
}
