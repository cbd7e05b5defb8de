package polymarket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func marketJSON(id, question, prices, volume, liquidity string) string {
	return `{"id":"` + id + `","question":"` + question + `","outcomePrices":"` + prices + `","volume":` + volume + `,"liquidity":` + liquidity + `,"endDate":"2025-06-01T00:00:00Z"}`
}

func newTestClient(baseURL string) *Client {
	return NewClient(baseURL, 5*time.Second, ClientConfig{
		MaxRetries:     3,
		RetryDelayBase: time.Millisecond,
		PageSize:       100,
		MaxPages:       3,
	})
}

func TestFetchMarketsParsesAndFilters(t *testing.T) {
	body := `[` +
		marketJSON("m1", "Will X happen?", `[\"0.72\",\"0.28\"]`, "50000", "10000") + `,` +
		marketJSON("m2", "Thin market?", `[\"0.5\",\"0.5\"]`, "10", "10") + `,` +
		`{"id":"m3","question":"Broken prices","outcomePrices":"not json","volume":100,"liquidity":100}` +
		`]`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("closed") != "false" {
			t.Errorf("active fetch should request closed=false, got %q", r.URL.Query().Get("closed"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	markets, err := client.FetchMarkets(context.Background(), MarketFilters{MinLiquidity: 1000, MinVolume: 1000})
	if err != nil {
		t.Fatalf("FetchMarkets failed: %v", err)
	}

	if len(markets) != 1 {
		t.Fatalf("market count = %d, want 1 (thin + malformed filtered)", len(markets))
	}
	m := markets[0]
	if m.ID != "m1" || m.YesPrice != 0.72 || m.Volume != 50000 {
		t.Errorf("unexpected parsed market: %+v", m)
	}
	if m.EndDate.IsZero() {
		t.Error("end date should be parsed")
	}
}

func TestFetchClosedMarketsPaging(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		if call == 1 {
			// Full page forces a second fetch
			page := make([]json.RawMessage, 100)
			for i := range page {
				page[i] = json.RawMessage(marketJSON("m"+string(rune('a'+i%26))+string(rune('0'+i/26)), "Q?", `[\"0.95\",\"0.05\"]`, "100", "100"))
			}
			_ = json.NewEncoder(w).Encode(page)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	markets, err := client.FetchClosedMarkets(context.Background())
	if err != nil {
		t.Fatalf("FetchClosedMarkets failed: %v", err)
	}
	if len(markets) != 100 {
		t.Errorf("market count = %d, want 100", len(markets))
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("expected 2 page fetches, got %d", calls)
	}
}

func TestRetryOnServerError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`[` + marketJSON("m1", "Q?", `[\"0.9\",\"0.1\"]`, "5000", "5000") + `]`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	markets, err := client.FetchMarkets(context.Background(), MarketFilters{})
	if err != nil {
		t.Fatalf("FetchMarkets failed: %v", err)
	}
	if len(markets) != 1 {
		t.Errorf("market count = %d, want 1 after retries", len(markets))
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
}

func TestExhaustedRetriesReturnPartialResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	markets, err := client.FetchMarkets(context.Background(), MarketFilters{})
	if err != nil {
		t.Fatalf("exhausted retries should degrade to an empty batch, got error: %v", err)
	}
	if len(markets) != 0 {
		t.Errorf("market count = %d, want 0", len(markets))
	}
}

func TestParsePricesVariants(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		want   float64
		wantOK bool
	}{
		{name: "string-encoded array", raw: `"[\"0.72\", \"0.28\"]"`, want: 0.72, wantOK: true},
		{name: "plain string array", raw: `["0.6", "0.4"]`, want: 0.6, wantOK: true},
		{name: "numeric array", raw: `[0.55, 0.45]`, want: 0.55, wantOK: true},
		{name: "garbage", raw: `"oops"`, wantOK: false},
		{name: "empty array", raw: `[]`, wantOK: false},
		{name: "non-numeric strings", raw: `["high", "low"]`, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prices, ok := parsePrices(json.RawMessage(tt.raw))
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && prices[0] != tt.want {
				t.Errorf("prices[0] = %v, want %v", prices[0], tt.want)
			}
		})
	}
}
