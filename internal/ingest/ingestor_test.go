package ingest

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"vantage-engine/internal/venue/kalshi"
	"vantage-engine/internal/venue/polymarket"
	"vantage-engine/pkg/types"
)

type fakeSink struct {
	mu     sync.Mutex
	quotes []types.Quote
}

func (f *fakeSink) Enqueue(q types.Quote) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotes = append(f.quotes, q)
	return true
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.quotes)
}

func (f *fakeSink) at(i int) types.Quote {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.quotes[i]
}

func waitForQuotes(t *testing.T, sink *fakeSink, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for sink.count() < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d quotes, have %d", n, sink.count())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// A book update queued ahead of a trade must be applied before the trade
// normalizes, so the trade picks up the book's mid and depth.
func TestRunPolymarketProcessesEventsInOrder(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	ing := NewIngestor(NewCache(), sink, nil, nil, slog.Default())

	events := make(chan polymarket.Event, 8)
	events <- polymarket.BookEvent{
		AssetID: "asset-1",
		Bids:    []polymarket.LadderLevel{{Price: 0.63, Size: 100}},
		Asks:    []polymarket.LadderLevel{{Price: 0.65, Size: 100}},
	}
	events <- polymarket.TradeEvent{
		AssetID: "asset-1",
		Price:   0.66,
		Size:    10,
		Side:    "BUY",
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ing.RunPolymarket(ctx, events)

	waitForQuotes(t, sink, 1)
	q := sink.at(0)
	if q.Price != 0.64 {
		t.Errorf("price = %v, want 0.64 (mid from the preceding book, not trade price)", q.Price)
	}
	if q.LiquidityDepthUSD != 128 {
		t.Errorf("depth = %v, want 128", q.LiquidityDepthUSD)
	}
}

// Cents prices on the ticker venue scale deterministically: a 1-cent bid is
// probability 0.01, not 1.0.
func TestRunKalshiScalesCentsPrices(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	cache := NewCache()
	ing := NewIngestor(cache, sink, nil, nil, slog.Default())

	events := make(chan kalshi.Event, 8)
	events <- kalshi.TickerEvent{MarketTicker: "LONGSHOT", YesBid: 1, YesAsk: 3, Volume: 500}
	events <- kalshi.TradeEvent{MarketTicker: "LONGSHOT", YesPrice: 2, Count: 5, TakerSide: "yes", Ts: 1773489600}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ing.RunKalshi(ctx, events)

	waitForQuotes(t, sink, 1)
	q := sink.at(0)
	if math.Abs(float64(q.Price)-0.02) > 1e-12 {
		t.Errorf("price = %v, want 0.02 (mid of 1c/3c)", q.Price)
	}

	entry, ok := cache.Lookup("LONGSHOT")
	if !ok {
		t.Fatal("expected a microstructure entry for LONGSHOT")
	}
	if entry.BestBid != 0.01 || entry.BestAsk != 0.03 {
		t.Errorf("best bid/ask = %v/%v, want 0.01/0.03", entry.BestBid, entry.BestAsk)
	}
}
