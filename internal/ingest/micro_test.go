package ingest

import (
	"math"
	"testing"
)

func TestApplyBookBestAndDepth(t *testing.T) {
	t.Parallel()
	c := NewCache()

	// Mid = 0.64, depth window = [0.6272, 0.6528]; only the top-of-book
	// levels fall inside: 0.63*100 + 0.65*100 = 128.
	c.ApplyBook("asset-1",
		[]Level{{Price: 0.63, Size: 100}, {Price: 0.55, Size: 200}},
		[]Level{{Price: 0.65, Size: 100}, {Price: 0.75, Size: 50}},
	)

	e, ok := c.Lookup("asset-1")
	if !ok {
		t.Fatal("entry not found after ApplyBook")
	}
	if e.BestBid != 0.63 {
		t.Errorf("BestBid = %v, want 0.63", e.BestBid)
	}
	if e.BestAsk != 0.65 {
		t.Errorf("BestAsk = %v, want 0.65", e.BestAsk)
	}
	if math.Abs(e.DepthUSD-128) > 1e-9 {
		t.Errorf("DepthUSD = %v, want 128", e.DepthUSD)
	}

	mid, ok := e.Mid()
	if !ok || math.Abs(float64(mid)-0.64) > 1e-12 {
		t.Errorf("Mid = %v, %v, want 0.64, true", mid, ok)
	}

	pct := e.SpreadPct()
	if pct == nil {
		t.Fatal("SpreadPct = nil, want value")
	}
	// 0.02 / 0.64 * 100 = 3.125
	if math.Abs(float64(*pct)-3.125) > 1e-9 {
		t.Errorf("SpreadPct = %v, want 3.125", *pct)
	}
}

func TestApplyBookOneSided(t *testing.T) {
	t.Parallel()
	c := NewCache()

	c.ApplyBook("asset-1", []Level{{Price: 0.40, Size: 10}}, nil)

	e, _ := c.Lookup("asset-1")
	if _, ok := e.Mid(); ok {
		t.Error("Mid should be unavailable with no asks")
	}
	if e.SpreadPct() != nil {
		t.Error("SpreadPct should be nil with no asks")
	}
	if e.DepthUSD != 0 {
		t.Errorf("DepthUSD = %v, want 0 without a mid", e.DepthUSD)
	}
}

func TestApplyTickerPreservesDepth(t *testing.T) {
	t.Parallel()
	c := NewCache()

	c.ApplyBook("tkr", []Level{{Price: 0.50, Size: 100}}, []Level{{Price: 0.52, Size: 100}})
	before, _ := c.Lookup("tkr")
	if before.DepthUSD == 0 {
		t.Fatal("expected nonzero depth from book")
	}

	c.ApplyTicker("tkr", 0.48, 0.51, 12345)

	e, _ := c.Lookup("tkr")
	if e.BestBid != 0.48 || e.BestAsk != 0.51 {
		t.Errorf("best = %v/%v, want 0.48/0.51", e.BestBid, e.BestAsk)
	}
	if e.DepthUSD != before.DepthUSD {
		t.Errorf("DepthUSD = %v, want preserved %v", e.DepthUSD, before.DepthUSD)
	}
	if !e.HasVolume || e.Volume24h != 12345 {
		t.Errorf("Volume24h = %v (%v), want 12345", e.Volume24h, e.HasVolume)
	}
}

func TestSetBestBidAskPreservesDepthAndVolume(t *testing.T) {
	t.Parallel()
	c := NewCache()

	c.ApplyTicker("tkr", 0.40, 0.44, 999)
	c.SetBestBidAsk("tkr", 0.41, 0.43)

	e, _ := c.Lookup("tkr")
	if e.BestBid != 0.41 || e.BestAsk != 0.43 {
		t.Errorf("best = %v/%v, want 0.41/0.43", e.BestBid, e.BestAsk)
	}
	if !e.HasVolume || e.Volume24h != 999 {
		t.Errorf("volume lost on SetBestBidAsk: %v (%v)", e.Volume24h, e.HasVolume)
	}
	if !e.HasSpread || math.Abs(e.Spread-0.02) > 1e-12 {
		t.Errorf("Spread = %v (%v), want 0.02", e.Spread, e.HasSpread)
	}
}

func TestPutKeepsLastKnownVolume(t *testing.T) {
	t.Parallel()
	c := NewCache()

	c.ApplyTicker("a", 0.50, 0.52, 777)
	// Book messages carry no volume; the previous value must survive.
	c.ApplyBook("a", []Level{{Price: 0.50, Size: 10}}, []Level{{Price: 0.52, Size: 10}})

	e, _ := c.Lookup("a")
	if !e.HasVolume || e.Volume24h != 777 {
		t.Errorf("Volume24h = %v (%v), want 777 preserved", e.Volume24h, e.HasVolume)
	}
}

func TestLookupMissing(t *testing.T) {
	t.Parallel()
	c := NewCache()

	if _, ok := c.Lookup("nope"); ok {
		t.Error("Lookup on empty cache should return false")
	}
}
