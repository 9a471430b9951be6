package catalog

import (
	"testing"

	"vantage-engine/pkg/types"
)

func testMarkets() []types.Market {
	return []types.Market{
		{MarketKey: "both_venues", EventName: "Both", PolymarketID: "asset-1", KalshiTicker: "TKR-1"},
		{MarketKey: "kalshi_only", EventName: "Kalshi only", KalshiTicker: "TKR-2"},
		{MarketKey: "demo_only", EventName: "Demo only", PolymarketID: "asset-3"},
	}
}

func TestCatalogSortedByKey(t *testing.T) {
	t.Parallel()

	cat := New(testMarkets())
	all := cat.All()
	if len(all) != 3 {
		t.Fatalf("len = %d, want 3", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].MarketKey >= all[i].MarketKey {
			t.Errorf("catalog not sorted: %s before %s", all[i-1].MarketKey, all[i].MarketKey)
		}
	}
}

func TestIdentifierPrefersPolymarket(t *testing.T) {
	t.Parallel()

	if got := Identifier(types.Market{PolymarketID: "asset-1", KalshiTicker: "TKR"}); got != "asset-1" {
		t.Errorf("Identifier = %q, want asset-1", got)
	}
	if got := Identifier(types.Market{KalshiTicker: "TKR"}); got != "TKR" {
		t.Errorf("Identifier = %q, want TKR", got)
	}
}

func TestNamesByIdentifier(t *testing.T) {
	t.Parallel()

	names := New(testMarkets()).NamesByIdentifier()
	if names["asset-1"] != "Both" || names["TKR-1"] != "Both" {
		t.Errorf("both-venue market should map both identifiers: %v", names)
	}
	if names["TKR-2"] != "Kalshi only" {
		t.Errorf("names[TKR-2] = %q", names["TKR-2"])
	}
}

func TestResolvePriority(t *testing.T) {
	t.Parallel()

	cat := New(testMarkets())
	latest := map[string]types.Quote{
		"asset-1": {ProbabilityPct: 64, LiquidityDepthUSD: 2000},
		"TKR-1":   {ProbabilityPct: 58, LiquidityDepthUSD: 900},
		"TKR-2":   {ProbabilityPct: 40, LiquidityDepthUSD: 700},
	}
	demo := map[string]float64{"both_venues": 10, "demo_only": 33}
	r := NewResolver(cat, latest, demo)

	// Live via the Polymarket identifier beats the Kalshi quote and the demo value.
	sig, ok := r.Resolve("both_venues")
	if !ok || sig.ProbabilityPct != 64 || !sig.Live {
		t.Errorf("both_venues = %+v, %v; want 64 live", sig, ok)
	}
	if sig.DepthUSD != 2000 {
		t.Errorf("DepthUSD = %v, want 2000", sig.DepthUSD)
	}

	// Kalshi live quote when no Polymarket quote exists.
	sig, ok = r.Resolve("kalshi_only")
	if !ok || sig.ProbabilityPct != 40 || !sig.Live {
		t.Errorf("kalshi_only = %+v, %v; want 40 live", sig, ok)
	}

	// Demo fallback when no venue has a quote.
	sig, ok = r.Resolve("demo_only")
	if !ok || sig.ProbabilityPct != 33 || sig.Live {
		t.Errorf("demo_only = %+v, %v; want 33 not-live", sig, ok)
	}
	if sig.DepthUSD != 0 {
		t.Errorf("demo DepthUSD = %v, want 0", sig.DepthUSD)
	}
}

func TestResolveStrictWithoutDemo(t *testing.T) {
	t.Parallel()

	r := NewResolver(New(testMarkets()), nil, nil)
	if _, ok := r.Resolve("demo_only"); ok {
		t.Error("Resolve should fail with no quotes and no demo table")
	}
	if _, ok := r.Resolve("not_in_catalog"); ok {
		t.Error("Resolve should fail for unknown keys")
	}
}

func TestPriceMapOmitsUnresolvable(t *testing.T) {
	t.Parallel()

	latest := map[string]types.Quote{"asset-1": {ProbabilityPct: 64}}
	r := NewResolver(New(testMarkets()), latest, nil)

	prices := r.PriceMap()
	if len(prices) != 1 {
		t.Fatalf("prices = %v, want only both_venues", prices)
	}
	if prices["both_venues"] != 64 {
		t.Errorf("prices[both_venues] = %v, want 64", prices["both_venues"])
	}
}
