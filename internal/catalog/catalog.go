// Package catalog wraps the externally-curated market catalog and the one
// price-priority rule everything downstream must agree on.
//
// The classifier, the arbitrage scanner, and the scenario engine all resolve
// a market's current probability through Resolver so the priority —
// live quote via the Polymarket identifier, then live via the Kalshi ticker,
// then the configured demo fallback — cannot drift between components.
package catalog

import (
	"sort"

	"vantage-engine/pkg/types"
)

// Catalog is an in-memory snapshot of the market_metadata table.
type Catalog struct {
	byKey   map[string]types.Market
	ordered []types.Market
}

// New builds a catalog snapshot. Markets are kept sorted by market_key so
// enumeration (pair generation, graph assembly) is deterministic.
func New(markets []types.Market) *Catalog {
	ordered := make([]types.Market, len(markets))
	copy(ordered, markets)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].MarketKey < ordered[j].MarketKey
	})

	byKey := make(map[string]types.Market, len(ordered))
	for _, m := range ordered {
		byKey[m.MarketKey] = m
	}
	return &Catalog{byKey: byKey, ordered: ordered}
}

// Get returns the catalog entry for a market key.
func (c *Catalog) Get(key string) (types.Market, bool) {
	m, ok := c.byKey[key]
	return m, ok
}

// All returns the markets sorted by market_key.
func (c *Catalog) All() []types.Market {
	return c.ordered
}

// Len returns the catalog size.
func (c *Catalog) Len() int { return len(c.ordered) }

// Identifier returns the exchange-side identifier for a market, preferring
// the Polymarket identifier when both venues list it. This matches the
// priority Resolver uses to snapshot prices.
func Identifier(m types.Market) string {
	if m.PolymarketID != "" {
		return m.PolymarketID
	}
	return m.KalshiTicker
}

// NamesByIdentifier maps every known exchange-side identifier to its event
// name, for quote enrichment at ingest time.
func (c *Catalog) NamesByIdentifier() map[string]string {
	names := make(map[string]string, len(c.ordered)*2)
	for _, m := range c.ordered {
		if m.PolymarketID != "" {
			names[m.PolymarketID] = m.EventName
		}
		if m.KalshiTicker != "" {
			names[m.KalshiTicker] = m.EventName
		}
	}
	return names
}

// Signal is a resolved probability for one market side.
type Signal struct {
	ProbabilityPct types.Percent
	DepthUSD       float64 // 0 when the side resolved via demo fallback
	Live           bool    // false when the demo table supplied the value
}

// Resolver resolves current probabilities with the shared priority rule.
type Resolver struct {
	catalog *Catalog
	latest  map[string]types.Quote // latest quote per exchange-side identifier
	demo    map[string]float64     // market_key -> probability_pct fallback
}

// NewResolver builds a resolver over a latest-quote snapshot.
// demo may be empty; then markets without live quotes resolve to nothing
// (the stricter no-fallback behavior).
func NewResolver(cat *Catalog, latest map[string]types.Quote, demo map[string]float64) *Resolver {
	if latest == nil {
		latest = map[string]types.Quote{}
	}
	if demo == nil {
		demo = map[string]float64{}
	}
	return &Resolver{catalog: cat, latest: latest, demo: demo}
}

// Resolve returns the current probability for a market:
// live quote via Polymarket identifier, else live via Kalshi ticker, else
// the demo table, else ok=false.
func (r *Resolver) Resolve(marketKey string) (Signal, bool) {
	m, known := r.catalog.Get(marketKey)
	if known {
		if m.PolymarketID != "" {
			if q, ok := r.latest[m.PolymarketID]; ok {
				return Signal{ProbabilityPct: q.ProbabilityPct, DepthUSD: q.LiquidityDepthUSD, Live: true}, true
			}
		}
		if m.KalshiTicker != "" {
			if q, ok := r.latest[m.KalshiTicker]; ok {
				return Signal{ProbabilityPct: q.ProbabilityPct, DepthUSD: q.LiquidityDepthUSD, Live: true}, true
			}
		}
	}
	if pct, ok := r.demo[marketKey]; ok {
		return Signal{ProbabilityPct: types.Percent(pct)}, true
	}
	return Signal{}, false
}

// PriceMap resolves every catalog market into market_key -> probability_pct.
// Markets with neither live nor demo data are omitted.
func (r *Resolver) PriceMap() map[string]types.Percent {
	prices := make(map[string]types.Percent, r.catalog.Len())
	for _, m := range r.catalog.All() {
		if sig, ok := r.Resolve(m.MarketKey); ok {
			prices[m.MarketKey] = sig.ProbabilityPct
		}
	}
	return prices
}
