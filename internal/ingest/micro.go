// Package ingest turns venue messages into normalized quotes.
//
// Each venue session owns a disjoint set of asset keys in the microstructure
// cache: book/ticker messages update an asset's entry, trade messages read it
// to enrich the emitted quote. The cache is process-local and rebuilt from
// the live feed after every restart.
package ingest

import (
	"sync"
	"time"

	"vantage-engine/pkg/types"
)

// depthBand is the half-width of the depth window around mid (±2%).
const depthBand = 0.02

// Level is one rung of a bid or ask ladder, already parsed to numbers.
type Level struct {
	Price float64
	Size  float64
}

// Entry is the microstructure state for a single asset: everything a trade
// message needs to become an enriched quote.
type Entry struct {
	BestBid   types.Probability
	BestAsk   types.Probability
	DepthUSD  float64 // sum of price*size within ±2% of mid, both sides
	Spread    float64 // bestAsk - bestBid in price units; valid when HasSpread
	HasSpread bool
	Volume24h float64 // valid when HasVolume
	HasVolume bool
	UpdatedAt time.Time
}

// Mid returns (bestBid+bestAsk)/2, false when either side is absent.
func (e Entry) Mid() (types.Probability, bool) {
	if e.BestBid <= 0 || e.BestAsk <= 0 {
		return 0, false
	}
	return (e.BestBid + e.BestAsk) / 2, true
}

// SpreadPct returns the spread as a percentage of mid, nil when unknown.
func (e Entry) SpreadPct() *types.Percent {
	mid, ok := e.Mid()
	if !ok || !e.HasSpread || mid <= 0 {
		return nil
	}
	pct := types.Percent(e.Spread / float64(mid) * 100)
	return &pct
}

// Cache holds per-asset microstructure entries. Safe for concurrent use;
// the two venue sessions write disjoint key spaces, so contention is
// map-level only.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewCache creates an empty microstructure cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]Entry)}
}

// ApplyBook replaces an asset's entry from full bid/ask ladders.
// Depth counts price*size over levels within ±2% of mid on each side.
func (c *Cache) ApplyBook(assetID string, bids, asks []Level) {
	var bestBid, bestAsk float64
	for _, l := range bids {
		if l.Price > bestBid {
			bestBid = l.Price
		}
	}
	for _, l := range asks {
		if l.Price > 0 && (bestAsk == 0 || l.Price < bestAsk) {
			bestAsk = l.Price
		}
	}

	entry := Entry{
		BestBid:   types.Probability(bestBid),
		BestAsk:   types.Probability(bestAsk),
		UpdatedAt: time.Now(),
	}

	if bestBid > 0 && bestAsk > 0 {
		mid := (bestBid + bestAsk) / 2
		lo, hi := mid*(1-depthBand), mid*(1+depthBand)
		var depth float64
		for _, l := range bids {
			if l.Price >= lo && l.Price <= hi {
				depth += l.Price * l.Size
			}
		}
		for _, l := range asks {
			if l.Price >= lo && l.Price <= hi {
				depth += l.Price * l.Size
			}
		}
		entry.DepthUSD = depth
		if s := bestAsk - bestBid; s > 0 {
			entry.Spread = s
		}
		entry.HasSpread = true
	}

	c.put(assetID, entry)
}

// ApplyTicker replaces an asset's entry from a best-bid/ask ticker.
// Depth is unknown for ticker venues and preserved from the previous entry.
func (c *Cache) ApplyTicker(assetID string, bid, ask types.Probability, volume24h float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.entries[assetID]
	entry := Entry{
		BestBid:   bid,
		BestAsk:   ask,
		DepthUSD:  prev.DepthUSD,
		Volume24h: volume24h,
		HasVolume: true,
		UpdatedAt: time.Now(),
	}
	if s := float64(ask - bid); s > 0 {
		entry.Spread = s
	}
	entry.HasSpread = bid > 0 && ask > 0

	c.entries[assetID] = entry
}

// SetBestBidAsk updates only the top of book, preserving depth and volume.
// Used for price_change style messages that carry no ladders.
func (c *Cache) SetBestBidAsk(assetID string, bid, ask types.Probability) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := c.entries[assetID]
	entry.BestBid = bid
	entry.BestAsk = ask
	if s := float64(ask - bid); s > 0 {
		entry.Spread = s
	} else {
		entry.Spread = 0
	}
	entry.HasSpread = bid > 0 && ask > 0
	entry.UpdatedAt = time.Now()
	c.entries[assetID] = entry
}

// Lookup returns the entry for an asset, false if none has arrived yet.
func (c *Cache) Lookup(assetID string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[assetID]
	return e, ok
}

func (c *Cache) put(assetID string, e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// Volume arrives on a different message family for some venues;
	// keep the last known value when the new entry has none.
	if prev, ok := c.entries[assetID]; ok && !e.HasVolume && prev.HasVolume {
		e.Volume24h = prev.Volume24h
		e.HasVolume = true
	}
	c.entries[assetID] = e
}
