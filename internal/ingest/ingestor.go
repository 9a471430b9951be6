// ingestor.go bridges the venue sessions to the batch writer.
//
// One goroutine per venue consumes that session's single event channel,
// updates the microstructure cache, and emits normalized quotes. Each
// session publishes all message families on one ordered channel, so within
// a session quote emission preserves message order — a trade always
// normalizes against the book update that preceded it. Across sessions
// there is no ordering guarantee and none is needed — the quote table is
// timestamp-keyed.
//
// Back-pressure: when the batch writer's queue is at its high-water mark the
// ingestor sheds the quote for that asset (with a sampled warning) instead of
// blocking the read loop.
package ingest

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"vantage-engine/internal/venue/kalshi"
	"vantage-engine/internal/venue/polymarket"
	"vantage-engine/pkg/types"
)

// shedLogSample controls how often per-asset shed drops are logged (1 in N).
const shedLogSample = 25

var (
	metricIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vantage_quotes_ingested_total",
		Help: "Normalized quotes emitted, by platform.",
	}, []string{"platform"})
	metricShed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vantage_quotes_shed_total",
		Help: "Quotes shed due to batch queue back-pressure, by platform.",
	}, []string{"platform"})
)

// QuoteSink accepts normalized quotes without blocking.
type QuoteSink interface {
	Enqueue(q types.Quote) bool
}

// Broadcaster pushes live quotes to dashboard subscribers. May be nil.
type Broadcaster interface {
	BroadcastQuote(q types.Quote)
}

// Ingestor consumes venue events and emits normalized quotes.
type Ingestor struct {
	cache     *Cache
	sink      QuoteSink
	broadcast Broadcaster
	names     map[string]string // exchange-side identifier -> event name
	logger    *slog.Logger

	shedMu sync.Mutex
	shed   map[string]uint64 // per-asset shed counters for sampled logging
}

// NewIngestor creates an ingestor. names maps exchange-side identifiers to
// display names from the catalog; identifiers without an entry fall back to
// the identifier itself.
func NewIngestor(cache *Cache, sink QuoteSink, broadcast Broadcaster, names map[string]string, logger *slog.Logger) *Ingestor {
	if names == nil {
		names = map[string]string{}
	}
	return &Ingestor{
		cache:     cache,
		sink:      sink,
		broadcast: broadcast,
		names:     names,
		logger:    logger.With("component", "ingestor"),
		shed:      make(map[string]uint64),
	}
}

// RunPolymarket consumes the order-book venue events until ctx is cancelled.
func (i *Ingestor) RunPolymarket(ctx context.Context, events <-chan polymarket.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-events:
			i.handlePolymarket(evt)
		}
	}
}

func (i *Ingestor) handlePolymarket(event polymarket.Event) {
	switch evt := event.(type) {
	case polymarket.BookEvent:
		i.cache.ApplyBook(evt.AssetID, toLevels(evt.BidLadder()), toLevels(evt.AskLadder()))

	case polymarket.PriceChangeEvent:
		bid := types.ClampProbability(float64(evt.BestBid))
		ask := types.ClampProbability(float64(evt.BestAsk))
		i.cache.SetBestBidAsk(evt.AssetID, bid, ask)
		i.emit(TradeObservation{
			Platform:        types.PlatformPolymarket,
			EventID:         evt.AssetID,
			PropositionName: i.nameFor(evt.AssetID),
			Side:            types.SideBuy,
			Timestamp:       parseMillis(evt.Timestamp),
			Raw:             evt.Raw,
		})

	case polymarket.TradeEvent:
		price := types.ClampProbability(float64(evt.Price))
		i.emit(TradeObservation{
			Platform:        types.PlatformPolymarket,
			EventID:         evt.AssetID,
			PropositionName: i.nameFor(evt.AssetID),
			TradePrice:      &price,
			Side:            sideFromString(evt.Side),
			Size:            float64(evt.Size),
			Timestamp:       parseMillis(evt.Timestamp),
			Raw:             evt.Raw,
		})

	case polymarket.LastTradePriceEvent:
		price := types.ClampProbability(float64(evt.Price))
		i.emit(TradeObservation{
			Platform:        types.PlatformPolymarket,
			EventID:         evt.AssetID,
			PropositionName: i.nameFor(evt.AssetID),
			TradePrice:      &price,
			Side:            types.SideBuy,
			Timestamp:       parseMillis(evt.Timestamp),
			Raw:             evt.Raw,
		})
	}
}

// RunKalshi consumes the ticker venue events until ctx is cancelled.
func (i *Ingestor) RunKalshi(ctx context.Context, events <-chan kalshi.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-events:
			i.handleKalshi(evt)
		}
	}
}

func (i *Ingestor) handleKalshi(event kalshi.Event) {
	switch evt := event.(type) {
	case kalshi.TickerEvent:
		bid := types.CentsProbability(evt.YesBid)
		ask := types.CentsProbability(evt.YesAsk)
		i.cache.ApplyTicker(evt.MarketTicker, bid, ask, float64(evt.Volume))

	case kalshi.TradeEvent:
		price := evt.YesProbability()
		side := types.SideSell
		if evt.TakerSide == "yes" {
			side = types.SideBuy
		}
		i.emit(TradeObservation{
			Platform:        types.PlatformKalshi,
			EventID:         evt.MarketTicker,
			PropositionName: i.nameFor(evt.MarketTicker),
			TradePrice:      &price,
			Side:            side,
			Size:            float64(evt.Count),
			Timestamp:       evt.Time(),
			Raw:             evt.Raw,
		})
	}
}

// emit enriches and normalizes one observation, then hands it downstream.
func (i *Ingestor) emit(obs TradeObservation) {
	entry, hasEntry := i.cache.Lookup(obs.EventID)
	q, ok := Normalize(obs, entry, hasEntry)
	if !ok {
		return
	}

	if !i.sink.Enqueue(q) {
		metricShed.WithLabelValues(string(obs.Platform)).Inc()
		i.noteShed(obs.EventID)
		return
	}

	metricIngested.WithLabelValues(string(obs.Platform)).Inc()
	if i.broadcast != nil {
		i.broadcast.BroadcastQuote(q)
	}
}

func (i *Ingestor) noteShed(assetID string) {
	i.shedMu.Lock()
	i.shed[assetID]++
	n := i.shed[assetID]
	i.shedMu.Unlock()

	if n%shedLogSample == 1 {
		i.logger.Warn("queue over high-water mark, shedding quotes for asset",
			"asset", assetID, "shed_total", n)
	}
}

func (i *Ingestor) nameFor(id string) string {
	if name, ok := i.names[id]; ok {
		return name
	}
	return id
}

func toLevels(ladder []polymarket.LadderLevel) []Level {
	levels := make([]Level, 0, len(ladder))
	for _, l := range ladder {
		levels = append(levels, Level{Price: float64(l.Price), Size: float64(l.Size)})
	}
	return levels
}

func sideFromString(s string) types.TradeSide {
	if s == "SELL" || s == "sell" {
		return types.SideSell
	}
	return types.SideBuy
}

// parseMillis parses the venue's string millisecond timestamps, returning
// zero time (caller substitutes now) when absent or malformed.
func parseMillis(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	// Some frames carry seconds; anything before ~2001 in ms is seconds.
	if ms < 1e12 {
		return time.Unix(ms, 0).UTC()
	}
	return time.UnixMilli(ms).UTC()
}
