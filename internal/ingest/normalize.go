// normalize.go builds normalized quotes from trade messages plus cached
// microstructure, and scores each quote's confidence.
package ingest

import (
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"

	"vantage-engine/pkg/types"
)

// Confidence scoring bounds. Depth contributes up to 60 points on a log
// scale; spread contributes up to 40, degrading 2 points per percent of
// spread, with 20 as the neutral score when the spread is unknown.
const (
	depthScoreMax    = 60.0
	spreadScoreMax   = 40.0
	spreadScoreUnset = 20.0
	lowConfidenceCut = 50
)

// ConfidenceScore rates a quote's microstructure quality in [0, 100].
func ConfidenceScore(depthUSD float64, spreadPct *types.Percent) int {
	var depthScore float64
	if depthUSD > 0 {
		depthScore = math.Min(math.Log10(depthUSD)*10, depthScoreMax)
	}

	spreadScore := spreadScoreUnset
	if spreadPct != nil {
		spreadScore = math.Max(0, spreadScoreMax-float64(*spreadPct)*2)
	}

	score := math.Round(depthScore + spreadScore)
	return int(math.Min(100, math.Max(0, score)))
}

// TradeObservation is one venue trade/price-change message after decoding:
// everything venue-specific has been resolved, prices are already scaled
// and clamped to [0, 1].
type TradeObservation struct {
	Platform        types.Platform
	EventID         string
	PropositionName string
	TradePrice      *types.Probability // nil when the message carried no price
	Side            types.TradeSide
	Size            float64
	Timestamp       time.Time
	Raw             json.RawMessage
}

// Normalize produces a quote from a trade observation enriched with the
// asset's microstructure entry. Price preference: mid of best bid/ask when
// available, else the trade price, else the message is skipped (ok=false).
func Normalize(obs TradeObservation, entry Entry, hasEntry bool) (types.Quote, bool) {
	var price types.Probability
	switch {
	case hasEntry:
		if mid, ok := entry.Mid(); ok {
			price = mid
		} else if obs.TradePrice != nil {
			price = *obs.TradePrice
		} else {
			return types.Quote{}, false
		}
	case obs.TradePrice != nil:
		price = *obs.TradePrice
	default:
		return types.Quote{}, false
	}

	q := types.Quote{
		ID:              uuid.NewString(),
		Timestamp:       obs.Timestamp,
		Platform:        obs.Platform,
		EventID:         obs.EventID,
		PropositionName: obs.PropositionName,
		Price:           price,
		Side:            obs.Side,
		Size:            obs.Size,
		ProbabilityPct:  price.Pct(),
		RawPayload:      obs.Raw,
	}
	if q.Timestamp.IsZero() {
		q.Timestamp = time.Now().UTC()
	}

	var spreadPct *types.Percent
	if hasEntry {
		q.LiquidityDepthUSD = entry.DepthUSD
		spreadPct = entry.SpreadPct()
		q.BidAskSpreadPct = spreadPct
		if entry.HasVolume {
			vol := entry.Volume24h
			q.Volume24h = &vol
		}
	}

	if ConfidenceScore(q.LiquidityDepthUSD, spreadPct) < lowConfidenceCut {
		flag := types.FlagLowConfidence
		q.ConfidenceFlag = &flag
	}

	return q, true
}
