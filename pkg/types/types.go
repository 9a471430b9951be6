// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the engine — the normalized quote,
// the market catalog entry, the relationship edge, arbitrage alerts, and
// scenario reports. It has no dependencies on internal packages, so it can be
// imported by any layer.
package types

import (
	"encoding/json"
	"math"
	"time"
)

// ————————————————————————————————————————————————————————————————————————
// Scalar types
// ————————————————————————————————————————————————————————————————————————
// Probabilities show up in three forms at the boundaries (fraction, percent,
// cents). Two distinct scalar types keep the conversions explicit: decode
// code scales once, everything downstream is dimension-safe.

// Probability is a market probability as a fraction in [0, 1].
type Probability float64

// Percent is a probability or spread in percentage points, typically [0, 100].
type Percent float64

// Pct converts a fraction to percentage points.
func (p Probability) Pct() Percent { return Percent(float64(p) * 100) }

// Fraction converts percentage points back to a fraction.
func (p Percent) Fraction() Probability { return Probability(float64(p) / 100) }

// ClampProbability normalizes a raw numeric price into [0, 1].
// Values above 1 are treated as percent-scaled and divided by 100 first;
// the result is clamped into [0, 1]. Only for inputs of unknown scale —
// known-unit inputs (cents) go through CentsProbability instead.
func ClampProbability(raw float64) Probability {
	if raw > 1 {
		raw = raw / 100
	}
	return Probability(math.Min(1, math.Max(0, raw)))
}

// CentsProbability converts a price in cents of a dollar into a clamped
// fraction. The unit is known, so no percent heuristic applies: 1 cent is
// 0.01, not 1.0.
func CentsProbability(cents int) Probability {
	return Probability(math.Min(1, math.Max(0, float64(cents)/100)))
}

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Platform identifies which exchange a quote came from.
type Platform string

const (
	PlatformPolymarket Platform = "polymarket" // order-book venue (asset IDs)
	PlatformKalshi     Platform = "kalshi"     // ticker venue (symbolic tickers)
)

// TradeSide is the aggressor side of a trade.
type TradeSide string

const (
	SideBuy  TradeSide = "buy"
	SideSell TradeSide = "sell"
)

// FlagLowConfidence marks quotes whose microstructure score fell below 50.
const FlagLowConfidence = "low_confidence"

// RelationshipType classifies how two markets are semantically linked.
type RelationshipType string

const (
	RelEquivalent        RelationshipType = "equivalent"         // same real-world outcome
	RelImplied           RelationshipType = "implied"            // A=YES structurally implies B=YES
	RelMutuallyExclusive RelationshipType = "mutually_exclusive" // A=YES forces B=NO
	RelCorrelated        RelationshipType = "correlated"         // statistical co-movement with a sign
)

// ImpactDirection is the sign of a correlated edge.
type ImpactDirection string

const (
	ImpactPositive ImpactDirection = "positive"
	ImpactNegative ImpactDirection = "negative"
	ImpactNeutral  ImpactDirection = "neutral"
)

// CorrelationStrength buckets how tightly a pair co-moves.
type CorrelationStrength string

const (
	StrengthLow     CorrelationStrength = "low"
	StrengthMedium  CorrelationStrength = "medium"
	StrengthHigh    CorrelationStrength = "high"
	StrengthExtreme CorrelationStrength = "extreme"
)

// LogicalLayer names the reasoning domain an edge lives in.
type LogicalLayer string

const (
	LayerFinancial   LogicalLayer = "financial"
	LayerPolitical   LogicalLayer = "political"
	LayerStatistical LogicalLayer = "statistical"
	LayerDirect      LogicalLayer = "direct"
)

// Direction is a shock direction propagated through the graph.
type Direction string

const (
	DirUp   Direction = "UP"
	DirDown Direction = "DOWN"
)

// Flip inverts a direction. Used when crossing mutually-exclusive or
// negatively-correlated edges.
func (d Direction) Flip() Direction {
	if d == DirUp {
		return DirDown
	}
	return DirUp
}

// ————————————————————————————————————————————————————————————————————————
// Catalog
// ————————————————————————————————————————————————————————————————————————

// Market is one externally-curated catalog entry. Read-only to the engine.
// At least one of PolymarketID / KalshiTicker is set; when both are, the
// Polymarket identifier takes priority for price resolution (the classifier
// and the scenario engine must agree on this, see catalog.PriceResolver).
type Market struct {
	MarketKey        string `json:"market_key"`
	EventName        string `json:"event_name"`
	PropositionText  string `json:"proposition_text"`
	PolymarketID     string `json:"polymarket_id,omitempty"`
	KalshiTicker     string `json:"kalshi_ticker,omitempty"`
	ResolutionDate   string `json:"resolution_date,omitempty"`
	SettlementSource string `json:"settlement_source,omitempty"`
}

// ————————————————————————————————————————————————————————————————————————
// Quotes
// ————————————————————————————————————————————————————————————————————————

// Quote is one normalized market price observation. Append-only: produced by
// the ingestor, persisted by the batch writer, never mutated.
type Quote struct {
	ID                string          `json:"id"`
	Timestamp         time.Time       `json:"timestamp"`
	Platform          Platform        `json:"platform"`
	EventID           string          `json:"event_id"` // exchange-side identifier
	PropositionName   string          `json:"proposition_name"`
	Price             Probability     `json:"price"`
	Side              TradeSide       `json:"side"`
	Size              float64         `json:"size"`
	ProbabilityPct    Percent         `json:"probability_pct"`
	LiquidityDepthUSD float64         `json:"liquidity_depth_usd"`
	BidAskSpreadPct   *Percent        `json:"bid_ask_spread_pct,omitempty"`
	Volume24h         *float64        `json:"volume_24h,omitempty"`
	ConfidenceFlag    *string         `json:"confidence_flag,omitempty"`
	RawPayload        json.RawMessage `json:"raw_payload,omitempty"`
}

// ————————————————————————————————————————————————————————————————————————
// Relationships (graph edges)
// ————————————————————————————————————————————————————————————————————————

// Relationship is one unordered-pair edge of the semantic graph.
// MarketKeyA < MarketKeyB lexicographically (canonical key order); at most
// one row exists per pair, upserted on conflict.
type Relationship struct {
	MarketKeyA          string              `json:"market_key_a"`
	MarketKeyB          string              `json:"market_key_b"`
	RelationshipType    RelationshipType    `json:"relationship_type"`
	ConfidenceScore     float64             `json:"confidence_score"` // [0,1]
	LogicJustification  string              `json:"logic_justification"`
	ImpactDirection     ImpactDirection     `json:"impact_direction"`
	CorrelationStrength CorrelationStrength `json:"correlation_strength"`
	LogicalLayer        LogicalLayer        `json:"logical_layer"`
	VantageInsight      string              `json:"vantage_insight"`
	ProbabilityA        *Percent            `json:"probability_a,omitempty"`
	ProbabilityB        *Percent            `json:"probability_b,omitempty"`
	ProbabilitySpread   *Percent            `json:"probability_spread,omitempty"`
	ArbitrageFlag       *string             `json:"arbitrage_flag,omitempty"`
	RiskAlert           *string             `json:"risk_alert,omitempty"`
}

// Relationship tag values applied by classifier post-processing.
const (
	TagHighValueArbitrage = "high_value_arbitrage"
	TagVenueDivergence    = "venue_divergence"
)

// Other returns the far endpoint of the edge relative to key.
// Returns "" if key is not an endpoint.
func (r *Relationship) Other(key string) string {
	switch key {
	case r.MarketKeyA:
		return r.MarketKeyB
	case r.MarketKeyB:
		return r.MarketKeyA
	}
	return ""
}

// CanonicalPair orders two market keys lexicographically.
func CanonicalPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// ————————————————————————————————————————————————————————————————————————
// Arbitrage alerts
// ————————————————————————————————————————————————————————————————————————

// AlertStatus distinguishes live alerts from demo-derived ones.
type AlertStatus string

const (
	AlertLive      AlertStatus = "alert"     // both sides resolved from live quotes
	AlertSimulated AlertStatus = "simulated" // at least one side used the demo fallback
)

// ArbitrageAlert is one cross-venue divergence on an equivalent pair.
// PotentialProfitPct equals the spread: the theoretical edge on a
// same-outcome pair.
type ArbitrageAlert struct {
	ID                 string      `json:"id"`
	Timestamp          time.Time   `json:"timestamp"`
	MarketPair         string      `json:"market_pair"` // display, "A ↔ B"
	Spread             Percent     `json:"spread"`
	PotentialProfitPct Percent     `json:"potential_profit_pct"`
	Status             AlertStatus `json:"status"`
}

// ————————————————————————————————————————————————————————————————————————
// Scenario reports
// ————————————————————————————————————————————————————————————————————————

// ReportStatus is the scenario report lifecycle.
type ReportStatus string

const (
	ReportPending    ReportStatus = "pending"
	ReportProcessing ReportStatus = "processing"
	ReportComplete   ReportStatus = "complete"
	ReportFailed     ReportStatus = "failed"
)

// CausalStep is one hop of a scenario's causal chain.
type CausalStep struct {
	MarketKey            string    `json:"market_key"`
	Order                int       `json:"order"` // 1 = first-order, 2 = second-order
	Direction            Direction `json:"direction"`
	CumulativeConfidence float64   `json:"cumulative_confidence"`
	Path                 []string  `json:"path"` // market keys from origin to this node
}

// AffectedEdge is one directed edge touched by a scenario traversal.
type AffectedEdge struct {
	Source           string           `json:"source"`
	Target           string           `json:"target"`
	RelationshipType RelationshipType `json:"relationship_type"`
	Direction        Direction        `json:"direction"`
	EdgeConfidence   float64          `json:"edge_confidence"`
}

// ScenarioReport is the persisted result of one stress-test request.
// Created as pending, moved to processing, completed (or failed) in place.
type ScenarioReport struct {
	ID            string         `json:"id"`
	Query         string         `json:"query"`
	TriggerMarket string         `json:"trigger_market"`
	CausalChain   []CausalStep   `json:"causal_chain"`
	Narrative     string         `json:"narrative"`
	AffectedNodes []string       `json:"affected_nodes"`
	AffectedEdges []AffectedEdge `json:"affected_edges"`
	Status        ReportStatus   `json:"status"`
	Error         string         `json:"error,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}
