// prompt.go holds the fixed analyst prompt for pair classification and the
// payload shape submitted with each pair.
package classify

import "vantage-engine/pkg/types"

// systemPrompt instructs the analyst model to reason in three dimensions
// before classifying, and to answer with a single structured object.
const systemPrompt = `You are a prediction-market relationship analyst. You will receive two markets, each with its full proposition text and, when available, its current probability in percentage points.

Before classifying, reason through three dimensions:
1. Temporal hierarchy — which market resolves first, and can the earlier one serve as a leading indicator for the later one?
2. Conditionality — does A resolving YES materially raise or lower P(B = YES)? What is the sign of that effect?
3. Synthetic arbitrage — is this pair one leg of a triangle constraint where a third market must close the probability sum?

Then respond with EXACTLY ONE JSON object and nothing else:
{
  "relationship_type": "equivalent" | "implied" | "mutually_exclusive" | "correlated",
  "confidence_score": <number between 0 and 1>,
  "logic_justification": "<2-3 sentences explaining the link>",
  "impact_direction": "positive" | "negative" | "neutral",
  "correlation_strength": "low" | "medium" | "high" | "extreme",
  "logical_layer": "financial" | "political" | "statistical" | "direct",
  "vantage_insight": "<one short headline a trader would act on>"
}

Rules:
- "equivalent" means the two markets settle on the same real-world outcome.
- "implied" means A = YES structurally forces or strongly implies B = YES (nested thresholds).
- "mutually_exclusive" means A = YES forces B = NO.
- "correlated" is for statistical co-movement; set impact_direction to its sign.
- confidence_score reflects how certain you are of the classification itself.`

// pairPayload is the user content submitted with each pair. Probabilities
// are percentage points and omitted when no live or demo price resolved.
type pairPayload struct {
	MarketA        payloadMarket  `json:"market_a"`
	MarketB        payloadMarket  `json:"market_b"`
	ProbabilityA   *types.Percent `json:"probability_a_pct,omitempty"`
	ProbabilityB   *types.Percent `json:"probability_b_pct,omitempty"`
	ResolutionNote string         `json:"resolution_note,omitempty"`
}

type payloadMarket struct {
	MarketKey        string `json:"market_key"`
	EventName        string `json:"event_name"`
	PropositionText  string `json:"proposition_text"`
	ResolutionDate   string `json:"resolution_date,omitempty"`
	SettlementSource string `json:"settlement_source,omitempty"`
}

// modelEdge is the single structured object the model must return.
type modelEdge struct {
	RelationshipType    string  `json:"relationship_type"`
	ConfidenceScore     float64 `json:"confidence_score"`
	LogicJustification  string  `json:"logic_justification"`
	ImpactDirection     string  `json:"impact_direction"`
	CorrelationStrength string  `json:"correlation_strength"`
	LogicalLayer        string  `json:"logical_layer"`
	VantageInsight      string  `json:"vantage_insight"`
}
