// prompt.go holds the two analyst prompts of the scenario workflow — shock
// parsing and narrative generation — plus their payload shapes.
package scenario

import "vantage-engine/pkg/types"

// shockParsePrompt maps a natural-language shock onto one catalog market.
const shockParsePrompt = `You are a prediction-market scenario parser. You will receive a user's hypothetical shock and the catalog of known markets as JSON.

Identify the single market the shock hits most directly and respond with EXACTLY ONE JSON object:
{
  "target_market": "<market_key from the catalog>",
  "assumed_change": "<what the shock assumes, 15 words or fewer>",
  "direction": "UP" | "DOWN"
}

Rules:
- You MUST always return a market. "No match" is never an acceptable answer; choose the closest catalog market.
- When the query is geopolitical, pick the most economically downstream market — the one whose price the shock would move through real channels, not the headline event itself.
- direction is the move in the target market's YES probability under the shock.`

// parsedShock is the object the model returns for the parse step.
type parsedShock struct {
	TargetMarket  string `json:"target_market"`
	AssumedChange string `json:"assumed_change"`
	Direction     string `json:"direction"`
}

// narrativePrompt turns the traversal results into an analyst narrative.
const narrativePrompt = `You are a Senior Prediction-Market Analyst writing a scenario stress report. You will receive a JSON context with the shocked market and the impacted markets found by causal graph traversal, including pre-written justifications and insights for each link.

Respond with EXACTLY ONE JSON object:
{
  "executive_summary": "<3-4 sentences for a portfolio manager>",
  "market_impacts": [
    {
      "market_key": "<key>",
      "order": <1 or 2>,
      "direction": "UP" | "DOWN",
      "confidence_pct": <0-100>,
      "statement": "<see template>"
    }
  ]
}

Every statement MUST follow this template, prefixed with its order label:
"First-order: If [shocked market] moves [UP/DOWN], then [impacted market] is [X]% likely to move [Y] because of their [relationship_type] link."
Use "Second-order:" for markets two hops away. Ground every claim in the provided justifications; do not invent relationships.`

// narrativeResult is the object the model returns for the narrative step.
type narrativeResult struct {
	ExecutiveSummary string `json:"executive_summary"`
	MarketImpacts    []struct {
		MarketKey     string  `json:"market_key"`
		Order         int     `json:"order"`
		Direction     string  `json:"direction"`
		ConfidencePct float64 `json:"confidence_pct"`
		Statement     string  `json:"statement"`
	} `json:"market_impacts"`
}

// ragContext is the retrieval-augmented payload for the narrative step.
type ragContext struct {
	Scenario scenarioContext `json:"scenario"`
	Impacts  []impactContext `json:"impacted_markets"`
}

type scenarioContext struct {
	TargetMarket   string          `json:"target_market"`
	EventName      string          `json:"event_name"`
	Proposition    string          `json:"proposition"`
	AssumedChange  string          `json:"assumed_change"`
	Direction      types.Direction `json:"direction"`
	CurrentProbPct *types.Percent  `json:"current_probability_pct,omitempty"`
}

type impactContext struct {
	MarketKey        string                    `json:"market_key"`
	EventName        string                    `json:"event_name"`
	Proposition      string                    `json:"proposition"`
	OrderLabel       string                    `json:"order_label"` // "First-order" / "Second-order"
	RelationshipType types.RelationshipType    `json:"relationship_type"`
	Direction        types.Direction           `json:"direction"`
	Confidence       float64                   `json:"cumulative_confidence"`
	CurrentProbPct   *types.Percent            `json:"current_probability_pct,omitempty"`
	CausalPath       []string                  `json:"causal_path"`
	Justification    string                    `json:"justification"`
	Insight          string                    `json:"insight"`
	Strength         types.CorrelationStrength `json:"correlation_strength"`
	Layer            types.LogicalLayer        `json:"logical_layer"`
	ProbabilityA     *types.Percent            `json:"snapshot_probability_a,omitempty"`
	ProbabilityB     *types.Percent            `json:"snapshot_probability_b,omitempty"`
}

// orderLabel names a propagation order for prompts and narratives.
func orderLabel(order int) string {
	switch order {
	case 1:
		return "First-order"
	case 2:
		return "Second-order"
	default:
		return "Higher-order"
	}
}

// noImpactSummary is the fixed short-circuit when traversal finds nothing.
const noImpactSummary = "No connected markets: the shocked market has no relationship edges above the confidence floor, so the scenario produces no ripple effects in the tracked catalog."
