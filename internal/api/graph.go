// graph.go assembles the graph-data payload the dashboard renders: catalog
// entries joined with current probabilities as nodes, relationship rows as
// edges, and a meta block with totals and hub/divergence counts.
package api

import (
	"vantage-engine/internal/catalog"
	"vantage-engine/internal/classify"
	"vantage-engine/pkg/types"
)

// GraphNode is one catalog market with its resolved probability.
type GraphNode struct {
	MarketKey      string         `json:"market_key"`
	EventName      string         `json:"event_name"`
	Proposition    string         `json:"proposition_text"`
	PolymarketID   string         `json:"polymarket_id,omitempty"`
	KalshiTicker   string         `json:"kalshi_ticker,omitempty"`
	ProbabilityPct *types.Percent `json:"probability_pct,omitempty"`
	EdgeCount      int            `json:"edge_count"`
	Hub            bool           `json:"hub"`
}

// GraphMeta summarizes the graph for the dashboard header.
type GraphMeta struct {
	Markets          int      `json:"markets"`
	Relationships    int      `json:"relationships"`
	HubNodes         []string `json:"hub_nodes"`
	ArbitrageFlags   int      `json:"arbitrage_flags"`
	DivergenceAlerts int      `json:"divergence_alerts"`
}

// GraphData is the full /api/graph-data response.
type GraphData struct {
	Nodes []GraphNode          `json:"nodes"`
	Edges []types.Relationship `json:"edges"`
	Meta  GraphMeta            `json:"meta"`
}

// BuildGraphData joins catalog, relationships, and resolved prices.
func BuildGraphData(cat *catalog.Catalog, rels []types.Relationship, resolver *catalog.Resolver, hubThreshold int) GraphData {
	edgeCounts := make(map[string]int)
	meta := GraphMeta{
		Markets:       cat.Len(),
		Relationships: len(rels),
	}
	for _, r := range rels {
		edgeCounts[r.MarketKeyA]++
		edgeCounts[r.MarketKeyB]++
		if r.ArbitrageFlag != nil {
			meta.ArbitrageFlags++
		}
		if r.RiskAlert != nil {
			meta.DivergenceAlerts++
		}
	}

	meta.HubNodes = classify.HubNodes(rels, hubThreshold)
	if meta.HubNodes == nil {
		meta.HubNodes = []string{}
	}
	hubSet := make(map[string]bool, len(meta.HubNodes))
	for _, h := range meta.HubNodes {
		hubSet[h] = true
	}

	nodes := make([]GraphNode, 0, cat.Len())
	for _, m := range cat.All() {
		node := GraphNode{
			MarketKey:    m.MarketKey,
			EventName:    m.EventName,
			Proposition:  m.PropositionText,
			PolymarketID: m.PolymarketID,
			KalshiTicker: m.KalshiTicker,
			EdgeCount:    edgeCounts[m.MarketKey],
			Hub:          hubSet[m.MarketKey],
		}
		if sig, ok := resolver.Resolve(m.MarketKey); ok {
			pct := sig.ProbabilityPct
			node.ProbabilityPct = &pct
		}
		nodes = append(nodes, node)
	}

	if rels == nil {
		rels = []types.Relationship{}
	}
	return GraphData{Nodes: nodes, Edges: rels, Meta: meta}
}
