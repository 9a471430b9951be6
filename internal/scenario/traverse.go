// traverse.go implements the bounded breadth-first traversal with direction
// propagation and multiplicative confidence decay.
//
// The visited set is a set of market keys, not node references, so the
// traversal data structure itself can never cycle. Neighbors expand in
// ascending market-key order, making "first reached wins" reproducible
// regardless of the order edges came back from the store.
package scenario

import (
	"sort"
	"strings"

	"vantage-engine/pkg/types"
)

// Graph is an adjacency view over the relationship table.
type Graph struct {
	adj map[string][]types.Relationship
}

// NewGraph indexes edges by both endpoints.
func NewGraph(rels []types.Relationship) *Graph {
	adj := make(map[string][]types.Relationship)
	for _, r := range rels {
		adj[r.MarketKeyA] = append(adj[r.MarketKeyA], r)
		adj[r.MarketKeyB] = append(adj[r.MarketKeyB], r)
	}
	for key := range adj {
		edges := adj[key]
		k := key
		sort.Slice(edges, func(i, j int) bool {
			return edges[i].Other(k) < edges[j].Other(k)
		})
	}
	return &Graph{adj: adj}
}

// Neighbors returns the edges touching key, sorted by far endpoint.
func (g *Graph) Neighbors(key string) []types.Relationship {
	return g.adj[key]
}

// Impact is one market reached by the traversal.
type Impact struct {
	MarketKey            string
	Order                int // 1 = first-order, 2 = second-order
	RelationshipType     types.RelationshipType
	Direction            types.Direction
	CumulativeConfidence float64
	EdgeConfidence       float64
	Path                 []string // origin .. this market
	Edge                 types.Relationship
}

// Propagate applies the direction algebra for one edge crossing:
//
//	equivalent        -> unchanged
//	implied (and "implied_*" synonyms) -> unchanged
//	mutually_exclusive -> flipped
//	correlated        -> flipped when the edge's impact_direction is negative
func Propagate(in types.Direction, rel types.Relationship) types.Direction {
	relType := string(rel.RelationshipType)
	switch {
	case relType == string(types.RelMutuallyExclusive):
		return in.Flip()
	case relType == string(types.RelCorrelated):
		if rel.ImpactDirection == types.ImpactNegative {
			return in.Flip()
		}
		return in
	case strings.HasPrefix(relType, "implied"):
		return in
	default: // equivalent and anything unrecognized propagate unchanged
		return in
	}
}

type queueEntry struct {
	node      string
	direction types.Direction
	depth     int
	path      []string
	cum       float64
}

// Traverse explores the graph from origin up to maxDepth hops, pruning any
// path whose cumulative confidence (product of edge confidences) falls below
// minConfidence. Each market is expanded at most once; the first path to
// reach it wins. Impacts come back sorted by cumulative confidence
// descending, ties broken by market key.
func Traverse(g *Graph, origin string, dir types.Direction, maxDepth int, minConfidence float64) []Impact {
	visited := map[string]bool{origin: true}
	queue := []queueEntry{{
		node:      origin,
		direction: dir,
		depth:     0,
		path:      []string{origin},
		cum:       1.0,
	}}

	var impacts []Impact
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if cur.depth >= maxDepth {
			continue
		}

		for _, rel := range g.Neighbors(cur.node) {
			next := rel.Other(cur.node)
			if next == "" || visited[next] {
				continue
			}

			cum := cur.cum * rel.ConfidenceScore
			if cum < minConfidence {
				continue
			}
			visited[next] = true

			nextDir := Propagate(cur.direction, rel)
			path := make([]string, len(cur.path), len(cur.path)+1)
			copy(path, cur.path)
			path = append(path, next)

			impacts = append(impacts, Impact{
				MarketKey:            next,
				Order:                cur.depth + 1,
				RelationshipType:     rel.RelationshipType,
				Direction:            nextDir,
				CumulativeConfidence: cum,
				EdgeConfidence:       rel.ConfidenceScore,
				Path:                 path,
				Edge:                 rel,
			})
			queue = append(queue, queueEntry{
				node:      next,
				direction: nextDir,
				depth:     cur.depth + 1,
				path:      path,
				cum:       cum,
			})
		}
	}

	sort.SliceStable(impacts, func(i, j int) bool {
		if impacts[i].CumulativeConfidence != impacts[j].CumulativeConfidence {
			return impacts[i].CumulativeConfidence > impacts[j].CumulativeConfidence
		}
		return impacts[i].MarketKey < impacts[j].MarketKey
	})
	return impacts
}

// DeriveAffected reduces the impacts to the distinct non-origin nodes and
// the deduplicated consecutive-pair edges across all impact paths. Every
// path prefix is itself an impact, so each impact's final hop covers the
// full consecutive-pair set.
func DeriveAffected(impacts []Impact) ([]string, []types.AffectedEdge) {
	nodeSet := make(map[string]bool)
	edgeSet := make(map[string]bool)
	var edges []types.AffectedEdge

	for _, imp := range impacts {
		nodeSet[imp.MarketKey] = true

		if len(imp.Path) < 2 {
			continue
		}
		source := imp.Path[len(imp.Path)-2]
		target := imp.Path[len(imp.Path)-1]
		key := source + "→" + target
		if edgeSet[key] {
			continue
		}
		edgeSet[key] = true
		edges = append(edges, types.AffectedEdge{
			Source:           source,
			Target:           target,
			RelationshipType: imp.RelationshipType,
			Direction:        imp.Direction,
			EdgeConfidence:   imp.EdgeConfidence,
		})
	}

	nodes := make([]string, 0, len(nodeSet))
	for n := range nodeSet {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)

	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Source != edges[j].Source {
			return edges[i].Source < edges[j].Source
		}
		return edges[i].Target < edges[j].Target
	})
	return nodes, edges
}
