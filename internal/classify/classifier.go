// Package classify builds the semantic graph over the market catalog.
//
// The classifier is a one-shot workflow, run on catalog change rather than
// per-request: it enumerates every unordered pair, asks the analyst model to
// classify each one, post-processes derived tags, and upserts the edge on its
// canonical pair key. Re-running on an unchanged catalog converges to the
// same edge set — upserts, never duplicates.
package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"

	"vantage-engine/internal/analyst"
	"vantage-engine/internal/catalog"
	"vantage-engine/internal/config"
	"vantage-engine/internal/persist"
	"vantage-engine/pkg/types"
)

// Model is the analyst call surface the classifier needs.
type Model interface {
	Complete(ctx context.Context, systemPrompt, userContent string) (string, error)
}

// Store is the slice of the persistence client the classifier needs.
type Store interface {
	FetchCatalog(ctx context.Context) ([]types.Market, error)
	LatestQuotes(ctx context.Context, limit int) ([]types.Quote, error)
	FetchRelationships(ctx context.Context) ([]types.Relationship, error)
	UpsertRelationship(ctx context.Context, rel types.Relationship) error
}

const latestScanLimit = 500

// Summary reports one classifier run.
type Summary struct {
	Pairs      int
	Classified int
	Skipped    int
	Hubs       []string
}

// Classifier runs the pairwise classification workflow.
type Classifier struct {
	store  Store
	model  Model
	cfg    config.ClassifierConfig
	demo   map[string]float64
	logger *slog.Logger
}

// New creates a classifier.
func New(store Store, model Model, cfg config.ClassifierConfig, demo map[string]float64, logger *slog.Logger) *Classifier {
	return &Classifier{
		store:  store,
		model:  model,
		cfg:    cfg,
		demo:   demo,
		logger: logger.With("component", "classifier"),
	}
}

// Run classifies every unordered pair in the catalog. Concurrency across
// pairs is bounded to the configured parallelism to control rate against the
// external model; a failing pair is skipped, not retried — the workflow is
// designed to be re-run.
func (c *Classifier) Run(ctx context.Context) (Summary, error) {
	markets, err := c.store.FetchCatalog(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("fetch catalog: %w", err)
	}
	quotes, err := c.store.LatestQuotes(ctx, latestScanLimit)
	if err != nil {
		return Summary{}, fmt.Errorf("fetch latest quotes: %w", err)
	}

	cat := catalog.New(markets)
	resolver := catalog.NewResolver(cat, persist.LatestByEvent(quotes), c.demo)

	ordered := cat.All()
	var (
		mu      sync.Mutex
		summary Summary
		wg      sync.WaitGroup
		sem     = make(chan struct{}, c.cfg.Concurrency)
	)
	summary.Pairs = len(ordered) * (len(ordered) - 1) / 2

	for i := 0; i < len(ordered); i++ {
		for j := i + 1; j < len(ordered); j++ {
			if ctx.Err() != nil {
				wg.Wait()
				return summary, ctx.Err()
			}

			a, b := ordered[i], ordered[j]
			wg.Add(1)
			sem <- struct{}{}
			go func() {
				defer wg.Done()
				defer func() { <-sem }()

				ok := c.classifyPair(ctx, resolver, a, b)
				mu.Lock()
				if ok {
					summary.Classified++
				} else {
					summary.Skipped++
				}
				mu.Unlock()
			}()
		}
	}
	wg.Wait()

	summary.Hubs = c.detectHubs(ctx)
	c.logger.Info("classification run complete",
		"pairs", summary.Pairs,
		"classified", summary.Classified,
		"skipped", summary.Skipped,
		"hubs", len(summary.Hubs),
	)
	return summary, nil
}

// classifyPair submits one pair to the model and upserts the resulting edge.
func (c *Classifier) classifyPair(ctx context.Context, resolver *catalog.Resolver, a, b types.Market) bool {
	probA := resolveProb(resolver, a.MarketKey)
	probB := resolveProb(resolver, b.MarketKey)

	payload := pairPayload{
		MarketA:      toPayload(a),
		MarketB:      toPayload(b),
		ProbabilityA: probA,
		ProbabilityB: probB,
	}
	content, err := json.Marshal(payload)
	if err != nil {
		c.logger.Warn("marshal pair payload", "error", err)
		return false
	}

	text, err := c.model.Complete(ctx, systemPrompt, string(content))
	if err != nil {
		c.logger.Warn("pair classification failed, skipping",
			"pair", a.MarketKey+"/"+b.MarketKey, "error", err)
		return false
	}

	var edge modelEdge
	if err := analyst.DecodeObject(text, &edge); err != nil {
		c.logger.Warn("unparseable classification, skipping",
			"pair", a.MarketKey+"/"+b.MarketKey, "error", err)
		return false
	}
	if edge.RelationshipType == "" {
		c.logger.Warn("classification missing relationship_type, skipping",
			"pair", a.MarketKey+"/"+b.MarketKey)
		return false
	}

	rel := buildRelationship(a.MarketKey, b.MarketKey, edge, probA, probB)
	postProcess(&rel, c.cfg)

	if err := c.store.UpsertRelationship(ctx, rel); err != nil {
		c.logger.Warn("upsert relationship failed",
			"pair", rel.MarketKeyA+"/"+rel.MarketKeyB, "error", err)
		return false
	}
	return true
}

// buildRelationship normalizes the model's edge onto the canonical pair key.
// Probabilities snapshot the resolver values at classification time; when
// the keys swap to canonical order, the probabilities swap with them.
func buildRelationship(keyA, keyB string, edge modelEdge, probA, probB *types.Percent) types.Relationship {
	ca, cb := types.CanonicalPair(keyA, keyB)
	if ca != keyA {
		probA, probB = probB, probA
	}

	return types.Relationship{
		MarketKeyA:          ca,
		MarketKeyB:          cb,
		RelationshipType:    types.RelationshipType(strings.ToLower(strings.TrimSpace(edge.RelationshipType))),
		ConfidenceScore:     clamp01(edge.ConfidenceScore),
		LogicJustification:  edge.LogicJustification,
		ImpactDirection:     types.ImpactDirection(strings.ToLower(strings.TrimSpace(edge.ImpactDirection))),
		CorrelationStrength: types.CorrelationStrength(strings.ToLower(strings.TrimSpace(edge.CorrelationStrength))),
		LogicalLayer:        types.LogicalLayer(strings.ToLower(strings.TrimSpace(edge.LogicalLayer))),
		VantageInsight:      edge.VantageInsight,
		ProbabilityA:        probA,
		ProbabilityB:        probB,
	}
}

// postProcess adds the derived spread tags for same-outcome and
// mutually-exclusive pairs.
func postProcess(rel *types.Relationship, cfg config.ClassifierConfig) {
	if rel.ProbabilityA == nil || rel.ProbabilityB == nil {
		return
	}
	a, b := float64(*rel.ProbabilityA), float64(*rel.ProbabilityB)

	switch rel.RelationshipType {
	case types.RelEquivalent:
		spread := types.Percent(math.Abs(a - b))
		rel.ProbabilitySpread = &spread
		if float64(spread) > cfg.DivergenceThresholdPct {
			tag := types.TagVenueDivergence
			rel.RiskAlert = &tag
		}
		if float64(spread) > cfg.ArbFlagThresholdPct {
			tag := types.TagHighValueArbitrage
			rel.ArbitrageFlag = &tag
			rel.LogicJustification += fmt.Sprintf(
				" Venues currently disagree by %.1f points on the same outcome.", float64(spread))
		}

	case types.RelMutuallyExclusive:
		// Complementary markets should sum to ~100; the deviation is the edge.
		spread := types.Percent(math.Abs(a + b - 100))
		rel.ProbabilitySpread = &spread
		if float64(spread) > cfg.ArbFlagThresholdPct {
			tag := types.TagHighValueArbitrage
			rel.ArbitrageFlag = &tag
			rel.LogicJustification += fmt.Sprintf(
				" Probabilities sum %.1f points away from 100 on a mutually exclusive pair.", float64(spread))
		}
	}
}

// detectHubs counts (implied + correlated) edges per market and logs markets
// over the configured link threshold. Advisory: the dashboard reads the same
// counts from the graph endpoint.
func (c *Classifier) detectHubs(ctx context.Context) []string {
	rels, err := c.store.FetchRelationships(ctx)
	if err != nil {
		c.logger.Warn("hub detection skipped", "error", err)
		return nil
	}

	hubs := HubNodes(rels, c.cfg.HubLinkThreshold)
	for _, h := range hubs {
		c.logger.Info("hub node detected", "market_key", h)
	}
	return hubs
}

// HubNodes returns markets with strictly more than threshold implied or
// correlated edges, sorted for determinism. The model sometimes emits
// "implied_*" synonyms; those count the same way the traversal treats them.
func HubNodes(rels []types.Relationship, threshold int) []string {
	counts := make(map[string]int)
	for _, r := range rels {
		relType := string(r.RelationshipType)
		if !strings.HasPrefix(relType, "implied") && r.RelationshipType != types.RelCorrelated {
			continue
		}
		counts[r.MarketKeyA]++
		counts[r.MarketKeyB]++
	}

	var hubs []string
	for key, n := range counts {
		if n > threshold {
			hubs = append(hubs, key)
		}
	}
	sort.Strings(hubs)
	return hubs
}

func resolveProb(resolver *catalog.Resolver, key string) *types.Percent {
	sig, ok := resolver.Resolve(key)
	if !ok {
		return nil
	}
	pct := sig.ProbabilityPct
	return &pct
}

func toPayload(m types.Market) payloadMarket {
	return payloadMarket{
		MarketKey:        m.MarketKey,
		EventName:        m.EventName,
		PropositionText:  m.PropositionText,
		ResolutionDate:   m.ResolutionDate,
		SettlementSource: m.SettlementSource,
	}
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}
