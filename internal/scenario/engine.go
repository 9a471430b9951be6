// Package scenario answers "what happens to the graph if X?" requests.
//
// One request runs: create a processing report row, load the graph and a
// price snapshot, parse the shock with the analyst model, run the bounded
// traversal, build a retrieval-augmented context, ask the model for the
// narrative, and persist the completed report. Any failure lands the report
// in status failed with an error message — the endpoint never hangs silently.
package scenario

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"vantage-engine/internal/analyst"
	"vantage-engine/internal/catalog"
	"vantage-engine/internal/config"
	"vantage-engine/internal/persist"
	"vantage-engine/pkg/types"
)

const latestScanLimit = 500

var metricScenarios = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "vantage_scenarios_total",
	Help: "Scenario requests by final status.",
}, []string{"status"})

// Model is the analyst call surface the engine needs.
type Model interface {
	Complete(ctx context.Context, systemPrompt, userContent string) (string, error)
}

// Store is the slice of the persistence client the engine needs.
type Store interface {
	InsertReport(ctx context.Context, report types.ScenarioReport) error
	UpdateReport(ctx context.Context, report types.ScenarioReport) error
	FetchRelationships(ctx context.Context) ([]types.Relationship, error)
	FetchCatalog(ctx context.Context) ([]types.Market, error)
	LatestQuotes(ctx context.Context, limit int) ([]types.Quote, error)
}

// Engine runs scenario stress tests.
type Engine struct {
	store  Store
	model  Model
	cfg    config.ScenarioConfig
	demo   map[string]float64
	logger *slog.Logger
}

// NewEngine creates a scenario engine.
func NewEngine(store Store, model Model, cfg config.ScenarioConfig, demo map[string]float64, logger *slog.Logger) *Engine {
	return &Engine{
		store:  store,
		model:  model,
		cfg:    cfg,
		demo:   demo,
		logger: logger.With("component", "scenario"),
	}
}

// Run handles one user query end to end and returns the final report.
// The returned report carries status failed (with an error message) rather
// than an error return for analyst or graph problems, so callers always have
// a row to show.
func (e *Engine) Run(ctx context.Context, query string) types.ScenarioReport {
	report := types.ScenarioReport{
		ID:        uuid.NewString(),
		Query:     query,
		Status:    types.ReportProcessing,
		CreatedAt: time.Now().UTC(),
	}
	if err := e.store.InsertReport(ctx, report); err != nil {
		// Keep computing: a store hiccup should degrade persistence, not
		// the answer the caller is waiting on.
		e.logger.Warn("failed to create report row", "error", err)
	}

	if err := e.run(ctx, &report); err != nil {
		report.Status = types.ReportFailed
		report.Error = err.Error()
		e.logger.Warn("scenario failed", "id", report.ID, "error", err)
	} else {
		report.Status = types.ReportComplete
	}

	metricScenarios.WithLabelValues(string(report.Status)).Inc()
	if err := e.store.UpdateReport(ctx, report); err != nil {
		e.logger.Warn("failed to persist report", "id", report.ID, "error", err)
	}
	return report
}

func (e *Engine) run(ctx context.Context, report *types.ScenarioReport) error {
	// (b) Load graph, catalog, and the latest-per-identifier price snapshot.
	rels, err := e.store.FetchRelationships(ctx)
	if err != nil {
		return fmt.Errorf("load graph: %w", err)
	}
	markets, err := e.store.FetchCatalog(ctx)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	quotes, err := e.store.LatestQuotes(ctx, latestScanLimit)
	if err != nil {
		return fmt.Errorf("load quotes: %w", err)
	}

	cat := catalog.New(markets)
	resolver := catalog.NewResolver(cat, persist.LatestByEvent(quotes), e.demo)
	graph := NewGraph(rels)

	// (c) Parse the shock.
	shock, err := e.parseShock(ctx, report.Query, cat)
	if err != nil {
		return err
	}
	report.TriggerMarket = shock.TargetMarket

	origin, inCatalog := cat.Get(shock.TargetMarket)
	if !inCatalog {
		// Graph-shape anomaly: still traverse from the supplied key; the
		// result is simply zero impacts when no edges exist.
		e.logger.Warn("shock target not in catalog", "target", shock.TargetMarket)
	}

	dir := types.DirUp
	if strings.EqualFold(shock.Direction, string(types.DirDown)) {
		dir = types.DirDown
	}

	// (d) Bounded breadth-first traversal.
	impacts := Traverse(graph, shock.TargetMarket, dir, e.cfg.MaxDepth, e.cfg.MinPathConfidence)

	report.CausalChain = toCausalChain(impacts)
	report.AffectedNodes, report.AffectedEdges = DeriveAffected(impacts)

	// (e) Retrieval-augmented narrative.
	if len(impacts) == 0 {
		report.Narrative = noImpactSummary
		return nil
	}

	narrative, err := e.generateNarrative(ctx, cat, resolver, origin, shock, dir, impacts)
	if err != nil {
		return err
	}
	report.Narrative = narrative
	return nil
}

// parseShock asks the analyst model to map the query onto one catalog market.
func (e *Engine) parseShock(ctx context.Context, query string, cat *catalog.Catalog) (parsedShock, error) {
	payload, err := json.Marshal(map[string]any{
		"query":   query,
		"catalog": cat.All(),
	})
	if err != nil {
		return parsedShock{}, fmt.Errorf("marshal parse payload: %w", err)
	}

	text, err := e.model.Complete(ctx, shockParsePrompt, string(payload))
	if err != nil {
		return parsedShock{}, fmt.Errorf("parse shock: %w", err)
	}

	var shock parsedShock
	if err := analyst.DecodeObject(text, &shock); err != nil {
		return parsedShock{}, fmt.Errorf("parse shock: %w", err)
	}
	if shock.TargetMarket == "" {
		return parsedShock{}, fmt.Errorf("parse shock: model returned no target market")
	}
	return shock, nil
}

// generateNarrative builds the RAG context and asks for the narrative, then
// concatenates summary and statements into the report's narrative string.
func (e *Engine) generateNarrative(ctx context.Context, cat *catalog.Catalog, resolver *catalog.Resolver, origin types.Market, shock parsedShock, dir types.Direction, impacts []Impact) (string, error) {
	rag := ragContext{
		Scenario: scenarioContext{
			TargetMarket:   shock.TargetMarket,
			EventName:      origin.EventName,
			Proposition:    origin.PropositionText,
			AssumedChange:  shock.AssumedChange,
			Direction:      dir,
			CurrentProbPct: resolveProb(resolver, shock.TargetMarket),
		},
	}
	for _, imp := range impacts {
		m, _ := cat.Get(imp.MarketKey)
		rag.Impacts = append(rag.Impacts, impactContext{
			MarketKey:        imp.MarketKey,
			EventName:        m.EventName,
			Proposition:      m.PropositionText,
			OrderLabel:       orderLabel(imp.Order),
			RelationshipType: imp.RelationshipType,
			Direction:        imp.Direction,
			Confidence:       imp.CumulativeConfidence,
			CurrentProbPct:   resolveProb(resolver, imp.MarketKey),
			CausalPath:       imp.Path,
			Justification:    imp.Edge.LogicJustification,
			Insight:          imp.Edge.VantageInsight,
			Strength:         imp.Edge.CorrelationStrength,
			Layer:            imp.Edge.LogicalLayer,
			ProbabilityA:     imp.Edge.ProbabilityA,
			ProbabilityB:     imp.Edge.ProbabilityB,
		})
	}

	payload, err := json.Marshal(rag)
	if err != nil {
		return "", fmt.Errorf("marshal narrative payload: %w", err)
	}

	text, err := e.model.Complete(ctx, narrativePrompt, string(payload))
	if err != nil {
		return "", fmt.Errorf("generate narrative: %w", err)
	}

	var result narrativeResult
	if err := analyst.DecodeObject(text, &result); err != nil {
		return "", fmt.Errorf("generate narrative: %w", err)
	}

	parts := []string{result.ExecutiveSummary}
	for _, mi := range result.MarketImpacts {
		if mi.Statement != "" {
			parts = append(parts, mi.Statement)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

func toCausalChain(impacts []Impact) []types.CausalStep {
	chain := make([]types.CausalStep, 0, len(impacts))
	for _, imp := range impacts {
		chain = append(chain, types.CausalStep{
			MarketKey:            imp.MarketKey,
			Order:                imp.Order,
			Direction:            imp.Direction,
			CumulativeConfidence: imp.CumulativeConfidence,
			Path:                 imp.Path,
		})
	}
	return chain
}

func resolveProb(resolver *catalog.Resolver, key string) *types.Percent {
	sig, ok := resolver.Resolve(key)
	if !ok {
		return nil
	}
	pct := sig.ProbabilityPct
	return &pct
}
