package classify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"vantage-engine/pkg/types"
)

type fakeModel struct {
	response string
	err      error
}

func (f *fakeModel) Complete(ctx context.Context, systemPrompt, userContent string) (string, error) {
	return f.response, f.err
}

type fakeGraphStore struct {
	mu      sync.Mutex
	markets []types.Market
	quotes  []types.Quote
	rels    []types.Relationship
	upserts []types.Relationship
}

func (f *fakeGraphStore) FetchCatalog(ctx context.Context) ([]types.Market, error) {
	return f.markets, nil
}

func (f *fakeGraphStore) LatestQuotes(ctx context.Context, limit int) ([]types.Quote, error) {
	return f.quotes, nil
}

func (f *fakeGraphStore) FetchRelationships(ctx context.Context) ([]types.Relationship, error) {
	return f.rels, nil
}

func (f *fakeGraphStore) UpsertRelationship(ctx context.Context, rel types.Relationship) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, rel)
	return nil
}

func threeMarketStore() *fakeGraphStore {
	return &fakeGraphStore{
		markets: []types.Market{
			{MarketKey: "a_market", PolymarketID: "asset-a"},
			{MarketKey: "b_market", KalshiTicker: "TKR-B"},
			{MarketKey: "c_market", PolymarketID: "asset-c"},
		},
		quotes: []types.Quote{
			{EventID: "asset-a", ProbabilityPct: 60},
			{EventID: "TKR-B", ProbabilityPct: 55},
		},
	}
}

func TestRunClassifiesAllPairs(t *testing.T) {
	t.Parallel()

	model := &fakeModel{response: `{
		"relationship_type": "correlated",
		"confidence_score": 0.7,
		"impact_direction": "positive",
		"correlation_strength": "medium",
		"logical_layer": "financial",
		"logic_justification": "Shared macro driver.",
		"vantage_insight": "Watch the pair."
	}`}
	store := threeMarketStore()
	c := New(store, model, testClassifierConfig(), nil, slog.Default())

	summary, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// 3 markets -> 3 unordered pairs.
	if summary.Pairs != 3 || summary.Classified != 3 || summary.Skipped != 0 {
		t.Errorf("summary = %+v, want 3 pairs all classified", summary)
	}
	if len(store.upserts) != 3 {
		t.Fatalf("upserts = %d, want 3", len(store.upserts))
	}
	for _, rel := range store.upserts {
		if rel.MarketKeyA >= rel.MarketKeyB {
			t.Errorf("pair %s/%s not in canonical order", rel.MarketKeyA, rel.MarketKeyB)
		}
		if rel.RelationshipType != types.RelCorrelated {
			t.Errorf("type = %q", rel.RelationshipType)
		}
	}
}

func TestRunSkipsFailingPairs(t *testing.T) {
	t.Parallel()

	model := &fakeModel{err: errors.New("model down")}
	store := threeMarketStore()
	c := New(store, model, testClassifierConfig(), nil, slog.Default())

	summary, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Skipped != 3 || summary.Classified != 0 {
		t.Errorf("summary = %+v, want all pairs skipped", summary)
	}
	if len(store.upserts) != 0 {
		t.Errorf("upserts = %d, want 0", len(store.upserts))
	}
}

func TestRunSkipsUnparseableResponses(t *testing.T) {
	t.Parallel()

	model := &fakeModel{response: "these markets look related I guess"}
	store := threeMarketStore()
	c := New(store, model, testClassifierConfig(), nil, slog.Default())

	summary, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Skipped != 3 {
		t.Errorf("summary = %+v, want all pairs skipped", summary)
	}
}

func TestRunSnapshotsProbabilities(t *testing.T) {
	t.Parallel()

	model := &fakeModel{response: `{"relationship_type": "equivalent", "confidence_score": 0.95}`}
	store := threeMarketStore()
	store.markets = store.markets[:2] // one pair: a_market / b_market
	c := New(store, model, testClassifierConfig(), nil, slog.Default())

	if _, err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(store.upserts) != 1 {
		t.Fatalf("upserts = %d, want 1", len(store.upserts))
	}

	rel := store.upserts[0]
	if rel.ProbabilityA == nil || *rel.ProbabilityA != 60 {
		t.Errorf("ProbabilityA = %v, want 60", rel.ProbabilityA)
	}
	if rel.ProbabilityB == nil || *rel.ProbabilityB != 55 {
		t.Errorf("ProbabilityB = %v, want 55", rel.ProbabilityB)
	}
	// Post-processing on an equivalent pair fills the spread.
	if rel.ProbabilitySpread == nil || *rel.ProbabilitySpread != 5 {
		t.Errorf("spread = %v, want 5", rel.ProbabilitySpread)
	}
}
