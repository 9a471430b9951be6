package arb

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"vantage-engine/internal/config"
	"vantage-engine/pkg/types"
)

type fakeStore struct {
	rels    []types.Relationship
	markets []types.Market
	quotes  []types.Quote
	alerts  []types.ArbitrageAlert
}

func (f *fakeStore) FetchEquivalentRelationships(ctx context.Context) ([]types.Relationship, error) {
	return f.rels, nil
}

func (f *fakeStore) FetchCatalog(ctx context.Context) ([]types.Market, error) {
	return f.markets, nil
}

func (f *fakeStore) LatestQuotes(ctx context.Context, limit int) ([]types.Quote, error) {
	return f.quotes, nil
}

func (f *fakeStore) InsertAlert(ctx context.Context, alert types.ArbitrageAlert) error {
	f.alerts = append(f.alerts, alert)
	return nil
}

func testArbConfig() config.ArbitrageConfig {
	return config.ArbitrageConfig{
		SpreadThresholdPct:    3,
		LiquidityThresholdUSD: 500,
	}
}

func pairFixture() *fakeStore {
	return &fakeStore{
		rels: []types.Relationship{{
			MarketKeyA:       "fed_cut_poly",
			MarketKeyB:       "fed_cut_kalshi",
			RelationshipType: types.RelEquivalent,
		}},
		markets: []types.Market{
			{MarketKey: "fed_cut_poly", EventName: "Fed cuts in March", PolymarketID: "asset-1"},
			{MarketKey: "fed_cut_kalshi", EventName: "Fed cuts in March (Kalshi)", KalshiTicker: "FED-MAR"},
		},
	}
}

func quote(eventID string, pct types.Percent, depth float64) types.Quote {
	return types.Quote{
		ID:                eventID + "-q",
		EventID:           eventID,
		ProbabilityPct:    pct,
		LiquidityDepthUSD: depth,
	}
}

func TestScanEmitsLiveAlert(t *testing.T) {
	t.Parallel()

	store := pairFixture()
	store.quotes = []types.Quote{
		quote("asset-1", 64, 2000),
		quote("FED-MAR", 58, 1500),
	}
	s := NewScanner(store, testArbConfig(), nil, slog.Default())

	alerts, err := s.scanOnce(context.Background())
	if err != nil {
		t.Fatalf("scanOnce: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts))
	}

	a := alerts[0]
	if a.Spread != 6 {
		t.Errorf("Spread = %v, want 6", a.Spread)
	}
	if a.PotentialProfitPct != a.Spread {
		t.Errorf("PotentialProfitPct = %v, want equal to spread", a.PotentialProfitPct)
	}
	if a.Status != types.AlertLive {
		t.Errorf("Status = %v, want alert", a.Status)
	}
	if !strings.Contains(a.MarketPair, "Fed cuts in March") {
		t.Errorf("MarketPair = %q, want event names", a.MarketPair)
	}
	if len(store.alerts) != 1 {
		t.Errorf("alert not persisted")
	}
}

type fakeAlertSink struct {
	alerts []types.ArbitrageAlert
}

func (f *fakeAlertSink) BroadcastAlert(a types.ArbitrageAlert) {
	f.alerts = append(f.alerts, a)
}

func TestScanBroadcastsEmittedAlerts(t *testing.T) {
	t.Parallel()

	store := pairFixture()
	store.quotes = []types.Quote{
		quote("asset-1", 64, 2000),
		quote("FED-MAR", 58, 1500),
	}
	s := NewScanner(store, testArbConfig(), nil, slog.Default())
	sink := &fakeAlertSink{}
	s.SetBroadcaster(sink)

	if _, err := s.scanOnce(context.Background()); err != nil {
		t.Fatalf("scanOnce: %v", err)
	}
	if len(sink.alerts) != 1 {
		t.Fatalf("broadcast alerts = %d, want 1", len(sink.alerts))
	}
	if sink.alerts[0].Spread != 6 {
		t.Errorf("broadcast Spread = %v, want 6", sink.alerts[0].Spread)
	}
}

func TestScanSpreadBelowThreshold(t *testing.T) {
	t.Parallel()

	store := pairFixture()
	store.quotes = []types.Quote{
		quote("asset-1", 64, 2000),
		quote("FED-MAR", 62, 1500),
	}
	s := NewScanner(store, testArbConfig(), nil, slog.Default())

	alerts, err := s.scanOnce(context.Background())
	if err != nil {
		t.Fatalf("scanOnce: %v", err)
	}
	if len(alerts) != 0 {
		t.Errorf("alerts = %d, want 0 for a 2-point spread", len(alerts))
	}
}

func TestScanLiquidityGateBlocksThinSide(t *testing.T) {
	t.Parallel()

	store := pairFixture()
	store.quotes = []types.Quote{
		quote("asset-1", 64, 2000),
		quote("FED-MAR", 58, 100), // thin side
	}
	s := NewScanner(store, testArbConfig(), nil, slog.Default())

	alerts, err := s.scanOnce(context.Background())
	if err != nil {
		t.Fatalf("scanOnce: %v", err)
	}
	if len(alerts) != 0 {
		t.Errorf("alerts = %d, want 0 when one live side is under the liquidity gate", len(alerts))
	}
}

func TestScanDemoSideYieldsSimulated(t *testing.T) {
	t.Parallel()

	store := pairFixture()
	store.quotes = []types.Quote{
		quote("asset-1", 64, 2000),
		// No live quote for FED-MAR; the demo table supplies it.
	}
	demo := map[string]float64{"fed_cut_kalshi": 55}
	s := NewScanner(store, testArbConfig(), demo, slog.Default())

	alerts, err := s.scanOnce(context.Background())
	if err != nil {
		t.Fatalf("scanOnce: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1 (demo side bypasses the liquidity gate)", len(alerts))
	}
	if alerts[0].Status != types.AlertSimulated {
		t.Errorf("Status = %v, want simulated", alerts[0].Status)
	}
	if alerts[0].Spread != 9 {
		t.Errorf("Spread = %v, want 9", alerts[0].Spread)
	}
}

func TestScanUnresolvableSideSkipped(t *testing.T) {
	t.Parallel()

	store := pairFixture()
	store.quotes = []types.Quote{quote("asset-1", 64, 2000)}
	s := NewScanner(store, testArbConfig(), nil, slog.Default())

	alerts, err := s.scanOnce(context.Background())
	if err != nil {
		t.Fatalf("scanOnce: %v", err)
	}
	if len(alerts) != 0 {
		t.Errorf("alerts = %d, want 0 with no demo fallback configured", len(alerts))
	}
}
