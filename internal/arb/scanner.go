// Package arb hunts cross-venue divergence on equivalent pairs.
//
// Every poll interval the scanner loads the equivalent edges, the catalog,
// and a latest-quote snapshot, resolves both sides of each pair through the
// shared price-priority rule, and emits an alert when the probability spread
// clears the threshold and both live sides clear the liquidity gate. Pairs
// that needed the demo fallback on either side are tagged simulated so the
// dashboard can tell paper signals from live ones.
package arb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"vantage-engine/internal/catalog"
	"vantage-engine/internal/config"
	"vantage-engine/internal/persist"
	"vantage-engine/pkg/types"
)

// latestScanLimit bounds the descending quote scan per cycle.
const latestScanLimit = 500

var (
	metricScans = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vantage_arb_scans_total",
		Help: "Arbitrage scan cycles completed.",
	})
	metricAlerts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vantage_arb_alerts_total",
		Help: "Arbitrage alerts emitted.",
	})
)

// Store is the slice of the persistence client the scanner needs.
type Store interface {
	FetchEquivalentRelationships(ctx context.Context) ([]types.Relationship, error)
	FetchCatalog(ctx context.Context) ([]types.Market, error)
	LatestQuotes(ctx context.Context, limit int) ([]types.Quote, error)
	InsertAlert(ctx context.Context, alert types.ArbitrageAlert) error
}

// AlertBroadcaster pushes emitted alerts to dashboard subscribers. May be nil.
type AlertBroadcaster interface {
	BroadcastAlert(a types.ArbitrageAlert)
}

// Scanner periodically checks equivalent pairs for price divergence.
type Scanner struct {
	store     Store
	cfg       config.ArbitrageConfig
	demo      map[string]float64
	broadcast AlertBroadcaster
	degraded  bool
	logger    *slog.Logger
}

// NewScanner creates an arbitrage scanner.
func NewScanner(store Store, cfg config.ArbitrageConfig, demo map[string]float64, logger *slog.Logger) *Scanner {
	return &Scanner{
		store:  store,
		cfg:    cfg,
		demo:   demo,
		logger: logger.With("component", "arb_scanner"),
	}
}

// SetBroadcaster wires the dashboard stream. Call before Run.
func (s *Scanner) SetBroadcaster(b AlertBroadcaster) {
	s.broadcast = b
}

// Run scans on the configured interval until ctx is cancelled.
func (s *Scanner) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			alerts, err := s.scanOnce(ctx)
			if err != nil {
				if errors.Is(err, persist.ErrTableMissing) {
					if !s.degraded {
						s.degraded = true
						s.logger.Error("scanner degraded until store schema is fixed", "error", err)
					}
					continue
				}
				s.logger.Warn("scan cycle failed", "error", err)
				continue
			}
			s.degraded = false
			metricScans.Inc()
			if len(alerts) > 0 {
				s.logger.Info("scan cycle complete", "alerts", len(alerts))
			}
		}
	}
}

// scanOnce runs one full cycle and returns the alerts it emitted.
func (s *Scanner) scanOnce(ctx context.Context) ([]types.ArbitrageAlert, error) {
	rels, err := s.store.FetchEquivalentRelationships(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch equivalent pairs: %w", err)
	}
	if len(rels) == 0 {
		return nil, nil
	}

	markets, err := s.store.FetchCatalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}
	quotes, err := s.store.LatestQuotes(ctx, latestScanLimit)
	if err != nil {
		return nil, fmt.Errorf("fetch latest quotes: %w", err)
	}

	cat := catalog.New(markets)
	resolver := catalog.NewResolver(cat, persist.LatestByEvent(quotes), s.demo)

	var alerts []types.ArbitrageAlert
	for _, rel := range rels {
		alert, ok := s.evaluate(cat, resolver, rel)
		if !ok {
			continue
		}
		if err := s.store.InsertAlert(ctx, alert); err != nil {
			return alerts, fmt.Errorf("insert alert: %w", err)
		}
		metricAlerts.Inc()
		if s.broadcast != nil {
			s.broadcast.BroadcastAlert(alert)
		}
		alerts = append(alerts, alert)
	}
	return alerts, nil
}

// evaluate checks one equivalent pair against the spread and liquidity gates.
func (s *Scanner) evaluate(cat *catalog.Catalog, resolver *catalog.Resolver, rel types.Relationship) (types.ArbitrageAlert, bool) {
	sigA, okA := resolver.Resolve(rel.MarketKeyA)
	sigB, okB := resolver.Resolve(rel.MarketKeyB)
	if !okA || !okB {
		return types.ArbitrageAlert{}, false
	}

	spread := types.Percent(math.Abs(float64(sigA.ProbabilityPct - sigB.ProbabilityPct)))
	if float64(spread) <= s.cfg.SpreadThresholdPct {
		return types.ArbitrageAlert{}, false
	}

	// Liquidity gate applies to live sides only: demo-resolved sides have no
	// book to measure and the alert is already tagged simulated.
	if sigA.Live && sigA.DepthUSD <= s.cfg.LiquidityThresholdUSD {
		return types.ArbitrageAlert{}, false
	}
	if sigB.Live && sigB.DepthUSD <= s.cfg.LiquidityThresholdUSD {
		return types.ArbitrageAlert{}, false
	}

	status := types.AlertLive
	if !sigA.Live || !sigB.Live {
		status = types.AlertSimulated
	}

	return types.ArbitrageAlert{
		ID:                 uuid.NewString(),
		Timestamp:          time.Now().UTC(),
		MarketPair:         fmt.Sprintf("%s ↔ %s", displayName(cat, rel.MarketKeyA), displayName(cat, rel.MarketKeyB)),
		Spread:             spread,
		PotentialProfitPct: spread,
		Status:             status,
	}, true
}

func displayName(cat *catalog.Catalog, key string) string {
	if m, ok := cat.Get(key); ok && m.EventName != "" {
		return m.EventName
	}
	return key
}
