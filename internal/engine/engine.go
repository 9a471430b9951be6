// Package engine is the central orchestrator of the intelligence backend.
//
// It wires together all subsystems:
//
//  1. Two venue sessions stream quotes over WebSocket (order-book venue and
//     ticker venue), each with its own reconnect loop.
//  2. The ingestor normalizes venue events into enriched quote rows via the
//     microstructure cache and hands them to the batch writer.
//  3. The batch writer persists quote rows to the store in bounded batches,
//     spooling unflushed rows to disk on shutdown.
//  4. The arbitrage scanner polls equivalent pairs for cross-venue spreads.
//  5. The classifier builds the relationship graph with the analyst model,
//     run once per catalog load rather than per request.
//  6. The scenario engine answers stress-test queries on demand via the API.
//
// Lifecycle: New() → Start() → [runs until SIGINT] → Stop()
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"vantage-engine/internal/analyst"
	"vantage-engine/internal/api"
	"vantage-engine/internal/arb"
	"vantage-engine/internal/catalog"
	"vantage-engine/internal/classify"
	"vantage-engine/internal/config"
	"vantage-engine/internal/ingest"
	"vantage-engine/internal/persist"
	"vantage-engine/internal/scenario"
	"vantage-engine/internal/venue/kalshi"
	"vantage-engine/internal/venue/polymarket"
)

// scenarioGrace bounds how long Stop waits for in-flight scenario requests.
const scenarioGrace = 10 * time.Second

// Engine orchestrates all components of the intelligence backend.
// It owns the lifecycle of all goroutines.
type Engine struct {
	cfg      config.Config
	store    *persist.Client
	spool    *persist.Spool
	writer   *persist.BatchWriter
	cache    *ingest.Cache
	model    *analyst.Client
	scanner  *arb.Scanner
	classif  *classify.Classifier
	scenEng  *scenario.Engine
	server   *api.Server
	polyFeed *polymarket.Session
	kalFeed  *kalshi.Session
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// ingestCancel stops the venue feeds and ingestor ahead of the final
	// flush so no quote races the spool on shutdown.
	ingestCancel context.CancelFunc

	wg       sync.WaitGroup
	ingestWg sync.WaitGroup
}

// New creates and wires all engine components.
func New(cfg config.Config, logger *slog.Logger) (*Engine, error) {
	store := persist.NewClient(cfg.Store, logger)

	spool, err := persist.OpenSpool(cfg.Store.SpoolDir)
	if err != nil {
		return nil, err
	}

	writer := persist.NewBatchWriter(store, spool, cfg.Batch, logger)
	cache := ingest.NewCache()
	model := analyst.NewClient(cfg.Analyst, logger)

	scanner := arb.NewScanner(store, cfg.Arbitrage, cfg.DemoProbs, logger)
	classif := classify.New(store, model, cfg.Classifier, cfg.DemoProbs, logger)
	scenEng := scenario.NewEngine(store, model, cfg.Scenario, cfg.DemoProbs, logger)

	var server *api.Server
	if cfg.Dashboard.Enabled {
		server = api.NewServer(store, scenEng, cfg, logger)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Engine{
		cfg:     cfg,
		store:   store,
		spool:   spool,
		writer:  writer,
		cache:   cache,
		model:   model,
		scanner: scanner,
		classif: classif,
		scenEng: scenEng,
		server:  server,
		logger:  logger.With("component", "engine"),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Server returns the dashboard API server, nil when the dashboard is disabled.
func (e *Engine) Server() *api.Server {
	return e.server
}

// Start launches all background goroutines: spool drain, batch writer, venue
// feeds, ingestor pumps, arbitrage scanner, and one classification pass.
func (e *Engine) Start() error {
	// Batch writer outlives ingestion so the final flush sees every quote.
	// It re-enqueued any spooled quotes from the previous shutdown when it
	// was constructed.
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.writer.Run(e.ctx)
	}()

	var broadcast ingest.Broadcaster
	if e.server != nil {
		broadcast = e.server.Hub()
		e.scanner.SetBroadcaster(e.server.Hub())
	}

	names := e.loadNames()
	ingestor := ingest.NewIngestor(e.cache, e.writer, broadcast, names, e.logger)

	ingestCtx, ingestCancel := context.WithCancel(e.ctx)
	e.ingestCancel = ingestCancel

	// Sessions run even with an empty subscription list: they open, log a
	// warning, and simply receive no data.
	e.polyFeed = polymarket.NewSession(
		e.cfg.Polymarket.WSURL,
		e.cfg.Polymarket.ApiKey,
		e.cfg.Polymarket.AssetIDs,
		e.cfg.Ingest.ReconnectBaseDelay,
		e.cfg.Ingest.ReconnectMaxDelay,
		e.logger,
	)
	e.ingestWg.Add(2)
	go func() {
		defer e.ingestWg.Done()
		if err := e.polyFeed.Run(ingestCtx); err != nil && ingestCtx.Err() == nil {
			e.logger.Error("polymarket feed error", "error", err)
		}
	}()
	go func() {
		defer e.ingestWg.Done()
		ingestor.RunPolymarket(ingestCtx, e.polyFeed.Events())
	}()

	if e.cfg.Kalshi.ApiKey != "" && e.cfg.Kalshi.PrivateKeyBase64 != "" {
		auth, err := kalshi.NewAuth(e.cfg.Kalshi.ApiKey, e.cfg.Kalshi.PrivateKeyBase64)
		if err != nil {
			return err
		}
		e.kalFeed = kalshi.NewSession(
			e.cfg.Kalshi.WSURL,
			auth,
			e.cfg.Kalshi.Tickers,
			e.cfg.Ingest.ReconnectBaseDelay,
			e.cfg.Ingest.ReconnectMaxDelay,
			e.logger,
		)
		e.ingestWg.Add(2)
		go func() {
			defer e.ingestWg.Done()
			if err := e.kalFeed.Run(ingestCtx); err != nil && ingestCtx.Err() == nil {
				e.logger.Error("kalshi feed error", "error", err)
			}
		}()
		go func() {
			defer e.ingestWg.Done()
			ingestor.RunKalshi(ingestCtx, e.kalFeed.Events())
		}()
	} else {
		e.logger.Warn("no kalshi credentials configured, skipping feed")
	}

	// Arbitrage scanner
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.scanner.Run(e.ctx)
	}()

	// One classification pass per process start. The catalog is loaded from
	// the store, so restarting after a catalog change rebuilds the graph.
	if e.cfg.Analyst.ApiKey != "" {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			summary, err := e.classif.Run(e.ctx)
			if err != nil && e.ctx.Err() == nil {
				e.logger.Error("classification run failed", "error", err)
				return
			}
			e.logger.Info("relationship graph ready",
				"pairs", summary.Pairs, "classified", summary.Classified)
		}()
	} else {
		e.logger.Warn("no analyst key configured, skipping classification")
	}

	return nil
}

// Stop gracefully shuts down: stops ingestion first, lets the batch writer
// run its final flush (spooling leftovers to disk), then waits out in-flight
// scenario work up to a grace period.
func (e *Engine) Stop() {
	e.logger.Info("shutting down...")

	// Stop feeds and ingestor pumps so no new quotes arrive mid-flush.
	if e.ingestCancel != nil {
		e.ingestCancel()
	}
	e.ingestWg.Wait()

	// Cancel everything else; the batch writer flushes on its way out.
	e.cancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(scenarioGrace):
		e.logger.Warn("shutdown grace period elapsed, exiting with work in flight")
	}

	e.logger.Info("shutdown complete")
}

// loadNames maps venue identifiers to event names for quote labeling. A store
// failure here degrades labels, not ingestion.
func (e *Engine) loadNames() map[string]string {
	ctx, cancel := context.WithTimeout(e.ctx, 10*time.Second)
	defer cancel()

	markets, err := e.store.FetchCatalog(ctx)
	if err != nil {
		e.logger.Warn("failed to load catalog for quote labels", "error", err)
		return nil
	}
	return catalog.New(markets).NamesByIdentifier()
}
