// Vantage Engine — a real-time intelligence backend for cross-venue
// prediction markets.
//
// Architecture:
//
//	main.go              — entry point: loads config, starts engine, waits for SIGINT/SIGTERM
//	engine/engine.go     — orchestrator: wires feeds → ingest → store, scanner, classifier, scenarios
//	venue/polymarket     — order-book venue WebSocket session (book snapshots, price changes, trades)
//	venue/kalshi         — ticker venue WebSocket session with RSA-PSS signed auth
//	ingest/              — microstructure cache + normalization into enriched quote rows
//	persist/             — PostgREST store client, batch writer with bounded requeue, disk spool
//	arb/scanner.go       — polls equivalent pairs for cross-venue price divergence
//	classify/            — analyst-model pairwise relationship classification over the catalog
//	scenario/            — bounded causal-graph traversal + narrative generation for stress tests
//	api/                 — dashboard HTTP/WebSocket server (graph data, scenarios, alerts, quote stream)
//
// What it produces:
//
//	A live semantic graph over markets tracked on two venues: normalized
//	quotes with confidence scoring, classified relationships between
//	markets, arbitrage alerts when equivalent markets disagree, and
//	on-demand scenario stress reports for "what if X happens" queries.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"vantage-engine/internal/config"
	"vantage-engine/internal/engine"
)

func main() {
	// Load config
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("VANTAGE_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// Set up logger
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	// Create and start engine
	eng, err := engine.New(*cfg, logger)
	if err != nil {
		logger.Error("failed to create engine", "error", err)
		os.Exit(1)
	}

	// Start dashboard API server if enabled
	apiServer := eng.Server()
	if apiServer != nil {
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error("dashboard server failed", "error", err)
			}
		}()
		logger.Info("dashboard started", "url", fmt.Sprintf("http://localhost:%d", cfg.Dashboard.Port))
	}

	if err := eng.Start(); err != nil {
		logger.Error("failed to start engine", "error", err)
		os.Exit(1)
	}

	logger.Info("vantage engine started",
		"polymarket_assets", len(cfg.Polymarket.AssetIDs),
		"kalshi_tickers", len(cfg.Kalshi.Tickers),
		"batch_size", cfg.Batch.Size,
	)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	// Stop dashboard first
	if apiServer != nil {
		if err := apiServer.Stop(); err != nil {
			logger.Error("failed to stop dashboard", "error", err)
		}
	}

	eng.Stop()
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
