package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"vantage-engine/internal/catalog"
	"vantage-engine/internal/config"
	"vantage-engine/internal/persist"
	"vantage-engine/pkg/types"
)

const (
	recentLimit     = 50
	latestScanLimit = 500
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin is enforced by the CORS wrapper in server.go
		return true
	},
}

// Store is the slice of the persistence client the handlers need.
type Store interface {
	FetchCatalog(ctx context.Context) ([]types.Market, error)
	FetchRelationships(ctx context.Context) ([]types.Relationship, error)
	LatestQuotes(ctx context.Context, limit int) ([]types.Quote, error)
	RecentAlerts(ctx context.Context, limit int) ([]types.ArbitrageAlert, error)
	RecentReports(ctx context.Context, limit int) ([]types.ScenarioReport, error)
}

// ScenarioRunner handles one scenario query end to end.
type ScenarioRunner interface {
	Run(ctx context.Context, query string) types.ScenarioReport
}

// Handlers holds all HTTP handler dependencies
type Handlers struct {
	store     Store
	scenarios ScenarioRunner
	cfg       config.Config
	hub       *Hub
	logger    *slog.Logger
}

// NewHandlers creates a new handlers instance
func NewHandlers(store Store, scenarios ScenarioRunner, cfg config.Config, hub *Hub, logger *slog.Logger) *Handlers {
	return &Handlers{
		store:     store,
		scenarios: scenarios,
		cfg:       cfg,
		hub:       hub,
		logger:    logger.With("component", "api-handlers"),
	}
}

// HandleHealth returns a simple health check response
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleGraphData returns the full graph: catalog nodes with live
// probabilities, relationship edges, and summary meta.
func (h *Handlers) HandleGraphData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	markets, err := h.store.FetchCatalog(ctx)
	if err != nil {
		h.logger.Error("fetch catalog failed", "error", err)
		http.Error(w, "store unavailable", http.StatusBadGateway)
		return
	}
	rels, err := h.store.FetchRelationships(ctx)
	if err != nil {
		h.logger.Error("fetch relationships failed", "error", err)
		http.Error(w, "store unavailable", http.StatusBadGateway)
		return
	}
	quotes, err := h.store.LatestQuotes(ctx, latestScanLimit)
	if err != nil {
		h.logger.Error("fetch quotes failed", "error", err)
		http.Error(w, "store unavailable", http.StatusBadGateway)
		return
	}

	cat := catalog.New(markets)
	resolver := catalog.NewResolver(cat, persist.LatestByEvent(quotes), h.cfg.DemoProbs)

	writeJSON(w, http.StatusOK, BuildGraphData(cat, rels, resolver, h.cfg.Classifier.HubLinkThreshold))
}

type scenarioRequest struct {
	Query string `json:"query"`
}

// HandleScenario runs one scenario stress test synchronously. Failures come
// back as a 200 report row in status failed with an error message, so the
// dashboard always has something to render.
func (h *Handlers) HandleScenario(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req scenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}

	report := h.scenarios.Run(r.Context(), req.Query)
	writeJSON(w, http.StatusOK, report)
}

// HandleScenarios lists recent scenario reports, newest first.
func (h *Handlers) HandleScenarios(w http.ResponseWriter, r *http.Request) {
	reports, err := h.store.RecentReports(r.Context(), recentLimit)
	if err != nil {
		h.logger.Error("fetch reports failed", "error", err)
		http.Error(w, "store unavailable", http.StatusBadGateway)
		return
	}
	if reports == nil {
		reports = []types.ScenarioReport{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": reports})
}

// HandleAlerts lists recent arbitrage alerts, newest first.
func (h *Handlers) HandleAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.store.RecentAlerts(r.Context(), recentLimit)
	if err != nil {
		h.logger.Error("fetch alerts failed", "error", err)
		http.Error(w, "store unavailable", http.StatusBadGateway)
		return
	}
	if alerts == nil {
		alerts = []types.ArbitrageAlert{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

// HandleWebSocket upgrades the connection and creates a new WebSocket client
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	NewClient(h.hub, conn)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
