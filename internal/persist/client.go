// Package persist talks to the persistent table store.
//
// The store is addressed as a set of named tables over a PostgREST-style REST
// surface (Supabase): inserts are POSTs to /rest/v1/<table>, upserts add a
// merge-duplicates Prefer header with an on_conflict target, reads are GETs
// with filter/order/limit query params. The store's own change-broadcast
// facility fans writes out to external dashboards; this package never needs
// to push notifications itself.
//
// Schema drift (a missing table) is surfaced as ErrTableMissing so callers
// can mark themselves degraded and keep running instead of crashing.
package persist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"vantage-engine/internal/config"
	"vantage-engine/pkg/types"
)

// Required tables. The quote and report tables carry change-broadcast for
// the dashboard; market_relationships has a unique constraint on
// (market_key_a, market_key_b).
const (
	TableMetadata      = "market_metadata"
	TableSignals       = "market_signals"
	TableRelationships = "market_relationships"
	TableAlerts        = "arbitrage_alerts"
	TableReports       = "scenario_reports"
)

// ErrTableMissing reports persistence schema drift: the configured table does
// not exist in the store. Components treat this as "degrade, don't die".
var ErrTableMissing = errors.New("persistence unavailable: table missing (check store schema)")

// Client is the REST client for the table store.
// It wraps a resty HTTP client with retry and service-key auth.
type Client struct {
	http   *resty.Client
	logger *slog.Logger

	// missing tracks tables the store has rejected with undefined-table
	// errors, so repeated writes log once instead of spamming.
	missingMu sync.Mutex
	missing   map[string]bool
}

// NewClient creates a store client with retry on 5xx.
func NewClient(cfg config.StoreConfig, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.URL, "/")+"/rest/v1").
		SetTimeout(15 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json").
		SetHeader("apikey", cfg.ServiceKey).
		SetHeader("Authorization", "Bearer "+cfg.ServiceKey)

	return &Client{
		http:    httpClient,
		logger:  logger.With("component", "store"),
		missing: make(map[string]bool),
	}
}

// insert POSTs rows into a table.
func (c *Client) insert(ctx context.Context, table string, rows any) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(rows).
		SetHeader("Prefer", "return=minimal").
		Post("/" + table)
	return c.checkWrite(table, resp, err)
}

// upsert POSTs rows with merge-duplicates resolution on the given conflict target.
func (c *Client) upsert(ctx context.Context, table, onConflict string, rows any) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(rows).
		SetQueryParam("on_conflict", onConflict).
		SetHeader("Prefer", "resolution=merge-duplicates,return=minimal").
		Post("/" + table)
	return c.checkWrite(table, resp, err)
}

// update PATCHes rows matched by the filter params.
func (c *Client) update(ctx context.Context, table string, filters map[string]string, row any) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(row).
		SetQueryParams(filters).
		SetHeader("Prefer", "return=minimal").
		Patch("/" + table)
	return c.checkWrite(table, resp, err)
}

// get GETs rows into out with the given filter/order/limit params.
func (c *Client) get(ctx context.Context, table string, params map[string]string, out any) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(out).
		Get("/" + table)
	if err != nil {
		return fmt.Errorf("get %s: %w", table, err)
	}
	if isUndefinedTable(resp) {
		c.markMissing(table)
		return fmt.Errorf("get %s: %w", table, ErrTableMissing)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("get %s: status %d: %s", table, resp.StatusCode(), resp.String())
	}
	return nil
}

func (c *Client) checkWrite(table string, resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("write %s: %w", table, err)
	}
	if isUndefinedTable(resp) {
		c.markMissing(table)
		return fmt.Errorf("write %s: %w", table, ErrTableMissing)
	}
	if resp.StatusCode() >= 300 {
		return fmt.Errorf("write %s: status %d: %s", table, resp.StatusCode(), resp.String())
	}
	return nil
}

// isUndefinedTable detects PostgREST's undefined-table error (Postgres 42P01).
func isUndefinedTable(resp *resty.Response) bool {
	if resp == nil {
		return false
	}
	if resp.StatusCode() != http.StatusNotFound && resp.StatusCode() != http.StatusBadRequest {
		return false
	}
	body := resp.String()
	return strings.Contains(body, "42P01") || strings.Contains(body, "does not exist")
}

func (c *Client) markMissing(table string) {
	c.missingMu.Lock()
	defer c.missingMu.Unlock()
	if !c.missing[table] {
		c.missing[table] = true
		c.logger.Error("table missing in store — component degraded until schema is fixed",
			"table", table)
	}
}

// ————————————————————————————————————————————————————————————————————————
// Typed table operations
// ————————————————————————————————————————————————————————————————————————

// InsertQuotes appends a batch of normalized quotes. The batch is a single
// insert call, atomic as a group.
func (c *Client) InsertQuotes(ctx context.Context, quotes []types.Quote) error {
	if len(quotes) == 0 {
		return nil
	}
	return c.insert(ctx, TableSignals, quotes)
}

// LatestQuotes fetches up to limit quotes in descending timestamp order.
// Callers apply first-seen-wins to get the latest quote per identifier.
func (c *Client) LatestQuotes(ctx context.Context, limit int) ([]types.Quote, error) {
	var out []types.Quote
	err := c.get(ctx, TableSignals, map[string]string{
		"select": "*",
		"order":  "timestamp.desc",
		"limit":  fmt.Sprintf("%d", limit),
	}, &out)
	return out, err
}

// FetchCatalog loads the full market catalog.
func (c *Client) FetchCatalog(ctx context.Context) ([]types.Market, error) {
	var out []types.Market
	err := c.get(ctx, TableMetadata, map[string]string{"select": "*"}, &out)
	return out, err
}

// FetchRelationships loads every edge of the semantic graph.
func (c *Client) FetchRelationships(ctx context.Context) ([]types.Relationship, error) {
	var out []types.Relationship
	err := c.get(ctx, TableRelationships, map[string]string{"select": "*"}, &out)
	return out, err
}

// FetchEquivalentRelationships loads only same-outcome edges, the input set
// for the arbitrage scanner.
func (c *Client) FetchEquivalentRelationships(ctx context.Context) ([]types.Relationship, error) {
	var out []types.Relationship
	err := c.get(ctx, TableRelationships, map[string]string{
		"select":            "*",
		"relationship_type": "eq." + string(types.RelEquivalent),
	}, &out)
	return out, err
}

// UpsertRelationship stores one classified edge, keyed on the canonical pair.
func (c *Client) UpsertRelationship(ctx context.Context, rel types.Relationship) error {
	return c.upsert(ctx, TableRelationships, "market_key_a,market_key_b", []types.Relationship{rel})
}

// InsertAlert appends one arbitrage alert.
func (c *Client) InsertAlert(ctx context.Context, alert types.ArbitrageAlert) error {
	return c.insert(ctx, TableAlerts, []types.ArbitrageAlert{alert})
}

// RecentAlerts fetches the newest alerts for the dashboard.
func (c *Client) RecentAlerts(ctx context.Context, limit int) ([]types.ArbitrageAlert, error) {
	var out []types.ArbitrageAlert
	err := c.get(ctx, TableAlerts, map[string]string{
		"select": "*",
		"order":  "timestamp.desc",
		"limit":  fmt.Sprintf("%d", limit),
	}, &out)
	return out, err
}

// InsertReport creates a scenario report row (status pending/processing).
func (c *Client) InsertReport(ctx context.Context, report types.ScenarioReport) error {
	return c.insert(ctx, TableReports, []types.ScenarioReport{report})
}

// UpdateReport rewrites a scenario report row in place by ID.
func (c *Client) UpdateReport(ctx context.Context, report types.ScenarioReport) error {
	return c.update(ctx, TableReports, map[string]string{"id": "eq." + report.ID}, report)
}

// RecentReports fetches the newest scenario reports for the dashboard.
func (c *Client) RecentReports(ctx context.Context, limit int) ([]types.ScenarioReport, error) {
	var out []types.ScenarioReport
	err := c.get(ctx, TableReports, map[string]string{
		"select": "*",
		"order":  "created_at.desc",
		"limit":  fmt.Sprintf("%d", limit),
	}, &out)
	return out, err
}

// LatestByEvent collapses a descending-timestamp quote scan into the latest
// quote per exchange-side identifier (first occurrence wins).
func LatestByEvent(quotes []types.Quote) map[string]types.Quote {
	latest := make(map[string]types.Quote, len(quotes))
	for _, q := range quotes {
		if _, seen := latest[q.EventID]; !seen {
			latest[q.EventID] = q
		}
	}
	return latest
}
