// Package config defines all configuration for the intelligence engine.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via VANTAGE_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	Logging    LoggingConfig      `mapstructure:"logging"`
	Dashboard  DashboardConfig    `mapstructure:"dashboard"`
	Polymarket PolymarketConfig   `mapstructure:"polymarket"`
	Kalshi     KalshiConfig       `mapstructure:"kalshi"`
	Ingest     IngestConfig       `mapstructure:"ingest"`
	Batch      BatchConfig        `mapstructure:"batch"`
	Arbitrage  ArbitrageConfig    `mapstructure:"arbitrage"`
	Classifier ClassifierConfig   `mapstructure:"classifier"`
	Scenario   ScenarioConfig     `mapstructure:"scenario"`
	Analyst    AnalystConfig      `mapstructure:"analyst"`
	Store      StoreConfig        `mapstructure:"store"`
	DemoProbs  map[string]float64 `mapstructure:"demo_probabilities"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DashboardConfig controls the HTTP API server consumed by the dashboard.
type DashboardConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// PolymarketConfig configures the order-book venue session (exchange A).
// AssetIDs are CLOB token IDs; ApiKey is optional for the public market channel.
type PolymarketConfig struct {
	WSURL    string   `mapstructure:"ws_url"`
	AssetIDs []string `mapstructure:"asset_ids"`
	ApiKey   string   `mapstructure:"api_key"`
}

// KalshiConfig configures the ticker venue session (exchange B).
// PrivateKeyBase64 is a base64-encoded RSA private key PEM used for the
// RSA-PSS websocket handshake signature.
type KalshiConfig struct {
	WSURL            string   `mapstructure:"ws_url"`
	Tickers          []string `mapstructure:"tickers"`
	ApiKey           string   `mapstructure:"api_key"`
	PrivateKeyBase64 string   `mapstructure:"private_key_base64"`
}

// IngestConfig tunes the per-session reconnect loops.
// Backoff is min(base * 2^attempt + jitter, max), reset after a clean open.
type IngestConfig struct {
	ReconnectBaseDelay time.Duration `mapstructure:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `mapstructure:"reconnect_max_delay"`
}

// BatchConfig tunes the quote batch writer.
//
//   - Size: flush as soon as this many records are queued.
//   - FlushInterval: flush on this tick regardless of queue length.
//
// The retained queue is capped at 10x Size; beyond that the oldest records
// are dropped.
type BatchConfig struct {
	Size          int           `mapstructure:"size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// ArbitrageConfig tunes the cross-venue scanner over equivalent pairs.
type ArbitrageConfig struct {
	PollInterval          time.Duration `mapstructure:"poll_interval"`
	SpreadThresholdPct    float64       `mapstructure:"spread_threshold_pct"`
	LiquidityThresholdUSD float64       `mapstructure:"liquidity_threshold_usd"`
}

// ClassifierConfig tunes the one-shot pairwise relationship classifier.
type ClassifierConfig struct {
	Concurrency            int     `mapstructure:"concurrency"`
	ArbFlagThresholdPct    float64 `mapstructure:"arbitrage_flag_threshold_pct"`
	DivergenceThresholdPct float64 `mapstructure:"divergence_threshold_pct"`
	HubLinkThreshold       int     `mapstructure:"hub_link_threshold"`
}

// ScenarioConfig bounds the stress-test graph traversal.
type ScenarioConfig struct {
	MaxDepth          int     `mapstructure:"max_depth"`
	MinPathConfidence float64 `mapstructure:"min_path_confidence"`
}

// AnalystConfig points at the external analyst model endpoint.
type AnalystConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	ApiKey   string `mapstructure:"api_key"`
	Model    string `mapstructure:"model"`
}

// StoreConfig points at the persistent table store (PostgREST-style REST).
// SpoolDir holds quote batches that could not be flushed at shutdown.
type StoreConfig struct {
	URL        string `mapstructure:"url"`
	ServiceKey string `mapstructure:"service_key"`
	SpoolDir   string `mapstructure:"spool_dir"`
}

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use env vars: VANTAGE_KALSHI_API_KEY,
// VANTAGE_KALSHI_PRIVATE_KEY, VANTAGE_ANALYST_API_KEY, VANTAGE_STORE_KEY.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("VANTAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Override sensitive fields from env
	if key := os.Getenv("VANTAGE_POLYMARKET_API_KEY"); key != "" {
		cfg.Polymarket.ApiKey = key
	}
	if key := os.Getenv("VANTAGE_KALSHI_API_KEY"); key != "" {
		cfg.Kalshi.ApiKey = key
	}
	if key := os.Getenv("VANTAGE_KALSHI_PRIVATE_KEY"); key != "" {
		cfg.Kalshi.PrivateKeyBase64 = key
	}
	if key := os.Getenv("VANTAGE_ANALYST_API_KEY"); key != "" {
		cfg.Analyst.ApiKey = key
	}
	if key := os.Getenv("VANTAGE_STORE_KEY"); key != "" {
		cfg.Store.ServiceKey = key
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("dashboard.enabled", true)
	v.SetDefault("dashboard.port", 8090)
	v.SetDefault("ingest.reconnect_base_delay", "1s")
	v.SetDefault("ingest.reconnect_max_delay", "30s")
	v.SetDefault("batch.size", 25)
	v.SetDefault("batch.flush_interval", "2s")
	v.SetDefault("arbitrage.poll_interval", "30s")
	v.SetDefault("arbitrage.spread_threshold_pct", 3.0)
	v.SetDefault("arbitrage.liquidity_threshold_usd", 500.0)
	v.SetDefault("classifier.concurrency", 5)
	v.SetDefault("classifier.arbitrage_flag_threshold_pct", 10.0)
	v.SetDefault("classifier.divergence_threshold_pct", 5.0)
	v.SetDefault("classifier.hub_link_threshold", 3)
	v.SetDefault("scenario.max_depth", 2)
	v.SetDefault("scenario.min_path_confidence", 0.05)
	v.SetDefault("store.spool_dir", "data")
}

// Validate checks all required fields and value ranges.
// A missing venue subscription list is deliberately NOT an error: the session
// still opens and logs a warning, it simply receives no data.
func (c *Config) Validate() error {
	if c.Store.URL == "" {
		return fmt.Errorf("store.url is required (set VANTAGE_STORE_URL)")
	}
	if c.Store.ServiceKey == "" {
		return fmt.Errorf("store.service_key is required (set VANTAGE_STORE_KEY)")
	}
	if c.Polymarket.WSURL == "" {
		return fmt.Errorf("polymarket.ws_url is required")
	}
	if c.Kalshi.WSURL == "" {
		return fmt.Errorf("kalshi.ws_url is required")
	}
	if len(c.Kalshi.Tickers) > 0 {
		if c.Kalshi.ApiKey == "" {
			return fmt.Errorf("kalshi.api_key is required when kalshi.tickers is set")
		}
		if c.Kalshi.PrivateKeyBase64 == "" {
			return fmt.Errorf("kalshi.private_key_base64 is required when kalshi.tickers is set (set VANTAGE_KALSHI_PRIVATE_KEY)")
		}
	}
	if c.Batch.Size <= 0 {
		return fmt.Errorf("batch.size must be > 0")
	}
	if c.Batch.FlushInterval <= 0 {
		return fmt.Errorf("batch.flush_interval must be > 0")
	}
	if c.Classifier.Concurrency <= 0 {
		return fmt.Errorf("classifier.concurrency must be > 0")
	}
	if c.Scenario.MaxDepth <= 0 {
		return fmt.Errorf("scenario.max_depth must be > 0")
	}
	if c.Scenario.MinPathConfidence < 0 || c.Scenario.MinPathConfidence > 1 {
		return fmt.Errorf("scenario.min_path_confidence must be in [0,1]")
	}
	if c.Analyst.Endpoint == "" {
		return fmt.Errorf("analyst.endpoint is required")
	}
	if c.Analyst.Model == "" {
		return fmt.Errorf("analyst.model is required")
	}
	return nil
}
