package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Polymarket PolymarketConfig `mapstructure:"polymarket"`
	Graph      GraphConfig      `mapstructure:"graph"`
	Signals    SignalsConfig    `mapstructure:"signals"`
	Backtest   BacktestConfig   `mapstructure:"backtest"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// PolymarketConfig holds Polymarket API configuration
type PolymarketConfig struct {
	APIBaseURL     string        `mapstructure:"api_base_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
	PageSize       int           `mapstructure:"page_size"`
	MaxPages       int           `mapstructure:"max_pages"`
	MinLiquidity   float64       `mapstructure:"min_liquidity"`
	MinVolume      float64       `mapstructure:"min_volume"`
}

// GraphConfig holds relationship graph construction parameters
type GraphConfig struct {
	MinSimilarity float64 `mapstructure:"min_similarity"`
	MaxDaysApart  int     `mapstructure:"max_days_apart"`
	ClusterHint   int     `mapstructure:"cluster_hint"` // 0 = auto (max(n/10, 5), capped at n)
	EmbeddingDim  int     `mapstructure:"embedding_dim"`
	MinSamples    int     `mapstructure:"min_samples"`
	MinDelta      float64 `mapstructure:"min_delta"`
	MinLagSeconds float64 `mapstructure:"min_lag_seconds"`
}

// SignalsConfig holds signal generation thresholds
type SignalsConfig struct {
	MinMispricing      float64       `mapstructure:"min_mispricing"`
	MinConfidence      float64       `mapstructure:"min_confidence"`
	MinLiquidity       float64       `mapstructure:"min_liquidity"`
	SampleScale        float64       `mapstructure:"sample_scale"`        // sample count at which evidence strength saturates
	SimilarityFallback bool          `mapstructure:"similarity_fallback"` // estimate moves from similarity when no delta exists
	FallbackScale      float64       `mapstructure:"fallback_scale"`
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	ErrorBackoff       time.Duration `mapstructure:"error_backoff"`
}

// BacktestConfig holds backtest parameters
type BacktestConfig struct {
	TestFraction   float64 `mapstructure:"test_fraction"`
	Seed           int64   `mapstructure:"seed"`
	MinMarkets     int     `mapstructure:"min_markets"`
	MaxTradeDetail int     `mapstructure:"max_trade_detail"`
	PnLScale       float64 `mapstructure:"pnl_scale"`
}

// StorageConfig holds persistence configuration
type StorageConfig struct {
	DataDir         string `mapstructure:"data_dir"`
	GraphFile       string `mapstructure:"graph_file"`
	ResolutionsFile string `mapstructure:"resolutions_file"`
	SignalsFile     string `mapstructure:"signals_file"`
	OutcomesFile    string `mapstructure:"outcomes_file"`
	SnapshotsDir    string `mapstructure:"snapshots_dir"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables. A missing
// config file is not an error; defaults and environment variables apply.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("POLYARB")
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Polymarket defaults
	v.SetDefault("polymarket.api_base_url", "https://gamma-api.polymarket.com")
	v.SetDefault("polymarket.timeout", "30s")
	v.SetDefault("polymarket.max_retries", 3)
	v.SetDefault("polymarket.retry_delay_base", "500ms")
	v.SetDefault("polymarket.page_size", 100)
	v.SetDefault("polymarket.max_pages", 50)
	v.SetDefault("polymarket.min_liquidity", 1000.0)
	v.SetDefault("polymarket.min_volume", 1000.0)

	// Graph defaults
	v.SetDefault("graph.min_similarity", 0.70)
	v.SetDefault("graph.max_days_apart", 7)
	v.SetDefault("graph.cluster_hint", 0)
	v.SetDefault("graph.embedding_dim", 256)
	v.SetDefault("graph.min_samples", 1)
	v.SetDefault("graph.min_delta", 0.03)
	v.SetDefault("graph.min_lag_seconds", 60.0)

	// Signal defaults
	v.SetDefault("signals.min_mispricing", 0.03)
	v.SetDefault("signals.min_confidence", 0.5)
	v.SetDefault("signals.min_liquidity", 5000.0)
	v.SetDefault("signals.sample_scale", 10.0)
	v.SetDefault("signals.similarity_fallback", true)
	v.SetDefault("signals.fallback_scale", 0.3)
	v.SetDefault("signals.poll_interval", "60s")
	v.SetDefault("signals.error_backoff", "60s")

	// Backtest defaults
	v.SetDefault("backtest.test_fraction", 0.3)
	v.SetDefault("backtest.seed", 42)
	v.SetDefault("backtest.min_markets", 10)
	v.SetDefault("backtest.max_trade_detail", 20)
	v.SetDefault("backtest.pnl_scale", 100.0)

	// Storage defaults
	v.SetDefault("storage.data_dir", "./data")
	v.SetDefault("storage.graph_file", "event_graph.json")
	v.SetDefault("storage.resolutions_file", "resolutions.json")
	v.SetDefault("storage.signals_file", "signals.json")
	v.SetDefault("storage.outcomes_file", "market_outcomes.json")
	v.SetDefault("storage.snapshots_dir", "snapshots")

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.Polymarket.APIBaseURL == "" {
		return fmt.Errorf("polymarket.api_base_url is required")
	}
	if c.Polymarket.Timeout <= 0 {
		return fmt.Errorf("polymarket.timeout must be positive")
	}
	if c.Polymarket.MaxRetries < 1 {
		return fmt.Errorf("polymarket.max_retries must be at least 1")
	}
	if c.Polymarket.PageSize < 1 {
		return fmt.Errorf("polymarket.page_size must be at least 1")
	}
	if c.Polymarket.MaxPages < 1 {
		return fmt.Errorf("polymarket.max_pages must be at least 1")
	}

	if c.Graph.MinSimilarity < 0.0 || c.Graph.MinSimilarity > 1.0 {
		return fmt.Errorf("graph.min_similarity must be between 0.0 and 1.0")
	}
	if c.Graph.MaxDaysApart < 0 {
		return fmt.Errorf("graph.max_days_apart must not be negative")
	}
	if c.Graph.EmbeddingDim < 8 {
		return fmt.Errorf("graph.embedding_dim must be at least 8")
	}
	if c.Graph.MinSamples < 1 {
		return fmt.Errorf("graph.min_samples must be at least 1")
	}

	if c.Signals.MinMispricing < 0.0 || c.Signals.MinMispricing > 1.0 {
		return fmt.Errorf("signals.min_mispricing must be between 0.0 and 1.0")
	}
	if c.Signals.MinConfidence < 0.0 || c.Signals.MinConfidence > 1.0 {
		return fmt.Errorf("signals.min_confidence must be between 0.0 and 1.0")
	}
	if c.Signals.SampleScale <= 0 {
		return fmt.Errorf("signals.sample_scale must be positive")
	}
	if c.Signals.PollInterval < time.Second {
		return fmt.Errorf("signals.poll_interval must be at least 1 second")
	}

	if c.Backtest.TestFraction < 0.0 || c.Backtest.TestFraction >= 1.0 {
		return fmt.Errorf("backtest.test_fraction must be in [0.0, 1.0)")
	}
	if c.Backtest.MinMarkets < 2 {
		return fmt.Errorf("backtest.min_markets must be at least 2")
	}
	if c.Backtest.MaxTradeDetail < 0 {
		return fmt.Errorf("backtest.max_trade_detail must not be negative")
	}

	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir is required")
	}

	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// GraphPath returns the absolute path of the persisted graph file.
func (c *Config) GraphPath() string {
	return filepath.Join(c.Storage.DataDir, c.Storage.GraphFile)
}

// ResolutionsPath returns the absolute path of the persisted resolutions file.
func (c *Config) ResolutionsPath() string {
	return filepath.Join(c.Storage.DataDir, c.Storage.ResolutionsFile)
}

// SignalsPath returns the absolute path of the persisted signals file.
func (c *Config) SignalsPath() string {
	return filepath.Join(c.Storage.DataDir, c.Storage.SignalsFile)
}

// OutcomesPath returns the absolute path of the persisted outcomes file.
func (c *Config) OutcomesPath() string {
	return filepath.Join(c.Storage.DataDir, c.Storage.OutcomesFile)
}

// SnapshotsPath returns the directory holding daily snapshot files.
func (c *Config) SnapshotsPath() string {
	return filepath.Join(c.Storage.DataDir, c.Storage.SnapshotsDir)
}
