package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/market-scanner/internal/cost"
)

// Config holds the full application configuration.
type Config struct {
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Redis      RedisConfig      `yaml:"redis" mapstructure:"redis"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Aggregate  AggregateConfig  `yaml:"aggregate" mapstructure:"aggregate"`
	Escalate   EscalateConfig   `yaml:"escalate" mapstructure:"escalate"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Polymarket PolymarketConfig `yaml:"polymarket" mapstructure:"polymarket"`
	Kalshi     KalshiConfig     `yaml:"kalshi" mapstructure:"kalshi"`
	Feeds      FeedsConfig      `yaml:"feeds" mapstructure:"feeds"`
	Watchlist  WatchlistConfig  `yaml:"watchlist" mapstructure:"watchlist"`
	Serve      ServeConfig      `yaml:"serve" mapstructure:"serve"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	TTL        TTLConfig        `yaml:"ttl" mapstructure:"ttl"`
	Pricing    cost.Rates       `yaml:"pricing" mapstructure:"pricing"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// StoreConfig configures the persistence backend.
type StoreConfig struct {
	Driver   string `yaml:"driver" mapstructure:"driver"`
	DSN      string `yaml:"dsn" mapstructure:"dsn"`
	MaxConns int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// RedisConfig configures the optional shared cache and cooldown backend.
// An empty Addr disables redis entirely.
type RedisConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
	Prefix   string `yaml:"prefix" mapstructure:"prefix"`
}

// PipelineConfig tunes the run orchestrator.
type PipelineConfig struct {
	FetchConcurrency    int `yaml:"fetch_concurrency" mapstructure:"fetch_concurrency"`
	FetchTimeoutSecs    int `yaml:"fetch_timeout_secs" mapstructure:"fetch_timeout_secs"`
	DetectorTimeoutSecs int `yaml:"detector_timeout_secs" mapstructure:"detector_timeout_secs"`
}

// AggregateConfig holds the edge ranking thresholds.
type AggregateConfig struct {
	MinEdge        float64 `yaml:"min_edge" mapstructure:"min_edge"`
	ActionableEdge float64 `yaml:"actionable_edge" mapstructure:"actionable_edge"`
	CriticalEdge   float64 `yaml:"critical_edge" mapstructure:"critical_edge"`
	MaxEdges       int     `yaml:"max_edges" mapstructure:"max_edges"`
}

// EscalateConfig tunes the budget-gated analysis tiers.
type EscalateConfig struct {
	Enabled          bool    `yaml:"enabled" mapstructure:"enabled"`
	MaxMarketsPerRun int     `yaml:"max_markets_per_run" mapstructure:"max_markets_per_run"`
	MinVolume        float64 `yaml:"min_volume" mapstructure:"min_volume"`
	CooldownMinutes  int     `yaml:"cooldown_minutes" mapstructure:"cooldown_minutes"`
	RunBudgetUSD     float64 `yaml:"run_budget_usd" mapstructure:"run_budget_usd"`
	ScanBudgetUSD    float64 `yaml:"scan_budget_usd" mapstructure:"scan_budget_usd"`
	DeepBudgetUSD    float64 `yaml:"deep_budget_usd" mapstructure:"deep_budget_usd"`
	EscalateEdge     float64 `yaml:"escalate_edge" mapstructure:"escalate_edge"`
	ScanTimeoutSecs  int     `yaml:"scan_timeout_secs" mapstructure:"scan_timeout_secs"`
	DeepTimeoutSecs  int     `yaml:"deep_timeout_secs" mapstructure:"deep_timeout_secs"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	ScanModel string `yaml:"scan_model" mapstructure:"scan_model"`
	DeepModel string `yaml:"deep_model" mapstructure:"deep_model"`
}

// PolymarketConfig holds Polymarket Gamma API settings.
type PolymarketConfig struct {
	BaseURL    string `yaml:"base_url" mapstructure:"base_url"`
	MaxMarkets int    `yaml:"max_markets" mapstructure:"max_markets"`
}

// KalshiConfig holds Kalshi trade API settings.
type KalshiConfig struct {
	BaseURL    string `yaml:"base_url" mapstructure:"base_url"`
	MaxMarkets int    `yaml:"max_markets" mapstructure:"max_markets"`
}

// FeedsConfig points at the reference feed spec file.
type FeedsConfig struct {
	File string `yaml:"file" mapstructure:"file"`
}

// WatchlistConfig selects the watchlist source.
type WatchlistConfig struct {
	NotionToken string `yaml:"notion_token" mapstructure:"notion_token"`
	NotionDB    string `yaml:"notion_db" mapstructure:"notion_db"`
	File        string `yaml:"file" mapstructure:"file"`
}

// ServeConfig configures the scheduler and HTTP API.
type ServeConfig struct {
	Port         int `yaml:"port" mapstructure:"port"`
	IntervalSecs int `yaml:"interval_secs" mapstructure:"interval_secs"`
}

// MonitoringConfig configures the alert checker.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackHours        int     `yaml:"lookback_hours" mapstructure:"lookback_hours"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	SpendThresholdUSD    float64 `yaml:"spend_threshold_usd" mapstructure:"spend_threshold_usd"`
}

// TTLConfig sets cache lifetimes for the market data sources. Reference
// feeds carry their own TTLs in the feed spec.
type TTLConfig struct {
	PolymarketSecs int `yaml:"polymarket_secs" mapstructure:"polymarket_secs"`
	KalshiSecs     int `yaml:"kalshi_secs" mapstructure:"kalshi_secs"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SCANNER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "scanner.db")
	v.SetDefault("redis.prefix", "scanner")
	v.SetDefault("pipeline.fetch_concurrency", 4)
	v.SetDefault("pipeline.fetch_timeout_secs", 20)
	v.SetDefault("pipeline.detector_timeout_secs", 30)
	v.SetDefault("aggregate.min_edge", 0.04)
	v.SetDefault("aggregate.actionable_edge", 0.08)
	v.SetDefault("aggregate.critical_edge", 0.15)
	v.SetDefault("aggregate.max_edges", 25)
	v.SetDefault("escalate.enabled", true)
	v.SetDefault("escalate.max_markets_per_run", 5)
	v.SetDefault("escalate.min_volume", 10000)
	v.SetDefault("escalate.cooldown_minutes", 30)
	v.SetDefault("escalate.run_budget_usd", 1.00)
	v.SetDefault("escalate.scan_budget_usd", 0.08)
	v.SetDefault("escalate.deep_budget_usd", 0.40)
	v.SetDefault("escalate.escalate_edge", 0.12)
	v.SetDefault("escalate.scan_timeout_secs", 45)
	v.SetDefault("escalate.deep_timeout_secs", 90)
	v.SetDefault("anthropic.scan_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.deep_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("polymarket.base_url", "https://gamma-api.polymarket.com")
	v.SetDefault("polymarket.max_markets", 500)
	v.SetDefault("kalshi.base_url", "https://api.elections.kalshi.com/trade-api/v2")
	v.SetDefault("kalshi.max_markets", 500)
	v.SetDefault("feeds.file", "feeds.yaml")
	v.SetDefault("watchlist.file", "watchlist.yaml")
	v.SetDefault("serve.port", 8080)
	v.SetDefault("serve.interval_secs", 300)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.5)
	v.SetDefault("monitoring.spend_threshold_usd", 25.0)
	v.SetDefault("ttl.polymarket_secs", 180)
	v.SetDefault("ttl.kalshi_secs", 180)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the configuration for the given run mode ("scan" or
// "serve"). Missing optional credentials are not errors; the features they
// gate are disabled at wiring time instead.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.DSN == "" {
			problems = append(problems, "store.dsn is required")
		}
	case "postgres":
		if c.Store.DSN == "" {
			problems = append(problems, "store.dsn is required for postgres")
		}
	default:
		problems = append(problems, "store.driver must be sqlite or postgres")
	}

	if c.Aggregate.CriticalEdge < c.Aggregate.ActionableEdge {
		problems = append(problems, "aggregate.critical_edge must be >= actionable_edge")
	}
	if c.Aggregate.ActionableEdge < c.Aggregate.MinEdge {
		problems = append(problems, "aggregate.actionable_edge must be >= min_edge")
	}
	if c.Aggregate.MinEdge < 0 || c.Aggregate.MinEdge > 1 {
		problems = append(problems, "aggregate.min_edge must be between 0 and 1")
	}

	if c.Escalate.RunBudgetUSD < 0 || c.Escalate.ScanBudgetUSD < 0 || c.Escalate.DeepBudgetUSD < 0 {
		problems = append(problems, "escalate budgets must be >= 0")
	}
	if c.Escalate.ScanBudgetUSD > c.Escalate.RunBudgetUSD && c.Escalate.RunBudgetUSD > 0 {
		problems = append(problems, "escalate.scan_budget_usd exceeds run_budget_usd: no market could ever be analyzed")
	}

	switch mode {
	case "scan":
		// Nothing beyond the common checks.
	case "serve":
		if c.Serve.Port <= 0 || c.Serve.Port > 65535 {
			problems = append(problems, "serve.port must be between 1 and 65535")
		}
		if c.Serve.IntervalSecs <= 0 {
			problems = append(problems, "serve.interval_secs must be > 0")
		}
	default:
		problems = append(problems, "unknown mode "+mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
