package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/dinescout/internal/resilience"
)

// Config is the top-level application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Google    GoogleConfig    `yaml:"google" mapstructure:"google"`
	Gateway   GatewayConfig   `yaml:"gateway" mapstructure:"gateway"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Chat      ChatConfig      `yaml:"chat" mapstructure:"chat"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Search    SearchConfig    `yaml:"search" mapstructure:"search"`
	Live      LiveConfig      `yaml:"live" mapstructure:"live"`
	Region    RegionConfig    `yaml:"region" mapstructure:"region"`
	Discovery DiscoveryConfig `yaml:"discovery" mapstructure:"discovery"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig selects the entity store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// GoogleConfig configures the Places API client.
type GoogleConfig struct {
	Key          string `yaml:"key" mapstructure:"key"`
	BaseURL      string `yaml:"base_url" mapstructure:"base_url"`
	LanguageCode string `yaml:"language_code" mapstructure:"language_code"`
}

// GatewayConfig configures the OpenAI-compatible chat gateway.
type GatewayConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	Model       string  `yaml:"model" mapstructure:"model"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
}

// AnthropicConfig configures the Anthropic generator.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// ChatConfig configures the conversational endpoint.
type ChatConfig struct {
	// Provider is "gateway", "anthropic" or "none".
	Provider      string   `yaml:"provider" mapstructure:"provider"`
	TimeoutSecs   int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxResults    int      `yaml:"max_results" mapstructure:"max_results"`
	MaxHistory    int      `yaml:"max_history" mapstructure:"max_history"`
	Neighborhoods []string `yaml:"neighborhoods" mapstructure:"neighborhoods"`
}

// CacheConfig holds the cache lifetimes. Interactive searches and bulk
// discovery stamp records with different TTLs.
type CacheConfig struct {
	SearchTTLHours    int `yaml:"search_ttl_hours" mapstructure:"search_ttl_hours"`
	DiscoveryTTLHours int `yaml:"discovery_ttl_hours" mapstructure:"discovery_ttl_hours"`
	LookupLimit       int `yaml:"lookup_limit" mapstructure:"lookup_limit"`
}

// SearchConfig tunes the search orchestrator.
type SearchConfig struct {
	MaxResults            int     `yaml:"max_results" mapstructure:"max_results"`
	FanOut                int     `yaml:"fan_out" mapstructure:"fan_out"`
	RetryMaxAttempts      int     `yaml:"retry_max_attempts" mapstructure:"retry_max_attempts"`
	RetryInitialBackoffMs int     `yaml:"retry_initial_backoff_ms" mapstructure:"retry_initial_backoff_ms"`
	RetryMaxBackoffMs     int     `yaml:"retry_max_backoff_ms" mapstructure:"retry_max_backoff_ms"`
	RetryMultiplier       float64 `yaml:"retry_multiplier" mapstructure:"retry_multiplier"`
	RetryJitter           float64 `yaml:"retry_jitter" mapstructure:"retry_jitter"`
}

// LiveConfig tunes the live provider client.
type LiveConfig struct {
	Locality                string  `yaml:"locality" mapstructure:"locality"`
	RateLimit               float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	WriteConcurrency        int     `yaml:"write_concurrency" mapstructure:"write_concurrency"`
	BreakerFailureThreshold int     `yaml:"breaker_failure_threshold" mapstructure:"breaker_failure_threshold"`
	BreakerResetTimeoutSecs int     `yaml:"breaker_reset_timeout_secs" mapstructure:"breaker_reset_timeout_secs"`
}

// RegionConfig is the service bounding box.
type RegionConfig struct {
	Name  string  `yaml:"name" mapstructure:"name"`
	SWLat float64 `yaml:"sw_lat" mapstructure:"sw_lat"`
	SWLng float64 `yaml:"sw_lng" mapstructure:"sw_lng"`
	NELat float64 `yaml:"ne_lat" mapstructure:"ne_lat"`
	NELng float64 `yaml:"ne_lng" mapstructure:"ne_lng"`
}

// DiscoveryConfig tunes bulk cache population.
type DiscoveryConfig struct {
	SeedsPath   string  `yaml:"seeds_path" mapstructure:"seeds_path"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	Concurrency int     `yaml:"concurrency" mapstructure:"concurrency"`
	MaxResults  int     `yaml:"max_results" mapstructure:"max_results"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port               int      `yaml:"port" mapstructure:"port"`
	CORSOrigins        []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	ChatRateLimit      int      `yaml:"chat_rate_limit" mapstructure:"chat_rate_limit"`
	ChatRateWindowSecs int      `yaml:"chat_rate_window_secs" mapstructure:"chat_rate_window_secs"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// SearchTTL is the lifetime of records cached by interactive searches.
func (c CacheConfig) SearchTTL() time.Duration {
	return time.Duration(c.SearchTTLHours) * time.Hour
}

// DiscoveryTTL is the lifetime of records cached by bulk discovery.
func (c CacheConfig) DiscoveryTTL() time.Duration {
	return time.Duration(c.DiscoveryTTLHours) * time.Hour
}

// Retry converts the retry settings. Non-positive values keep the defaults;
// a zero jitter disables jitter.
func (c SearchConfig) Retry() resilience.RetryConfig {
	rc := resilience.DefaultRetryConfig()
	if c.RetryMaxAttempts > 0 {
		rc.MaxAttempts = c.RetryMaxAttempts
	}
	if c.RetryInitialBackoffMs > 0 {
		rc.InitialBackoff = time.Duration(c.RetryInitialBackoffMs) * time.Millisecond
	}
	if c.RetryMaxBackoffMs > 0 {
		rc.MaxBackoff = time.Duration(c.RetryMaxBackoffMs) * time.Millisecond
	}
	if c.RetryMultiplier > 0 {
		rc.Multiplier = c.RetryMultiplier
	}
	if c.RetryJitter >= 0 {
		rc.JitterFraction = c.RetryJitter
	}
	return rc
}

// Breaker converts the provider circuit settings.
func (c LiveConfig) Breaker() resilience.CircuitBreakerConfig {
	bc := resilience.DefaultCircuitBreakerConfig()
	if c.BreakerFailureThreshold > 0 {
		bc.FailureThreshold = c.BreakerFailureThreshold
	}
	if c.BreakerResetTimeoutSecs > 0 {
		bc.ResetTimeout = time.Duration(c.BreakerResetTimeoutSecs) * time.Second
	}
	return bc
}

// Timeout is the upper bound of one chat exchange.
func (c ChatConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

var defaultNeighborhoods = []string{
	"Malasaña", "Chueca", "La Latina", "Lavapiés", "Sol", "Huertas", "Salamanca",
	"Chamberí", "Retiro", "Chamartín", "Arganzuela", "Tetuán", "Moncloa", "Palacio",
}

// Load reads configuration from config.yaml (if present), environment
// variables with the DINESCOUT_ prefix, and defaults.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("DINESCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Secrets default to empty so AutomaticEnv can populate them on Unmarshal.
	for _, key := range []string{"store.database_url", "google.key", "gateway.key", "anthropic.key"} {
		v.SetDefault(key, "")
	}
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.sqlite_path", "dinescout.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("google.base_url", "https://places.googleapis.com/v1")
	v.SetDefault("google.language_code", "es")
	v.SetDefault("gateway.base_url", "https://ai.gateway.lovable.dev/v1")
	v.SetDefault("gateway.model", "google/gemini-2.5-flash")
	v.SetDefault("gateway.temperature", 0.7)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("chat.provider", "gateway")
	v.SetDefault("chat.timeout_secs", 90)
	v.SetDefault("chat.max_results", 8)
	v.SetDefault("chat.max_history", 20)
	v.SetDefault("chat.neighborhoods", defaultNeighborhoods)
	v.SetDefault("cache.search_ttl_hours", 720)
	v.SetDefault("cache.discovery_ttl_hours", 168)
	v.SetDefault("cache.lookup_limit", 50)
	v.SetDefault("search.max_results", 10)
	v.SetDefault("search.fan_out", 4)
	v.SetDefault("search.retry_max_attempts", 2)
	v.SetDefault("search.retry_initial_backoff_ms", 500)
	v.SetDefault("search.retry_max_backoff_ms", 4000)
	v.SetDefault("search.retry_multiplier", 2.0)
	v.SetDefault("search.retry_jitter", 0.2)
	v.SetDefault("live.locality", "Madrid")
	v.SetDefault("live.rate_limit", 10)
	v.SetDefault("live.write_concurrency", 4)
	v.SetDefault("live.breaker_failure_threshold", 5)
	v.SetDefault("live.breaker_reset_timeout_secs", 30)
	v.SetDefault("region.name", "madrid")
	v.SetDefault("region.sw_lat", 40.30)
	v.SetDefault("region.sw_lng", -3.90)
	v.SetDefault("region.ne_lat", 40.56)
	v.SetDefault("region.ne_lng", -3.52)
	v.SetDefault("discovery.seeds_path", "seeds.yaml")
	v.SetDefault("discovery.rate_limit", 2)
	v.SetDefault("discovery.concurrency", 4)
	v.SetDefault("discovery.max_results", 60)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.chat_rate_limit", 20)
	v.SetDefault("server.chat_rate_window_secs", 60)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Validate checks the keys mode needs. Modes: "serve", "search", "discover",
// "migrate".
func (c *Config) Validate(mode string) error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	switch mode {
	case "serve", "search", "discover", "migrate":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			add("store.database_url is required")
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			add("store.sqlite_path is required")
		}
	default:
		add("store.driver must be postgres or sqlite, got %q", c.Store.Driver)
	}

	if mode == "migrate" {
		return joinErrors(errs)
	}

	if c.Google.Key == "" {
		add("google.key is required")
	}
	if c.Cache.SearchTTLHours <= 0 || c.Cache.DiscoveryTTLHours <= 0 {
		add("cache ttl hours must be > 0")
	}
	if c.Region.SWLat >= c.Region.NELat || c.Region.SWLng >= c.Region.NELng {
		add("region south-west corner must be below and left of the north-east corner")
	}
	if c.Region.SWLat < -90 || c.Region.NELat > 90 || c.Region.SWLng < -180 || c.Region.NELng > 180 {
		add("region corners must be valid WGS84 coordinates")
	}
	if c.Search.FanOut < 1 || c.Search.FanOut > 32 {
		add("search.fan_out must be between 1 and 32")
	}

	switch mode {
	case "serve":
		if c.Server.Port <= 0 {
			add("server.port must be > 0")
		}
		switch c.Chat.Provider {
		case "gateway":
			if c.Gateway.Key == "" {
				add("gateway.key is required when chat.provider is gateway")
			}
		case "anthropic":
			if c.Anthropic.Key == "" {
				add("anthropic.key is required when chat.provider is anthropic")
			}
		case "none":
		default:
			add("chat.provider must be gateway, anthropic or none, got %q", c.Chat.Provider)
		}
		if c.Chat.TimeoutSecs <= 0 {
			add("chat.timeout_secs must be > 0")
		}
	case "discover":
		if c.Discovery.Concurrency < 1 || c.Discovery.Concurrency > 32 {
			add("discovery.concurrency must be between 1 and 32")
		}
	}

	return joinErrors(errs)
}

func joinErrors(errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return eris.New("config: " + strings.Join(errs, "; "))
}

// InitLogger builds the global zap logger from cfg.
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
