package config

// Config is the root NormGate configuration, loaded via Viper from
// TOML files and NORMGATE_* environment variables.
type Config struct {
	Database     DatabaseConfig     `mapstructure:"database"`
	Corpus       CorpusConfig       `mapstructure:"corpus"`
	OpenRouter   OpenRouterConfig   `mapstructure:"openrouter"`
	Evaluator    EvaluatorConfig    `mapstructure:"evaluator"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Entitlements EntitlementsConfig `mapstructure:"entitlements"`
}

// DatabaseConfig configures the durable SQLite store.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// CorpusConfig configures the rule corpus store.
type CorpusConfig struct {
	// Dir is the directory holding partition JSON files
	Dir string `mapstructure:"dir"`
}

// OpenRouterConfig configures the reasoning-service client.
type OpenRouterConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// EvaluatorConfig configures the classification fan-out.
type EvaluatorConfig struct {
	// Concurrency is the worker pool width for classification calls
	Concurrency int `mapstructure:"concurrency"`
	// CallTimeoutSeconds bounds each individual classification call
	CallTimeoutSeconds int `mapstructure:"call_timeout_seconds"`
	// MaxCallsPerMinute rate-limits calls to the reasoning service (0 = unlimited)
	MaxCallsPerMinute int `mapstructure:"max_calls_per_minute"`
}

// RedisConfig configures the optional fast cache store.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// EntitlementsConfig configures entitlement resolution.
type EntitlementsConfig struct {
	// CacheTTLSeconds bounds staleness of cached per-tenant partition sets
	CacheTTLSeconds int `mapstructure:"cache_ttl_seconds"`
}
