package config

import (
	"time"

	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "normgate.db")

	// Corpus defaults
	v.SetDefault("corpus.dir", "data")

	// OpenRouter defaults
	v.SetDefault("openrouter.model", "openai/gpt-4o-mini") // Cost-effective default
	v.SetDefault("openrouter.temperature", 0.3)
	v.SetDefault("openrouter.max_tokens", 200) // Verdicts are three short lines

	// Evaluator defaults
	v.SetDefault("evaluator.concurrency", 10)
	v.SetDefault("evaluator.call_timeout_seconds", 30)
	v.SetDefault("evaluator.max_calls_per_minute", 0) // Unlimited unless configured

	// Redis defaults
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Entitlement defaults
	v.SetDefault("entitlements.cache_ttl_seconds", 300)
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("openrouter.api_key", "NORMGATE_OPENROUTER_API_KEY")
	v.BindEnv("redis.password", "NORMGATE_REDIS_PASSWORD")
	v.BindEnv("database.path", "NORMGATE_DATABASE_PATH")
}

// CallTimeout returns the per-classification-call timeout as a duration.
func (c *Config) CallTimeout() time.Duration {
	if c.Evaluator.CallTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Evaluator.CallTimeoutSeconds) * time.Second
}

// EntitlementCacheTTL returns the entitlement cache TTL as a duration.
func (c *Config) EntitlementCacheTTL() time.Duration {
	if c.Entitlements.CacheTTLSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Entitlements.CacheTTLSeconds) * time.Second
}

// Concurrency returns the evaluator worker pool width.
func (c *Config) Concurrency() int {
	if c.Evaluator.Concurrency <= 0 {
		return 10
	}
	return c.Evaluator.Concurrency
}
