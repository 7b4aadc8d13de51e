// Package tracker records reasoning-service usage (tokens, cost,
// latency) per classification call for cost observability.
package tracker

import (
	"database/sql"
	"encoding/json"
	"time"
)

// ModelUsage represents one reasoning-service call.
type ModelUsage struct {
	ID                int        `json:"id" db:"id"`
	OperationType     string     `json:"operation_type" db:"operation_type"`
	EntityType        string     `json:"entity_type" db:"entity_type"`
	EntityID          string     `json:"entity_id" db:"entity_id"`
	ModelName         string     `json:"model_name" db:"model_name"`
	ModelProvider     string     `json:"model_provider" db:"model_provider"`
	ModelConfig       *string    `json:"model_config,omitempty" db:"model_config"`
	RequestTimestamp  time.Time  `json:"request_timestamp" db:"request_timestamp"`
	ResponseTimestamp *time.Time `json:"response_timestamp,omitempty" db:"response_timestamp"`
	TokensUsed        *int       `json:"tokens_used,omitempty" db:"tokens_used"`
	Cost              *float64   `json:"cost,omitempty" db:"cost"`
	Success           bool       `json:"success" db:"success"`
	ErrorMessage      *string    `json:"error_message,omitempty" db:"error_message"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
}

// ModelConfig captures the request parameters for a call.
type ModelConfig struct {
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
}

// UsageStats is an aggregate over a time period.
type UsageStats struct {
	TotalRequests      int     `json:"total_requests"`
	SuccessfulRequests int     `json:"successful_requests"`
	SuccessRate        float64 `json:"success_rate"`
	TotalTokens        int     `json:"total_tokens"`
	TotalCost          float64 `json:"total_cost"`
	UniqueModels       int     `json:"unique_models"`
}

// UsageTracker persists reasoning-service usage records.
type UsageTracker struct {
	db *sql.DB
}

// NewUsageTracker creates a usage tracker backed by the given database.
func NewUsageTracker(db *sql.DB) *UsageTracker {
	return &UsageTracker{db: db}
}

// TrackUsage records one reasoning-service call.
func (t *UsageTracker) TrackUsage(usage *ModelUsage) error {
	query := `
		INSERT INTO model_usage (
			operation_type, entity_type, entity_id, model_name, model_provider,
			model_config, request_timestamp, response_timestamp, tokens_used,
			cost, success, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := t.db.Exec(query,
		usage.OperationType, usage.EntityType, usage.EntityID,
		usage.ModelName, usage.ModelProvider, usage.ModelConfig,
		usage.RequestTimestamp, usage.ResponseTimestamp, usage.TokensUsed,
		usage.Cost, usage.Success, usage.ErrorMessage,
	)

	return err
}

// GetUsageStats returns aggregate usage since the given time.
func (t *UsageTracker) GetUsageStats(since time.Time) (*UsageStats, error) {
	query := `
		SELECT
			COUNT(*) as total_requests,
			COUNT(CASE WHEN success = 1 THEN 1 END) as successful_requests,
			COALESCE(SUM(COALESCE(tokens_used, 0)), 0) as total_tokens,
			COALESCE(SUM(COALESCE(cost, 0)), 0) as total_cost,
			COUNT(DISTINCT CASE WHEN model_name IS NOT NULL THEN model_name END) as unique_models
		FROM model_usage
		WHERE request_timestamp >= ?`

	var stats UsageStats
	err := t.db.QueryRow(query, since).Scan(
		&stats.TotalRequests, &stats.SuccessfulRequests,
		&stats.TotalTokens, &stats.TotalCost, &stats.UniqueModels,
	)
	if err != nil {
		return nil, err
	}

	if stats.TotalRequests > 0 {
		stats.SuccessRate = float64(stats.SuccessfulRequests) / float64(stats.TotalRequests)
	}

	return &stats, nil
}

// NewModelConfig serializes call parameters to JSON for storage.
func NewModelConfig(temperature *float64, maxTokens *int) *string {
	if temperature == nil && maxTokens == nil {
		return nil
	}

	config := ModelConfig{
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}

	data, err := json.Marshal(config)
	if err != nil {
		return nil
	}

	jsonStr := string(data)
	return &jsonStr
}
