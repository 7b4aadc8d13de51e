// Package openrouter implements the reasoning-service client used for
// rule applicability classification.
package openrouter

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/normgate/normgate/ai/tracker"
	"github.com/normgate/normgate/errors"
	"github.com/normgate/normgate/internal/httpclient"
)

const (
	// DefaultModel is the fallback model when none is specified
	DefaultModel = "openai/gpt-4o-mini"

	// DefaultTimeout bounds an individual chat completion round trip
	DefaultTimeout = 30 * time.Second
)

// Client is an OpenRouter.ai chat-completions client.
type Client struct {
	apiKey       string
	baseURL      string
	httpClient   *httpclient.SaferClient
	config       Config
	usageTracker *tracker.UsageTracker
	logger       *zap.SugaredLogger
}

// Config holds reasoning-service client configuration.
type Config struct {
	APIKey        string
	Model         string
	Temperature   *float64           // nil = use default (0.3)
	MaxTokens     *int               // nil = use default (200)
	Timeout       time.Duration      // zero = DefaultTimeout
	Logger        *zap.SugaredLogger // Structured logger (nil = nop logger)
	DB            *sql.DB            // Database for automatic cost/usage tracking (optional)
	OperationType string             // Operation type for tracking context (e.g., "classify")
	EntityType    string             // Entity type for tracking context (e.g., "rule")
}

// NewClient creates a new OpenRouter.ai client.
func NewClient(config Config) *Client {
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.Temperature == nil {
		defaultTemp := 0.3
		config.Temperature = &defaultTemp
	}
	if config.MaxTokens == nil {
		defaultTokens := 200
		config.MaxTokens = &defaultTokens
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}

	var usageTracker *tracker.UsageTracker
	if config.DB != nil {
		usageTracker = tracker.NewUsageTracker(config.DB)
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	// SSRF-safer HTTP client: blocks private IPs, localhost, metadata
	// endpoints, dangerous schemes
	saferClient := httpclient.New(config.Timeout, httpclient.Options{})

	return &Client{
		apiKey:       config.APIKey,
		baseURL:      "https://openrouter.ai/api/v1",
		httpClient:   saferClient,
		config:       config,
		usageTracker: usageTracker,
		logger:       logger,
	}
}

// ChatCompletionRequest is the wire request for the chat completions endpoint.
type ChatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// Message is one message in a chat completion.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is a high-level request to the reasoning service.
type ChatRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  *float64 // Override default temperature
	MaxTokens    *int     // Override default max tokens
	Model        *string  // Override default model
	EntityID     string   // Entity ID for usage tracking (e.g., rule id)
}

// ChatResponse is the reasoning-service answer.
type ChatResponse struct {
	Content string
	Usage   Usage
}

// ChatCompletionResponse is the wire response from chat completions.
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Choice represents a completion choice.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Usage represents token usage information.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CreateChatCompletion sends a single chat completion request.
func (c *Client) CreateChatCompletion(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error) {
	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.config.OperationType != "" {
		httpReq.Header.Set("X-Title", "normgate/"+c.config.OperationType)
	} else {
		httpReq.Header.Set("X-Title", "normgate")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response")
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, errors.Wrapf(errors.ErrServiceUnavailable,
			"API request failed with status %d: %s", resp.StatusCode, string(respBody))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("API request failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var chatResp ChatCompletionResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal response")
	}

	return &chatResp, nil
}

// Chat sends a chat request with bounded retry of transient network
// failures. HTTP-level errors (4xx/5xx) are not retried; retry policy
// for verdict quality lives in the classifier, not here.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if c.config.APIKey == "" {
		return nil, errors.New("OpenRouter API key not configured")
	}

	temperature := *c.config.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	maxTokens := *c.config.MaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	model := c.config.Model
	if req.Model != nil {
		model = *req.Model
	}

	c.logger.Debugw("reasoning service request",
		"model", model,
		"temperature", temperature,
		"max_tokens", maxTokens,
		"prompt_length", len(req.UserPrompt),
	)

	messages := []Message{{Role: "user", Content: req.UserPrompt}}
	if req.SystemPrompt != "" {
		messages = append([]Message{{Role: "system", Content: req.SystemPrompt}}, messages...)
	}

	chatReq := ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}

	requestTime := time.Now()

	maxRetries := 3
	var resp *ChatCompletionResponse
	var err error

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * time.Second
			c.logger.Debugw("retrying reasoning service request",
				"attempt", attempt, "max_retries", maxRetries-1, "delay", delay)
			select {
			case <-ctx.Done():
				c.trackFailedRequest(requestTime, model, temperature, maxTokens, req.EntityID, ctx.Err())
				return nil, errors.Wrap(ctx.Err(), "reasoning service request cancelled")
			case <-time.After(delay):
			}
		}

		resp, err = c.CreateChatCompletion(ctx, chatReq)
		if err == nil {
			if attempt > 0 {
				c.logger.Infow("request succeeded after retries", "attempts", attempt+1, "model", model)
			}
			break
		}

		c.logger.Warnw("reasoning service error",
			"attempt", attempt+1, "max_retries", maxRetries,
			"error", err, "model", model)

		if c.isRetryableError(err) {
			continue
		}

		c.trackFailedRequest(requestTime, model, temperature, maxTokens, req.EntityID, err)
		return nil, errors.Wrap(err, "reasoning service error")
	}

	if err != nil {
		c.trackFailedRequest(requestTime, model, temperature, maxTokens, req.EntityID, err)
		return nil, errors.Wrapf(err, "reasoning service error after %d retries", maxRetries)
	}

	if len(resp.Choices) == 0 {
		return nil, errors.New("no response choices from reasoning service")
	}

	responseText := resp.Choices[0].Message.Content

	c.logger.Debugw("reasoning service response",
		"content_length", len(responseText),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)

	if c.usageTracker != nil {
		responseTime := time.Now()
		tokensUsed := resp.Usage.TotalTokens
		cost := CalculateCost(model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

		usage := &tracker.ModelUsage{
			OperationType:     c.config.OperationType,
			EntityType:        c.config.EntityType,
			EntityID:          req.EntityID,
			ModelName:         model,
			ModelProvider:     "openrouter",
			ModelConfig:       tracker.NewModelConfig(&temperature, &maxTokens),
			RequestTimestamp:  requestTime,
			ResponseTimestamp: &responseTime,
			TokensUsed:        &tokensUsed,
			Cost:              &cost,
			Success:           true,
		}

		if err := c.usageTracker.TrackUsage(usage); err != nil {
			c.logger.Warnw("failed to track usage", "error", err, "model", model, "tokens", tokensUsed)
		}
	}

	return &ChatResponse{
		Content: strings.TrimSpace(responseText),
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// isRetryableError checks if an error is worth retrying (network-related)
func (c *Client) isRetryableError(err error) bool {
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return true
	}

	if opErr, ok := err.(*net.OpError); ok {
		if errno, ok := opErr.Err.(syscall.Errno); ok {
			switch errno {
			case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.ETIMEDOUT:
				return true
			}
		}
	}

	errStr := strings.ToLower(err.Error())
	networkErrors := []string{
		"connection reset by peer",
		"connection refused",
		"timeout",
		"temporary failure",
		"network is unreachable",
		"i/o timeout",
	}

	for _, netErr := range networkErrors {
		if strings.Contains(errStr, netErr) {
			return true
		}
	}

	return false
}

// trackFailedRequest records a failed reasoning-service call.
func (c *Client) trackFailedRequest(requestTime time.Time, model string, temperature float64, maxTokens int, entityID string, err error) {
	if c.usageTracker == nil {
		return
	}

	responseTime := time.Now()
	errMsg := err.Error()

	usage := &tracker.ModelUsage{
		OperationType:     c.config.OperationType,
		EntityType:        c.config.EntityType,
		EntityID:          entityID,
		ModelName:         model,
		ModelProvider:     "openrouter",
		ModelConfig:       tracker.NewModelConfig(&temperature, &maxTokens),
		RequestTimestamp:  requestTime,
		ResponseTimestamp: &responseTime,
		Success:           false,
		ErrorMessage:      &errMsg,
	}

	if trackErr := c.usageTracker.TrackUsage(usage); trackErr != nil {
		c.logger.Warnw("failed to track failed request", "error", trackErr, "model", model, "original_error", err.Error())
	}
}

// IsConfigured returns true if the client has an API key.
func (c *Client) IsConfigured() bool {
	return c.config.APIKey != ""
}

// SetBaseURL overrides the API endpoint. Only for tests.
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = baseURL
}

// SetHTTPClient overrides the HTTP client. Only for tests; production
// code should keep the default SSRF-safer client.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = httpclient.WrapClient(client)
}
