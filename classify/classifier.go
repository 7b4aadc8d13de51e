// Package classify asks the reasoning service whether a single rule
// applies to a product description and parses the structured verdict.
package classify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/normgate/normgate/ai/openrouter"
	"github.com/normgate/normgate/corpus"
	"github.com/normgate/normgate/errors"
)

// Result is the outcome of classifying one rule against a product
// description. Classification never fails: transport errors degrade to
// a non-applying result with the cause in Reasoning.
type Result struct {
	RuleID     string `json:"rule_id"`
	RuleName   string `json:"rule_name"`
	Applies    bool   `json:"applies"`
	Confidence int    `json:"confidence"`
	Reasoning  string `json:"reasoning"`
	Partition  string `json:"partition,omitempty"`
}

// ChatClient is the slice of the OpenRouter client the classifier
// needs. Satisfied by *openrouter.Client.
type ChatClient interface {
	Chat(ctx context.Context, req openrouter.ChatRequest) (*openrouter.ChatResponse, error)
}

const systemPrompt = "You are an EU compliance expert. " +
	"Analyze whether the given norm applies to the product. " +
	"Be critical, accurate, and precise with numbers."

const answerFormat = `Answer in this EXACT format:

APPLIES: yes/no
CONFIDENCE: 0-100
REASONING: brief explanation`

// Classifier issues one reasoning-service call per (description, rule)
// pair.
type Classifier struct {
	client ChatClient
	logger *zap.SugaredLogger

	// refusalRetries re-asks on low-information verdicts. Zero by
	// default: transport-level retry lives in the OpenRouter client,
	// and batch-level policy belongs to the orchestrator.
	refusalRetries int
}

type Option func(*Classifier)

// WithRefusalRetries enables up to n extra attempts when the model
// returns a low-information verdict (applies with empty reasoning).
func WithRefusalRetries(n int) Option {
	return func(c *Classifier) { c.refusalRetries = n }
}

func NewClassifier(client ChatClient, logger *zap.SugaredLogger, opts ...Option) *Classifier {
	c := &Classifier{client: client, logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify evaluates one rule against a product description. The
// returned result always carries the rule's identity and partition;
// on any service failure it reports applies=false, confidence=0, with
// a diagnostic reasoning string.
func (c *Classifier) Classify(ctx context.Context, description string, rule corpus.Rule) Result {
	result := Result{
		RuleID:    rule.ID,
		RuleName:  rule.Name,
		Partition: rule.Partition,
	}

	prompt := buildPrompt(description, rule)

	attempts := 1 + c.refusalRetries
	var verdict Verdict
	for attempt := 0; attempt < attempts; attempt++ {
		resp, err := c.client.Chat(ctx, openrouter.ChatRequest{
			SystemPrompt: systemPrompt,
			UserPrompt:   prompt,
			EntityID:     rule.ID,
		})
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				err = errors.Wrap(errors.ErrTimeout, err.Error())
			}
			if c.logger != nil {
				c.logger.Errorw("classification call failed",
					"rule_id", rule.ID,
					"error", err,
				)
			}
			result.Applies = false
			result.Confidence = 0
			result.Reasoning = fmt.Sprintf("Error: %v", err)
			return result
		}

		verdict = ParseVerdict(resp.Content)
		if !isLowInformation(verdict) {
			break
		}
		if c.logger != nil && attempt < attempts-1 {
			c.logger.Debugw("low-information verdict, retrying",
				"rule_id", rule.ID,
				"attempt", attempt+1,
			)
		}
	}

	result.Applies = verdict.Applies
	result.Confidence = verdict.Confidence
	result.Reasoning = verdict.Reasoning
	return result
}

// isLowInformation matches verdicts worth re-asking for: a claimed
// match with nothing to back it up.
func isLowInformation(v Verdict) bool {
	return v.Applies && v.Reasoning == ""
}

func buildPrompt(description string, rule corpus.Rule) string {
	return fmt.Sprintf(`PRODUCT: %s

NORM: %s (%s)
APPLIES TO: %s
DESCRIPTION: %s

INSTRUCTIONS:
- Read the "APPLIES TO" field carefully and check if the product matches those criteria
- Pay close attention to voltage ranges, thresholds, and numeric values
- If the norm specifies a minimum voltage (e.g., ">75V DC"), the product voltage must be GREATER than that value
- %s`,
		description, rule.Name, rule.ID, rule.ApplicabilityCriteria, rule.Description, answerFormat)
}
