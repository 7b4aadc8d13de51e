// Package evaluate fans classification out across a rule set with a
// bounded worker pool and reports live progress.
package evaluate

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/normgate/normgate/classify"
	"github.com/normgate/normgate/corpus"
	"github.com/normgate/normgate/errors"
)

// DefaultConcurrency bounds simultaneous reasoning-service calls. It
// trades batch latency against load on the service.
const DefaultConcurrency = 10

// Classifier evaluates one rule. Satisfied by *classify.Classifier.
type Classifier interface {
	Classify(ctx context.Context, description string, rule corpus.Rule) classify.Result
}

// Event is either a ProgressEvent or the final CompleteEvent.
type Event interface {
	isEvent()
}

// ProgressEvent reports one finished rule. Events arrive in completion
// order, not submission order.
type ProgressEvent struct {
	Completed int
	Total     int
	RuleID    string
}

// CompleteEvent closes a batch. All holds one result per input rule;
// Matched holds the applying subset sorted by confidence descending.
type CompleteEvent struct {
	Matched []classify.Result
	All     []classify.Result
}

func (ProgressEvent) isEvent() {}
func (CompleteEvent) isEvent() {}

// Options tunes an Orchestrator. The zero value is usable.
type Options struct {
	// Concurrency is the worker pool width. Defaults to
	// DefaultConcurrency when zero or negative.
	Concurrency int

	// CallTimeout bounds each classification call. Zero disables the
	// per-call deadline.
	CallTimeout time.Duration

	// Limiter throttles call starts across the pool when set.
	Limiter *rate.Limiter

	Logger *zap.SugaredLogger
}

// Orchestrator runs classification batches. Safe for concurrent use;
// each batch gets its own pool.
type Orchestrator struct {
	classifier Classifier
	opts       Options
}

func New(classifier Classifier, opts Options) *Orchestrator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	return &Orchestrator{classifier: classifier, opts: opts}
}

// Evaluate classifies every rule and blocks until the batch finishes.
// The returned slices satisfy len(all) == len(rules); matched is the
// applying subset of all, sorted by confidence descending with stable
// tie order.
func (o *Orchestrator) Evaluate(ctx context.Context, description string, rules []corpus.Rule) (matched, all []classify.Result) {
	for event := range o.EvaluateStream(ctx, description, rules) {
		if done, ok := event.(CompleteEvent); ok {
			return done.Matched, done.All
		}
	}
	// Stream always ends with a CompleteEvent; unreachable.
	return nil, nil
}

// EvaluateStream classifies every rule and streams progress. The
// channel delivers exactly len(rules) ProgressEvents followed by one
// CompleteEvent, then closes. Cancelling ctx does not truncate the
// stream: outstanding rules degrade to failing results.
func (o *Orchestrator) EvaluateStream(ctx context.Context, description string, rules []corpus.Rule) <-chan Event {
	events := make(chan Event, o.opts.Concurrency)

	go func() {
		defer close(events)

		if o.opts.Logger != nil {
			o.opts.Logger.Infow("evaluating rule batch",
				"rules", len(rules),
				"concurrency", o.opts.Concurrency,
			)
		}

		results := make(chan classify.Result)
		jobs := make(chan corpus.Rule)

		var wg sync.WaitGroup
		for i := 0; i < o.opts.Concurrency; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for rule := range jobs {
					results <- o.classifyOne(ctx, description, rule)
				}
			}()
		}

		go func() {
			for _, rule := range rules {
				jobs <- rule
			}
			close(jobs)
			wg.Wait()
			close(results)
		}()

		all := make([]classify.Result, 0, len(rules))
		for result := range results {
			all = append(all, result)
			events <- ProgressEvent{
				Completed: len(all),
				Total:     len(rules),
				RuleID:    result.RuleID,
			}
		}

		matched := make([]classify.Result, 0, len(all))
		for _, result := range all {
			if result.Applies {
				matched = append(matched, result)
			}
		}
		sort.SliceStable(matched, func(i, j int) bool {
			return matched[i].Confidence > matched[j].Confidence
		})

		if o.opts.Logger != nil {
			o.opts.Logger.Infow("batch complete",
				"rules", len(all),
				"matched", len(matched),
			)
		}

		events <- CompleteEvent{Matched: matched, All: all}
	}()

	return events
}

// classifyOne wraps a single classification with the rate limiter, the
// per-call deadline, and panic recovery. It always returns a result so
// the batch stays complete.
func (o *Orchestrator) classifyOne(ctx context.Context, description string, rule corpus.Rule) (result classify.Result) {
	defer func() {
		if r := recover(); r != nil {
			if o.opts.Logger != nil {
				o.opts.Logger.Errorw("classification panicked",
					"rule_id", rule.ID,
					"panic", r,
				)
			}
			result = failingResult(rule, errors.Newf("internal failure: %v", r))
		}
	}()

	if o.opts.Limiter != nil {
		if err := o.opts.Limiter.Wait(ctx); err != nil {
			return failingResult(rule, err)
		}
	}

	callCtx := ctx
	if o.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, o.opts.CallTimeout)
		defer cancel()
	}

	return o.classifier.Classify(callCtx, description, rule)
}

func failingResult(rule corpus.Rule, err error) classify.Result {
	return classify.Result{
		RuleID:    rule.ID,
		RuleName:  rule.Name,
		Partition: rule.Partition,
		Applies:   false,
		Reasoning: "Error: " + err.Error(),
	}
}
