// Package engine wires entitlement resolution, rule loading,
// classification fan-out, and usage recording into one evaluation
// entry point.
package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/normgate/normgate/classify"
	"github.com/normgate/normgate/corpus"
	"github.com/normgate/normgate/entitle"
	"github.com/normgate/normgate/errors"
	"github.com/normgate/normgate/evaluate"
	"github.com/normgate/normgate/usage"
)

// Engine answers "which rules apply to this product" for a tenant,
// scoped to the partitions their entitlements allow.
type Engine struct {
	resolver     *entitle.Resolver
	corpus       *corpus.Store
	orchestrator *evaluate.Orchestrator
	recorder     *usage.Recorder
	logger       *zap.SugaredLogger
}

func New(resolver *entitle.Resolver, rules *corpus.Store, orchestrator *evaluate.Orchestrator, recorder *usage.Recorder, logger *zap.SugaredLogger) (*Engine, error) {
	if err := entitle.ValidateCatalog(); err != nil {
		return nil, errors.Wrap(err, "package catalog")
	}
	return &Engine{
		resolver:     resolver,
		corpus:       rules,
		orchestrator: orchestrator,
		recorder:     recorder,
		logger:       logger,
	}, nil
}

// Evaluate classifies every rule the tenant may query against the
// product description and blocks until the batch completes.
func (e *Engine) Evaluate(ctx context.Context, tenantID, description string) (matched, all []classify.Result) {
	rules, partitions := e.loadRules(ctx, tenantID)
	matched, all = e.orchestrator.Evaluate(ctx, description, rules)
	e.recordAccess(tenantID, partitions)
	return matched, all
}

// EvaluateStream is Evaluate with live progress: the channel carries
// one ProgressEvent per rule followed by a single CompleteEvent.
func (e *Engine) EvaluateStream(ctx context.Context, tenantID, description string) <-chan evaluate.Event {
	rules, partitions := e.loadRules(ctx, tenantID)
	e.recordAccess(tenantID, partitions)
	return e.orchestrator.EvaluateStream(ctx, description, rules)
}

// AllowedPartitions exposes the tenant's partition set for callers
// that render entitlement state.
func (e *Engine) AllowedPartitions(ctx context.Context, tenantID string) []string {
	return e.resolver.AllowedPartitions(ctx, tenantID)
}

func (e *Engine) loadRules(ctx context.Context, tenantID string) ([]corpus.Rule, []string) {
	partitions := e.resolver.AllowedPartitions(ctx, tenantID)
	rules := e.corpus.Load(partitions)
	if e.logger != nil {
		e.logger.Infow("rule set resolved",
			"tenant_id", tenantID,
			"partitions", len(partitions),
			"rules", len(rules),
		)
	}
	return rules, partitions
}

func (e *Engine) recordAccess(tenantID string, partitions []string) {
	if e.recorder == nil {
		return
	}
	for _, partition := range partitions {
		e.recorder.Record(tenantID, partition, "evaluate")
	}
}
