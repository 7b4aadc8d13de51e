package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normgate/normgate/classify"
	"github.com/normgate/normgate/corpus"
	"github.com/normgate/normgate/db"
	"github.com/normgate/normgate/entitle"
	"github.com/normgate/normgate/evaluate"
	"github.com/normgate/normgate/usage"
)

// stubClassifier applies every rule whose criteria mention the
// product.
type stubClassifier struct{}

func (stubClassifier) Classify(ctx context.Context, description string, rule corpus.Rule) classify.Result {
	return classify.Result{
		RuleID:     rule.ID,
		RuleName:   rule.Name,
		Partition:  rule.Partition,
		Applies:    rule.ApplicabilityCriteria == description,
		Confidence: 80,
		Reasoning:  "stub",
	}
}

func newTestEngine(t *testing.T) (*Engine, *entitle.Resolver, *usage.Recorder) {
	t.Helper()

	conn, err := db.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, db.Migrate(conn, nil))

	corpusDir := t.TempDir()
	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(corpusDir, name), []byte(content), 0o644))
	}
	write("norms.json", `{"norms": [
		{"id": "eu-1", "name": "EU Rule", "applicability_criteria": "match"},
		{"id": "eu-2", "name": "EU Rule 2", "applicability_criteria": "other"}
	]}`)
	write("norms_us.json", `{"norms": [
		{"id": "us-1", "name": "US Rule", "applicability_criteria": "match"}
	]}`)

	store := entitle.NewSQLStore(conn)
	resolver := entitle.NewResolver(store, nil, nil)
	recorder := usage.NewRecorder(conn, store, nil)
	orchestrator := evaluate.New(stubClassifier{}, evaluate.Options{Concurrency: 2})

	eng, err := New(resolver, corpus.NewStore(corpusDir, nil), orchestrator, recorder, nil)
	require.NoError(t, err)
	return eng, resolver, recorder
}

func TestEngineEvaluateFreeTier(t *testing.T) {
	eng, _, recorder := newTestEngine(t)
	ctx := context.Background()

	matched, all := eng.Evaluate(ctx, "tenant-1", "match")
	recorder.Flush()

	assert.Len(t, all, 2, "free tier sees only the free partition")
	require.Len(t, matched, 1)
	assert.Equal(t, "eu-1", matched[0].RuleID)
}

func TestEngineEvaluateWithEntitlement(t *testing.T) {
	eng, resolver, recorder := newTestEngine(t)
	ctx := context.Background()

	_, err := resolver.Activate(ctx, "tenant-1", entitle.PackageUSBox, false)
	require.NoError(t, err)

	matched, all := eng.Evaluate(ctx, "tenant-1", "match")
	recorder.Flush()

	assert.Len(t, all, 3)
	assert.Len(t, matched, 2)

	stats, err := recorder.Stats(ctx, "tenant-1", 1)
	require.NoError(t, err)
	var partitions []string
	for _, s := range stats {
		partitions = append(partitions, s.Partition)
	}
	assert.Contains(t, partitions, "norms.json")
	assert.Contains(t, partitions, "norms_us.json")
}

func TestEngineEvaluateStream(t *testing.T) {
	eng, _, recorder := newTestEngine(t)
	defer recorder.Flush()

	var progress, complete int
	var total int
	for event := range eng.EvaluateStream(context.Background(), "tenant-1", "match") {
		switch e := event.(type) {
		case evaluate.ProgressEvent:
			progress++
		case evaluate.CompleteEvent:
			complete++
			total = len(e.All)
		}
	}

	assert.Equal(t, 2, progress)
	assert.Equal(t, 1, complete)
	assert.Equal(t, 2, total)
}

func TestEngineAllowedPartitions(t *testing.T) {
	eng, resolver, _ := newTestEngine(t)
	ctx := context.Background()

	assert.Equal(t, []string{"norms.json"}, eng.AllowedPartitions(ctx, "tenant-1"))

	_, err := resolver.Activate(ctx, "tenant-1", entitle.PackageISOBox, true)
	require.NoError(t, err)

	assert.Contains(t, eng.AllowedPartitions(ctx, "tenant-1"), "norms_iso.json")
}
