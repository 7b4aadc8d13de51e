package corpus

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePartition(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

const lvdPartition = `{"norms": [
	{"id": "lvd-1", "name": "Low Voltage Directive", "applicability_criteria": "electrical equipment between 50 and 1000 V AC"},
	{"id": "lvd-2", "name": "EMC Directive", "applicability_criteria": "equipment liable to cause electromagnetic disturbance"}
]}`

func TestStoreLoad(t *testing.T) {
	dir := t.TempDir()
	writePartition(t, dir, "norms.json", lvdPartition)

	store := NewStore(dir, nil)
	rules := store.Load([]string{"norms.json"})

	require.Len(t, rules, 2)
	assert.Equal(t, "lvd-1", rules[0].ID)
	assert.Equal(t, "norms.json", rules[0].Partition)
	assert.Equal(t, "norms.json", rules[1].Partition)
}

func TestStoreLoadSkipsBadPartitions(t *testing.T) {
	dir := t.TempDir()
	writePartition(t, dir, "norms.json", lvdPartition)
	writePartition(t, dir, "corrupt.json", `{"norms": [`)

	store := NewStore(dir, nil)

	// missing and corrupt partitions are skipped, good ones load
	rules := store.Load([]string{"missing.json", "corrupt.json", "norms.json"})
	assert.Len(t, rules, 2)
}

func TestStoreLoadPreservesPartitionOrder(t *testing.T) {
	dir := t.TempDir()
	writePartition(t, dir, "a.json", `{"norms": [{"id": "a-1", "name": "A", "applicability_criteria": "x"}]}`)
	writePartition(t, dir, "b.json", `{"norms": [{"id": "b-1", "name": "B", "applicability_criteria": "y"}]}`)

	store := NewStore(dir, nil)
	rules := store.Load([]string{"b.json", "a.json"})

	require.Len(t, rules, 2)
	assert.Equal(t, "b-1", rules[0].ID)
	assert.Equal(t, "a-1", rules[1].ID)
}

func TestStoreCachesPartitions(t *testing.T) {
	dir := t.TempDir()
	writePartition(t, dir, "norms.json", lvdPartition)

	store := NewStore(dir, nil)
	store.Load([]string{"norms.json"})

	// File changes are invisible until invalidation
	writePartition(t, dir, "norms.json", `{"norms": []}`)
	assert.Len(t, store.Load([]string{"norms.json"}), 2)

	store.Invalidate("norms.json")
	assert.Len(t, store.Load([]string{"norms.json"}), 0)
}

func TestStoreInvalidateAll(t *testing.T) {
	dir := t.TempDir()
	writePartition(t, dir, "a.json", `{"norms": [{"id": "a-1", "name": "A", "applicability_criteria": "x"}]}`)

	store := NewStore(dir, nil)
	store.Load([]string{"a.json"})
	require.Len(t, store.Stats(), 1)

	store.InvalidateAll()
	assert.Empty(t, store.Stats())
}

func TestStoreStats(t *testing.T) {
	dir := t.TempDir()
	writePartition(t, dir, "norms.json", lvdPartition)
	writePartition(t, dir, "other.json", `{"norms": [{"id": "o-1", "name": "O", "applicability_criteria": "z"}]}`)

	store := NewStore(dir, nil)
	store.Load([]string{"norms.json", "other.json"})

	stats := store.Stats()
	assert.Equal(t, 2, stats["norms.json"])
	assert.Equal(t, 1, stats["other.json"])
}

func TestStoreRejectsPathEscape(t *testing.T) {
	store := NewStore(t.TempDir(), nil)
	assert.Empty(t, store.Load([]string{"../etc/passwd"}))
	assert.Empty(t, store.Load([]string{".hidden.json"}))
}

func TestStoreConcurrentLoad(t *testing.T) {
	dir := t.TempDir()
	writePartition(t, dir, "norms.json", lvdPartition)

	store := NewStore(dir, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rules := store.Load([]string{"norms.json"})
			assert.Len(t, rules, 2)
		}()
	}
	wg.Wait()

	assert.Equal(t, map[string]int{"norms.json": 2}, store.Stats())
}

func TestListPartitions(t *testing.T) {
	dir := t.TempDir()
	writePartition(t, dir, "b.json", `{"norms": []}`)
	writePartition(t, dir, "a.json", `{"norms": []}`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	store := NewStore(dir, nil)
	partitions, err := store.ListPartitions()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.json", "b.json"}, partitions)
}
