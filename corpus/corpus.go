// Package corpus loads and caches the rule corpus. Rules live in
// partition files on disk, one JSON file per partition, and are cached
// in memory after first load.
package corpus

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/normgate/normgate/errors"
)

// Rule is one compliance rule from a partition file.
type Rule struct {
	ID                    string `json:"id"`
	Name                  string `json:"name"`
	ApplicabilityCriteria string `json:"applicability_criteria"`
	Description           string `json:"description,omitempty"`
	ReferenceURL          string `json:"reference_url,omitempty"`

	// Partition is the source file the rule came from, set at load
	// time. Not part of the file format.
	Partition string `json:"-"`
}

type partitionFile struct {
	Norms []Rule `json:"norms"`
}

// Store reads partition files from a directory and memoizes them.
// Safe for concurrent use.
type Store struct {
	dir    string
	logger *zap.SugaredLogger

	mu    sync.RWMutex
	cache map[string][]Rule
}

func NewStore(dir string, logger *zap.SugaredLogger) *Store {
	return &Store{
		dir:    dir,
		logger: logger,
		cache:  map[string][]Rule{},
	}
}

// Load returns the rules of all requested partitions, in partition
// order. Partitions that are missing or unreadable are logged and
// skipped; a bad partition never fails the whole load.
func (s *Store) Load(partitions []string) []Rule {
	var rules []Rule
	for _, partition := range partitions {
		loaded, err := s.loadPartition(partition)
		if err != nil {
			if s.logger != nil {
				s.logger.Warnw("skipping partition",
					"partition", partition,
					"error", err,
				)
			}
			continue
		}
		rules = append(rules, loaded...)
	}
	return rules
}

// loadPartition returns cached rules for a partition, reading the file
// on first access. Double-checked so concurrent first loads read the
// file once.
func (s *Store) loadPartition(partition string) ([]Rule, error) {
	s.mu.RLock()
	rules, ok := s.cache[partition]
	s.mu.RUnlock()
	if ok {
		return rules, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if rules, ok := s.cache[partition]; ok {
		return rules, nil
	}

	rules, err := s.readPartitionFile(partition)
	if err != nil {
		return nil, err
	}
	s.cache[partition] = rules

	if s.logger != nil {
		s.logger.Infow("partition loaded",
			"partition", partition,
			"rules", len(rules),
		)
	}
	return rules, nil
}

func (s *Store) readPartitionFile(partition string) ([]Rule, error) {
	// Partition names are file names; reject anything that escapes
	// the corpus directory.
	if partition != filepath.Base(partition) || strings.HasPrefix(partition, ".") {
		return nil, errors.Newf("invalid partition name: %q", partition)
	}

	data, err := os.ReadFile(filepath.Join(s.dir, partition))
	if err != nil {
		return nil, errors.Wrapf(err, "read partition %s", partition)
	}

	var file partitionFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrapf(err, "parse partition %s", partition)
	}

	rules := file.Norms
	for i := range rules {
		rules[i].Partition = partition
	}
	return rules, nil
}

// Invalidate drops a partition from the cache so the next load rereads
// the file. Unknown partitions are a no-op.
func (s *Store) Invalidate(partition string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, partition)
}

// InvalidateAll drops every cached partition.
func (s *Store) InvalidateAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = map[string][]Rule{}
}

// Stats reports the rule count per cached partition.
func (s *Store) Stats() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := make(map[string]int, len(s.cache))
	for partition, rules := range s.cache {
		stats[partition] = len(rules)
	}
	return stats
}

// ListPartitions scans the corpus directory for partition files.
func (s *Store) ListPartitions() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.Wrap(err, "read corpus dir")
	}
	var partitions []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		partitions = append(partitions, entry.Name())
	}
	sort.Strings(partitions)
	return partitions, nil
}
