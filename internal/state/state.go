// Package state is the durable dedup store: once an issue number is recorded
// here, the pipeline never runs for it again unless an operator removes the
// entry. The backing file is a single YAML document replaced atomically on
// every flush, so a crash can only ever lose the in-flight issue's record,
// never corrupt the file.
package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/patchpilot/patchpilot/internal/store"
)

// ErrNotFound indicates the issue has no record in the store.
var ErrNotFound = errors.New("issue not recorded")

// fileName is the state file under the agent state directory.
const fileName = "state.yaml"

// Record marks one issue as processed.
type Record struct {
	ProcessedAt time.Time `yaml:"processed_at"`
	PRURL       string    `yaml:"pr_url,omitempty"`
}

// fileState is the on-disk document.
type fileState struct {
	LastRun   time.Time      `yaml:"last_run"`
	Processed map[int]Record `yaml:"processed"`
}

// Store is the in-memory view of the state file.
type Store struct {
	path string
	mu   sync.Mutex
	data fileState
}

// Load reads the state file from stateDir, tolerating a missing file.
func Load(stateDir string) (*Store, error) {
	s := &Store{
		path: filepath.Join(stateDir, fileName),
		data: fileState{Processed: make(map[int]Record)},
	}

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("reading state file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("parsing state file %s: %w", s.path, err)
	}
	if s.data.Processed == nil {
		s.data.Processed = make(map[int]Record)
	}
	return s, nil
}

// IsProcessed reports whether the issue has already been completed.
func (s *Store) IsProcessed(number int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data.Processed[number]
	return ok
}

// MarkProcessed records the issue as done and flushes immediately.
func (s *Store) MarkProcessed(number int, prURL string) error {
	s.mu.Lock()
	s.data.Processed[number] = Record{
		ProcessedAt: time.Now().UTC(),
		PRURL:       prURL,
	}
	s.mu.Unlock()
	return s.Flush()
}

// Remove deletes the record for an issue, re-arming the pipeline for it.
func (s *Store) Remove(number int) error {
	s.mu.Lock()
	if _, ok := s.data.Processed[number]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: #%d", ErrNotFound, number)
	}
	delete(s.data.Processed, number)
	s.mu.Unlock()
	return s.Flush()
}

// Clear deletes every record.
func (s *Store) Clear() error {
	s.mu.Lock()
	s.data.Processed = make(map[int]Record)
	s.mu.Unlock()
	return s.Flush()
}

// TouchLastRun records the time of the current poll tick (flushed with the
// next Flush call, which the loop performs every tick).
func (s *Store) TouchLastRun() {
	s.mu.Lock()
	s.data.LastRun = time.Now().UTC()
	s.mu.Unlock()
}

// LastRun returns the recorded time of the most recent poll tick.
func (s *Store) LastRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.LastRun
}

// Issues returns the recorded issue numbers in ascending order.
func (s *Store) Issues() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	nums := make([]int, 0, len(s.data.Processed))
	for n := range s.data.Processed {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

// Get returns the record for an issue.
func (s *Store) Get(number int) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.data.Processed[number]
	return rec, ok
}

// Flush writes the state to disk atomically under a file lock.
func (s *Store) Flush() error {
	s.mu.Lock()
	raw, err := yaml.Marshal(&s.data)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	return store.WithLock(s.path, store.DefaultLockTimeout, func() error {
		return store.AtomicWriteFile(s.path, raw, 0644)
	})
}
