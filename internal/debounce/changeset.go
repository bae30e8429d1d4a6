// Package debounce coalesces bursts of invalidations into single rebuilds.
package debounce

import (
	"sort"
	"sync"
)

// ChangeSet accumulates changed paths between rebuilds.
type ChangeSet struct {
	mu    sync.Mutex
	paths map[string]struct{}
}

// NewChangeSet returns an empty set.
func NewChangeSet() *ChangeSet {
	return &ChangeSet{paths: make(map[string]struct{})}
}

// Add records path.
func (s *ChangeSet) Add(path string) {
	s.mu.Lock()
	s.paths[path] = struct{}{}
	s.mu.Unlock()
}

// Drain swaps the set for an empty one and returns the previous contents,
// sorted.
func (s *ChangeSet) Drain() []string {
	s.mu.Lock()
	old := s.paths
	s.paths = make(map[string]struct{})
	s.mu.Unlock()

	out := make([]string, 0, len(old))
	for p := range old {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of pending paths.
func (s *ChangeSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.paths)
}
