// Package memory provides an in-memory ResultStore for tests and throwaway runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/scriptcensus/internal/crawler"
)

// ResultStore keeps results in a map guarded by a RWMutex.
type ResultStore struct {
	mu      sync.RWMutex
	results map[string]crawler.ProcessedResult
	closed  bool
}

// NewResultStore constructs an empty ResultStore, optionally seeded with rows.
func NewResultStore(seed ...crawler.ProcessedResult) *ResultStore {
	s := &ResultStore{results: make(map[string]crawler.ProcessedResult, len(seed))}
	for _, r := range seed {
		s.results[r.URL] = clone(r)
	}
	return s
}

// ProcessedKeys returns the URLs currently stored.
func (s *ResultStore) ProcessedKeys(_ context.Context) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("%w: store is closed", crawler.ErrStorage)
	}
	keys := make(map[string]struct{}, len(s.results))
	for url := range s.results {
		keys[url] = struct{}{}
	}
	return keys, nil
}

// Upsert inserts or replaces the row for result.URL.
func (s *ResultStore) Upsert(_ context.Context, result crawler.ProcessedResult) error {
	if err := result.Validate(); err != nil {
		return fmt.Errorf("%w: %w", crawler.ErrStorage, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("%w: store is closed", crawler.ErrStorage)
	}
	s.results[result.URL] = clone(result)
	return nil
}

// ScanAll returns a copy of every row ordered by URL.
func (s *ResultStore) ScanAll(_ context.Context) ([]crawler.ProcessedResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("%w: store is closed", crawler.ErrStorage)
	}
	out := make([]crawler.ProcessedResult, 0, len(s.results))
	for _, r := range s.results {
		out = append(out, clone(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out, nil
}

// Close marks the store closed; later calls fail with crawler.ErrStorage.
func (s *ResultStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func clone(r crawler.ProcessedResult) crawler.ProcessedResult {
	if r.ScriptCount != nil {
		n := *r.ScriptCount
		r.ScriptCount = &n
	}
	return r
}
