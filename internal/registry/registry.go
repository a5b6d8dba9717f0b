// Package registry tracks accepted record ids for global deduplication.
// The registry is owned by the pipeline for the run's lifetime and
// shared by handle across workers; its contents are always a superset
// of the ids present in the sink.
package registry

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// Registry is a concurrent-safe content-hash id set. Ids are never
// removed during a run.
type Registry struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{ids: make(map[string]struct{})}
}

// TryAccept atomically inserts the id if absent. It returns false with
// no side effect when the id is already present. This is the only
// mutation and the only operation requiring cross-worker
// synchronization in the pipeline.
func (r *Registry) TryAccept(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.ids[id]; exists {
		return false
	}
	r.ids[id] = struct{}{}
	return true
}

// Contains reports whether the id has been accepted.
func (r *Registry) Contains(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, exists := r.ids[id]
	return exists
}

// Len returns the number of accepted ids.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ids)
}

// PrimeFromSink loads ids from existing JSONL sink content, making
// re-runs idempotent. Malformed lines are skipped: a damaged trailing
// line from an interrupted run must not block resumption. Returns the
// number of ids loaded.
func (r *Registry) PrimeFromSink(reader io.Reader) (int, error) {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	loaded := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var row struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(line, &row); err != nil || row.ID == "" {
			continue
		}
		if r.TryAccept(row.ID) {
			loaded++
		}
	}
	if err := scanner.Err(); err != nil {
		return loaded, fmt.Errorf("failed to scan sink: %w", err)
	}
	return loaded, nil
}
