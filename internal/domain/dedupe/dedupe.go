// Package dedupe guards request ids so a retried client call is applied once.
package dedupe

import (
	"context"
	"sync"
)

// defaultMaxSize bounds the remembered ids.
const defaultMaxSize = 50000

// Deduper records request ids for at-most-once handling.
type Deduper interface {
	// SeenAndRecord reports whether id was already recorded and records it
	// if not. The check and the insert are atomic.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord forgets id so a request that failed after being recorded
	// can be retried.
	Unrecord(ctx context.Context, id string)

	Size() int64
}

// InMemory keeps the most recent ids in a ring. When full, the oldest id
// is evicted.
type InMemory struct {
	mu      sync.Mutex
	seen    map[string]int // id -> slot in ring
	ring    []string
	next    int
	maxSize int
}

// NewInMemoryDeduper creates a bounded deduper.
func NewInMemoryDeduper(opts ...Option) *InMemory {
	d := &InMemory{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(d)
	}
	if d.maxSize < 1 {
		d.maxSize = 1
	}
	d.seen = make(map[string]int, d.maxSize)
	d.ring = make([]string, d.maxSize)
	return d
}

// SeenAndRecord implements Deduper.
func (d *InMemory) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		return true
	}
	if old := d.ring[d.next]; old != "" {
		delete(d.seen, old)
	}
	d.ring[d.next] = id
	d.seen[id] = d.next
	d.next = (d.next + 1) % d.maxSize
	return false
}

// Unrecord implements Deduper.
func (d *InMemory) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	slot, ok := d.seen[id]
	if !ok {
		return
	}
	delete(d.seen, id)
	d.ring[slot] = ""
}

// Size returns the number of remembered ids.
func (d *InMemory) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.seen))
}
