package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs hands out "<prefix>-1", "<prefix>-2", ... and satisfies
// dispatch.IDGenerator.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialIDs returns a generator using prefix, or "call" if empty.
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "call"
	}
	return &SequentialIDs{prefix: prefix}
}

// Generate returns the next id.
func (g *SequentialIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}

// FixedID always returns the same id.
type FixedID string

// Generate returns the id.
func (f FixedID) Generate() string { return string(f) }
