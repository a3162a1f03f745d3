package testutil

import (
	"fmt"
	"sync"
)

// SequenceIDGenerator generates ids of the form "<Type>-<n>", counting
// from 1 per type.
//
// This enables deterministic test execution and golden snapshot comparison.
// The same test with a fresh generator produces the same ids.
//
// Thread-safety: SequenceIDGenerator is safe for concurrent use.
type SequenceIDGenerator struct {
	mu   sync.Mutex
	next map[string]int
}

// NewSequenceIDGenerator creates a generator with every type at 1.
func NewSequenceIDGenerator() *SequenceIDGenerator {
	return &SequenceIDGenerator{next: make(map[string]int)}
}

// Generate returns the next id for typeName.
//
// Implements engine.IDGenerator.
func (g *SequenceIDGenerator) Generate(typeName string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next[typeName]++
	return fmt.Sprintf("%s-%d", typeName, g.next[typeName])
}

// Reset restarts every sequence at 1.
func (g *SequenceIDGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	clear(g.next)
}
