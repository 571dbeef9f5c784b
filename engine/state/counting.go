package state

import (
	"sort"
	"sync"

	"github.com/nathoo/condcore/engine/eval"
	"github.com/nathoo/condcore/types"
)

// Query is one recorded predicate source call.
type Query struct {
	Fact string
	Kind types.AtomKind
}

// Counting wraps a PredicateSource and records every query made through it.
type Counting struct {
	Source eval.PredicateSource

	mu      sync.Mutex
	counts  map[string]int
	queries []Query
}

// NewCounting wraps src.
func NewCounting(src eval.PredicateSource) *Counting {
	return &Counting{Source: src, counts: map[string]int{}}
}

func (c *Counting) record(fact string, kind types.AtomKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[fact]++
	c.queries = append(c.queries, Query{Fact: fact, Kind: kind})
}

// ResolveBoolean records the query and forwards it.
func (c *Counting) ResolveBoolean(fact string, payload types.Payload) (bool, error) {
	c.record(fact, types.AtomBoolean)
	return c.Source.ResolveBoolean(fact, payload)
}

// ResolveValue records the query and forwards it.
func (c *Counting) ResolveValue(fact string, payload types.Payload) (float64, error) {
	c.record(fact, types.AtomValue)
	return c.Source.ResolveValue(fact, payload)
}

// Count returns how many times fact was queried.
func (c *Counting) Count(fact string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[fact]
}

// Total returns the number of queries made.
func (c *Counting) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queries)
}

// Queries returns the recorded queries in call order.
func (c *Counting) Queries() []Query {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Query, len(c.queries))
	copy(out, c.queries)
	return out
}

// Facts returns the distinct queried facts in sorted order.
func (c *Counting) Facts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	facts := make([]string, 0, len(c.counts))
	for k := range c.counts {
		facts = append(facts, k)
	}
	sort.Strings(facts)
	return facts
}

// Reset clears the recorded queries.
func (c *Counting) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts = map[string]int{}
	c.queries = nil
}
