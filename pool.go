package es

import (
	"fmt"
	"path"
	"strings"
	"sync"
)

// CatchAll routes every aggregate type without a more specific pattern
const CatchAll = "*"

type route struct {
	pattern string
	name    string
	seq     int
}

// Pool routes aggregate types to named stores by glob pattern
type Pool struct {
	mu     sync.RWMutex
	stores map[string]*Store
	routes []route
}

// NewPool creates an empty pool
func NewPool() *Pool {
	return &Pool{
		stores: map[string]*Store{},
	}
}

// Register enrols a store under name, concerning the given aggregate type patterns
func (p *Pool) Register(name string, store *Store, patterns ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.stores[name]; ok {
		return fmt.Errorf("event store already registered with name '%s'", name)
	}
	for _, pattern := range patterns {
		if _, err := path.Match(pattern, ""); err != nil {
			return fmt.Errorf("invalid pattern '%s' for store '%s': %w", pattern, name, err)
		}
	}

	p.stores[name] = store
	for _, pattern := range patterns {
		p.routes = append(p.routes, route{pattern: pattern, name: name, seq: len(p.routes)})
	}
	return nil
}

// Store returns a store by name
func (p *Pool) Store(name string) (*Store, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	store, ok := p.stores[name]
	return store, ok
}

// Resolve returns the store of the most specific pattern matching aggregateType.
// Exact names win over globs, then globs with more literal characters, then the
// earliest registration.
func (p *Pool) Resolve(aggregateType string) (*Store, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var best *route
	for i := range p.routes {
		r := &p.routes[i]
		if ok, _ := path.Match(r.pattern, aggregateType); !ok {
			continue
		}
		if best == nil || moreSpecific(r, best) {
			best = r
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w for '%s'", ErrNoStore, aggregateType)
	}
	return p.stores[best.name], nil
}

func moreSpecific(a, b *route) bool {
	aLiteral, bLiteral := isLiteral(a.pattern), isLiteral(b.pattern)
	if aLiteral != bLiteral {
		return aLiteral
	}
	if la, lb := literalLength(a.pattern), literalLength(b.pattern); la != lb {
		return la > lb
	}
	return a.seq < b.seq
}

func isLiteral(pattern string) bool {
	return !strings.ContainsAny(pattern, `*?[\`)
}

func literalLength(pattern string) int {
	n := 0
	for _, r := range pattern {
		switch r {
		case '*', '?', '[', ']', '\\':
		default:
			n++
		}
	}
	return n
}
