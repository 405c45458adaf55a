// Package memory is the per-execution memory model: a scoped variable
// chain, flat node-output/cache maps, loop control signals, a
// try/catch/finally frame stack, and parallel-lane bookkeeping. One instance
// backs exactly one thread execution.
package memory

import "github.com/procthread/engine/internal/domain"

// Scope is one frame in the variable scope chain. Lookup walks from a
// scope up through Parent to the global scope.
type Scope struct {
	ID     string
	Type   domain.ScopeType
	Parent *Scope
	Local  map[string]any
}

func newScope(id string, t domain.ScopeType, parent *Scope) *Scope {
	return &Scope{ID: id, Type: t, Parent: parent, Local: make(map[string]any)}
}

// lookup finds the nearest scope (starting at s, walking to Parent) that
// holds key, returning that scope and true, or nil/false if absent anywhere
// in the chain.
func (s *Scope) lookup(key string) (*Scope, bool) {
	for cur := s; cur != nil; cur = cur.Parent {
		if _, ok := cur.Local[key]; ok {
			return cur, true
		}
	}
	return nil, false
}

// get walks the chain from s upward and returns the first value found.
func (s *Scope) get(key string) (any, bool) {
	for cur := s; cur != nil; cur = cur.Parent {
		if v, ok := cur.Local[key]; ok {
			return v, true
		}
	}
	return nil, false
}
