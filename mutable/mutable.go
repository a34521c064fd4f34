// Package mutable provides contexts that allow to change the state of
// blocks while the flowgraph is running. Mutations are applied by the
// scheduler that owns the block, between two work calls.
package mutable

import (
	"github.com/rs/xid"
)

// zero value for context is immutable.
var immutable = Context{}

type (
	// Context can be embedded to make structure behaviour mutable.
	Context [12]byte

	// Mutation is mutator function associated with a certain mutable context.
	Mutation struct {
		Context
		mutator MutatorFunc
	}

	// Mutations is a set of Mutations mapped their Mutables.
	Mutations map[Context][]MutatorFunc

	// MutatorFunc mutates the object.
	MutatorFunc func() error
)

// Mutable returns new mutable context.
func Mutable() Context {
	return Context(xid.New())
}

// Immutable returns immutable context.
func Immutable() Context {
	return immutable
}

// Mutate associates provided mutator with mutable and return mutation.
func (c Context) Mutate(m MutatorFunc) Mutation {
	if c == immutable {
		panic("mutate immutable")
	}
	return Mutation{
		Context: c,
		mutator: m,
	}
}

// IsMutable returns true if object is mutable.
func (c Context) IsMutable() bool {
	return c != immutable
}

func (c Context) String() string {
	return xid.ID(c).String()
}

// Apply mutator function.
func (m Mutation) Apply() error {
	return m.mutator()
}

// Put mutation to the set of Mutations.
func (ms Mutations) Put(m Mutation) Mutations {
	if m.Context == immutable {
		return ms
	}
	if ms == nil {
		return map[Context][]MutatorFunc{m.Context: {m.mutator}}
	}
	ms[m.Context] = append(ms[m.Context], m.mutator)
	return ms
}

// ApplyTo consumes Mutations defined for consumer in this set. Mutators
// are applied in order, the first error stops the application.
func (ms Mutations) ApplyTo(id Context) error {
	if ms == nil || id == immutable {
		return nil
	}
	fns, ok := ms[id]
	if !ok {
		return nil
	}
	delete(ms, id)
	for _, fn := range fns {
		if err := fn(); err != nil {
			return err
		}
	}
	return nil
}
