package mutable

import (
	"context"
	"errors"
)

// ErrUnknownContext is returned when mutation is put for a context
// without destination.
var ErrUnknownContext = errors.New("unknown mutable context")

type (
	// Pusher allows to push mutations to mutable contexts. It's not safe
	// for concurrent use.
	Pusher struct {
		destinations map[Context]Destination
		mutations    map[Destination]Mutations
	}

	// Destination is a channel that used as source of mutations. Every
	// partition scheduler owns one.
	Destination chan Mutations
)

// NewPusher creates new pusher.
func NewPusher() Pusher {
	return Pusher{
		destinations: make(map[Context]Destination),
		mutations:    make(map[Destination]Mutations),
	}
}

// NewDestination returns a destination channel.
func NewDestination() Destination {
	return make(chan Mutations, 1)
}

// AddDestination adds new mapping of mutable context to destination.
func (p Pusher) AddDestination(ctx Context, d Destination) {
	p.destinations[ctx] = d
}

// Put mutations to the pusher. Nothing is put if any mutation has unknown
// context.
func (p Pusher) Put(mutations ...Mutation) error {
	for _, m := range mutations {
		if _, ok := p.destinations[m.Context]; !ok {
			return ErrUnknownContext
		}
	}
	for _, m := range mutations {
		d := p.destinations[m.Context]
		p.mutations[d] = p.mutations[d].Put(m)
	}
	return nil
}

// Push mutations to the destinations. It blocks until every destination
// received its mutations or ctx is done.
func (p Pusher) Push(ctx context.Context) error {
	for d, ms := range p.mutations {
		if ms == nil {
			continue
		}
		select {
		case d <- ms:
			p.mutations[d] = nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
