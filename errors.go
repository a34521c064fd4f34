package flowgraph

import (
	"errors"
	"fmt"
)

// Topology and validation errors. Topology errors are returned
// synchronously from the Graph call that caused them.
var (
	// ErrInvalidArgument is returned for bad port references and edges.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrTypeMismatch is returned when two connected stream ports have
	// different item sizes.
	ErrTypeMismatch = fmt.Errorf("%w: type mismatch", ErrInvalidArgument)
	// ErrPortInUse is returned when a stream input port already has an edge.
	ErrPortInUse = fmt.Errorf("%w: destination port already in use", ErrInvalidArgument)
	// ErrEdgeNotFound is returned by Disconnect for unknown edges.
	ErrEdgeNotFound = fmt.Errorf("%w: edge not found", ErrInvalidArgument)
	// ErrValidation is returned by Validate when a mandatory port lacks an edge.
	ErrValidation = errors.New("validation failed")
	// ErrEmptyGraph is returned when there is nothing to run.
	ErrEmptyGraph = errors.New("empty graph")
)

// BlockError is a block-internal failure: an error returned from work, a
// panic recovered at the scheduler boundary or a programming error such as
// over-consumption. It is fatal to the partition the block runs in.
type BlockError struct {
	Block string
	Err   error
}

func (e *BlockError) Error() string {
	return fmt.Sprintf("block %s: %v", e.Block, e.Err)
}

// Unwrap returns the underlying error.
func (e *BlockError) Unwrap() error {
	return e.Err
}

// PanicError is the error recorded when work panics.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("work panicked: %v", e.Value)
}
