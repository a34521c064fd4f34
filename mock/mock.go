// Package mock provides counting blocks and allows to execute integration
// tests. Mocks are not thread-safe, so they should not be checked while the
// flowgraph is running.
package mock

import (
	"context"

	"github.com/pipelined/flowgraph"
	"github.com/pipelined/flowgraph/mutable"
)

var float32s = flowgraph.Scalar(flowgraph.Float32)

// Source produces Limit items of Value.
type Source struct {
	Counter
	Hooks
	Limit       int
	Value       float32
	Chunk       int
	ErrorOnCall error

	block *source
}

type source struct {
	*flowgraph.Base
	*Source
}

// Block returns the block of the mock. It's created on the first call.
func (m *Source) Block() flowgraph.Block {
	if m.block == nil {
		m.block = &source{
			Base: flowgraph.NewBase("mock.source", flowgraph.Signature{
				Outputs: []flowgraph.Stream{{Name: "out", Descriptor: float32s}},
			}),
			Source: m,
		}
	}
	return m.block
}

// LimitParam returns mutation that sets new limit.
func (m *Source) LimitParam(l int) mutable.Mutation {
	m.Block()
	return m.block.Mutate(func() error {
		m.Limit = l
		return nil
	})
}

// ValueParam returns mutation that sets new value.
func (m *Source) ValueParam(v float32) mutable.Mutation {
	m.Block()
	return m.block.Mutate(func() error {
		m.Value = v
		return nil
	})
}

func (b *source) Work(w *flowgraph.Work) (flowgraph.Status, error) {
	if b.ErrorOnCall != nil {
		return flowgraph.WorkOK, b.ErrorOnCall
	}
	if b.Items >= b.Limit {
		return flowgraph.WorkDone, nil
	}
	out := &w.Outputs[0]
	n := min(out.N, b.Limit-b.Items)
	if b.Chunk > 0 {
		n = min(n, b.Chunk)
	}
	values := flowgraph.Float32s(out.Items)[:n]
	for i := range values {
		values[i] = b.Value
	}
	if err := w.Produce(0, n); err != nil {
		return flowgraph.WorkOK, err
	}
	b.advance(n)
	if b.Items == b.Limit {
		return flowgraph.WorkDone, nil
	}
	return flowgraph.WorkOK, nil
}

func (b *source) Start(ctx context.Context) error { return b.start() }

func (b *source) Stop(ctx context.Context) error { return b.stop() }

// Processor passes items through.
type Processor struct {
	Counter
	Hooks
	ErrorOnCall error

	block *processor
}

type processor struct {
	*flowgraph.Base
	*Processor
}

// Block returns the block of the mock. It's created on the first call.
func (m *Processor) Block() flowgraph.Block {
	if m.block == nil {
		m.block = &processor{
			Base: flowgraph.NewBase("mock.processor", flowgraph.Signature{
				Inputs:  []flowgraph.Stream{{Name: "in", Descriptor: float32s}},
				Outputs: []flowgraph.Stream{{Name: "out", Descriptor: float32s}},
			}),
			Processor: m,
		}
	}
	return m.block
}

func (b *processor) Work(w *flowgraph.Work) (flowgraph.Status, error) {
	if b.ErrorOnCall != nil {
		return flowgraph.WorkOK, b.ErrorOnCall
	}
	n := copy(w.Outputs[0].Items, w.Inputs[0].New()) / w.Outputs[0].ItemSize
	if err := w.Complete(n); err != nil {
		return flowgraph.WorkOK, err
	}
	b.advance(n)
	return flowgraph.WorkOK, nil
}

func (b *processor) Start(ctx context.Context) error { return b.start() }

func (b *processor) Stop(ctx context.Context) error { return b.stop() }

// Sink receives items. Received values are kept unless Discard is set.
type Sink struct {
	Counter
	Hooks
	Discard     bool
	ErrorOnCall error

	values []float32
	block  *sink
}

type sink struct {
	*flowgraph.Base
	*Sink
}

// Block returns the block of the mock. It's created on the first call.
func (m *Sink) Block() flowgraph.Block {
	if m.block == nil {
		m.block = &sink{
			Base: flowgraph.NewBase("mock.sink", flowgraph.Signature{
				Inputs: []flowgraph.Stream{{Name: "in", Descriptor: float32s}},
			}),
			Sink: m,
		}
	}
	return m.block
}

// Values returns received values.
func (m *Sink) Values() []float32 {
	return m.values
}

func (b *sink) Work(w *flowgraph.Work) (flowgraph.Status, error) {
	if b.ErrorOnCall != nil {
		return flowgraph.WorkOK, b.ErrorOnCall
	}
	in := &w.Inputs[0]
	if !b.Discard {
		b.values = append(b.values, flowgraph.Float32s(in.New())...)
	}
	if err := w.Consume(0, in.N); err != nil {
		return flowgraph.WorkOK, err
	}
	b.advance(in.N)
	return flowgraph.WorkOK, nil
}

func (b *sink) Start(ctx context.Context) error { return b.start() }

func (b *sink) Stop(ctx context.Context) error { return b.stop() }

// Hooks allows to mock start and stop hooks of blocks.
type Hooks struct {
	Started bool
	Stopped bool

	ErrorOnStart error
	ErrorOnStop  error
}

func (h *Hooks) start() error {
	h.Started = true
	return h.ErrorOnStart
}

func (h *Hooks) stop() error {
	h.Stopped = true
	return h.ErrorOnStop
}

// Counter counts work calls and items.
type Counter struct {
	Calls int
	Items int
}

func (c *Counter) advance(n int) {
	c.Calls++
	c.Items += n
}

// Reset resets counters.
func (c *Counter) Reset() {
	c.Calls, c.Items = 0, 0
}
