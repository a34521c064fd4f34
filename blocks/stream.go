package blocks

import (
	"fmt"

	"github.com/pipelined/flowgraph"
	"github.com/pipelined/flowgraph/mutable"
)

func oneToOne(name string, desc flowgraph.Descriptor) *flowgraph.Base {
	return flowgraph.NewBase(name, flowgraph.Signature{
		Inputs:  []flowgraph.Stream{{Name: "in", Descriptor: desc}},
		Outputs: []flowgraph.Stream{{Name: "out", Descriptor: desc}},
	})
}

// Head passes the first limit items and finishes.
type Head struct {
	*flowgraph.Base
	limit  int
	passed int
}

// NewHead creates a head block of the type.
func NewHead(desc flowgraph.Descriptor, limit int) *Head {
	return &Head{
		Base:  oneToOne("head", desc),
		limit: limit,
	}
}

// Work copies at most the remaining number of items.
func (h *Head) Work(w *flowgraph.Work) (flowgraph.Status, error) {
	in, out := &w.Inputs[0], &w.Outputs[0]
	n := min(out.N, h.limit-h.passed)
	copy(out.Items, in.New()[:n*in.ItemSize])
	if err := w.Complete(n); err != nil {
		return flowgraph.WorkOK, err
	}
	h.passed += n
	if h.passed == h.limit {
		return flowgraph.WorkDone, nil
	}
	return flowgraph.WorkOK, nil
}

// Copy passes items through. Disabled copy drops them. It's enabled with
// a bool message on the enable port.
type Copy struct {
	*flowgraph.Base
	enabled bool
}

// NewCopy creates an enabled copy block of the type.
func NewCopy(desc flowgraph.Descriptor) *Copy {
	c := Copy{
		Base: flowgraph.NewBase("copy", flowgraph.Signature{
			Inputs:        []flowgraph.Stream{{Name: "in", Descriptor: desc}},
			Outputs:       []flowgraph.Stream{{Name: "out", Descriptor: desc}},
			MessageInputs: []flowgraph.Msg{{Name: "enable"}},
		}),
		enabled: true,
	}
	if err := c.Handle("enable", c.enable); err != nil {
		panic(err)
	}
	return &c
}

func (c *Copy) enable(m flowgraph.Message) error {
	v, ok := m.Value.(bool)
	if !ok {
		return fmt.Errorf("%w: enable message value %T", flowgraph.ErrInvalidArgument, m.Value)
	}
	c.enabled = v
	return nil
}

// Enabled reports whether items are passed.
func (c *Copy) Enabled() bool {
	return c.enabled
}

// Work copies the input window.
func (c *Copy) Work(w *flowgraph.Work) (flowgraph.Status, error) {
	in := &w.Inputs[0]
	if !c.enabled {
		return flowgraph.WorkOK, w.Consume(0, in.N)
	}
	n := copy(w.Outputs[0].Items, in.New()) / in.ItemSize
	return flowgraph.WorkOK, w.Complete(n)
}

// KeepOneInN passes every n-th item.
type KeepOneInN struct {
	*flowgraph.Base
	n int
}

// NewKeepOneInN creates a decimating block of the type.
func NewKeepOneInN(desc flowgraph.Descriptor, n int) (*KeepOneInN, error) {
	k := KeepOneInN{
		Base: oneToOne("keep_one_in_n", desc),
		n:    n,
	}
	if err := k.SetRelativeRate(1, n); err != nil {
		return nil, err
	}
	return &k, nil
}

// Work keeps the first item of every n.
func (k *KeepOneInN) Work(w *flowgraph.Work) (flowgraph.Status, error) {
	in, out := &w.Inputs[0], &w.Outputs[0]
	items, size := in.New(), in.ItemSize
	for i := 0; i < out.N; i++ {
		copy(out.Items[i*size:(i+1)*size], items[i*k.n*size:])
	}
	return flowgraph.WorkOK, w.Complete(out.N)
}

// MultiplyConst multiplies float32 items by a gain. Gain is changed with
// mutations or float messages on the gain port.
type MultiplyConst struct {
	*flowgraph.Base
	gain float32
}

// NewMultiplyConst creates a multiplier with the gain.
func NewMultiplyConst(gain float32) *MultiplyConst {
	desc := flowgraph.Scalar(flowgraph.Float32)
	m := MultiplyConst{
		Base: flowgraph.NewBase("multiply_const", flowgraph.Signature{
			Inputs:        []flowgraph.Stream{{Name: "in", Descriptor: desc}},
			Outputs:       []flowgraph.Stream{{Name: "out", Descriptor: desc}},
			MessageInputs: []flowgraph.Msg{{Name: "gain"}},
		}),
		gain: gain,
	}
	if err := m.Handle("gain", m.setGain); err != nil {
		panic(err)
	}
	return &m
}

// GainParam returns mutation that changes the gain.
func (m *MultiplyConst) GainParam(gain float32) mutable.Mutation {
	return m.Mutate(func() error {
		m.gain = gain
		return nil
	})
}

// Gain returns the current gain.
func (m *MultiplyConst) Gain() float32 {
	return m.gain
}

func (m *MultiplyConst) setGain(msg flowgraph.Message) error {
	switch v := msg.Value.(type) {
	case float32:
		m.gain = v
	case float64:
		m.gain = float32(v)
	default:
		return fmt.Errorf("%w: gain message value %T", flowgraph.ErrInvalidArgument, msg.Value)
	}
	return nil
}

// Work multiplies the input window.
func (m *MultiplyConst) Work(w *flowgraph.Work) (flowgraph.Status, error) {
	in, out := flowgraph.Float32s(w.Inputs[0].New()), flowgraph.Float32s(w.Outputs[0].Items)
	for i := range out {
		out[i] = in[i] * m.gain
	}
	return flowgraph.WorkOK, w.Complete(len(out))
}

// MovingSum outputs the sum of the last length float32 items.
type MovingSum struct {
	*flowgraph.Base
}

// NewMovingSum creates a moving sum of the length. Padded sum starts with
// the first item, otherwise the first length-1 items are only summed.
func NewMovingSum(length int, padded bool) (*MovingSum, error) {
	s := MovingSum{Base: oneToOne("moving_sum", flowgraph.Scalar(flowgraph.Float32))}
	if err := s.SetHistory(length); err != nil {
		return nil, err
	}
	s.SetZeroPadHistory(padded)
	return &s, nil
}

// Work sums windows of history items.
func (s *MovingSum) Work(w *flowgraph.Work) (flowgraph.Status, error) {
	in := &w.Inputs[0]
	items, out := flowgraph.Float32s(in.Items), flowgraph.Float32s(w.Outputs[0].Items)
	var sum float32
	for _, v := range items[:in.History-1] {
		sum += v
	}
	for i := range out {
		sum += items[i+in.History-1]
		out[i] = sum
		sum -= items[i]
	}
	return flowgraph.WorkOK, w.Complete(len(out))
}
