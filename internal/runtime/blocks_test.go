package runtime_test

import (
	"context"
	"errors"

	"github.com/pipelined/flowgraph"
)

var errWork = errors.New("work failed")

func floats(ins, outs int) flowgraph.Signature {
	sig := flowgraph.Signature{}
	desc := flowgraph.Scalar(flowgraph.Float32)
	if ins > 0 {
		sig.Inputs = []flowgraph.Stream{{Name: "in", Descriptor: desc, Multiplicity: ins}}
	}
	if outs > 0 {
		sig.Outputs = []flowgraph.Stream{{Name: "out", Descriptor: desc, Multiplicity: outs}}
	}
	return sig
}

// source produces limit increasing values, at most chunk per call.
type source struct {
	*flowgraph.Base
	limit    int
	chunk    int
	produced int
	tagAt    int
}

func newSource(limit, chunk int) *source {
	return &source{
		Base:  flowgraph.NewBase("source", floats(0, 1)),
		limit: limit,
		chunk: chunk,
		tagAt: -1,
	}
}

func (s *source) Work(w *flowgraph.Work) (flowgraph.Status, error) {
	out := &w.Outputs[0]
	n := min(out.N, s.limit-s.produced)
	if s.chunk > 0 {
		n = min(n, s.chunk)
	}
	values := flowgraph.Float32s(out.Items)
	for i := 0; i < n; i++ {
		values[i] = float32(s.produced + i)
		if s.produced+i == s.tagAt {
			_ = w.AddTag(0, flowgraph.Tag{Offset: out.Offset + uint64(i), Key: "mark", Value: s.tagAt})
		}
	}
	if err := w.Produce(0, n); err != nil {
		return flowgraph.WorkOK, err
	}
	s.produced += n
	if s.produced == s.limit {
		return flowgraph.WorkDone, nil
	}
	return flowgraph.WorkOK, nil
}

// scale multiplies values by gain. Gain is changed with mutations.
type scale struct {
	*flowgraph.Base
	gain float32
}

func newScale() *scale {
	return &scale{
		Base: flowgraph.NewBase("scale", floats(1, 1)),
		gain: 1,
	}
}

func (s *scale) Work(w *flowgraph.Work) (flowgraph.Status, error) {
	in, out := flowgraph.Float32s(w.Inputs[0].New()), flowgraph.Float32s(w.Outputs[0].Items)
	for i := range out {
		out[i] = in[i] * s.gain
	}
	return flowgraph.WorkOK, w.Complete(len(out))
}

func (s *scale) setGain(gain float32) func() error {
	return func() error {
		s.gain = gain
		return nil
	}
}

// decimator keeps every second value.
type decimator struct {
	*flowgraph.Base
}

func newDecimator() *decimator {
	d := decimator{Base: flowgraph.NewBase("decimator", floats(1, 1))}
	_ = d.SetRelativeRate(1, 2)
	return &d
}

func (d *decimator) Work(w *flowgraph.Work) (flowgraph.Status, error) {
	in, out := flowgraph.Float32s(w.Inputs[0].New()), flowgraph.Float32s(w.Outputs[0].Items)
	for i := range out {
		out[i] = in[2*i]
	}
	return flowgraph.WorkOK, w.Complete(len(out))
}

// repeater outputs every value n times.
type repeater struct {
	*flowgraph.Base
	n int
}

func newRepeater(n int) *repeater {
	r := repeater{Base: flowgraph.NewBase("repeater", floats(1, 1)), n: n}
	_ = r.SetRelativeRate(n, 1)
	return &r
}

func (r *repeater) Work(w *flowgraph.Work) (flowgraph.Status, error) {
	in, out := flowgraph.Float32s(w.Inputs[0].New()), flowgraph.Float32s(w.Outputs[0].Items)
	for i := range out {
		out[i] = in[i/r.n]
	}
	return flowgraph.WorkOK, w.Complete(len(out))
}

// zip adds its two inputs in groups of four items. It asks for a single
// item per input and reports insufficient input on shorter windows.
type zip struct {
	*flowgraph.Base
	calls int
}

func newZip() *zip {
	z := zip{Base: flowgraph.NewBase("zip", floats(2, 1))}
	z.SetFixedRate(false)
	return &z
}

func (*zip) Forecast(_ int, required []int) {
	for i := range required {
		required[i] = 1
	}
}

func (z *zip) Work(w *flowgraph.Work) (flowgraph.Status, error) {
	z.calls++
	n := min(w.Inputs[0].N, w.Inputs[1].N, w.Outputs[0].N)
	n -= n % 4
	if n == 0 {
		return flowgraph.WorkInsufficientInput, nil
	}
	a, b := flowgraph.Float32s(w.Inputs[0].New()), flowgraph.Float32s(w.Inputs[1].New())
	out := flowgraph.Float32s(w.Outputs[0].Items)
	for i := 0; i < n; i++ {
		out[i] = a[i] + b[i]
	}
	if err := w.ConsumeEach(n); err != nil {
		return flowgraph.WorkOK, err
	}
	return flowgraph.WorkOK, w.Produce(0, n)
}

// sink records received values and tags. Received count is published on
// the eos port once the input is done.
type sink struct {
	*flowgraph.Base
	values   []float32
	tags     []flowgraph.Tag
	calls    int
	first    flowgraph.Input
	lookback []float32
	limit    int
}

func newSink() *sink {
	sig := floats(1, 0)
	sig.MessageOutputs = []flowgraph.Msg{{Name: "eos"}}
	return &sink{Base: flowgraph.NewBase("sink", sig)}
}

func (s *sink) Work(w *flowgraph.Work) (flowgraph.Status, error) {
	in := &w.Inputs[0]
	if s.calls == 0 {
		s.first = *in
		s.lookback = append(s.lookback, flowgraph.Float32s(in.Items[:(in.History-1)*in.ItemSize])...)
	}
	s.calls++
	n := in.N
	if s.limit > 0 {
		n = min(n, s.limit-len(s.values))
	}
	s.values = append(s.values, flowgraph.Float32s(in.New())[:n]...)
	for _, t := range in.Tags {
		if t.Offset < in.Offset+uint64(n) {
			s.tags = append(s.tags, t)
		}
	}
	if err := w.Consume(0, n); err != nil {
		return flowgraph.WorkOK, err
	}
	if s.limit > 0 && len(s.values) == s.limit {
		return flowgraph.WorkDone, nil
	}
	if in.Done {
		_ = s.Publish("eos", flowgraph.Message{Key: "eos", Value: len(s.values)})
	}
	return flowgraph.WorkOK, nil
}

// listener records messages.
type listener struct {
	*flowgraph.Base
	received []flowgraph.Message
}

func newListener() *listener {
	l := listener{Base: flowgraph.NewBase("listener", flowgraph.Signature{
		MessageInputs: []flowgraph.Msg{{Name: "in"}},
	})}
	_ = l.Handle("in", func(m flowgraph.Message) error {
		l.received = append(l.received, m)
		return nil
	})
	return &l
}

func (*listener) Work(*flowgraph.Work) (flowgraph.Status, error) {
	return flowgraph.WorkDone, nil
}

// failing returns an error, panics or over-consumes after n calls.
type failing struct {
	*flowgraph.Base
	after int
	mode  string
	calls int
}

func newFailing(mode string, after int) *failing {
	return &failing{
		Base:  flowgraph.NewBase("failing", floats(1, 0)),
		after: after,
		mode:  mode,
	}
}

func (f *failing) Work(w *flowgraph.Work) (flowgraph.Status, error) {
	f.calls++
	if f.calls > f.after {
		switch f.mode {
		case "error":
			return flowgraph.WorkOK, errWork
		case "panic":
			panic("broken block")
		case "overconsume":
			_ = w.Consume(0, w.Inputs[0].N+1)
			return flowgraph.WorkOK, nil
		}
	}
	return flowgraph.WorkOK, w.Consume(0, w.Inputs[0].N)
}

// stuck never consumes.
type stuck struct {
	*flowgraph.Base
}

func newStuck() *stuck {
	return &stuck{Base: flowgraph.NewBase("stuck", floats(1, 0))}
}

func (*stuck) Work(*flowgraph.Work) (flowgraph.Status, error) {
	return flowgraph.WorkInsufficientInput, nil
}

// hooked records start and stop calls of every instance into events.
type hooked struct {
	*flowgraph.Base
	events   *[]string
	startErr error
}

func newHooked(name string, ins, outs int, events *[]string) *hooked {
	return &hooked{
		Base:   flowgraph.NewBase(name, floats(ins, outs)),
		events: events,
	}
}

func (h *hooked) Start(context.Context) error {
	*h.events = append(*h.events, "start "+h.Name())
	return h.startErr
}

func (h *hooked) Stop(context.Context) error {
	*h.events = append(*h.events, "stop "+h.Name())
	return nil
}

func (h *hooked) Work(w *flowgraph.Work) (flowgraph.Status, error) {
	if len(w.Outputs) > 0 {
		return flowgraph.WorkDone, nil
	}
	return flowgraph.WorkOK, w.Consume(0, w.Inputs[0].N)
}
