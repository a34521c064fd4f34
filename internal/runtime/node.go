package runtime

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pipelined/flowgraph"
	"github.com/pipelined/flowgraph/buffer"
	"github.com/pipelined/flowgraph/metric"
	"github.com/pipelined/flowgraph/mutable"
)

// node is the scheduling entry of one block.
type node struct {
	block      flowgraph.Block
	alias      string
	logger     logrus.FieldLogger
	meter      *metric.Meter
	mutability mutable.Context
	forecaster flowgraph.Forecaster

	// per stream input, nil when the port is unconnected.
	inputs    []*buffer.Reader
	producers []*node
	// per stream output, unconnected ports get a buffer without readers.
	outputs   []*buffer.Buffer
	consumers [][]*node
	messages  []*flowgraph.Port

	state atomic.Int32
	dirty atomic.Bool
}

// plan is the outcome of readiness evaluation.
type plan struct {
	state   flowgraph.State
	inputs  []int
	noutput int
}

func (n *node) State() flowgraph.State {
	return flowgraph.State(n.state.Load())
}

func (n *node) setState(s flowgraph.State) {
	n.state.Store(int32(s))
}

func (n *node) connected() int {
	c := 0
	for _, r := range n.inputs {
		if r != nil {
			c++
		}
	}
	return c
}

func (n *node) source() bool {
	return len(n.outputs) > 0 && n.connected() == 0
}

// streamless nodes have no connected stream inputs and no outputs. They
// only react to messages.
func (n *node) streamless() bool {
	return len(n.outputs) == 0 && n.connected() == 0
}

// abandoned reports whether nothing will ever read produced items.
func (n *node) abandoned() bool {
	read := false
	for _, b := range n.outputs {
		if len(b.Readers()) == 0 {
			continue
		}
		if !b.Abandoned() {
			return false
		}
		read = true
	}
	return read
}

// evaluate computes the item counts of the next work call.
func (n *node) evaluate(s flowgraph.Settings, maxItems int) plan {
	if n.abandoned() {
		return plan{state: flowgraph.Done}
	}
	om, interp, decim := max(1, s.OutputMultiple), max(1, s.Interpolation), max(1, s.Decimation)
	fixed := s.FixedRate && n.forecaster == nil
	if fixed && !n.source() {
		om = outputStep(s)
	}

	noutput := 0
	if len(n.outputs) > 0 {
		space := n.outputs[0].Space()
		for _, b := range n.outputs[1:] {
			space = min(space, b.Space())
		}
		if maxItems > 0 {
			space = min(space, max(maxItems, om))
		}
		noutput = floorTo(space, om)
	}

	if n.source() {
		if noutput == 0 {
			return plan{state: flowgraph.BlockedOut}
		}
		return plan{state: flowgraph.Ready, noutput: noutput}
	}

	available := make([]int, len(n.inputs))
	for i, r := range n.inputs {
		if r != nil {
			available[i] = r.Available()
		}
	}

	// minimal requirement of a call
	minimal := om
	if len(n.outputs) == 0 {
		minimal = 1
	}
	need := n.forecast(s, minimal, interp, decim)
	for i, r := range n.inputs {
		if r == nil || available[i] >= need[i] {
			continue
		}
		if r.Buffer().Done() {
			return plan{state: flowgraph.Done}
		}
		return plan{state: flowgraph.BlockedIn}
	}

	if len(n.outputs) == 0 {
		return n.sink(s, available, maxItems)
	}
	if noutput == 0 {
		return plan{state: flowgraph.BlockedOut}
	}

	p := plan{state: flowgraph.Ready, inputs: make([]int, len(n.inputs))}
	if fixed {
		byInput := -1
		for i, r := range n.inputs {
			if r == nil {
				continue
			}
			if v := floorTo(available[i]*interp/decim, om); byInput < 0 || v < byInput {
				byInput = v
			}
		}
		p.noutput = min(noutput, byInput)
		for i, r := range n.inputs {
			if r != nil {
				p.inputs[i] = p.noutput * decim / interp
			}
		}
		return p
	}

	// general block: halve the request until the forecast fits
	p.noutput = noutput
	for !fits(n.forecast(s, p.noutput, interp, decim), available, n.inputs) {
		p.noutput = floorTo(p.noutput/2, om)
		if p.noutput < om {
			p.noutput = om
			break
		}
	}
	copy(p.inputs, available)
	return p
}

func (n *node) sink(s flowgraph.Settings, available []int, maxItems int) plan {
	p := plan{state: flowgraph.Ready, inputs: make([]int, len(n.inputs))}
	window := -1
	for i, r := range n.inputs {
		if r == nil {
			continue
		}
		v := available[i]
		if maxItems > 0 {
			v = min(v, maxItems)
		}
		p.inputs[i] = v
		if window < 0 || v < window {
			window = v
		}
	}
	if s.FixedRate && n.forecaster == nil {
		for i, r := range n.inputs {
			if r != nil {
				p.inputs[i] = window
			}
		}
	}
	if window <= 0 && (s.FixedRate || allZero(p.inputs)) {
		return plan{state: flowgraph.BlockedIn}
	}
	return p
}

func (n *node) forecast(s flowgraph.Settings, noutput, interp, decim int) []int {
	required := make([]int, len(n.inputs))
	if n.forecaster != nil {
		n.forecaster.Forecast(noutput, required)
		return required
	}
	for i := range required {
		required[i] = ceilDiv(noutput*decim, interp)
	}
	return required
}

func fits(required, available []int, inputs []*buffer.Reader) bool {
	for i, r := range inputs {
		if r != nil && required[i] > available[i] {
			return false
		}
	}
	return true
}

// call invokes work with the plan and commits the result. It reports
// whether any item was consumed or produced.
func (n *node) call(s flowgraph.Settings, p plan) (bool, error) {
	ports := n.block.Ports()
	inputs := make([]flowgraph.Input, len(n.inputs))
	for i, r := range n.inputs {
		if r == nil {
			inputs[i] = flowgraph.Input{History: 1, ItemSize: ports.StreamInputs[i].ItemSize(), Done: true, Unconnected: true}
			continue
		}
		inputs[i] = flowgraph.Input{
			Items:    r.Window(p.inputs[i]),
			N:        p.inputs[i],
			History:  r.History(),
			ItemSize: r.Buffer().ItemSize(),
			Offset:   r.Read(),
			Tags:     r.Tags(p.inputs[i]),
			Done:     r.Buffer().Done() && p.inputs[i] == r.Available(),
		}
	}
	outputs := make([]flowgraph.Output, len(n.outputs))
	for o, b := range n.outputs {
		outputs[o] = flowgraph.Output{
			Items:    b.Window(p.noutput),
			N:        p.noutput,
			ItemSize: b.ItemSize(),
			Offset:   b.Written(),
		}
	}
	w := flowgraph.NewWork(inputs, outputs, max(1, s.Interpolation), max(1, s.Decimation))

	n.setState(flowgraph.Running)
	started := time.Now()
	status, err := invoke(n.block, w)
	elapsed := time.Since(started)
	if err != nil {
		return false, err
	}
	if err := w.Err(); err != nil {
		return false, err
	}

	consumed, produced, err := n.commit(s, w)
	if err != nil {
		return false, err
	}
	n.meter.Work(status.String(), elapsed, consumed, produced)
	progress := consumed > 0 || produced > 0
	if progress {
		n.dirty.Store(true)
	}

	switch {
	case status == flowgraph.WorkDone:
		n.logger.Debug("work done")
		n.finish()
	case status == flowgraph.WorkInsufficientInput && !progress && n.inputsDone():
		n.logger.Debug("insufficient input after every upstream is done")
		n.finish()
	case progress:
		n.setState(flowgraph.Ready)
	default:
		n.setState(flowgraph.BlockedIn)
	}
	return progress, nil
}

// commit advances cursors, stores new tags and propagates consumed tags.
func (n *node) commit(s flowgraph.Settings, w *flowgraph.Work) (consumed, produced int, err error) {
	written := make([]uint64, len(n.outputs))
	for o, b := range n.outputs {
		out := &w.Outputs[o]
		written[o] = b.Written()
		for _, t := range out.Tags() {
			if t.Source == "" {
				t.Source = n.alias
			}
			b.AddTag(t)
		}
		if err := b.Produce(out.Produced()); err != nil {
			return 0, 0, err
		}
		if out.Produced() > 0 {
			produced += out.Produced()
			wake(n.consumers[o])
		}
	}

	interp, decim := max(1, s.Interpolation), max(1, s.Decimation)
	for i, r := range n.inputs {
		if r == nil {
			continue
		}
		c := w.Inputs[i].Consumed()
		if c == 0 {
			continue
		}
		read := r.Read()
		for _, t := range r.Tags(c) {
			offset := t.Offset - read
			for _, o := range targets(s.TagPolicy, i, len(n.outputs)) {
				t.Offset = written[o] + flowgraph.Rescale(offset, interp, decim)
				n.outputs[o].AddTag(t)
			}
		}
		if err := r.Consume(c); err != nil {
			return 0, 0, err
		}
		consumed += c
		if p := n.producers[i]; p != nil {
			wake([]*node{p})
		}
	}
	return consumed, produced, nil
}

// targets returns outputs that receive tags of input i.
func targets(policy flowgraph.TagPolicy, i, outputs int) []int {
	switch policy {
	case flowgraph.TagsAllToAll:
		all := make([]int, outputs)
		for o := range all {
			all[o] = o
		}
		return all
	case flowgraph.TagsOneToOne:
		if i < outputs {
			return []int{i}
		}
	}
	return nil
}

// dispatch delivers pending messages to handlers.
func (n *node) dispatch() (int, error) {
	handled := 0
	for _, p := range n.messages {
		h := p.Handler()
		if h == nil {
			continue
		}
		for {
			m, ok := p.Queue().TryPop()
			if !ok {
				break
			}
			if err := handle(h, m); err != nil {
				return handled, fmt.Errorf("handle message on %s: %w", p.Name(), err)
			}
			n.meter.Message()
			handled++
		}
	}
	return handled, nil
}

// inputsDone reports whether no connected input will ever receive more
// items.
func (n *node) inputsDone() bool {
	done := false
	for _, r := range n.inputs {
		if r == nil {
			continue
		}
		if !r.Buffer().Done() {
			return false
		}
		done = true
	}
	return done
}

// finish makes the block Done: outputs are marked done, inputs stop
// holding producers back and neighbours are woken up.
func (n *node) finish() {
	if n.State() == flowgraph.Done {
		return
	}
	n.setState(flowgraph.Done)
	for o, b := range n.outputs {
		b.SetDone()
		wake(n.consumers[o])
	}
	for i, r := range n.inputs {
		if r == nil {
			continue
		}
		r.Close()
		if p := n.producers[i]; p != nil {
			wake([]*node{p})
		}
	}
}

func wake(nodes []*node) {
	for _, n := range nodes {
		n.dirty.Store(true)
	}
}

func invoke(b flowgraph.Block, w *flowgraph.Work) (status flowgraph.Status, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &flowgraph.PanicError{Value: r}
		}
	}()
	return b.Work(w)
}

func handle(h flowgraph.MessageHandler, m flowgraph.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &flowgraph.PanicError{Value: r}
		}
	}()
	return h(m)
}

func floorTo(n, multiple int) int {
	if n <= 0 {
		return 0
	}
	return n - n%multiple
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// outputStep is the smallest output count of a fixed-rate block that maps
// to a whole number of input items and honors its output multiple.
func outputStep(s flowgraph.Settings) int {
	om, interp, decim := max(1, s.OutputMultiple), max(1, s.Interpolation), max(1, s.Decimation)
	if !s.FixedRate {
		return om
	}
	return lcm(om, interp/gcd(interp, decim))
}

func lcm(a, b int) int {
	return a / gcd(a, b) * b
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

func allZero(v []int) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
