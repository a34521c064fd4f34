package flowgraph

import (
	"errors"
	"fmt"
)

// Programming errors reported when a block exceeds the bounds of the
// current call.
var (
	ErrOverConsumption = errors.New("consumed more items than available")
	ErrOverProduction  = errors.New("produced more items than space available")
)

type (
	// Work is the record of one work invocation. Counts reported through
	// Consume and Produce are committed to buffers after work returns.
	Work struct {
		Inputs  []Input
		Outputs []Output

		interpolation int
		decimation    int
		err           error
	}

	// Input is the window of one stream input.
	Input struct {
		// Items holds History-1 look-back items followed by N new items.
		Items    []byte
		N        int
		History  int
		ItemSize int
		// Offset is the absolute index of the first new item.
		Offset uint64
		// Tags attached to the new items.
		Tags []Tag
		// Done is set when the upstream block finished and no items will
		// follow the current window.
		Done bool
		// Unconnected optional inputs have empty windows and are skipped
		// by ConsumeEach.
		Unconnected bool

		consumed int
	}

	// Output is the writable window of one stream output.
	Output struct {
		Items    []byte
		N        int
		ItemSize int
		// Offset is the absolute index of the first writable item.
		Offset uint64

		produced int
		tags     []Tag
	}
)

// NewWork creates a record with the relative rate used by Complete.
func NewWork(inputs []Input, outputs []Output, interpolation, decimation int) *Work {
	return &Work{
		Inputs:        inputs,
		Outputs:       outputs,
		interpolation: interpolation,
		decimation:    decimation,
	}
}

// New returns the new items of the window, without look-back.
func (in *Input) New() []byte {
	return in.Items[(in.History-1)*in.ItemSize:]
}

// Consumed returns number of items consumed during the call.
func (in *Input) Consumed() int { return in.consumed }

// Produced returns number of items produced during the call.
func (out *Output) Produced() int { return out.produced }

// Tags returns tags added during the call.
func (out *Output) Tags() []Tag { return out.tags }

// Consume advances input i by n items.
func (w *Work) Consume(i, n int) error {
	if i < 0 || i >= len(w.Inputs) {
		return w.fail(fmt.Errorf("%w: input %d out of range", ErrInvalidArgument, i))
	}
	in := &w.Inputs[i]
	if n < 0 || in.consumed+n > in.N {
		return w.fail(fmt.Errorf("%w: input %d: %d+%d of %d", ErrOverConsumption, i, in.consumed, n, in.N))
	}
	in.consumed += n
	return nil
}

// ConsumeEach advances every connected input by n items.
func (w *Work) ConsumeEach(n int) error {
	for i := range w.Inputs {
		if w.Inputs[i].Unconnected {
			continue
		}
		if err := w.Consume(i, n); err != nil {
			return err
		}
	}
	return nil
}

// Produce advances output o by n items.
func (w *Work) Produce(o, n int) error {
	if o < 0 || o >= len(w.Outputs) {
		return w.fail(fmt.Errorf("%w: output %d out of range", ErrInvalidArgument, o))
	}
	out := &w.Outputs[o]
	if n < 0 || out.produced+n > out.N {
		return w.fail(fmt.Errorf("%w: output %d: %d+%d of %d", ErrOverProduction, o, out.produced, n, out.N))
	}
	out.produced += n
	return nil
}

// ProduceEach advances every output by n items.
func (w *Work) ProduceEach(n int) error {
	for o := range w.Outputs {
		if err := w.Produce(o, n); err != nil {
			return err
		}
	}
	return nil
}

// Complete produces n items on every output and consumes the matching
// number of items on every connected input according to the relative
// rate. n*decimation must be a multiple of interpolation.
func (w *Work) Complete(n int) error {
	if n*w.decimation%w.interpolation != 0 {
		return w.fail(fmt.Errorf("%w: %d items at relative rate %d/%d", ErrInvalidArgument, n, w.interpolation, w.decimation))
	}
	if err := w.ConsumeEach(n * w.decimation / w.interpolation); err != nil {
		return err
	}
	return w.ProduceEach(n)
}

// AddTag attaches a tag to output o. The offset is absolute.
func (w *Work) AddTag(o int, t Tag) error {
	if o < 0 || o >= len(w.Outputs) {
		return w.fail(fmt.Errorf("%w: output %d out of range", ErrInvalidArgument, o))
	}
	w.Outputs[o].tags = append(w.Outputs[o].tags, t)
	return nil
}

// Err returns the first programming error recorded during the call.
func (w *Work) Err() error {
	return w.err
}

func (w *Work) fail(err error) error {
	if w.err == nil {
		w.err = err
	}
	return err
}
