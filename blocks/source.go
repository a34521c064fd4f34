// Package blocks provides general purpose blocks: sources and sinks of
// vectors, rate changers, simple arithmetic, tag and message debugging and
// WAV file IO.
package blocks

import (
	"github.com/pipelined/flowgraph"
)

// VectorSource produces the values once or repeatedly. Tags are attached
// to the values on every repetition, their offsets are relative to the
// vector start.
type VectorSource struct {
	*flowgraph.Base
	values []float32
	tags   []flowgraph.Tag
	repeat bool
	pos    int
}

// NewVectorSource creates a source of float32 values.
func NewVectorSource(values []float32, repeat bool, tags ...flowgraph.Tag) *VectorSource {
	return &VectorSource{
		Base: flowgraph.NewBase("vector_source", flowgraph.Signature{
			Outputs: []flowgraph.Stream{{Name: "out", Descriptor: flowgraph.Scalar(flowgraph.Float32)}},
		}),
		values: values,
		tags:   tags,
		repeat: repeat,
	}
}

// Work copies values into the output window.
func (s *VectorSource) Work(w *flowgraph.Work) (flowgraph.Status, error) {
	if len(s.values) == 0 {
		return flowgraph.WorkDone, nil
	}
	out := &w.Outputs[0]
	items := flowgraph.Float32s(out.Items)
	n := 0
	for n < out.N {
		if s.pos == len(s.values) {
			if !s.repeat {
				break
			}
			s.pos = 0
		}
		m := copy(items[n:], s.values[s.pos:])
		for _, t := range s.tags {
			if off := int(t.Offset); off >= s.pos && off < s.pos+m {
				t.Offset = out.Offset + uint64(n+off-s.pos)
				if err := w.AddTag(0, t); err != nil {
					return flowgraph.WorkOK, err
				}
			}
		}
		s.pos += m
		n += m
	}
	if err := w.Produce(0, n); err != nil {
		return flowgraph.WorkOK, err
	}
	if !s.repeat && s.pos == len(s.values) {
		return flowgraph.WorkDone, nil
	}
	return flowgraph.WorkOK, nil
}

// NullSource produces zero items endlessly. It's usually followed by Head.
type NullSource struct {
	*flowgraph.Base
}

// NewNullSource creates a source of zero items of the type.
func NewNullSource(desc flowgraph.Descriptor) *NullSource {
	return &NullSource{
		Base: flowgraph.NewBase("null_source", flowgraph.Signature{
			Outputs: []flowgraph.Stream{{Name: "out", Descriptor: desc}},
		}),
	}
}

// Work zeroes the output window.
func (s *NullSource) Work(w *flowgraph.Work) (flowgraph.Status, error) {
	clear(w.Outputs[0].Items)
	return flowgraph.WorkOK, w.ProduceEach(w.Outputs[0].N)
}
