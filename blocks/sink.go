package blocks

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/pipelined/flowgraph"
)

// VectorSink keeps received float32 items and tags. It's safe to read
// the data while the flowgraph is running.
type VectorSink struct {
	*flowgraph.Base

	mu     sync.Mutex
	values []float32
	tags   []flowgraph.Tag
}

// NewVectorSink creates a sink of float32 items.
func NewVectorSink() *VectorSink {
	return &VectorSink{
		Base: flowgraph.NewBase("vector_sink", flowgraph.Signature{
			Inputs: []flowgraph.Stream{{Name: "in", Descriptor: flowgraph.Scalar(flowgraph.Float32)}},
		}),
	}
}

// Work appends the input window.
func (s *VectorSink) Work(w *flowgraph.Work) (flowgraph.Status, error) {
	in := &w.Inputs[0]
	s.mu.Lock()
	s.values = append(s.values, flowgraph.Float32s(in.New())...)
	s.tags = append(s.tags, in.Tags...)
	s.mu.Unlock()
	return flowgraph.WorkOK, w.Consume(0, in.N)
}

// Values returns a copy of received items.
func (s *VectorSink) Values() []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float32(nil), s.values...)
}

// Tags returns a copy of received tags.
func (s *VectorSink) Tags() []flowgraph.Tag {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]flowgraph.Tag(nil), s.tags...)
}

// Reset drops received data.
func (s *VectorSink) Reset() {
	s.mu.Lock()
	s.values, s.tags = nil, nil
	s.mu.Unlock()
}

// NullSink consumes and counts items of any type.
type NullSink struct {
	*flowgraph.Base

	mu    sync.Mutex
	count int
}

// NewNullSink creates a sink of the type.
func NewNullSink(desc flowgraph.Descriptor) *NullSink {
	return &NullSink{
		Base: flowgraph.NewBase("null_sink", flowgraph.Signature{
			Inputs: []flowgraph.Stream{{Name: "in", Descriptor: desc}},
		}),
	}
}

// Work consumes the input window.
func (s *NullSink) Work(w *flowgraph.Work) (flowgraph.Status, error) {
	n := w.Inputs[0].N
	s.mu.Lock()
	s.count += n
	s.mu.Unlock()
	return flowgraph.WorkOK, w.Consume(0, n)
}

// Count returns number of consumed items.
func (s *NullSink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// TagDebug consumes items and logs tags attached to them.
type TagDebug struct {
	*flowgraph.Base
	logger logrus.FieldLogger

	mu   sync.Mutex
	tags []flowgraph.Tag
}

// NewTagDebug creates a tag debugger of the type.
func NewTagDebug(desc flowgraph.Descriptor, logger logrus.FieldLogger) *TagDebug {
	return &TagDebug{
		Base: flowgraph.NewBase("tag_debug", flowgraph.Signature{
			Inputs: []flowgraph.Stream{{Name: "in", Descriptor: desc}},
		}),
		logger: logger,
	}
}

// Work logs tags of the window.
func (d *TagDebug) Work(w *flowgraph.Work) (flowgraph.Status, error) {
	in := &w.Inputs[0]
	for _, t := range in.Tags {
		d.logger.WithFields(logrus.Fields{
			"offset": t.Offset,
			"key":    t.Key,
			"value":  t.Value,
			"source": t.Source,
		}).Info("tag")
	}
	d.mu.Lock()
	d.tags = append(d.tags, in.Tags...)
	d.mu.Unlock()
	return flowgraph.WorkOK, w.Consume(0, in.N)
}

// Tags returns a copy of seen tags.
func (d *TagDebug) Tags() []flowgraph.Tag {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]flowgraph.Tag(nil), d.tags...)
}
