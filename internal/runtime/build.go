package runtime

import (
	"fmt"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"github.com/pipelined/flowgraph"
	"github.com/pipelined/flowgraph/buffer"
	"github.com/pipelined/flowgraph/config"
	"github.com/pipelined/flowgraph/metric"
	"github.com/pipelined/flowgraph/monitor"
	"github.com/pipelined/flowgraph/mutable"
)

// New allocates buffers of the partition and returns its scheduler. Blocks
// must be a connected component of the graph. History of blocks is fixed
// at this point, other settings are re-read before every work call.
func New(g *flowgraph.Graph, blocks []flowgraph.Block, cfg config.Config, logger logrus.FieldLogger, metrics *metric.Metrics) (*Scheduler, error) {
	s := Scheduler{
		id:         xid.New(),
		idleWait:   cfg.IdleWait,
		maxItems:   cfg.MaxItems,
		directives: make(chan monitor.Event, 8),
		wake:       make(chan struct{}, 1),
		mutations:  mutable.NewDestination(),
	}
	s.logger = logger.WithField("partition", s.id)

	nodes := make(map[flowgraph.Block]*node, len(blocks))
	for _, b := range blocks {
		n := s.node(g, b, metrics)
		nodes[b] = n
		s.nodes = append(s.nodes, n)
	}

	for _, n := range s.nodes {
		settings := n.block.Settings()
		for o, p := range n.block.Ports().StreamOutputs {
			peers := p.Peers()
			if len(peers) == 0 {
				itemsize := max(1, p.ItemSize())
				n.outputs[o] = buffer.New(itemsize, buffer.Capacity(cfg.BufferBytes, itemsize, 2*outputStep(settings)))
				continue
			}

			itemsize := p.ItemSize()
			if itemsize == 0 {
				itemsize = peers[0].ItemSize()
			}
			if itemsize == 0 {
				return nil, fmt.Errorf("%w: %v and %v are both untyped", flowgraph.ErrTypeMismatch, p, peers[0])
			}

			minItems := 2 * outputStep(settings)
			for _, dst := range peers {
				ds := dst.Block().Settings()
				interp, decim := max(1, ds.Interpolation), max(1, ds.Decimation)
				need := max(1, ds.History) - 1 + 2*ceilDiv(outputStep(ds)*decim, interp)
				minItems = max(minItems, need)
			}
			buf := buffer.New(itemsize, buffer.Capacity(cfg.BufferBytes, itemsize, minItems))
			n.outputs[o] = buf

			for _, dst := range peers {
				consumer, ok := nodes[dst.Block()]
				if !ok {
					return nil, fmt.Errorf("%w: %v is connected outside of the partition", flowgraph.ErrInvalidArgument, dst)
				}
				ds := consumer.block.Settings()
				consumer.inputs[dst.Index()] = buf.AddReader(ds.History, ds.ZeroPadHistory)
				consumer.producers[dst.Index()] = n
				n.consumers[o] = append(n.consumers[o], consumer)
			}
			n.logger.WithFields(logrus.Fields{
				"port":     p.Name(),
				"capacity": buf.Capacity(),
				"readers":  len(peers),
			}).Debug("buffer allocated")
		}
	}
	return &s, nil
}

func (s *Scheduler) node(g *flowgraph.Graph, b flowgraph.Block, metrics *metric.Metrics) *node {
	alias := g.Alias(b)
	ports := b.Ports()
	n := node{
		block:      b,
		alias:      alias,
		logger:     s.logger.WithField("block", alias),
		meter:      metrics.Meter(alias),
		mutability: mutable.Immutable(),
		inputs:     make([]*buffer.Reader, len(ports.StreamInputs)),
		producers:  make([]*node, len(ports.StreamInputs)),
		outputs:    make([]*buffer.Buffer, len(ports.StreamOutputs)),
		consumers:  make([][]*node, len(ports.StreamOutputs)),
		messages:   ports.MessageInputs,
	}
	if m, ok := b.(flowgraph.Mutable); ok {
		n.mutability = m.Mutability()
	}
	if f, ok := b.(flowgraph.Forecaster); ok {
		n.forecaster = f
	}
	n.setState(flowgraph.BlockedIn)
	n.dirty.Store(true)
	for _, p := range n.messages {
		p.Queue().OnPush(func() {
			n.dirty.Store(true)
			s.signal()
		})
	}
	return &n
}
