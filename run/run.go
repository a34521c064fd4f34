// Package run executes flowgraphs. Every partition of the graph runs on
// its own goroutine and the monitor coordinates their shutdown.
package run

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/pipelined/flowgraph"
	"github.com/pipelined/flowgraph/config"
	"github.com/pipelined/flowgraph/internal/runtime"
	"github.com/pipelined/flowgraph/log"
	"github.com/pipelined/flowgraph/metric"
	"github.com/pipelined/flowgraph/monitor"
	"github.com/pipelined/flowgraph/mutable"
)

var (
	// ErrStarted is returned when the run is started twice.
	ErrStarted = errors.New("run already started")
	// ErrNotStarted is returned by Wait before Start.
	ErrNotStarted = errors.New("run not started")
)

type (
	// Run executes the flowgraph asynchronously.
	Run struct {
		id         xid.ID
		graph      *flowgraph.Graph
		cfg        config.Config
		logger     logrus.FieldLogger
		metrics    *metric.Metrics
		upstream   []monitor.Participant
		downstream []monitor.Participant

		schedulers []*runtime.Scheduler
		monitor    *monitor.Monitor

		mu      sync.Mutex
		pusher  mutable.Pusher
		started bool
		ctx     context.Context
		cancel  context.CancelFunc
		done    chan struct{}
		err     error
	}

	// Option configures the run.
	Option func(*Run)
)

// WithConfig sets buffer sizes and scheduling parameters.
func WithConfig(cfg config.Config) Option {
	return func(r *Run) {
		r.cfg = cfg
	}
}

// WithLogger sets the logger. Runs don't log by default.
func WithLogger(l logrus.FieldLogger) Option {
	return func(r *Run) {
		r.logger = l
	}
}

// WithMetrics sets the collectors of block metrics.
func WithMetrics(m *metric.Metrics) Option {
	return func(r *Run) {
		r.metrics = m
	}
}

// WithProxies adds participants representing partitions of other
// flowgraphs. Upstream proxies must report Flushed before the run exits,
// downstream proxies are started with the run and killed after it.
func WithProxies(upstream, downstream []monitor.Participant) Option {
	return func(r *Run) {
		r.upstream = append(r.upstream, upstream...)
		r.downstream = append(r.downstream, downstream...)
	}
}

// New validates the graph and allocates buffers of every partition. The
// graph must not be changed until the run is done.
func New(g *flowgraph.Graph, options ...Option) (*Run, error) {
	r := Run{
		id:     xid.New(),
		graph:  g,
		cfg:    config.Default(),
		logger: log.Discard(),
		pusher: mutable.NewPusher(),
		done:   make(chan struct{}),
	}
	for _, option := range options {
		option(&r)
	}
	if err := r.cfg.Validate(); err != nil {
		return nil, err
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if r.metrics == nil {
		m, err := metric.New(nil)
		if err != nil {
			return nil, err
		}
		r.metrics = m
	}

	partitions := g.Partition()
	for _, b := range g.Isolated() {
		partitions = append(partitions, []flowgraph.Block{b})
	}
	if len(partitions) == 0 {
		return nil, flowgraph.ErrEmptyGraph
	}

	r.logger = r.logger.WithField("run", r.id)
	participants := make([]monitor.Participant, 0, len(partitions))
	for _, blocks := range partitions {
		s, err := runtime.New(g, blocks, r.cfg, r.logger, r.metrics)
		if err != nil {
			return nil, err
		}
		for _, b := range blocks {
			if m, ok := b.(flowgraph.Mutable); ok && m.Mutability().IsMutable() {
				r.pusher.AddDestination(m.Mutability(), s.Destination())
			}
		}
		r.schedulers = append(r.schedulers, s)
		participants = append(participants, s)
	}
	r.monitor = monitor.New(participants,
		monitor.WithLogger(r.logger),
		monitor.WithUpstream(r.upstream...),
		monitor.WithDownstream(r.downstream...),
	)
	for _, s := range r.schedulers {
		s.Bind(r.monitor)
	}
	r.logger.WithField("partitions", len(r.schedulers)).Debug("run created")
	return &r, nil
}

// ID returns the run id.
func (r *Run) ID() xid.ID {
	return r.id
}

// Start starts every partition. Done ctx kills the run.
func (r *Run) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return ErrStarted
	}
	r.started = true
	r.ctx, r.cancel = context.WithCancel(context.WithoutCancel(ctx))

	// mutations pushed before start
	if err := r.pusher.Push(r.ctx); err != nil {
		return err
	}

	var (
		eg    errgroup.Group
		errMu sync.Mutex
	)
	for _, s := range r.schedulers {
		s := s
		eg.Go(func() error {
			if err := s.Run(ctx); err != nil {
				errMu.Lock()
				r.err = multierr.Append(r.err, err)
				errMu.Unlock()
			}
			return nil
		})
	}
	eg.Go(func() error {
		return r.monitor.Run(ctx)
	})
	r.logger.Info("run started")

	go func() {
		err := eg.Wait()
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = multierr.Append(err, ctxErr)
		}
		r.err = multierr.Append(r.err, err)
		r.cancel()
		if r.err != nil {
			r.logger.WithError(r.err).Warn("run failed")
		} else {
			r.logger.Info("run done")
		}
		close(r.done)
	}()
	return nil
}

// Stop kills the run without waiting for partitions to drain. Use Wait
// to block until partitions exit.
func (r *Run) Stop() {
	r.monitor.Kill()
}

// Wait blocks until every partition exited. It returns failures of blocks
// combined.
func (r *Run) Wait() error {
	r.mu.Lock()
	started := r.started
	r.mu.Unlock()
	if !started {
		return ErrNotStarted
	}
	<-r.done
	return r.err
}

// Done returns a channel that's closed when every partition exited.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Push delivers mutations to partitions of their blocks. Mutations are
// applied before the next work call of the block. Before Start they are
// kept until the run starts. It blocks until every partition received
// its mutations or the run is done.
func (r *Run) Push(mutations ...mutable.Mutation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.pusher.Put(mutations...); err != nil {
		return err
	}
	if !r.started {
		return nil
	}
	if err := r.pusher.Push(r.ctx); err != nil {
		return fmt.Errorf("push mutations: %w", err)
	}
	return nil
}

// Post pushes the message to the input message port of the block with
// the alias.
func (r *Run) Post(alias, port string, m flowgraph.Message) error {
	b, ok := r.graph.Lookup(alias)
	if !ok {
		return fmt.Errorf("%w: unknown block %q", flowgraph.ErrInvalidArgument, alias)
	}
	p, err := b.Ports().Find(flowgraph.In, port)
	if err != nil {
		return err
	}
	if p.Kind() != flowgraph.MessagePort {
		return fmt.Errorf("%w: %v is not a message port", flowgraph.ErrInvalidArgument, p)
	}
	p.PushMessage(m)
	return nil
}

// States returns current states of blocks by alias.
func (r *Run) States() map[string]flowgraph.State {
	states := make(map[string]flowgraph.State)
	for _, s := range r.schedulers {
		for alias, state := range s.States() {
			states[alias] = state
		}
	}
	return states
}
