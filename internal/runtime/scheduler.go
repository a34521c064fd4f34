// Package runtime executes flowgraph partitions. Every partition is driven
// by one Scheduler on its own goroutine, so buffers are never shared
// between goroutines.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/pipelined/flowgraph"
	"github.com/pipelined/flowgraph/monitor"
	"github.com/pipelined/flowgraph/mutable"
)

// Scheduler is the cooperative run loop of one partition.
type Scheduler struct {
	id       xid.ID
	nodes    []*node
	logger   logrus.FieldLogger
	reporter monitor.Reporter
	idleWait time.Duration
	maxItems int

	directives chan monitor.Event
	wake       chan struct{}
	mutations  mutable.Destination

	started  int
	running  bool
	flushing bool
	finished bool
	err      error
}

// ID returns the participant id.
func (s *Scheduler) ID() xid.ID {
	return s.id
}

// Notify delivers a directive of the monitor. The monitor sends at most
// three directives per run, so it never blocks.
func (s *Scheduler) Notify(e monitor.Event) {
	s.directives <- e
}

// Bind sets the monitor that receives reports.
func (s *Scheduler) Bind(r monitor.Reporter) {
	s.reporter = r
}

// Destination returns the channel of mutations for blocks of the
// partition.
func (s *Scheduler) Destination() mutable.Destination {
	return s.mutations
}

// States returns current states of blocks by alias. It's safe to call
// from any goroutine.
func (s *Scheduler) States() map[string]flowgraph.State {
	states := make(map[string]flowgraph.State, len(s.nodes))
	for _, n := range s.nodes {
		states[n.alias] = n.State()
	}
	return states
}

// Run starts blocks, executes passes until the monitor sends Exit or Kill
// and stops blocks. It returns failures of blocks in the partition.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		s.fail(err)
	}

	var err error
	for err == nil {
		err = s.Execute(ctx)
	}
	if errors.Is(err, io.EOF) {
		err = nil
	}
	return multierr.Combine(s.err, err, s.Flush(context.WithoutCancel(ctx)))
}

// Start calls start hooks of blocks. The first failure stops it.
func (s *Scheduler) Start(ctx context.Context) error {
	for _, n := range s.nodes {
		if starter, ok := n.block.(flowgraph.Starter); ok {
			if err := starter.Start(ctx); err != nil {
				return &flowgraph.BlockError{Block: n.alias, Err: fmt.Errorf("start: %w", err)}
			}
		}
		s.started++
	}
	return nil
}

// Flush calls stop hooks of started blocks.
func (s *Scheduler) Flush(ctx context.Context) error {
	var err error
	for _, n := range s.nodes[:s.started] {
		if stopper, ok := n.block.(flowgraph.Stopper); ok {
			if stopErr := stopper.Stop(ctx); stopErr != nil {
				err = multierr.Append(err, &flowgraph.BlockError{Block: n.alias, Err: fmt.Errorf("stop: %w", stopErr)})
			}
		}
	}
	s.started = 0
	return err
}

// Execute handles pending directives and runs one scheduling pass. It
// returns io.EOF when the partition must exit.
func (s *Scheduler) Execute(ctx context.Context) error {
	for len(s.directives) > 0 {
		if err := s.handle(<-s.directives); err != nil {
			return err
		}
	}
	if !s.running || s.finished {
		return s.idle(ctx, 0)
	}
	select {
	case ms := <-s.mutations:
		s.mutate(ms)
	default:
	}
	if s.finished {
		return nil
	}

	progress, err := s.pass()
	if err != nil {
		s.fail(err)
		return nil
	}
	if s.complete() {
		s.finish()
		return nil
	}
	if !progress {
		return s.idle(ctx, s.idleWait)
	}
	return nil
}

// pass evaluates every dirty block once.
func (s *Scheduler) pass() (bool, error) {
	progress := false
	for _, n := range s.nodes {
		if n.State() == flowgraph.Done || !n.dirty.Swap(false) {
			continue
		}
		handled, err := n.dispatch()
		if err != nil {
			return progress, &flowgraph.BlockError{Block: n.alias, Err: err}
		}
		progress = progress || handled > 0

		if n.streamless() {
			continue
		}

		settings := n.block.Settings()
		p := n.evaluate(settings, s.maxItems)
		switch p.state {
		case flowgraph.Done:
			n.logger.Debug("no more items")
			n.finish()
			progress = true
			continue
		case flowgraph.BlockedIn, flowgraph.BlockedOut:
			n.setState(p.state)
			n.meter.Blocked(p.state.String())
			continue
		}

		n.setState(flowgraph.Ready)
		called, err := n.call(settings, p)
		if err != nil {
			return progress, &flowgraph.BlockError{Block: n.alias, Err: err}
		}
		progress = progress || called
		if n.State() == flowgraph.Done {
			progress = true
		}
	}

	if s.flushing || s.streamDone() {
		for _, n := range s.nodes {
			if n.streamless() && n.State() != flowgraph.Done {
				if _, err := n.dispatch(); err != nil {
					return progress, &flowgraph.BlockError{Block: n.alias, Err: err}
				}
				n.finish()
				progress = true
			}
		}
	}
	return progress, nil
}

func (s *Scheduler) handle(e monitor.Event) error {
	s.logger.WithField("directive", e.Kind).Debug("received")
	switch e.Kind {
	case monitor.Start:
		s.running = true
		s.touch()
	case monitor.Flush:
		s.flushing = true
		if s.finished {
			s.report(monitor.Flushed)
			return nil
		}
		for _, n := range s.nodes {
			if n.source() {
				n.finish()
			}
		}
		s.touch()
	case monitor.Exit, monitor.Kill:
		return io.EOF
	}
	return nil
}

func (s *Scheduler) mutate(ms mutable.Mutations) {
	for _, n := range s.nodes {
		if err := ms.ApplyTo(n.mutability); err != nil {
			s.fail(&flowgraph.BlockError{Block: n.alias, Err: fmt.Errorf("mutation: %w", err)})
			return
		}
		n.dirty.Store(true)
	}
}

// idle waits for anything that may change readiness. Zero wait means no
// timeout.
func (s *Scheduler) idle(ctx context.Context, wait time.Duration) error {
	var timeout <-chan time.Time
	if wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		timeout = t.C
	}
	select {
	case e := <-s.directives:
		return s.handle(e)
	case ms := <-s.mutations:
		if !s.finished {
			s.mutate(ms)
		}
	case <-s.wake:
	case <-timeout:
		// blocks may wait for external events
		s.touch()
	case <-ctx.Done():
		return io.EOF
	}
	return nil
}

// signal wakes up idle scheduler. It may be called from any goroutine.
func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) touch() {
	for _, n := range s.nodes {
		n.dirty.Store(true)
	}
}

// streamDone reports whether the partition had stream blocks and all of
// them are done. Partitions of message blocks only end with flush.
func (s *Scheduler) streamDone() bool {
	streams := 0
	for _, n := range s.nodes {
		if n.streamless() {
			continue
		}
		if n.State() != flowgraph.Done {
			return false
		}
		streams++
	}
	return streams > 0
}

func (s *Scheduler) complete() bool {
	for _, n := range s.nodes {
		if n.State() != flowgraph.Done {
			return false
		}
	}
	return true
}

// fail makes the partition done with the error.
func (s *Scheduler) fail(err error) {
	s.logger.WithError(err).Error("partition failed")
	var be *flowgraph.BlockError
	for _, n := range s.nodes {
		if errors.As(err, &be) && be.Block == n.alias {
			n.meter.Error()
		}
		n.finish()
	}
	s.err = multierr.Append(s.err, err)
	s.finish()
}

func (s *Scheduler) finish() {
	if s.finished {
		return
	}
	s.finished = true
	if s.flushing {
		s.report(monitor.Flushed)
		return
	}
	s.report(monitor.Done)
}

func (s *Scheduler) report(k monitor.Kind) {
	s.logger.WithField("report", k).Debug("send")
	if s.reporter != nil {
		s.reporter.Report(monitor.Event{Kind: k, ID: s.id, Err: s.err})
	}
}
