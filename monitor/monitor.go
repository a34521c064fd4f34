// Package monitor coordinates schedulers of one flowgraph run.
//
// Monitor drives the shutdown handshake: the first participant that
// reports Done makes the monitor broadcast Flush to every scheduler, and
// only when every scheduler and every upstream proxy reported Flushed,
// schedulers receive Exit and downstream proxies receive Kill. Kill is
// unconditional at any time: it's forwarded to schedulers and upstream
// proxies and the monitor returns.
package monitor

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
)

// Kind of event.
type Kind int

// Events exchanged between the monitor and participants.
const (
	Start Kind = iota
	Flush
	Done
	Flushed
	Exit
	Kill
)

func (k Kind) String() string {
	switch k {
	case Start:
		return "START"
	case Flush:
		return "FLUSH"
	case Done:
		return "DONE"
	case Flushed:
		return "FLUSHED"
	case Exit:
		return "EXIT"
	case Kill:
		return "KILL"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Event is a directive sent to a participant or a report sent to the
// monitor. Done reports may carry the error the partition failed with.
type Event struct {
	Kind Kind
	ID   xid.ID
	Err  error
}

// Participant receives directives. Notify must not block.
type Participant interface {
	ID() xid.ID
	Notify(Event)
}

// Reporter accepts reports from participants.
type Reporter interface {
	Report(Event)
}

type (
	// Monitor is the coordinator of schedulers and proxies.
	Monitor struct {
		logger     logrus.FieldLogger
		schedulers []Participant
		upstream   []Participant
		downstream []Participant

		events chan Event
		done   chan struct{}
		once   sync.Once
	}

	// Option configures the monitor.
	Option func(*Monitor)
)

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(m *Monitor) {
		m.logger = l
	}
}

// WithUpstream adds proxies of partitions that deliver data into this
// flowgraph. They must report Flushed before schedulers exit and receive
// forwarded Kill.
func WithUpstream(proxies ...Participant) Option {
	return func(m *Monitor) {
		m.upstream = append(m.upstream, proxies...)
	}
}

// WithDownstream adds proxies of partitions this flowgraph delivers data
// to. They receive Start and, after the handshake, Kill.
func WithDownstream(proxies ...Participant) Option {
	return func(m *Monitor) {
		m.downstream = append(m.downstream, proxies...)
	}
}

// New creates a monitor of the schedulers.
func New(schedulers []Participant, options ...Option) *Monitor {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	m := Monitor{
		logger:     logger,
		schedulers: schedulers,
		done:       make(chan struct{}),
	}
	for _, option := range options {
		option(&m)
	}
	m.events = make(chan Event, 2*(len(m.schedulers)+len(m.upstream))+1)
	return &m
}

// Report delivers a report to the monitor. Reports sent after the monitor
// finished are dropped.
func (m *Monitor) Report(e Event) {
	select {
	case m.events <- e:
	case <-m.done:
	}
}

// Kill tears down the monitor unconditionally.
func (m *Monitor) Kill() {
	m.Report(Event{Kind: Kill})
}

// Run sends Start to every scheduler and downstream proxy and processes
// reports until the handshake completes or Kill is received. Done ctx is
// treated as Kill.
func (m *Monitor) Run(ctx context.Context) error {
	defer m.once.Do(func() { close(m.done) })

	m.logger.Debug("start")
	broadcast(Event{Kind: Start}, m.schedulers, m.downstream)

	flushing := false
	flushed := make(map[xid.ID]bool, len(m.schedulers)+len(m.upstream))
	for _, p := range m.schedulers {
		flushed[p.ID()] = false
	}
	for _, p := range m.upstream {
		flushed[p.ID()] = false
	}
	if len(flushed) == 0 {
		return nil
	}

	for {
		var e Event
		select {
		case e = <-m.events:
		case <-ctx.Done():
			e = Event{Kind: Kill}
		}

		switch e.Kind {
		case Done:
			if e.Err != nil {
				m.logger.WithField("participant", e.ID).WithError(e.Err).Error("partition failed")
			} else {
				m.logger.WithField("participant", e.ID).Debug("done")
			}
			if flushing {
				continue
			}
			flushing = true
			m.logger.Debug("flush")
			broadcast(Event{Kind: Flush}, m.schedulers)
		case Flushed:
			if _, ok := flushed[e.ID]; !ok {
				m.logger.WithField("participant", e.ID).Warn("flushed from unknown participant")
				continue
			}
			flushed[e.ID] = true
			if !all(flushed) {
				continue
			}
			m.logger.Debug("exit")
			broadcast(Event{Kind: Exit}, m.schedulers)
			broadcast(Event{Kind: Kill}, m.downstream)
			return nil
		case Kill:
			m.logger.Debug("kill")
			broadcast(Event{Kind: Kill}, m.schedulers, m.upstream)
			return nil
		}
	}
}

func broadcast(e Event, groups ...[]Participant) {
	for _, group := range groups {
		for _, p := range group {
			p.Notify(e)
		}
	}
}

func all(flushed map[xid.ID]bool) bool {
	for _, ok := range flushed {
		if !ok {
			return false
		}
	}
	return true
}
