package flowgraph

import (
	"context"
	"fmt"
	"sync"

	"github.com/pipelined/flowgraph/mutable"
)

// Status is returned by work together with an optional error.
type Status int

const (
	// WorkOK means the call made progress, possibly zero items.
	WorkOK Status = iota
	// WorkInsufficientInput means the block needs more input before it can
	// produce anything. It is a flow condition, not an error.
	WorkInsufficientInput
	// WorkDone means the block will never produce again.
	WorkDone
)

func (s Status) String() string {
	switch s {
	case WorkOK:
		return "ok"
	case WorkInsufficientInput:
		return "insufficient input"
	case WorkDone:
		return "done"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

type (
	// Block is a unit of computation with typed ports. Work is invoked by
	// the scheduler of the partition the block belongs to, never
	// concurrently with itself, message handlers or mutations.
	Block interface {
		Name() string
		Ports() *Ports
		Settings() Settings
		Work(*Work) (Status, error)
	}

	// Forecaster is implemented by blocks that know how many input items
	// they need to produce noutput items. It fills required with one count
	// per stream input.
	Forecaster interface {
		Forecast(noutput int, required []int)
	}

	// Starter is implemented by blocks that need to acquire resources
	// before the first work call.
	Starter interface {
		Start(context.Context) error
	}

	// Stopper is implemented by blocks that need to release resources after
	// the last work call.
	Stopper interface {
		Stop(context.Context) error
	}

	// Mutable is implemented by blocks which accept mutations.
	Mutable interface {
		Mutability() mutable.Context
	}
)

// Settings is the scheduling metadata of a block. The scheduler re-reads it
// before every work call.
type Settings struct {
	// History is the number of items visible in every input window, the
	// first History-1 of them already delivered in a prior call.
	History int
	// OutputMultiple constrains produced counts to its multiples.
	OutputMultiple int
	// Interpolation and Decimation define the relative rate
	// Interpolation/Decimation of outputs to inputs.
	Interpolation int
	Decimation    int
	// FixedRate blocks have input counts that are an exact function of
	// output counts.
	FixedRate bool
	TagPolicy TagPolicy
	// ZeroPadHistory makes History-1 zero items visible before the first
	// item instead of holding the block until they are received.
	ZeroPadHistory bool
}

// DefaultSettings returns settings of a sync block without history.
func DefaultSettings() Settings {
	return Settings{
		History:        1,
		OutputMultiple: 1,
		Interpolation:  1,
		Decimation:     1,
		FixedRate:      true,
		TagPolicy:      TagsAllToAll,
	}
}

// RelativeRate returns the ratio of output to input rate.
func (s Settings) RelativeRate() float64 {
	return float64(s.Interpolation) / float64(s.Decimation)
}

// Base implements the bookkeeping part of Block. Blocks embed it and
// implement Work.
type Base struct {
	mutable.Context
	name  string
	ports *Ports

	mu       sync.Mutex
	settings Settings
}

// NewBase creates ports for the signature and default settings.
func NewBase(name string, sig Signature) *Base {
	return &Base{
		Context:  mutable.Mutable(),
		name:     name,
		ports:    NewPorts(sig),
		settings: DefaultSettings(),
	}
}

// Mutability returns the mutable context of the block.
func (b *Base) Mutability() mutable.Context {
	return b.Context
}

// Name returns the block name.
func (b *Base) Name() string {
	return b.name
}

// Ports returns the ports of the block.
func (b *Base) Ports() *Ports {
	return b.ports
}

// Settings returns a copy of current settings.
func (b *Base) Settings() Settings {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.settings
}

// SetHistory sets number of items visible in each input window.
func (b *Base) SetHistory(h int) error {
	if h < 1 {
		return fmt.Errorf("%w: history %d", ErrInvalidArgument, h)
	}
	b.mu.Lock()
	b.settings.History = h
	b.mu.Unlock()
	return nil
}

// SetOutputMultiple constrains produced counts to multiples of m.
func (b *Base) SetOutputMultiple(m int) error {
	if m < 1 {
		return fmt.Errorf("%w: output multiple %d", ErrInvalidArgument, m)
	}
	b.mu.Lock()
	b.settings.OutputMultiple = m
	b.mu.Unlock()
	return nil
}

// SetRelativeRate sets the output to input ratio interpolation/decimation.
func (b *Base) SetRelativeRate(interpolation, decimation int) error {
	if interpolation < 1 || decimation < 1 {
		return fmt.Errorf("%w: relative rate %d/%d", ErrInvalidArgument, interpolation, decimation)
	}
	b.mu.Lock()
	b.settings.Interpolation = interpolation
	b.settings.Decimation = decimation
	b.mu.Unlock()
	return nil
}

// SetFixedRate marks the block as fixed or general rate.
func (b *Base) SetFixedRate(fixed bool) {
	b.mu.Lock()
	b.settings.FixedRate = fixed
	b.mu.Unlock()
}

// SetTagPolicy sets the tag propagation policy.
func (b *Base) SetTagPolicy(p TagPolicy) {
	b.mu.Lock()
	b.settings.TagPolicy = p
	b.mu.Unlock()
}

// SetZeroPadHistory enables zero items before the start of the stream.
func (b *Base) SetZeroPadHistory(pad bool) {
	b.mu.Lock()
	b.settings.ZeroPadHistory = pad
	b.mu.Unlock()
}

// Handle registers a handler for the input message port. Handlers run on
// the scheduler goroutine between work calls.
func (b *Base) Handle(port string, h MessageHandler) error {
	for _, p := range b.ports.MessageInputs {
		if p.name == port {
			p.handler = h
			return nil
		}
	}
	return fmt.Errorf("%w: block %s has no input message port %q", ErrInvalidArgument, b.name, port)
}

// Publish sends the message to every subscriber of the output message port.
func (b *Base) Publish(port string, m Message) error {
	for _, p := range b.ports.MessageOutputs {
		if p.name == port {
			p.PushMessage(m)
			return nil
		}
	}
	return fmt.Errorf("%w: block %s has no output message port %q", ErrInvalidArgument, b.name, port)
}
