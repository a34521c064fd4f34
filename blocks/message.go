package blocks

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pipelined/flowgraph"
)

// MessageStrobe publishes the message periodically while the flowgraph is
// running. Publishing happens on its own goroutine.
type MessageStrobe struct {
	*flowgraph.Base
	message  flowgraph.Message
	interval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMessageStrobe creates a strobe of the message.
func NewMessageStrobe(m flowgraph.Message, interval time.Duration) *MessageStrobe {
	return &MessageStrobe{
		Base: flowgraph.NewBase("message_strobe", flowgraph.Signature{
			MessageOutputs: []flowgraph.Msg{{Name: "strobe"}},
		}),
		message:  m,
		interval: interval,
	}
}

// Start starts publishing.
func (s *MessageStrobe) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_ = s.Publish("strobe", s.message)
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// Stop stops publishing and waits for the goroutine to exit.
func (s *MessageStrobe) Stop(context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	return nil
}

// Work is never called for blocks without stream ports.
func (*MessageStrobe) Work(*flowgraph.Work) (flowgraph.Status, error) {
	return flowgraph.WorkDone, nil
}

// MessageDebug keeps received messages and logs messages of the print port.
type MessageDebug struct {
	*flowgraph.Base
	logger logrus.FieldLogger

	mu       sync.Mutex
	messages []flowgraph.Message
}

// NewMessageDebug creates a debugger that logs to the logger.
func NewMessageDebug(logger logrus.FieldLogger) *MessageDebug {
	d := MessageDebug{
		Base: flowgraph.NewBase("message_debug", flowgraph.Signature{
			MessageInputs: []flowgraph.Msg{{Name: "store"}, {Name: "print"}},
		}),
		logger: logger,
	}
	if err := d.Handle("store", d.store); err != nil {
		panic(err)
	}
	if err := d.Handle("print", d.print); err != nil {
		panic(err)
	}
	return &d
}

func (d *MessageDebug) store(m flowgraph.Message) error {
	d.mu.Lock()
	d.messages = append(d.messages, m)
	d.mu.Unlock()
	return nil
}

func (d *MessageDebug) print(m flowgraph.Message) error {
	d.logger.WithField("key", m.Key).WithField("value", m.Value).Info("message")
	return nil
}

// Messages returns a copy of stored messages.
func (d *MessageDebug) Messages() []flowgraph.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]flowgraph.Message(nil), d.messages...)
}

// Work is never called for blocks without stream ports.
func (*MessageDebug) Work(*flowgraph.Work) (flowgraph.Status, error) {
	return flowgraph.WorkDone, nil
}
