package flowgraph

import (
	"context"
	"errors"
	"sync"
)

// Message is a discrete asynchronous payload delivered through message
// ports.
type Message struct {
	Key   string
	Value any
}

// MessageHandler is invoked for every message arriving on an input message
// port. It runs on the scheduler goroutine of the owning block, never
// concurrently with its work.
type MessageHandler func(Message) error

// ErrQueueClosed is returned by Pop after the queue is closed and drained.
var ErrQueueClosed = errors.New("message queue closed")

// MessageQueue is an unbounded FIFO of messages. Pushes may come from any
// goroutine.
type MessageQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []Message
	closed bool
	notify func()
}

// NewMessageQueue returns an empty queue.
func NewMessageQueue() *MessageQueue {
	q := &MessageQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends a message and wakes up waiting consumers. Messages pushed
// after Close are dropped.
func (q *MessageQueue) Push(m Message) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, m)
	notify := q.notify
	q.mu.Unlock()
	q.cond.Signal()
	if notify != nil {
		notify()
	}
}

// TryPop removes the head of the queue without waiting.
func (q *MessageQueue) TryPop() (Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pop()
}

// Pop removes the head of the queue, waiting until a message is available,
// the queue is closed or ctx is done.
func (q *MessageQueue) Pop(ctx context.Context) (Message, error) {
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed && ctx.Err() == nil {
		q.cond.Wait()
	}
	if m, ok := q.pop(); ok {
		return m, nil
	}
	if q.closed {
		return Message{}, ErrQueueClosed
	}
	return Message{}, ctx.Err()
}

// Len returns number of pending messages.
func (q *MessageQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close wakes up all waiting consumers. Pending messages can still be
// popped.
func (q *MessageQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// OnPush installs a function called after every successful push. The
// scheduler uses it to wake up the partition owning the queue.
func (q *MessageQueue) OnPush(fn func()) {
	q.mu.Lock()
	q.notify = fn
	q.mu.Unlock()
}

func (q *MessageQueue) pop() (Message, bool) {
	if len(q.items) == 0 {
		return Message{}, false
	}
	m := q.items[0]
	q.items[0] = Message{}
	q.items = q.items[1:]
	return m, true
}
