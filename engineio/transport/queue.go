package transport

import (
	"sync"

	eiop "github.com/relaymesh/socketio/engineio/protocol"
)

// Queue holds the packets waiting for a transport to flush them. Any number
// of goroutines may Push; one flusher at a time calls Drain.
type Queue struct {
	μ      sync.Mutex
	items  []eiop.Packet
	closed bool

	ready chan struct{}
	done  chan struct{}
}

func NewQueue() *Queue {
	return &Queue{ready: make(chan struct{}, 1), done: make(chan struct{})}
}

// Push appends packets in order. It fails once the queue is closed.
func (q *Queue) Push(packets ...eiop.Packet) error {
	q.μ.Lock()
	if q.closed {
		q.μ.Unlock()
		return ErrQueueClosed
	}
	q.items = append(q.items, packets...)
	q.μ.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return nil
}

// Drain removes and returns everything queued so far.
func (q *Queue) Drain() []eiop.Packet {
	q.μ.Lock()
	defer q.μ.Unlock()
	items := q.items
	q.items = nil
	return items
}

// Ready fires after a Push. A receive does not guarantee a non-empty queue;
// another flusher may have drained it.
func (q *Queue) Ready() <-chan struct{} { return q.ready }

// Done is closed by Close.
func (q *Queue) Done() <-chan struct{} { return q.done }

func (q *Queue) Len() int {
	q.μ.Lock()
	defer q.μ.Unlock()
	return len(q.items)
}

// Close stops new pushes. What is already queued can still be drained.
func (q *Queue) Close() {
	q.μ.Lock()
	defer q.μ.Unlock()
	if !q.closed {
		q.closed = true
		close(q.done)
	}
}

func (q *Queue) Closed() bool {
	q.μ.Lock()
	defer q.μ.Unlock()
	return q.closed
}
