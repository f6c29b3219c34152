package pubsub

import (
	"context"
	"sync"
)

// Bus is an in-process Publisher and Subscriber. Nodes that share a Bus
// behave like nodes sharing a broker.
type Bus struct {
	μ      sync.RWMutex
	next   int
	subs   map[int]subscription
	closed bool
}

type subscription struct {
	pattern string
	fn      func(string, []byte)
}

func NewBus() *Bus { return &Bus{subs: make(map[int]subscription)} }

// Publish calls every matching subscriber before it returns.
func (b *Bus) Publish(ctx context.Context, topic string, payload []byte) error {
	b.μ.RLock()
	if b.closed {
		b.μ.RUnlock()
		return ErrBusClosed
	}
	var fns []func(string, []byte)
	for _, sub := range b.subs {
		if match(sub.pattern, topic) {
			fns = append(fns, sub.fn)
		}
	}
	b.μ.RUnlock()

	for _, fn := range fns {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(topic, append([]byte(nil), payload...))
	}
	return nil
}

// Subscribe blocks until ctx is done or the bus is closed.
func (b *Bus) Subscribe(ctx context.Context, pattern string, fn func(string, []byte)) error {
	b.μ.Lock()
	if b.closed {
		b.μ.Unlock()
		return ErrBusClosed
	}
	id := b.next
	b.next++
	b.subs[id] = subscription{pattern, fn}
	b.μ.Unlock()

	<-ctx.Done()

	b.μ.Lock()
	delete(b.subs, id)
	b.μ.Unlock()
	return nil
}

// Subscribers returns the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.μ.RLock()
	defer b.μ.RUnlock()
	return len(b.subs)
}

// Close makes later calls fail. Running subscriptions end with their ctx.
func (b *Bus) Close() {
	b.μ.Lock()
	b.closed = true
	b.μ.Unlock()
}
