// Package ack correlates acknowledgments.
//
// Outbound: Register hands out an ack id for a packet that expects a reply and
// keeps its callback until Resolve (reply arrived), the timeout, Cancel or
// OnSessionDestroyed removes it. Whoever removes the entry first owns it, so
// a callback runs at most once and a reply racing its timeout is a no-op for
// the loser.
//
// Inbound: Request tracks an ack a client asked for, so that it is answered at
// most once and never after its session is gone.
package ack

import (
	"hash/maphash"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	cabk "github.com/relaymesh/socketio/callback"
	"github.com/relaymesh/socketio/scheduler"
)

const shardCount = 16

// Dropper is implemented by callbacks that must learn that their session went
// away. OnDrop is not an outcome: OnSuccess and OnTimeout are still never
// called for the dropped ack.
type Dropper interface{ OnDrop() }

// Correlator is safe for concurrent use.
type Correlator struct {
	sched  *scheduler.Scheduler
	seed   maphash.Seed
	nextID atomic.Uint64
	live   atomic.Int64
	shards [shardCount]shard
}

type shard struct {
	μ        sync.Mutex
	pending  map[string]map[uint64]cabk.Ack // owner → ack id → callback
	requests map[string]map[uint64]*Request // owner → client ack id → request
}

// New returns a Correlator that schedules its timeouts on sched.
func New(sched *scheduler.Scheduler) *Correlator {
	c := &Correlator{sched: sched, seed: maphash.MakeSeed()}
	for i := range c.shards {
		c.shards[i].pending = make(map[string]map[uint64]cabk.Ack)
		c.shards[i].requests = make(map[string]map[uint64]*Request)
	}
	return c
}

func (c *Correlator) shard(owner string) *shard {
	return &c.shards[maphash.String(c.seed, owner)%shardCount]
}

func timeoutKey(owner string, id uint64) scheduler.Key {
	return scheduler.Key{Owner: owner, Name: "ack:" + strconv.FormatUint(id, 10)}
}

// Register records cb and returns a new ack id. Ids increase for the whole
// process, so (owner, id) pairs never repeat. A timeout of zero waits
// forever.
func (c *Correlator) Register(owner string, cb cabk.Ack, timeout time.Duration) uint64 {
	id := c.nextID.Add(1)

	sh := c.shard(owner)
	sh.μ.Lock()
	ids, ok := sh.pending[owner]
	if !ok {
		ids = make(map[uint64]cabk.Ack)
		sh.pending[owner] = ids
	}
	ids[id] = cb
	c.live.Add(1)
	sh.μ.Unlock()

	if timeout > 0 {
		key := timeoutKey(owner, id)
		c.sched.Schedule(key, timeout, func() {
			if cb, ok := c.take(owner, id); ok {
				cb.OnTimeout()
			}
		})
		// resolved or dropped before the task existed
		if !c.pending(owner, id) {
			c.sched.Cancel(key)
		}
	}
	return id
}

func (c *Correlator) pending(owner string, id uint64) bool {
	sh := c.shard(owner)
	sh.μ.Lock()
	defer sh.μ.Unlock()
	_, ok := sh.pending[owner][id]
	return ok
}

func (c *Correlator) take(owner string, id uint64) (cabk.Ack, bool) {
	sh := c.shard(owner)
	sh.μ.Lock()
	defer sh.μ.Unlock()

	ids := sh.pending[owner]
	cb, ok := ids[id]
	if !ok {
		return nil, false
	}
	delete(ids, id)
	if len(ids) == 0 {
		delete(sh.pending, owner)
	}
	c.live.Add(-1)
	return cb, true
}

// Resolve delivers a reply. It reports false for late or duplicate replies,
// which are ignored.
func (c *Correlator) Resolve(owner string, id uint64, data ...interface{}) bool {
	cb, ok := c.take(owner, id)
	if !ok {
		return false
	}
	c.sched.Cancel(timeoutKey(owner, id))
	cb.OnSuccess(data...)
	return true
}

// Cancel drops a pending ack without calling it.
func (c *Correlator) Cancel(owner string, id uint64) bool {
	if _, ok := c.take(owner, id); !ok {
		return false
	}
	c.sched.Cancel(timeoutKey(owner, id))
	return true
}

// OnSessionDestroyed drops every pending ack and inbound request of owner
// without calling their outcomes, and returns the number of pending acks
// dropped.
func (c *Correlator) OnSessionDestroyed(owner string) int {
	sh := c.shard(owner)
	sh.μ.Lock()
	ids := sh.pending[owner]
	delete(sh.pending, owner)
	reqs := sh.requests[owner]
	delete(sh.requests, owner)
	c.live.Add(-int64(len(ids)))
	sh.μ.Unlock()

	for id, cb := range ids {
		c.sched.Cancel(timeoutKey(owner, id))
		if d, ok := cb.(Dropper); ok {
			d.OnDrop()
		}
	}
	for _, req := range reqs {
		req.drop()
	}
	return len(ids)
}

// Pending returns the number of outstanding acks of owner.
func (c *Correlator) Pending(owner string) int {
	sh := c.shard(owner)
	sh.μ.Lock()
	defer sh.μ.Unlock()
	return len(sh.pending[owner])
}

// Len returns the number of outstanding acks.
func (c *Correlator) Len() int { return int(c.live.Load()) }
