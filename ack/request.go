package ack

import (
	"sync/atomic"

	erro "github.com/relaymesh/socketio/internal/errors"
)

const (
	ErrAlreadyReplied erro.State = "ack already sent"
	ErrRequestGone    erro.State = "ack request owner is gone"
)

const (
	requestOpen int32 = iota
	requestReplied
	requestDropped
)

// SendFunc writes the ACK packet for a client's ack id.
type SendFunc func(id uint64, data []interface{}) error

// Request is an acknowledgment a client asked for.
type Request struct {
	ID uint64

	c     *Correlator
	owner string
	send  SendFunc
	state atomic.Int32
}

// Request records that the client of owner wants an ACK for id. The returned
// Request is handed to the event handler.
func (c *Correlator) Request(owner string, id uint64, send SendFunc) *Request {
	req := &Request{ID: id, c: c, owner: owner, send: send}

	sh := c.shard(owner)
	sh.μ.Lock()
	reqs, ok := sh.requests[owner]
	if !ok {
		reqs = make(map[uint64]*Request)
		sh.requests[owner] = reqs
	}
	if prev, ok := reqs[id]; ok {
		prev.drop() // the client reused an id; the newest wins
	}
	reqs[id] = req
	sh.μ.Unlock()
	return req
}

// Reply sends the ACK. Only the first call sends; later calls and calls after
// the owner went away return an error.
func (r *Request) Reply(data ...interface{}) error {
	if !r.state.CompareAndSwap(requestOpen, requestReplied) {
		if r.state.Load() == requestReplied {
			return ErrAlreadyReplied.KV("id", r.ID)
		}
		return ErrRequestGone.KV("id", r.ID)
	}
	r.c.dropRequest(r.owner, r)
	return r.send(r.ID, data)
}

// Done reports whether the request was answered or dropped.
func (r *Request) Done() bool { return r.state.Load() != requestOpen }

func (r *Request) drop() { r.state.CompareAndSwap(requestOpen, requestDropped) }

func (c *Correlator) dropRequest(owner string, r *Request) {
	sh := c.shard(owner)
	sh.μ.Lock()
	defer sh.μ.Unlock()
	reqs := sh.requests[owner]
	if reqs[r.ID] == r {
		delete(reqs, r.ID)
		if len(reqs) == 0 {
			delete(sh.requests, owner)
		}
	}
}

// Requests returns the number of unanswered inbound requests of owner.
func (c *Correlator) Requests(owner string) int {
	sh := c.shard(owner)
	sh.μ.Lock()
	defer sh.μ.Unlock()
	return len(sh.requests[owner])
}
