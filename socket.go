package socketio

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/relaymesh/socketio/ack"
	cabk "github.com/relaymesh/socketio/callback"
	eio "github.com/relaymesh/socketio/engineio"
	siop "github.com/relaymesh/socketio/protocol"
)

// Socket is one client connected to one namespace.
type Socket struct {
	id  SocketID
	ns  *Namespace
	svr *Server
	c   *conn

	connected atomic.Bool

	μ            sync.RWMutex
	events       map[Event]cabk.EventCallback
	onDisconnect func(error)
}

func newSocket(svr *Server, ns *Namespace, c *conn, id SocketID) *Socket {
	sock := &Socket{id: id, ns: ns, svr: svr, c: c, events: make(map[Event]cabk.EventCallback)}
	sock.connected.Store(true)
	return sock
}

func (s *Socket) ID() SocketID          { return s.id }
func (s *Socket) SessionID() SessionID  { return s.c.sess.ID }
func (s *Socket) Namespace() *Namespace { return s.ns }
func (s *Socket) Request() *Request     { return s.c.req }
func (s *Socket) Session() *eio.Session { return s.c.sess }
func (s *Socket) Connected() bool       { return s.connected.Load() }
func (s *Socket) Rooms() []Room         { return s.svr.rooms.Rooms(s.ns.name, s.id) }
func (s *Socket) Leave(rooms ...Room)   { s.svr.rooms.Leave(s.ns.name, s.id, rooms...) }

// Join puts the socket into rooms. A disconnected socket cannot join; one
// that is torn down while joining is taken out of the rooms again.
func (s *Socket) Join(rooms ...Room) error {
	if !s.Connected() {
		return ErrNotConnected.F(s.ns.name)
	}
	if err := s.svr.rooms.Join(s.ns.name, s.id, rooms...); err != nil {
		return err
	}
	if !s.Connected() {
		s.svr.rooms.Remove(s.ns.name, s.id)
		return ErrNotConnected.F(s.ns.name)
	}
	return nil
}

// On handles event for this socket only.
func (s *Socket) On(event Event, callback cabk.EventCallback) {
	if isReserved(event) {
		callback = cabk.ErrorWrap(func() error { return ErrReservedEvent.F(event) })
	}
	s.μ.Lock()
	defer s.μ.Unlock()
	s.events[event] = callback
}

// OnDisconnect runs once, before the namespace's disconnect handler.
func (s *Socket) OnDisconnect(fn func(reason error)) {
	s.μ.Lock()
	defer s.μ.Unlock()
	s.onDisconnect = fn
}

func (s *Socket) handler(event Event) cabk.EventCallback {
	s.μ.RLock()
	cb, ok := s.events[event]
	s.μ.RUnlock()
	if ok {
		return cb
	}
	return s.ns.handler(event)
}

// Emit sends an event to this client. When the last value implements
// callback.Ack it is not sent: the client is asked for an acknowledgment and
// the value receives the outcome.
func (s *Socket) Emit(event Event, data ...Data) error {
	if n := len(data); n > 0 {
		if a, ok := data[n-1].(cabk.Ack); ok {
			return s.EmitWithAck(event, a, data[:n-1]...)
		}
	}
	if isReserved(event) {
		return ErrReservedEvent.F(event)
	}
	return s.send(&siop.Packet{Type: siop.EventPacket, Namespace: s.ns.wire, Event: event, Data: data})
}

// EmitWithAck sends an event that the client must acknowledge. Exactly one
// of a.OnSuccess and a.OnTimeout runs, unless the session goes away first.
func (s *Socket) EmitWithAck(event Event, a cabk.Ack, data ...Data) error {
	if isReserved(event) {
		return ErrReservedEvent.F(event)
	}
	pac := &siop.Packet{Type: siop.EventPacket, Namespace: s.ns.wire, Event: event, Data: data}
	return s.emitAck(pac, a, s.svr.timeoutFor(a))
}

// emitAck registers a then sends pac with the new ack id. When the send
// fails the ack is withdrawn and, for a Dropper, reported dropped.
func (s *Socket) emitAck(pac *siop.Packet, a cabk.Ack, timeout time.Duration) error {
	owner := string(s.c.sess.ID)
	id := s.svr.acks.Register(owner, countedAck{Ack: a, timeouts: s.svr.metrics.ackTimeouts}, timeout)

	p := *pac
	p.AckID = &id
	if err := s.send(&p); err != nil {
		if s.svr.acks.Cancel(owner, id) {
			if d, ok := a.(ack.Dropper); ok {
				d.OnDrop()
			}
		}
		return err
	}
	return nil
}

func (s *Socket) send(pac *siop.Packet) error {
	if !s.Connected() {
		return ErrNotConnected.F(s.ns.name)
	}
	if err := s.c.send(pac); err != nil {
		return ErrEmitFailed.F(pac.Event, err)
	}
	return nil
}

// Disconnect leaves the namespace. With close set the whole engine session
// is closed, taking every other namespace of the client with it.
func (s *Socket) Disconnect(close bool) {
	if close {
		s.c.sess.Close(ErrServerDisconnect)
		return
	}
	if s.c.unbind(s.ns.name) != s {
		return
	}
	s.c.send(&siop.Packet{Type: siop.DisconnectPacket, Namespace: s.ns.wire})
	s.teardown(ErrServerNamespaceDisconnect)
}

// To broadcasts to rooms, leaving this socket out.
func (s *Socket) To(rooms ...Room) BroadcastOperator { return s.Broadcast().To(rooms...) }

// In is To.
func (s *Socket) In(rooms ...Room) BroadcastOperator { return s.Broadcast().In(rooms...) }

func (s *Socket) Except(rooms ...Room) BroadcastOperator { return s.Broadcast().Except(rooms...) }

// Broadcast targets every other socket of the namespace.
func (s *Socket) Broadcast() BroadcastOperator {
	return s.ns.broadcast().Except(Room(s.id))
}

// teardown runs once per socket: it leaves every room, then the disconnect
// handlers run.
func (s *Socket) teardown(reason error) {
	if !s.release() {
		return
	}

	s.μ.RLock()
	fn := s.onDisconnect
	s.μ.RUnlock()
	if fn != nil {
		s.ns.guard(s, "disconnect", func() { fn(reason) })
	}
	s.ns.disconnected(s, reason)
}

// release removes the socket from its namespace and rooms without running
// any handler. It reports whether this call did it.
func (s *Socket) release() bool {
	if !s.connected.CompareAndSwap(true, false) {
		return false
	}
	s.ns.remove(s)
	return true
}

// countedAck counts timeouts on the way to the wrapped ack.
type countedAck struct {
	cabk.Ack
	timeouts prometheus.Counter
}

func (a countedAck) OnTimeout() {
	a.timeouts.Inc()
	a.Ack.OnTimeout()
}

func (a countedAck) OnDrop() {
	if d, ok := a.Ack.(ack.Dropper); ok {
		d.OnDrop()
	}
}
