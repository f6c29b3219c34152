package socketio

import (
	"sync"
	"time"

	cabk "github.com/relaymesh/socketio/callback"
	siop "github.com/relaymesh/socketio/protocol"
)

// Namespace is a named channel multiplexed over the engine sessions. Handlers
// are meant to be set up before clients connect, but may change at any time.
type Namespace struct {
	name string
	wire string
	svr  *Server

	μ            sync.RWMutex
	sockets      map[SocketID]*Socket
	events       map[Event]cabk.EventCallback
	onConnect    func(*Socket) error
	onDisconnect func(*Socket, error)
	onPing       func(*Socket)
	onPong       func(*Socket)
	authorize    func(*Socket, map[string]interface{}) error
}

func newNamespace(svr *Server, name string) *Namespace {
	return &Namespace{
		name:    name,
		wire:    siop.NormalizeNamespace(name),
		svr:     svr,
		sockets: make(map[SocketID]*Socket),
		events:  make(map[Event]cabk.EventCallback),
	}
}

func (ns *Namespace) Name() string { return ns.name }

// OnConnect runs for each socket once its CONNECT has been accepted.
func (ns *Namespace) OnConnect(fn func(*Socket) error) {
	ns.μ.Lock()
	defer ns.μ.Unlock()
	ns.onConnect = fn
}

// OnDisconnect runs once per socket with the reason it went away.
func (ns *Namespace) OnDisconnect(fn func(*Socket, error)) {
	ns.μ.Lock()
	defer ns.μ.Unlock()
	ns.onDisconnect = fn
}

func (ns *Namespace) OnPing(fn func(*Socket)) {
	ns.μ.Lock()
	defer ns.μ.Unlock()
	ns.onPing = fn
}

func (ns *Namespace) OnPong(fn func(*Socket)) {
	ns.μ.Lock()
	defer ns.μ.Unlock()
	ns.onPong = fn
}

// Authorize gates CONNECT. The auth object the client sent, if any, is
// passed along; a non-nil error refuses the connection and is sent to the
// client as the reason.
func (ns *Namespace) Authorize(fn func(sock *Socket, auth map[string]interface{}) error) {
	ns.μ.Lock()
	defer ns.μ.Unlock()
	ns.authorize = fn
}

// On handles event for every socket of the namespace. A handler set with
// Socket.On takes precedence.
func (ns *Namespace) On(event Event, callback cabk.EventCallback) {
	if isReserved(event) {
		callback = cabk.ErrorWrap(func() error { return ErrReservedEvent.F(event) })
	}
	ns.μ.Lock()
	defer ns.μ.Unlock()
	ns.events[event] = callback
}

func (ns *Namespace) handler(event Event) cabk.EventCallback {
	ns.μ.RLock()
	defer ns.μ.RUnlock()
	return ns.events[event]
}

// Sockets returns the sockets connected to the namespace on this node.
func (ns *Namespace) Sockets() []*Socket {
	ns.μ.RLock()
	defer ns.μ.RUnlock()
	out := make([]*Socket, 0, len(ns.sockets))
	for _, sock := range ns.sockets {
		out = append(out, sock)
	}
	return out
}

func (ns *Namespace) socket(id SocketID) *Socket {
	ns.μ.RLock()
	defer ns.μ.RUnlock()
	return ns.sockets[id]
}

// Emit sends an event to every socket of the namespace.
func (ns *Namespace) Emit(event Event, data ...Data) error { return ns.broadcast().Emit(event, data...) }

func (ns *Namespace) To(rooms ...Room) BroadcastOperator     { return ns.broadcast().To(rooms...) }
func (ns *Namespace) In(rooms ...Room) BroadcastOperator     { return ns.broadcast().In(rooms...) }
func (ns *Namespace) Except(rooms ...Room) BroadcastOperator { return ns.broadcast().Except(rooms...) }
func (ns *Namespace) Local() BroadcastOperator               { return ns.broadcast().Local() }

func (ns *Namespace) Timeout(d time.Duration) BroadcastOperator { return ns.broadcast().Timeout(d) }

// ExceptFunc leaves out the sockets fn returns true for. The broadcast stays
// on this node.
func (ns *Namespace) ExceptFunc(fn func(*Socket) bool) BroadcastOperator {
	return ns.broadcast().ExceptFunc(fn)
}

func (ns *Namespace) broadcast() BroadcastOperator { return BroadcastOperator{svr: ns.svr, ns: ns} }

func (ns *Namespace) add(sock *Socket) {
	ns.μ.Lock()
	ns.sockets[sock.id] = sock
	ns.μ.Unlock()

	ns.svr.rooms.Add(ns.name, sock.id)
	ns.svr.rooms.Join(ns.name, sock.id, Room(sock.id))
}

func (ns *Namespace) remove(sock *Socket) {
	ns.μ.Lock()
	if ns.sockets[sock.id] == sock {
		delete(ns.sockets, sock.id)
	}
	ns.μ.Unlock()

	ns.svr.rooms.Remove(ns.name, sock.id)
}

func (ns *Namespace) authorized(sock *Socket, pac *siop.Packet) error {
	ns.μ.RLock()
	fn := ns.authorize
	ns.μ.RUnlock()
	if fn == nil {
		return nil
	}

	var auth map[string]interface{}
	if len(pac.Data) > 0 {
		auth, _ = pac.Data[0].(map[string]interface{})
	}
	return fn(sock, auth)
}

func (ns *Namespace) connected(sock *Socket) error {
	ns.μ.RLock()
	fn := ns.onConnect
	ns.μ.RUnlock()
	if fn == nil {
		return nil
	}
	return cabk.Invoke(cabk.ErrorWrap(func() error { return fn(sock) }))
}

func (ns *Namespace) disconnected(sock *Socket, reason error) {
	ns.μ.RLock()
	fn := ns.onDisconnect
	ns.μ.RUnlock()
	if fn == nil {
		return
	}
	ns.guard(sock, "disconnect", func() { fn(sock, reason) })
}

func (ns *Namespace) pinged(sock *Socket) {
	ns.μ.RLock()
	fn := ns.onPing
	ns.μ.RUnlock()
	if fn != nil {
		ns.guard(sock, "ping", func() { fn(sock) })
	}
}

func (ns *Namespace) ponged(sock *Socket) {
	ns.μ.RLock()
	fn := ns.onPong
	ns.μ.RUnlock()
	if fn != nil {
		ns.guard(sock, "pong", func() { fn(sock) })
	}
}

// guard runs a handler that returns nothing and reports its panic.
func (ns *Namespace) guard(sock *Socket, event Event, fn func()) {
	err := cabk.Invoke(cabk.ErrorWrap(func() error { fn(); return nil }))
	if err != nil {
		ns.svr.report(ErrorContext{SessionID: sock.SessionID(), Namespace: ns.name, Event: event}, ErrHandlerFailed.F(event, err))
	}
}
