package socketio

import (
	"context"
	"sync"
	"time"

	"github.com/relaymesh/socketio/adaptor/pubsub"
	siop "github.com/relaymesh/socketio/protocol"
	siot "github.com/relaymesh/socketio/transport"
)

// BroadcastOperator selects sockets of a namespace by room. It is a value:
// every method returns a changed copy.
//
// With no rooms every socket of the namespace is targeted. A socket that is
// in several targeted rooms receives the packet once.
type BroadcastOperator struct {
	svr     *Server
	ns      *Namespace
	rooms   []Room
	except  []Room
	local   bool
	timeout time.Duration
	skip    func(*Socket) bool
}

// BroadcastReply is the outcome of one recipient of EmitWithAck.
type BroadcastReply struct {
	Socket SocketID
	Data   []interface{}
	Err    error
}

func (b BroadcastOperator) To(rooms ...Room) BroadcastOperator {
	b.rooms = append(b.rooms[:len(b.rooms):len(b.rooms)], rooms...)
	return b
}

func (b BroadcastOperator) In(rooms ...Room) BroadcastOperator { return b.To(rooms...) }

func (b BroadcastOperator) Except(rooms ...Room) BroadcastOperator {
	b.except = append(b.except[:len(b.except):len(b.except)], rooms...)
	return b
}

// ExceptFunc leaves out the sockets fn returns true for. Other nodes cannot
// run fn, so the broadcast stays on this node.
func (b BroadcastOperator) ExceptFunc(fn func(*Socket) bool) BroadcastOperator {
	b.skip, b.local = fn, true
	return b
}

// Local keeps the broadcast on this node.
func (b BroadcastOperator) Local() BroadcastOperator {
	b.local = true
	return b
}

// Timeout overrides the ack timeout of EmitWithAck.
func (b BroadcastOperator) Timeout(d time.Duration) BroadcastOperator {
	b.timeout = d
	return b
}

// Sockets returns the targeted sockets of this node.
func (b BroadcastOperator) Sockets() []*Socket {
	ids := b.svr.rooms.Select(b.ns.name, b.rooms, b.except)
	out := make([]*Socket, 0, len(ids))
	for _, id := range ids {
		sock := b.ns.socket(id)
		if sock == nil || (b.skip != nil && b.skip(sock)) {
			continue
		}
		out = append(out, sock)
	}
	return out
}

// DisconnectSockets disconnects the targeted sockets of this node.
func (b BroadcastOperator) DisconnectSockets(close bool) {
	for _, sock := range b.Sockets() {
		sock.Disconnect(close)
	}
}

// Emit sends an event to every targeted socket. The packet is encoded once
// for all of them. A recipient that goes away meanwhile is skipped.
func (b BroadcastOperator) Emit(event Event, data ...Data) error {
	if isReserved(event) {
		return ErrReservedEvent.F(event)
	}
	pac := &siop.Packet{Type: siop.EventPacket, Namespace: b.ns.wire, Event: event, Data: data}
	b.svr.metrics.broadcasts.Inc()

	if err := b.deliver(pac); err != nil {
		return err
	}
	return b.publish(pac)
}

func (b BroadcastOperator) deliver(pac *siop.Packet) error {
	frames, err := b.svr.parser.Encode(pac)
	if err != nil {
		return ErrEmitFailed.F(pac.Event, err)
	}
	msgs := siot.Messages(frames)

	for _, sock := range b.Sockets() {
		if !sock.Connected() {
			continue
		}
		sock.c.sess.Send(msgs...)
	}
	return nil
}

func (b BroadcastOperator) publish(pac *siop.Packet) error {
	if b.local || b.svr.adapter == nil {
		return nil
	}
	env := pubsub.Envelope{
		Nsp:    b.ns.name,
		Rooms:  b.rooms,
		Except: b.except,
		Packet: pubsub.Message{Type: byte(pac.Type), Event: pac.Event, Data: pac.Data},
	}
	if err := b.svr.adapter.Publish(context.Background(), env); err != nil {
		return ErrPublishFailed.F(err)
	}
	return nil
}

// deliverRemote hands a broadcast from another node to the local sockets.
func (svr *Server) deliverRemote(env pubsub.Envelope) {
	ns, ok := svr.namespace(env.Nsp)
	if !ok {
		return
	}
	pac := &siop.Packet{
		Type:      siop.PacketType(env.Packet.Type),
		Namespace: ns.wire,
		Event:     env.Packet.Event,
		Data:      env.Packet.Data,
	}
	b := BroadcastOperator{svr: svr, ns: ns, rooms: env.Rooms, except: env.Except, local: true}
	if err := b.deliver(pac); err != nil {
		svr.report(ErrorContext{Namespace: ns.name, Event: pac.Event}, err)
	}
}

// EmitWithAck sends an event to every targeted socket of this node and asks
// each for an acknowledgment. done runs once, with one reply per recipient,
// after every recipient has answered, timed out or gone away. It runs even
// when nobody was targeted.
func (b BroadcastOperator) EmitWithAck(event Event, done func([]BroadcastReply), data ...Data) error {
	if isReserved(event) {
		return ErrReservedEvent.F(event)
	}
	pac := &siop.Packet{Type: siop.EventPacket, Namespace: b.ns.wire, Event: event, Data: data}
	b.svr.metrics.broadcasts.Inc()

	timeout := b.timeout
	if timeout <= 0 {
		timeout = b.svr.ackTimeout
	}

	agg := &broadcastAck{done: done}
	for _, sock := range b.Sockets() {
		agg.add()
		// a failed send withdraws the ack and reports it dropped
		sock.emitAck(pac, recipientAck{agg: agg, id: sock.id}, timeout)
	}
	agg.finish()
	return nil
}

// broadcastAck fires done once the fan-out loop has finished and no
// recipient is pending, whichever of the two comes last.
type broadcastAck struct {
	done func([]BroadcastReply)

	μ        sync.Mutex
	pending  int
	loopDone bool
	fired    bool
	replies  []BroadcastReply
}

func (a *broadcastAck) add() {
	a.μ.Lock()
	a.pending++
	a.μ.Unlock()
}

func (a *broadcastAck) reply(r BroadcastReply) {
	a.μ.Lock()
	a.pending--
	a.replies = append(a.replies, r)
	a.fire()
}

func (a *broadcastAck) finish() {
	a.μ.Lock()
	a.loopDone = true
	a.fire()
}

// fire is called with μ held and releases it.
func (a *broadcastAck) fire() {
	if a.fired || !a.loopDone || a.pending > 0 {
		a.μ.Unlock()
		return
	}
	a.fired = true
	replies := a.replies
	a.μ.Unlock()

	if a.done != nil {
		a.done(replies)
	}
}

// recipientAck feeds one recipient's outcome to the aggregate.
type recipientAck struct {
	agg *broadcastAck
	id  SocketID
}

func (r recipientAck) OnSuccess(v ...interface{}) {
	r.agg.reply(BroadcastReply{Socket: r.id, Data: v})
}

func (r recipientAck) OnTimeout() {
	r.agg.reply(BroadcastReply{Socket: r.id, Err: ErrAckTimeout})
}

func (r recipientAck) OnDrop() {
	r.agg.reply(BroadcastReply{Socket: r.id, Err: ErrSessionGone})
}
