package socketio

import (
	"sync"

	cabk "github.com/relaymesh/socketio/callback"
	eio "github.com/relaymesh/socketio/engineio"
	eiop "github.com/relaymesh/socketio/engineio/protocol"
	eiot "github.com/relaymesh/socketio/engineio/transport"
	siop "github.com/relaymesh/socketio/protocol"
	sios "github.com/relaymesh/socketio/session"
	siot "github.com/relaymesh/socketio/transport"
)

// conn is the socket side of one engine session: its packet bridge and the
// sockets it holds, one per connected namespace.
type conn struct {
	sess *eio.Session
	tr   *siot.Transport
	req  *Request

	μ       sync.Mutex
	sockets map[string]*Socket
}

func (c *conn) socket(nsp string) *Socket {
	c.μ.Lock()
	defer c.μ.Unlock()
	return c.sockets[nsp]
}

// bind stores sock unless its namespace is already connected.
func (c *conn) bind(sock *Socket) bool {
	c.μ.Lock()
	defer c.μ.Unlock()
	if _, ok := c.sockets[sock.ns.name]; ok {
		return false
	}
	c.sockets[sock.ns.name] = sock
	return true
}

func (c *conn) unbind(nsp string) *Socket {
	c.μ.Lock()
	defer c.μ.Unlock()
	sock := c.sockets[nsp]
	delete(c.sockets, nsp)
	return sock
}

func (c *conn) all() []*Socket {
	c.μ.Lock()
	defer c.μ.Unlock()
	out := make([]*Socket, 0, len(c.sockets))
	for _, sock := range c.sockets {
		out = append(out, sock)
	}
	return out
}

func (c *conn) send(pac *siop.Packet) error { return c.tr.Send(pac) }

// listener drives the socket protocol on top of the engine sessions.
type listener struct{ svr *Server }

func (l listener) OnOpen(sess *eio.Session) {
	svr := l.svr
	c := &conn{
		sess:    sess,
		tr:      siot.NewTransport(sess, svr.parser),
		req:     newRequest(sess),
		sockets: make(map[string]*Socket),
	}
	svr.conns.Store(sess.ID, c)
	svr.metrics.sessionsActive.Inc()
	svr.metrics.sessionsTotal.Inc()

	// legacy clients are connected to the root namespace without asking
	if sess.Version < eiop.EIO4 {
		if err := svr.connect(c, &siop.Packet{Type: siop.ConnectPacket}); err != nil {
			svr.report(ErrorContext{SessionID: sess.ID, Namespace: RootNamespace}, err)
		}
	}
}

func (l listener) OnPacket(sess *eio.Session, t eiot.Transporter, pac eiop.Packet) {
	svr := l.svr
	c, ok := svr.conn(sess.ID)
	if !ok {
		return
	}
	svr.metrics.received.WithLabelValues(pac.T.String()).Inc()

	switch pac.T {
	case eiop.PingPacket:
		if pac.D == eiop.Probe {
			sess.Probe(t, pac.D)
			return
		}
		sess.Pong(t, pac.D)
		sess.Heartbeat()
		for _, sock := range c.all() {
			sock.ns.pinged(sock)
		}
	case eiop.PongPacket:
		sess.Heartbeat()
		for _, sock := range c.all() {
			sock.ns.ponged(sock)
		}
	case eiop.UpgradePacket:
		if err := sess.Upgrade(t); err != nil {
			svr.report(ErrorContext{SessionID: sess.ID}, err)
		}
	case eiop.ClosePacket:
		sess.Close(eio.ErrTransportClose)
	case eiop.MessagePacket:
		svr.receive(c, pac)
	}
}

func (l listener) OnClose(sess *eio.Session, reason error) {
	svr := l.svr
	v, ok := svr.conns.LoadAndDelete(sess.ID)
	if !ok {
		return
	}
	c := v.(*conn)

	svr.acks.OnSessionDestroyed(string(sess.ID))
	for _, sock := range c.all() {
		c.unbind(sock.ns.name)
		sock.teardown(reason)
	}
	svr.metrics.sessionsActive.Dec()
}

func (svr *Server) receive(c *conn, msg eiop.Packet) {
	pac, err := c.tr.Receive(msg)
	if err != nil {
		svr.metrics.decodeErrors.Inc()
		svr.report(ErrorContext{SessionID: c.sess.ID}, ErrDecodeFailed.F(err))
	}
	if pac == nil {
		return // nothing yet, or waiting for attachments
	}

	span := svr.startSpan(c, pac)
	err = svr.handle(c, pac)
	endSpan(span, err)
	if err != nil {
		svr.report(ErrorContext{SessionID: c.sess.ID, Namespace: pac.Nsp(), Event: pac.Event}, err)
	}
}

func (svr *Server) handle(c *conn, pac *siop.Packet) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrHandlerFailed.F(pac.Type, eio.ErrListenerPanic.F(r))
		}
	}()

	switch pac.Type {
	case siop.ConnectPacket:
		return svr.connect(c, pac)
	case siop.DisconnectPacket:
		if sock := c.unbind(pac.Nsp()); sock != nil {
			sock.teardown(ErrClientNamespaceDisconnect)
		}
	case siop.EventPacket, siop.BinaryEventPacket:
		return svr.event(c, pac)
	case siop.AckPacket, siop.BinaryAckPacket:
		if !pac.HasAck() {
			return ErrMissingAckID.F(pac.Type)
		}
		svr.acks.Resolve(string(c.sess.ID), *pac.AckID, pac.Data...)
	case siop.ErrorPacket:
		c.sess.Logger().Debug("client error", "nsp", pac.Nsp(), "data", pac.Data)
	}
	return nil
}

// connect binds the session to a namespace. A refused binding answers with
// an ERROR packet for that namespace only.
func (svr *Server) connect(c *conn, pac *siop.Packet) error {
	ns, ok := svr.namespace(pac.Nsp())
	if !ok {
		return c.send(connectError(c, pac.Namespace, ErrInvalidNamespace))
	}
	if sock := c.socket(ns.name); sock != nil {
		return c.send(connectReply(c, pac.Namespace, sock))
	}

	sock := newSocket(svr, ns, c, socketID(c.sess, ns.name))
	if err := ns.authorized(sock, pac); err != nil {
		if serr := c.send(connectError(c, pac.Namespace, err)); serr != nil {
			return serr
		}
		return ErrConnectRejected.F(ns.name, err)
	}
	if !c.bind(sock) {
		if bound := c.socket(ns.name); bound != nil {
			return c.send(connectReply(c, pac.Namespace, bound))
		}
		return nil
	}
	ns.add(sock)

	if err := c.send(connectReply(c, pac.Namespace, sock)); err != nil {
		c.unbind(ns.name)
		sock.release()
		return err
	}
	return wrapHandler("connect", ns.connected(sock))
}

func (svr *Server) event(c *conn, pac *siop.Packet) error {
	sock := c.socket(pac.Nsp())
	if sock == nil {
		return ErrNotConnected.F(pac.Nsp())
	}
	handler := sock.handler(pac.Event)
	if handler == nil {
		return nil
	}

	if !pac.HasAck() {
		return wrapHandler(pac.Event, cabk.Invoke(handler, pac.Data...))
	}

	req := svr.acks.Request(string(c.sess.ID), *pac.AckID, func(id uint64, data []interface{}) error {
		return c.send(&siop.Packet{Type: siop.AckPacket, Namespace: pac.Namespace, AckID: &id, Data: data})
	})
	if h, ok := handler.(cabk.AckCallback); ok {
		out, err := cabk.InvokeAck(h, pac.Data...)
		if err != nil {
			return wrapHandler(pac.Event, err)
		}
		return req.Reply(out...)
	}
	return wrapHandler(pac.Event, cabk.Invoke(handler, append(pac.Data, cabk.Reply(req.Reply))...))
}

func wrapHandler(event Event, err error) error {
	if err == nil {
		return nil
	}
	return ErrHandlerFailed.F(event, err)
}

// socketID names a new socket. Legacy clients derive it from the session id;
// current ones get a fresh id per namespace.
func socketID(sess *eio.Session, nsp string) SocketID {
	if sess.Version >= eiop.EIO4 {
		return sios.GenerateID()
	}
	if nsp == RootNamespace {
		return SocketID(sess.ID)
	}
	return SocketID(sess.ID.PrefixID(nsp + "#"))
}

// connectReply acknowledges a CONNECT. Legacy clients get their packet
// echoed, current ones the id of their socket.
func connectReply(c *conn, wireNsp string, sock *Socket) *siop.Packet {
	reply := &siop.Packet{Type: siop.ConnectPacket, Namespace: wireNsp}
	if c.sess.Version >= eiop.EIO4 {
		reply.Data = []interface{}{map[string]interface{}{"sid": sock.id.String()}}
	}
	return reply
}

func connectError(c *conn, wireNsp string, err error) *siop.Packet {
	var data interface{} = err.Error()
	if c.sess.Version >= eiop.EIO4 {
		data = map[string]interface{}{"message": err.Error()}
	}
	return &siop.Packet{Type: siop.ErrorPacket, Namespace: wireNsp, Data: []interface{}{data}}
}
