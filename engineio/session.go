package engineio

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	eiop "github.com/relaymesh/socketio/engineio/protocol"
	eiot "github.com/relaymesh/socketio/engineio/transport"
	"github.com/relaymesh/socketio/scheduler"
)

type State int32

const (
	Handshaking State = iota
	Open
	Upgrading
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case Handshaking:
		return "handshaking"
	case Open:
		return "open"
	case Upgrading:
		return "upgrading"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// scheduler task names; the owner is the session id
const (
	taskPing        = "ping"
	taskPingTimeout = "ping-timeout"
	taskUpgrade     = "upgrade"
	taskFirstData   = "first-data"
)

// Session is one Engine.IO client. It outlives the HTTP requests and the
// websocket connections that carry it.
type Session struct {
	ID      SessionID
	Version eiop.Version

	query      url.Values
	header     http.Header
	remoteAddr string

	svr      *Server
	log      *slog.Logger
	state    atomic.Int32
	lastSeen atomic.Int64

	// μ orders sends against a transport swap and scheduling against
	// teardown.
	μ       sync.Mutex
	current eiot.Transporter
	probe   eiot.Transporter

	closeOnce sync.Once
	reason    error
	done      chan struct{}
}

func newSession(svr *Server, id SessionID, v eiop.Version, r *http.Request) *Session {
	s := &Session{
		ID:         id,
		Version:    v,
		query:      r.URL.Query(),
		header:     r.Header.Clone(),
		remoteAddr: r.RemoteAddr,
		svr:        svr,
		log:        svr.log.With("sid", id),
		done:       make(chan struct{}),
	}
	s.lastSeen.Store(time.Now().UnixNano())
	return s
}

func (s *Session) State() State          { return State(s.state.Load()) }
func (s *Session) Query() url.Values     { return s.query }
func (s *Session) Header() http.Header   { return s.header }
func (s *Session) RemoteAddr() string    { return s.remoteAddr }
func (s *Session) Logger() *slog.Logger  { return s.log }
func (s *Session) Done() <-chan struct{} { return s.done }
func (s *Session) LastSeen() time.Time   { return time.Unix(0, s.lastSeen.Load()) }

// Err returns why the session closed, once Done is closed.
func (s *Session) Err() error {
	select {
	case <-s.done:
		return s.reason
	default:
		return nil
	}
}

// Transport returns the transport packets are currently sent on.
func (s *Session) Transport() eiot.Transporter {
	s.μ.Lock()
	defer s.μ.Unlock()
	return s.current
}

// Send queues packets on the current transport, in order.
func (s *Session) Send(packets ...eiop.Packet) error {
	if s.State() >= Closing {
		return ErrSessionClosed.KV("sid", s.ID)
	}
	s.μ.Lock()
	err := s.current.Send(packets...)
	s.μ.Unlock()
	if err != nil {
		return ErrSessionClosed.KV("sid", s.ID)
	}

	if s.svr.onSend != nil {
		for _, pac := range packets {
			s.svr.onSend(s, pac)
		}
	}
	return nil
}

func (s *Session) key(name string) scheduler.Key {
	return scheduler.Key{Owner: string(s.ID), Name: name}
}

// schedule arms a session task unless teardown has begun.
func (s *Session) schedule(name string, d time.Duration, fn func()) {
	s.μ.Lock()
	defer s.μ.Unlock()
	if s.State() >= Closing {
		return
	}
	s.svr.sched.Schedule(s.key(name), d, fn)
}

// Heartbeat records client liveness and pushes the ping deadline out to one
// ping interval plus the ping timeout from now.
func (s *Session) Heartbeat() {
	s.lastSeen.Store(time.Now().UnixNano())
	s.schedule(taskPingTimeout, s.svr.pingInterval+s.svr.pingTimeout, func() {
		s.log.Debug("ping timeout", "last_seen", s.LastSeen())
		s.Close(ErrPingTimeout)
	})
}

// startHeartbeat arms the liveness deadline. EIO4 servers also ping.
func (s *Session) startHeartbeat() {
	s.Heartbeat()
	if s.Version >= eiop.EIO4 {
		s.schedule(taskPing, s.svr.pingInterval, s.ping)
	}
}

func (s *Session) ping() {
	if err := s.Send(eiop.Packet{T: eiop.PingPacket}); err != nil {
		return
	}
	s.schedule(taskPing, s.svr.pingInterval, s.ping)
}

// Pong answers a PING on the transport it arrived on.
func (s *Session) Pong(t eiot.Transporter, data interface{}) error {
	return t.Send(eiop.Packet{T: eiop.PongPacket, D: data})
}

// Probe answers an upgrade probe on the probing transport t and queues a
// NOOP on the current transport, which releases a waiting poll so the client
// can finish the upgrade.
func (s *Session) Probe(t eiot.Transporter, data interface{}) error {
	if err := s.Pong(t, data); err != nil {
		return err
	}
	if cur := s.Transport(); cur != t {
		return cur.Send(eiop.Packet{T: eiop.NoopPacket})
	}
	return nil
}

// touch marks client activity. The first activity after a polling handshake
// opens the session.
func (s *Session) touch() {
	s.lastSeen.Store(time.Now().UnixNano())
	if s.state.CompareAndSwap(int32(Handshaking), int32(Open)) {
		s.svr.sched.Cancel(s.key(taskFirstData))
	}
}

func (s *Session) beginUpgrade(t eiot.Transporter) error {
	s.μ.Lock()
	defer s.μ.Unlock()

	if s.probe != nil || s.current.Name() == t.Name() ||
		!s.state.CompareAndSwap(int32(Open), int32(Upgrading)) {
		return ErrUpgradeRejected.F(t.Name()).KV("sid", s.ID, "state", s.State())
	}
	s.probe = t
	s.svr.sched.Schedule(s.key(taskUpgrade), s.svr.upgradeTimeout, func() {
		s.abortUpgrade(t, ErrUpgradeTimeout)
	})
	return nil
}

func (s *Session) abortUpgrade(t eiot.Transporter, reason error) {
	s.μ.Lock()
	if s.probe == t {
		s.probe = nil
		s.state.CompareAndSwap(int32(Upgrading), int32(Open))
		s.svr.sched.Cancel(s.key(taskUpgrade))
	}
	s.μ.Unlock()

	s.log.Debug("upgrade aborted", "transport", t.Name(), "reason", reason)
	t.Close()
}

// Upgrade makes the probing transport t current. Packets still queued on the
// old transport move to t ahead of anything sent afterwards, then the old
// transport is closed.
func (s *Session) Upgrade(t eiot.Transporter) error {
	s.μ.Lock()
	if s.probe != t {
		s.μ.Unlock()
		return ErrUpgradeRejected.F(t.Name()).KV("sid", s.ID)
	}
	s.svr.sched.Cancel(s.key(taskUpgrade))

	old := s.current
	s.current, s.probe = t, nil
	err := t.Send(old.Queue().Drain()...)
	s.state.CompareAndSwap(int32(Upgrading), int32(Open))
	s.μ.Unlock()

	old.Close()
	s.log.Debug("upgraded", "from", old.Name(), "to", t.Name())
	return err
}

// Close tears the session down once: every task it owns is cancelled, it
// leaves the registry, the listener is told, then its transports close.
// Unless the client is the one who closed, it is sent a CLOSE packet first.
func (s *Session) Close(reason error) {
	s.closeOnce.Do(func() {
		s.μ.Lock()
		s.state.Store(int32(Closing))
		cur, probe := s.current, s.probe
		s.probe = nil
		s.μ.Unlock()

		s.svr.sched.CancelOwner(string(s.ID))
		s.svr.sessions.remove(s.ID)
		s.svr.closed(s, reason)

		if !clientClosed(reason) {
			cur.Send(eiop.Packet{T: eiop.ClosePacket})
		}
		cur.Close()
		if probe != nil {
			probe.Close()
		}

		s.reason = reason
		s.state.Store(int32(Closed))
		close(s.done)
		s.log.Debug("session closed", "reason", reason)
	})
}

func (s *Session) receive(t eiot.Transporter, pac eiop.Packet) {
	s.touch()
	s.svr.dispatch(s, t, pac)
}

func (s *Session) onError(t eiot.Transporter, err error) {
	s.svr.report(s, err)
	if eiop.IsFatal(err) || errors.Is(err, eiot.ErrPayloadTooLarge) {
		s.Close(ErrParseError.F(err))
	}
}

func (s *Session) onTransportClose(t eiot.Transporter, err error) {
	s.μ.Lock()
	current, probing := s.current == t, s.probe == t
	s.μ.Unlock()

	switch {
	case current:
		s.Close(err)
	case probing:
		s.abortUpgrade(t, err)
	}
}
