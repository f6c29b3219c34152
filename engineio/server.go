// Package engineio is the Engine.IO session layer: the HTTP entry point,
// handshakes, the per-session state machine, heartbeats and transport
// upgrades. What a session's packets mean is up to the Listener.
package engineio

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	eiop "github.com/relaymesh/socketio/engineio/protocol"
	eios "github.com/relaymesh/socketio/engineio/session"
	eiot "github.com/relaymesh/socketio/engineio/transport"
	"github.com/relaymesh/socketio/scheduler"
)

type SessionID = eios.ID

// Listener drives the protocol above the engine. OnPacket is called from one
// goroutine per connection, in arrival order, with the transport the packet
// came from.
type Listener interface {
	OnOpen(*Session)
	OnPacket(*Session, eiot.Transporter, eiop.Packet)
	OnClose(*Session, error)
}

type Server struct {
	path             string
	pingInterval     time.Duration
	pingTimeout      time.Duration
	upgradeTimeout   time.Duration
	firstDataTimeout time.Duration
	maxPayload       int64
	transports       []eiot.Name
	allowUpgrades    bool
	allowedOrigins   []string
	compress         bool
	generateID       func() SessionID

	onError func(*Session, error)
	onSend  func(*Session, eiop.Packet)

	sched    *scheduler.Scheduler
	ownSched bool
	sessions *sessions
	listener Listener
	log      *slog.Logger
}

func NewServer(listener Listener, opts ...Option) *Server {
	svr := &Server{
		path:             "/engine.io/",
		pingInterval:     25 * time.Second,
		pingTimeout:      20 * time.Second,
		upgradeTimeout:   10 * time.Second,
		firstDataTimeout: 5 * time.Second,
		maxPayload:       1e6,
		transports:       []eiot.Name{eiot.Polling, eiot.Websocket},
		allowUpgrades:    true,
		generateID:       eios.GenerateID,
		sessions:         newSessions(),
		listener:         listener,
	}
	svr.With(opts...)

	svr.path = "/" + strings.Trim(svr.path, "/") + "/"
	if svr.path == "//" {
		svr.path = "/"
	}
	if svr.log == nil {
		svr.log = slog.Default()
	}
	svr.log = svr.log.With("component", "engineio")
	if svr.sched == nil {
		svr.sched, svr.ownSched = scheduler.New(), true
	}
	return svr
}

func (svr *Server) With(opts ...Option) {
	for _, opt := range opts {
		opt(svr)
	}
}

func (svr *Server) Path() string                    { return svr.path }
func (svr *Server) Scheduler() *scheduler.Scheduler { return svr.sched }
func (svr *Server) Len() int                        { return svr.sessions.len() }

func (svr *Server) Session(id SessionID) (*Session, bool) { return svr.sessions.get(id) }

// Close ends every session and stops the scheduler if the server made it.
func (svr *Server) Close() {
	for _, sess := range svr.sessions.all() {
		sess.Close(ErrServerShutdown)
	}
	if svr.ownSched {
		svr.sched.Close()
	}
}

func (svr *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, svr.path) && r.URL.Path+"/" != svr.path {
		http.NotFound(w, r)
		return
	}

	origin := r.Header.Get("Origin")
	if !svr.originAllowed(origin) {
		svr.reject(w, r, ErrForbidden)
		return
	}
	if origin != "" {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
	}
	if r.Method == http.MethodOptions {
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.WriteHeader(http.StatusNoContent)
		return
	}

	query := r.URL.Query()
	v, err := eiop.ParseVersion(query.Get("EIO"))
	if err != nil {
		svr.reject(w, r, ErrUnsupportedVersion)
		return
	}

	name := eiot.Name(query.Get("transport"))
	if !svr.enabled(name) {
		svr.reject(w, r, ErrUnknownTransport)
		return
	}

	sid := SessionID(query.Get("sid"))
	if sid == "" {
		svr.handshake(w, r, v, name)
		return
	}

	sess, ok := svr.sessions.get(sid)
	if !ok {
		svr.reject(w, r, ErrUnknownSessionID)
		return
	}
	if sess.Version != v {
		svr.reject(w, r, ErrBadRequest)
		return
	}
	svr.serve(w, r, sess, name)
}

func (svr *Server) handshake(w http.ResponseWriter, r *http.Request, v eiop.Version, name eiot.Name) {
	if r.Method != http.MethodGet {
		svr.reject(w, r, ErrBadHandshakeMethod)
		return
	}

	var sess *Session
	for sess == nil {
		sess = newSession(svr, svr.generateID(), v, r)
		if !svr.sessions.add(sess) {
			sess = nil
		}
	}

	cfg := svr.transportConfig(sess)
	switch name {
	case eiot.Polling:
		sess.current = eiot.NewPollingTransport(sess.ID, cfg)
	case eiot.Websocket:
		sess.current = eiot.NewWebsocketTransport(sess.ID, cfg)
	default:
		svr.sessions.remove(sess.ID)
		svr.reject(w, r, ErrUnknownTransport)
		return
	}

	hs := v.Handshake(string(sess.ID), svr.upgrades(name), svr.pingInterval, svr.pingTimeout, int(svr.maxPayload))
	sess.Send(eiop.Packet{T: eiop.OpenPacket, D: hs})
	sess.log.Debug("handshake", "transport", name, "eio", int(v))

	svr.opened(sess)
	sess.startHeartbeat()

	switch t := sess.current.(type) {
	case *eiot.PollingTransport:
		sess.schedule(taskFirstData, svr.firstDataTimeout, func() {
			if sess.State() == Handshaking {
				sess.Close(ErrFirstDataTimeout)
			}
		})
		if err := t.Flush(w, r); err != nil {
			svr.report(sess, err)
		}
	case *eiot.WebsocketTransport:
		sess.touch()
		t.ServeHTTP(w, r)
	}
}

func (svr *Server) serve(w http.ResponseWriter, r *http.Request, sess *Session, name eiot.Name) {
	sess.touch()
	cur := sess.Transport()

	switch {
	case name == cur.Name() && name == eiot.Polling:
		cur.ServeHTTP(w, r)
	case name == eiot.Websocket && cur.Name() == eiot.Polling && svr.allowUpgrades:
		t := eiot.NewWebsocketTransport(sess.ID, svr.transportConfig(sess))
		if err := sess.beginUpgrade(t); err != nil {
			svr.report(sess, err)
			svr.reject(w, r, ErrBadRequest)
			return
		}
		t.ServeHTTP(w, r)
	default:
		svr.reject(w, r, ErrBadRequest)
	}
}

func (svr *Server) transportConfig(sess *Session) eiot.Config {
	return eiot.Config{
		Version:     sess.Version,
		MaxPayload:  svr.maxPayload,
		PollTimeout: svr.pingInterval,
		Compress:    svr.compress,
		Receive:     sess.receive,
		OnError:     sess.onError,
		OnClose:     sess.onTransportClose,
		Logger:      sess.log,
	}
}

func (svr *Server) enabled(name eiot.Name) bool {
	for _, n := range svr.transports {
		if n == name {
			return true
		}
	}
	return false
}

func (svr *Server) upgrades(from eiot.Name) []string {
	if !svr.allowUpgrades || from != eiot.Polling || !svr.enabled(eiot.Websocket) {
		return nil
	}
	return []string{eiot.Websocket.String()}
}

func (svr *Server) originAllowed(origin string) bool {
	if origin == "" || len(svr.allowedOrigins) == 0 {
		return true
	}
	for _, o := range svr.allowedOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

func (svr *Server) reject(w http.ResponseWriter, r *http.Request, e httpError) {
	svr.log.Debug("request rejected", "code", e.code, "err", e, "method", r.Method, "query", r.URL.RawQuery)
	e.write(w)
}

func (svr *Server) report(sess *Session, err error) {
	if svr.onError != nil {
		svr.onError(sess, err)
		return
	}
	log := svr.log
	if sess != nil {
		log = sess.log
	}
	log.Warn("engine error", "err", err)
}

func (svr *Server) opened(sess *Session) {
	defer svr.recoverListener(sess)
	svr.listener.OnOpen(sess)
}

func (svr *Server) dispatch(sess *Session, t eiot.Transporter, pac eiop.Packet) {
	defer svr.recoverListener(sess)
	svr.listener.OnPacket(sess, t, pac)
}

func (svr *Server) closed(sess *Session, reason error) {
	defer svr.recoverListener(sess)
	svr.listener.OnClose(sess, reason)
}

func (svr *Server) recoverListener(sess *Session) {
	if r := recover(); r != nil {
		svr.report(sess, ErrListenerPanic.F(fmt.Sprint(r)))
	}
}
