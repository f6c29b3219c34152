package engineio

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	eiop "github.com/relaymesh/socketio/engineio/protocol"
	eiot "github.com/relaymesh/socketio/engineio/transport"
	"github.com/relaymesh/socketio/scheduler"
)

// echo is the smallest useful listener: engine control packets plus an echo
// of every message.
type echo struct {
	opened chan *Session
	closed chan error
}

func newEcho() *echo { return &echo{opened: make(chan *Session, 8), closed: make(chan error, 8)} }

func (l *echo) OnOpen(s *Session) { l.opened <- s }

func (l *echo) OnPacket(s *Session, t eiot.Transporter, pac eiop.Packet) {
	switch pac.T {
	case eiop.PingPacket:
		if pac.D == eiop.Probe {
			s.Probe(t, pac.D)
			return
		}
		s.Pong(t, pac.D)
		s.Heartbeat()
	case eiop.PongPacket:
		s.Heartbeat()
	case eiop.UpgradePacket:
		s.Upgrade(t)
	case eiop.ClosePacket:
		s.Close(ErrTransportClose)
	case eiop.MessagePacket:
		s.Send(pac)
	}
}

func (l *echo) OnClose(s *Session, err error) { l.closed <- err }

func (l *echo) waitClosed(t *testing.T) error {
	select {
	case err := <-l.closed:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("session did not close")
	}
	return nil
}

func request(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, target, r))
	return w
}

func handshake(t *testing.T, svr *Server, v eiop.Version) *eiop.Handshake {
	w := request(svr, http.MethodGet, "/engine.io/?transport=polling&EIO="+map[eiop.Version]string{eiop.EIO3: "3", eiop.EIO4: "4"}[v], "")
	require.Equal(t, http.StatusOK, w.Code)

	packets, err := v.DecodePayload(w.Body.Bytes())
	require.NoError(t, err)
	require.NotEmpty(t, packets)
	require.Equal(t, eiop.OpenPacket, packets[0].T)
	hs, ok := packets[0].D.(*eiop.Handshake)
	require.True(t, ok)
	return hs
}

func TestHandshake(t *testing.T) {
	l := newEcho()
	svr := NewServer(l, WithPingInterval(time.Second), WithPingTimeout(500*time.Millisecond))
	defer svr.Close()

	hs := handshake(t, svr, eiop.EIO4)
	assert.NotEmpty(t, hs.SID)
	assert.Equal(t, []string{"websocket"}, hs.Upgrades)
	assert.Equal(t, eiop.Duration(time.Second), hs.PingInterval)
	assert.Equal(t, eiop.Duration(500*time.Millisecond), hs.PingTimeout)
	assert.Equal(t, 1000000, hs.MaxPayload)

	sess := <-l.opened
	assert.Equal(t, SessionID(hs.SID), sess.ID)
	assert.Equal(t, Handshaking, sess.State())
	assert.Equal(t, 1, svr.Len())

	hs3 := handshake(t, svr, eiop.EIO3)
	assert.Zero(t, hs3.MaxPayload)
	assert.NotEqual(t, hs.SID, hs3.SID)
}

func TestRequestErrors(t *testing.T) {
	svr := NewServer(newEcho(), WithAllowedOrigins("https://example.com"))
	defer svr.Close()

	tests := map[string]func() (method, target, origin string, status, code int){
		"Unknown Transport": func() (string, string, string, int, int) {
			return http.MethodGet, "/engine.io/?EIO=4&transport=flash", "", 400, 0
		},
		"Unknown Session": func() (string, string, string, int, int) {
			return http.MethodGet, "/engine.io/?EIO=4&transport=polling&sid=nope", "", 400, 1
		},
		"Bad Handshake Method": func() (string, string, string, int, int) {
			return http.MethodPost, "/engine.io/?EIO=4&transport=polling", "", 400, 2
		},
		"Forbidden Origin": func() (string, string, string, int, int) {
			return http.MethodGet, "/engine.io/?EIO=4&transport=polling", "https://evil.example", 403, 4
		},
		"Unsupported Version": func() (string, string, string, int, int) {
			return http.MethodGet, "/engine.io/?EIO=5&transport=polling", "", 400, 5
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			method, target, origin, status, code := test()
			r := httptest.NewRequest(method, target, nil)
			if origin != "" {
				r.Header.Set("Origin", origin)
			}
			w := httptest.NewRecorder()
			svr.ServeHTTP(w, r)

			assert.Equal(t, status, w.Code)
			var body struct{ Code int }
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, code, body.Code)
		})
	}

	assert.Equal(t, http.StatusNotFound, request(svr, http.MethodGet, "/other/?EIO=4&transport=polling", "").Code)

	r := httptest.NewRequest(http.MethodOptions, "/engine.io/", nil)
	r.Header.Set("Origin", "https://example.com")
	w := httptest.NewRecorder()
	svr.ServeHTTP(w, r)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://example.com", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestPollingEcho(t *testing.T) {
	l := newEcho()
	svr := NewServer(l)
	defer svr.Close()

	hs := handshake(t, svr, eiop.EIO4)
	sess := <-l.opened
	target := "/engine.io/?EIO=4&transport=polling&sid=" + hs.SID

	w := request(svr, http.MethodPost, target, "4hello\x1e4world")
	assert.Equal(t, "ok", w.Body.String())
	assert.Equal(t, Open, sess.State())

	w = request(svr, http.MethodGet, target, "")
	assert.Equal(t, "4hello\x1e4world", w.Body.String())

	request(svr, http.MethodPost, target, "1")
	assert.ErrorIs(t, l.waitClosed(t), ErrTransportClose)
	assert.Zero(t, svr.Len())
	assert.Equal(t, Closed, sess.State())
	assert.Equal(t, http.StatusBadRequest, request(svr, http.MethodGet, target, "").Code)
}

func TestHeartbeat(t *testing.T) {
	tests := map[string]func() (version eiop.Version, body string, pong string, rescheduled bool){
		"Ping": func() (eiop.Version, string, string, bool) {
			return eiop.EIO3, "5:2ping", "5:3ping", true
		},
		"Probe": func() (eiop.Version, string, string, bool) {
			return eiop.EIO3, "6:2probe", "6:3probe", false
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			v, body, pong, rescheduled := test()

			sched := scheduler.New()
			defer sched.Close()
			l := newEcho()
			svr := NewServer(l, WithScheduler(sched), WithPingInterval(time.Hour), WithPingTimeout(time.Hour))
			defer svr.Close()

			hs := handshake(t, svr, v)
			sess := <-l.opened
			key := sess.key(taskPingTimeout)
			require.True(t, sched.Pending(key))

			// the next heartbeat deadline only moves when the ping counts
			sched.Cancel(key)
			target := "/engine.io/?EIO=3&transport=polling&sid=" + hs.SID
			request(svr, http.MethodPost, target, body)

			assert.Equal(t, rescheduled, sched.Pending(key))
			assert.Equal(t, pong, request(svr, http.MethodGet, target, "").Body.String())
		})
	}
}

func TestPingTimeout(t *testing.T) {
	defer leaktest.Check(t)()

	l := newEcho()
	svr := NewServer(l, WithPingInterval(50*time.Millisecond), WithPingTimeout(50*time.Millisecond))
	defer svr.Close()

	hs := handshake(t, svr, eiop.EIO4)
	sess := <-l.opened

	// the server pings every interval on its own
	w := request(svr, http.MethodGet, "/engine.io/?EIO=4&transport=polling&sid="+hs.SID, "")
	assert.Equal(t, "2", w.Body.String())

	assert.ErrorIs(t, l.waitClosed(t), ErrPingTimeout)
	<-sess.Done()
	assert.ErrorIs(t, sess.Err(), ErrPingTimeout)
	assert.Zero(t, svr.Scheduler().Owned(string(sess.ID)))
	assert.Zero(t, svr.Len())
	assert.ErrorIs(t, sess.Send(eiop.Packet{T: eiop.MessagePacket, D: "late"}), ErrSessionClosed)
}

func TestPongKeepsAlive(t *testing.T) {
	l := newEcho()
	svr := NewServer(l, WithPingInterval(20*time.Millisecond), WithPingTimeout(30*time.Millisecond))
	defer svr.Close()

	hs := handshake(t, svr, eiop.EIO4)
	sess := <-l.opened
	target := "/engine.io/?EIO=4&transport=polling&sid=" + hs.SID

	// well past one unanswered deadline of 50ms
	for i := 0; i < 8; i++ {
		w := request(svr, http.MethodGet, target, "")
		require.Equal(t, http.StatusOK, w.Code)
		if strings.Contains(w.Body.String(), "2") {
			request(svr, http.MethodPost, target, "3")
		}
	}
	assert.Equal(t, Open, sess.State())
}

func TestFirstDataTimeout(t *testing.T) {
	l := newEcho()
	svr := NewServer(l, WithFirstDataTimeout(10*time.Millisecond))
	defer svr.Close()

	handshake(t, svr, eiop.EIO4)
	<-l.opened
	assert.ErrorIs(t, l.waitClosed(t), ErrFirstDataTimeout)
}

func TestMaxPayload(t *testing.T) {
	l := newEcho()
	svr := NewServer(l, WithMaxPayload(16))
	defer svr.Close()

	hs := handshake(t, svr, eiop.EIO4)
	<-l.opened

	w := request(svr, http.MethodPost, "/engine.io/?EIO=4&transport=polling&sid="+hs.SID, "4"+strings.Repeat("x", 32))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	err := l.waitClosed(t)
	assert.ErrorIs(t, err, ErrParseError)
	assert.ErrorIs(t, err, eiot.ErrPayloadTooLarge)
}

func dialWS(t *testing.T, url, query string) (io.ReadWriter, func()) {
	conn, br, _, err := ws.Dial(context.TODO(), strings.Replace(url, "http", "ws", 1)+"/engine.io/?"+query)
	require.NoError(t, err)

	rw := struct {
		io.Reader
		io.Writer
	}{conn, conn}
	if br != nil {
		rw.Reader = br
	}
	return rw, func() { conn.Close() }
}

func TestUpgrade(t *testing.T) {
	l := newEcho()
	svr := NewServer(l)
	defer svr.Close()
	server := httptest.NewServer(svr)
	defer server.Close()

	hs := handshake(t, svr, eiop.EIO4)
	sess := <-l.opened
	target := "/engine.io/?EIO=4&transport=polling&sid=" + hs.SID

	polled := make(chan string, 1)
	go func() { polled <- request(svr, http.MethodGet, target, "").Body.String() }()

	conn, closeConn := dialWS(t, server.URL, "EIO=4&transport=websocket&sid="+hs.SID)
	defer closeConn()
	require.Eventually(t, func() bool { return sess.State() == Upgrading }, time.Second, time.Millisecond)

	require.NoError(t, wsutil.WriteClientText(conn, []byte("2probe")))
	msg, err := wsutil.ReadServerText(conn)
	require.NoError(t, err)
	assert.Equal(t, "3probe", string(msg))
	assert.Equal(t, "6", <-polled, "the waiting poll is released with a noop")

	require.NoError(t, wsutil.WriteClientText(conn, []byte("5")))
	require.Eventually(t, func() bool { return sess.Transport().Name() == eiot.Websocket }, time.Second, time.Millisecond)
	assert.Equal(t, Open, sess.State())
	assert.False(t, svr.Scheduler().Pending(sess.key(taskUpgrade)))

	require.NoError(t, wsutil.WriteClientText(conn, []byte("4over websocket")))
	msg, err = wsutil.ReadServerText(conn)
	require.NoError(t, err)
	assert.Equal(t, "4over websocket", string(msg))

	assert.Equal(t, http.StatusBadRequest, request(svr, http.MethodGet, target, "").Code)

	closeConn()
	assert.ErrorIs(t, l.waitClosed(t), ErrTransportClose)
}

func TestUpgradeTimeout(t *testing.T) {
	l := newEcho()
	svr := NewServer(l, WithUpgradeTimeout(20*time.Millisecond))
	defer svr.Close()
	server := httptest.NewServer(svr)
	defer server.Close()

	hs := handshake(t, svr, eiop.EIO4)
	sess := <-l.opened

	conn, closeConn := dialWS(t, server.URL, "EIO=4&transport=websocket&sid="+hs.SID)
	defer closeConn()

	// the server gives up on the probe and closes the websocket
	_, err := wsutil.ReadServerText(conn)
	assert.Error(t, err)

	require.Eventually(t, func() bool { return sess.State() == Open }, time.Second, time.Millisecond)
	assert.Equal(t, eiot.Polling, sess.Transport().Name())
	select {
	case err := <-l.closed:
		t.Fatalf("session closed: %v", err)
	default:
	}
}

func TestWebsocketHandshake(t *testing.T) {
	defer leaktest.Check(t)()

	l := newEcho()
	svr := NewServer(l)
	server := httptest.NewServer(svr)

	conn, closeConn := dialWS(t, server.URL, "EIO=4&transport=websocket")

	msg, err := wsutil.ReadServerText(conn)
	require.NoError(t, err)
	pac, err := eiop.EIO4.DecodeText(msg)
	require.NoError(t, err)
	hs := pac.D.(*eiop.Handshake)
	assert.Empty(t, hs.Upgrades)

	sess := <-l.opened
	assert.Equal(t, Open, sess.State())

	svr.Close()
	msg, err = wsutil.ReadServerText(conn)
	require.NoError(t, err)
	assert.Equal(t, "1", string(msg))
	assert.ErrorIs(t, l.waitClosed(t), ErrServerShutdown)

	closeConn()
	server.Close()
}
