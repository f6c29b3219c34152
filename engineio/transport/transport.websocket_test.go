package transport

import (
	"context"
	"io"
	"net"
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
)

type wsClient struct {
	io.Reader
	io.Writer
	conn net.Conn
}

func dial(t *testing.T, url string) wsClient {
	conn, br, _, err := ws.Dial(context.TODO(), strings.Replace(url, "http", "ws", 1)+"/engine.io/?EIO=4&transport=websocket")
	require.NoError(t, err)

	var r io.Reader = conn
	if br != nil {
		r = br // holds frames that arrived with the handshake response
	}
	return wsClient{Reader: r, Writer: conn, conn: conn}
}

func TestWebsocketTransport(t *testing.T) {
	defer leaktest.Check(t)()

	rec := new(recorder)
	closed := make(chan error, 1)
	cfg := rec.config(eiop.EIO4)
	cfg.OnClose = func(_ Transporter, err error) { closed <- err }

	tr := NewWebsocketTransport("12345", cfg)
	server := httptest.NewServer(tr)
	defer server.Close()

	client := dial(t, server.URL)
	defer client.conn.Close()

	require.NoError(t, wsutil.WriteClientText(client, []byte("2probe")))
	require.NoError(t, wsutil.WriteClientText(client, []byte("4Hello")))
	require.NoError(t, wsutil.WriteClientBinary(client, []byte{1, 2}))
	require.NoError(t, wsutil.WriteClientText(client, []byte("9")))

	want := []eiop.Packet{
		{T: eiop.PingPacket, D: eiop.Probe},
		{T: eiop.MessagePacket, D: "Hello"},
		{T: eiop.MessagePacket, D: []byte{1, 2}},
	}
	require.Eventually(t, func() bool { return len(rec.received()) == 3 }, time.Second, time.Millisecond)
	assert.Equal(t, want, rec.received())
	require.Eventually(t, func() bool { return len(rec.errors()) == 1 }, time.Second, time.Millisecond)
	assert.ErrorIs(t, rec.errors()[0], eiop.ErrUnknownPacketType)

	require.NoError(t, tr.Send(eiop.Packet{T: eiop.PongPacket, D: eiop.Probe}, eiop.Packet{T: eiop.MessagePacket, D: []byte{3}}))

	text, err := wsutil.ReadServerText(client)
	require.NoError(t, err)
	assert.Equal(t, "3probe", string(text))

	data, op, err := wsutil.ReadServerData(client)
	require.NoError(t, err)
	assert.Equal(t, ws.OpBinary, op)
	assert.Equal(t, []byte{3}, data)

	require.NoError(t, tr.Send(eiop.Packet{T: eiop.ClosePacket}))
	tr.Close()

	text, err = wsutil.ReadServerText(client)
	require.NoError(t, err)
	assert.Equal(t, "1", string(text))

	select {
	case err := <-closed:
		assert.ErrorIs(t, err, ErrTransportClosed)
	case <-time.After(time.Second):
		t.Fatal("transport did not close")
	}
	assert.ErrorIs(t, tr.Send(eiop.Packet{T: eiop.NoopPacket}), ErrQueueClosed)
}

func TestWebsocketTransportClientClose(t *testing.T) {
	rec := new(recorder)
	closed := make(chan error, 1)
	cfg := rec.config(eiop.EIO3)
	cfg.OnClose = func(_ Transporter, err error) { closed <- err }

	tr := NewWebsocketTransport("12345", cfg)
	server := httptest.NewServer(tr)
	defer server.Close()

	client := dial(t, server.URL)
	require.NoError(t, ws.WriteFrame(client, ws.MaskFrame(ws.NewCloseFrame(ws.NewCloseFrameBody(ws.StatusNormalClosure, "")))))

	select {
	case err := <-closed:
		assert.ErrorIs(t, err, ErrTransportClosed)
	case <-time.After(time.Second):
		t.Fatal("transport did not close")
	}
	client.conn.Close()

	select {
	case <-tr.Done():
	default:
		t.Fatal("queue left open")
	}
}
