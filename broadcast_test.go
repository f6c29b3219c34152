package socketio

import (
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	eiop "github.com/relaymesh/socketio/engineio/protocol"
)

func TestBroadcastAggregate(t *testing.T) {
	type (
		testFn       func(*testing.T)
		testParamsFn func(*testing.T) (a *broadcastAck, fired chan []BroadcastReply, steps func())
	)

	newAck := func() (*broadcastAck, chan []BroadcastReply) {
		fired := make(chan []BroadcastReply, 2)
		return &broadcastAck{done: func(r []BroadcastReply) { fired <- r }}, fired
	}

	spec := map[string]testParamsFn{
		"Replies Before Loop Ends": func(t *testing.T) (*broadcastAck, chan []BroadcastReply, func()) {
			a, fired := newAck()
			return a, fired, func() {
				a.add()
				recipientAck{agg: a, id: "x"}.OnSuccess("x")
				a.add()
				recipientAck{agg: a, id: "y"}.OnTimeout()
				assert.Empty(t, fired, "the loop is still running")
				a.finish()
			}
		},
		"Replies After Loop Ends": func(t *testing.T) (*broadcastAck, chan []BroadcastReply, func()) {
			a, fired := newAck()
			return a, fired, func() {
				a.add()
				a.add()
				a.finish()
				recipientAck{agg: a, id: "y"}.OnTimeout()
				assert.Empty(t, fired)
				recipientAck{agg: a, id: "x"}.OnSuccess("x")
			}
		},
		"Dropped Recipient": func(t *testing.T) (*broadcastAck, chan []BroadcastReply, func()) {
			a, fired := newAck()
			return a, fired, func() {
				a.add()
				recipientAck{agg: a, id: "x"}.OnSuccess("x")
				a.add()
				a.finish()
				recipientAck{agg: a, id: "y"}.OnDrop()
			}
		},
	}

	run := func(a *broadcastAck, fired chan []BroadcastReply, steps func()) testFn {
		return func(t *testing.T) {
			steps()
			require.Len(t, fired, 1)
			replies := <-fired
			assert.Len(t, replies, 2)
			a.finish()
			assert.Empty(t, fired, "fires once")
		}
	}

	for name, testParams := range spec {
		t.Run(name, run(testParams(t)))
	}

	t.Run("Nobody", func(t *testing.T) {
		a, fired := newAck()
		a.finish()
		assert.Empty(t, <-fired)
	})
}

func TestRoomBroadcast(t *testing.T) {
	svr := NewServer(WithAckTimeout(time.Minute))
	defer svr.Close()

	socks := make(chan *Socket, 6)
	svr.Of("/").OnConnect(func(sock *Socket) error { socks <- sock; return nil })

	clients := make([]*client, 5)
	ids := make([]string, 5)
	for i := range clients {
		clients[i], _ = dial(t, svr, eiop.EIO4)
		ids[i] = clients[i].connect("/")
		require.NoError(t, (<-socks).Join("room"))
	}
	outsider, _ := dial(t, svr, eiop.EIO4)
	outsider.connect("/")
	<-socks
	require.Len(t, svr.In("room").Sockets(), 5)

	fired := make(chan []BroadcastReply, 1)
	err := svr.To("room").Except(Room(ids[2])).EmitWithAck("vote", func(r []BroadcastReply) { fired <- r }, "yes?")
	require.NoError(t, err)

	assert.Zero(t, clients[2].queued(), "excluded")
	assert.Zero(t, outsider.queued(), "not in the room")
	var delivered int
	for _, c := range clients {
		delivered += c.queued()
	}
	assert.Equal(t, 4, delivered)

	// reply in reverse order; only the last reply completes the broadcast
	for i := len(clients) - 1; i >= 0; i-- {
		if i == 2 {
			continue
		}
		sent := clients[i].poll()
		require.Len(t, sent, 1)
		id := ackID(t, sent[0])
		assert.Equal(t, fmt.Sprintf(`42%d["vote","yes?"]`, id), sent[0])

		require.Empty(t, fired)
		clients[i].post(fmt.Sprintf(`43%d[%d]`, id, i))
	}

	replies := <-fired
	got := make([]string, 0, len(replies))
	for _, r := range replies {
		assert.NoError(t, r.Err)
		got = append(got, fmt.Sprint(r.Socket, "=", r.Data))
	}
	sort.Strings(got)
	want := []string{
		fmt.Sprint(ids[0], "=", []interface{}{0.0}),
		fmt.Sprint(ids[1], "=", []interface{}{1.0}),
		fmt.Sprint(ids[3], "=", []interface{}{3.0}),
		fmt.Sprint(ids[4], "=", []interface{}{4.0}),
	}
	sort.Strings(want)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("replies (-want +got):\n%s", diff)
	}
}

func TestBroadcastTimeout(t *testing.T) {
	svr := NewServer()
	defer svr.Close()

	c, _ := dial(t, svr, eiop.EIO4)
	id := c.connect("/")

	fired := make(chan []BroadcastReply, 1)
	require.NoError(t, svr.Of("/").Timeout(10*time.Millisecond).EmitWithAck("q", func(r []BroadcastReply) { fired <- r }))

	select {
	case replies := <-fired:
		require.Len(t, replies, 1)
		assert.Equal(t, SocketID(id), replies[0].Socket)
		assert.ErrorIs(t, replies[0].Err, ErrAckTimeout)
	case <-time.After(time.Second):
		t.Fatal("aggregate did not fire")
	}
}

func TestBroadcastTargets(t *testing.T) {
	svr := NewServer()
	defer svr.Close()

	socks := make(chan *Socket, 3)
	svr.Of("/").OnConnect(func(sock *Socket) error { socks <- sock; return sock.Join("a", "b") })

	c1, _ := dial(t, svr, eiop.EIO4)
	c1.connect("/")
	c2, _ := dial(t, svr, eiop.EIO4)
	c2.connect("/")
	s1, s2 := <-socks, <-socks

	// in both rooms, delivered once
	require.NoError(t, svr.To("a", "b").Emit("once", []byte{1}))
	assert.Equal(t, []string{`451-["once",{"_placeholder":true,"num":0}]`, "bAQ=="}, c1.poll())
	assert.Equal(t, []string{`451-["once",{"_placeholder":true,"num":0}]`, "bAQ=="}, c2.poll())

	require.NoError(t, s1.Broadcast().Emit("others"))
	assert.Equal(t, []string{`42["others"]`}, c2.poll())
	assert.Zero(t, c1.queued())

	s2.Leave("a")
	assert.Len(t, svr.In("a").Sockets(), 1)
	assert.Len(t, svr.Of("/").ExceptFunc(func(s *Socket) bool { return s == s1 }).Sockets(), 1)

	svr.In("b").DisconnectSockets(false)
	assert.Empty(t, svr.Of("/").Sockets())
	assert.Equal(t, 2, svr.Len())
	assert.Equal(t, []string{"41"}, c1.poll())
}

func TestJoinAfterDisconnect(t *testing.T) {
	svr := NewServer()
	defer svr.Close()

	socks := make(chan *Socket, 1)
	svr.Of("/").OnConnect(func(sock *Socket) error { socks <- sock; return nil })

	c, _ := dial(t, svr, eiop.EIO4)
	c.connect("/")
	sock := <-socks

	sock.Disconnect(false)
	assert.Equal(t, []string{"41"}, c.poll())

	err := sock.Join("room")
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Empty(t, sock.Rooms())
	assert.Empty(t, svr.In("room").Sockets())
	assert.Zero(t, svr.rooms.Len(RootNamespace, "room"))
}

func TestJoinDuringTeardown(t *testing.T) {
	svr := NewServer()
	defer svr.Close()

	socks := make(chan *Socket, 64)
	svr.Of("/").OnConnect(func(sock *Socket) error { socks <- sock; return nil })

	for i := 0; i < cap(socks); i++ {
		c, _ := dial(t, svr, eiop.EIO4)
		c.connect("/")
		sock := <-socks

		joined := make(chan struct{})
		go func() {
			defer close(joined)
			for j := 0; j < 8; j++ {
				sock.Join(Room(fmt.Sprint("r", j)))
			}
		}()
		sock.Disconnect(false)
		<-joined

		assert.Empty(t, sock.Rooms(), "left behind in a room")
	}
	assert.Empty(t, svr.Of("/").Sockets())
	for j := 0; j < 8; j++ {
		assert.Zero(t, svr.rooms.Len(RootNamespace, Room(fmt.Sprint("r", j))))
	}
}
