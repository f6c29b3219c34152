// Package transport moves Engine.IO packets over HTTP long-polling and
// websockets. A transport owns an outbound Queue and hands every decoded
// inbound packet to its Config.Receive, in arrival order, from a single
// goroutine per connection.
package transport

import (
	"log/slog"
	"net/http"
	"time"

	eiop "github.com/relaymesh/socketio/engineio/protocol"
	eios "github.com/relaymesh/socketio/engineio/session"
)

type SessionID = eios.ID

type Name string

func (name Name) String() string { return string(name) }

const (
	Polling   Name = "polling"
	Websocket Name = "websocket"
)

type Transporter interface {
	ID() SessionID
	Name() Name
	Send(...eiop.Packet) error
	Queue() *Queue

	http.Handler

	// Close flushes what is queued where the transport can, then releases it.
	Close()
	Done() <-chan struct{}
}

// Config is shared by every transport of one server.
type Config struct {
	Version     eiop.Version
	MaxPayload  int64
	PollTimeout time.Duration
	Compress    bool

	// Receive gets every decoded packet.
	Receive func(Transporter, eiop.Packet)
	// OnError gets decode and I/O errors. It decides whether the session
	// survives them.
	OnError func(Transporter, error)
	// OnClose runs once, when a connection oriented transport goes away.
	OnClose func(Transporter, error)

	Logger *slog.Logger
}

func (c Config) receive(t Transporter, pac eiop.Packet) {
	if c.Receive != nil {
		c.Receive(t, pac)
	}
}

func (c Config) onError(t Transporter, err error) {
	if c.OnError != nil {
		c.OnError(t, err)
	}
}

func (c Config) onClose(t Transporter, err error) {
	if c.OnClose != nil {
		c.OnClose(t, err)
	}
}

func (c Config) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

type Transport struct {
	id    SessionID
	name  Name
	cfg   Config
	queue *Queue
}

func (t *Transport) ID() SessionID                     { return t.id }
func (t *Transport) Name() Name                        { return t.name }
func (t *Transport) Queue() *Queue                     { return t.queue }
func (t *Transport) Send(packets ...eiop.Packet) error { return t.queue.Push(packets...) }
func (t *Transport) Done() <-chan struct{}             { return t.queue.Done() }
