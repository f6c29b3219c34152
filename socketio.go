// Package socketio is a Socket.IO server. It multiplexes namespaces over
// Engine.IO sessions, routes events to handlers, correlates acknowledgments
// and broadcasts to rooms, locally and across nodes.
//
//	svr := socketio.NewServer()
//	svr.Of("/chat").OnConnect(func(sock *socketio.Socket) error {
//		sock.On("message", callback.FuncString(func(msg string) {
//			sock.To("lobby").Emit("message", msg)
//		}))
//		return sock.Join("lobby")
//	})
//	http.Handle("/socket.io/", svr)
package socketio

import (
	eios "github.com/relaymesh/socketio/engineio/session"
	siop "github.com/relaymesh/socketio/protocol"
	sios "github.com/relaymesh/socketio/session"
)

// RootNamespace is the namespace a client joins when it names none.
const RootNamespace = siop.RootNamespace

type (
	// SocketID is the id of one namespace connection.
	SocketID  = sios.ID
	// SessionID is the id of the engine session under a socket.
	SessionID = eios.ID

	Room  = string
	Event = string
	Data  = interface{}
)

// reservedEvents cannot be emitted and get no user handler; the client
// library gives them a meaning of its own.
var reservedEvents = map[Event]struct{}{
	"connect":        {},
	"connect_error":  {},
	"disconnect":     {},
	"disconnecting":  {},
	"newListener":    {},
	"removeListener": {},
}

func isReserved(event Event) bool {
	_, ok := reservedEvents[event]
	return ok
}

// ErrorContext tells an error handler where an error happened. Fields that
// do not apply are empty.
type ErrorContext struct {
	SessionID SessionID
	Namespace string
	Event     Event
}
