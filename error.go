package socketio

import (
	eio "github.com/relaymesh/socketio/engineio"
	erro "github.com/relaymesh/socketio/internal/errors"
)

const (
	ErrReservedEvent    erro.StringF = "event name %q is reserved"
	ErrInvalidNamespace erro.String  = "Invalid namespace"
	ErrNotConnected     erro.StringF = "socket is not connected to %q"
	ErrMissingAckID     erro.StringF = "%s packet without an ack id"
	ErrDecodeFailed     erro.StringF = "failed to decode a packet:: %w"
	ErrEmitFailed       erro.StringF = "failed to emit %q:: %w"
	ErrHandlerFailed    erro.StringF = "handler for %q failed:: %w"
	ErrConnectRejected  erro.StringF = "connect to %q rejected:: %w"
	ErrPublishFailed    erro.StringF = "failed to publish a broadcast:: %w"

	ErrClientNamespaceDisconnect erro.State = "client namespace disconnect"
	ErrServerNamespaceDisconnect erro.State = "server namespace disconnect"
	ErrServerDisconnect          erro.State = "server disconnect"
	ErrAckTimeout                erro.State = "ack timeout"
	ErrSessionGone               erro.State = "session gone"
)

// Reasons a whole session goes away, as handed to disconnect handlers.
const (
	ErrTransportClose = eio.ErrTransportClose
	ErrPingTimeout    = eio.ErrPingTimeout
	ErrServerShutdown = eio.ErrServerShutdown
)
