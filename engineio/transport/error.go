package transport

import erro "github.com/relaymesh/socketio/internal/errors"

const (
	ErrDecodeFailed     erro.StringF = "failed to decode the %q transport:: %w"
	ErrEncodeFailed     erro.StringF = "failed to encode the %q transport:: %w"
	ErrUnsupportedVerb  erro.StringF = "unsupported %s method"
	ErrOverlappingPoll  erro.State   = "overlapping polling request"
	ErrPayloadTooLarge  erro.State   = "payload too large"
	ErrQueueClosed      erro.State   = "transport queue closed"
	ErrTransportClosed  erro.State   = "transport close"
	ErrTransportFailure erro.StringF = "transport error:: %w"
)
