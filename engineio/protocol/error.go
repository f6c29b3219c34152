package protocol

import (
	"errors"

	erro "github.com/relaymesh/socketio/internal/errors"
)

const (
	ErrEmptyPacket        erro.String  = "empty packet"
	ErrUnknownPacketType  erro.StringF = "unknown packet type: %q"
	ErrInvalidPacketData  erro.StringF = "invalid packet data: %T"
	ErrInvalidBase64      erro.StringF = "invalid base64 data:: %w"
	ErrInvalidHandshake   erro.StringF = "invalid handshake data:: %w"
	ErrMissingLength      erro.String  = "payload record is missing its length header"
	ErrFramingDesync      erro.StringF = "payload framing lost at offset %d"
	ErrInvalidJSONP       erro.String  = "jsonp body must start with d="
	ErrInvalidJSONPBody   erro.StringF = "invalid jsonp body:: %w"
	ErrInvalidJSONPIndex  erro.StringF = "invalid jsonp index: %q"
	ErrUnsupportedVersion erro.StringF = "unsupported protocol version: %d"
)

// IsFatal reports whether err leaves the rest of a payload unreadable. A
// fatal decode error closes the session; any other decode error only costs
// the packet it came from.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFramingDesync) || errors.Is(err, ErrMissingLength)
}
