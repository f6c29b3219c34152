package pubsub

import erro "github.com/relaymesh/socketio/internal/errors"

const (
	ErrEncodeEnvelope erro.StringF = "encode envelope:: %w"
	ErrDecodeEnvelope erro.StringF = "decode envelope from %s:: %w"
	ErrBusClosed      erro.State   = "bus closed"
)
