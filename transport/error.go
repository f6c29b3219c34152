package transport

import erro "github.com/relaymesh/socketio/internal/errors"

const (
	ErrUnexpectedMessage erro.StringF = "unexpected engine message data: %T"
	ErrEncodeFailed      erro.StringF = "failed to encode %s packet:: %w"
)
