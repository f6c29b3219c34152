package callback

import (
	erro "github.com/relaymesh/socketio/internal/errors"
)

const (
	ErrNotAFunc     erro.StringF = "wrap needs a func value, found %T"
	ErrParamConvert erro.StringF = "callback parameter %d (%s):: %w"
	ErrHandlerPanic erro.StringF = "handler panic:: %w"
)
