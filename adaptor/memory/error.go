package memory

import erro "github.com/relaymesh/socketio/internal/errors"

const ErrInvalidRoom erro.StringF = "invalid room name %q"
