package engineio

import (
	"encoding/json"
	"errors"
	"net/http"

	eiot "github.com/relaymesh/socketio/engineio/transport"
	erro "github.com/relaymesh/socketio/internal/errors"
)

const (
	ErrPingTimeout      erro.State = "ping timeout"
	ErrUpgradeTimeout   erro.State = "upgrade timeout"
	ErrFirstDataTimeout erro.State = "first data timeout"
	ErrForcedClose      erro.State = "forced close"
	ErrServerShutdown   erro.State = "server shutting down"
	ErrSessionClosed    erro.State = "session closed"
	ErrTransportClose              = eiot.ErrTransportClosed

	ErrParseError      erro.StringF = "parse error:: %w"
	ErrListenerPanic   erro.StringF = "listener panic: %v"
	ErrUpgradeRejected erro.StringF = "upgrade to %s rejected"
)

// httpError is an Engine.IO request error. The client gets the code and the
// message as a JSON body.
type httpError struct {
	status int
	code   int
	erro.String
}

var (
	ErrUnknownTransport   = httpError{http.StatusBadRequest, 0, "Transport unknown"}
	ErrUnknownSessionID   = httpError{http.StatusBadRequest, 1, "Session ID unknown"}
	ErrBadHandshakeMethod = httpError{http.StatusBadRequest, 2, "Bad handshake method"}
	ErrBadRequest         = httpError{http.StatusBadRequest, 3, "Bad request"}
	ErrForbidden          = httpError{http.StatusForbidden, 4, "Forbidden"}
	ErrUnsupportedVersion = httpError{http.StatusBadRequest, 5, "Unsupported protocol version"}
)

func (e httpError) Error() string { return string(e.String) }

func (e httpError) Is(target error) bool {
	te, ok := target.(httpError)
	return ok && te.code == e.code
}

func (e httpError) write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.status)
	json.NewEncoder(w).Encode(struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}{e.code, string(e.String)})
}

// clientClosed reports whether reason means the client already knows the
// session is over, so no CLOSE packet is owed.
func clientClosed(reason error) bool {
	return reason == nil || errors.Is(reason, ErrTransportClose)
}
