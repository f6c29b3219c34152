package engineio

import (
	"log/slog"
	"time"

	eiop "github.com/relaymesh/socketio/engineio/protocol"
	eiot "github.com/relaymesh/socketio/engineio/transport"
	with "github.com/relaymesh/socketio/internal/option"
	"github.com/relaymesh/socketio/scheduler"
)

type (
	Option     = with.Option
	OptionWith = with.OptionWith
)

func WithPath(path string) Option {
	return func(svr OptionWith) {
		if v, ok := svr.(*Server); ok {
			v.path = path
		}
	}
}

func WithPingInterval(d time.Duration) Option {
	return func(svr OptionWith) {
		if v, ok := svr.(*Server); ok {
			v.pingInterval = d
		}
	}
}

func WithPingTimeout(d time.Duration) Option {
	return func(svr OptionWith) {
		if v, ok := svr.(*Server); ok {
			v.pingTimeout = d
		}
	}
}

func WithUpgradeTimeout(d time.Duration) Option {
	return func(svr OptionWith) {
		if v, ok := svr.(*Server); ok {
			v.upgradeTimeout = d
		}
	}
}

// WithFirstDataTimeout bounds how long a polling handshake may stay silent
// before its session is discarded.
func WithFirstDataTimeout(d time.Duration) Option {
	return func(svr OptionWith) {
		if v, ok := svr.(*Server); ok {
			v.firstDataTimeout = d
		}
	}
}

func WithMaxPayload(n int64) Option {
	return func(svr OptionWith) {
		if v, ok := svr.(*Server); ok {
			v.maxPayload = n
		}
	}
}

// WithTransports sets the enabled transports. The order is irrelevant.
func WithTransports(names ...eiot.Name) Option {
	return func(svr OptionWith) {
		if v, ok := svr.(*Server); ok {
			v.transports = names
		}
	}
}

func WithAllowUpgrades(allow bool) Option {
	return func(svr OptionWith) {
		if v, ok := svr.(*Server); ok {
			v.allowUpgrades = allow
		}
	}
}

// WithAllowedOrigins restricts cross origin requests. An empty list or "*"
// allows any origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(svr OptionWith) {
		if v, ok := svr.(*Server); ok {
			v.allowedOrigins = origins
		}
	}
}

func WithHTTPCompression(compress bool) Option {
	return func(svr OptionWith) {
		if v, ok := svr.(*Server); ok {
			v.compress = compress
		}
	}
}

func WithGenerateIDFunc(fn func() SessionID) Option {
	return func(svr OptionWith) {
		if v, ok := svr.(*Server); ok {
			v.generateID = fn
		}
	}
}

// WithScheduler shares a scheduler with other components. The server does
// not close a scheduler it was given.
func WithScheduler(sched *scheduler.Scheduler) Option {
	return func(svr OptionWith) {
		if v, ok := svr.(*Server); ok {
			v.sched = sched
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(svr OptionWith) {
		if v, ok := svr.(*Server); ok {
			v.log = log
		}
	}
}

// WithErrorHandler receives decode, transport and listener errors. The
// session is nil for errors raised before a session exists.
func WithErrorHandler(fn func(*Session, error)) Option {
	return func(svr OptionWith) {
		if v, ok := svr.(*Server); ok {
			v.onError = fn
		}
	}
}

// WithSendHook sees every packet a session queues.
func WithSendHook(fn func(*Session, eiop.Packet)) Option {
	return func(svr OptionWith) {
		if v, ok := svr.(*Server); ok {
			v.onSend = fn
		}
	}
}
