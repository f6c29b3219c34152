package socketio

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/relaymesh/socketio/adaptor/pubsub"
	eio "github.com/relaymesh/socketio/engineio"
	eiot "github.com/relaymesh/socketio/engineio/transport"
	with "github.com/relaymesh/socketio/internal/option"
	siop "github.com/relaymesh/socketio/protocol"
	"github.com/relaymesh/socketio/scheduler"
)

// Option configures a Server. The same list is handed to the engine server
// underneath, so engine options can be mixed in freely.
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

// WithAckTimeout bounds how long an emitted packet waits for its ack. Zero
// waits until the session goes away.
func WithAckTimeout(d time.Duration) Option {
	return func(svr OptionWith) {
		if v, ok := svr.(*Server); ok {
			v.ackTimeout = d
		}
	}
}

// WithParser replaces the JSON packet parser, e.g. with
// protocol.MsgpackParser. Clients must use the same parser.
func WithParser(parser siop.Parser) Option {
	return func(svr OptionWith) {
		if v, ok := svr.(*Server); ok {
			v.parser = parser
		}
	}
}

// WithAdapter shares broadcasts with other nodes. Server.Run must be running
// for broadcasts from other nodes to arrive.
func WithAdapter(adapter *pubsub.Adapter) Option {
	return func(svr OptionWith) {
		if v, ok := svr.(*Server); ok {
			v.adapter = adapter
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

// WithRegisterer registers the server metrics with reg instead of a private
// registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(svr OptionWith) {
		if v, ok := svr.(*Server); ok {
			v.registerer = reg
		}
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(svr OptionWith) {
		if v, ok := svr.(*Server); ok {
			v.tracerProvider = tp
		}
	}
}

// WithErrorHandler receives every decode, dispatch and transport error. The
// default handler logs them.
func WithErrorHandler(fn func(ErrorContext, error)) Option {
	return func(svr OptionWith) {
		if v, ok := svr.(*Server); ok {
			v.onError = fn
		}
	}
}

// WithScheduler runs heartbeats and ack timeouts on sched. The server does
// not close a scheduler it was given.
func WithScheduler(sched *scheduler.Scheduler) Option {
	return func(svr OptionWith) {
		if v, ok := svr.(*Server); ok {
			v.sched = sched
		}
	}
}

// engine options

func WithPingInterval(d time.Duration) Option     { return eio.WithPingInterval(d) }
func WithPingTimeout(d time.Duration) Option      { return eio.WithPingTimeout(d) }
func WithUpgradeTimeout(d time.Duration) Option   { return eio.WithUpgradeTimeout(d) }
func WithFirstDataTimeout(d time.Duration) Option { return eio.WithFirstDataTimeout(d) }
func WithMaxPayload(n int64) Option               { return eio.WithMaxPayload(n) }
func WithTransports(names ...eiot.Name) Option    { return eio.WithTransports(names...) }
func WithAllowUpgrades(allow bool) Option         { return eio.WithAllowUpgrades(allow) }
func WithAllowedOrigins(origins ...string) Option { return eio.WithAllowedOrigins(origins...) }
func WithHTTPCompression(compress bool) Option    { return eio.WithHTTPCompression(compress) }

func WithGenerateIDFunc(fn func() SessionID) Option { return eio.WithGenerateIDFunc(fn) }
