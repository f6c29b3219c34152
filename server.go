package socketio

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/relaymesh/socketio/ack"
	"github.com/relaymesh/socketio/adaptor/memory"
	"github.com/relaymesh/socketio/adaptor/pubsub"
	eio "github.com/relaymesh/socketio/engineio"
	eiop "github.com/relaymesh/socketio/engineio/protocol"
	eiot "github.com/relaymesh/socketio/engineio/transport"
	siop "github.com/relaymesh/socketio/protocol"
	"github.com/relaymesh/socketio/scheduler"
)

// Server is a Socket.IO server. It is an http.Handler; mount it on its path.
type Server struct {
	path           string
	ackTimeout     time.Duration
	parser         siop.Parser
	adapter        *pubsub.Adapter
	registerer     prometheus.Registerer
	tracerProvider trace.TracerProvider
	onError        func(ErrorContext, error)
	log            *slog.Logger
	sched          *scheduler.Scheduler
	ownSched       bool

	eio     *eio.Server
	acks    *ack.Correlator
	rooms   *memory.Store
	metrics *metrics
	tracer  trace.Tracer

	μ    sync.RWMutex
	nsps map[string]*Namespace

	conns sync.Map // SessionID → *conn
}

// NewServer returns a server with the root namespace already declared. Other
// namespaces exist once Of has been called for them.
func NewServer(opts ...Option) *Server {
	svr := &Server{
		path:   "/socket.io/",
		parser: siop.JSONParser{},
		rooms:  memory.New(),
		nsps:   make(map[string]*Namespace),
	}
	svr.With(opts...)

	if svr.log == nil {
		svr.log = slog.Default()
	}
	svr.log = svr.log.With("component", "socketio")
	if svr.sched == nil {
		svr.sched, svr.ownSched = scheduler.New(), true
	}
	if svr.registerer == nil {
		svr.registerer = prometheus.NewRegistry()
	}
	if svr.tracerProvider == nil {
		svr.tracerProvider = otel.GetTracerProvider()
	}
	if svr.adapter != nil {
		svr.adapter.WithLogger(svr.log)
	}
	svr.tracer = svr.tracerProvider.Tracer(instrumentationName)
	svr.acks = ack.New(svr.sched)
	svr.metrics = newMetrics(svr.registerer, svr.acks.Len)

	engineOpts := append(append([]Option{}, opts...),
		eio.WithPath(svr.path),
		eio.WithScheduler(svr.sched),
		eio.WithLogger(svr.log),
		eio.WithErrorHandler(svr.engineError),
		eio.WithSendHook(svr.sent),
	)
	svr.eio = eio.NewServer(listener{svr}, engineOpts...)

	svr.Of(RootNamespace)
	return svr
}

func (svr *Server) With(opts ...Option) {
	for _, opt := range opts {
		opt(svr)
	}
}

func (svr *Server) Path() string { return svr.eio.Path() }

// Of returns the namespace called name, declaring it on first use. Clients
// can only connect to declared namespaces.
func (svr *Server) Of(name string) *Namespace {
	name = apiNamespace(name)

	svr.μ.RLock()
	ns, ok := svr.nsps[name]
	svr.μ.RUnlock()
	if ok {
		return ns
	}

	svr.μ.Lock()
	defer svr.μ.Unlock()
	if ns, ok = svr.nsps[name]; !ok {
		ns = newNamespace(svr, name)
		svr.nsps[name] = ns
	}
	return ns
}

func (svr *Server) namespace(name string) (*Namespace, bool) {
	svr.μ.RLock()
	defer svr.μ.RUnlock()
	ns, ok := svr.nsps[apiNamespace(name)]
	return ns, ok
}

// Emit sends an event to every socket of the root namespace.
func (svr *Server) Emit(event Event, data ...Data) error { return svr.Of(RootNamespace).Emit(event, data...) }

func (svr *Server) To(rooms ...Room) BroadcastOperator     { return svr.Of(RootNamespace).To(rooms...) }
func (svr *Server) In(rooms ...Room) BroadcastOperator     { return svr.Of(RootNamespace).In(rooms...) }
func (svr *Server) Except(rooms ...Room) BroadcastOperator { return svr.Of(RootNamespace).Except(rooms...) }

// Len returns the number of live engine sessions.
func (svr *Server) Len() int { return svr.eio.Len() }

func (svr *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { svr.eio.ServeHTTP(w, r) }

// Run delivers broadcasts published by other nodes until ctx is done. With no
// adapter it only waits for ctx.
func (svr *Server) Run(ctx context.Context) error {
	if svr.adapter == nil {
		<-ctx.Done()
		return nil
	}
	err := svr.adapter.Run(ctx, svr.deliverRemote)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close ends every session, then stops the scheduler if the server made it.
func (svr *Server) Close() {
	svr.eio.Close()
	if svr.ownSched {
		svr.sched.Close()
	}
}

func (svr *Server) conn(id SessionID) (*conn, bool) {
	v, ok := svr.conns.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*conn), true
}

func (svr *Server) report(ctx ErrorContext, err error) {
	if svr.onError != nil {
		svr.onError(ctx, err)
		return
	}
	svr.log.Warn("socket error", "sid", ctx.SessionID, "nsp", ctx.Namespace, "event", ctx.Event, "err", err)
}

func (svr *Server) engineError(sess *eio.Session, err error) {
	var ctx ErrorContext
	if sess != nil {
		ctx.SessionID = sess.ID
	}
	if errors.Is(err, eiot.ErrDecodeFailed) || errors.Is(err, eio.ErrParseError) {
		svr.metrics.decodeErrors.Inc()
	}
	svr.report(ctx, err)
}

func (svr *Server) sent(_ *eio.Session, pac eiop.Packet) {
	svr.metrics.sent.WithLabelValues(pac.T.String()).Inc()
}

// timeoutFor picks the ack timeout of one emit: the callback's own, if it
// has one, else the server default.
func (svr *Server) timeoutFor(a interface{}) time.Duration {
	if t, ok := a.(interface{ AckTimeout() time.Duration }); ok && t.AckTimeout() > 0 {
		return t.AckTimeout()
	}
	return svr.ackTimeout
}

func apiNamespace(name string) string {
	if ns := siop.NormalizeNamespace(name); ns != "" {
		return ns
	}
	return RootNamespace
}
