// Command socketio-server runs a Socket.IO server with a small chat
// namespace. Several nodes can be started in one process; they share an
// in-process bus so a broadcast on one node reaches clients of the others.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/creachadair/taskgroup"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	sio "github.com/relaymesh/socketio"
	"github.com/relaymesh/socketio/adaptor/pubsub"
	eiot "github.com/relaymesh/socketio/engineio/transport"
	siop "github.com/relaymesh/socketio/protocol"
)

type config struct {
	addr        string
	metricsAddr string
	nodes       int
	debug       bool

	path            string
	pingInterval    time.Duration
	pingTimeout     time.Duration
	upgradeTimeout  time.Duration
	firstData       time.Duration
	ackTimeout      time.Duration
	maxPayload      int64
	transports      []string
	allowUpgrades   bool
	origins         []string
	compression     bool
	msgpack         bool
	shutdownTimeout time.Duration
}

func main() {
	var cfg config

	rootCmd := &cobra.Command{
		Use:   "socketio-server",
		Short: "Run a Socket.IO server",
		Long: `socketio-server serves Socket.IO clients over HTTP long-polling and
WebSocket. The "/chat" namespace echoes messages back to their sender and
relays "say" events to everyone else in the same room.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}

	f := rootCmd.Flags()
	f.StringVar(&cfg.addr, "addr", ":3000", "listen address of the first node")
	f.StringVar(&cfg.metricsAddr, "metrics-addr", ":9090", "listen address for /metrics, empty to disable")
	f.IntVar(&cfg.nodes, "nodes", 1, "number of nodes, on consecutive ports")
	f.BoolVar(&cfg.debug, "debug", false, "log at debug level")

	f.StringVar(&cfg.path, "path", "/socket.io/", "mount path")
	f.DurationVar(&cfg.pingInterval, "ping-interval", 25*time.Second, "heartbeat interval")
	f.DurationVar(&cfg.pingTimeout, "ping-timeout", 20*time.Second, "heartbeat timeout")
	f.DurationVar(&cfg.upgradeTimeout, "upgrade-timeout", 10*time.Second, "time allowed for a transport upgrade")
	f.DurationVar(&cfg.firstData, "first-data-timeout", 5*time.Second, "time a new polling session may stay silent")
	f.DurationVar(&cfg.ackTimeout, "ack-timeout", 10*time.Second, "default acknowledgment timeout")
	f.Int64Var(&cfg.maxPayload, "max-payload", 1e6, "largest accepted request body, in bytes")
	f.StringSliceVar(&cfg.transports, "transports", []string{"polling", "websocket"}, "allowed transports")
	f.BoolVar(&cfg.allowUpgrades, "allow-upgrades", true, "allow upgrading polling sessions to websocket")
	f.StringSliceVar(&cfg.origins, "origins", nil, "allowed CORS origins, empty allows all")
	f.BoolVar(&cfg.compression, "compression", true, "gzip polling responses")
	f.BoolVar(&cfg.msgpack, "msgpack", false, "use the msgpack parser instead of JSON")
	f.DurationVar(&cfg.shutdownTimeout, "shutdown-timeout", 5*time.Second, "grace period for open requests on exit")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config) error {
	if cfg.nodes < 1 {
		return fmt.Errorf("--nodes must be at least 1, got %d", cfg.nodes)
	}
	host, port, err := splitAddr(cfg.addr)
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if cfg.debug {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g := taskgroup.New(taskgroup.Trigger(cancel))

	var bus *pubsub.Bus
	if cfg.nodes > 1 {
		bus = pubsub.NewBus()
		defer bus.Close()
	}

	for i := 0; i < cfg.nodes; i++ {
		node := strconv.Itoa(i)
		nlog := log.With("node", node)

		opts := cfg.options()
		opts = append(opts,
			sio.WithLogger(nlog),
			sio.WithRegisterer(prometheus.WrapRegistererWith(prometheus.Labels{"node": node}, reg)),
		)
		if bus != nil {
			opts = append(opts, sio.WithAdapter(pubsub.New(bus, bus).WithLogger(nlog)))
		}

		svr := sio.NewServer(opts...)
		chat(svr)

		hs := &http.Server{
			Addr:              net.JoinHostPort(host, strconv.Itoa(port+i)),
			Handler:           router(svr, cfg.path),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error { return svr.Run(ctx) })
		g.Go(serve(ctx, hs, nlog, cfg.shutdownTimeout, svr.Close))
	}

	if cfg.metricsAddr != "" {
		mux := chi.NewRouter()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		hs := &http.Server{Addr: cfg.metricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		g.Go(serve(ctx, hs, log.With("component", "metrics"), cfg.shutdownTimeout, nil))
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (cfg config) options() []sio.Option {
	names := make([]eiot.Name, len(cfg.transports))
	for i, name := range cfg.transports {
		names[i] = eiot.Name(name)
	}

	opts := []sio.Option{
		sio.WithPath(cfg.path),
		sio.WithAckTimeout(cfg.ackTimeout),
		sio.WithPingInterval(cfg.pingInterval),
		sio.WithPingTimeout(cfg.pingTimeout),
		sio.WithUpgradeTimeout(cfg.upgradeTimeout),
		sio.WithFirstDataTimeout(cfg.firstData),
		sio.WithMaxPayload(cfg.maxPayload),
		sio.WithTransports(names...),
		sio.WithAllowUpgrades(cfg.allowUpgrades),
		sio.WithAllowedOrigins(cfg.origins...),
		sio.WithHTTPCompression(cfg.compression),
	}
	if cfg.msgpack {
		opts = append(opts, sio.WithParser(siop.MsgpackParser{}))
	}
	return opts
}

func router(svr *sio.Server, path string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %d\n", svr.Len())
	})
	r.Handle(path, svr)
	r.Handle(path+"*", svr)
	return r
}

// serve runs hs until ctx is done, then shuts it down and calls done.
func serve(ctx context.Context, hs *http.Server, log *slog.Logger, grace time.Duration, done func()) func() error {
	return func() error {
		errc := make(chan error, 1)
		go func() { errc <- hs.ListenAndServe() }()
		log.Info("listening", "addr", hs.Addr)

		select {
		case err := <-errc:
			return err
		case <-ctx.Done():
		}

		sctx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		err := hs.Shutdown(sctx)
		if done != nil {
			done()
		}
		if err != nil {
			return err
		}
		return ctx.Err()
	}
}

func splitAddr(addr string) (string, int, error) {
	host, p, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("bad --addr %q: %w", addr, err)
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		return "", 0, fmt.Errorf("bad --addr port %q: %w", p, err)
	}
	return host, port, nil
}
