package socketio

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	sessionsActive prometheus.Gauge
	sessionsTotal  prometheus.Counter
	received       *prometheus.CounterVec
	sent           *prometheus.CounterVec
	decodeErrors   prometheus.Counter
	ackTimeouts    prometheus.Counter
	broadcasts     prometheus.Counter
}

func newMetrics(reg prometheus.Registerer, pendingAcks func() int) *metrics {
	f := promauto.With(reg)
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "socketio_acks_pending",
		Help: "Emitted packets waiting for their acknowledgment.",
	}, func() float64 { return float64(pendingAcks()) })

	return &metrics{
		sessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "socketio_sessions_active",
			Help: "Engine sessions currently open.",
		}),
		sessionsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "socketio_sessions_total",
			Help: "Engine sessions opened.",
		}),
		received: f.NewCounterVec(prometheus.CounterOpts{
			Name: "socketio_packets_received_total",
			Help: "Engine packets received, by packet type.",
		}, []string{"type"}),
		sent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "socketio_packets_sent_total",
			Help: "Engine packets queued, by packet type.",
		}, []string{"type"}),
		decodeErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "socketio_decode_errors_total",
			Help: "Packets that could not be decoded.",
		}),
		ackTimeouts: f.NewCounter(prometheus.CounterOpts{
			Name: "socketio_ack_timeouts_total",
			Help: "Acknowledgments that did not arrive in time.",
		}),
		broadcasts: f.NewCounter(prometheus.CounterOpts{
			Name: "socketio_broadcasts_total",
			Help: "Broadcasts started on this node.",
		}),
	}
}
