package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects the relay counters exposed on /metrics.
type Metrics struct {
	ConnectionsTotal  prometheus.Counter
	ConnectionsActive prometheus.Gauge
	AdmissionRejects  *prometheus.CounterVec
	FramesReceived    *prometheus.CounterVec
	FramesRelayed     prometheus.Counter
	BytesReceived     prometheus.Counter
	BytesSent         prometheus.Counter
	QueueDrops        prometheus.Counter
	Disconnects       *prometheus.CounterVec
	ChatMessages      prometheus.Counter
}

// NewMetrics registers the relay metrics on reg. A nil registerer falls back
// to the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		ConnectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "gamerelay_connections_total",
			Help: "Total accepted game-channel connections",
		}),
		ConnectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gamerelay_connections_active",
			Help: "Clients currently seated in the session table",
		}),
		AdmissionRejects: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gamerelay_admission_rejects_total",
			Help: "Connections refused before seating",
		}, []string{"reason"}),
		FramesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gamerelay_frames_received_total",
			Help: "Frames received from clients by message type",
		}, []string{"type"}),
		FramesRelayed: factory.NewCounter(prometheus.CounterOpts{
			Name: "gamerelay_frames_relayed_total",
			Help: "Frames enqueued for delivery to peers",
		}),
		BytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "gamerelay_bytes_received_total",
			Help: "Payload bytes received from clients",
		}),
		BytesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "gamerelay_bytes_sent_total",
			Help: "Payload bytes written to clients",
		}),
		QueueDrops: factory.NewCounter(prometheus.CounterOpts{
			Name: "gamerelay_queue_drops_total",
			Help: "Frames dropped from saturated per-client send queues",
		}),
		Disconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gamerelay_disconnects_total",
			Help: "Clients removed from the session table",
		}, []string{"reason"}),
		ChatMessages: factory.NewCounter(prometheus.CounterOpts{
			Name: "gamerelay_chat_messages_total",
			Help: "Public chat messages relayed",
		}),
	}
}
