package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/wavechat/gateway/internal/instance"
)

type Options struct {
	Labels prometheus.Labels
}

func New(o Options) instance.Prometheus {
	return &Instance{
		connectionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "gateway_connections_open",
			Help:        "Number of open websocket connections",
			ConstLabels: o.Labels,
		}),
		identifiedSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "gateway_identified_sessions",
			Help:        "Number of authenticated sessions",
			ConstLabels: o.Labels,
		}),
		eventsDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "gateway_events_dispatched_total",
			Help:        "Dispatch events written to local sockets",
			ConstLabels: o.Labels,
		}),
		fanoutPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "gateway_fanout_published_total",
			Help:        "Events published on the fanout bus",
			ConstLabels: o.Labels,
		}),
		fanoutReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "gateway_fanout_received_total",
			Help:        "Events received from the fanout bus",
			ConstLabels: o.Labels,
		}),
		presenceWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "gateway_presence_writes_total",
			Help:        "Presence registry writes",
			ConstLabels: o.Labels,
		}),
		rateLimitRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "gateway_rate_limit_rejections_total",
			Help:        "Frames rejected by a rate limit bucket",
			ConstLabels: o.Labels,
		}),
	}
}

type Instance struct {
	connectionsOpen     prometheus.Gauge
	identifiedSessions  prometheus.Gauge
	eventsDispatched    prometheus.Counter
	fanoutPublished     prometheus.Counter
	fanoutReceived      prometheus.Counter
	presenceWrites      prometheus.Counter
	rateLimitRejections prometheus.Counter
}

func (m *Instance) Register(r prometheus.Registerer) {
	r.MustRegister(
		m.connectionsOpen,
		m.identifiedSessions,
		m.eventsDispatched,
		m.fanoutPublished,
		m.fanoutReceived,
		m.presenceWrites,
		m.rateLimitRejections,
	)
}

func (m *Instance) ConnectionsOpen() prometheus.Gauge       { return m.connectionsOpen }
func (m *Instance) IdentifiedSessions() prometheus.Gauge    { return m.identifiedSessions }
func (m *Instance) EventsDispatched() prometheus.Counter    { return m.eventsDispatched }
func (m *Instance) FanoutPublished() prometheus.Counter     { return m.fanoutPublished }
func (m *Instance) FanoutReceived() prometheus.Counter      { return m.fanoutReceived }
func (m *Instance) PresenceWrites() prometheus.Counter      { return m.presenceWrites }
func (m *Instance) RateLimitRejections() prometheus.Counter { return m.rateLimitRejections }
