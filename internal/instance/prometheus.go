package instance

import "github.com/prometheus/client_golang/prometheus"

type Prometheus interface {
	Register(r prometheus.Registerer)

	ConnectionsOpen() prometheus.Gauge
	IdentifiedSessions() prometheus.Gauge
	EventsDispatched() prometheus.Counter
	FanoutPublished() prometheus.Counter
	FanoutReceived() prometheus.Counter
	PresenceWrites() prometheus.Counter
	RateLimitRejections() prometheus.Counter
}
