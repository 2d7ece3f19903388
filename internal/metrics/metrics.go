package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Realtime metrics
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_ws_connections_active",
			Help: "Live websocket connections",
		},
	)

	UsersOnline = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_users_online",
			Help: "Users with at least one live connection",
		},
	)

	EventsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_events_emitted_total",
			Help: "Outbound events enqueued to connections",
		},
		[]string{"event", "mode"}, // mode: "user", "room", "broadcast", "connection"
	)

	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_events_dropped_total",
			Help: "Outbound events that could not be delivered",
		},
		[]string{"reason"}, // "offline", "slow_consumer", "closed"
	)

	// Business metrics
	Mutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_mutations_total",
			Help: "Social graph mutations by outcome",
		},
		[]string{"op", "result"},
	)

	UsersRegistered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_users_registered_total",
			Help: "Total users registered",
		},
	)

	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_sent_total",
			Help: "Total messages sent",
		},
		[]string{"kind"}, // "channel" or "private"
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	// Infrastructure metrics
	RedisLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chat_redis_latency_seconds",
			Help:    "Redis operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05},
		},
	)

	PostgresLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chat_postgres_latency_seconds",
			Help:    "PostgreSQL query latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1},
		},
	)
)

// ObservePostgres starts a latency timer; call the returned func when done.
func ObservePostgres() func() {
	start := time.Now()
	return func() { PostgresLatency.Observe(time.Since(start).Seconds()) }
}

// ObserveRedis starts a latency timer; call the returned func when done.
func ObserveRedis() func() {
	start := time.Now()
	return func() { RedisLatency.Observe(time.Since(start).Seconds()) }
}
