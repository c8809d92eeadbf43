// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Stream lifecycle metrics
	SessionsOpened     prometheus.Counter
	ConnectErrors      prometheus.Counter
	ReconnectAttempts  prometheus.Counter
	Abandoned          prometheus.Counter
	Live               prometheus.Gauge
	CurrentAttempt     prometheus.Gauge
	StreamEvents       *prometheus.CounterVec
	PingsSent          *prometheus.CounterVec
	HandlerFaults      prometheus.Counter
	LastEventTimestamp prometheus.Gauge

	// Update metrics
	AccountUpdates  prometheus.Counter
	SlotUpdates     prometheus.Counter
	HighestSlotSeen prometheus.Gauge

	// Storage metrics
	UpdatesStored   *prometheus.CounterVec
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// RPC metrics
	RPCCallLatency *prometheus.HistogramVec
	RPCCalls       *prometheus.CounterVec
	RPCSlotLag     prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "sonic_stream"
	}

	return &Metrics{
		SessionsOpened: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "sessions_opened_total",
			Help:      "Total number of sessions that were opened and subscribed",
		}),
		ConnectErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "connect_errors_total",
			Help:      "Total number of failed session opens or subscription writes",
		}),
		ReconnectAttempts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "reconnect_attempts_total",
			Help:      "Total number of scheduled reconnect attempts",
		}),
		Abandoned: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "abandoned_total",
			Help:      "Total number of subscriptions abandoned after exhausting the retry budget",
		}),
		Live: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "live",
			Help:      "1 while a session is live, 0 otherwise",
		}),
		CurrentAttempt: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "reconnect_attempt",
			Help:      "Reconnect attempts consumed since the last successful connect",
		}),
		StreamEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "events_total",
			Help:      "Total number of session events by kind",
		}, []string{"kind"}),
		PingsSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "pings_total",
			Help:      "Total number of keep-alive pings by status",
		}, []string{"status"}),
		HandlerFaults: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "handler_faults_total",
			Help:      "Total number of handler errors and panics",
		}),
		LastEventTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "last_event_timestamp",
			Help:      "Unix timestamp of the last data event",
		}),

		AccountUpdates: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "updates",
			Name:      "account_updates_total",
			Help:      "Total number of account updates decoded",
		}),
		SlotUpdates: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "updates",
			Name:      "slot_updates_total",
			Help:      "Total number of slot updates decoded",
		}),
		HighestSlotSeen: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "updates",
			Name:      "highest_slot_seen",
			Help:      "Highest slot number seen in any update",
		}),

		UpdatesStored: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "updates_stored_total",
			Help:      "Total number of updates written by store and status",
		}, []string{"store", "status"}),
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		RPCCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_calls_total",
			Help:      "Solana RPC call outcomes by method",
		}, []string{"method", "outcome"}),
		RPCSlotLag: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_slot_lag",
			Help:      "RPC node slot minus the highest slot seen on the stream",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordSessionOpened marks a session as live after its request was written.
func RecordSessionOpened() {
	DefaultMetrics.SessionsOpened.Inc()
	DefaultMetrics.Live.Set(1)
	DefaultMetrics.CurrentAttempt.Set(0)
}

// RecordConnectError increments the connect error counter.
func RecordConnectError() {
	DefaultMetrics.ConnectErrors.Inc()
}

// RecordReconnectAttempt records a scheduled reconnect.
func RecordReconnectAttempt(attempt int) {
	DefaultMetrics.ReconnectAttempts.Inc()
	DefaultMetrics.CurrentAttempt.Set(float64(attempt))
	DefaultMetrics.Live.Set(0)
}

// RecordAbandoned records an exhausted retry budget.
func RecordAbandoned() {
	DefaultMetrics.Abandoned.Inc()
	DefaultMetrics.Live.Set(0)
}

// RecordStreamEvent records a session event by kind.
func RecordStreamEvent(kind string, unixSeconds float64) {
	DefaultMetrics.StreamEvents.WithLabelValues(kind).Inc()
	if kind == "data" {
		DefaultMetrics.LastEventTimestamp.Set(unixSeconds)
		return
	}
	DefaultMetrics.Live.Set(0)
}

// RecordPing records a keep-alive ping outcome.
func RecordPing(err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	DefaultMetrics.PingsSent.WithLabelValues(status).Inc()
}

// RecordHandlerFault increments the handler fault counter.
func RecordHandlerFault() {
	DefaultMetrics.HandlerFaults.Inc()
}

// RecordAccountUpdate records a decoded account update.
func RecordAccountUpdate(slot uint64) {
	DefaultMetrics.AccountUpdates.Inc()
	UpdateHighestSlot(slot)
}

// RecordSlotUpdate records a decoded slot update.
func RecordSlotUpdate(slot uint64) {
	DefaultMetrics.SlotUpdates.Inc()
	UpdateHighestSlot(slot)
}

var highestSlot atomic.Uint64

// UpdateHighestSlot raises the highest slot gauge.
func UpdateHighestSlot(slot uint64) {
	for {
		cur := highestSlot.Load()
		if slot <= cur {
			return
		}
		if highestSlot.CompareAndSwap(cur, slot) {
			DefaultMetrics.HighestSlotSeen.Set(float64(slot))
			return
		}
	}
}

// HighestSlot returns the highest slot recorded by UpdateHighestSlot.
func HighestSlot() uint64 {
	return highestSlot.Load()
}

// RecordSlotLag sets the RPC slot lag gauge. A stream ahead of the RPC node
// reports a negative lag.
func RecordSlotLag(lag int64) {
	DefaultMetrics.RPCSlotLag.Set(float64(lag))
}

// RecordStored records a store write outcome.
func RecordStored(store string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	DefaultMetrics.UpdatesStored.WithLabelValues(store, status).Inc()
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordRPCCall counts an RPC call outcome: ok, retry, rpc_error,
// http_error, decode_error or exhausted.
func RecordRPCCall(method, outcome string) {
	DefaultMetrics.RPCCalls.WithLabelValues(method, outcome).Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
