package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RPCCallsTotal tracks ledger RPC calls per provider and method
	RPCCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txgate_rpc_calls_total",
			Help: "Total number of ledger RPC calls",
		},
		[]string{"provider", "method"},
	)

	// RPCErrorsTotal tracks ledger RPC errors per provider
	RPCErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txgate_rpc_errors_total",
			Help: "Total number of ledger RPC errors",
		},
		[]string{"provider", "error_type"},
	)

	// RPCLatency tracks ledger RPC call latency
	RPCLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "txgate_rpc_latency_seconds",
			Help:    "Ledger RPC call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "method"},
	)

	// SubmissionsTotal tracks submission outcomes
	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txgate_submissions_total",
			Help: "Total number of submission attempts by result, error code and certainty",
		},
		[]string{"result", "code", "certainty"},
	)

	// MonitorActiveSubscriptions tracks open monitor subscriptions
	MonitorActiveSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "txgate_monitor_active_subscriptions",
			Help: "Number of open monitor subscriptions",
		},
	)

	// MonitorUpdatesTotal tracks emitted stream statuses by the source that produced them
	MonitorUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txgate_monitor_updates_total",
			Help: "Total number of monitor status updates emitted",
		},
		[]string{"status", "source"},
	)

	// MonitorPushDropped tracks push events dropped because a subscription buffer was full
	MonitorPushDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "txgate_monitor_push_dropped_total",
			Help: "Push notifications dropped on full subscription buffers",
		},
	)

	// MonitorSwept tracks subscriptions reclaimed by the sweeper
	MonitorSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "txgate_monitor_swept_total",
			Help: "Subscriptions reclaimed by the periodic sweep",
		},
	)

	// PushConnected reports whether the pubsub connection is up
	PushConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "txgate_push_connected",
			Help: "1 when the ledger pubsub connection is established",
		},
	)

	// GRPCRequestsTotal tracks served gRPC calls
	GRPCRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txgate_grpc_requests_total",
			Help: "Total number of gRPC requests by method and status code",
		},
		[]string{"method", "code"},
	)

	// GRPCLatency tracks gRPC handler latency
	GRPCLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "txgate_grpc_latency_seconds",
			Help:    "gRPC handler latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// DBConnectionPoolUsage tracks the journal database pool usage percentage
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "txgate_db_connection_pool_usage",
			Help: "Journal database connection pool usage percentage",
		},
	)
)
