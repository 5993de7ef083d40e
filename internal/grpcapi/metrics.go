package grpcapi

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	rpcRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tinyserve",
			Subsystem: "rpc",
			Name:      "requests_total",
			Help:      "Total number of RPCs handled by this worker",
		},
		[]string{"method", "code"},
	)

	rpcRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tinyserve",
			Subsystem: "rpc",
			Name:      "request_duration_seconds",
			Help:      "Duration of RPCs in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	rpcInflight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "tinyserve",
			Subsystem: "rpc",
			Name:      "inflight_requests",
			Help:      "In-flight RPCs",
		},
		[]string{"method"},
	)

	rpcInbandErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tinyserve",
			Subsystem: "rpc",
			Name:      "inband_errors_total",
			Help:      "RPCs answered with an {error} payload",
		},
		[]string{"method"},
	)

	rpcPanicsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tinyserve",
			Subsystem: "rpc",
			Name:      "panics_total",
			Help:      "Panics recovered by the RPC layer",
		},
	)
)

func init() {
	prometheus.MustRegister(rpcRequestsTotal, rpcRequestDuration, rpcInflight, rpcInbandErrors, rpcPanicsTotal)
}
