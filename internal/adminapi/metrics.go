package adminapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"tinyserve/pkg/types"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tinyserve",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tinyserve",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"path", "method", "status"},
	)

	httpInflight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "tinyserve",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "In-flight HTTP requests",
		},
		[]string{"path"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal, httpRequestDuration, httpInflight)
}

// statusRecorder wraps http.ResponseWriter to capture status code
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// MetricsMiddleware instruments requests for Prometheus
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		// The route pattern is only known once chi has routed the request.
		httpInflight.WithLabelValues(r.URL.Path).Inc()
		defer httpInflight.WithLabelValues(r.URL.Path).Dec()
		next.ServeHTTP(sr, r)
		path := routePatternOrPath(r)
		statusLabel := strconv.Itoa(sr.status)
		httpRequestsTotal.WithLabelValues(path, r.Method, statusLabel).Inc()
		httpRequestDuration.WithLabelValues(path, r.Method, statusLabel).Observe(time.Since(start).Seconds())
	})
}

// routePatternOrPath returns the chi route pattern if available, otherwise
// falls back to URL path. This avoids high-cardinality label values.
func routePatternOrPath(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

// poolCollector exports the owner's view of the pool.
type poolCollector struct {
	svc     Service
	size    *prometheus.Desc
	workers *prometheus.Desc
	uptime  *prometheus.Desc
}

// NewPoolCollector returns a collector reporting pool size, workers by state
// and uptime from svc at scrape time.
func NewPoolCollector(svc Service) prometheus.Collector {
	return &poolCollector{
		svc:     svc,
		size:    prometheus.NewDesc("tinyserve_pool_size", "Configured number of workers", nil, nil),
		workers: prometheus.NewDesc("tinyserve_pool_workers", "Workers by state", []string{"state"}, nil),
		uptime:  prometheus.NewDesc("tinyserve_pool_uptime_seconds", "Seconds since the pool started", nil, nil),
	}
}

func (c *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.size
	ch <- c.workers
	ch <- c.uptime
}

func (c *poolCollector) Collect(ch chan<- prometheus.Metric) {
	st := c.svc.Status()
	ch <- prometheus.MustNewConstMetric(c.size, prometheus.GaugeValue, float64(st.Size))
	ch <- prometheus.MustNewConstMetric(c.uptime, prometheus.GaugeValue, float64(st.UptimeSeconds))
	counts := map[types.WorkerState]int{types.WorkerRunning: 0, types.WorkerExited: 0}
	for _, w := range st.Workers {
		counts[w.State]++
	}
	for state, n := range counts {
		ch <- prometheus.MustNewConstMetric(c.workers, prometheus.GaugeValue, float64(n), string(state))
	}
}
