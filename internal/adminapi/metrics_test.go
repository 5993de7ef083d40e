package adminapi

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"tinyserve/pkg/types"
)

// TestMetricsMiddleware_EmitsRequestCounters verifies that wrapping a handler
// with MetricsMiddleware results in request metrics being exposed via the
// Prometheus /metrics handler.
func TestMetricsMiddleware_EmitsRequestCounters(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	rr := httptest.NewRecorder()
	MetricsMiddleware(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/test", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	mrr := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(mrr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if mrr.Code != http.StatusOK {
		t.Fatalf("/metrics status=%d", mrr.Code)
	}
	if !bytes.Contains(mrr.Body.Bytes(), []byte("tinyserve_http_requests_total")) {
		t.Fatalf("expected tinyserve_http_requests_total in metrics")
	}
}

func TestMetricsRouter(t *testing.T) {
	h := NewMetricsRouter()
	w := do(t, h, http.MethodGet, "/healthz")
	if w.Code != http.StatusOK {
		t.Fatalf("healthz status=%d", w.Code)
	}
	w = do(t, h, http.MethodGet, "/metrics")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "tinyserve_http_requests_total") {
		t.Fatalf("metrics status=%d", w.Code)
	}
}

func TestPoolCollector(t *testing.T) {
	svc := &mockService{status: types.PoolStatus{
		Size: 3,
		Workers: []types.WorkerStatus{
			{Index: 0, State: types.WorkerRunning},
			{Index: 1, State: types.WorkerRunning},
			{Index: 2, State: types.WorkerExited},
		},
	}}
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewPoolCollector(svc))
	want := `
# HELP tinyserve_pool_workers Workers by state
# TYPE tinyserve_pool_workers gauge
tinyserve_pool_workers{state="exited"} 1
tinyserve_pool_workers{state="running"} 2
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(want), "tinyserve_pool_workers"); err != nil {
		t.Fatal(err)
	}
	if n := testutil.CollectAndCount(NewPoolCollector(svc)); n != 4 {
		t.Fatalf("expected 4 series, got %d", n)
	}
}
