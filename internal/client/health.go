package client

import (
	"context"
	"sort"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"tinyserve/internal/grpcapi"
	"tinyserve/pkg/types"
)

// healthProbeTimeout bounds each per-worker probe.
var healthProbeTimeout = 5 * time.Second

// Health probes every open channel. Workers that do not answer SERVING,
// including unreachable ones, are reported as stopped serving. It never fails.
func (c *Client) Health(ctx context.Context) types.HealthReport {
	report := types.HealthReport{Serving: []int{}, StoppedServing: []int{}}
	for _, ch := range c.chans.all() {
		pctx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
		resp, err := healthpb.NewHealthClient(ch.conn).Check(pctx, &healthpb.HealthCheckRequest{Service: grpcapi.ServiceName})
		cancel()
		if err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING {
			report.Serving = append(report.Serving, ch.pid)
		} else {
			report.StoppedServing = append(report.StoppedServing, ch.pid)
		}
	}
	sort.Ints(report.Serving)
	sort.Ints(report.StoppedServing)
	return report
}
