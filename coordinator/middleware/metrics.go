package middleware

import (
	"context"
	"time"

	"github.com/absmach/fedlearn/coordinator"
	"github.com/absmach/fedlearn/pkg/fl"
	"github.com/go-kit/kit/metrics"
)

var _ coordinator.Service = (*metricsMiddleware)(nil)

type metricsMiddleware struct {
	counter metrics.Counter
	latency metrics.Histogram
	svc     coordinator.Service
}

func Metrics(counter metrics.Counter, latency metrics.Histogram, svc coordinator.Service) coordinator.Service {
	return &metricsMiddleware{
		counter: counter,
		latency: latency,
		svc:     svc,
	}
}

func (mm *metricsMiddleware) observe(method string, begin time.Time) {
	mm.counter.With("method", method).Add(1)
	mm.latency.With("method", method).Observe(time.Since(begin).Seconds())
}

func (mm *metricsMiddleware) RegisterClient(ctx context.Context, info coordinator.ClientInfo) (coordinator.ClientInfo, error) {
	defer mm.observe("register-client", time.Now())

	return mm.svc.RegisterClient(ctx, info)
}

func (mm *metricsMiddleware) ListClients(ctx context.Context) ([]coordinator.ClientInfo, error) {
	defer mm.observe("list-clients", time.Now())

	return mm.svc.ListClients(ctx)
}

func (mm *metricsMiddleware) RemoveClient(ctx context.Context, clientID string) error {
	defer mm.observe("remove-client", time.Now())

	return mm.svc.RemoveClient(ctx, clientID)
}

func (mm *metricsMiddleware) StartRun(ctx context.Context, cfg fl.RunConfig) (fl.Run, error) {
	defer mm.observe("start-run", time.Now())

	return mm.svc.StartRun(ctx, cfg)
}

func (mm *metricsMiddleware) GetRun(ctx context.Context, runID string) (fl.Run, error) {
	defer mm.observe("get-run", time.Now())

	return mm.svc.GetRun(ctx, runID)
}

func (mm *metricsMiddleware) ListRuns(ctx context.Context, offset, limit uint64) (fl.RunPage, error) {
	defer mm.observe("list-runs", time.Now())

	return mm.svc.ListRuns(ctx, offset, limit)
}

func (mm *metricsMiddleware) StopRun(ctx context.Context, runID string) (fl.Run, error) {
	defer mm.observe("stop-run", time.Now())

	return mm.svc.StopRun(ctx, runID)
}

func (mm *metricsMiddleware) GetHistory(ctx context.Context, runID string) (fl.RunHistory, error) {
	defer mm.observe("get-history", time.Now())

	return mm.svc.GetHistory(ctx, runID)
}

func (mm *metricsMiddleware) GetGlobalParameters(ctx context.Context, runID string) (fl.Checkpoint, error) {
	defer mm.observe("get-global-parameters", time.Now())

	return mm.svc.GetGlobalParameters(ctx, runID)
}
