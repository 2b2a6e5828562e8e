package middleware

import (
	"context"
	"time"

	"github.com/absmach/fedlearn/client"
	"github.com/absmach/fedlearn/pkg/fl"
	"github.com/go-kit/kit/metrics"
)

var _ client.Service = (*metricsMiddleware)(nil)

type metricsMiddleware struct {
	counter metrics.Counter
	latency metrics.Histogram
	svc     client.Service
}

func Metrics(counter metrics.Counter, latency metrics.Histogram, svc client.Service) client.Service {
	return &metricsMiddleware{
		counter: counter,
		latency: latency,
		svc:     svc,
	}
}

func (mm *metricsMiddleware) ID() string {
	return mm.svc.ID()
}

func (mm *metricsMiddleware) GetParameters(ctx context.Context) (fl.ParameterSet, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "get-parameters").Add(1)
		mm.latency.With("method", "get-parameters").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.GetParameters(ctx)
}

func (mm *metricsMiddleware) Fit(ctx context.Context, params fl.ParameterSet, cfg fl.RoundConfig) (fl.ClientReport, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "fit").Add(1)
		mm.latency.With("method", "fit").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Fit(ctx, params, cfg)
}

func (mm *metricsMiddleware) Evaluate(ctx context.Context, params fl.ParameterSet, cfg fl.RoundConfig) (fl.ClientReport, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "evaluate").Add(1)
		mm.latency.With("method", "evaluate").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Evaluate(ctx, params, cfg)
}
