package middleware

import (
	"context"

	"github.com/absmach/fedlearn/client"
	"github.com/absmach/fedlearn/pkg/fl"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var _ client.Service = (*tracing)(nil)

type tracing struct {
	tracer trace.Tracer
	svc    client.Service
}

func Tracing(tracer trace.Tracer, svc client.Service) client.Service {
	return &tracing{tracer, svc}
}

func (tm *tracing) ID() string {
	return tm.svc.ID()
}

func (tm *tracing) GetParameters(ctx context.Context) (fl.ParameterSet, error) {
	ctx, span := tm.tracer.Start(ctx, "get-parameters", trace.WithAttributes(
		attribute.String("client_id", tm.svc.ID()),
	))
	defer span.End()

	return tm.svc.GetParameters(ctx)
}

func (tm *tracing) Fit(ctx context.Context, params fl.ParameterSet, cfg fl.RoundConfig) (fl.ClientReport, error) {
	ctx, span := tm.tracer.Start(ctx, "fit", trace.WithAttributes(
		attribute.String("client_id", tm.svc.ID()),
		attribute.String("run_id", cfg.RunID),
		attribute.Int("round_index", cfg.RoundIndex),
	))
	defer span.End()

	return tm.svc.Fit(ctx, params, cfg)
}

func (tm *tracing) Evaluate(ctx context.Context, params fl.ParameterSet, cfg fl.RoundConfig) (fl.ClientReport, error) {
	ctx, span := tm.tracer.Start(ctx, "evaluate", trace.WithAttributes(
		attribute.String("client_id", tm.svc.ID()),
		attribute.String("run_id", cfg.RunID),
		attribute.Int("round_index", cfg.RoundIndex),
	))
	defer span.End()

	return tm.svc.Evaluate(ctx, params, cfg)
}
