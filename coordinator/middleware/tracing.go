package middleware

import (
	"context"

	"github.com/absmach/fedlearn/coordinator"
	"github.com/absmach/fedlearn/pkg/fl"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var _ coordinator.Service = (*tracing)(nil)

type tracing struct {
	tracer trace.Tracer
	svc    coordinator.Service
}

func Tracing(tracer trace.Tracer, svc coordinator.Service) coordinator.Service {
	return &tracing{tracer, svc}
}

func (tm *tracing) RegisterClient(ctx context.Context, info coordinator.ClientInfo) (coordinator.ClientInfo, error) {
	ctx, span := tm.tracer.Start(ctx, "register-client", trace.WithAttributes(
		attribute.String("id", info.ID),
		attribute.String("address", info.Address),
	))
	defer span.End()

	return tm.svc.RegisterClient(ctx, info)
}

func (tm *tracing) ListClients(ctx context.Context) ([]coordinator.ClientInfo, error) {
	ctx, span := tm.tracer.Start(ctx, "list-clients")
	defer span.End()

	return tm.svc.ListClients(ctx)
}

func (tm *tracing) RemoveClient(ctx context.Context, clientID string) error {
	ctx, span := tm.tracer.Start(ctx, "remove-client", trace.WithAttributes(
		attribute.String("id", clientID),
	))
	defer span.End()

	return tm.svc.RemoveClient(ctx, clientID)
}

func (tm *tracing) StartRun(ctx context.Context, cfg fl.RunConfig) (fl.Run, error) {
	ctx, span := tm.tracer.Start(ctx, "start-run", trace.WithAttributes(
		attribute.String("name", cfg.Name),
		attribute.Int("num_rounds", cfg.NumRounds),
		attribute.Int("min_clients", cfg.MinClients),
	))
	defer span.End()

	return tm.svc.StartRun(ctx, cfg)
}

func (tm *tracing) GetRun(ctx context.Context, runID string) (fl.Run, error) {
	ctx, span := tm.tracer.Start(ctx, "get-run", trace.WithAttributes(
		attribute.String("id", runID),
	))
	defer span.End()

	return tm.svc.GetRun(ctx, runID)
}

func (tm *tracing) ListRuns(ctx context.Context, offset, limit uint64) (fl.RunPage, error) {
	ctx, span := tm.tracer.Start(ctx, "list-runs", trace.WithAttributes(
		attribute.Int64("offset", int64(offset)),
		attribute.Int64("limit", int64(limit)),
	))
	defer span.End()

	return tm.svc.ListRuns(ctx, offset, limit)
}

func (tm *tracing) StopRun(ctx context.Context, runID string) (fl.Run, error) {
	ctx, span := tm.tracer.Start(ctx, "stop-run", trace.WithAttributes(
		attribute.String("id", runID),
	))
	defer span.End()

	return tm.svc.StopRun(ctx, runID)
}

func (tm *tracing) GetHistory(ctx context.Context, runID string) (fl.RunHistory, error) {
	ctx, span := tm.tracer.Start(ctx, "get-history", trace.WithAttributes(
		attribute.String("id", runID),
	))
	defer span.End()

	return tm.svc.GetHistory(ctx, runID)
}

func (tm *tracing) GetGlobalParameters(ctx context.Context, runID string) (fl.Checkpoint, error) {
	ctx, span := tm.tracer.Start(ctx, "get-global-parameters", trace.WithAttributes(
		attribute.String("id", runID),
	))
	defer span.End()

	return tm.svc.GetGlobalParameters(ctx, runID)
}
