package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/absmach/fedlearn/client"
	"github.com/absmach/fedlearn/pkg/fl"
)

var _ client.Service = (*loggingMiddleware)(nil)

type loggingMiddleware struct {
	logger *slog.Logger
	svc    client.Service
}

func Logging(logger *slog.Logger, svc client.Service) client.Service {
	return &loggingMiddleware{
		logger: logger,
		svc:    svc,
	}
}

func (lm *loggingMiddleware) ID() string {
	return lm.svc.ID()
}

func (lm *loggingMiddleware) GetParameters(ctx context.Context) (p fl.ParameterSet, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Int("tensors", len(p)),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get parameters failed", args...)

			return
		}
		lm.logger.Info("Get parameters completed successfully", args...)
	}(time.Now())

	return lm.svc.GetParameters(ctx)
}

func (lm *loggingMiddleware) Fit(ctx context.Context, params fl.ParameterSet, cfg fl.RoundConfig) (r fl.ClientReport, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("round",
				slog.String("run_id", cfg.RunID),
				slog.Int("index", cfg.RoundIndex),
			),
			slog.Int("num_samples", r.NumSamples),
			slog.Float64("dp_enabled", r.Metrics["dp_enabled"]),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Fit failed", args...)

			return
		}
		lm.logger.Info("Fit completed successfully", args...)
	}(time.Now())

	return lm.svc.Fit(ctx, params, cfg)
}

func (lm *loggingMiddleware) Evaluate(ctx context.Context, params fl.ParameterSet, cfg fl.RoundConfig) (r fl.ClientReport, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("round",
				slog.String("run_id", cfg.RunID),
				slog.Int("index", cfg.RoundIndex),
			),
			slog.Int("num_samples", r.NumSamples),
			slog.Float64("loss", r.Loss),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Evaluate failed", args...)

			return
		}
		lm.logger.Info("Evaluate completed successfully", args...)
	}(time.Now())

	return lm.svc.Evaluate(ctx, params, cfg)
}
