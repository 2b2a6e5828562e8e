package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/absmach/fedlearn/coordinator"
	"github.com/absmach/fedlearn/pkg/fl"
)

var _ coordinator.Service = (*loggingMiddleware)(nil)

type loggingMiddleware struct {
	logger *slog.Logger
	svc    coordinator.Service
}

func Logging(logger *slog.Logger, svc coordinator.Service) coordinator.Service {
	return &loggingMiddleware{
		logger: logger,
		svc:    svc,
	}
}

func (lm *loggingMiddleware) RegisterClient(ctx context.Context, info coordinator.ClientInfo) (resp coordinator.ClientInfo, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("client",
				slog.String("id", resp.ID),
				slog.String("name", resp.Name),
				slog.String("address", info.Address),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Register client failed", args...)

			return
		}
		lm.logger.Info("Register client completed successfully", args...)
	}(time.Now())

	return lm.svc.RegisterClient(ctx, info)
}

func (lm *loggingMiddleware) ListClients(ctx context.Context) (resp []coordinator.ClientInfo, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Int("count", len(resp)),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("List clients failed", args...)

			return
		}
		lm.logger.Info("List clients completed successfully", args...)
	}(time.Now())

	return lm.svc.ListClients(ctx)
}

func (lm *loggingMiddleware) RemoveClient(ctx context.Context, clientID string) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("client",
				slog.String("id", clientID),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Remove client failed", args...)

			return
		}
		lm.logger.Info("Remove client completed successfully", args...)
	}(time.Now())

	return lm.svc.RemoveClient(ctx, clientID)
}

func (lm *loggingMiddleware) StartRun(ctx context.Context, cfg fl.RunConfig) (resp fl.Run, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("run",
				slog.String("id", resp.ID),
				slog.String("name", resp.Name),
				slog.Int("num_rounds", cfg.NumRounds),
				slog.Int("min_clients", cfg.MinClients),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Start run failed", args...)

			return
		}
		lm.logger.Info("Start run completed successfully", args...)
	}(time.Now())

	return lm.svc.StartRun(ctx, cfg)
}

func (lm *loggingMiddleware) GetRun(ctx context.Context, runID string) (resp fl.Run, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("run",
				slog.String("id", runID),
				slog.String("status", string(resp.Status)),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get run failed", args...)

			return
		}
		lm.logger.Info("Get run completed successfully", args...)
	}(time.Now())

	return lm.svc.GetRun(ctx, runID)
}

func (lm *loggingMiddleware) ListRuns(ctx context.Context, offset, limit uint64) (resp fl.RunPage, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Uint64("offset", offset),
			slog.Uint64("limit", limit),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("List runs failed", args...)

			return
		}
		lm.logger.Info("List runs completed successfully", args...)
	}(time.Now())

	return lm.svc.ListRuns(ctx, offset, limit)
}

func (lm *loggingMiddleware) StopRun(ctx context.Context, runID string) (resp fl.Run, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("run",
				slog.String("id", runID),
				slog.String("status", string(resp.Status)),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Stop run failed", args...)

			return
		}
		lm.logger.Info("Stop run completed successfully", args...)
	}(time.Now())

	return lm.svc.StopRun(ctx, runID)
}

func (lm *loggingMiddleware) GetHistory(ctx context.Context, runID string) (resp fl.RunHistory, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("run",
				slog.String("id", runID),
				slog.Int("rounds", len(resp)),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get history failed", args...)

			return
		}
		lm.logger.Info("Get history completed successfully", args...)
	}(time.Now())

	return lm.svc.GetHistory(ctx, runID)
}

func (lm *loggingMiddleware) GetGlobalParameters(ctx context.Context, runID string) (resp fl.Checkpoint, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("checkpoint",
				slog.String("run_id", runID),
				slog.Int("round", resp.RoundIndex),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get global parameters failed", args...)

			return
		}
		lm.logger.Info("Get global parameters completed successfully", args...)
	}(time.Now())

	return lm.svc.GetGlobalParameters(ctx, runID)
}
