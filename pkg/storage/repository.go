package storage

import (
	"context"

	"github.com/absmach/fedlearn/pkg/fl"
)

type RunRepository interface {
	Create(ctx context.Context, r fl.Run) error
	Get(ctx context.Context, id string) (fl.Run, error)
	Update(ctx context.Context, r fl.Run) error
	// List returns runs newest first.
	List(ctx context.Context, offset, limit uint64) ([]fl.Run, uint64, error)
}

type RoundRepository interface {
	Save(ctx context.Context, runID string, s fl.RoundSummary) error
	// List returns the run's rounds ordered by round index.
	List(ctx context.Context, runID string) (fl.RunHistory, error)
}

type CheckpointRepository interface {
	Save(ctx context.Context, c fl.Checkpoint) error
	// Latest returns the checkpoint with the highest round index.
	Latest(ctx context.Context, runID string) (fl.Checkpoint, error)
}
