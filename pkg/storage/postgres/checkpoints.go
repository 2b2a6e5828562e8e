package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/absmach/fedlearn/pkg/fl"
)

type CheckpointRepository struct {
	db *Database
}

func NewCheckpointRepository(db *Database) *CheckpointRepository {
	return &CheckpointRepository{db: db}
}

type dbCheckpoint struct {
	RunID      string    `db:"run_id"`
	RoundIndex int       `db:"round_index"`
	Parameters []byte    `db:"parameters"`
	CreatedAt  time.Time `db:"created_at"`
}

func (r *CheckpointRepository) Save(ctx context.Context, c fl.Checkpoint) error {
	data, err := fl.MarshalParameters(c.Parameters)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO checkpoints (run_id, round_index, parameters, created_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (run_id, round_index) DO UPDATE SET parameters = excluded.parameters, created_at = excluded.created_at`,
		c.RunID, c.RoundIndex, data, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCreate, err)
	}

	return nil
}

func (r *CheckpointRepository) Latest(ctx context.Context, runID string) (fl.Checkpoint, error) {
	var row dbCheckpoint
	if err := r.db.GetContext(ctx, &row,
		`SELECT run_id, round_index, parameters, created_at FROM checkpoints
		WHERE run_id = $1 ORDER BY round_index DESC LIMIT 1`, runID,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fl.Checkpoint{}, ErrNotFound
		}

		return fl.Checkpoint{}, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	params, err := fl.UnmarshalParameters(row.Parameters)
	if err != nil {
		return fl.Checkpoint{}, err
	}

	return fl.Checkpoint{
		RunID:      row.RunID,
		RoundIndex: row.RoundIndex,
		Parameters: params,
		CreatedAt:  row.CreatedAt,
	}, nil
}
