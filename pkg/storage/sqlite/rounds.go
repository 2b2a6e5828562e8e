package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/absmach/fedlearn/pkg/fl"
)

type RoundRepository struct {
	db *Database
}

func NewRoundRepository(db *Database) *RoundRepository {
	return &RoundRepository{db: db}
}

func (r *RoundRepository) Save(ctx context.Context, runID string, s fl.RoundSummary) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO rounds (run_id, round_index, status, loss, summary) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (run_id, round_index) DO UPDATE SET status = excluded.status, loss = excluded.loss, summary = excluded.summary`,
		runID, s.RoundIndex, string(s.Status), s.Loss, data,
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCreate, err)
	}

	return nil
}

func (r *RoundRepository) List(ctx context.Context, runID string) (fl.RunHistory, error) {
	var rows [][]byte
	if err := r.db.SelectContext(ctx, &rows,
		`SELECT summary FROM rounds WHERE run_id = ? ORDER BY round_index`, runID,
	); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	history := make(fl.RunHistory, 0, len(rows))
	for _, data := range rows {
		var s fl.RoundSummary
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("unmarshal error: %w", err)
		}
		history = append(history, s)
	}

	return history, nil
}
