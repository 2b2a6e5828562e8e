package badger

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/absmach/fedlearn/pkg/fl"
)

type RunRepository struct {
	db *Database
}

func NewRunRepository(db *Database) *RunRepository {
	return &RunRepository{db: db}
}

func (r *RunRepository) Create(_ context.Context, run fl.Run) error {
	val, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	return r.db.create([]byte(runPrefix+run.ID), val)
}

func (r *RunRepository) Get(_ context.Context, id string) (fl.Run, error) {
	val, err := r.db.get([]byte(runPrefix + id))
	if err != nil {
		return fl.Run{}, err
	}

	var run fl.Run
	if err := json.Unmarshal(val, &run); err != nil {
		return fl.Run{}, fmt.Errorf("unmarshal error: %w", err)
	}

	return run, nil
}

func (r *RunRepository) Update(_ context.Context, run fl.Run) error {
	val, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	return r.db.update([]byte(runPrefix+run.ID), val)
}

func (r *RunRepository) List(_ context.Context, offset, limit uint64) ([]fl.Run, uint64, error) {
	items, err := r.db.listWithPrefix([]byte(runPrefix))
	if err != nil {
		return nil, 0, err
	}

	runs := make([]fl.Run, 0, len(items))
	for _, val := range items {
		var run fl.Run
		if err := json.Unmarshal(val, &run); err != nil {
			return nil, 0, fmt.Errorf("unmarshal error: %w", err)
		}
		runs = append(runs, run)
	}
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].CreatedAt.After(runs[j].CreatedAt) })

	total := uint64(len(runs))
	if offset >= total {
		return []fl.Run{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}

	return runs[offset:end], total, nil
}

type RoundRepository struct {
	db *Database
}

func NewRoundRepository(db *Database) *RoundRepository {
	return &RoundRepository{db: db}
}

func roundKey(runID string, round int) []byte {
	return []byte(fmt.Sprintf("%s%s:%010d", roundPrefix, runID, round))
}

func (r *RoundRepository) Save(_ context.Context, runID string, s fl.RoundSummary) error {
	val, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	return r.db.set(roundKey(runID, s.RoundIndex), val)
}

func (r *RoundRepository) List(_ context.Context, runID string) (fl.RunHistory, error) {
	items, err := r.db.listWithPrefix([]byte(roundPrefix + runID + ":"))
	if err != nil {
		return nil, err
	}

	history := make(fl.RunHistory, 0, len(items))
	for _, val := range items {
		var s fl.RoundSummary
		if err := json.Unmarshal(val, &s); err != nil {
			return nil, fmt.Errorf("unmarshal error: %w", err)
		}
		history = append(history, s)
	}

	return history, nil
}

type CheckpointRepository struct {
	db *Database
}

func NewCheckpointRepository(db *Database) *CheckpointRepository {
	return &CheckpointRepository{db: db}
}

func checkpointKey(runID string, round int) []byte {
	return []byte(fmt.Sprintf("%s%s:%010d", checkpointPrefix, runID, round))
}

func (r *CheckpointRepository) Save(_ context.Context, c fl.Checkpoint) error {
	val, err := fl.Marshal(c)
	if err != nil {
		return err
	}

	return r.db.set(checkpointKey(c.RunID, c.RoundIndex), val)
}

func (r *CheckpointRepository) Latest(_ context.Context, runID string) (fl.Checkpoint, error) {
	val, err := r.db.lastWithPrefix([]byte(checkpointPrefix + runID + ":"))
	if err != nil {
		return fl.Checkpoint{}, err
	}

	var c fl.Checkpoint
	if err := fl.Unmarshal(val, &c); err != nil {
		return fl.Checkpoint{}, err
	}

	return c, nil
}
