package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/absmach/fedlearn/pkg/fl"
)

type RunRepository struct {
	db *Database
}

func NewRunRepository(db *Database) *RunRepository {
	return &RunRepository{db: db}
}

type dbRun struct {
	ID              string       `db:"id"`
	Name            string       `db:"name"`
	Status          string       `db:"status"`
	Error           *string      `db:"error"`
	Config          []byte       `db:"config"`
	RoundsCompleted int          `db:"rounds_completed"`
	CreatedAt       time.Time    `db:"created_at"`
	StartedAt       sql.NullTime `db:"started_at"`
	FinishedAt      sql.NullTime `db:"finished_at"`
}

const runColumns = `id, name, status, error, config, rounds_completed, created_at, started_at, finished_at`

func (r *RunRepository) Create(ctx context.Context, run fl.Run) error {
	row, err := toDBRun(run)
	if err != nil {
		return err
	}

	_, err = r.db.NamedExecContext(ctx,
		`INSERT INTO runs (`+runColumns+`)
		VALUES (:id, :name, :status, :error, :config, :rounds_completed, :created_at, :started_at, :finished_at)`,
		row,
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCreate, err)
	}

	return nil
}

func (r *RunRepository) Get(ctx context.Context, id string) (fl.Run, error) {
	var row dbRun
	if err := r.db.GetContext(ctx, &row, `SELECT `+runColumns+` FROM runs WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fl.Run{}, ErrNotFound
		}

		return fl.Run{}, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	return fromDBRun(row)
}

func (r *RunRepository) Update(ctx context.Context, run fl.Run) error {
	row, err := toDBRun(run)
	if err != nil {
		return err
	}

	res, err := r.db.NamedExecContext(ctx,
		`UPDATE runs SET name = :name, status = :status, error = :error, config = :config,
		rounds_completed = :rounds_completed, started_at = :started_at, finished_at = :finished_at
		WHERE id = :id`,
		row,
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUpdate, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *RunRepository) List(ctx context.Context, offset, limit uint64) ([]fl.Run, uint64, error) {
	var total uint64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM runs`); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	var rows []dbRun
	if err := r.db.SelectContext(ctx, &rows,
		`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`,
		limit, offset,
	); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	runs := make([]fl.Run, 0, len(rows))
	for _, row := range rows {
		run, err := fromDBRun(row)
		if err != nil {
			return nil, 0, err
		}
		runs = append(runs, run)
	}

	return runs, total, nil
}

func toDBRun(run fl.Run) (dbRun, error) {
	cfg, err := json.Marshal(run.Config)
	if err != nil {
		return dbRun{}, fmt.Errorf("marshal error: %w", err)
	}

	return dbRun{
		ID:              run.ID,
		Name:            run.Name,
		Status:          string(run.Status),
		Error:           nullString(run.Error),
		Config:          cfg,
		RoundsCompleted: run.RoundsCompleted,
		CreatedAt:       run.CreatedAt,
		StartedAt:       nullTime(run.StartedAt),
		FinishedAt:      nullTime(run.FinishedAt),
	}, nil
}

func fromDBRun(row dbRun) (fl.Run, error) {
	run := fl.Run{
		ID:              row.ID,
		Name:            row.Name,
		Status:          fl.RunStatus(row.Status),
		RoundsCompleted: row.RoundsCompleted,
		CreatedAt:       row.CreatedAt,
	}
	if row.Error != nil {
		run.Error = *row.Error
	}
	if row.StartedAt.Valid {
		run.StartedAt = row.StartedAt.Time
	}
	if row.FinishedAt.Valid {
		run.FinishedAt = row.FinishedAt.Time
	}
	if err := json.Unmarshal(row.Config, &run.Config); err != nil {
		return fl.Run{}, fmt.Errorf("unmarshal error: %w", err)
	}

	return run, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
