package postgres

import (
	"errors"
	"fmt"
	"time"

	pkgerrors "github.com/absmach/fedlearn/pkg/errors"
	"github.com/jmoiron/sqlx"
	_ "github.com/jackc/pgx/v5/stdlib"
	migrate "github.com/rubenv/sql-migrate"
)

var (
	ErrDBConnection = errors.New("database connection error")
	ErrDBQuery      = errors.New("database query error")
	ErrMigration    = errors.New("database migration error")
	ErrCreate       = errors.New("create error")
	ErrUpdate       = errors.New("update error")
	ErrNotFound     = pkgerrors.ErrNotFound
)

type Repositories struct {
	Runs        *RunRepository
	Rounds      *RoundRepository
	Checkpoints *CheckpointRepository
}

func NewRepositories(db *Database) *Repositories {
	return &Repositories{
		Runs:        NewRunRepository(db),
		Rounds:      NewRoundRepository(db),
		Checkpoints: NewCheckpointRepository(db),
	}
}

type Database struct {
	*sqlx.DB
}

func NewDatabase(host, port, user, pass, name, sslMode string) (*Database, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s", host, port, user, pass, name, sslMode)
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBConnection, err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	database := &Database{DB: db}

	if err := database.Migrate(); err != nil {
		db.Close()

		return nil, err
	}

	return database, nil
}

func (db *Database) Migrate() error {
	migrations := &migrate.MemoryMigrationSource{
		Migrations: []*migrate.Migration{
			{
				Id: "1_create_tables",
				Up: []string{
					`CREATE TABLE IF NOT EXISTS runs (
						id VARCHAR(36) PRIMARY KEY,
						name VARCHAR(255) NOT NULL,
						status VARCHAR(16) NOT NULL,
						error TEXT,
						config JSONB NOT NULL,
						rounds_completed INTEGER NOT NULL DEFAULT 0,
						created_at TIMESTAMPTZ NOT NULL,
						started_at TIMESTAMPTZ,
						finished_at TIMESTAMPTZ
					)`,
					`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC)`,
					`CREATE TABLE IF NOT EXISTS rounds (
						run_id VARCHAR(36) NOT NULL,
						round_index INTEGER NOT NULL,
						status VARCHAR(16) NOT NULL,
						loss DOUBLE PRECISION,
						summary JSONB NOT NULL,
						PRIMARY KEY (run_id, round_index),
						FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
					)`,
					`CREATE TABLE IF NOT EXISTS checkpoints (
						run_id VARCHAR(36) NOT NULL,
						round_index INTEGER NOT NULL,
						parameters BYTEA NOT NULL,
						created_at TIMESTAMPTZ NOT NULL,
						PRIMARY KEY (run_id, round_index),
						FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
					)`,
				},
				Down: []string{
					`DROP TABLE IF EXISTS checkpoints`,
					`DROP TABLE IF EXISTS rounds`,
					`DROP INDEX IF EXISTS idx_runs_created_at`,
					`DROP TABLE IF EXISTS runs`,
				},
			},
		},
	}

	if _, err := migrate.Exec(db.DB.DB, "postgres", migrations, migrate.Up); err != nil {
		return fmt.Errorf("%w: %w", ErrMigration, err)
	}

	return nil
}
