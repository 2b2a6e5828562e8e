package sqlite

import (
	"errors"
	"fmt"
	"time"

	pkgerrors "github.com/absmach/fedlearn/pkg/errors"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
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

func NewDatabase(path string) (*Database, error) {
	db, err := sqlx.Connect("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBConnection, err)
	}

	// sqlite allows a single writer.
	db.SetMaxOpenConns(1)
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
						id TEXT PRIMARY KEY,
						name TEXT NOT NULL,
						status TEXT NOT NULL,
						error TEXT,
						config TEXT NOT NULL,
						rounds_completed INTEGER NOT NULL DEFAULT 0,
						created_at TIMESTAMP NOT NULL,
						started_at TIMESTAMP,
						finished_at TIMESTAMP
					)`,
					`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC)`,
					`CREATE TABLE IF NOT EXISTS rounds (
						run_id TEXT NOT NULL,
						round_index INTEGER NOT NULL,
						status TEXT NOT NULL,
						loss REAL,
						summary TEXT NOT NULL,
						PRIMARY KEY (run_id, round_index),
						FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
					)`,
					`CREATE TABLE IF NOT EXISTS checkpoints (
						run_id TEXT NOT NULL,
						round_index INTEGER NOT NULL,
						parameters BLOB NOT NULL,
						created_at TIMESTAMP NOT NULL,
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

	if _, err := migrate.Exec(db.DB.DB, "sqlite3", migrations, migrate.Up); err != nil {
		return fmt.Errorf("%w: %w", ErrMigration, err)
	}

	return nil
}
