package storage

import (
	"fmt"
	"io"

	"github.com/absmach/fedlearn/pkg/storage/badger"
	"github.com/absmach/fedlearn/pkg/storage/postgres"
	"github.com/absmach/fedlearn/pkg/storage/sqlite"
)

type Config struct {
	Type string `env:"TYPE" envDefault:"memory"`

	PostgresHost    string `env:"POSTGRES_HOST"    envDefault:"localhost"`
	PostgresPort    string `env:"POSTGRES_PORT"    envDefault:"5432"`
	PostgresUser    string `env:"POSTGRES_USER"    envDefault:"fedlearn"`
	PostgresPass    string `env:"POSTGRES_PASS"    envDefault:"fedlearn"`
	PostgresDB      string `env:"POSTGRES_DB"      envDefault:"fedlearn"`
	PostgresSSLMode string `env:"POSTGRES_SSLMODE" envDefault:"disable"`

	SQLitePath string `env:"SQLITE_PATH" envDefault:"./fedlearn.db"`

	BadgerPath string `env:"BADGER_PATH" envDefault:"./data/badger"`
}

type Repositories struct {
	Runs        RunRepository
	Rounds      RoundRepository
	Checkpoints CheckpointRepository
	// Closer closes the underlying persistent storage connection.
	// It is nil for the in-memory backend.
	Closer io.Closer
}

func NewRepositories(cfg Config) (*Repositories, error) {
	switch cfg.Type {
	case "postgres":
		return newPostgresRepositories(cfg)
	case "sqlite":
		return newSQLiteRepositories(cfg)
	case "badger":
		return newBadgerRepositories(cfg)
	case "memory", "":
		return NewMemoryRepositories(), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

func newPostgresRepositories(cfg Config) (*Repositories, error) {
	db, err := postgres.NewDatabase(
		cfg.PostgresHost,
		cfg.PostgresPort,
		cfg.PostgresUser,
		cfg.PostgresPass,
		cfg.PostgresDB,
		cfg.PostgresSSLMode,
	)
	if err != nil {
		return nil, err
	}

	repos := postgres.NewRepositories(db)

	return &Repositories{
		Runs:        repos.Runs,
		Rounds:      repos.Rounds,
		Checkpoints: repos.Checkpoints,
		Closer:      db,
	}, nil
}

func newSQLiteRepositories(cfg Config) (*Repositories, error) {
	db, err := sqlite.NewDatabase(cfg.SQLitePath)
	if err != nil {
		return nil, err
	}

	repos := sqlite.NewRepositories(db)

	return &Repositories{
		Runs:        repos.Runs,
		Rounds:      repos.Rounds,
		Checkpoints: repos.Checkpoints,
		Closer:      db,
	}, nil
}

func newBadgerRepositories(cfg Config) (*Repositories, error) {
	db, err := badger.NewDatabase(cfg.BadgerPath)
	if err != nil {
		return nil, err
	}

	repos := badger.NewRepositories(db)

	return &Repositories{
		Runs:        repos.Runs,
		Rounds:      repos.Rounds,
		Checkpoints: repos.Checkpoints,
		Closer:      db,
	}, nil
}

func NewMemoryRepositories() *Repositories {
	return &Repositories{
		Runs:        NewMemoryRunRepository(),
		Rounds:      NewMemoryRoundRepository(),
		Checkpoints: NewMemoryCheckpointRepository(),
	}
}
