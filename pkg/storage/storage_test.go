package storage_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	pkgerrors "github.com/absmach/fedlearn/pkg/errors"
	"github.com/absmach/fedlearn/pkg/fl"
	"github.com/absmach/fedlearn/pkg/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]storage.Config {
	t.Helper()

	dir := t.TempDir()
	cfgs := map[string]storage.Config{
		"memory": {Type: "memory"},
		"sqlite": {Type: "sqlite", SQLitePath: filepath.Join(dir, "fedlearn.db")},
		"badger": {Type: "badger", BadgerPath: filepath.Join(dir, "badger")},
	}
	if host := os.Getenv("FL_TEST_POSTGRES_HOST"); host != "" {
		cfgs["postgres"] = storage.Config{
			Type:            "postgres",
			PostgresHost:    host,
			PostgresPort:    "5432",
			PostgresUser:    "fedlearn",
			PostgresPass:    "fedlearn",
			PostgresDB:      "fedlearn",
			PostgresSSLMode: "disable",
		}
	}

	return cfgs
}

func open(t *testing.T, cfg storage.Config) *storage.Repositories {
	t.Helper()

	repos, err := storage.NewRepositories(cfg)
	require.NoError(t, err)
	if repos.Closer != nil {
		t.Cleanup(func() { repos.Closer.Close() })
	}

	return repos
}

func testRun(created time.Time) fl.Run {
	cfg := fl.DefaultRunConfig()
	cfg.RoundTimeout = fl.Duration(time.Minute)

	return fl.Run{
		ID:        uuid.NewString(),
		Name:      "heart-disease",
		Config:    cfg,
		Status:    fl.RunPending,
		CreatedAt: created,
	}
}

func TestRunRepository(t *testing.T) {
	for name, cfg := range backends(t) {
		t.Run(name, func(t *testing.T) {
			repos := open(t, cfg)
			ctx := context.Background()
			now := time.Now().UTC().Truncate(time.Second)

			first := testRun(now.Add(-time.Minute))
			second := testRun(now)
			require.NoError(t, repos.Runs.Create(ctx, first))
			require.NoError(t, repos.Runs.Create(ctx, second))

			cases := []struct {
				desc string
				id   string
				err  error
			}{
				{desc: "existing run", id: first.ID},
				{desc: "unknown run", id: uuid.NewString(), err: pkgerrors.ErrNotFound},
			}
			for _, tc := range cases {
				t.Run(tc.desc, func(t *testing.T) {
					got, err := repos.Runs.Get(ctx, tc.id)
					if tc.err != nil {
						assert.ErrorIs(t, err, tc.err)

						return
					}
					require.NoError(t, err)
					assert.Equal(t, first.Name, got.Name)
					assert.Equal(t, first.Config, got.Config)
					assert.True(t, first.CreatedAt.Equal(got.CreatedAt))
					assert.True(t, got.StartedAt.IsZero())
				})
			}

			first.Status = fl.RunFailed
			first.Error = "insufficient clients"
			first.StartedAt = now
			first.FinishedAt = now.Add(time.Second)
			require.NoError(t, repos.Runs.Update(ctx, first))

			got, err := repos.Runs.Get(ctx, first.ID)
			require.NoError(t, err)
			assert.Equal(t, fl.RunFailed, got.Status)
			assert.Equal(t, "insufficient clients", got.Error)
			assert.True(t, now.Equal(got.StartedAt))

			missing := testRun(now)
			assert.ErrorIs(t, repos.Runs.Update(ctx, missing), pkgerrors.ErrNotFound)

			runs, total, err := repos.Runs.List(ctx, 0, 10)
			require.NoError(t, err)
			assert.Equal(t, uint64(2), total)
			require.Len(t, runs, 2)
			assert.Equal(t, second.ID, runs[0].ID)
			assert.Equal(t, first.ID, runs[1].ID)

			runs, total, err = repos.Runs.List(ctx, 1, 10)
			require.NoError(t, err)
			assert.Equal(t, uint64(2), total)
			require.Len(t, runs, 1)
			assert.Equal(t, first.ID, runs[0].ID)

			runs, _, err = repos.Runs.List(ctx, 5, 10)
			require.NoError(t, err)
			assert.Empty(t, runs)
		})
	}
}

func TestRoundRepository(t *testing.T) {
	for name, cfg := range backends(t) {
		t.Run(name, func(t *testing.T) {
			repos := open(t, cfg)
			ctx := context.Background()
			run := testRun(time.Now().UTC())
			require.NoError(t, repos.Runs.Create(ctx, run))

			loss := 0.42
			rounds := []fl.RoundSummary{
				{RoundIndex: 2, Status: fl.RoundCompleted, Loss: &loss, Metrics: fl.Metrics{"accuracy": 0.8}, ParticipantCount: 2, FitParticipants: 2},
				{RoundIndex: 1, Status: fl.RoundSkipped, Reason: "quorum not met"},
				{RoundIndex: 10, Status: fl.RoundPartial, FitParticipants: 2, Failures: []fl.ClientFailure{{ClientID: "a", Phase: fl.PhaseEvaluate, Error: "timeout"}}},
			}
			for _, s := range rounds {
				require.NoError(t, repos.Rounds.Save(ctx, run.ID, s))
			}

			history, err := repos.Rounds.List(ctx, run.ID)
			require.NoError(t, err)
			require.Len(t, history, 3)
			assert.Equal(t, []int{1, 2, 10}, []int{history[0].RoundIndex, history[1].RoundIndex, history[2].RoundIndex})
			assert.Equal(t, fl.RoundSkipped, history[0].Status)
			require.NotNil(t, history[1].Loss)
			assert.Equal(t, 0.42, *history[1].Loss)
			assert.Equal(t, 0.8, history[1].Metrics["accuracy"])
			assert.Equal(t, "a", history[2].Failures[0].ClientID)

			empty, err := repos.Rounds.List(ctx, uuid.NewString())
			require.NoError(t, err)
			assert.Empty(t, empty)
		})
	}
}

func TestCheckpointRepository(t *testing.T) {
	for name, cfg := range backends(t) {
		t.Run(name, func(t *testing.T) {
			repos := open(t, cfg)
			ctx := context.Background()
			run := testRun(time.Now().UTC())
			require.NoError(t, repos.Runs.Create(ctx, run))

			_, err := repos.Checkpoints.Latest(ctx, run.ID)
			assert.ErrorIs(t, err, pkgerrors.ErrNotFound)

			for r := 1; r <= 3; r++ {
				params := fl.ParameterSet{
					{Shape: []int{2, 2}, Data: []float64{float64(r), 0.5, -1, 2}},
					{Shape: []int{2}, Data: []float64{0, float64(r)}},
				}
				require.NoError(t, repos.Checkpoints.Save(ctx, fl.Checkpoint{RunID: run.ID, RoundIndex: r, Parameters: params, CreatedAt: time.Now().UTC()}))
			}

			latest, err := repos.Checkpoints.Latest(ctx, run.ID)
			require.NoError(t, err)
			assert.Equal(t, run.ID, latest.RunID)
			assert.Equal(t, 3, latest.RoundIndex)
			assert.Equal(t, []float64{3, 0.5, -1, 2}, latest.Parameters[0].Data)
			assert.Equal(t, []int{2}, latest.Parameters[1].Shape)
		})
	}
}

func TestUnsupportedStorageType(t *testing.T) {
	_, err := storage.NewRepositories(storage.Config{Type: "cassandra"})
	assert.Error(t, err)
}
