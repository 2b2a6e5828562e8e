package cli

import (
	"bytes"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/absmach/fedlearn/coordinator"
	"github.com/absmach/fedlearn/coordinator/api"
	"github.com/absmach/fedlearn/coordinator/mocks"
	pkgerrors "github.com/absmach/fedlearn/pkg/errors"
	"github.com/absmach/fedlearn/pkg/fl"
	"github.com/absmach/fedlearn/pkg/sdk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRunFlagsLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fedlearn.toml")
	require.NoError(t, os.WriteFile(path, []byte("[coordinator]\nnum_rounds = 4\nmin_clients = 3\n"), 0o600))

	cases := []struct {
		desc   string
		flags  runFlags
		rounds int
		min    int
		err    error
	}{
		{desc: "defaults", rounds: 5, min: 2},
		{desc: "config file", flags: runFlags{configFile: path}, rounds: 4, min: 3},
		{desc: "flags override file", flags: runFlags{configFile: path, rounds: 9, minClients: 1}, rounds: 9, min: 1},
		{desc: "round robin selection", flags: runFlags{selection: "round_robin"}, rounds: 5, min: 2},
		{desc: "unknown selection", flags: runFlags{selection: "priority"}, err: pkgerrors.ErrInvalidConfig},
		{desc: "missing file", flags: runFlags{configFile: filepath.Join(t.TempDir(), "none.toml")}, err: os.ErrNotExist},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			cfg, err := tc.flags.load()
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)

				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.rounds, cfg.Coordinator.NumRounds)
			assert.Equal(t, tc.min, cfg.Coordinator.MinClients)
		})
	}
}

func TestParamsSummary(t *testing.T) {
	cp := fl.Checkpoint{
		RunID:      "r1",
		RoundIndex: 2,
		Parameters: fl.ParameterSet{fl.NewTensor(8, 8), fl.NewTensor(8)},
	}

	out := paramsSummary(cp)
	var buf bytes.Buffer
	cmd := NewRunsCmd()
	cmd.SetOut(&buf)
	logJSONCmd(*cmd, out)

	assert.Contains(t, buf.String(), `"num_values"`)
	assert.Contains(t, buf.String(), "72")
}

func TestClientsCmd(t *testing.T) {
	svc := new(mocks.MockService)
	srv := httptest.NewServer(api.MakeHandler(svc, slog.New(slog.NewTextHandler(io.Discard, nil)), "test"))
	t.Cleanup(srv.Close)
	SetSDK(sdk.NewSDK(sdk.Config{CoordinatorURL: srv.URL}))

	svc.On("ListClients", mock.Anything).Return([]coordinator.ClientInfo{{ID: "c1", Name: "edge-01"}}, nil)
	svc.On("RemoveClient", mock.Anything, "c9").Return(pkgerrors.ErrNotFound)

	cases := []struct {
		desc   string
		args   []string
		stdout string
		stderr string
	}{
		{desc: "list clients", args: []string{"list"}, stdout: "edge-01"},
		{desc: "remove missing client", args: []string{"remove", "c9"}, stderr: "not found"},
		{desc: "remove without id", args: []string{"remove"}, stdout: "usage"},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			cmd := NewClientsCmd()
			cmd.SetOut(&stdout)
			cmd.SetErr(&stderr)
			cmd.SetArgs(tc.args)
			require.NoError(t, cmd.Execute())

			if tc.stdout != "" {
				assert.Contains(t, stdout.String(), tc.stdout)
			}
			if tc.stderr != "" {
				assert.Contains(t, stderr.String(), tc.stderr)
			}
		})
	}
}
