package api_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/absmach/fedlearn/client"
	"github.com/absmach/fedlearn/client/api"
	pkgapi "github.com/absmach/fedlearn/pkg/api"
	"github.com/absmach/fedlearn/pkg/dataset"
	pkgerrors "github.com/absmach/fedlearn/pkg/errors"
	"github.com/absmach/fedlearn/pkg/fl"
	"github.com/absmach/fedlearn/trainer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var logger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newServer(t *testing.T, data dataset.Partition) (*httptest.Server, *trainer.MLP) {
	t.Helper()

	cfg := trainer.DefaultConfig()
	cfg.LocalEpochs = 1
	cfg.Privacy.Microbatches = 4
	model := trainer.NewMLP(4, []int{3}, 1)
	svc := client.NewSession("remote", trainer.New(model, data, cfg, logger))
	srv := httptest.NewServer(api.MakeHandler(svc, logger, "test"))
	t.Cleanup(srv.Close)

	return srv, model
}

func testPartition() dataset.Partition {
	s := dataset.Synthetic(40, 4, 5)

	return dataset.TrainTestSplit(s, 0.25, 42)
}

func TestRemoteSessionRoundTrip(t *testing.T) {
	srv, model := newServer(t, testPartition())
	rs, err := api.NewRemoteSession("client-a", srv.URL, srv.Client())
	require.NoError(t, err)
	ctx := context.Background()

	params, err := rs.GetParameters(ctx)
	require.NoError(t, err)
	assert.NoError(t, model.Parameters().CheckShape(params))

	fit, err := rs.Fit(ctx, params, fl.RoundConfig{RoundIndex: 1, Phase: fl.PhaseFit})
	require.NoError(t, err)
	assert.Equal(t, "client-a", fit.ClientID)
	assert.Equal(t, 30, fit.NumSamples)
	assert.Equal(t, 1.0, fit.Metrics[trainer.MetricDPEnabled])
	assert.NoError(t, params.CheckShape(fit.Parameters))

	ev, err := rs.Evaluate(ctx, fit.Parameters, fl.RoundConfig{RoundIndex: 1, Phase: fl.PhaseEvaluate})
	require.NoError(t, err)
	assert.Equal(t, 10, ev.NumSamples)
	assert.Contains(t, ev.Metrics, trainer.MetricAccuracy)
}

func TestRemoteSessionErrors(t *testing.T) {
	srv, model := newServer(t, testPartition())
	emptySrv, _ := newServer(t, dataset.Partition{})
	down := httptest.NewServer(http.NotFoundHandler())
	downURL := down.URL
	down.Close()

	good := model.Parameters()
	bad := trainer.NewMLP(6, []int{3}, 1).Parameters()

	cases := []struct {
		desc   string
		url    string
		params fl.ParameterSet
		cfg    fl.RoundConfig
		err    error
	}{
		{
			desc:   "shape mismatch reported by client",
			url:    srv.URL,
			params: bad,
			cfg:    fl.RoundConfig{RoundIndex: 1, Phase: fl.PhaseFit},
			err:    pkgerrors.ErrShapeMismatch,
		},
		{
			desc:   "unknown config key rejected at the boundary",
			url:    srv.URL,
			params: good,
			cfg:    fl.RoundConfig{RoundIndex: 1, Phase: fl.PhaseFit, Hyperparams: map[string]float64{"momentum": 0.9}},
			err:    pkgerrors.ErrUnknownConfigKey,
		},
		{
			desc:   "empty partition reported by client",
			url:    emptySrv.URL,
			params: good,
			cfg:    fl.RoundConfig{RoundIndex: 1, Phase: fl.PhaseFit},
			err:    pkgerrors.ErrEmptyPartition,
		},
		{
			desc:   "client not listening",
			url:    downURL,
			params: good,
			cfg:    fl.RoundConfig{RoundIndex: 1, Phase: fl.PhaseFit},
			err:    pkgerrors.ErrClientUnreachable,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			rs, err := api.NewRemoteSession("c", tc.url, nil)
			require.NoError(t, err)
			_, err = rs.Fit(context.Background(), tc.params, tc.cfg)
			assert.ErrorIs(t, err, tc.err)
			if tc.err != pkgerrors.ErrClientUnreachable {
				assert.NotErrorIs(t, err, pkgerrors.ErrClientUnreachable)
			}
		})
	}
}

func TestRemoteSessionTimeout(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer slow.Close()

	rs, err := api.NewRemoteSession("slow", slow.URL, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = rs.Evaluate(ctx, fl.ParameterSet{fl.NewTensor(1)}, fl.RoundConfig{RoundIndex: 1, Phase: fl.PhaseEvaluate})
	assert.ErrorIs(t, err, pkgerrors.ErrClientUnreachable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHandlerRejectsJSON(t *testing.T) {
	srv, _ := newServer(t, testPartition())

	resp, err := http.Post(srv.URL+"/fit", "application/json", bytes.NewBufferString(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
	assert.Equal(t, pkgapi.CBORContentType, resp.Header.Get("Content-Type"))
}

func TestNewRemoteSessionInvalidURL(t *testing.T) {
	_, err := api.NewRemoteSession("c", "not a url", nil)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidConfig)
}
