package dataset_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/absmach/fedlearn/pkg/dataset"
	pkgerrors "github.com/absmach/fedlearn/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const heartSample = `63.0,1.0,1.0,145.0,233.0,1.0,2.0,150.0,0.0,2.3,3.0,0.0,6.0,0
67.0,1.0,4.0,160.0,286.0,0.0,2.0,108.0,1.0,1.5,2.0,3.0,3.0,2
67.0,1.0,4.0,120.0,229.0,0.0,2.0,129.0,1.0,2.6,2.0,2.0,7.0,1
37.0,1.0,3.0,130.0,250.0,0.0,0.0,187.0,0.0,3.5,3.0,0.0,3.0,0
41.0,0.0,2.0,130.0,204.0,0.0,2.0,172.0,0.0,1.4,1.0,?,3.0,0
56.0,1.0,2.0,120.0,236.0,0.0,0.0,178.0,0.0,0.8,1.0,0.0,3.0,0
`

func TestReadHeart(t *testing.T) {
	s, err := dataset.ReadHeart(strings.NewReader(heartSample))
	require.NoError(t, err)

	assert.Equal(t, 5, s.Len(), "row with missing value is dropped")
	assert.Equal(t, 13, s.Features())
	assert.Equal(t, []float64{0, 1, 1, 0, 0}, s.Y)
	assert.Equal(t, 63.0, s.X[0][0])
}

func TestReadHeartInvalid(t *testing.T) {
	cases := []struct {
		desc string
		data string
	}{
		{desc: "wrong column count", data: "1,2,3\n"},
		{desc: "non numeric field", data: strings.Repeat("1,", 13) + "x\n"},
	}
	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := dataset.ReadHeart(strings.NewReader(tc.data))
			assert.ErrorIs(t, err, pkgerrors.ErrInvalidData)
		})
	}
}

func TestStandardize(t *testing.T) {
	s := dataset.Split{
		X: [][]float64{{1, 5}, {2, 5}, {3, 5}},
		Y: []float64{0, 1, 0},
	}
	dataset.Standardize(s)

	var sum float64
	for _, x := range s.X {
		sum += x[0]
		assert.Equal(t, 0.0, x[1], "constant column is centered")
	}
	assert.InDelta(t, 0, sum, 1e-12)
	assert.InDelta(t, -1.224744871391589, s.X[0][0], 1e-9)
}

func TestArraySplit(t *testing.T) {
	s := dataset.Synthetic(11, 2, 1)

	parts := dataset.ArraySplit(s, 3)
	require.Len(t, parts, 3)
	assert.Equal(t, 4, parts[0].Len())
	assert.Equal(t, 4, parts[1].Len())
	assert.Equal(t, 3, parts[2].Len())
	assert.Equal(t, s.X[4], parts[1].X[0])

	empty := dataset.ArraySplit(dataset.Synthetic(1, 2, 1), 2)
	assert.Equal(t, 0, empty[1].Len())
}

func TestTrainTestSplit(t *testing.T) {
	s := dataset.Synthetic(50, 3, 7)

	a := dataset.TrainTestSplit(s, 0.2, 42)
	b := dataset.TrainTestSplit(s, 0.2, 42)

	assert.Equal(t, 10, a.Test.Len())
	assert.Equal(t, 40, a.Train.Len())
	assert.Equal(t, a, b, "split is stable for a fixed seed")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heart.csv")
	require.NoError(t, os.WriteFile(path, []byte(heartSample), 0o600))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(heartSample))
	}))
	defer srv.Close()

	cases := []struct {
		desc    string
		cfg     dataset.Config
		clients int
		err     error
	}{
		{
			desc:    "synthetic data",
			cfg:     dataset.Config{Clients: 3, TestFraction: 0.2, Seed: 42, Synthetic: 90, SyntheticFeatures: 13},
			clients: 3,
		},
		{
			desc:    "local file",
			cfg:     dataset.Config{Source: path, Clients: 2, TestFraction: 0.2, Seed: 42},
			clients: 2,
		},
		{
			desc:    "http source",
			cfg:     dataset.Config{Source: srv.URL, Clients: 1, TestFraction: 0.2, Seed: 42},
			clients: 1,
		},
		{
			desc: "zero clients",
			cfg:  dataset.Config{Clients: 0, TestFraction: 0.2},
			err:  pkgerrors.ErrInvalidConfig,
		},
		{
			desc: "test fraction out of range",
			cfg:  dataset.Config{Clients: 1, TestFraction: 1},
			err:  pkgerrors.ErrInvalidConfig,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			parts, err := dataset.Load(context.Background(), tc.cfg)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)

				return
			}
			require.NoError(t, err)
			assert.Len(t, parts, tc.clients)
			for _, p := range parts {
				assert.Positive(t, p.Train.Len())
			}
		})
	}
}
