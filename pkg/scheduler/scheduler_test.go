package scheduler_test

import (
	"testing"

	pkgerrors "github.com/absmach/fedlearn/pkg/errors"
	"github.com/absmach/fedlearn/pkg/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	cases := []struct {
		desc     string
		strategy string
		err      error
	}{
		{desc: "default", strategy: ""},
		{desc: "random", strategy: scheduler.Random},
		{desc: "round robin", strategy: scheduler.RoundRobin},
		{desc: "unknown", strategy: "priority", err: pkgerrors.ErrInvalidConfig},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			s, err := scheduler.New(tc.strategy, 1)
			assert.ErrorIs(t, err, tc.err)
			assert.ErrorIs(t, scheduler.Validate(tc.strategy), tc.err)
			if tc.err == nil {
				assert.NotNil(t, s)
			}
		})
	}
}

func TestRandomSelect(t *testing.T) {
	cases := []struct {
		desc string
		n    int
		k    int
		want int
	}{
		{desc: "subset", n: 10, k: 4, want: 4},
		{desc: "all", n: 5, k: 5, want: 5},
		{desc: "more than available", n: 3, k: 7, want: 3},
		{desc: "none", n: 3, k: 0, want: 0},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			idx := scheduler.NewRandom(42).Select(tc.n, tc.k)
			require.Len(t, idx, tc.want)
			assert.IsIncreasing(t, idx)
			for _, i := range idx {
				assert.True(t, i >= 0 && i < tc.n)
			}
		})
	}
}

func TestRandomDeterministic(t *testing.T) {
	a := scheduler.NewRandom(7)
	b := scheduler.NewRandom(7)
	for range 5 {
		assert.Equal(t, a.Select(20, 6), b.Select(20, 6))
	}
}

func TestRoundRobinSelect(t *testing.T) {
	s := scheduler.NewRoundRobin()

	cases := []struct {
		desc string
		n    int
		k    int
		want []int
	}{
		{desc: "first window", n: 5, k: 2, want: []int{0, 1}},
		{desc: "second window", n: 5, k: 2, want: []int{2, 3}},
		{desc: "wraps around", n: 5, k: 2, want: []int{0, 4}},
		{desc: "continues after wrap", n: 5, k: 2, want: []int{1, 2}},
		{desc: "all", n: 3, k: 3, want: []int{0, 1, 2}},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.Equal(t, tc.want, s.Select(tc.n, tc.k))
		})
	}
}
