// Package scheduler picks the clients that take part in a round.
package scheduler

import (
	"fmt"
	"math/rand/v2"
	"sort"

	pkgerrors "github.com/absmach/fedlearn/pkg/errors"
)

const (
	Random     = "random"
	RoundRobin = "round_robin"
)

// Scheduler chooses k of n candidates. Returned indices are sorted and
// unique; when k >= n every index is returned.
type Scheduler interface {
	Select(n, k int) []int
}

// New returns the scheduler registered under strategy. An empty strategy
// selects Random.
func New(strategy string, seed uint64) (Scheduler, error) {
	switch strategy {
	case "", Random:
		return NewRandom(seed), nil
	case RoundRobin:
		return NewRoundRobin(), nil
	default:
		return nil, fmt.Errorf("%w: unknown selection strategy %q", pkgerrors.ErrInvalidConfig, strategy)
	}
}

// Validate reports whether strategy names a known scheduler.
func Validate(strategy string) error {
	_, err := New(strategy, 0)

	return err
}

func all(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}

	return idx
}

type random struct {
	rng *rand.Rand
}

// NewRandom samples uniformly without replacement. The same seed yields the
// same sequence of selections.
func NewRandom(seed uint64) Scheduler {
	return &random{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (r *random) Select(n, k int) []int {
	if k >= n {
		return all(n)
	}
	if k <= 0 {
		return []int{}
	}

	idx := r.rng.Perm(n)[:k]
	sort.Ints(idx)

	return idx
}

type roundRobin struct {
	next int
}

// NewRoundRobin walks the candidate list in order, resuming after the last
// client picked by the previous call.
func NewRoundRobin() Scheduler {
	return &roundRobin{}
}

func (r *roundRobin) Select(n, k int) []int {
	if k >= n {
		return all(n)
	}
	if k <= 0 {
		return []int{}
	}

	start := r.next % n
	idx := make([]int, k)
	for i := range idx {
		idx[i] = (start + i) % n
	}
	r.next = (start + k) % n
	sort.Ints(idx)

	return idx
}
