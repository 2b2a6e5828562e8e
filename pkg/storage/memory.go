package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/absmach/fedlearn/pkg/errors"
	"github.com/absmach/fedlearn/pkg/fl"
)

type memoryRuns struct {
	sync.Mutex

	order []string
	data  map[string]fl.Run
}

func NewMemoryRunRepository() RunRepository {
	return &memoryRuns{data: make(map[string]fl.Run)}
}

func (s *memoryRuns) Create(_ context.Context, r fl.Run) error {
	if r.ID == "" {
		return errors.ErrEmptyKey
	}

	s.Lock()
	defer s.Unlock()

	if _, ok := s.data[r.ID]; ok {
		return errors.ErrEntityExists
	}
	s.data[r.ID] = r
	s.order = append(s.order, r.ID)

	return nil
}

func (s *memoryRuns) Get(_ context.Context, id string) (fl.Run, error) {
	if id == "" {
		return fl.Run{}, errors.ErrEmptyKey
	}

	s.Lock()
	defer s.Unlock()

	if r, ok := s.data[id]; ok {
		return r, nil
	}

	return fl.Run{}, errors.ErrNotFound
}

func (s *memoryRuns) Update(_ context.Context, r fl.Run) error {
	if r.ID == "" {
		return errors.ErrEmptyKey
	}

	s.Lock()
	defer s.Unlock()

	if _, ok := s.data[r.ID]; !ok {
		return errors.ErrNotFound
	}
	s.data[r.ID] = r

	return nil
}

func (s *memoryRuns) List(_ context.Context, offset, limit uint64) ([]fl.Run, uint64, error) {
	s.Lock()
	defer s.Unlock()

	total := uint64(len(s.order))
	if offset >= total {
		return []fl.Run{}, total, nil
	}

	end := offset + limit
	if end > total {
		end = total
	}

	result := make([]fl.Run, 0, end-offset)
	for i := offset; i < end; i++ {
		result = append(result, s.data[s.order[total-1-i]])
	}

	return result, total, nil
}

type memoryRounds struct {
	sync.Mutex

	data map[string]map[int]fl.RoundSummary
}

func NewMemoryRoundRepository() RoundRepository {
	return &memoryRounds{data: make(map[string]map[int]fl.RoundSummary)}
}

func (s *memoryRounds) Save(_ context.Context, runID string, summary fl.RoundSummary) error {
	if runID == "" {
		return errors.ErrEmptyKey
	}

	s.Lock()
	defer s.Unlock()

	rounds, ok := s.data[runID]
	if !ok {
		rounds = make(map[int]fl.RoundSummary)
		s.data[runID] = rounds
	}
	rounds[summary.RoundIndex] = summary

	return nil
}

func (s *memoryRounds) List(_ context.Context, runID string) (fl.RunHistory, error) {
	s.Lock()
	defer s.Unlock()

	history := fl.RunHistory{}
	for _, summary := range s.data[runID] {
		history = append(history, summary)
	}
	sort.Slice(history, func(i, j int) bool { return history[i].RoundIndex < history[j].RoundIndex })

	return history, nil
}

type memoryCheckpoints struct {
	sync.Mutex

	data map[string]fl.Checkpoint
}

// NewMemoryCheckpointRepository keeps only the newest checkpoint of each run.
func NewMemoryCheckpointRepository() CheckpointRepository {
	return &memoryCheckpoints{data: make(map[string]fl.Checkpoint)}
}

func (s *memoryCheckpoints) Save(_ context.Context, c fl.Checkpoint) error {
	if c.RunID == "" {
		return errors.ErrEmptyKey
	}

	s.Lock()
	defer s.Unlock()

	if prev, ok := s.data[c.RunID]; ok && prev.RoundIndex > c.RoundIndex {
		return nil
	}
	c.Parameters = c.Parameters.Clone()
	s.data[c.RunID] = c

	return nil
}

func (s *memoryCheckpoints) Latest(_ context.Context, runID string) (fl.Checkpoint, error) {
	s.Lock()
	defer s.Unlock()

	c, ok := s.data[runID]
	if !ok {
		return fl.Checkpoint{}, errors.ErrNotFound
	}
	c.Parameters = c.Parameters.Clone()

	return c, nil
}
