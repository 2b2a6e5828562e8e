package coordinator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	pkgerrors "github.com/absmach/fedlearn/pkg/errors"
	"github.com/absmach/fedlearn/pkg/fl"
)

// ClientSession is the coordinator's view of one client.
type ClientSession interface {
	ID() string
	GetParameters(ctx context.Context) (fl.ParameterSet, error)
	Fit(ctx context.Context, params fl.ParameterSet, cfg fl.RoundConfig) (fl.ClientReport, error)
	Evaluate(ctx context.Context, params fl.ParameterSet, cfg fl.RoundConfig) (fl.ClientReport, error)
}

type ClientInfo struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Address      string    `json:"address,omitempty"`
	Excluded     bool      `json:"excluded"`
	Reason       string    `json:"reason,omitempty"`
	RegisteredAt time.Time `json:"registered_at"`
}

type entry struct {
	info    ClientInfo
	session ClientSession
}

// Registry holds the clients known to the coordinator. Clients excluded
// during a run stay registered but are not eligible until exclusions are reset.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*entry
	changed chan struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]*entry),
		changed: make(chan struct{}),
	}
}

func (r *Registry) Add(info ClientInfo, s ClientSession) error {
	if info.ID == "" {
		return pkgerrors.ErrEmptyKey
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[info.ID]; ok {
		return fmt.Errorf("%w: client %s", pkgerrors.ErrEntityExists, info.ID)
	}
	if info.RegisteredAt.IsZero() {
		info.RegisteredAt = time.Now()
	}
	r.clients[info.ID] = &entry{info: info, session: s}
	r.broadcast()

	return nil
}

func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[id]; !ok {
		return pkgerrors.ErrNotFound
	}
	delete(r.clients, id)
	r.broadcast()

	return nil
}

func (r *Registry) Get(id string) (ClientInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.clients[id]
	if !ok {
		return ClientInfo{}, pkgerrors.ErrNotFound
	}

	return e.info, nil
}

// List returns every registered client ordered by ID.
func (r *Registry) List() []ClientInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ClientInfo, 0, len(r.clients))
	for _, e := range r.clients {
		out = append(out, e.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}

// Eligible returns the sessions that may take part in a round, ordered by ID.
func (r *Registry) Eligible() []ClientSession {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.eligible()
}

func (r *Registry) eligible() []ClientSession {
	ids := make([]string, 0, len(r.clients))
	for id, e := range r.clients {
		if !e.info.Excluded {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	out := make([]ClientSession, len(ids))
	for i, id := range ids {
		out[i] = r.clients[id].session
	}

	return out
}

// Exclude removes a client from the eligible set until ResetExclusions.
func (r *Registry) Exclude(id, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.clients[id]; ok {
		e.info.Excluded = true
		e.info.Reason = reason
	}
}

func (r *Registry) ResetExclusions() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.clients {
		e.info.Excluded = false
		e.info.Reason = ""
	}
	r.broadcast()
}

// WaitFor blocks until at least n clients are eligible or ctx is done.
func (r *Registry) WaitFor(ctx context.Context, n int) error {
	for {
		r.mu.RLock()
		count := len(r.eligible())
		changed := r.changed
		r.mu.RUnlock()

		if count >= n {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}

// broadcast wakes every WaitFor caller. r.mu must be held for writing.
func (r *Registry) broadcast() {
	close(r.changed)
	r.changed = make(chan struct{})
}
