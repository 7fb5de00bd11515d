// Package source is the registry of live calendar sources and the query
// surface the aggregator fetches upcoming events through.
package source

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	appLog "calevents/internal/log"
	"calevents/internal/model"
)

// ErrNotFound is returned when a source id does not resolve to a registered
// source.
var ErrNotFound = errors.New("calendar source not found")

// Source is a provider of calendar events. Recurrence expansion is the
// source's job: Events returns concrete instances overlapping [start, end].
type Source interface {
	ID() string
	Events(ctx context.Context, start, end time.Time) ([]model.RawEvent, error)
}

// Request asks for events of several sources in one window.
type Request struct {
	EntityIDs []string
	Start     time.Time
	End       time.Time
}

// Response maps source id to that source's events.
type Response map[string][]model.RawEvent

// Registry holds the live sources keyed by id. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Source
}

func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]Source)}
}

// Register adds or replaces a source.
func (r *Registry) Register(src Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[src.ID()] = src
}

// Unregister removes a source; entries still selecting it will drop it on
// their next cycle.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sources, id)
}

// Get returns the source registered under id.
func (r *Registry) Get(id string) (Source, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src, ok := r.sources[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return src, nil
}

// IDs returns all registered ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sources))
	for id := range r.sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Resolve splits ids into those that are registered and those that are not,
// preserving order.
func (r *Registry) Resolve(ids []string) (live, missing []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range ids {
		if _, ok := r.sources[id]; ok {
			live = append(live, id)
		} else {
			missing = append(missing, id)
		}
	}
	return live, missing
}

// Query fetches events of every requested source. Any unknown id or failing
// source fails the whole query.
func (r *Registry) Query(ctx context.Context, req Request) (Response, error) {
	if req.End.Before(req.Start) {
		return nil, errors.New("source: query end is before start")
	}

	resp := make(Response, len(req.EntityIDs))
	for _, id := range req.EntityIDs {
		src, err := r.Get(id)
		if err != nil {
			return nil, err
		}

		events, err := src.Events(ctx, req.Start, req.End)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", id, err)
		}
		appLog.Debug("source query", "id", id, "event_count", len(events))
		resp[id] = events
	}
	return resp, nil
}
