// Package station models the kitchen's shared work areas: capacity-limited
// stations acquired through scoped permits, and the plate allocator that hands
// out exclusively owned plates.
package station

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/kingrea/kitchenline/internal/menu"
)

// ErrUnknownStation is returned when a pool has no station of the requested kind.
var ErrUnknownStation = errors.New("station: unknown station")

// Logger matches logging.Logger's signature.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Station is a named resource with a fixed number of permits.
type Station struct {
	kind     menu.StationKind
	capacity int64
	sem      *semaphore.Weighted
	held     atomic.Int64
	peak     atomic.Int64
}

// New returns a station with capacity permits.
func New(kind menu.StationKind, capacity int) (*Station, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("station: %s capacity must be positive, got %d", kind, capacity)
	}
	return &Station{
		kind:     kind,
		capacity: int64(capacity),
		sem:      semaphore.NewWeighted(int64(capacity)),
	}, nil
}

// Acquire blocks until a permit is free or ctx is done. The returned release
// func is idempotent and must be called on every exit path.
func (s *Station) Acquire(ctx context.Context) (func(), error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	held := s.held.Add(1)
	for {
		peak := s.peak.Load()
		if held <= peak || s.peak.CompareAndSwap(peak, held) {
			break
		}
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			s.held.Add(-1)
			s.sem.Release(1)
		})
	}, nil
}

// Kind returns the station's kind.
func (s *Station) Kind() menu.StationKind { return s.kind }

// Capacity returns the number of permits.
func (s *Station) Capacity() int { return int(s.capacity) }

// Held returns the number of permits currently out.
func (s *Station) Held() int { return int(s.held.Load()) }

// Peak returns the highest number of permits ever out at once.
func (s *Station) Peak() int { return int(s.peak.Load()) }

// Status is a point-in-time view of one station.
type Status struct {
	Kind     menu.StationKind `json:"kind"`
	Capacity int              `json:"capacity"`
	Held     int              `json:"held"`
}

// Pool groups one station per kind.
type Pool struct {
	stations map[menu.StationKind]*Station
	order    []menu.StationKind
}

// NewPool builds stations from a capacity table. Kinds are kept in
// menu.StationKinds order.
func NewPool(capacities map[menu.StationKind]int) (*Pool, error) {
	p := &Pool{stations: make(map[menu.StationKind]*Station, len(capacities))}
	for _, kind := range menu.StationKinds {
		capacity, ok := capacities[kind]
		if !ok {
			continue
		}
		st, err := New(kind, capacity)
		if err != nil {
			return nil, err
		}
		p.stations[kind] = st
		p.order = append(p.order, kind)
	}
	for kind := range capacities {
		if !kind.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownStation, kind)
		}
	}
	return p, nil
}

// Station returns the station of the given kind.
func (p *Pool) Station(kind menu.StationKind) (*Station, bool) {
	st, ok := p.stations[kind]
	return st, ok
}

// Acquire takes a permit on the station of the given kind.
func (p *Pool) Acquire(ctx context.Context, kind menu.StationKind) (func(), error) {
	st, ok := p.stations[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStation, kind)
	}
	return st.Acquire(ctx)
}

// Snapshot reports every station's permit usage.
func (p *Pool) Snapshot() []Status {
	out := make([]Status, 0, len(p.order))
	for _, kind := range p.order {
		st := p.stations[kind]
		out = append(out, Status{Kind: kind, Capacity: st.Capacity(), Held: st.Held()})
	}
	return out
}
