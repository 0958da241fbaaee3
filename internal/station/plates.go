package station

import (
	"context"
	"fmt"
	"sync"
)

// UsageReporter receives plate usage changes. Implementations must not block
// for long; delivery is best effort.
type UsageReporter interface {
	ReportPlateUsage(plateID, count int)
}

// Plate is a point-in-time view of one plate.
type Plate struct {
	ID       int  `json:"id"`
	InUse    bool `json:"in_use"`
	Holder   int  `json:"holder"`
	UseCount int  `json:"use_count"`
}

// Plates hands out exclusive ownership of a fixed set of plates. Acquire
// suspends until a plate is returned; no polling is involved.
type Plates struct {
	mu       sync.Mutex
	plates   []Plate
	free     chan int
	reporter UsageReporter
	logger   Logger
}

// PlatesOption customizes the allocator.
type PlatesOption func(*Plates)

// WithReporter forwards usage changes to r.
func WithReporter(r UsageReporter) PlatesOption {
	return func(p *Plates) {
		if r != nil {
			p.reporter = r
		}
	}
}

// WithLogger overrides the allocator's logger.
func WithLogger(l Logger) PlatesOption {
	return func(p *Plates) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPlates returns n free plates with ids 1..n.
func NewPlates(n int, opts ...PlatesOption) (*Plates, error) {
	if n <= 0 {
		return nil, fmt.Errorf("station: plate count must be positive, got %d", n)
	}
	p := &Plates{
		plates: make([]Plate, n),
		free:   make(chan int, n),
		logger: nopLogger{},
	}
	for i := range p.plates {
		p.plates[i] = Plate{ID: i + 1, Holder: -1}
		p.free <- i + 1
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

// Acquire waits for a free plate, marks it held by holder, bumps its usage
// counter and reports the new count.
func (p *Plates) Acquire(ctx context.Context, holder int) (int, error) {
	var id int
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case id = <-p.free:
	}
	p.mu.Lock()
	plate := &p.plates[id-1]
	if plate.InUse {
		p.mu.Unlock()
		panic(fmt.Sprintf("station: plate %d handed out while held by %d", id, plate.Holder))
	}
	plate.InUse = true
	plate.Holder = holder
	plate.UseCount++
	count := plate.UseCount
	p.mu.Unlock()
	p.report(id, count)
	return id, nil
}

// Release returns a plate to the free set.
func (p *Plates) Release(id int) error {
	p.mu.Lock()
	if id < 1 || id > len(p.plates) {
		p.mu.Unlock()
		return fmt.Errorf("station: no plate %d", id)
	}
	plate := &p.plates[id-1]
	if !plate.InUse {
		p.mu.Unlock()
		return fmt.Errorf("station: plate %d is not in use", id)
	}
	plate.InUse = false
	plate.Holder = -1
	p.mu.Unlock()
	p.free <- id
	return nil
}

// ResetUsage zeroes every usage counter and reports each reset.
func (p *Plates) ResetUsage() {
	p.mu.Lock()
	ids := make([]int, len(p.plates))
	for i := range p.plates {
		p.plates[i].UseCount = 0
		ids[i] = p.plates[i].ID
	}
	p.mu.Unlock()
	for _, id := range ids {
		p.report(id, 0)
	}
}

// Snapshot returns a copy of every plate's state.
func (p *Plates) Snapshot() []Plate {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Plate(nil), p.plates...)
}

func (p *Plates) report(id, count int) {
	p.logger.Printf("station: PLATE %d USE %d", id, count)
	if p.reporter != nil {
		p.reporter.ReportPlateUsage(id, count)
	}
}
