package motion

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrUnknownAgent is returned for agent ids the planner has never seen.
var ErrUnknownAgent = errors.New("motion: unknown agent")

// Decision is the outcome of asking to enter a cell.
type Decision int

const (
	// Permit lets the agent enter the cell.
	Permit Decision = iota
	// DenySwap means the agent lost a direct swap and must yield.
	DenySwap
	// HoldSwap means the agent won a direct swap but the cell is still occupied.
	HoldSwap
	// DenyOccupied means another agent stands in the cell.
	DenyOccupied
	// DenyContended means an agent that outranks this one wants the cell.
	DenyContended
	// DenyBlocked means the cell is off the floor or inside a zone.
	DenyBlocked
)

func (d Decision) String() string {
	switch d {
	case Permit:
		return "permit"
	case DenySwap:
		return "deny-swap"
	case HoldSwap:
		return "hold-swap"
	case DenyOccupied:
		return "deny-occupied"
	case DenyContended:
		return "deny-contended"
	case DenyBlocked:
		return "deny-blocked"
	}
	return fmt.Sprintf("decision(%d)", int(d))
}

// neighbourOrder is the fixed order in which yield cells are tried.
var neighbourOrder = [8][2]int{{0, -1}, {0, 1}, {-1, 0}, {1, 0}, {-1, -1}, {1, -1}, {-1, 1}, {1, 1}}

// Logger matches logging.Logger's signature.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// AgentState is a point-in-time view of one agent.
type AgentState struct {
	ID         int   `json:"id"`
	Priority   int   `json:"priority"`
	Position   Point `json:"position"`
	Desired    Point `json:"desired"`
	HasDesired bool  `json:"has_desired"`
	Moving     bool  `json:"moving"`
	Target     Point `json:"target"`
}

type agent struct {
	AgentState
}

// Planner owns every agent's position and desired cell. All moves are
// decided and committed under one lock, so no two agents ever share a cell.
type Planner struct {
	mu          sync.RWMutex
	grid        Grid
	agents      map[int]*agent
	stepDelay   time.Duration
	tick        time.Duration
	detourAfter int
	logger      Logger
	observer    func([]AgentState)
	// distance fields per target, guarded by mu
	fields      map[Point][]int
}

// PlannerOption customizes a Planner.
type PlannerOption func(*Planner)

// WithStepDelay paces successful moves.
func WithStepDelay(d time.Duration) PlannerOption {
	return func(p *Planner) {
		if d >= 0 {
			p.stepDelay = d
		}
	}
}

// WithTick sets how long a denied agent waits before retrying.
func WithTick(d time.Duration) PlannerOption {
	return func(p *Planner) {
		if d > 0 {
			p.tick = d
		}
	}
}

// WithDetourAfter sets how many consecutive denied ticks an agent tolerates
// before stepping aside to a free neighbour.
func WithDetourAfter(n int) PlannerOption {
	return func(p *Planner) {
		if n > 0 {
			p.detourAfter = n
		}
	}
}

// WithPlannerLogger overrides the planner's logger.
func WithPlannerLogger(l Logger) PlannerOption {
	return func(p *Planner) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithObserver calls fn with every agent's state after each committed move.
// fn runs under the planner lock and must not call back into the planner.
func WithObserver(fn func([]AgentState)) PlannerOption {
	return func(p *Planner) {
		p.observer = fn
	}
}

// NewPlanner returns a planner for grid with no agents.
func NewPlanner(grid Grid, opts ...PlannerOption) *Planner {
	p := &Planner{
		grid:        grid,
		agents:      map[int]*agent{},
		fields:      map[Point][]int{},
		stepDelay:   50 * time.Millisecond,
		detourAfter: 20,
		logger:      nopLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.tick <= 0 {
		p.tick = p.stepDelay
		if p.tick <= 0 {
			p.tick = time.Millisecond
		}
	}
	return p
}

// Grid returns the floor the planner moves agents on.
func (p *Planner) Grid() Grid { return p.grid }

// AddAgent parks a new agent at start. Lower priority values win contention;
// equal priorities fall back to the lower id.
func (p *Planner) AddAgent(id, priority int, start Point) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.agents[id]; ok {
		return fmt.Errorf("motion: agent %d already exists", id)
	}
	if p.grid.Blocked(start) {
		return fmt.Errorf("motion: agent %d start %s is blocked", id, start)
	}
	for _, other := range p.agents {
		if other.Position == start {
			return fmt.Errorf("motion: agent %d start %s taken by agent %d", id, start, other.ID)
		}
	}
	p.agents[id] = &agent{AgentState{ID: id, Priority: priority, Position: start, Target: start}}
	return nil
}

// Position returns an agent's current cell.
func (p *Planner) Position(id int) (Point, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	a, ok := p.agents[id]
	if !ok {
		return Point{}, false
	}
	return a.Position, true
}

// Snapshot returns every agent's state ordered by id.
func (p *Planner) Snapshot() []AgentState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshotLocked()
}

func (p *Planner) snapshotLocked() []AgentState {
	out := make([]AgentState, 0, len(p.agents))
	for _, a := range p.agents {
		out = append(out, a.AgentState)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Decide publishes cand as the agent's desired cell and reports whether it may
// enter it. Nothing moves.
func (p *Planner) Decide(id int, cand Point) (Decision, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.agents[id]
	if !ok {
		return DenyBlocked, fmt.Errorf("%w: %d", ErrUnknownAgent, id)
	}
	a.Desired, a.HasDesired = cand, true
	return p.decideLocked(a, cand), nil
}

// Yield moves a swap loser onto the first free neighbour. It reports whether
// the agent moved.
func (p *Planner) Yield(id int) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.agents[id]
	if !ok {
		return false, fmt.Errorf("%w: %d", ErrUnknownAgent, id)
	}
	cell, ok := p.freeNeighbourLocked(a, a.Target, 0, false)
	if !ok {
		return false, nil
	}
	p.commitLocked(a, cell)
	return true, nil
}

func (p *Planner) outranks(a, b *agent) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.ID < b.ID
}

func (p *Planner) decideLocked(me *agent, cand Point) Decision {
	if p.grid.Blocked(cand) {
		return DenyBlocked
	}
	for _, other := range p.ordered() {
		if other == me {
			continue
		}
		if other.Position == cand && other.HasDesired && other.Desired == me.Position {
			if p.outranks(other, me) {
				return DenySwap
			}
			return HoldSwap
		}
		if other.Position == cand {
			return DenyOccupied
		}
		if other.HasDesired && other.Desired == cand && p.outranks(other, me) {
			return DenyContended
		}
	}
	return Permit
}

func (p *Planner) ordered() []*agent {
	out := make([]*agent, 0, len(p.agents))
	for _, a := range p.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (p *Planner) commitLocked(a *agent, cell Point) {
	a.Position = cell
	if p.observer != nil {
		p.observer(p.snapshotLocked())
	}
}

// freeNeighbourLocked returns a neighbour cell the agent may enter. With
// byDistance set the cells are ranked by distance to target and the rotation
// picks among equally useful ones, otherwise the fixed neighbour order is used.
func (p *Planner) freeNeighbourLocked(a *agent, target Point, rotation int, byDistance bool) (Point, bool) {
	var cells []Point
	for _, d := range neighbourOrder {
		c := a.Position.add(d[0], d[1])
		if p.decideLocked(a, c) == Permit {
			cells = append(cells, c)
		}
	}
	if len(cells) == 0 {
		return Point{}, false
	}
	if !byDistance {
		return cells[0], true
	}
	sort.SliceStable(cells, func(i, j int) bool {
		return manhattan(cells[i], target) < manhattan(cells[j], target)
	})
	return cells[rotation%len(cells)], true
}

func manhattan(a, b Point) int {
	return abs(a.X-b.X) + abs(a.Y-b.Y)
}

type stepResult int

const (
	stepWaited stepResult = iota
	stepMoved
	stepArrived
)

// arrivedLocked treats a target held by a parked agent as reached once the
// agent stands next to it.
func (p *Planner) arrivedLocked(a *agent, target Point) bool {
	if a.Position == target {
		return true
	}
	if abs(a.Position.X-target.X) > 1 || abs(a.Position.Y-target.Y) > 1 {
		return false
	}
	for _, other := range p.agents {
		if other != a && other.Position == target && !other.Moving {
			return true
		}
	}
	return false
}

// walk is the state of one MoveTo call.
type walk struct {
	target  Point
	denials int
	// routed switches from greedy steps to the shortest path once the greedy
	// order is boxed in or leads back onto a visited cell.
	routed  bool
	visited map[Point]bool
}

func (p *Planner) step(id int, w *walk) (stepResult, Decision, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.agents[id]
	if !ok {
		return stepWaited, DenyBlocked, fmt.Errorf("%w: %d", ErrUnknownAgent, id)
	}
	if p.arrivedLocked(a, w.target) {
		a.HasDesired = false
		return stepArrived, Permit, nil
	}
	if w.denials >= p.detourAfter {
		cell, ok := p.freeNeighbourLocked(a, w.target, w.denials-p.detourAfter, true)
		if !ok {
			return stepWaited, DenyOccupied, nil
		}
		a.Desired, a.HasDesired = cell, true
		p.moveLocked(a, w, cell)
		return stepMoved, Permit, nil
	}
	if !w.routed {
		if cand, ok := p.grid.Next(a.Position, w.target); ok && !w.visited[cand] {
			res, decision := p.tryLocked(a, w, []Point{cand})
			return res, decision, nil
		}
		w.routed = true
		p.logger.Printf("motion: agent %d routing around obstacles from %s to %s", a.ID, a.Position, w.target)
	}
	res, decision := p.tryLocked(a, w, p.grid.routeWith(p.fieldLocked(w.target), a.Position, w.target))
	return res, decision, nil
}

func (p *Planner) fieldLocked(target Point) []int {
	dist, ok := p.fields[target]
	if !ok {
		dist = p.grid.distancesTo(target)
		p.fields[target] = dist
	}
	return dist
}

// tryLocked moves the agent onto the first permitted candidate. When none is
// permitted the first candidate stays published as the desired cell.
func (p *Planner) tryLocked(a *agent, w *walk, cands []Point) (stepResult, Decision) {
	if len(cands) == 0 {
		return stepWaited, DenyBlocked
	}
	first := DenyBlocked
	for i, c := range cands {
		a.Desired, a.HasDesired = c, true
		decision := p.decideLocked(a, c)
		if decision == Permit {
			p.moveLocked(a, w, c)
			return stepMoved, decision
		}
		if i == 0 {
			first = decision
		}
	}
	a.Desired = cands[0]
	if first == DenySwap {
		if cell, ok := p.freeNeighbourLocked(a, w.target, 0, false); ok {
			p.moveLocked(a, w, cell)
			return stepMoved, first
		}
	}
	return stepWaited, first
}

func (p *Planner) moveLocked(a *agent, w *walk, cell Point) {
	p.commitLocked(a, cell)
	w.visited[cell] = true
}

// MoveTo walks the agent to target, clamped onto a free cell, and returns
// where it stopped. It returns early with the context error on cancellation.
func (p *Planner) MoveTo(ctx context.Context, id int, target Point) (Point, error) {
	target = p.grid.Clamp(target)
	if err := p.setMoving(id, target, true); err != nil {
		return Point{}, err
	}
	defer p.setMoving(id, target, false)

	start, _ := p.Position(id)
	w := &walk{target: target, visited: map[Point]bool{start: true}}
	for {
		if err := ctx.Err(); err != nil {
			pos, _ := p.Position(id)
			return pos, err
		}
		res, decision, err := p.step(id, w)
		if err != nil {
			return Point{}, err
		}
		var wait time.Duration
		switch res {
		case stepArrived:
			pos, _ := p.Position(id)
			return pos, nil
		case stepMoved:
			w.denials = 0
			wait = p.stepDelay
		default:
			w.denials++
			if w.denials == p.detourAfter {
				p.logger.Printf("motion: agent %d stuck (%s) heading to %s, detouring", id, decision, target)
			}
			wait = p.tick
		}
		if wait <= 0 {
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (p *Planner) setMoving(id int, target Point, moving bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.agents[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownAgent, id)
	}
	a.Moving = moving
	a.Target = target
	if !moving {
		a.HasDesired = false
	}
	return nil
}
