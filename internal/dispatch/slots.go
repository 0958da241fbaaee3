package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/kingrea/kitchenline/internal/orders"
)

// Slot is a point-in-time view of one chef's slot.
type Slot struct {
	Worker int           `json:"worker"`
	Busy   bool          `json:"busy"`
	Order  *orders.Order `json:"order,omitempty"`
}

// Slots is the per-chef order table. The dispatcher fills slots, chefs take
// their order from their own slot and clear it once the order is finished.
type Slots struct {
	mu      sync.Mutex
	slots   []*orders.Order
	changed chan struct{}
}

// NewSlots returns n idle slots.
func NewSlots(n int) (*Slots, error) {
	if n <= 0 {
		return nil, fmt.Errorf("dispatch: slot count must be positive, got %d", n)
	}
	return &Slots{slots: make([]*orders.Order, n), changed: make(chan struct{})}, nil
}

// Len reports the number of slots.
func (s *Slots) Len() int { return len(s.slots) }

// Assign places o in the lowest-index idle slot, waiting for one to free up.
func (s *Slots) Assign(ctx context.Context, o orders.Order) (int, error) {
	for {
		s.mu.Lock()
		for i, cur := range s.slots {
			if cur == nil {
				order := o
				s.slots[i] = &order
				s.broadcastLocked()
				s.mu.Unlock()
				return i, nil
			}
		}
		changed := s.changed
		s.mu.Unlock()
		select {
		case <-ctx.Done():
			return -1, ctx.Err()
		case <-changed:
		}
	}
}

// Next blocks until worker's slot holds an order and returns it. The slot
// stays busy until Clear.
func (s *Slots) Next(ctx context.Context, worker int) (orders.Order, error) {
	if worker < 0 || worker >= len(s.slots) {
		return orders.Order{}, fmt.Errorf("dispatch: no slot %d", worker)
	}
	for {
		s.mu.Lock()
		if cur := s.slots[worker]; cur != nil {
			o := *cur
			s.mu.Unlock()
			return o, nil
		}
		changed := s.changed
		s.mu.Unlock()
		select {
		case <-ctx.Done():
			return orders.Order{}, ctx.Err()
		case <-changed:
		}
	}
}

// Clear marks worker idle again.
func (s *Slots) Clear(worker int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if worker < 0 || worker >= len(s.slots) || s.slots[worker] == nil {
		return
	}
	s.slots[worker] = nil
	s.broadcastLocked()
}

// Snapshot returns every slot's state.
func (s *Slots) Snapshot() []Slot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Slot, len(s.slots))
	for i, cur := range s.slots {
		out[i] = Slot{Worker: i, Busy: cur != nil}
		if cur != nil {
			o := *cur
			out[i].Order = &o
		}
	}
	return out
}

func (s *Slots) broadcastLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}
