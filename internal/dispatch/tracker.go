// Package dispatch moves orders from the queue onto chef slots, one meal at a
// time: the next meal is only pulled once every order of the current meal has
// completed.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kingrea/kitchenline/internal/orders"
)

// ErrMealOverflow is returned when a meal is completed more times than it has orders.
var ErrMealOverflow = errors.New("dispatch: meal completed past its size")

// Tracker keeps one completion counter per meal.
type Tracker struct {
	mu      sync.Mutex
	counts  map[int]int
	targets map[int]int
	changed chan struct{}
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		counts:  make(map[int]int),
		targets: make(map[int]int),
		changed: make(chan struct{}),
	}
}

// Expect records how many completions close the meal. Meals never passed to
// Expect close at orders.MealSize.
func (t *Tracker) Expect(mealID, target int) {
	if target <= 0 || target > orders.MealSize {
		target = orders.MealSize
	}
	t.mu.Lock()
	t.targets[mealID] = target
	t.mu.Unlock()
}

// Complete counts one finished order. full reports whether the meal has now
// reached its target.
func (t *Tracker) Complete(mealID int) (count int, full bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	target := t.targetLocked(mealID)
	if t.counts[mealID] >= target {
		return t.counts[mealID], true, fmt.Errorf("%w: meal %d already at %d", ErrMealOverflow, mealID, target)
	}
	t.counts[mealID]++
	count = t.counts[mealID]
	full = count == target
	if full {
		close(t.changed)
		t.changed = make(chan struct{})
	}
	return count, full, nil
}

// Wait blocks until the meal's counter reaches its target or ctx is done.
func (t *Tracker) Wait(ctx context.Context, mealID int) error {
	for {
		t.mu.Lock()
		if t.counts[mealID] >= t.targetLocked(mealID) {
			t.mu.Unlock()
			return nil
		}
		changed := t.changed
		t.mu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}

// Reset returns a completed meal's counter to zero. It refuses to reset a meal
// that has not reached its target.
func (t *Tracker) Reset(mealID int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if count, target := t.counts[mealID], t.targetLocked(mealID); count != target {
		return fmt.Errorf("dispatch: meal %d reset at %d/%d", mealID, count, target)
	}
	delete(t.counts, mealID)
	delete(t.targets, mealID)
	return nil
}

// Count reports the meal's current counter.
func (t *Tracker) Count(mealID int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[mealID]
}

func (t *Tracker) targetLocked(mealID int) int {
	if target, ok := t.targets[mealID]; ok {
		return target
	}
	return orders.MealSize
}
