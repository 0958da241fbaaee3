package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kingrea/kitchenline/internal/orders"
)

func TestTrackerCountsToTargetAndResets(t *testing.T) {
	tr := NewTracker()
	for i := 1; i <= orders.MealSize; i++ {
		count, full, err := tr.Complete(1)
		if err != nil {
			t.Fatalf("complete %d: %v", i, err)
		}
		if count != i || full != (i == orders.MealSize) {
			t.Fatalf("complete %d returned count=%d full=%v", i, count, full)
		}
	}
	if _, _, err := tr.Complete(1); !errors.Is(err, ErrMealOverflow) {
		t.Fatalf("expected ErrMealOverflow, got %v", err)
	}
	if tr.Count(1) != orders.MealSize {
		t.Fatalf("overflow changed the counter: %d", tr.Count(1))
	}
	if err := tr.Reset(1); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if tr.Count(1) != 0 {
		t.Fatalf("expected counter 0 after reset, got %d", tr.Count(1))
	}
}

func TestTrackerRefusesEarlyReset(t *testing.T) {
	tr := NewTracker()
	if _, _, err := tr.Complete(4); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := tr.Reset(4); err == nil {
		t.Fatalf("expected reset of a partial meal to fail")
	}
	if tr.Count(4) != 1 {
		t.Fatalf("counter changed by refused reset: %d", tr.Count(4))
	}
}

func TestTrackerHonoursExpectedTarget(t *testing.T) {
	tr := NewTracker()
	tr.Expect(2, 2)
	done := make(chan error, 1)
	go func() { done <- tr.Wait(context.Background(), 2) }()
	if _, full, _ := tr.Complete(2); full {
		t.Fatalf("meal of two full after one completion")
	}
	if _, full, _ := tr.Complete(2); !full {
		t.Fatalf("meal of two not full after two completions")
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("wait: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("wait never returned")
	}
}

func TestSlotsAssignLowestIdleIndex(t *testing.T) {
	s, err := NewSlots(3)
	if err != nil {
		t.Fatalf("new slots: %v", err)
	}
	ctx := context.Background()
	for want := 0; want < 3; want++ {
		got, err := s.Assign(ctx, orders.Order{ID: want + 1})
		if err != nil || got != want {
			t.Fatalf("assign %d -> %d, %v", want, got, err)
		}
	}
	s.Clear(1)
	if got, _ := s.Assign(ctx, orders.Order{ID: 9}); got != 1 {
		t.Fatalf("expected freed slot 1, got %d", got)
	}
	o, err := s.Next(ctx, 1)
	if err != nil || o.ID != 9 {
		t.Fatalf("next(1) = %+v, %v", o, err)
	}
}

func TestSlotsAssignWaitsForIdleSlot(t *testing.T) {
	s, err := NewSlots(1)
	if err != nil {
		t.Fatalf("new slots: %v", err)
	}
	if _, err := s.Assign(context.Background(), orders.Order{ID: 1}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Millisecond)
	defer cancel()
	if _, err := s.Assign(ctx, orders.Order{ID: 2}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected assignment to wait, got %v", err)
	}
	done := make(chan int, 1)
	go func() {
		w, _ := s.Assign(context.Background(), orders.Order{ID: 3})
		done <- w
	}()
	s.Clear(0)
	select {
	case w := <-done:
		if w != 0 {
			t.Fatalf("expected slot 0, got %d", w)
		}
	case <-time.After(time.Second):
		t.Fatalf("assign never woke after clear")
	}
}

func assignedMeals(s *Slots) []int {
	var meals []int
	for _, slot := range s.Snapshot() {
		if slot.Order != nil {
			meals = append(meals, slot.Order.MealID)
		}
	}
	return meals
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met before deadline")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestDispatcherGatesNextMealOnCompletion(t *testing.T) {
	q, err := orders.NewQueue(9)
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	items := []string{"Cucumber roll", "Sashimi", "Fish roll"}
	for meal := 1; meal <= 2; meal++ {
		if _, err := q.EnqueueMeal(meal, items); err != nil {
			t.Fatalf("enqueue meal %d: %v", meal, err)
		}
	}
	// more slots than one meal needs, so only the gate can hold meal 2 back
	slots, err := NewSlots(6)
	if err != nil {
		t.Fatalf("new slots: %v", err)
	}
	tracker := NewTracker()
	var (
		mu    sync.Mutex
		hooks []int
	)
	d := New(q, slots, tracker, WithMealHook(func(meal int) {
		mu.Lock()
		hooks = append(hooks, meal)
		mu.Unlock()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	waitFor(t, func() bool { return len(assignedMeals(slots)) == 3 })
	time.Sleep(20 * time.Millisecond)
	for _, meal := range assignedMeals(slots) {
		if meal != 1 {
			t.Fatalf("meal %d dispatched before meal 1 completed", meal)
		}
	}

	for worker := 0; worker < 2; worker++ {
		slots.Clear(worker)
		if _, _, err := tracker.Complete(1); err != nil {
			t.Fatalf("complete: %v", err)
		}
	}
	time.Sleep(20 * time.Millisecond)
	if got := assignedMeals(slots); len(got) != 1 || got[0] != 1 {
		t.Fatalf("meal 2 dispatched at 2/3 completions: %v", got)
	}

	slots.Clear(2)
	if _, full, err := tracker.Complete(1); err != nil || !full {
		t.Fatalf("final completion full=%v err=%v", full, err)
	}
	waitFor(t, func() bool { return len(assignedMeals(slots)) == 3 })
	for _, meal := range assignedMeals(slots) {
		if meal != 2 {
			t.Fatalf("expected only meal 2 assigned, got %v", assignedMeals(slots))
		}
	}
	if tracker.Count(1) != 0 {
		t.Fatalf("meal 1 counter not reset: %d", tracker.Count(1))
	}
	mu.Lock()
	if len(hooks) != 1 || hooks[0] != 1 {
		t.Fatalf("unexpected meal hooks %v", hooks)
	}
	mu.Unlock()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("dispatcher ignored cancellation")
	}
}
