package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/kingrea/kitchenline/internal/menu"
)

// MealSize is the number of items admitted together as one meal.
const MealSize = 3

var (
	// ErrQueueFull is returned when a meal does not fit; nothing was enqueued.
	ErrQueueFull = errors.New("orders: queue full")
	// ErrEmptyMeal is returned when no item of a meal resolves to a menu entry.
	ErrEmptyMeal = errors.New("orders: meal has no resolvable items")
)

// Order is one menu item to be produced. It is immutable once enqueued.
type Order struct {
	ID       int    `json:"id"`
	MealID   int    `json:"meal_id"`
	Item     string `json:"item"`
	MenuIdx  int    `json:"menu_idx"`
	MealSize int    `json:"meal_size"`
}

// Logger matches logging.Logger's signature.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// QueueOption customizes Queue construction.
type QueueOption func(*Queue)

// WithLogger routes drop and rejection messages to l.
func WithLogger(l Logger) QueueOption {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}

// Queue is a bounded ring buffer of orders. Meals are admitted all-or-nothing
// and dequeues block until an order is available.
type Queue struct {
	mu      sync.Mutex
	buf     []Order
	head    int
	count   int
	nextID  int
	changed chan struct{}
	logger  Logger
}

// NewQueue returns an empty queue holding at most capacity orders.
func NewQueue(capacity int, opts ...QueueOption) (*Queue, error) {
	if capacity < MealSize {
		return nil, fmt.Errorf("orders: capacity %d cannot hold a meal of %d", capacity, MealSize)
	}
	q := &Queue{
		buf:     make([]Order, capacity),
		nextID:  1,
		changed: make(chan struct{}),
		logger:  nopLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(q)
		}
	}
	return q, nil
}

// EnqueueMeal admits a meal. Items that do not resolve to a menu entry are
// dropped and logged. If fewer than MealSize slots are free the whole meal is
// rejected with ErrQueueFull and the queue is left untouched.
func (q *Queue) EnqueueMeal(mealID int, items []string) ([]Order, error) {
	if len(items) > MealSize {
		return nil, fmt.Errorf("orders: meal %d has %d items, max %d", mealID, len(items), MealSize)
	}
	resolved := make([]Order, 0, len(items))
	for _, name := range items {
		idx, ok := menu.Lookup(name)
		if !ok {
			q.logger.Printf("orders: meal %d: unknown item %q dropped", mealID, strings.TrimSpace(name))
			continue
		}
		item, _ := menu.At(idx)
		resolved = append(resolved, Order{MealID: mealID, Item: item.Name, MenuIdx: idx})
	}
	if len(resolved) == 0 {
		return nil, ErrEmptyMeal
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.buf)-q.count < MealSize {
		return nil, ErrQueueFull
	}
	for i := range resolved {
		resolved[i].ID = q.nextID
		resolved[i].MealSize = len(resolved)
		q.nextID++
		q.buf[(q.head+q.count)%len(q.buf)] = resolved[i]
		q.count++
	}
	q.broadcastLocked()
	return resolved, nil
}

// Submit enqueues a meal, waiting for space instead of failing with
// ErrQueueFull. It returns early when ctx is done.
func (q *Queue) Submit(ctx context.Context, mealID int, items []string) ([]Order, error) {
	for {
		placed, err := q.EnqueueMeal(mealID, items)
		if !errors.Is(err, ErrQueueFull) {
			return placed, err
		}
		q.logger.Printf("orders: queue full, meal %d waiting", mealID)
		if err := q.waitChange(ctx, func() bool { return len(q.buf)-q.count >= MealSize }); err != nil {
			return nil, err
		}
	}
}

// Dequeue removes the oldest order, blocking until one is available.
func (q *Queue) Dequeue(ctx context.Context) (Order, error) {
	for {
		q.mu.Lock()
		if q.count > 0 {
			o := q.buf[q.head]
			q.buf[q.head] = Order{}
			q.head = (q.head + 1) % len(q.buf)
			q.count--
			q.broadcastLocked()
			q.mu.Unlock()
			return o, nil
		}
		q.mu.Unlock()
		if err := q.waitChange(ctx, func() bool { return q.count > 0 }); err != nil {
			return Order{}, err
		}
	}
}

// Len reports the number of queued orders.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Cap reports the queue capacity.
func (q *Queue) Cap() int {
	return len(q.buf)
}

// Snapshot returns the queued orders, oldest first.
func (q *Queue) Snapshot() []Order {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Order, q.count)
	for i := 0; i < q.count; i++ {
		out[i] = q.buf[(q.head+i)%len(q.buf)]
	}
	return out
}

// waitChange blocks until ready holds or ctx is done. ready runs with q.mu held.
func (q *Queue) waitChange(ctx context.Context, ready func() bool) error {
	for {
		q.mu.Lock()
		if ready() {
			q.mu.Unlock()
			return nil
		}
		changed := q.changed
		q.mu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}

func (q *Queue) broadcastLocked() {
	close(q.changed)
	q.changed = make(chan struct{})
}
