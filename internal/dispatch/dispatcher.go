package dispatch

import (
	"context"

	"github.com/kingrea/kitchenline/internal/orders"
)

// Logger matches logging.Logger's signature.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Source yields orders, blocking while none are available.
type Source interface {
	Dequeue(ctx context.Context) (orders.Order, error)
}

// Dispatcher pulls meals from a Source and assigns their orders to slots.
type Dispatcher struct {
	source  Source
	slots   *Slots
	tracker *Tracker
	logger  Logger
	onMeal  func(mealID int)
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithLogger overrides the dispatcher's logger.
func WithLogger(l Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithMealHook calls fn after a meal has completed and its counter was reset.
func WithMealHook(fn func(mealID int)) Option {
	return func(d *Dispatcher) {
		d.onMeal = fn
	}
}

// New wires a dispatcher.
func New(source Source, slots *Slots, tracker *Tracker, opts ...Option) *Dispatcher {
	d := &Dispatcher{source: source, slots: slots, tracker: tracker, logger: nopLogger{}}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Run dispatches meals until ctx is done. The first meal goes out as soon as
// it is queued; every later meal waits for the previous one to complete.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		mealID, err := d.dispatchMeal(ctx)
		if err != nil {
			return err
		}
		if err := d.tracker.Wait(ctx, mealID); err != nil {
			return err
		}
		if err := d.tracker.Reset(mealID); err != nil {
			d.logger.Printf("dispatch: %v", err)
		}
		d.logger.Printf("dispatch: meal %d complete", mealID)
		if d.onMeal != nil {
			d.onMeal(mealID)
		}
	}
}

func (d *Dispatcher) dispatchMeal(ctx context.Context) (int, error) {
	first, err := d.source.Dequeue(ctx)
	if err != nil {
		return 0, err
	}
	size := first.MealSize
	if size <= 0 || size > orders.MealSize {
		size = orders.MealSize
	}
	d.tracker.Expect(first.MealID, size)
	if err := d.assign(ctx, first); err != nil {
		return 0, err
	}
	for i := 1; i < size; i++ {
		o, err := d.source.Dequeue(ctx)
		if err != nil {
			return 0, err
		}
		if o.MealID != first.MealID {
			d.logger.Printf("dispatch: order %d belongs to meal %d, expected meal %d", o.ID, o.MealID, first.MealID)
		}
		if err := d.assign(ctx, o); err != nil {
			return 0, err
		}
	}
	return first.MealID, nil
}

func (d *Dispatcher) assign(ctx context.Context, o orders.Order) error {
	worker, err := d.slots.Assign(ctx, o)
	if err != nil {
		return err
	}
	d.logger.Printf("dispatch: order %d (%s, meal %d) -> chef %d", o.ID, o.Item, o.MealID, worker)
	return nil
}
