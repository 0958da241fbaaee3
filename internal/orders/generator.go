package orders

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/kingrea/kitchenline/internal/menu"
)

// Generator is an order source that submits meal sets of one main, one side
// and one drink.
type Generator struct {
	queue    *Queue
	rng      *rand.Rand
	interval time.Duration
	limit    int
	logger   Logger
	nextMeal int
}

// GeneratorOption customizes a Generator.
type GeneratorOption func(*Generator)

// WithInterval sets the pause between submitted meals.
func WithInterval(d time.Duration) GeneratorOption {
	return func(g *Generator) {
		if d >= 0 {
			g.interval = d
		}
	}
}

// WithSeed makes meal composition reproducible. Zero keeps a time-based seed.
func WithSeed(seed int64) GeneratorOption {
	return func(g *Generator) {
		if seed != 0 {
			g.rng = rand.New(rand.NewSource(seed))
		}
	}
}

// WithLimit stops the generator after n meals. Values <= 0 mean no limit.
func WithLimit(n int) GeneratorOption {
	return func(g *Generator) {
		g.limit = n
	}
}

// WithGeneratorLogger overrides the generator's logger.
func WithGeneratorLogger(l Logger) GeneratorOption {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewGenerator prepares a generator feeding q.
func NewGenerator(q *Queue, opts ...GeneratorOption) *Generator {
	g := &Generator{
		queue:    q,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		interval: 3 * time.Second,
		logger:   nopLogger{},
		nextMeal: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// NextMeal composes the next meal set without submitting it.
func (g *Generator) NextMeal() []string {
	return []string{
		menu.Mains[g.rng.Intn(len(menu.Mains))],
		menu.Sides[g.rng.Intn(len(menu.Sides))],
		menu.Drinks[g.rng.Intn(len(menu.Drinks))],
	}
}

// Run submits meals until the limit is reached or ctx is done. A full queue
// suspends the generator until space frees up.
func (g *Generator) Run(ctx context.Context) error {
	for g.limit <= 0 || g.nextMeal <= g.limit {
		items := g.NextMeal()
		mealID := g.nextMeal
		placed, err := g.queue.Submit(ctx, mealID, items)
		switch {
		case errors.Is(err, ErrEmptyMeal):
			g.logger.Printf("orders: meal %d dropped: %v", mealID, err)
		case err != nil:
			return err
		default:
			g.logger.Printf("orders: meal %d admitted with %d items %v", mealID, len(placed), items)
		}
		g.nextMeal++
		if g.interval > 0 {
			timer := time.NewTimer(g.interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	return nil
}
