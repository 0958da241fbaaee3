// Package kitchen wires the order queue, dispatcher, stations, plates and
// chefs into one running production line.
package kitchen

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kingrea/kitchenline/internal/config"
	"github.com/kingrea/kitchenline/internal/dispatch"
	"github.com/kingrea/kitchenline/internal/eventbridge"
	"github.com/kingrea/kitchenline/internal/logbook"
	"github.com/kingrea/kitchenline/internal/motion"
	"github.com/kingrea/kitchenline/internal/orders"
	"github.com/kingrea/kitchenline/internal/station"
	"github.com/kingrea/kitchenline/internal/trace"
)

// ErrGeneratorOwnsOrders is returned by Submit when the built-in generator
// numbers the meals.
var ErrGeneratorOwnsOrders = errors.New("kitchen: orders come from the generator")

// Logger matches logging.Logger's signature.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Option customizes a Kitchen.
type Option func(*Kitchen)

// WithLogger routes component logs to l.
func WithLogger(l Logger) Option {
	return func(k *Kitchen) {
		if l != nil {
			k.logger = l
		}
	}
}

// WithJournal records chef notifications in book.
func WithJournal(book *logbook.Logbook) Option {
	return func(k *Kitchen) {
		k.journal = book
	}
}

// WithTrace records events, acks, notifications and plate usage in rec.
func WithTrace(rec *trace.Recorder) Option {
	return func(k *Kitchen) {
		k.trace = rec
	}
}

// WithUsageReporter forwards plate usage changes to r.
func WithUsageReporter(r station.UsageReporter) Option {
	return func(k *Kitchen) {
		k.reporter = r
	}
}

// WithNotifier calls fn for every chef notification.
func WithNotifier(fn func(Notification)) Option {
	return func(k *Kitchen) {
		k.onNotify = fn
	}
}

// WithOrderGenerator feeds the queue from a random meal generator paced by
// orders.interval. orders.meals, when positive, also ends Run once that
// many meals have been served.
func WithOrderGenerator(opts ...orders.GeneratorOption) Option {
	return func(k *Kitchen) {
		k.generate = true
		k.genOpts = opts
	}
}

// Kitchen owns every shared collection of a run.
type Kitchen struct {
	cfg      *config.Config
	logger   Logger
	journal  *logbook.Logbook
	trace    *trace.Recorder
	reporter station.UsageReporter
	onNotify func(Notification)
	generate bool
	genOpts  []orders.GeneratorOption

	timeUnit   time.Duration
	queue      *orders.Queue
	slots      *dispatch.Slots
	tracker    *dispatch.Tracker
	dispatcher *dispatch.Dispatcher
	stations   *station.Pool
	plates     *station.Plates
	bus        *eventbridge.Bus
	planner    *motion.Planner
	generator  *orders.Generator
	chefs      []*chef

	mu       sync.Mutex
	status   []ChefStatus
	nextMeal int

	mealsDone atomic.Int64
	mealLimit int
	stop      context.CancelFunc
	stopMu    sync.Mutex
}

// New builds a kitchen from cfg. Nothing runs until Run.
func New(cfg *config.Config, opts ...Option) (*Kitchen, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	k := &Kitchen{
		cfg:      cfg,
		logger:   nopLogger{},
		timeUnit: cfg.Project.Kitchen.TimeUnit,
		nextMeal: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(k)
		}
	}
	kc := cfg.Project.Kitchen

	var err error
	if k.queue, err = orders.NewQueue(kc.QueueCapacity, orders.WithLogger(k.logger)); err != nil {
		return nil, fmt.Errorf("kitchen: %w", err)
	}
	if k.slots, err = dispatch.NewSlots(kc.Chefs); err != nil {
		return nil, fmt.Errorf("kitchen: %w", err)
	}
	k.tracker = dispatch.NewTracker()
	k.dispatcher = dispatch.New(k.queue, k.slots, k.tracker,
		dispatch.WithLogger(k.logger),
		dispatch.WithMealHook(k.mealServed),
	)
	if k.stations, err = station.NewPool(cfg.StationCapacities()); err != nil {
		return nil, fmt.Errorf("kitchen: %w", err)
	}
	if k.plates, err = station.NewPlates(kc.Plates,
		station.WithReporter(usageTap{k}),
		station.WithLogger(k.logger),
	); err != nil {
		return nil, fmt.Errorf("kitchen: %w", err)
	}
	k.bus = eventbridge.NewBus(
		eventbridge.WithBusLogger(k.logger),
		eventbridge.WithAckTimeout(kc.AckTimeout),
	)

	if !cfg.RemoteCoordinator() {
		mc := cfg.Project.Motion
		k.planner = motion.NewPlanner(motion.KitchenGrid(mc.Width, mc.Height),
			motion.WithStepDelay(mc.StepDelay),
			motion.WithPlannerLogger(k.logger),
		)
	}
	if k.generate {
		oc := cfg.Project.Orders
		genOpts := []orders.GeneratorOption{
			orders.WithInterval(oc.Interval),
			orders.WithLimit(oc.Meals),
			orders.WithGeneratorLogger(k.logger),
		}
		if oc.Seed != 0 {
			genOpts = append(genOpts, orders.WithSeed(oc.Seed))
		}
		k.generator = orders.NewGenerator(k.queue, append(genOpts, k.genOpts...)...)
		k.mealLimit = oc.Meals
	}

	k.status = make([]ChefStatus, kc.Chefs)
	for i := 0; i < kc.Chefs; i++ {
		k.chefs = append(k.chefs, &chef{id: i, k: k})
		k.status[i] = ChefStatus{ID: i, State: Idle, Step: -1}
		if k.planner != nil {
			if err := k.planner.AddAgent(i, i, motion.ChefStart(i)); err != nil {
				return nil, fmt.Errorf("kitchen: %w", err)
			}
		}
	}
	return k, nil
}

// Bus exposes the step event bus so a remote coordinator bridge can stream
// events and deliver acks.
func (k *Kitchen) Bus() *eventbridge.Bus { return k.bus }

// Queue exposes the order queue.
func (k *Kitchen) Queue() *orders.Queue { return k.queue }

// Planner returns the local motion planner, or nil when a remote
// coordinator moves the chefs.
func (k *Kitchen) Planner() *motion.Planner { return k.planner }

// Submit admits a meal from an external order source, waiting for queue
// space.
func (k *Kitchen) Submit(ctx context.Context, items []string) ([]orders.Order, error) {
	if k.generator != nil {
		return nil, ErrGeneratorOwnsOrders
	}
	k.mu.Lock()
	mealID := k.nextMeal
	k.nextMeal++
	k.mu.Unlock()
	return k.queue.Submit(ctx, mealID, items)
}

// MealsServed reports how many meals have fully completed.
func (k *Kitchen) MealsServed() int { return int(k.mealsDone.Load()) }

// Run starts the dispatcher, every chef, the local coordinator and the
// generator when configured. It returns nil once ctx is cancelled or the
// generator's meal limit has been served.
func (k *Kitchen) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	k.stopMu.Lock()
	k.stop = cancel
	k.stopMu.Unlock()
	defer k.bus.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return k.dispatcher.Run(gctx) })
	for _, c := range k.chefs {
		c := c
		g.Go(func() error { return c.run(gctx) })
	}
	if k.planner != nil {
		coord := motion.NewCoordinator(k.planner, k.bus, motion.WithCoordinatorLogger(k.logger))
		g.Go(func() error { return coord.Run(gctx, k.bus.Events()) })
	}
	if k.generator != nil {
		g.Go(func() error { return k.generator.Run(gctx) })
	}
	k.logger.Printf("kitchen: running with %d chefs, local motion %t", len(k.chefs), k.planner != nil)
	err := g.Wait()
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || err == nil) {
		return nil
	}
	return err
}

func (k *Kitchen) mealServed(mealID int) {
	done := k.mealsDone.Add(1)
	k.journal.Info("meal %d served (%d total)", mealID, done)
	if k.mealLimit > 0 && int(done) >= k.mealLimit {
		k.logger.Printf("kitchen: served %d meals, stopping", done)
		k.stopMu.Lock()
		if k.stop != nil {
			k.stop()
		}
		k.stopMu.Unlock()
	}
}

func (k *Kitchen) setChef(id int, fn func(*ChefStatus)) {
	k.mu.Lock()
	defer k.mu.Unlock()
	fn(&k.status[id])
}

func (k *Kitchen) notify(n Notification) {
	line := n.String()
	k.logger.Printf("kitchen: %s", line)
	k.journal.Notify(line)
	k.record(trace.Entry{Kind: trace.KindNotice, Chef: n.Chef, Order: n.Order, Detail: line})
	if k.onNotify != nil {
		k.onNotify(n)
	}
}

func (k *Kitchen) record(e trace.Entry) {
	if err := k.trace.Record(e); err != nil {
		k.logger.Printf("kitchen: trace: %v", err)
	}
}

// usageTap traces plate usage before forwarding it to the external monitor.
type usageTap struct{ k *Kitchen }

func (t usageTap) ReportPlateUsage(plateID, count int) {
	t.k.record(trace.Entry{Kind: trace.KindPlate, Chef: -1, Step: plateID, Detail: fmt.Sprintf("PLATE %d USE %d", plateID, count)})
	if t.k.reporter != nil {
		t.k.reporter.ReportPlateUsage(plateID, count)
	}
}
