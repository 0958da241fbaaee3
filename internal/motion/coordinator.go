package motion

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kingrea/kitchenline/internal/eventbridge"
)

// AckSink receives acknowledgments once an agent has arrived.
// *eventbridge.Bus and *eventbridge.Client both satisfy it.
type AckSink interface {
	Ack(eventbridge.StepAck) error
}

// Coordinator turns StepEvents into agent moves and acks each event once its
// agent has arrived. Every agent gets its own lane so one slow walk never
// holds up another chef.
type Coordinator struct {
	planner  *Planner
	acks     AckSink
	logger   Logger
	onArrive func(eventbridge.StepEvent, Point)
}

// CoordinatorOption customizes a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithCoordinatorLogger overrides the coordinator's logger.
func WithCoordinatorLogger(l Logger) CoordinatorOption {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithArrivalHook calls fn after an agent reaches an event's target, before the ack.
func WithArrivalHook(fn func(eventbridge.StepEvent, Point)) CoordinatorOption {
	return func(c *Coordinator) {
		c.onArrive = fn
	}
}

// NewCoordinator wires a planner to an ack sink.
func NewCoordinator(planner *Planner, acks AckSink, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{planner: planner, acks: acks, logger: nopLogger{}}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Run consumes events until the channel closes or ctx is done.
func (c *Coordinator) Run(ctx context.Context, events <-chan eventbridge.StepEvent) error {
	g, ctx := errgroup.WithContext(ctx)
	var (
		mu    sync.Mutex
		lanes = map[int]chan eventbridge.StepEvent{}
	)
	closeLanes := func() {
		mu.Lock()
		defer mu.Unlock()
		for id, lane := range lanes {
			close(lane)
			delete(lanes, id)
		}
	}
	laneFor := func(worker int) chan eventbridge.StepEvent {
		mu.Lock()
		defer mu.Unlock()
		lane, ok := lanes[worker]
		if !ok {
			lane = make(chan eventbridge.StepEvent, 8)
			lanes[worker] = lane
			g.Go(func() error { return c.lane(ctx, lane) })
		}
		return lane
	}

	g.Go(func() error {
		defer closeLanes()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case evt, ok := <-events:
				if !ok {
					return nil
				}
				select {
				case laneFor(evt.WorkerID) <- evt:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	})
	return g.Wait()
}

func (c *Coordinator) lane(ctx context.Context, events <-chan eventbridge.StepEvent) error {
	for evt := range events {
		if err := c.Handle(ctx, evt); err != nil {
			return err
		}
	}
	return nil
}

// Handle moves the event's agent to its target and acks it. Events for
// unknown agents are acked at once so their chef is not left waiting.
func (c *Coordinator) Handle(ctx context.Context, evt eventbridge.StepEvent) error {
	target := Point{X: evt.TargetX, Y: evt.TargetY}
	pos, err := c.planner.MoveTo(ctx, evt.WorkerID, target)
	switch {
	case errors.Is(err, ErrUnknownAgent):
		c.logger.Printf("motion: event %s for unknown agent %d acked without moving", evt.EventID, evt.WorkerID)
	case err != nil:
		return err
	default:
		c.logger.Printf("motion: agent %d reached %s for step %d (%s)", evt.WorkerID, pos, evt.StepIndex, evt.Step)
		if c.onArrive != nil {
			c.onArrive(evt, pos)
		}
	}
	if err := c.acks.Ack(evt.Ack()); err != nil {
		c.logger.Printf("motion: ack chef %d step %d: %v", evt.WorkerID, evt.StepIndex, err)
	}
	return nil
}
