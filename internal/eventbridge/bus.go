package eventbridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrAckTimeout is returned when a step is not acknowledged within the bus timeout.
var ErrAckTimeout = errors.New("eventbridge: ack timeout")

const defaultEventBuffer = 64

// Bus couples chefs to the spatial coordinator: chefs publish StepEvents and
// wait on their own mailbox for the matching StepAck.
type Bus struct {
	events  chan StepEvent
	router  *Router
	logger  Logger
	timeout time.Duration

	mu   sync.Mutex
	subs map[int]Subscription
}

// BusOption customizes a Bus.
type BusOption func(*Bus)

// WithBusLogger overrides the bus logger; it is also handed to the router.
func WithBusLogger(l Logger) BusOption {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithAckTimeout bounds each handshake. Zero waits until the context ends.
func WithAckTimeout(d time.Duration) BusOption {
	return func(b *Bus) {
		if d >= 0 {
			b.timeout = d
		}
	}
}

// WithEventBuffer sets how many unread events may queue before Publish blocks.
func WithEventBuffer(n int) BusOption {
	return func(b *Bus) {
		if n > 0 {
			b.events = make(chan StepEvent, n)
		}
	}
}

// NewBus returns a bus with its own ack router.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		events: make(chan StepEvent, defaultEventBuffer),
		logger: nopLogger{},
		subs:   map[int]Subscription{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	b.router = NewRouter(RouterWithLogger(b.logger))
	return b
}

// Events is the stream consumed by the coordinator.
func (b *Bus) Events() <-chan StepEvent {
	return b.events
}

// Publish queues an event for the coordinator.
func (b *Bus) Publish(ctx context.Context, evt StepEvent) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case b.events <- evt:
		return nil
	}
}

// Ack validates and routes an acknowledgment to the waiting chef.
func (b *Bus) Ack(ack StepAck) error {
	ack.Normalize()
	if err := ack.Validate(); err != nil {
		return fmt.Errorf("eventbridge: %w", err)
	}
	b.router.Route(ack)
	return nil
}

// HandleAck satisfies AckProcessor so a Server can feed the bus directly.
func (b *Bus) HandleAck(ack StepAck) error {
	return b.Ack(ack)
}

// Handshake publishes evt and waits for its ack. The bus timeout covers both
// halves; on expiry ErrAckTimeout is returned, on shutdown the context error.
func (b *Bus) Handshake(ctx context.Context, evt StepEvent) (StepAck, error) {
	waitCtx, cancel := b.withTimeout(ctx)
	defer cancel()
	// subscribe before publishing so an instant ack lands in the mailbox
	sub := b.mailbox(evt.WorkerID)
	if err := b.Publish(waitCtx, evt); err != nil {
		return StepAck{}, b.timeoutErr(ctx, evt, err)
	}
	return b.await(ctx, waitCtx, sub, evt)
}

// Await waits for the ack of an already published event.
func (b *Bus) Await(ctx context.Context, evt StepEvent) (StepAck, error) {
	waitCtx, cancel := b.withTimeout(ctx)
	defer cancel()
	return b.await(ctx, waitCtx, b.mailbox(evt.WorkerID), evt)
}

// Close drops every worker mailbox.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for worker, sub := range b.subs {
		sub.Close()
		delete(b.subs, worker)
	}
}

func (b *Bus) await(ctx, waitCtx context.Context, sub Subscription, evt StepEvent) (StepAck, error) {
	for {
		select {
		case <-waitCtx.Done():
			return StepAck{}, b.timeoutErr(ctx, evt, waitCtx.Err())
		case ack, ok := <-sub.Acks:
			if !ok {
				return StepAck{}, fmt.Errorf("eventbridge: mailbox for chef %d closed", evt.WorkerID)
			}
			if ack.Matches(evt) {
				return ack, nil
			}
			b.logger.Printf("eventbridge: chef %d waiting for step %d, discarded ack for step %d", evt.WorkerID, evt.StepIndex, ack.StepIndex)
		}
	}
}

func (b *Bus) mailbox(worker int) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub, ok := b.subs[worker]
	if !ok {
		sub = b.router.Subscribe(worker)
		b.subs[worker] = sub
	}
	return sub
}

func (b *Bus) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, b.timeout)
}

func (b *Bus) timeoutErr(parent context.Context, evt StepEvent, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: chef %d step %d after %s", ErrAckTimeout, evt.WorkerID, evt.StepIndex, b.timeout)
	}
	return err
}
