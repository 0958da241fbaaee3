package kitchen

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kingrea/kitchenline/internal/eventbridge"
	"github.com/kingrea/kitchenline/internal/menu"
	"github.com/kingrea/kitchenline/internal/orders"
	"github.com/kingrea/kitchenline/internal/trace"
)

// ChefState is where a chef is in its order cycle.
type ChefState int

const (
	Idle ChefState = iota
	Executing
	Washing
)

func (s ChefState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Executing:
		return "executing"
	case Washing:
		return "washing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Notification kinds emitted by chefs.
const (
	OrderStart  = "ORDER_START"
	StepStart   = "STEP_START"
	StepDone    = "STEP_DONE"
	StepUnacked = "STEP_UNACKED"
	OrderDone   = "ORDER_DONE"
	MealDone    = "MEAL_DONE"
)

// Notification is one chef progress message.
type Notification struct {
	Chef   int
	Kind   string
	Order  int
	Detail string
}

// String renders the notification as <chef>:<KIND>:<order>:<detail>.
func (n Notification) String() string {
	return fmt.Sprintf("%d:%s:%d:%s", n.Chef, n.Kind, n.Order, n.Detail)
}

// ChefStatus is a chef's externally visible state.
type ChefStatus struct {
	ID       int
	State    ChefState
	Order    *orders.Order
	Step     int
	StepName string
	Served   int
}

// chef runs one order at a time from its dispatch slot.
type chef struct {
	id int
	k  *Kitchen
}

func (c *chef) run(ctx context.Context) error {
	for {
		o, err := c.k.slots.Next(ctx, c.id)
		if err != nil {
			return err
		}
		if err := c.cook(ctx, o); err != nil {
			return err
		}
	}
}

// cook walks one order through its recipe, washes up and records the
// completion against the order's meal.
func (c *chef) cook(ctx context.Context, o orders.Order) error {
	item, err := menu.At(o.MenuIdx)
	if err != nil {
		// the queue only admits resolved items, so this is a programming error
		c.k.logger.Printf("kitchen: chef %d dropping order %d: %v", c.id, o.ID, err)
		return c.finish(o)
	}
	c.k.setChef(c.id, func(s *ChefStatus) {
		s.State = Executing
		s.Order = &o
		s.Step = -1
		s.StepName = ""
	})
	c.notify(OrderStart, o.ID, item.Name)

	for idx, step := range item.Steps {
		c.k.setChef(c.id, func(s *ChefStatus) {
			s.Step = idx
			s.StepName = step.Name
		})
		c.notify(StepStart, o.ID, step.Name)
		if err := c.moveTo(ctx, o, idx, step.Location, step.Duration); err != nil {
			return err
		}
		if err := c.work(ctx, step); err != nil {
			return err
		}
		c.notify(StepDone, o.ID, step.Name)
	}
	c.notify(OrderDone, o.ID, item.Name)

	c.k.setChef(c.id, func(s *ChefStatus) {
		s.State = Washing
		s.Step = len(item.Steps)
		s.StepName = menu.WashStep
	})
	if err := c.moveTo(ctx, o, len(item.Steps), menu.WashStep, menu.WashDuration); err != nil {
		return err
	}
	if err := c.hold(ctx, menu.Sink, menu.WashDuration); err != nil {
		return err
	}
	return c.finish(o)
}

// moveTo sends the chef to a step location and waits for the coordinator to
// report arrival. A timed out handshake is logged and the step runs anyway.
func (c *chef) moveTo(ctx context.Context, o orders.Order, stepIdx int, location string, pause int) error {
	loc, ok := menu.Locate(location, c.id)
	if !ok {
		c.k.logger.Printf("kitchen: chef %d has no location for %q, using %d,%d", c.id, location, loc.X, loc.Y)
		c.k.journal.Warn("chef %d: no location for %q, using (%d,%d)", c.id, location, loc.X, loc.Y)
	}
	evt := eventbridge.NewStepEvent(c.id, o.ID, stepIdx, location, loc.X, loc.Y, pause)
	c.k.record(trace.Entry{
		Kind: trace.KindEvent, Chef: c.id, Order: o.ID, Step: stepIdx,
		Name: location, X: loc.X, Y: loc.Y, EventID: evt.EventID,
	})
	ack, err := c.k.bus.Handshake(ctx, evt)
	switch {
	case errors.Is(err, eventbridge.ErrAckTimeout):
		c.k.logger.Printf("kitchen: %v", err)
		c.notify(StepUnacked, o.ID, location)
		return nil
	case err != nil:
		return err
	}
	c.k.record(trace.Entry{Kind: trace.KindAck, Chef: c.id, Order: o.ID, Step: stepIdx, EventID: ack.EventID})
	return nil
}

// work performs a recipe step at its station. Plating steps also hold a
// plate for the duration of the step.
func (c *chef) work(ctx context.Context, step menu.Step) error {
	if step.Station != menu.Plating {
		return c.hold(ctx, step.Station, step.Duration)
	}
	plate, err := c.k.plates.Acquire(ctx, c.id)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.k.plates.Release(plate); err != nil {
			c.k.logger.Printf("kitchen: chef %d: %v", c.id, err)
		}
	}()
	return c.hold(ctx, step.Station, step.Duration)
}

// hold occupies a station permit for units time units.
func (c *chef) hold(ctx context.Context, kind menu.StationKind, units int) error {
	release, err := c.k.stations.Acquire(ctx, kind)
	if err != nil {
		return err
	}
	defer release()
	if units <= 0 || c.k.timeUnit <= 0 {
		return nil
	}
	timer := time.NewTimer(time.Duration(units) * c.k.timeUnit)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *chef) finish(o orders.Order) error {
	c.k.setChef(c.id, func(s *ChefStatus) {
		s.State = Idle
		s.Order = nil
		s.Step = -1
		s.StepName = ""
		s.Served++
	})
	c.k.slots.Clear(c.id)
	_, full, err := c.k.tracker.Complete(o.MealID)
	if err != nil {
		c.k.logger.Printf("kitchen: chef %d order %d: %v", c.id, o.ID, err)
		return nil
	}
	if full {
		c.k.plates.ResetUsage()
		c.notify(MealDone, o.ID, fmt.Sprintf("meal %d", o.MealID))
	}
	return nil
}

func (c *chef) notify(kind string, order int, detail string) {
	c.k.notify(Notification{Chef: c.id, Kind: kind, Order: order, Detail: detail})
}
