package kitchen

import (
	"fmt"
	"time"

	"github.com/tiendc/go-deepcopy"

	"github.com/kingrea/kitchenline/internal/dispatch"
	"github.com/kingrea/kitchenline/internal/motion"
	"github.com/kingrea/kitchenline/internal/orders"
	"github.com/kingrea/kitchenline/internal/station"
)

// Snapshot is a detached view of the whole line for renderers. Nothing in it
// aliases live kitchen state.
type Snapshot struct {
	Taken       time.Time
	Queue       []orders.Order
	QueueCap    int
	Slots       []dispatch.Slot
	Chefs       []ChefStatus
	Stations    []station.Status
	Plates      []station.Plate
	Grid        *motion.Grid
	Agents      []motion.AgentState
	MealsServed int
	Journal     []string
	JournalSize int
}

// Snapshot captures the current state. journalLines bounds how much of the
// journal tail is included.
func (k *Kitchen) Snapshot(journalLines int) (Snapshot, error) {
	k.mu.Lock()
	chefs := make([]ChefStatus, len(k.status))
	copy(chefs, k.status)
	k.mu.Unlock()

	live := Snapshot{
		Taken:       time.Now(),
		Queue:       k.queue.Snapshot(),
		QueueCap:    k.queue.Cap(),
		Slots:       k.slots.Snapshot(),
		Chefs:       chefs,
		Stations:    k.stations.Snapshot(),
		Plates:      k.plates.Snapshot(),
		MealsServed: k.MealsServed(),
	}
	if k.planner != nil {
		g := k.planner.Grid()
		live.Grid = &g
		live.Agents = k.planner.Snapshot()
	}
	live.Journal, live.JournalSize = k.journal.Tail(journalLines)

	// chef statuses still point at orders the chefs are cooking
	var out Snapshot
	if err := deepcopy.Copy(&out, &live); err != nil {
		return Snapshot{}, fmt.Errorf("kitchen: snapshot: %w", err)
	}
	out.Taken = live.Taken
	return out, nil
}
