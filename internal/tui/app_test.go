package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/kitchenline/internal/kitchen"
	"github.com/kingrea/kitchenline/internal/menu"
	"github.com/kingrea/kitchenline/internal/motion"
	"github.com/kingrea/kitchenline/internal/orders"
	"github.com/kingrea/kitchenline/internal/station"
)

type fakeSource struct {
	snap  kitchen.Snapshot
	err   error
	calls int
}

func (f *fakeSource) Snapshot(int) (kitchen.Snapshot, error) {
	f.calls++
	return f.snap, f.err
}

func sampleSnapshot() kitchen.Snapshot {
	grid := motion.KitchenGrid(120, 40)
	order := orders.Order{ID: 4, MealID: 2, Item: "Sashimi"}
	return kitchen.Snapshot{
		Taken:    time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		Queue:    []orders.Order{{ID: 7, MealID: 3, Item: "Green Tea"}},
		QueueCap: 9,
		Chefs: []kitchen.ChefStatus{
			{ID: 0, State: kitchen.Executing, Order: &order, Step: 1, StepName: "Chop"},
			{ID: 1, State: kitchen.Idle, Step: -1, Served: 2},
		},
		Stations: []station.Status{{Kind: menu.CuttingBoard, Capacity: 2, Held: 1}},
		Plates:   []station.Plate{{ID: 1, InUse: true, Holder: 0, UseCount: 3}, {ID: 2, Holder: -1}},
		Grid:     &grid,
		Agents: []motion.AgentState{
			{ID: 0, Position: motion.Point{X: 15, Y: 15}},
			{ID: 1, Position: motion.Point{X: 50, Y: 12}},
		},
		MealsServed: 1,
		Journal:     []string{"INFO  0:ORDER_START:4:Sashimi", "INFO  0:STEP_START:4:Chop"},
		JournalSize: 2,
	}
}

func feed(t *testing.T, app *App, msg tea.Msg) *App {
	t.Helper()
	model, _ := app.Update(msg)
	next, ok := model.(*App)
	if !ok {
		t.Fatalf("unexpected model type %T", model)
	}
	return next
}

func TestViewRendersSnapshot(t *testing.T) {
	src := &fakeSource{snap: sampleSnapshot()}
	app := NewApp(src)
	app = feed(t, app, tea.WindowSizeMsg{Width: 200, Height: 50})
	msg := app.Init()()
	app = feed(t, app, msg)
	if src.calls != 1 {
		t.Fatalf("expected one snapshot poll, got %d", src.calls)
	}
	view := app.View()
	for _, want := range []string{
		"KITCHEN LINE",
		"order 4 Sashimi",
		"1 Chop",
		"served 2",
		"cutting_board",
		"chef 0",
		"uses 3",
		"3:Green Tea",
		"STEP_START:4:Chop",
		"1 meal(s) served",
		"queue 1/9",
		"Cut",
	} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}
}

func TestViewBeforeFirstSnapshot(t *testing.T) {
	app := NewApp(&fakeSource{}, WithTitle("TEST LINE"))
	view := app.View()
	if !strings.Contains(view, "TEST LINE") || !strings.Contains(view, "Waiting") {
		t.Fatalf("unexpected initial view %q", view)
	}
	app = feed(t, app, snapshotMsg{err: errors.New("boom")})
	if !strings.Contains(app.View(), "boom") {
		t.Fatalf("snapshot error not shown: %q", app.View())
	}
}

func TestQuitKeys(t *testing.T) {
	for _, key := range []tea.KeyMsg{
		{Type: tea.KeyRunes, Runes: []rune("q")},
		{Type: tea.KeyCtrlC},
	} {
		app := NewApp(&fakeSource{})
		_, cmd := app.Update(key)
		if cmd == nil {
			t.Fatalf("%s: expected a quit command", key)
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Fatalf("%s: expected tea.QuitMsg", key)
		}
	}
}

func TestRenderFloorPlacesChefsAndZones(t *testing.T) {
	grid := motion.Grid{Width: 12, Height: 4, Zones: []motion.Zone{{Name: "Sink", Top: 0, Left: 0, Height: 2, Width: 6}}}
	out := renderFloor(&grid, []motion.AgentState{{ID: 3, Position: motion.Point{X: 8, Y: 3}}}, 0, 0)
	lines := strings.Split(stripANSI(out), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 rows, got %d: %q", len(lines), lines)
	}
	if !strings.Contains(lines[0], "Sink") {
		t.Fatalf("zone label missing: %q", lines[0])
	}
	if got := []rune(lines[3])[8]; got != '3' {
		t.Fatalf("expected chef 3 at column 8, got %q in %q", got, lines[3])
	}
	if !strings.Contains(renderFloor(nil, nil, 0, 0), "remote coordinator") {
		t.Fatalf("expected remote coordinator note without a grid")
	}
}

// stripANSI removes SGR escape sequences.
func stripANSI(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == 0x1b && i+1 < len(s) && s[i+1] == '[' {
			j := i + 2
			for j < len(s) && s[j] != 'm' {
				j++
			}
			i = j
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
