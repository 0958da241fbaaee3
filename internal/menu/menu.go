// Package menu holds the static tables the kitchen cooks from: the menu items,
// each item's recipe, the stations a step occupies, and where on the kitchen
// floor a step is performed.
package menu

import (
	"fmt"
	"strings"
)

// StationKind names a capacity-limited work area.
type StationKind string

const (
	Ingredient   StationKind = "ingredient"
	CuttingBoard StationKind = "cutting_board"
	Stove        StationKind = "stove"
	Plating      StationKind = "plating"
	Return       StationKind = "return"
	Sink         StationKind = "sink"
)

// StationKinds lists every station in display order.
var StationKinds = []StationKind{Ingredient, CuttingBoard, Stove, Plating, Return, Sink}

// Valid reports whether k is a known station.
func (k StationKind) Valid() bool {
	for _, known := range StationKinds {
		if k == known {
			return true
		}
	}
	return false
}

const (
	// WashStep is the step every order finishes with once its recipe is done.
	WashStep = "WASH_DISHES"
	// WashDuration is the wash step's length in simulated time units.
	WashDuration = 3
)

// Step is one recipe entry. Duration is expressed in simulated time units.
type Step struct {
	Name     string
	Duration int
	Station  StationKind
	Location string
}

// Item is a menu entry with its ordered recipe.
type Item struct {
	Name  string
	Steps []Step
}

func ingredient(name string) Step {
	return Step{Name: name, Duration: 1, Station: Ingredient, Location: name}
}

var (
	chop      = Step{Name: "Chop", Duration: 2, Station: CuttingBoard, Location: "Chop"}
	plate     = Step{Name: "Plate Dish", Duration: 1, Station: Plating, Location: "Plate Dish"}
	cookRice  = Step{Name: "Cook Rice", Duration: 5, Station: Stove, Location: "Cook Rice"}
	boilWater = Step{Name: "Boil Water", Duration: 1, Station: Stove, Location: "Cook Rice"}
)

var items = []Item{
	{Name: "Cucumber roll", Steps: []Step{ingredient("Cucumber"), chop, plate, ingredient("Rice"), cookRice, plate, ingredient("Seaweed"), plate}},
	{Name: "Sashimi", Steps: []Step{ingredient("Fish"), chop, plate}},
	{Name: "Fish roll", Steps: []Step{ingredient("Fish"), chop, plate, ingredient("Rice"), cookRice, plate, ingredient("Seaweed"), plate}},
	{Name: "Cucumber Salad", Steps: []Step{ingredient("Cucumber"), chop, plate, ingredient("Cabbage"), chop, plate}},
	{Name: "Tomato Salad", Steps: []Step{ingredient("Tomato"), chop, plate, ingredient("Cabbage"), chop, plate}},
	{Name: "Tomato Cucumber Salad", Steps: []Step{ingredient("Tomato"), chop, plate, ingredient("Cucumber"), chop, plate, ingredient("Cabbage"), chop, plate}},
	{Name: "Green Tea", Steps: []Step{ingredient("Tea Leaves"), boilWater, plate}},
	{Name: "Black Tea", Steps: []Step{ingredient("Tea Leaves"), boilWater, plate}},
	{Name: "Oolong Tea", Steps: []Step{ingredient("Tea Leaves"), boilWater, plate}},
}

// aliases maps historical spellings still sent by older order sources.
var aliases = map[string]string{
	"cucuber roll": "cucumber roll",
	"greentea":     "green tea",
	"blacktea":     "black tea",
	"oolongtea":    "oolong tea",
}

// Mains, Sides and Drinks group the menu the way meal sets are composed.
var (
	Mains  = []string{"Cucumber roll", "Sashimi", "Fish roll"}
	Sides  = []string{"Cucumber Salad", "Tomato Salad", "Tomato Cucumber Salad"}
	Drinks = []string{"Green Tea", "Black Tea", "Oolong Tea"}
)

// Lookup resolves an item name to its menu index.
func Lookup(name string) (int, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := aliases[key]; ok {
		key = alias
	}
	for idx, item := range items {
		if strings.ToLower(item.Name) == key {
			return idx, true
		}
	}
	return -1, false
}

// At returns the menu item stored at idx.
func At(idx int) (Item, error) {
	if idx < 0 || idx >= len(items) {
		return Item{}, fmt.Errorf("menu: index %d out of range", idx)
	}
	return items[idx], nil
}

// Len reports the number of menu items.
func Len() int { return len(items) }

// Names lists the menu in index order.
func Names() []string {
	names := make([]string, len(items))
	for i, item := range items {
		names[i] = item.Name
	}
	return names
}
