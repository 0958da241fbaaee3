package menu

import "fmt"

// Location is a cell on the kitchen floor.
type Location struct {
	X int
	Y int
}

// DefaultLocation is used for steps whose location is not in the table.
var DefaultLocation = Location{X: 50, Y: 12}

var locations = map[string]Location{
	"Cucumber":      {28, 26},
	"Tomato":        {28, 26},
	"Cabbage":       {28, 26},
	"Fish":          {28, 26},
	"Rice":          {28, 26},
	"Seaweed":       {28, 26},
	"Tea Leaves":    {28, 26},
	"Chop 1":        {15, 15},
	"Chop 2":        {15, 20},
	"Cook Rice":     {60, 28},
	"Plate Dish 1":  {91, 12},
	"Plate Dish 2":  {91, 23},
	"Plate Dish 3":  {91, 34},
	WashStep:        {28, 9},
	"Return_DISHES": {60, 7},
}

// slotted locations exist once per physical slot ("Chop 1", "Chop 2").
var slotted = map[string]int{
	"Chop":       2,
	"Plate Dish": 3,
}

// Locate returns where a step at the named location is performed by the given
// chef. Slotted locations are spread across chefs by id. The boolean is false
// when the name is unknown and DefaultLocation was returned.
func Locate(name string, chef int) (Location, bool) {
	if loc, ok := locations[name]; ok {
		return loc, true
	}
	if slots, ok := slotted[name]; ok {
		if chef < 0 {
			chef = -chef
		}
		if loc, ok := locations[fmt.Sprintf("%s %d", name, chef%slots+1)]; ok {
			return loc, true
		}
	}
	return DefaultLocation, false
}
