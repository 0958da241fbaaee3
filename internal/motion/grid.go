// Package motion moves chef agents across the kitchen floor. The floor is a
// bounded grid with static rectangular obstacles; agents step one cell at a
// time and resolve contention through published desired cells and an explicit
// priority.
package motion

import (
	"fmt"
	"sort"
)

// Point is a grid cell. X grows to the right, Y grows downward.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p Point) String() string { return fmt.Sprintf("(%d,%d)", p.X, p.Y) }

func (p Point) add(dx, dy int) Point { return Point{X: p.X + dx, Y: p.Y + dy} }

// Zone is a static no-entry rectangle.
type Zone struct {
	Name   string `json:"name"`
	Top    int    `json:"top"`
	Left   int    `json:"left"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// Contains reports whether p lies inside the rectangle.
func (z Zone) Contains(p Point) bool {
	return p.X >= z.Left && p.X < z.Left+z.Width && p.Y >= z.Top && p.Y < z.Top+z.Height
}

// Grid is the floor: a Width x Height area minus its zones.
type Grid struct {
	Width  int
	Height int
	Zones  []Zone
}

// KitchenZones is the fixed floor plan of the kitchen.
func KitchenZones() []Zone {
	return []Zone{
		{Name: "Return Area", Top: 1, Left: 5, Height: 7, Width: 35},
		{Name: "Sink", Top: 1, Left: 45, Height: 5, Width: 35},
		{Name: "Plating Area", Top: 1, Left: 90, Height: 33, Width: 25},
		{Name: "Cut", Top: 10, Left: 5, Height: 15, Width: 10},
		{Name: "Refrigerator", Top: 27, Left: 5, Height: 7, Width: 35},
		{Name: "Stove", Top: 29, Left: 45, Height: 5, Width: 35},
	}
}

// KitchenGrid returns the kitchen floor sized width x height.
func KitchenGrid(width, height int) Grid {
	return Grid{Width: width, Height: height, Zones: KitchenZones()}
}

// ChefStart returns the parking cell of chef i.
func ChefStart(i int) Point {
	return Point{X: 45 + 5*(i%9), Y: 12 + 2*(i/9)}
}

// InBounds reports whether p is on the floor.
func (g Grid) InBounds(p Point) bool {
	return p.X >= 0 && p.Y >= 0 && p.X < g.Width && p.Y < g.Height
}

// Blocked reports whether p is off the floor or inside a zone.
func (g Grid) Blocked(p Point) bool {
	if !g.InBounds(p) {
		return true
	}
	return g.zoneAt(p) >= 0
}

func (g Grid) zoneAt(p Point) int {
	for i, z := range g.Zones {
		if z.Contains(p) {
			return i
		}
	}
	return -1
}

// Clamp relocates a target so that it is reachable. Targets off the floor are
// pulled onto it. A target inside a zone is pushed one cell past the nearest
// edge of that zone; equal distances prefer top, then bottom, left, right.
// If that cell is itself blocked the nearest free cell is used instead.
func (g Grid) Clamp(p Point) Point {
	p = g.clip(p)
	idx := g.zoneAt(p)
	if idx < 0 {
		return p
	}
	z := g.Zones[idx]
	da := p.Y - z.Top
	db := (z.Top + z.Height - 1) - p.Y
	dl := p.X - z.Left
	dr := (z.Left + z.Width - 1) - p.X

	out := Point{X: p.X, Y: z.Top - 1}
	m := da
	if db < m {
		m = db
		out = Point{X: p.X, Y: z.Top + z.Height}
	}
	if dl < m {
		m = dl
		out = Point{X: z.Left - 1, Y: p.Y}
	}
	if dr < m {
		out = Point{X: z.Left + z.Width, Y: p.Y}
	}
	if !g.Blocked(out) {
		return out
	}
	if free, ok := g.nearestFree(p); ok {
		return free
	}
	return out
}

func (g Grid) clip(p Point) Point {
	if p.X < 0 {
		p.X = 0
	}
	if p.Y < 0 {
		p.Y = 0
	}
	if g.Width > 0 && p.X >= g.Width {
		p.X = g.Width - 1
	}
	if g.Height > 0 && p.Y >= g.Height {
		p.Y = g.Height - 1
	}
	return p
}

// nearestFree scans square rings around p, top row first, left to right.
func (g Grid) nearestFree(p Point) (Point, bool) {
	limit := g.Width
	if g.Height > limit {
		limit = g.Height
	}
	for r := 1; r <= limit; r++ {
		for dy := -r; dy <= r; dy++ {
			for dx := -r; dx <= r; dx++ {
				if abs(dx) != r && abs(dy) != r {
					continue
				}
				if c := p.add(dx, dy); !g.Blocked(c) {
					return c, true
				}
			}
		}
	}
	return Point{}, false
}

// Next picks the cell an agent at from should try next on its way to target,
// ignoring other agents. Attempts run in order: horizontal, vertical,
// diagonal, then the two zig-zag diagonals. ok is false when all are blocked.
func (g Grid) Next(from, target Point) (Point, bool) {
	dx := sign(target.X - from.X)
	dy := sign(target.Y - from.Y)
	if dx == 0 && dy == 0 {
		return from, false
	}
	if dx != 0 {
		if c := from.add(dx, 0); !g.Blocked(c) {
			return c, true
		}
	}
	if dy != 0 {
		if c := from.add(0, dy); !g.Blocked(c) {
			return c, true
		}
	}
	if dx != 0 && dy != 0 {
		for _, c := range []Point{from.add(dx, dy), from.add(dx, -dy), from.add(-dx, dy)} {
			if !g.Blocked(c) {
				return c, true
			}
		}
	}
	return from, false
}

// Route returns the free neighbours of from that lie on a shortest path to
// target over the static floor, closest to target first. Other agents are
// ignored. It is empty when target cannot be reached from from.
func (g Grid) Route(from, target Point) []Point {
	return g.routeWith(g.distancesTo(target), from, target)
}

func (g Grid) routeWith(dist []int, from, target Point) []Point {
	if dist == nil {
		return nil
	}
	here := dist[g.index(from)]
	if here <= 0 {
		return nil
	}
	var out []Point
	for _, d := range neighbourOrder {
		c := from.add(d[0], d[1])
		if g.Blocked(c) {
			continue
		}
		if n := dist[g.index(c)]; n >= 0 && n < here {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return manhattan(out[i], target) < manhattan(out[j], target)
	})
	return out
}

// distancesTo runs a breadth-first search out of target over free cells.
// Unreachable cells hold -1.
func (g Grid) distancesTo(target Point) []int {
	if g.Blocked(target) {
		return nil
	}
	dist := make([]int, g.Width*g.Height)
	for i := range dist {
		dist[i] = -1
	}
	dist[g.index(target)] = 0
	queue := []Point{target}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		next := dist[g.index(cur)] + 1
		for _, d := range neighbourOrder {
			c := cur.add(d[0], d[1])
			if g.Blocked(c) || dist[g.index(c)] >= 0 {
				continue
			}
			dist[g.index(c)] = next
			queue = append(queue, c)
		}
	}
	return dist
}

func (g Grid) index(p Point) int { return p.Y*g.Width + p.X }

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
