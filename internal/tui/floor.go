package tui

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/kitchenline/internal/motion"
)

var (
	zoneStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#444444"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
	chefStyles = []lipgloss.Style{
		lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true),
		lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true),
		lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true),
		lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true),
	}
)

type cellKind int

const (
	cellFloor cellKind = iota
	cellZone
	cellLabel
	cellChef
)

type cell struct {
	r    rune
	kind cellKind
	chef int
}

// renderFloor draws the kitchen grid with obstacle zones and chef markers.
// The grid is cropped to maxWidth x maxHeight characters.
func renderFloor(grid *motion.Grid, agents []motion.AgentState, maxWidth, maxHeight int) string {
	if grid == nil || grid.Width <= 0 || grid.Height <= 0 {
		return labelStyle.Render("Floor view unavailable: chefs are moved by a remote coordinator.")
	}
	w, h := grid.Width, grid.Height
	if maxWidth > 0 && maxWidth < w {
		w = maxWidth
	}
	if maxHeight > 0 && maxHeight < h {
		h = maxHeight
	}
	cells := make([][]cell, h)
	for y := range cells {
		cells[y] = make([]cell, w)
		for x := range cells[y] {
			cells[y][x] = cell{r: ' '}
		}
	}
	for _, z := range grid.Zones {
		for y := z.Top; y < z.Top+z.Height && y < h; y++ {
			for x := z.Left; x < z.Left+z.Width && x < w; x++ {
				if y >= 0 && x >= 0 {
					cells[y][x] = cell{r: '░', kind: cellZone}
				}
			}
		}
		// name on the zone's first row, clipped to the zone
		y := z.Top
		if y < 0 || y >= h {
			continue
		}
		for i, r := range []rune(z.Name) {
			x := z.Left + 1 + i
			if i >= z.Width-2 || x >= w {
				break
			}
			cells[y][x] = cell{r: r, kind: cellLabel}
		}
	}
	for _, a := range agents {
		p := a.Position
		if p.Y < 0 || p.Y >= h || p.X < 0 || p.X >= w {
			continue
		}
		marker := []rune(strconv.Itoa(a.ID % 10))[0]
		cells[p.Y][p.X] = cell{r: marker, kind: cellChef, chef: a.ID}
	}

	var b strings.Builder
	for y, row := range cells {
		if y > 0 {
			b.WriteByte('\n')
		}
		// render runs of equally styled cells in one call
		start := 0
		for x := 1; x <= len(row); x++ {
			if x < len(row) && row[x].kind == row[start].kind && row[x].chef == row[start].chef {
				continue
			}
			b.WriteString(styleCells(row[start:x]))
			start = x
		}
	}
	return b.String()
}

func styleCells(run []cell) string {
	if len(run) == 0 {
		return ""
	}
	rs := make([]rune, len(run))
	for i, c := range run {
		rs[i] = c.r
	}
	text := string(rs)
	switch run[0].kind {
	case cellZone:
		return zoneStyle.Render(text)
	case cellLabel:
		return labelStyle.Render(text)
	case cellChef:
		return chefStyles[run[0].chef%len(chefStyles)].Render(text)
	default:
		return text
	}
}
