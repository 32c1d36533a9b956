// Package grid renders a laid-out pipeline graph onto a character grid with
// box-drawing connectors, one fixed-width column per lane.
//
// Connector cells accumulate direction flags (up/down/left/right) as edges
// and lane-continuity strokes are drawn over them; each cell's final glyph is
// picked from the flag combination, so a corner drawn over a passing lane
// naturally becomes a tee or a cross. Explicit node markers override flags.
package grid

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// ColumnWidth is the number of grid cells per lane column.
const ColumnWidth = 4

// Direction flags for connector cells.
const (
	dirUp uint8 = 1 << iota
	dirDown
	dirLeft
	dirRight
)

// Charset holds the glyphs used for markers and connectors.
type Charset struct {
	Marker       rune // primary filled node marker
	MarkerHollow rune // secondary marker (pending/cached)
	Fail         rune // failed node marker

	Vert  rune
	Horiz rune

	// Corners, named by their two open sides.
	UpRight   rune // └
	UpLeft    rune // ┘
	DownRight rune // ┌
	DownLeft  rune // ┐

	TeeRight rune // ├
	TeeLeft  rune // ┤
	TeeDown  rune // ┬
	TeeUp    rune // ┴
	Cross    rune // ┼
}

// Thin returns the default thin box-drawing character set.
func Thin() Charset {
	return Charset{
		Marker:       '●',
		MarkerHollow: '○',
		Fail:         '✗',
		Vert:         '│',
		Horiz:        '─',
		UpRight:      '└',
		UpLeft:       '┘',
		DownRight:    '┌',
		DownLeft:     '┐',
		TeeRight:     '├',
		TeeLeft:      '┤',
		TeeDown:      '┬',
		TeeUp:        '┴',
		Cross:        '┼',
	}
}

// Round returns the thin set with rounded corners.
func Round() Charset {
	cs := Thin()
	cs.UpRight = '╰'
	cs.UpLeft = '╯'
	cs.DownRight = '╭'
	cs.DownLeft = '╮'
	return cs
}

// junction maps a flag combination to its connector glyph.
func (cs Charset) junction(f uint8) rune {
	switch f {
	case dirUp | dirDown, dirUp, dirDown:
		return cs.Vert
	case dirLeft | dirRight, dirLeft, dirRight:
		return cs.Horiz
	case dirUp | dirRight:
		return cs.UpRight
	case dirUp | dirLeft:
		return cs.UpLeft
	case dirDown | dirRight:
		return cs.DownRight
	case dirDown | dirLeft:
		return cs.DownLeft
	case dirUp | dirDown | dirRight:
		return cs.TeeRight
	case dirUp | dirDown | dirLeft:
		return cs.TeeLeft
	case dirDown | dirLeft | dirRight:
		return cs.TeeDown
	case dirUp | dirLeft | dirRight:
		return cs.TeeUp
	case dirUp | dirDown | dirLeft | dirRight:
		return cs.Cross
	}
	return ' '
}

type cell struct {
	r      rune
	style  lipgloss.Style
	styled bool
	marker bool  // explicit glyph, wins over flags
	flags  uint8 // accumulated connector directions
}

// Grid is a fixed-size character buffer, ColumnWidth cells per lane.
type Grid struct {
	lanes int
	rows  int
	chars Charset
	cells [][]cell
}

// New returns an empty grid of the given size.
func New(lanes, rows int, cs Charset) *Grid {
	cells := make([][]cell, rows)
	for i := range cells {
		cells[i] = make([]cell, lanes*ColumnWidth)
	}
	return &Grid{lanes: lanes, rows: rows, chars: cs, cells: cells}
}

// Rows returns the number of rows in the grid.
func (g *Grid) Rows() int { return g.rows }

func laneX(lane int) int { return lane * ColumnWidth }

func (g *Grid) in(row, x int) bool {
	return row >= 0 && row < g.rows && x >= 0 && x < g.lanes*ColumnWidth
}

// SetMarker places an explicit glyph at a lane column, overriding any
// connector flags accumulated there.
func (g *Grid) SetMarker(row, lane int, r rune, style lipgloss.Style) {
	x := laneX(lane)
	if !g.in(row, x) {
		return
	}
	g.cells[row][x] = cell{r: r, style: style, styled: true, marker: true}
}

// AddFlags accumulates connector directions at a lane column. The style of
// the last contributor wins, which keeps junction cells single-colored.
func (g *Grid) AddFlags(row, lane int, flags uint8, style lipgloss.Style) {
	x := laneX(lane)
	if !g.in(row, x) {
		return
	}
	c := &g.cells[row][x]
	c.flags |= flags
	if !c.marker {
		c.style = style
		c.styled = true
	}
}

// DrawHorizontal bridges two lanes on one row. Lane columns strictly between
// the endpoints receive left+right flags (so a passing vertical becomes a
// cross); the filler cells get plain horizontal strokes.
func (g *Grid) DrawHorizontal(row, fromLane, toLane int, style lipgloss.Style) {
	lo, hi := fromLane, toLane
	if lo > hi {
		lo, hi = hi, lo
	}
	for lane := lo + 1; lane < hi; lane++ {
		g.AddFlags(row, lane, dirLeft|dirRight, style)
	}
	for x := laneX(lo) + 1; x < laneX(hi); x++ {
		if x%ColumnWidth == 0 {
			continue // lane column, handled above
		}
		if !g.in(row, x) {
			continue
		}
		c := &g.cells[row][x]
		if c.r == 0 && c.flags == 0 {
			*c = cell{r: g.chars.Horiz, style: style, styled: true}
		}
	}
}

// resolve returns the final rune for a cell.
func (g *Grid) resolve(c cell) rune {
	if c.marker || c.r != 0 {
		return c.r
	}
	if c.flags != 0 {
		return g.chars.junction(c.flags)
	}
	return ' '
}

// Line renders one row; styled selects lipgloss styling or plain runes.
// Trailing blanks are kept so callers can append annotation text in a
// stable column.
func (g *Grid) Line(row int, styled bool) string {
	var b strings.Builder
	for _, c := range g.cells[row] {
		r := g.resolve(c)
		if styled && c.styled && r != ' ' {
			b.WriteString(c.style.Render(string(r)))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Plain renders the whole grid without styling, trailing spaces stripped.
// Intended for tests and debugging.
func (g *Grid) Plain() string {
	lines := make([]string, g.rows)
	for row := range lines {
		lines[row] = strings.TrimRight(g.Line(row, false), " ")
	}
	return strings.Join(lines, "\n")
}
