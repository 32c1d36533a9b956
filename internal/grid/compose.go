package grid

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/daviddao/nf_subway/internal/graph"
)

// --- Styles ---

var (
	completedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	runningStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	runningDimStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	pendingStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	cachedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	failedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	annotationStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	// Fixed palette for lane colors, indexed lane mod len. Lane reuse may
	// repeat a color immediately; no attempt is made to avoid that.
	lanePalette = []lipgloss.Style{
		lipgloss.NewStyle().Foreground(lipgloss.Color("12")), // bright blue
		lipgloss.NewStyle().Foreground(lipgloss.Color("11")), // bright yellow
		lipgloss.NewStyle().Foreground(lipgloss.Color("13")), // bright magenta
		lipgloss.NewStyle().Foreground(lipgloss.Color("10")), // bright green
		lipgloss.NewStyle().Foreground(lipgloss.Color("14")), // bright cyan
		lipgloss.NewStyle().Foreground(lipgloss.Color("9")),  // bright red
		lipgloss.NewStyle().Foreground(lipgloss.Color("15")), // bright white
		lipgloss.NewStyle().Foreground(lipgloss.Color("6")),  // cyan
		lipgloss.NewStyle().Foreground(lipgloss.Color("5")),  // magenta
		lipgloss.NewStyle().Foreground(lipgloss.Color("3")),  // yellow
	}
)

// LaneStyle returns the palette style for a lane.
func LaneStyle(lane int) lipgloss.Style {
	if lane < 0 {
		lane = 0
	}
	return lanePalette[lane%len(lanePalette)]
}

// --- Compositor ---

// Options control one composition pass.
type Options struct {
	Chars   Charset
	Width   int  // terminal width for annotation truncation; <=0 disables it
	BlinkOn bool // highlight phase for running markers
	Plain   bool // suppress all styling (headless/test output)
}

// Compose renders the graph as subway-map lines: two grid rows per process
// (a marker row and a connector row), annotation text after the lane
// columns. Lanes must have been assigned; Compose never re-layouts.
func Compose(g *graph.Graph, o Options) string {
	nodes := g.Nodes()
	if len(nodes) == 0 {
		return ""
	}
	if o.Chars.Marker == 0 {
		o.Chars = Thin()
	}

	maxLane := 0
	rowOf := make(map[string]int, len(nodes))
	for i, n := range nodes {
		rowOf[n.Name] = 2 * i
		if n.Lane > maxLane {
			maxLane = n.Lane
		}
	}

	gr := New(maxLane+1, 2*len(nodes)-1, o.Chars)

	// Connectors: one bridge per edge, drawn on the connector row just above
	// the child. The parent's lane keeps an unbroken vertical stroke from
	// the parent row down to that bridge, however many rows lie between.
	for _, c := range nodes {
		rc := rowOf[c.Name]
		for _, pname := range c.Parents {
			p := g.Node(pname)
			if p == nil {
				continue
			}
			rp := rowOf[pname]
			if rp >= rc {
				continue // cycle fed in; skip rather than draw upward
			}
			drawEdge(gr, p.Lane, c.Lane, rp, rc)
		}
	}

	// Markers.
	for _, n := range nodes {
		r, style := marker(o.Chars, n, o.BlinkOn)
		gr.SetMarker(rowOf[n.Name], n.Lane, r, style)
	}

	// Assemble lines; annotations go on marker rows only. Annotations only
	// ever shrink to fit Options.Width, never the lane columns; when the
	// remaining room cannot hold even an ellipsis the annotation is
	// dropped rather than allowed to spill past the width.
	gridWidth := (maxLane + 1) * ColumnWidth
	annWidth := -1 // unlimited
	if o.Width > 0 {
		annWidth = o.Width - gridWidth - 1
		if annWidth < 4 {
			annWidth = 0
		}
	}

	var b strings.Builder
	for row := 0; row < gr.Rows(); row++ {
		line := gr.Line(row, !o.Plain)
		if row%2 == 0 && annWidth != 0 {
			ann := annotation(nodes[row/2])
			if annWidth > 0 {
				ann = ansi.Truncate(ann, annWidth, "...")
			}
			if !o.Plain {
				ann = annotationStyle.Render(ann)
			}
			line += " " + ann
		}
		b.WriteString(strings.TrimRight(line, " "))
		if row < gr.Rows()-1 {
			b.WriteRune('\n')
		}
	}
	return b.String()
}

// drawEdge draws the bridge for one parent→child edge. rp and rc are the
// parent and child marker rows; the bridge sits at rc-1.
func drawEdge(gr *Grid, lp, lc, rp, rc int) {
	r := rc - 1
	ps := LaneStyle(lp)
	cs := LaneStyle(lc)

	if lp == lc {
		gr.AddFlags(r, lp, dirUp|dirDown, cs)
	} else {
		toward := dirRight
		back := dirLeft
		if lc < lp {
			toward, back = dirLeft, dirRight
		}
		gr.AddFlags(r, lp, dirUp|toward, ps)
		gr.AddFlags(r, lc, dirDown|back, cs)
		gr.DrawHorizontal(r, lp, lc, cs)
	}

	// Keep the parent's lane drawn through every intervening row.
	for row := rp + 1; row < r; row++ {
		gr.AddFlags(row, lp, dirUp|dirDown, ps)
	}
}

// marker picks the glyph and style for a node.
func marker(cs Charset, n *graph.Node, blinkOn bool) (rune, lipgloss.Style) {
	switch n.Status {
	case graph.Completed:
		return cs.Marker, completedStyle
	case graph.Running:
		if blinkOn {
			return cs.Marker, runningStyle
		}
		return cs.Marker, runningDimStyle
	case graph.Failed:
		return cs.Fail, failedStyle
	case graph.Cached:
		return cs.MarkerHollow, cachedStyle
	}
	return cs.MarkerHollow, pendingStyle
}

// annotation builds the right-side text for a node row.
func annotation(n *graph.Node) string {
	if n.Annotation != "" {
		return n.Annotation
	}
	if n.Duration > 0 {
		return n.Name + " [" + FormatDuration(n.Duration) + "]"
	}
	return n.Name
}

// FormatDuration renders a duration the way pipeline logs do: ms under a
// second, then s, then m+s, then h+m.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
