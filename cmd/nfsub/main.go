// nfsub renders a running pipeline as a live, git-log-style subway map in
// the terminal: processes flow top to bottom, parallel branches occupy
// distinct lanes, and lanes split and merge with box-drawing connectors.
//
// Usage:
//
//	nextflow run pipeline.nf | nfsub    # pipe mode (stdin)
//	nfsub --log .nextflow.log           # tail a log file
//	nfsub --log run.log --refresh 10    # 10 updates per second
//	nfsub --no-tui < run.log            # one-shot render, no live display
//	nfsub --round                       # rounded connector corners
//	nfsub --version                     # print version and exit
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"golang.org/x/term"

	"github.com/daviddao/nf_subway/internal/eventsource"
	"github.com/daviddao/nf_subway/internal/graph"
	"github.com/daviddao/nf_subway/internal/grid"
)

// Version is set via ldflags at build time (e.g. -X main.Version=v0.1.0).
var Version = "dev"

// maxEventsPerTick bounds how many queued events one refresh tick applies,
// so rendering cost stays bounded under event bursts.
const maxEventsPerTick = 100

// blinkFrames is the number of refresh ticks between highlight toggles for
// running processes. Tied to the refresh rate, not wall-clock time.
const blinkFrames = 3

func main() {
	logPath := flag.String("log", "", "tail a pipeline log file instead of reading stdin")
	refreshRate := flag.Int("refresh", 4, "refresh rate in updates per second")
	noTUI := flag.Bool("no-tui", false, "consume the whole stream, print one frame, exit")
	round := flag.Bool("round", false, "use rounded connector corners")
	versionFlag := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("nfsub %s\n", Version)
		os.Exit(0)
	}

	if *refreshRate < 1 {
		*refreshRate = 1
	}

	chars := grid.Thin()
	if *round {
		chars = grid.Round()
	}

	var src eventsource.Source
	if *logPath != "" {
		s, err := eventsource.NewFileSource(*logPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "nfsub: %v\n", err)
			os.Exit(1)
		}
		src = s
	} else {
		if term.IsTerminal(int(os.Stdin.Fd())) {
			fmt.Fprintln(os.Stderr, "nfsub: no input detected; pipe pipeline output or use --log")
			flag.Usage()
			os.Exit(1)
		}
		src = eventsource.NewStreamSource(os.Stdin)
	}

	stdoutTTY := term.IsTerminal(int(os.Stdout.Fd()))
	if *noTUI || !stdoutTTY {
		width := 0
		if stdoutTTY {
			if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
				width = w
			}
		}
		if err := runOnce(src, chars, width, stdoutTTY, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "nfsub: %v\n", err)
			os.Exit(1)
		}
		return
	}

	m := newModel(src, chars, time.Second/time.Duration(*refreshRate))

	// No alt screen: the final frame should survive in the scrollback after
	// the pipeline finishes and the program releases the terminal.
	p := tea.NewProgram(m)
	if _, err := p.Run(); err != nil {
		src.Close()
		fmt.Fprintf(os.Stderr, "nfsub: %v\n", err)
		os.Exit(1)
	}
	src.Close()
}

// runOnce drains the source to end of stream, then prints a single
// composited frame with the summary header.
func runOnce(src eventsource.Source, chars grid.Charset, width int, styled bool, out io.Writer) error {
	g := graph.New()
	for ev := range src.Events() {
		applyEvent(g, ev)
	}
	src.Close()

	promoteUnfinished(g)
	if g.LayoutStale() {
		graph.AssignLanes(g)
	}

	header := summaryLine(g.Stats())
	if !styled {
		header = ansi.Strip(header)
	}
	if _, err := fmt.Fprintln(out, header); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	content := grid.Compose(g, grid.Options{
		Chars:   chars,
		Width:   width,
		BlinkOn: true,
		Plain:   !styled,
	})
	if content == "" {
		content = "(no processes seen)"
	}
	if _, err := fmt.Fprintln(out, content); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// applyEvent mutates the graph for one event. Returns true for a
// workflow-complete signal.
func applyEvent(g *graph.Graph, ev eventsource.Event) bool {
	switch e := ev.(type) {
	case eventsource.ProcessUpdate:
		g.Upsert(e.Name, graph.Update{
			Status:     e.Status,
			TaskID:     e.TaskID,
			Duration:   e.Duration,
			Annotation: e.Annotation,
		})
	case eventsource.Dependency:
		g.Link(e.Parent, e.Child)
	case eventsource.WorkflowComplete:
		return true
	}
	return false
}

// promoteUnfinished force-promotes every Pending/Running node to Completed.
// Called exactly once when the workflow completes or the stream ends.
func promoteUnfinished(g *graph.Graph) {
	for _, n := range g.Nodes() {
		if n.Status == graph.Running || n.Status == graph.Pending {
			g.Upsert(n.Name, graph.Update{Status: graph.Completed})
		}
	}
}

// --- Messages ---

type tickMsg struct{}

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

// --- Key bindings ---

type keyMap struct {
	Quit key.Binding
	Up   key.Binding
	Down key.Binding
	Help key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	Up:   key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("k/up", "scroll up")),
	Down: key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("j/down", "scroll down")),
	Help: key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down},
		{k.Help, k.Quit},
	}
}

// --- Model ---

// phase is the driver state: idle until the first event, streaming while
// events keep arriving, draining once completion (or end of stream) was
// observed and one last frame is being issued.
type phase int

const (
	phaseIdle phase = iota
	phaseStreaming
	phaseDraining
)

type uiModel struct {
	g     *graph.Graph
	src   eventsource.Source
	chars grid.Charset

	phase        phase
	eos          bool
	completeSeen bool
	promoted     bool
	quitArmed    bool

	refreshInterval time.Duration
	animTick        int

	width     int
	height    int
	scrollPos int

	help     help.Model
	showHelp bool

	startTime time.Time
}

func newModel(src eventsource.Source, chars grid.Charset, refresh time.Duration) uiModel {
	return uiModel{
		g:               graph.New(),
		src:             src,
		chars:           chars,
		refreshInterval: refresh,
		help:            help.New(),
		startTime:       time.Now(),
	}
}

func (m uiModel) Init() tea.Cmd {
	return tickCmd(m.refreshInterval)
}

// blinkOn reports the current highlight phase for running markers.
func (m uiModel) blinkOn() bool {
	return (m.animTick/blinkFrames)%2 == 0
}

func (m uiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.src.Close()
			return m, tea.Quit

		case key.Matches(msg, keys.Up):
			if m.scrollPos > 0 {
				m.scrollPos--
			}

		case key.Matches(msg, keys.Down):
			// Two grid rows per process plus header room; View clamps.
			if m.scrollPos < m.g.Len()*2+4 {
				m.scrollPos++
			}

		case key.Matches(msg, keys.Help):
			m.showHelp = !m.showHelp
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

	case tickMsg:
		return m.tick()
	}

	return m, nil
}

// tick is one beat of the refresh clock: drain a bounded batch of events,
// re-layout if the structure changed, advance the blink animation, and,
// once draining, issue one final frame before quitting.
func (m uiModel) tick() (tea.Model, tea.Cmd) {
	if m.quitArmed {
		return m, tea.Quit
	}

	m.animTick++

drain:
	for i := 0; i < maxEventsPerTick && !m.eos; i++ {
		select {
		case ev, ok := <-m.src.Events():
			if !ok {
				m.eos = true
				break drain
			}
			if m.phase == phaseIdle {
				m.phase = phaseStreaming
			}
			if applyEvent(m.g, ev) {
				m.completeSeen = true
			}
		default:
			break drain
		}
	}

	if m.phase != phaseDraining && (m.eos || m.completeSeen) {
		m.phase = phaseDraining
	}
	if m.phase == phaseDraining && !m.promoted {
		promoteUnfinished(m.g)
		m.promoted = true
		m.quitArmed = true // quit on the next tick, after this frame renders
	}

	if m.g.LayoutStale() {
		graph.AssignLanes(m.g)
	}

	return m, tickCmd(m.refreshInterval)
}

// --- Styles ---

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#CDD6F4")).
			Background(lipgloss.Color("#1E66F5")).
			Padding(0, 1)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6C7086"))

	pendingCountStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#6C7086"))

	runningCountStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#89B4FA")).
				Bold(true)

	doneCountStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A6E3A1"))

	failedCountStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#F38BA8")).
				Bold(true)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#CDD6F4")).
			Background(lipgloss.Color("#1E1E2E"))
)

// --- View rendering ---

func (m uiModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder

	b.WriteString(m.renderTitleBar())
	b.WriteRune('\n')
	b.WriteRune('\n')

	contentHeight := m.height - 4 // title + blank + status + padding
	if m.showHelp {
		contentHeight -= 3
	}

	content := grid.Compose(m.g, grid.Options{
		Chars:   m.chars,
		Width:   m.width,
		BlinkOn: m.blinkOn(),
	})
	if content == "" {
		content = dimStyle.Render("  waiting for pipeline output...")
	}

	// Apply scroll using a local variable. View() is a value receiver so
	// mutating m.scrollPos here would be dead code.
	lines := strings.Split(content, "\n")
	scrollPos := m.scrollPos
	if scrollPos >= len(lines) {
		scrollPos = max(0, len(lines)-1)
	}
	if scrollPos > 0 && scrollPos < len(lines) {
		lines = lines[scrollPos:]
	}
	if contentHeight > 0 && len(lines) > contentHeight {
		lines = lines[:contentHeight]
	}
	content = strings.Join(lines, "\n")

	// ANSI-aware truncation so long annotations never wrap and shear the
	// grid columns.
	content = truncateLines(content, m.width)

	b.WriteString(content)

	rendered := strings.Count(b.String(), "\n")
	for rendered < m.height-2 {
		b.WriteRune('\n')
		rendered++
	}

	if m.showHelp {
		b.WriteString(m.help.View(keys))
	} else {
		b.WriteString(m.renderStatusBar())
	}

	return b.String()
}

func (m uiModel) renderTitleBar() string {
	title := titleStyle.Render("nf subway")
	stats := summaryLine(m.g.Stats())
	gap := strings.Repeat(" ", max(0, m.width-lipgloss.Width(title)-lipgloss.Width(stats)-2))
	return title + gap + stats
}

// summaryLine renders the status histogram for the header.
func summaryLine(st graph.Stats) string {
	parts := []string{
		dimStyle.Render(fmt.Sprintf("%d processes", st.Total)),
		pendingCountStyle.Render(fmt.Sprintf("%d pending", st.Pending)),
		runningCountStyle.Render(fmt.Sprintf("%d running", st.Running)),
		doneCountStyle.Render(fmt.Sprintf("%d done", st.Completed+st.Cached)),
	}
	if st.Failed > 0 {
		parts = append(parts, failedCountStyle.Render(fmt.Sprintf("%d failed", st.Failed)))
	}
	return strings.Join(parts, dimStyle.Render(" | "))
}

func (m uiModel) renderStatusBar() string {
	state := "waiting"
	switch m.phase {
	case phaseStreaming:
		state = "streaming"
	case phaseDraining:
		state = "finished"
	}
	elapsed := shortDuration(time.Since(m.startTime))
	left := " j/k: scroll | ?: help | q: quit"
	right := fmt.Sprintf("%s | %s ", state, elapsed)
	gap := strings.Repeat(" ", max(0, m.width-len(left)-len(right)))
	return statusBarStyle.Render(left + gap + right)
}

// --- Helpers ---

// truncateLines truncates each line in content to at most width visible
// characters, preserving ANSI escape codes.
func truncateLines(content string, width int) string {
	if width <= 0 {
		return content
	}
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		if lipgloss.Width(line) > width {
			lines[i] = ansi.Truncate(line, width, "")
		}
	}
	return strings.Join(lines, "\n")
}

func shortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
