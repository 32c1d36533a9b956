package eventsource

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/x/ansi"

	"github.com/daviddao/nf_subway/internal/graph"
)

// Patterns for Nextflow console output, e.g.:
//
//	[18/f4103b] process > QUALITY_CHECK (1) [100%] 3 of 3 ✔
//	[a1/b2c3d4] TRIMGALORE (sample1) [  0%] 0 of 1
//	[5f/abc123] CACHED: STAR_ALIGN
//	ERROR ~ Error executing process > 'FEATURECOUNTS'
var (
	cachedRe = regexp.MustCompile(
		`\[([0-9a-f]{2}/[0-9a-f]{6})\]\s+(?:CACHED|cached):\s*(\S+)`)
	processRe = regexp.MustCompile(
		`\[([0-9a-f]{2}/[0-9a-f]{6})\]\s+(?:process\s*>\s*)?([A-Za-z0-9_:]+)\s*(?:\(([^)]+)\))?\s*(?:\[\s*(\d+)%\])?\s*(?:(\d+)\s+of\s+(\d+))?`)
	completionRe = regexp.MustCompile(
		`\[([0-9a-f]{2}/[0-9a-f]{6})\].*?([A-Za-z0-9_:]+)\s*\((\d+)\)\s*\[.*?(\d+\.\d+)s\]`)
	failureRe = regexp.MustCompile(
		`(?:ERROR|FAILED|Error executing process).*?>\s*'?([A-Za-z0-9_:]+)'?`)
	workflowDoneRe = regexp.MustCompile(
		`Completed at|Workflow completed|Pipeline completed|Execution status: OK`)
)

// Parser extracts events from pipeline console lines. It carries per-run
// state (the last reported status per task) so repeated identical progress
// lines collapse into a single event; state never leaks across runs. Make
// a fresh Parser, or Reset, per run.
type Parser struct {
	seen map[string]seenState
}

type seenState struct {
	status      graph.Status
	hasDuration bool
}

// NewParser returns a parser with empty per-run state.
func NewParser() *Parser {
	return &Parser{seen: make(map[string]seenState)}
}

// Reset clears the per-run state.
func (p *Parser) Reset() {
	p.seen = make(map[string]seenState)
}

// ParseLine parses one console line. It returns nil for unrecognized lines
// and for updates that repeat what was already reported.
func (p *Parser) ParseLine(line string) Event {
	line = strings.TrimSpace(ansi.Strip(line))
	if line == "" {
		return nil
	}

	if m := cachedRe.FindStringSubmatch(line); m != nil {
		taskID, name := m[1], m[2]
		return p.dedupe(ProcessUpdate{
			Name:       name,
			Status:     graph.Cached,
			TaskID:     taskID,
			Annotation: fmt.Sprintf("[%s] process > %s [CACHED]", taskID, name),
		})
	}

	if m := processRe.FindStringSubmatch(line); m != nil {
		taskID, name, taskNum, pct, done, total := m[1], m[2], m[3], m[4], m[5], m[6]

		status := graph.Running
		switch {
		case pct == "100" || (done != "" && done == total):
			// Full progress alone is not completion; Nextflow prints the
			// checkmark (or COMPLETED) when the process actually finished.
			if strings.Contains(line, "✔") || strings.Contains(strings.ToUpper(line), "COMPLETED") {
				status = graph.Completed
			}
		case pct == "0":
			status = graph.Pending
		}

		ann := fmt.Sprintf("[%s] process > %s", taskID, name)
		if taskNum != "" {
			ann += fmt.Sprintf(" (%s)", taskNum)
		}
		if pct != "" {
			ann += fmt.Sprintf(" [%s%%]", pct)
		}
		if done != "" {
			ann += fmt.Sprintf(" %s of %s", done, total)
		}

		return p.dedupe(ProcessUpdate{
			Name:       name,
			Status:     status,
			TaskID:     taskID,
			Annotation: ann,
		})
	}

	if m := completionRe.FindStringSubmatch(line); m != nil {
		taskID, name, taskNum, secs := m[1], m[2], m[3], m[4]
		dur := time.Duration(0)
		if f, err := strconv.ParseFloat(secs, 64); err == nil {
			dur = time.Duration(f * float64(time.Second))
		}
		return p.dedupe(ProcessUpdate{
			Name:       name,
			Status:     graph.Completed,
			TaskID:     taskID,
			Duration:   dur,
			Annotation: fmt.Sprintf("[%s] process > %s (%s) [100%%] COMPLETED", taskID, name, taskNum),
		})
	}

	if m := failureRe.FindStringSubmatch(line); m != nil {
		name := m[1]
		return p.dedupe(ProcessUpdate{
			Name:       name,
			Status:     graph.Failed,
			Annotation: fmt.Sprintf("process > %s [FAILED]", name),
		})
	}

	if workflowDoneRe.MatchString(line) {
		return WorkflowComplete{}
	}

	return nil
}

// dedupe suppresses updates that change neither status nor add a duration.
func (p *Parser) dedupe(u ProcessUpdate) Event {
	key := u.Name
	if u.TaskID != "" {
		key = u.Name + ":" + u.TaskID
	}
	prev, ok := p.seen[key]
	if ok && prev.status == u.Status && (u.Duration == 0 || prev.hasDuration) {
		return nil
	}
	p.seen[key] = seenState{
		status:      u.Status,
		hasDuration: prev.hasDuration || u.Duration != 0,
	}
	return u
}
