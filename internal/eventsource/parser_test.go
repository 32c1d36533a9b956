package eventsource

import (
	"testing"
	"time"

	"github.com/daviddao/nf_subway/internal/graph"
)

func parseUpdate(t *testing.T, p *Parser, line string) ProcessUpdate {
	t.Helper()
	ev := p.ParseLine(line)
	if ev == nil {
		t.Fatalf("ParseLine(%q) = nil, want a process update", line)
	}
	u, ok := ev.(ProcessUpdate)
	if !ok {
		t.Fatalf("ParseLine(%q) = %T, want ProcessUpdate", line, ev)
	}
	return u
}

func TestParseCompletedProcess(t *testing.T) {
	p := NewParser()
	u := parseUpdate(t, p, "[4c/d3a7e8] process > FASTQC (1) [100%] 1 of 1 ✔")

	if u.Name != "FASTQC" {
		t.Errorf("name = %q, want FASTQC", u.Name)
	}
	if u.Status != graph.Completed {
		t.Errorf("status = %v, want completed", u.Status)
	}
	if u.TaskID != "4c/d3a7e8" {
		t.Errorf("taskID = %q, want 4c/d3a7e8", u.TaskID)
	}
	if u.Annotation == "" {
		t.Error("annotation should echo the progress line")
	}
}

func TestParseFullProgressWithoutCheckmarkIsRunning(t *testing.T) {
	// 100% alone is not completion; the checkmark is the signal.
	p := NewParser()
	u := parseUpdate(t, p, "[4c/d3a7e8] process > FASTQC (1) [100%] 1 of 1")
	if u.Status != graph.Running {
		t.Errorf("status = %v, want running (no checkmark)", u.Status)
	}
}

func TestParsePendingProcess(t *testing.T) {
	p := NewParser()
	u := parseUpdate(t, p, "[a1/b2c3d4] process > TRIMGALORE (sample1) [  0%] 0 of 1")

	if u.Name != "TRIMGALORE" {
		t.Errorf("name = %q, want TRIMGALORE", u.Name)
	}
	if u.Status != graph.Pending {
		t.Errorf("status = %v, want pending (0%% progress)", u.Status)
	}
}

func TestParseRunningProcess(t *testing.T) {
	p := NewParser()
	u := parseUpdate(t, p, "[18/f4103b] process > QUALITY_CHECK (2) [ 50%] 1 of 3")

	if u.Status != graph.Running {
		t.Errorf("status = %v, want running", u.Status)
	}
}

func TestParseProcessWithoutKeyword(t *testing.T) {
	// Nextflow omits "process >" in some layouts.
	p := NewParser()
	u := parseUpdate(t, p, "[a1/b2c3d4] TRIMGALORE (sample1) [ 25%] 1 of 4")
	if u.Name != "TRIMGALORE" {
		t.Errorf("name = %q, want TRIMGALORE", u.Name)
	}
}

func TestParseScopedProcessName(t *testing.T) {
	p := NewParser()
	u := parseUpdate(t, p, "[aa/bbcc11] process > NFCORE_RNASEQ:ALIGN:STAR_ALIGN (1) [ 10%] 0 of 2")
	if u.Name != "NFCORE_RNASEQ:ALIGN:STAR_ALIGN" {
		t.Errorf("name = %q, want scoped name preserved", u.Name)
	}
	if u.Status != graph.Running {
		t.Errorf("status = %v, want running", u.Status)
	}
}

func TestParseCached(t *testing.T) {
	p := NewParser()
	u := parseUpdate(t, p, "[5f/abc123] CACHED: STAR_ALIGN")

	if u.Name != "STAR_ALIGN" {
		t.Errorf("name = %q, want STAR_ALIGN", u.Name)
	}
	if u.Status != graph.Cached {
		t.Errorf("status = %v, want cached", u.Status)
	}
	if u.TaskID != "5f/abc123" {
		t.Errorf("taskID = %q, want 5f/abc123", u.TaskID)
	}
}

func TestParseCompletionWithDuration(t *testing.T) {
	p := NewParser()
	u := parseUpdate(t, p, "[aa/bbbbbb] ✓ FEATURECOUNTS (2) [12.5s]")

	if u.Name != "FEATURECOUNTS" {
		t.Errorf("name = %q, want FEATURECOUNTS", u.Name)
	}
	if u.Status != graph.Completed {
		t.Errorf("status = %v, want completed", u.Status)
	}
	if u.Duration != 12500*time.Millisecond {
		t.Errorf("duration = %v, want 12.5s", u.Duration)
	}
}

func TestParseFailure(t *testing.T) {
	p := NewParser()
	u := parseUpdate(t, p, "ERROR ~ Error executing process > 'FEATURECOUNTS'")

	if u.Name != "FEATURECOUNTS" {
		t.Errorf("name = %q, want FEATURECOUNTS", u.Name)
	}
	if u.Status != graph.Failed {
		t.Errorf("status = %v, want failed", u.Status)
	}
}

func TestParseWorkflowComplete(t *testing.T) {
	p := NewParser()
	lines := []string{
		"Completed at: 01-Sep-2026 12:00:00",
		"Workflow completed successfully",
		"Pipeline completed at: whenever",
		"Execution status: OK",
	}
	for _, line := range lines {
		if _, ok := p.ParseLine(line).(WorkflowComplete); !ok {
			t.Errorf("ParseLine(%q) should yield WorkflowComplete", line)
		}
	}
}

func TestParseIgnoresNoise(t *testing.T) {
	p := NewParser()
	lines := []string{
		"",
		"   ",
		"N E X T F L O W  ~  version 24.10.2",
		"executor >  local (4)",
		"Launching `main.nf` [agitated_euler] DSL2",
		"Monitor the execution with Seqera Platform",
	}
	for _, line := range lines {
		if ev := p.ParseLine(line); ev != nil {
			t.Errorf("ParseLine(%q) = %v, want nil", line, ev)
		}
	}
}

func TestParseStripsANSI(t *testing.T) {
	p := NewParser()
	u := parseUpdate(t, p, "\x1b[32m[5f/abc123] CACHED: STAR_ALIGN\x1b[0m")
	if u.Status != graph.Cached || u.Name != "STAR_ALIGN" {
		t.Errorf("ANSI-wrapped line parsed as %+v", u)
	}
}

func TestParseDedupesRepeatedProgress(t *testing.T) {
	p := NewParser()
	line := "[18/f4103b] process > QUALITY_CHECK (2) [ 50%] 1 of 3"

	if p.ParseLine(line) == nil {
		t.Fatal("first sighting should yield an event")
	}
	if ev := p.ParseLine(line); ev != nil {
		t.Errorf("repeated identical progress yielded %v, want nil", ev)
	}

	// A status change breaks the suppression.
	done := "[18/f4103b] process > QUALITY_CHECK (2) [100%] 3 of 3 ✔"
	if p.ParseLine(done) == nil {
		t.Error("status change should yield an event")
	}
}

func TestParseDurationBreaksDedupe(t *testing.T) {
	p := NewParser()
	if p.ParseLine("[aa/bbbbbb] process > ALIGN (1) [100%] 1 of 1 ✔") == nil {
		t.Fatal("completion should yield an event")
	}
	// Same task completes again but now carries a duration: still useful.
	u := parseUpdate(t, p, "[aa/bbbbbb] ✓ ALIGN (1) [3.2s]")
	if u.Duration == 0 {
		t.Error("duration-bearing repeat should carry the duration")
	}
	// A second duration-bearing repeat says nothing new.
	if ev := p.ParseLine("[aa/bbbbbb] ✓ ALIGN (1) [3.2s]"); ev != nil {
		t.Errorf("repeated duration yielded %v, want nil", ev)
	}
}

func TestParserReset(t *testing.T) {
	p := NewParser()
	line := "[5f/abc123] CACHED: STAR_ALIGN"

	if p.ParseLine(line) == nil {
		t.Fatal("first sighting should yield an event")
	}
	if p.ParseLine(line) != nil {
		t.Fatal("repeat should be suppressed")
	}
	p.Reset()
	if p.ParseLine(line) == nil {
		t.Error("Reset should clear suppression state")
	}
}
