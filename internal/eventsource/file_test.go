package eventsource

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/daviddao/nf_subway/internal/graph"
)

func waitEvent(t *testing.T, src Source, timeout time.Duration) Event {
	t.Helper()
	select {
	case ev, ok := <-src.Events():
		if !ok {
			t.Fatal("event channel closed unexpectedly")
		}
		return ev
	case <-time.After(timeout):
		t.Fatal("timed out waiting for event")
	}
	return nil
}

func appendLine(t *testing.T, path, line string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open for append: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line + "\n"); err != nil {
		t.Fatalf("append: %v", err)
	}
}

func TestFileSourceReadsExistingContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	content := "[a1/b2c3d4] process > TRIMGALORE (s1) [ 50%] 1 of 2\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	src, err := NewFileSource(path)
	if err != nil {
		t.Fatalf("NewFileSource: %v", err)
	}
	defer src.Close()

	u := waitEvent(t, src, 3*time.Second).(ProcessUpdate)
	if u.Name != "TRIMGALORE" || u.Status != graph.Running {
		t.Errorf("got %+v, want TRIMGALORE running", u)
	}
}

func TestFileSourceFollowsAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	src, err := NewFileSource(path)
	if err != nil {
		t.Fatalf("NewFileSource: %v", err)
	}
	defer src.Close()

	appendLine(t, path, "[5f/abc123] CACHED: STAR_ALIGN")
	u := waitEvent(t, src, 3*time.Second).(ProcessUpdate)
	if u.Status != graph.Cached {
		t.Errorf("got %+v, want cached", u)
	}

	appendLine(t, path, "Workflow completed at some point")
	if _, ok := waitEvent(t, src, 3*time.Second).(WorkflowComplete); !ok {
		t.Error("appended completion line should yield WorkflowComplete")
	}
}

func TestFileSourceWaitsForFileCreation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "late.log")

	src, err := NewFileSource(path)
	if err != nil {
		t.Fatalf("NewFileSource on missing file: %v", err)
	}
	defer src.Close()

	// File appears after the source started watching.
	time.Sleep(50 * time.Millisecond)
	content := "[11/223344] process > FASTQC (1) [100%] 1 of 1 ✔\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("create log: %v", err)
	}

	u := waitEvent(t, src, 3*time.Second).(ProcessUpdate)
	if u.Name != "FASTQC" || u.Status != graph.Completed {
		t.Errorf("got %+v, want FASTQC completed", u)
	}
}

func TestFileSourceMissingParentDir(t *testing.T) {
	_, err := NewFileSource(filepath.Join(t.TempDir(), "no", "such", "dir", "run.log"))
	if err == nil {
		t.Error("missing parent directory should be an error")
	}
}

func TestFileSourcePartialLineHeldBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	// No trailing newline: the line is incomplete.
	if err := os.WriteFile(path, []byte("[5f/abc123] CACHED: STAR_AL"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	src, err := NewFileSource(path)
	if err != nil {
		t.Fatalf("NewFileSource: %v", err)
	}
	defer src.Close()

	select {
	case ev := <-src.Events():
		t.Fatalf("partial line produced %v, want nothing yet", ev)
	case <-time.After(800 * time.Millisecond):
	}

	// The rest of the line arrives.
	appendLine(t, path, "IGN")
	u := waitEvent(t, src, 3*time.Second).(ProcessUpdate)
	if u.Name != "STAR_ALIGN" {
		t.Errorf("reassembled line parsed as %q, want STAR_ALIGN", u.Name)
	}
}

func TestFileSourceReadErrorEndsStream(t *testing.T) {
	// A path that stats and opens fine but cannot be read line-wise, e.g.
	// a directory. The failure is reported once and the stream ends;
	// retrying on the poll ticker would repeat the error forever.
	dir := t.TempDir()
	bad := filepath.Join(dir, "actually-a-dir")
	if err := os.Mkdir(bad, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	src, err := NewFileSource(bad)
	if err != nil {
		t.Fatalf("NewFileSource: %v", err)
	}
	defer src.Close()

	select {
	case _, ok := <-src.Events():
		if ok {
			t.Error("unreadable path should emit no events")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("event channel not closed after read failure")
	}
}

func TestFileSourceCloseStopsTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	src, err := NewFileSource(path)
	if err != nil {
		t.Fatalf("NewFileSource: %v", err)
	}
	if err := src.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := src.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}

	select {
	case _, ok := <-src.Events():
		if ok {
			t.Error("closed source should not emit events")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event channel not closed after Close")
	}
}
