package eventsource

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// pollInterval is the fallback cadence for re-reading the tailed file in
// case fsnotify misses a write (network filesystems, editors that replace).
const pollInterval = 500 * time.Millisecond

// FileSource tails a pipeline log file, parsing new lines as they are
// appended. The file does not need to exist yet; the source waits for it
// to appear. Existing content is parsed first, then the tail is followed.
type FileSource struct {
	path      string
	watcher   *fsnotify.Watcher
	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
}

// NewFileSource creates a source tailing path. The parent directory must
// exist; it is watched so the file is picked up on creation.
func NewFileSource(path string) (*FileSource, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(path), err)
	}

	s := &FileSource{
		path:    path,
		watcher: w,
		events:  make(chan Event, 256),
		done:    make(chan struct{}),
	}
	go s.loop()
	return s, nil
}

// Events returns the event channel.
func (s *FileSource) Events() <-chan Event { return s.events }

// Close stops tailing and closes the watcher.
func (s *FileSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.watcher.Close()
	})
	return err
}

func (s *FileSource) loop() {
	defer close(s.events)

	if !s.waitForFile() {
		return
	}

	f, err := os.Open(s.path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "nfsub: open %s: %v\n", s.path, err)
		return
	}
	defer f.Close()

	r := bufio.NewReader(f)
	p := NewParser()
	var partial strings.Builder

	// Existing content first, then follow the tail.
	if !s.drainLines(r, &partial, p) {
		return
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != filepath.Base(s.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !s.drainLines(r, &partial, p) {
				return
			}
		case _, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
		case <-ticker.C:
			if !s.drainLines(r, &partial, p) {
				return
			}
		}
	}
}

// waitForFile blocks until the file exists. Returns false if the source
// was closed while waiting.
func (s *FileSource) waitForFile() bool {
	if _, err := os.Stat(s.path); err == nil {
		return true
	}
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return false
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return false
			}
			if filepath.Base(ev.Name) == filepath.Base(s.path) && ev.Op&fsnotify.Create != 0 {
				return true
			}
		case _, ok := <-s.watcher.Errors:
			if !ok {
				return false
			}
		case <-ticker.C:
			if _, err := os.Stat(s.path); err == nil {
				return true
			}
		}
	}
}

// drainLines reads every complete line currently available, parses it, and
// emits the resulting events. A trailing partial line is carried in partial
// until its newline arrives. Returns false when tailing must stop: the
// source was closed, or the file failed to read.
func (s *FileSource) drainLines(r *bufio.Reader, partial *strings.Builder, p *Parser) bool {
	for {
		chunk, err := r.ReadString('\n')
		if len(chunk) > 0 {
			partial.WriteString(chunk)
		}
		if err != nil {
			if err != io.EOF {
				// Report once and end the stream; retrying on the poll
				// ticker would repeat the same failure forever.
				fmt.Fprintf(os.Stderr, "nfsub: read %s: %v\n", s.path, err)
				return false
			}
			return true // wait for more data
		}
		line := strings.TrimRight(partial.String(), "\r\n")
		partial.Reset()
		ev := p.ParseLine(line)
		if ev == nil {
			continue
		}
		select {
		case s.events <- ev:
		case <-s.done:
			return false
		}
	}
}
