package eventsource

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"
)

// StreamSource parses events from a console stream, typically a pipe from
// the running pipeline.
type StreamSource struct {
	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
}

// NewStreamSource starts reading r in a background goroutine. The event
// channel is closed when r is exhausted or the source is closed; a read
// error is reported once to stderr and treated as end of stream.
func NewStreamSource(r io.Reader) *StreamSource {
	s := &StreamSource{
		events: make(chan Event, 256),
		done:   make(chan struct{}),
	}
	go s.scan(r)
	return s
}

// Events returns the event channel.
func (s *StreamSource) Events() <-chan Event { return s.events }

// Close stops ingestion. A goroutine blocked in a read on r is abandoned;
// it exits on the next line it sees.
func (s *StreamSource) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

func (s *StreamSource) scan(r io.Reader) {
	defer close(s.events)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	p := NewParser()

	for sc.Scan() {
		ev := p.ParseLine(sc.Text())
		if ev == nil {
			continue
		}
		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
	if err := sc.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "nfsub: read: %v\n", err)
	}
}
