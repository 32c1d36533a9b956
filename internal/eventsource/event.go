// Package eventsource turns raw pipeline output into structured process
// events and delivers them over a bounded channel.
//
// Two sources are provided behind one interface: StreamSource reads a
// console stream (typically a pipe from the pipeline run), FileSource tails
// a growing log file. End of stream is signaled by closing the event
// channel; there is no sentinel event.
package eventsource

import (
	"time"

	"github.com/daviddao/nf_subway/internal/graph"
)

// Event is a structured pipeline event. Implementations: ProcessUpdate,
// Dependency, WorkflowComplete.
type Event interface {
	isEvent()
}

// ProcessUpdate reports the status of a single process. TaskID, Duration
// and Annotation are optional; zero values mean not provided.
type ProcessUpdate struct {
	Name       string
	Status     graph.Status
	TaskID     string
	Duration   time.Duration
	Annotation string
}

// Dependency is an optional parent→child hint. The graph also works from
// updates alone, yielding an unconnected node list.
type Dependency struct {
	Parent, Child string
}

// WorkflowComplete signals that the whole pipeline finished.
type WorkflowComplete struct{}

func (ProcessUpdate) isEvent()    {}
func (Dependency) isEvent()       {}
func (WorkflowComplete) isEvent() {}

// Source supplies parsed events until end of stream or Close.
type Source interface {
	// Events returns the event channel. It is closed on end of stream.
	Events() <-chan Event
	// Close stops ingestion. Safe to call more than once; a blocked read
	// in the underlying stream is abandoned, not unblocked.
	Close() error
}
