// Package graph holds the pipeline execution DAG: process nodes, their
// statuses, and parent/child adjacency in arrival order.
//
// The graph is owned exclusively by the render loop; no internal locking.
// Ingestion is deliberately permissive: any event may reference a process
// before its declaration is seen, so unknown names are materialized on first
// reference rather than rejected.
package graph

import "time"

// Status is the execution state of a process.
type Status int

const (
	Pending Status = iota
	Running
	Completed
	Failed
	Cached
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Cached:
		return "cached"
	}
	return "?"
}

// Node is a single process in the pipeline.
type Node struct {
	Name       string
	Status     Status
	TaskID     string
	Duration   time.Duration
	Annotation string

	// Lane is the column assigned by AssignLanes. Only meaningful while
	// LayoutStale() is false.
	Lane int

	Parents  []string
	Children []string
}

// IsRoot reports whether the node has no parents.
func (n *Node) IsRoot() bool { return len(n.Parents) == 0 }

// IsTerminal reports whether the node has no children.
func (n *Node) IsTerminal() bool { return len(n.Children) == 0 }

// Update carries the fields of a process update. Status is always applied;
// the other fields are merged non-destructively, so a zero value leaves the
// node's existing value untouched.
type Update struct {
	Status     Status
	TaskID     string
	Duration   time.Duration
	Annotation string
}

// Stats is a histogram of process statuses.
type Stats struct {
	Total     int
	Pending   int
	Running   int
	Completed int
	Failed    int
	Cached    int
}

// Graph is the process DAG store. Arrival order is append-only: a node's
// position never changes after creation and nodes are never deleted (only a
// full Reset).
type Graph struct {
	nodes       map[string]*Node
	order       []string
	layoutStale bool
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{nodes: make(map[string]*Node)}
}

// ensure returns the named node, materializing it with Pending status if it
// has not been seen yet.
func (g *Graph) ensure(name string) *Node {
	if n, ok := g.nodes[name]; ok {
		return n
	}
	n := &Node{Name: name, Status: Pending}
	g.nodes[name] = n
	g.order = append(g.order, name)
	g.layoutStale = true
	return n
}

// Upsert creates the node if absent and applies the update. Creation marks
// the layout stale; a status-only change on an existing node does not.
func (g *Graph) Upsert(name string, u Update) *Node {
	n := g.ensure(name)
	n.Status = u.Status
	if u.TaskID != "" {
		n.TaskID = u.TaskID
	}
	if u.Duration != 0 {
		n.Duration = u.Duration
	}
	if u.Annotation != "" {
		n.Annotation = u.Annotation
	}
	return n
}

// Link records a parent→child dependency, materializing either endpoint if
// needed. Duplicate links are ignored. Always marks the layout stale.
func (g *Graph) Link(parent, child string) {
	p := g.ensure(parent)
	c := g.ensure(child)
	if !contains(p.Children, child) {
		p.Children = append(p.Children, child)
	}
	if !contains(c.Parents, parent) {
		c.Parents = append(c.Parents, parent)
	}
	g.layoutStale = true
}

func contains(names []string, name string) bool {
	for _, s := range names {
		if s == name {
			return true
		}
	}
	return false
}

// Node returns the named node, or nil if unknown.
func (g *Graph) Node(name string) *Node {
	return g.nodes[name]
}

// Nodes returns all nodes in arrival order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, len(g.order))
	for i, name := range g.order {
		out[i] = g.nodes[name]
	}
	return out
}

// Roots returns nodes with no parents, in arrival order.
func (g *Graph) Roots() []*Node {
	var out []*Node
	for _, name := range g.order {
		if n := g.nodes[name]; n.IsRoot() {
			out = append(out, n)
		}
	}
	return out
}

// Terminals returns nodes with no children, in arrival order.
func (g *Graph) Terminals() []*Node {
	var out []*Node
	for _, name := range g.order {
		if n := g.nodes[name]; n.IsTerminal() {
			out = append(out, n)
		}
	}
	return out
}

// Active returns nodes currently in Running state, in arrival order.
func (g *Graph) Active() []*Node {
	var out []*Node
	for _, name := range g.order {
		if n := g.nodes[name]; n.Status == Running {
			out = append(out, n)
		}
	}
	return out
}

// Stats returns a histogram of process statuses.
func (g *Graph) Stats() Stats {
	st := Stats{Total: len(g.order)}
	for _, n := range g.nodes {
		switch n.Status {
		case Pending:
			st.Pending++
		case Running:
			st.Running++
		case Completed:
			st.Completed++
		case Failed:
			st.Failed++
		case Cached:
			st.Cached++
		}
	}
	return st
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.order) }

// LayoutStale reports whether lane numbers must be recomputed before the
// next render.
func (g *Graph) LayoutStale() bool { return g.layoutStale }

// Reset discards all nodes and arrival history.
func (g *Graph) Reset() {
	g.nodes = make(map[string]*Node)
	g.order = nil
	g.layoutStale = false
}
