package graph

import "sort"

// AssignLanes assigns a lane (column) to every node in one forward pass over
// arrival order. Sequential work keeps its lane, fan-outs reserve fresh lanes
// for the later children, and merges take the leftmost parent lane and free
// the others once their occupants have no unvisited children left.
//
// The pass is deterministic: lane scans always start at 0, parent lanes are
// visited in ascending order, and children are ordered by arrival position
// with name as the final tiebreak. Map iteration order is never observed.
//
// The allocator assumes a DAG but never traverses beyond direct parent
// lookups, so cyclic input still terminates: an edge from a parent that has
// not been assigned yet in this pass is simply ignored, and the resulting
// lanes carry no meaning.
func AssignLanes(g *Graph) {
	pos := make(map[string]int, len(g.order))
	for i, name := range g.order {
		pos[name] = i
	}

	active := make(map[int]string)   // lane -> occupant name
	reserved := make(map[string]int) // node name -> pre-claimed lane
	resLanes := make(map[int]bool)   // lanes held by a reservation

	for i, name := range g.order {
		n := g.nodes[name]

		// Parents usable for inheritance: assigned earlier in this pass.
		var parentLanes []int
		for _, p := range n.Parents {
			if pos[p] < i {
				parentLanes = append(parentLanes, g.nodes[p].Lane)
			}
		}
		parentLanes = uniqueSorted(parentLanes)

		var lane int
		switch {
		case hasReservation(reserved, name):
			lane = reserved[name]
			delete(reserved, name)
			delete(resLanes, lane)

		case len(parentLanes) == 0:
			// Root (or cycle-orphaned): first lane not currently active.
			lane = firstFree(active, nil)

		case len(parentLanes) == 1:
			lane = parentLanes[0]

		default:
			// Merge: leftmost parent lane wins; free the others unless
			// their occupant still has a child we have not reached.
			lane = parentLanes[0]
			for _, other := range parentLanes[1:] {
				occ, ok := active[other]
				if !ok {
					continue
				}
				if !hasLaterChild(g, pos, occ, i) {
					delete(active, other)
				}
			}
		}

		n.Lane = lane
		active[lane] = name

		// Fan-out: the earliest child will inherit this lane; pre-claim a
		// distinct lane for each of the others.
		if len(n.Children) > 1 {
			kids := orderedChildren(n.Children, pos)
			for _, c := range kids[1:] {
				if hasReservation(reserved, c) {
					continue
				}
				r := firstFree(active, resLanes)
				reserved[c] = r
				resLanes[r] = true
			}
		}
	}

	g.layoutStale = false
}

func hasReservation(reserved map[string]int, name string) bool {
	_, ok := reserved[name]
	return ok
}

// firstFree returns the lowest lane that is neither active nor (when
// resLanes is non-nil) held by a reservation.
func firstFree(active map[int]string, resLanes map[int]bool) int {
	for lane := 0; ; lane++ {
		if _, ok := active[lane]; ok {
			continue
		}
		if resLanes != nil && resLanes[lane] {
			continue
		}
		return lane
	}
}

// hasLaterChild reports whether the named node has a child that arrives
// after position cur, i.e. one the forward pass has not reached yet.
func hasLaterChild(g *Graph, pos map[string]int, name string, cur int) bool {
	n := g.nodes[name]
	if n == nil {
		return false
	}
	for _, c := range n.Children {
		if pos[c] > cur {
			return true
		}
	}
	return false
}

// orderedChildren returns the children sorted by arrival position, with
// name as the final tiebreak.
func orderedChildren(children []string, pos map[string]int) []string {
	kids := make([]string, len(children))
	copy(kids, children)
	sort.Slice(kids, func(a, b int) bool {
		if pos[kids[a]] != pos[kids[b]] {
			return pos[kids[a]] < pos[kids[b]]
		}
		return kids[a] < kids[b]
	})
	return kids
}

func uniqueSorted(lanes []int) []int {
	if len(lanes) == 0 {
		return lanes
	}
	sort.Ints(lanes)
	out := lanes[:1]
	for _, l := range lanes[1:] {
		if l != out[len(out)-1] {
			out = append(out, l)
		}
	}
	return out
}
