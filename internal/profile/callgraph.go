package profile

import (
	"slices"
	"time"
)

// CallNode holds aggregate timing for one procedure in the call graph.
type CallNode struct {
	Name    string
	Self    time.Duration // total minus attributed callee time, see computeSelfTimes
	Total   time.Duration
	Count   uint64
	Callers map[string]bool
	Callees map[string]bool
}

// CallEdge holds aggregate timing for one direct caller->callee pair.
type CallEdge struct {
	Caller string
	Callee string
	Count  uint64
	Total  time.Duration
}

// Mean returns the average duration per traversal of the edge.
func (e *CallEdge) Mean() time.Duration {
	if e.Count == 0 {
		return 0
	}
	return e.Total / time.Duration(e.Count)
}

// CallGraph is the session call graph: nodes per procedure, edges per
// observed direct call pair. It is owned by one profiler instance and
// passed by reference; concurrent hosts must lock around edge updates.
type CallGraph struct {
	nodes map[string]*CallNode
	edges map[[2]string]*CallEdge
}

// NewCallGraph creates an empty graph.
func NewCallGraph() *CallGraph {
	return &CallGraph{
		nodes: make(map[string]*CallNode),
		edges: make(map[[2]string]*CallEdge),
	}
}

// node returns the node for name, creating it if needed.
func (g *CallGraph) node(name string) *CallNode {
	n := g.nodes[name]
	if n == nil {
		n = &CallNode{
			Name:    name,
			Callers: make(map[string]bool),
			Callees: make(map[string]bool),
		}
		g.nodes[name] = n
	}
	return n
}

// recordCall folds one completed call into the graph. caller is empty
// for top-level entries.
func (g *CallGraph) recordCall(caller, callee string, d time.Duration) {
	n := g.node(callee)
	n.Count++
	n.Total += d

	if caller == "" {
		return
	}
	g.node(caller).Callees[callee] = true
	n.Callers[caller] = true

	key := [2]string{caller, callee}
	e := g.edges[key]
	if e == nil {
		e = &CallEdge{Caller: caller, Callee: callee}
		g.edges[key] = e
	}
	e.Count++
	e.Total += d
}

// Node returns the node for name, or nil if the procedure was never
// observed.
func (g *CallGraph) Node(name string) *CallNode {
	return g.nodes[name]
}

// Edge returns the edge for the pair, or nil.
func (g *CallGraph) Edge(caller, callee string) *CallEdge {
	return g.edges[[2]string{caller, callee}]
}

// Nodes returns all nodes sorted by name.
func (g *CallGraph) Nodes() []*CallNode {
	out := make([]*CallNode, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	slices.SortFunc(out, func(a, b *CallNode) int {
		return compareStrings(a.Name, b.Name)
	})
	return out
}

// Edges returns all edges sorted by (caller, callee).
func (g *CallGraph) Edges() []*CallEdge {
	out := make([]*CallEdge, 0, len(g.edges))
	for _, e := range g.edges {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b *CallEdge) int {
		if c := compareStrings(a.Caller, b.Caller); c != 0 {
			return c
		}
		return compareStrings(a.Callee, b.Callee)
	})
	return out
}

// hottestCaller returns the caller edge with the highest count for
// name, or nil if the node has no callers. Ties break on the lexically
// smaller caller so traces are deterministic.
func (g *CallGraph) hottestCaller(name string) *CallEdge {
	n := g.nodes[name]
	if n == nil {
		return nil
	}
	var best *CallEdge
	for caller := range n.Callers {
		e := g.edges[[2]string{caller, name}]
		if e == nil {
			continue
		}
		if best == nil || e.Count > best.Count || (e.Count == best.Count && e.Caller < best.Caller) {
			best = e
		}
	}
	return best
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
