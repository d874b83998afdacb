package profile

import (
	"slices"
	"strings"
	"time"
)

// HotPath is a call-graph-derived chain of procedures accounting for a
// share of observed execution time. Chains run from the outermost
// caller to the traced procedure.
type HotPath struct {
	Chain []string      `json:"chain"`
	Count uint64        `json:"count"`
	Total time.Duration `json:"totalNs"`
	Share float64       `json:"share"` // fraction of total profiled time, 0..1
}

// HotChain is a direct call edge hot enough to be an inlining
// candidate. Derived on Stop and on Import, never serialized.
type HotChain struct {
	Caller string
	Callee string
	Count  uint64
}

// analyze runs the three post-hoc passes in order: hot-path tracing,
// hot-chain detection, self-time computation. Results are recomputed
// wholesale; nothing is incrementally patched.
func (p *Profiler) analyze() {
	p.traceHotPaths()
	p.detectHotChains()
	p.computeSelfTimes()
}

// traceHotPaths walks, for every procedure above the execution-count
// floor, the highest-count caller edge upward until no caller remains,
// aggregates identical chains, and keeps the top chains by total time.
func (p *Profiler) traceHotPaths() {
	chains := make(map[string]*HotPath)

	for _, n := range p.graph.Nodes() {
		if n.Count <= p.hotPathMinCount {
			continue
		}
		chain := []string{n.Name}
		visited := map[string]bool{n.Name: true}
		cur := n.Name
		for {
			e := p.graph.hottestCaller(cur)
			if e == nil || visited[e.Caller] {
				break
			}
			chain = append([]string{e.Caller}, chain...)
			visited[e.Caller] = true
			cur = e.Caller
		}

		key := strings.Join(chain, "\x1f")
		hp := chains[key]
		if hp == nil {
			hp = &HotPath{Chain: chain}
			chains[key] = hp
		}
		hp.Count += n.Count
		hp.Total += n.Total
	}

	var grand time.Duration
	for _, hp := range chains {
		grand += hp.Total
	}

	paths := make([]HotPath, 0, len(chains))
	for _, hp := range chains {
		if grand > 0 {
			hp.Share = float64(hp.Total) / float64(grand)
		}
		paths = append(paths, *hp)
	}

	slices.SortFunc(paths, func(a, b HotPath) int {
		switch {
		case a.Total > b.Total:
			return -1
		case a.Total < b.Total:
			return 1
		default:
			return compareStrings(strings.Join(a.Chain, "\x1f"), strings.Join(b.Chain, "\x1f"))
		}
	})
	if len(paths) > p.hotPathLimit {
		paths = paths[:p.hotPathLimit]
	}
	p.hotPaths = paths
}

// detectHotChains marks every direct edge above the edge-count
// threshold as an inlining candidate.
func (p *Profiler) detectHotChains() {
	p.hotChains = p.CurrentHotChains()
}

// CurrentHotChains derives inlining candidates from the live call
// graph. Stop caches the result; the tier manager queries this form
// mid-session when generating an ultra tier.
func (p *Profiler) CurrentHotChains() []HotChain {
	var chains []HotChain
	for _, e := range p.graph.Edges() {
		if e.Count > p.hotChainEdgeMin {
			chains = append(chains, HotChain{Caller: e.Caller, Callee: e.Callee, Count: e.Count})
		}
	}
	return chains
}

// computeSelfTimes sets each node's self time to its total minus its
// callees' average total time weighted by edge count, floored at zero.
// This uses the callee's global per-call average rather than the cost
// at this particular call site, which undercounts for recursive or
// variable-cost callees; the floor keeps the approximation from going
// negative.
func (p *Profiler) computeSelfTimes() {
	for _, n := range p.graph.Nodes() {
		attributed := time.Duration(0)
		for callee := range n.Callees {
			cn := p.graph.Node(callee)
			e := p.graph.Edge(n.Name, callee)
			if cn == nil || e == nil || cn.Count == 0 {
				continue
			}
			avg := cn.Total / time.Duration(cn.Count)
			attributed += avg * time.Duration(e.Count)
		}
		self := n.Total - attributed
		if self < 0 {
			self = 0
		}
		n.Self = self
	}
}
