package profile

import (
	"slices"
	"strings"
	"time"

	"github.com/tern-lang/tern/internal/feedback"
	"github.com/tern-lang/tern/internal/value"
)

// loopBranchPrefix marks branch IDs that are loop back-edges. The
// evaluator records the loop condition under "loop:<proc>:<site>" so
// iteration statistics fall out of ordinary branch records.
const loopBranchPrefix = "loop:"

// BranchHint predicts a highly biased branch.
type BranchHint struct {
	ID             string
	TakenLikely    bool
	Predictability float64
}

// TypeSpecHint nominates a feedback key for type specialization. The
// specialized path must assume Tag, the dominant (or only) observed tag.
type TypeSpecHint struct {
	Key string
	Tag value.Tag
}

// LoopHintKind distinguishes unroll from vectorize candidates.
type LoopHintKind string

const (
	LoopUnroll    LoopHintKind = "unroll"
	LoopVectorize LoopHintKind = "vectorize"
)

// LoopHint describes a loop whose mean trip count suggests a transform.
type LoopHint struct {
	ID             string
	Kind           LoopHintKind
	MeanIterations float64
}

// Hints is the digest the tier manager consumes when generating
// optimized tiers.
type Hints struct {
	Hot      []string // total time at or above the percentile threshold
	Cold     []string // execution count below the cold floor
	Branches []BranchHint
	TypeSpec []TypeSpecHint
	Loops    []LoopHint
}

// OptimizationHints derives the hint digest from recorded state and
// the session's type feedback. The collector may be nil when only
// timing hints are wanted.
func (p *Profiler) OptimizationHints(fc *feedback.Collector) Hints {
	var h Hints

	// Hot set: nodes whose total time clears the global percentile
	// threshold. Cold set: barely-executed procedures.
	nodes := p.graph.Nodes()
	if len(nodes) > 0 {
		totals := make([]time.Duration, len(nodes))
		for i, n := range nodes {
			totals[i] = n.Total
		}
		slices.Sort(totals)
		idx := int(p.hotPercentile * float64(len(totals)))
		if idx >= len(totals) {
			idx = len(totals) - 1
		}
		threshold := totals[idx]
		for _, n := range nodes {
			if n.Total >= threshold && n.Total > 0 {
				h.Hot = append(h.Hot, n.Name)
			}
			if n.Count < p.coldCountFloor {
				h.Cold = append(h.Cold, n.Name)
			}
		}
	}

	// Branch hints only above the strict predictability gate; a branch
	// at exactly the gate does not qualify.
	for _, id := range p.branchIDs() {
		rec := p.branches[id]
		pred := rec.Predictability()
		if pred > p.branchHintGate {
			h.Branches = append(h.Branches, BranchHint{
				ID:             id,
				TakenLikely:    rec.TakenLikely(),
				Predictability: pred,
			})
		}
		if strings.HasPrefix(id, loopBranchPrefix) {
			mean := rec.MeanIterations()
			switch {
			case mean > 0 && mean < p.unrollMaxIters:
				h.Loops = append(h.Loops, LoopHint{ID: id, Kind: LoopUnroll, MeanIterations: mean})
			case mean > p.vectorizeMin:
				h.Loops = append(h.Loops, LoopHint{ID: id, Kind: LoopVectorize, MeanIterations: mean})
			}
		}
	}

	if fc != nil {
		for _, key := range fc.Keys() {
			rec := fc.Record(key)
			if rec.Specializable() {
				h.TypeSpec = append(h.TypeSpec, TypeSpecHint{Key: key, Tag: rec.Dominant})
			}
		}
	}

	return h
}

// branchIDs returns all branch site IDs in sorted order.
func (p *Profiler) branchIDs() []string {
	ids := make([]string, 0, len(p.branches))
	for id := range p.branches {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
