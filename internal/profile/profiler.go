// Package profile collects runtime execution facts: call counts and
// self time per procedure, branch outcomes per site, and caller/callee
// edges. Analysis passes over the collected data derive hot paths,
// loop bounds, and branch hints; snapshots make a whole session
// portable as JSON.
package profile

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tern-lang/tern/internal/value"
)

// Clock abstracts wall-clock reads so tests can drive time manually.
// Implemented by the system clock (production) and
// testutil.ManualClock (tests).
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the real wall clock.
func SystemClock() Clock { return systemClock{} }

// Tuning defaults. Each has a functional option; the policy package
// maps a validated policy document onto them.
const (
	DefaultSampleInterval   = time.Millisecond
	DefaultHotPathMinCount  = 100
	DefaultHotPathLimit     = 10
	DefaultHotChainEdgeMin  = 1000
	DefaultHotPercentile    = 0.9
	DefaultColdCountFloor   = 10
	DefaultBranchHintGate   = 0.95
	DefaultUnrollMaxIters   = 10
	DefaultVectorizeMinIter = 100
)

// frame is one entry of the shadow call stack.
type frame struct {
	name    string
	entered time.Time
}

// Profiler is the session profiling subsystem: execution timing,
// branch history, call-graph accumulation, and post-hoc hot-path
// analysis.
//
// Everything is single-threaded by design; sampling runs as a
// fixed-interval check on the ordinary call path, not on a worker.
// The running flag is atomic so Stop is idempotent and race-free
// against an in-flight sample tick.
type Profiler struct {
	clock Clock

	sampleInterval  time.Duration
	hotPathMinCount uint64
	hotPathLimit    int
	hotChainEdgeMin uint64
	hotPercentile   float64
	coldCountFloor  uint64
	branchHintGate  float64
	unrollMaxIters  float64
	vectorizeMin    float64

	running    atomic.Bool
	sessionID  string
	startedAt  time.Time
	lastSample time.Time

	shadow   []frame
	execs    map[string]*ExecRecord
	branches map[string]*BranchRecord
	graph    *CallGraph

	hotPaths  []HotPath
	hotChains []HotChain
}

// Option configures a Profiler.
type Option func(*Profiler)

// WithClock substitutes the wall clock. Tests pass a manual clock so
// durations are exact.
func WithClock(c Clock) Option {
	return func(p *Profiler) { p.clock = c }
}

// WithSampleInterval sets the sampling interval (default 1ms).
func WithSampleInterval(d time.Duration) Option {
	return func(p *Profiler) { p.sampleInterval = d }
}

// WithHotPathMinCount sets the execution-count floor for hot-path
// tracing (default 100).
func WithHotPathMinCount(n uint64) Option {
	return func(p *Profiler) { p.hotPathMinCount = n }
}

// WithHotPathLimit sets how many hot paths are retained (default 10).
func WithHotPathLimit(n int) Option {
	return func(p *Profiler) { p.hotPathLimit = n }
}

// WithHotChainEdgeMin sets the edge-count threshold above which a
// direct edge becomes an inlining candidate (default 1000).
func WithHotChainEdgeMin(n uint64) Option {
	return func(p *Profiler) { p.hotChainEdgeMin = n }
}

// WithHotPercentile sets the total-time percentile above which a
// procedure is hot (default 0.9).
func WithHotPercentile(f float64) Option {
	return func(p *Profiler) { p.hotPercentile = f }
}

// WithColdCountFloor sets the execution count below which a procedure
// is cold (default 10).
func WithColdCountFloor(n uint64) Option {
	return func(p *Profiler) { p.coldCountFloor = n }
}

// WithBranchHintGate sets the strict predictability threshold for
// branch hints (default 0.95).
func WithBranchHintGate(f float64) Option {
	return func(p *Profiler) { p.branchHintGate = f }
}

// WithLoopBounds sets the unroll upper bound and vectorize lower bound
// on mean loop iterations (defaults 10 and 100).
func WithLoopBounds(unrollMax, vectorizeMin float64) Option {
	return func(p *Profiler) {
		p.unrollMaxIters = unrollMax
		p.vectorizeMin = vectorizeMin
	}
}

// New creates a stopped profiler with empty state.
func New(opts ...Option) *Profiler {
	p := &Profiler{
		clock:           systemClock{},
		sampleInterval:  DefaultSampleInterval,
		hotPathMinCount: DefaultHotPathMinCount,
		hotPathLimit:    DefaultHotPathLimit,
		hotChainEdgeMin: DefaultHotChainEdgeMin,
		hotPercentile:   DefaultHotPercentile,
		coldCountFloor:  DefaultColdCountFloor,
		branchHintGate:  DefaultBranchHintGate,
		unrollMaxIters:  DefaultUnrollMaxIters,
		vectorizeMin:    DefaultVectorizeMinIter,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.reset()
	return p
}

// reset drops all recorded and derived state.
func (p *Profiler) reset() {
	p.shadow = p.shadow[:0]
	p.execs = make(map[string]*ExecRecord)
	p.branches = make(map[string]*BranchRecord)
	p.graph = NewCallGraph()
	p.hotPaths = nil
	p.hotChains = nil
}

// Start resets all state and begins a new profiling session.
func (p *Profiler) Start() {
	p.reset()
	p.sessionID = uuid.NewString()
	p.startedAt = p.clock.Now()
	p.lastSample = p.startedAt
	p.running.Store(true)
}

// Stop ends the session and derives hot paths, hot chains, and self
// times. Idempotent: only the call that flips the running flag runs
// the analysis passes, so a concurrent sample tick cannot interleave
// with a second Stop.
func (p *Profiler) Stop() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	p.analyze()
}

// Running reports whether a session is active.
func (p *Profiler) Running() bool {
	return p.running.Load()
}

// SessionID returns the UUID of the current (or last) session.
func (p *Profiler) SessionID() string {
	return p.sessionID
}

// OnEnter pushes a frame on the shadow call stack. Arguments are
// accepted for interface symmetry with the evaluator hook; the
// profiler itself only needs the name and the clock.
func (p *Profiler) OnEnter(name string, args []value.Value) {
	if !p.running.Load() {
		return
	}
	now := p.clock.Now()
	p.sampleTick(now)
	p.shadow = append(p.shadow, frame{name: name, entered: now})
}

// OnExit pops the shadow stack, records the call duration, and updates
// the call graph with caller attribution from the new stack top.
func (p *Profiler) OnExit(name string, ret value.Value) {
	if !p.running.Load() || len(p.shadow) == 0 {
		return
	}
	now := p.clock.Now()
	p.sampleTick(now)

	top := p.shadow[len(p.shadow)-1]
	if top.name != name {
		// Unbalanced enter/exit; drop the frame rather than corrupt
		// attribution for everything beneath it.
		p.shadow = p.shadow[:len(p.shadow)-1]
		return
	}
	p.shadow = p.shadow[:len(p.shadow)-1]

	elapsed := now.Sub(top.entered)
	rec := p.execs[name]
	if rec == nil {
		rec = &ExecRecord{}
		p.execs[name] = rec
	}
	rec.observe(elapsed)

	caller := ""
	if len(p.shadow) > 0 {
		caller = p.shadow[len(p.shadow)-1].name
	}
	p.graph.recordCall(caller, name, elapsed)
}

// RecordBranch records one outcome for a branch site.
func (p *Profiler) RecordBranch(id string, taken bool) {
	if !p.running.Load() {
		return
	}
	rec := p.branches[id]
	if rec == nil {
		rec = &BranchRecord{}
		p.branches[id] = rec
	}
	rec.observe(taken)
}

// sampleTick credits whole elapsed intervals to the procedure on top
// of the shadow stack. This is the whole sampler: a hit counter on the
// ordinary call path, no stack unwinding and no worker goroutine.
func (p *Profiler) sampleTick(now time.Time) {
	if !p.running.Load() || p.sampleInterval <= 0 {
		return
	}
	hits := now.Sub(p.lastSample) / p.sampleInterval
	if hits <= 0 {
		return
	}
	p.lastSample = p.lastSample.Add(hits * p.sampleInterval)
	if len(p.shadow) == 0 {
		return
	}
	top := p.shadow[len(p.shadow)-1].name
	rec := p.execs[top]
	if rec == nil {
		rec = &ExecRecord{}
		p.execs[top] = rec
	}
	rec.Samples += uint64(hits)
}

// Exec returns the execution record for name, or nil.
func (p *Profiler) Exec(name string) *ExecRecord {
	return p.execs[name]
}

// Branch returns the branch record for id, or nil.
func (p *Profiler) Branch(id string) *BranchRecord {
	return p.branches[id]
}

// Graph returns the session call graph.
func (p *Profiler) Graph() *CallGraph {
	return p.graph
}

// HotPaths returns the derived hot paths, sorted descending by total
// time. Valid after Stop (or Import).
func (p *Profiler) HotPaths() []HotPath {
	return p.hotPaths
}

// HotChains returns the derived inlining candidates. Valid after Stop
// (or Import); never serialized, always recomputed.
func (p *Profiler) HotChains() []HotChain {
	return p.hotChains
}
