package tier

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/tern-lang/tern/internal/ast"
	"github.com/tern-lang/tern/internal/feedback"
	"github.com/tern-lang/tern/internal/opt"
	"github.com/tern-lang/tern/internal/profile"
	"github.com/tern-lang/tern/internal/value"
)

// Evaluator executes a procedure tree. The front end supplies the real
// one; the engine never implements full language semantics itself.
// Evaluators call back into Manager.Invoke for procedure calls so
// nested calls are counted, profiled, and promoted like any other.
type Evaluator interface {
	Eval(proc *ast.Proc, args []value.Value, env *Env) (value.Value, error)
}

// EvaluatorFunc adapts a function to the Evaluator interface.
type EvaluatorFunc func(proc *ast.Proc, args []value.Value, env *Env) (value.Value, error)

// Eval implements Evaluator.
func (f EvaluatorFunc) Eval(proc *ast.Proc, args []value.Value, env *Env) (value.Value, error) {
	return f(proc, args, env)
}

// Promotion thresholds: calls since tier activation that trigger the
// next promotion. Counting restarts at each activation, so a procedure
// does not instantly re-promote right after a deopt.
var DefaultThresholds = [3]uint64{100, 1000, 10000}

// DefaultDeoptCeiling is the number of deopts a procedure survives;
// one more pins it at tier 0 permanently.
const DefaultDeoptCeiling = 5

// defaultUnrollFactor is how many iterations tier 3 peels off loops
// the profiler nominated for unrolling.
const defaultUnrollFactor = 4

// Manager owns per-procedure tier stacks and drives the
// promote/deoptimize state machine. It is the single logical owner of
// each procedure's records; a concurrent host must serialize calls per
// procedure or shard the proc map.
type Manager struct {
	eval     Evaluator
	fc       *feedback.Collector
	prof     *profile.Profiler
	log      *slog.Logger
	strategy PromotionStrategy
	clock    profile.Clock

	thresholds    [3]uint64
	deoptCeiling  uint64
	stabilityGate float64
	unrollFactor  int

	procs map[string]*procState
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the structured logger (default slog.Default).
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.log = l }
}

// WithStrategy substitutes the promotion strategy (default Synchronous).
func WithStrategy(s PromotionStrategy) ManagerOption {
	return func(m *Manager) { m.strategy = s }
}

// WithThresholds overrides the per-tier promotion thresholds.
func WithThresholds(t [3]uint64) ManagerOption {
	return func(m *Manager) { m.thresholds = t }
}

// WithDeoptCeiling overrides the deopt ceiling (default 5).
func WithDeoptCeiling(n uint64) ManagerOption {
	return func(m *Manager) { m.deoptCeiling = n }
}

// WithStabilityGate overrides the type-stability gate used when
// deciding whether a parameter site may be specialized.
func WithStabilityGate(f float64) ManagerOption {
	return func(m *Manager) { m.stabilityGate = f }
}

// WithManagerClock substitutes the clock used for compile-time
// measurement.
func WithManagerClock(c profile.Clock) ManagerOption {
	return func(m *Manager) { m.clock = c }
}

// NewManager creates a manager bound to a session's evaluator,
// feedback collector, and profiler.
func NewManager(eval Evaluator, fc *feedback.Collector, prof *profile.Profiler, opts ...ManagerOption) *Manager {
	m := &Manager{
		eval:          eval,
		fc:            fc,
		prof:          prof,
		log:           slog.Default(),
		thresholds:    DefaultThresholds,
		deoptCeiling:  DefaultDeoptCeiling,
		stabilityGate: feedback.StabilityGate,
		unrollFactor:  defaultUnrollFactor,
		procs:         make(map[string]*procState),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.strategy == nil {
		m.strategy = Synchronous{Log: m.log}
	}
	if m.clock == nil {
		m.clock = profile.SystemClock()
	}
	return m
}

// Compile installs a procedure at tier 0 and returns its callable.
// The tier-0 callable is the evaluator on the original tree; profiling
// and feedback wrapping happen at the call boundary in Invoke, so the
// same instrumentation covers every tier.
func (m *Manager) Compile(name string, tree *ast.Proc, env *Env) (Callable, error) {
	if tree == nil {
		return nil, fmt.Errorf("compile %s: nil syntax tree", name)
	}
	ps := &procState{name: name, tree: tree, env: env}
	ps.push(&Record{
		Level: LevelInterpreter,
		Callable: func(args []value.Value) (value.Value, error) {
			return m.eval.Eval(tree, args, env)
		},
	})
	m.procs[name] = ps

	return func(args []value.Value) (value.Value, error) {
		return m.call(ps, args)
	}, nil
}

// Invoke calls a compiled procedure by name. Evaluators route Call
// nodes through here.
func (m *Manager) Invoke(name string, args []value.Value) (value.Value, error) {
	ps := m.procs[name]
	if ps == nil {
		return nil, fmt.Errorf("invoke: unknown procedure %q", name)
	}
	return m.call(ps, args)
}

// call is the wrapped call boundary: feedback, profiling, execution
// with deopt recovery, then the promotion check.
func (m *Manager) call(ps *procState, args []value.Value) (value.Value, error) {
	for i, a := range args {
		m.fc.RecordType(feedbackKey(ps.name, i), a)
		if obj, ok := a.(*value.Object); ok {
			m.fc.ShapeOf(obj)
		}
	}

	m.prof.OnEnter(ps.name, args)
	v, err := m.run(ps, args)
	m.prof.OnExit(ps.name, v)

	if err == nil {
		m.maybePromote(ps)
	}
	return v, err
}

// run executes on the active tier, falling back tier by tier on deopt
// signals. A deopt never escapes this loop: tier 0 carries no guards
// and the evaluator's own errors are not DeoptErrors.
func (m *Manager) run(ps *procState, args []value.Value) (value.Value, error) {
	for {
		rec := ps.active()
		rec.ExecCount++
		v, err := rec.Callable(args)
		if err != nil {
			var de *DeoptError
			if errors.As(err, &de) && rec.Level > LevelInterpreter {
				m.Deoptimize(ps.name)
				continue
			}
		}
		return v, err
	}
}

// Deoptimize abandons the active tier: its deopt count is charged,
// and the procedure resumes on the tier beneath. Once the procedure's
// deopts exceed the ceiling it is pinned at tier 0 and never promoted
// again.
func (m *Manager) Deoptimize(name string) {
	ps := m.procs[name]
	if ps == nil {
		return
	}
	abandoned := ps.active()
	if abandoned.Level == LevelInterpreter {
		return
	}
	abandoned.DeoptCount++
	ps.totalDeopts++

	m.log.Debug("deoptimizing",
		"proc", ps.name,
		"from", abandoned.Level.String(),
		"deopts", ps.totalDeopts)

	if abandoned.DeoptCount > m.deoptCeiling || ps.totalDeopts > m.deoptCeiling {
		ps.pinned = true
		for ps.active().Level > LevelInterpreter {
			ps.pop()
		}
		m.log.Warn("procedure pinned at tier 0", "proc", ps.name, "deopts", ps.totalDeopts)
		return
	}
	ps.pop()
}

// maybePromote promotes when the active tier's count since activation
// crosses its threshold. The modulo form makes a failed generation
// retry at the next crossing instead of on every subsequent call.
func (m *Manager) maybePromote(ps *procState) {
	if ps.pinned {
		return
	}
	rec := ps.active()
	if rec.Level >= LevelUltra {
		return
	}
	threshold := m.thresholds[rec.Level]
	if threshold == 0 || rec.ExecCount == 0 || rec.ExecCount%threshold != 0 {
		return
	}

	target := rec.Level + 1
	m.strategy.Promote(ps.name, target,
		func() (*Record, error) { return m.generate(ps, target) },
		func(newRec *Record) {
			ps.push(newRec)
			m.log.Debug("promoted",
				"proc", ps.name,
				"to", target.String(),
				"compileTime", newRec.CompileTime)
		})
}

// generate builds the callable for a target tier from the original
// tree, the optimizer passes for that tier, and guards derived from
// type feedback.
func (m *Manager) generate(ps *procState, target Level) (*Record, error) {
	start := m.clock.Now()

	var tree *ast.Proc
	switch target {
	case LevelBaseline:
		tree = opt.Run(ps.tree)
	case LevelOptimized:
		tree = opt.Run(ps.tree, opt.FoldConstants{}, opt.PruneBranches{})
	case LevelUltra:
		passes := []opt.Pass{opt.FoldConstants{}, opt.PruneBranches{}}
		if sites := m.unrollSites(ps.name); len(sites) > 0 {
			passes = append(passes, opt.UnrollLoops{Factor: m.unrollFactor, Loops: sites})
		}
		if cands := m.inlineCandidates(ps.name); len(cands) > 0 {
			passes = append(passes, opt.InlineCalls{Lookup: m.tree, Candidates: cands})
		}
		tree = opt.Run(ps.tree, passes...)
	default:
		return nil, fmt.Errorf("generate %s: invalid target tier %d", ps.name, target)
	}

	var guards []paramGuard
	if target >= LevelOptimized {
		guards = m.paramGuards(ps.name, ps.tree.Params)
	}

	env := ps.env
	callable := func(args []value.Value) (value.Value, error) {
		if err := checkGuards(ps.name, guards, args); err != nil {
			return nil, err
		}
		return m.eval.Eval(tree, args, env)
	}

	return &Record{
		Level:       target,
		Callable:    callable,
		CompileTime: m.clock.Now().Sub(start),
	}, nil
}

// paramGuards derives specialization guards from feedback: one guard
// per parameter whose observations are monomorphic or stable past the
// gate, asserting the dominant tag.
func (m *Manager) paramGuards(name string, params []string) []paramGuard {
	var guards []paramGuard
	for i := range params {
		key := feedbackKey(name, i)
		rec := m.fc.Record(key)
		if rec != nil && rec.SpecializableAt(m.stabilityGate) {
			guards = append(guards, paramGuard{index: i, key: key, tag: rec.Dominant})
		}
	}
	return guards
}

// unrollSites maps the profiler's unroll hints for this procedure to
// loop traversal indexes.
func (m *Manager) unrollSites(name string) map[int]bool {
	prefix := "loop:" + name + ":"
	sites := make(map[int]bool)
	for _, lh := range m.prof.OptimizationHints(m.fc).Loops {
		if lh.Kind != profile.LoopUnroll || !strings.HasPrefix(lh.ID, prefix) {
			continue
		}
		if idx, err := strconv.Atoi(strings.TrimPrefix(lh.ID, prefix)); err == nil {
			sites[idx] = true
		}
	}
	return sites
}

// inlineCandidates collects hot-chain callees for this caller from the
// live call graph.
func (m *Manager) inlineCandidates(name string) map[string]bool {
	cands := make(map[string]bool)
	for _, hc := range m.prof.CurrentHotChains() {
		if hc.Caller == name {
			cands[hc.Callee] = true
		}
	}
	return cands
}

// tree resolves a registered procedure's original syntax tree.
func (m *Manager) tree(name string) *ast.Proc {
	if ps := m.procs[name]; ps != nil {
		return ps.tree
	}
	return nil
}

// ActiveLevel returns the active tier level for a procedure.
func (m *Manager) ActiveLevel(name string) (Level, bool) {
	ps := m.procs[name]
	if ps == nil {
		return 0, false
	}
	return ps.active().Level, true
}

// TierStack returns the levels on the procedure's tier stack, bottom
// first.
func (m *Manager) TierStack(name string) []Level {
	ps := m.procs[name]
	if ps == nil {
		return nil
	}
	levels := make([]Level, len(ps.records))
	for i, r := range ps.records {
		levels[i] = r.Level
	}
	return levels
}

// DeoptTotal returns the procedure's lifetime deopt count.
func (m *Manager) DeoptTotal(name string) uint64 {
	if ps := m.procs[name]; ps != nil {
		return ps.totalDeopts
	}
	return 0
}

// Pinned reports whether the procedure is permanently pinned at tier 0.
func (m *Manager) Pinned(name string) bool {
	ps := m.procs[name]
	return ps != nil && ps.pinned
}

// Procs returns the registered procedure names in sorted order.
func (m *Manager) Procs() []string {
	names := make([]string, 0, len(m.procs))
	for n := range m.procs {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// feedbackKey is the per-parameter type feedback key: "proc:index".
func feedbackKey(name string, index int) string {
	return name + ":" + strconv.Itoa(index)
}
