// Package tier runs procedures through a stack of compilation tiers,
// promoting on execution counts and demoting when speculation fails. A
// procedure starts in the interpreter tier; hotter tiers add
// feedback-driven optimizations plus the guards that keep them honest.
// A guard miss surfaces as a deoptimization, pops the failing tier,
// and past a configurable ceiling pins the procedure to the
// interpreter for good.
package tier

import (
	"time"

	"github.com/tern-lang/tern/internal/ast"
	"github.com/tern-lang/tern/internal/value"
)

// Level identifies one of the four compiled forms of a procedure.
type Level int

const (
	LevelInterpreter Level = iota // tier 0: profiled interpretation
	LevelBaseline                 // tier 1: re-dispatched, no transforms
	LevelOptimized                // tier 2: folded, pruned, type-guarded
	LevelUltra                    // tier 3: tier 2 plus unrolling and inlining
)

func (l Level) String() string {
	switch l {
	case LevelInterpreter:
		return "interpreter"
	case LevelBaseline:
		return "baseline"
	case LevelOptimized:
		return "optimized"
	case LevelUltra:
		return "ultra"
	default:
		return "invalid"
	}
}

// Callable is the compiled form of a procedure at some tier.
type Callable func(args []value.Value) (value.Value, error)

// Record is one tier of a procedure. A procedure owns an ordered stack
// of records; the most recent is active.
type Record struct {
	Level       Level
	Callable    Callable
	ExecCount   uint64 // calls since this tier activated
	CompileTime time.Duration
	DeoptCount  uint64
}

// procState is the per-procedure bookkeeping the manager owns.
type procState struct {
	name string
	tree *ast.Proc
	env  *Env

	// records is the tier stack; records[0] is always tier 0 and is
	// never popped.
	records     []*Record
	totalDeopts uint64
	pinned      bool
}

// active returns the top of the tier stack.
func (ps *procState) active() *Record {
	return ps.records[len(ps.records)-1]
}

// push activates a new tier.
func (ps *procState) push(rec *Record) {
	ps.records = append(ps.records, rec)
}

// pop abandons the active tier. Tier 0 is never popped.
func (ps *procState) pop() {
	if len(ps.records) > 1 {
		ps.records = ps.records[:len(ps.records)-1]
	}
}

// Env carries the evaluation context the front end supplies alongside
// the syntax tree: global bindings visible to the procedure body.
type Env struct {
	Globals map[string]value.Value
}
