package harness

import (
	"fmt"

	"github.com/tern-lang/tern/internal/ast"
	"github.com/tern-lang/tern/internal/profile"
	"github.com/tern-lang/tern/internal/tier"
	"github.com/tern-lang/tern/internal/value"
)

// Interp is the reference tree-walking evaluator. Every tier executes
// through it; the tiers differ only in the tree they hand over. Calls
// inside a body route back through the manager so callees get their
// own profiling and promotion.
type Interp struct {
	prof *profile.Profiler
	mgr  *tier.Manager
}

// NewInterp creates an evaluator that reports branch outcomes to prof.
func NewInterp(prof *profile.Profiler) *Interp {
	return &Interp{prof: prof}
}

// Bind attaches the manager after construction. The manager needs the
// evaluator at construction time, so the cycle closes here.
func (ip *Interp) Bind(mgr *tier.Manager) { ip.mgr = mgr }

// scope is one procedure activation's local bindings.
type scope struct {
	proc  string
	vars  map[string]value.Value
	env   *tier.Env
	sites *siteIndex
}

// siteIndex numbers branch sites by pre-order traversal so a site
// keeps one id across iterations and recursive activations. Loops and
// conditionals are numbered independently; the loop numbering matches
// the optimizer's unroll-site scheme.
type siteIndex struct {
	loops map[*ast.While]int
	conds map[*ast.If]int
}

func indexSites(body []ast.Stmt) *siteIndex {
	idx := &siteIndex{
		loops: make(map[*ast.While]int),
		conds: make(map[*ast.If]int),
	}
	var loopN, condN int
	var walk func(stmts []ast.Stmt)
	walk = func(stmts []ast.Stmt) {
		for _, st := range stmts {
			switch s := st.(type) {
			case *ast.If:
				idx.conds[s] = condN
				condN++
				walk(s.Then)
				walk(s.Else)
			case *ast.While:
				idx.loops[s] = loopN
				loopN++
				walk(s.Body)
			}
		}
	}
	walk(body)
	return idx
}

// errReturn carries a return value up the statement walk.
type errReturn struct {
	val value.Value
}

func (errReturn) Error() string { return "return" }

// Eval implements tier.Evaluator.
func (ip *Interp) Eval(proc *ast.Proc, args []value.Value, env *tier.Env) (value.Value, error) {
	if len(args) != len(proc.Params) {
		return value.Empty{}, fmt.Errorf("proc %s: got %d args, want %d",
			proc.Name, len(args), len(proc.Params))
	}
	sc := &scope{
		proc:  proc.Name,
		vars:  make(map[string]value.Value, len(proc.Params)),
		env:   env,
		sites: indexSites(proc.Body),
	}
	for i, p := range proc.Params {
		sc.vars[p] = args[i]
	}

	if err := ip.execBlock(sc, proc.Body); err != nil {
		var ret errReturn
		if asReturn(err, &ret) {
			return ret.val, nil
		}
		return value.Empty{}, err
	}
	return value.Empty{}, nil
}

func asReturn(err error, out *errReturn) bool {
	r, ok := err.(errReturn)
	if ok {
		*out = r
	}
	return ok
}

func (ip *Interp) execBlock(sc *scope, stmts []ast.Stmt) error {
	for _, st := range stmts {
		if err := ip.exec(sc, st); err != nil {
			return err
		}
	}
	return nil
}

func (ip *Interp) exec(sc *scope, st ast.Stmt) error {
	switch s := st.(type) {
	case *ast.Let:
		v, err := ip.eval(sc, s.Expr)
		if err != nil {
			return err
		}
		sc.vars[s.Name] = v
		return nil

	case *ast.Assign:
		v, err := ip.eval(sc, s.Expr)
		if err != nil {
			return err
		}
		if _, ok := sc.vars[s.Name]; !ok {
			return fmt.Errorf("proc %s: assign to unbound %q", sc.proc, s.Name)
		}
		sc.vars[s.Name] = v
		return nil

	case *ast.If:
		id := fmt.Sprintf("%s:if:%d", sc.proc, sc.sites.conds[s])
		cond, err := ip.truth(sc, s.Cond)
		if err != nil {
			return err
		}
		ip.prof.RecordBranch(id, cond)
		if cond {
			return ip.execBlock(sc, s.Then)
		}
		return ip.execBlock(sc, s.Else)

	case *ast.While:
		// Loop back-edges report under the loop: prefix so the
		// profiler can derive iteration counts per site.
		id := fmt.Sprintf("loop:%s:%d", sc.proc, sc.sites.loops[s])
		for {
			cond, err := ip.truth(sc, s.Cond)
			if err != nil {
				return err
			}
			ip.prof.RecordBranch(id, cond)
			if !cond {
				return nil
			}
			if err := ip.execBlock(sc, s.Body); err != nil {
				return err
			}
		}

	case *ast.Return:
		if s.Expr == nil {
			return errReturn{val: value.Empty{}}
		}
		v, err := ip.eval(sc, s.Expr)
		if err != nil {
			return err
		}
		return errReturn{val: v}

	case *ast.ExprStmt:
		_, err := ip.eval(sc, s.Expr)
		return err

	default:
		return fmt.Errorf("proc %s: unknown statement %T", sc.proc, st)
	}
}

func (ip *Interp) eval(sc *scope, ex ast.Expr) (value.Value, error) {
	switch e := ex.(type) {
	case *ast.Lit:
		return e.Value, nil

	case *ast.Ref:
		if v, ok := sc.vars[e.Name]; ok {
			return v, nil
		}
		if sc.env != nil {
			if v, ok := sc.env.Globals[e.Name]; ok {
				return v, nil
			}
		}
		return nil, fmt.Errorf("proc %s: unbound name %q", sc.proc, e.Name)

	case *ast.Binary:
		l, err := ip.eval(sc, e.L)
		if err != nil {
			return nil, err
		}
		r, err := ip.eval(sc, e.R)
		if err != nil {
			return nil, err
		}
		return binary(sc.proc, e.Op, l, r)

	case *ast.Unary:
		x, err := ip.eval(sc, e.X)
		if err != nil {
			return nil, err
		}
		return unary(sc.proc, e.Op, x)

	case *ast.Call:
		if ip.mgr == nil {
			return nil, fmt.Errorf("proc %s: call %q with no manager bound", sc.proc, e.Name)
		}
		args := make([]value.Value, len(e.Args))
		for i, a := range e.Args {
			v, err := ip.eval(sc, a)
			if err != nil {
				return nil, err
			}
			args[i] = v
		}
		return ip.mgr.Invoke(e.Name, args)

	case *ast.Field:
		x, err := ip.eval(sc, e.X)
		if err != nil {
			return nil, err
		}
		obj, ok := x.(*value.Object)
		if !ok {
			return nil, fmt.Errorf("proc %s: field %q on non-object %s",
				sc.proc, e.Name, value.TagOf(x))
		}
		v, ok := obj.Fields[e.Name]
		if !ok {
			return nil, fmt.Errorf("proc %s: object has no field %q", sc.proc, e.Name)
		}
		return v, nil

	default:
		return nil, fmt.Errorf("proc %s: unknown expression %T", sc.proc, ex)
	}
}

func (ip *Interp) truth(sc *scope, ex ast.Expr) (bool, error) {
	v, err := ip.eval(sc, ex)
	if err != nil {
		return false, err
	}
	b, ok := v.(value.Bool)
	if !ok {
		return false, fmt.Errorf("proc %s: condition is %s, not boolean", sc.proc, value.TagOf(v))
	}
	return bool(b), nil
}

func binary(proc string, op ast.BinOp, l, r value.Value) (value.Value, error) {
	switch op {
	case ast.OpAdd, ast.OpSub, ast.OpMul, ast.OpDiv:
		return arith(proc, op, l, r)
	case ast.OpEq:
		return value.Bool(equal(l, r)), nil
	case ast.OpNe:
		return value.Bool(!equal(l, r)), nil
	case ast.OpLt, ast.OpLe, ast.OpGt, ast.OpGe:
		return compare(proc, op, l, r)
	default:
		return nil, fmt.Errorf("proc %s: unknown operator %q", proc, op)
	}
}

func arith(proc string, op ast.BinOp, l, r value.Value) (value.Value, error) {
	switch lv := l.(type) {
	case value.Int:
		if rv, ok := r.(value.Int); ok {
			switch op {
			case ast.OpAdd:
				return lv + rv, nil
			case ast.OpSub:
				return lv - rv, nil
			case ast.OpMul:
				return lv * rv, nil
			case ast.OpDiv:
				if rv == 0 {
					return nil, fmt.Errorf("proc %s: integer division by zero", proc)
				}
				return lv / rv, nil
			}
		}
	case value.Float:
		if rv, ok := r.(value.Float); ok {
			switch op {
			case ast.OpAdd:
				return lv + rv, nil
			case ast.OpSub:
				return lv - rv, nil
			case ast.OpMul:
				return lv * rv, nil
			case ast.OpDiv:
				return lv / rv, nil
			}
		}
	case value.Str:
		if rv, ok := r.(value.Str); ok && op == ast.OpAdd {
			return lv + rv, nil
		}
	}
	return nil, fmt.Errorf("proc %s: %q not defined for %s and %s",
		proc, op, value.TagOf(l), value.TagOf(r))
}

func compare(proc string, op ast.BinOp, l, r value.Value) (value.Value, error) {
	var cmp int
	switch lv := l.(type) {
	case value.Int:
		rv, ok := r.(value.Int)
		if !ok {
			return nil, mixedCompare(proc, op, l, r)
		}
		cmp = compareOrdered(int64(lv), int64(rv))
	case value.Float:
		rv, ok := r.(value.Float)
		if !ok {
			return nil, mixedCompare(proc, op, l, r)
		}
		cmp = compareOrdered(float64(lv), float64(rv))
	case value.Str:
		rv, ok := r.(value.Str)
		if !ok {
			return nil, mixedCompare(proc, op, l, r)
		}
		cmp = compareOrdered(string(lv), string(rv))
	default:
		return nil, mixedCompare(proc, op, l, r)
	}

	switch op {
	case ast.OpLt:
		return value.Bool(cmp < 0), nil
	case ast.OpLe:
		return value.Bool(cmp <= 0), nil
	case ast.OpGt:
		return value.Bool(cmp > 0), nil
	default:
		return value.Bool(cmp >= 0), nil
	}
}

func compareOrdered[T int64 | float64 | string](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func mixedCompare(proc string, op ast.BinOp, l, r value.Value) error {
	return fmt.Errorf("proc %s: %q not defined for %s and %s",
		proc, op, value.TagOf(l), value.TagOf(r))
}

func unary(proc string, op ast.UnOp, x value.Value) (value.Value, error) {
	switch op {
	case ast.OpNeg:
		switch v := x.(type) {
		case value.Int:
			return -v, nil
		case value.Float:
			return -v, nil
		}
	case ast.OpNot:
		if v, ok := x.(value.Bool); ok {
			return !v, nil
		}
	}
	return nil, fmt.Errorf("proc %s: %q not defined for %s", proc, op, value.TagOf(x))
}

func equal(l, r value.Value) bool {
	switch lv := l.(type) {
	case value.Int:
		rv, ok := r.(value.Int)
		return ok && lv == rv
	case value.Float:
		rv, ok := r.(value.Float)
		return ok && lv == rv
	case value.Str:
		rv, ok := r.(value.Str)
		return ok && lv == rv
	case value.Bool:
		rv, ok := r.(value.Bool)
		return ok && lv == rv
	case value.Null:
		_, ok := r.(value.Null)
		return ok
	case value.Empty:
		_, ok := r.(value.Empty)
		return ok
	default:
		return false
	}
}
