package opt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tern-lang/tern/internal/ast"
	"github.com/tern-lang/tern/internal/value"
)

func lit(v value.Value) *ast.Lit { return &ast.Lit{Value: v} }

func TestFoldConstantsArithmetic(t *testing.T) {
	p := &ast.Proc{
		Name: "f",
		Body: []ast.Stmt{
			&ast.Return{Expr: &ast.Binary{
				Op: ast.OpAdd,
				L:  lit(value.Int(2)),
				R:  &ast.Binary{Op: ast.OpMul, L: lit(value.Int(3)), R: lit(value.Int(4))},
			}},
		},
	}

	out := Run(p, FoldConstants{})
	ret := out.Body[0].(*ast.Return)
	folded, ok := ret.Expr.(*ast.Lit)
	require.True(t, ok)
	assert.Equal(t, value.Int(14), folded.Value)
}

func TestFoldConstantsLeavesDivisionByZero(t *testing.T) {
	p := &ast.Proc{
		Name: "f",
		Body: []ast.Stmt{
			&ast.Return{Expr: &ast.Binary{Op: ast.OpDiv, L: lit(value.Int(1)), R: lit(value.Int(0))}},
		},
	}

	out := Run(p, FoldConstants{})
	_, stillBinary := out.Body[0].(*ast.Return).Expr.(*ast.Binary)
	assert.True(t, stillBinary, "division by zero must keep its runtime error")
}

func TestFoldConstantsMixedTypesNotFolded(t *testing.T) {
	p := &ast.Proc{
		Name: "f",
		Body: []ast.Stmt{
			&ast.Return{Expr: &ast.Binary{Op: ast.OpAdd, L: lit(value.Int(1)), R: lit(value.Float(2))}},
		},
	}

	out := Run(p, FoldConstants{})
	_, stillBinary := out.Body[0].(*ast.Return).Expr.(*ast.Binary)
	assert.True(t, stillBinary, "mixed int/float folding is the evaluator's coercion call, not ours")
}

func TestFoldUnary(t *testing.T) {
	p := &ast.Proc{
		Name: "f",
		Body: []ast.Stmt{
			&ast.Let{Name: "a", Expr: &ast.Unary{Op: ast.OpNeg, X: lit(value.Int(5))}},
			&ast.Let{Name: "b", Expr: &ast.Unary{Op: ast.OpNot, X: lit(value.Bool(false))}},
		},
	}

	out := Run(p, FoldConstants{})
	assert.Equal(t, value.Int(-5), out.Body[0].(*ast.Let).Expr.(*ast.Lit).Value)
	assert.Equal(t, value.Bool(true), out.Body[1].(*ast.Let).Expr.(*ast.Lit).Value)
}

func TestPruneBranchesTakesChosenArm(t *testing.T) {
	p := &ast.Proc{
		Name: "f",
		Body: []ast.Stmt{
			&ast.If{
				Cond: &ast.Binary{Op: ast.OpLt, L: lit(value.Int(1)), R: lit(value.Int(2))},
				Then: []ast.Stmt{&ast.Return{Expr: lit(value.Str("then"))}},
				Else: []ast.Stmt{&ast.Return{Expr: lit(value.Str("else"))}},
			},
		},
	}

	out := Run(p, FoldConstants{}, PruneBranches{})
	require.Len(t, out.Body, 1)
	ret := out.Body[0].(*ast.Return)
	assert.Equal(t, value.Str("then"), ret.Expr.(*ast.Lit).Value)
}

func TestPruneBranchesDropsDeadLoop(t *testing.T) {
	p := &ast.Proc{
		Name: "f",
		Body: []ast.Stmt{
			&ast.While{Cond: lit(value.Bool(false)), Body: []ast.Stmt{&ast.ExprStmt{Expr: lit(value.Int(1))}}},
			&ast.Return{Expr: lit(value.Int(0))},
		},
	}

	out := Run(p, PruneBranches{})
	require.Len(t, out.Body, 1)
	_, isReturn := out.Body[0].(*ast.Return)
	assert.True(t, isReturn)
}

func TestUnrollPeelsResidualLoop(t *testing.T) {
	cond := &ast.Binary{Op: ast.OpLt, L: &ast.Ref{Name: "i"}, R: &ast.Ref{Name: "n"}}
	body := []ast.Stmt{&ast.Assign{Name: "i", Expr: &ast.Binary{Op: ast.OpAdd, L: &ast.Ref{Name: "i"}, R: lit(value.Int(1))}}}
	p := &ast.Proc{
		Name:   "f",
		Params: []string{"n"},
		Body: []ast.Stmt{
			&ast.Let{Name: "i", Expr: lit(value.Int(0))},
			&ast.While{Cond: cond, Body: body},
		},
	}

	out := Run(p, UnrollLoops{Factor: 2})

	// while c {b} => if c { b; if c { b; while c { b } } }
	outer, ok := out.Body[1].(*ast.If)
	require.True(t, ok)
	require.Len(t, outer.Then, 2)
	inner, ok := outer.Then[1].(*ast.If)
	require.True(t, ok)
	_, residual := inner.Then[1].(*ast.While)
	assert.True(t, residual, "residual loop keeps semantics for any trip count")
}

func TestUnrollSelectsBySite(t *testing.T) {
	mkLoop := func() *ast.While {
		return &ast.While{
			Cond: &ast.Binary{Op: ast.OpLt, L: &ast.Ref{Name: "i"}, R: lit(value.Int(3))},
			Body: []ast.Stmt{&ast.Assign{Name: "i", Expr: lit(value.Int(1))}},
		}
	}
	p := &ast.Proc{Name: "f", Body: []ast.Stmt{mkLoop(), mkLoop()}}

	out := Run(p, UnrollLoops{Factor: 1, Loops: map[int]bool{1: true}})

	_, first := out.Body[0].(*ast.While)
	assert.True(t, first, "site 0 untouched")
	_, second := out.Body[1].(*ast.If)
	assert.True(t, second, "site 1 unrolled")
}

func TestInlineSingleReturnCallee(t *testing.T) {
	double := &ast.Proc{
		Name:   "double",
		Params: []string{"x"},
		Body:   []ast.Stmt{&ast.Return{Expr: &ast.Binary{Op: ast.OpMul, L: &ast.Ref{Name: "x"}, R: lit(value.Int(2))}}},
	}
	caller := &ast.Proc{
		Name:   "f",
		Params: []string{"a"},
		Body:   []ast.Stmt{&ast.Return{Expr: &ast.Call{Name: "double", Args: []ast.Expr{&ast.Ref{Name: "a"}}}}},
	}

	out := Run(caller, InlineCalls{
		Lookup:     func(name string) *ast.Proc { return map[string]*ast.Proc{"double": double}[name] },
		Candidates: map[string]bool{"double": true},
	})

	bin, ok := out.Body[0].(*ast.Return).Expr.(*ast.Binary)
	require.True(t, ok, "call replaced by callee body")
	assert.Equal(t, "a", bin.L.(*ast.Ref).Name)
}

func TestInlineSkipsComplexArgs(t *testing.T) {
	callee := &ast.Proc{
		Name:   "g",
		Params: []string{"x"},
		Body:   []ast.Stmt{&ast.Return{Expr: &ast.Ref{Name: "x"}}},
	}
	caller := &ast.Proc{
		Name: "f",
		Body: []ast.Stmt{&ast.Return{Expr: &ast.Call{
			Name: "g",
			Args: []ast.Expr{&ast.Call{Name: "sideEffect"}},
		}}},
	}

	out := Run(caller, InlineCalls{
		Lookup:     func(string) *ast.Proc { return callee },
		Candidates: map[string]bool{"g": true},
	})

	_, stillCall := out.Body[0].(*ast.Return).Expr.(*ast.Call)
	assert.True(t, stillCall, "call arguments may not be duplicated")
}

func TestRunDoesNotMutateInput(t *testing.T) {
	p := &ast.Proc{
		Name: "f",
		Body: []ast.Stmt{
			&ast.Return{Expr: &ast.Binary{Op: ast.OpAdd, L: lit(value.Int(1)), R: lit(value.Int(2))}},
		},
	}

	Run(p, FoldConstants{})
	_, stillBinary := p.Body[0].(*ast.Return).Expr.(*ast.Binary)
	assert.True(t, stillBinary, "passes operate on a clone")
}
