package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tern-lang/tern/internal/ast"
	"github.com/tern-lang/tern/internal/profile"
	"github.com/tern-lang/tern/internal/tier"
	"github.com/tern-lang/tern/internal/value"
)

func evalProc(t *testing.T, proc *ast.Proc, args ...value.Value) (value.Value, error) {
	t.Helper()
	ip := NewInterp(profile.New())
	return ip.Eval(proc, args, &tier.Env{})
}

func lit(v value.Value) *ast.Lit { return &ast.Lit{Value: v} }
func ref(name string) *ast.Ref   { return &ast.Ref{Name: name} }

func TestEvalArithmeticAndLocals(t *testing.T) {
	proc := &ast.Proc{
		Name:   "calc",
		Params: []string{"a", "b"},
		Body: []ast.Stmt{
			&ast.Let{Name: "x", Expr: &ast.Binary{Op: ast.OpMul, L: ref("a"), R: ref("b")}},
			&ast.Return{Expr: &ast.Binary{Op: ast.OpSub, L: ref("x"), R: lit(value.Int(1))}},
		},
	}

	got, err := evalProc(t, proc, value.Int(6), value.Int(7))

	require.NoError(t, err)
	assert.Equal(t, value.Int(41), got)
}

func TestEvalWhileLoop(t *testing.T) {
	// sum 1..n
	proc := &ast.Proc{
		Name:   "sum",
		Params: []string{"n"},
		Body: []ast.Stmt{
			&ast.Let{Name: "acc", Expr: lit(value.Int(0))},
			&ast.While{
				Cond: &ast.Binary{Op: ast.OpGt, L: ref("n"), R: lit(value.Int(0))},
				Body: []ast.Stmt{
					&ast.Assign{Name: "acc", Expr: &ast.Binary{Op: ast.OpAdd, L: ref("acc"), R: ref("n")}},
					&ast.Assign{Name: "n", Expr: &ast.Binary{Op: ast.OpSub, L: ref("n"), R: lit(value.Int(1))}},
				},
			},
			&ast.Return{Expr: ref("acc")},
		},
	}

	got, err := evalProc(t, proc, value.Int(10))

	require.NoError(t, err)
	assert.Equal(t, value.Int(55), got)
}

func TestEvalIfElse(t *testing.T) {
	proc := &ast.Proc{
		Name:   "abs",
		Params: []string{"n"},
		Body: []ast.Stmt{
			&ast.If{
				Cond: &ast.Binary{Op: ast.OpLt, L: ref("n"), R: lit(value.Int(0))},
				Then: []ast.Stmt{&ast.Return{Expr: &ast.Unary{Op: ast.OpNeg, X: ref("n")}}},
				Else: []ast.Stmt{&ast.Return{Expr: ref("n")}},
			},
		},
	}

	neg, err := evalProc(t, proc, value.Int(-4))
	require.NoError(t, err)
	assert.Equal(t, value.Int(4), neg)

	pos, err := evalProc(t, proc, value.Int(4))
	require.NoError(t, err)
	assert.Equal(t, value.Int(4), pos)
}

func TestEvalFieldAccess(t *testing.T) {
	proc := &ast.Proc{
		Name:   "getX",
		Params: []string{"p"},
		Body: []ast.Stmt{
			&ast.Return{Expr: &ast.Field{X: ref("p"), Name: "x"}},
		},
	}
	point := &value.Object{
		TypeName: "Point",
		Fields:   map[string]value.Value{"x": value.Int(3), "y": value.Int(9)},
	}

	got, err := evalProc(t, proc, point)

	require.NoError(t, err)
	assert.Equal(t, value.Int(3), got)
}

func TestEvalNoReturnYieldsEmpty(t *testing.T) {
	proc := &ast.Proc{
		Name: "noop",
		Body: []ast.Stmt{
			&ast.ExprStmt{Expr: lit(value.Int(1))},
		},
	}

	got, err := evalProc(t, proc)

	require.NoError(t, err)
	assert.Equal(t, value.Empty{}, got)
}

func TestEvalErrors(t *testing.T) {
	tests := []struct {
		name string
		proc *ast.Proc
		args []value.Value
	}{
		{
			name: "unbound name",
			proc: &ast.Proc{Name: "p", Body: []ast.Stmt{&ast.Return{Expr: ref("ghost")}}},
		},
		{
			name: "division by zero",
			proc: &ast.Proc{Name: "p", Body: []ast.Stmt{&ast.Return{
				Expr: &ast.Binary{Op: ast.OpDiv, L: lit(value.Int(1)), R: lit(value.Int(0))},
			}}},
		},
		{
			name: "mixed arithmetic",
			proc: &ast.Proc{Name: "p", Body: []ast.Stmt{&ast.Return{
				Expr: &ast.Binary{Op: ast.OpAdd, L: lit(value.Int(1)), R: lit(value.Float(1))},
			}}},
		},
		{
			name: "arity mismatch",
			proc: &ast.Proc{Name: "p", Params: []string{"a"}, Body: []ast.Stmt{&ast.Return{Expr: ref("a")}}},
		},
		{
			name: "non-boolean condition",
			proc: &ast.Proc{Name: "p", Body: []ast.Stmt{&ast.While{
				Cond: lit(value.Int(1)),
			}}},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := evalProc(t, tc.proc, tc.args...)
			assert.Error(t, err)
		})
	}
}

func TestLoopSitesStableAcrossIterations(t *testing.T) {
	// A nested loop keeps one branch id per syntactic site no matter
	// how many times the outer loop re-enters it.
	inner := &ast.While{
		Cond: &ast.Binary{Op: ast.OpGt, L: ref("j"), R: lit(value.Int(0))},
		Body: []ast.Stmt{
			&ast.Assign{Name: "j", Expr: &ast.Binary{Op: ast.OpSub, L: ref("j"), R: lit(value.Int(1))}},
		},
	}
	proc := &ast.Proc{
		Name:   "nest",
		Params: []string{"i"},
		Body: []ast.Stmt{
			&ast.Let{Name: "j", Expr: lit(value.Int(0))},
			&ast.While{
				Cond: &ast.Binary{Op: ast.OpGt, L: ref("i"), R: lit(value.Int(0))},
				Body: []ast.Stmt{
					&ast.Let{Name: "j", Expr: lit(value.Int(2))},
					inner,
					&ast.Assign{Name: "i", Expr: &ast.Binary{Op: ast.OpSub, L: ref("i"), R: lit(value.Int(1))}},
				},
			},
		},
	}

	prof := profile.New()
	prof.Start()
	defer prof.Stop()
	ip := NewInterp(prof)
	_, err := ip.Eval(proc, []value.Value{value.Int(3)}, &tier.Env{})
	require.NoError(t, err)

	hints := prof.OptimizationHints(nil)
	var ids []string
	for _, h := range hints.Loops {
		ids = append(ids, h.ID)
	}
	require.Len(t, ids, 2)
	assert.Contains(t, ids, "loop:nest:0")
	assert.Contains(t, ids, "loop:nest:1")
}
