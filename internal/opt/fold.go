package opt

import (
	"github.com/tern-lang/tern/internal/ast"
	"github.com/tern-lang/tern/internal/value"
)

// FoldConstants evaluates constant subexpressions: arithmetic and
// comparisons over literal integers and floats, boolean negation, and
// numeric negation. Division folds only when the divisor is a nonzero
// literal so the pass never changes error behavior.
type FoldConstants struct{}

// Name implements Pass.
func (FoldConstants) Name() string { return "fold-constants" }

// Rewrite implements Pass.
func (f FoldConstants) Rewrite(p *ast.Proc) *ast.Proc {
	p.Body = f.stmts(p.Body)
	return p
}

func (f FoldConstants) stmts(stmts []ast.Stmt) []ast.Stmt {
	return rewriteStmts(stmts, func(s ast.Stmt) []ast.Stmt {
		switch n := s.(type) {
		case *ast.Let:
			n.Expr = f.expr(n.Expr)
		case *ast.Assign:
			n.Expr = f.expr(n.Expr)
		case *ast.If:
			n.Cond = f.expr(n.Cond)
			n.Then = f.stmts(n.Then)
			n.Else = f.stmts(n.Else)
		case *ast.While:
			n.Cond = f.expr(n.Cond)
			n.Body = f.stmts(n.Body)
		case *ast.Return:
			n.Expr = f.expr(n.Expr)
		case *ast.ExprStmt:
			n.Expr = f.expr(n.Expr)
		}
		return []ast.Stmt{s}
	})
}

func (f FoldConstants) expr(e ast.Expr) ast.Expr {
	switch n := e.(type) {
	case nil:
		return nil
	case *ast.Lit, *ast.Ref:
		return e
	case *ast.Binary:
		n.L = f.expr(n.L)
		n.R = f.expr(n.R)
		if folded := foldBinary(n); folded != nil {
			return folded
		}
		return n
	case *ast.Unary:
		n.X = f.expr(n.X)
		if folded := foldUnary(n); folded != nil {
			return folded
		}
		return n
	case *ast.Call:
		for i, a := range n.Args {
			n.Args[i] = f.expr(a)
		}
		return n
	case *ast.Field:
		n.X = f.expr(n.X)
		return n
	default:
		return e
	}
}

func foldBinary(b *ast.Binary) ast.Expr {
	ll, lok := b.L.(*ast.Lit)
	rl, rok := b.R.(*ast.Lit)
	if !lok || !rok {
		return nil
	}

	if li, ok := ll.Value.(value.Int); ok {
		if ri, ok := rl.Value.(value.Int); ok {
			return foldIntOp(b.Op, int64(li), int64(ri))
		}
	}
	if lf, ok := ll.Value.(value.Float); ok {
		if rf, ok := rl.Value.(value.Float); ok {
			return foldFloatOp(b.Op, float64(lf), float64(rf))
		}
	}
	return nil
}

func foldIntOp(op ast.BinOp, l, r int64) ast.Expr {
	switch op {
	case ast.OpAdd:
		return &ast.Lit{Value: value.Int(l + r)}
	case ast.OpSub:
		return &ast.Lit{Value: value.Int(l - r)}
	case ast.OpMul:
		return &ast.Lit{Value: value.Int(l * r)}
	case ast.OpDiv:
		if r == 0 {
			return nil // leave the runtime error in place
		}
		return &ast.Lit{Value: value.Int(l / r)}
	case ast.OpEq:
		return &ast.Lit{Value: value.Bool(l == r)}
	case ast.OpNe:
		return &ast.Lit{Value: value.Bool(l != r)}
	case ast.OpLt:
		return &ast.Lit{Value: value.Bool(l < r)}
	case ast.OpLe:
		return &ast.Lit{Value: value.Bool(l <= r)}
	case ast.OpGt:
		return &ast.Lit{Value: value.Bool(l > r)}
	case ast.OpGe:
		return &ast.Lit{Value: value.Bool(l >= r)}
	default:
		return nil
	}
}

func foldFloatOp(op ast.BinOp, l, r float64) ast.Expr {
	switch op {
	case ast.OpAdd:
		return &ast.Lit{Value: value.Float(l + r)}
	case ast.OpSub:
		return &ast.Lit{Value: value.Float(l - r)}
	case ast.OpMul:
		return &ast.Lit{Value: value.Float(l * r)}
	case ast.OpDiv:
		if r == 0 {
			return nil
		}
		return &ast.Lit{Value: value.Float(l / r)}
	case ast.OpEq:
		return &ast.Lit{Value: value.Bool(l == r)}
	case ast.OpNe:
		return &ast.Lit{Value: value.Bool(l != r)}
	case ast.OpLt:
		return &ast.Lit{Value: value.Bool(l < r)}
	case ast.OpLe:
		return &ast.Lit{Value: value.Bool(l <= r)}
	case ast.OpGt:
		return &ast.Lit{Value: value.Bool(l > r)}
	case ast.OpGe:
		return &ast.Lit{Value: value.Bool(l >= r)}
	default:
		return nil
	}
}

func foldUnary(u *ast.Unary) ast.Expr {
	lit, ok := u.X.(*ast.Lit)
	if !ok {
		return nil
	}
	switch u.Op {
	case ast.OpNeg:
		switch v := lit.Value.(type) {
		case value.Int:
			return &ast.Lit{Value: value.Int(-int64(v))}
		case value.Float:
			return &ast.Lit{Value: value.Float(-float64(v))}
		}
	case ast.OpNot:
		if v, ok := lit.Value.(value.Bool); ok {
			return &ast.Lit{Value: value.Bool(!bool(v))}
		}
	}
	return nil
}
