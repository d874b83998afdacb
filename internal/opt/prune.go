package opt

import (
	"github.com/tern-lang/tern/internal/ast"
	"github.com/tern-lang/tern/internal/value"
)

// PruneBranches removes branches whose condition is a boolean literal:
// an If collapses to the chosen arm, a While with a false condition
// disappears. Runs after FoldConstants so folded comparisons feed it.
type PruneBranches struct{}

// Name implements Pass.
func (PruneBranches) Name() string { return "prune-branches" }

// Rewrite implements Pass.
func (pr PruneBranches) Rewrite(p *ast.Proc) *ast.Proc {
	p.Body = pr.stmts(p.Body)
	return p
}

func (pr PruneBranches) stmts(stmts []ast.Stmt) []ast.Stmt {
	return rewriteStmts(stmts, func(s ast.Stmt) []ast.Stmt {
		switch n := s.(type) {
		case *ast.If:
			n.Then = pr.stmts(n.Then)
			n.Else = pr.stmts(n.Else)
			if b, ok := litBool(n.Cond); ok {
				if b {
					return n.Then
				}
				return n.Else
			}
		case *ast.While:
			n.Body = pr.stmts(n.Body)
			if b, ok := litBool(n.Cond); ok && !b {
				return nil
			}
		}
		return []ast.Stmt{s}
	})
}

func litBool(e ast.Expr) (bool, bool) {
	lit, ok := e.(*ast.Lit)
	if !ok {
		return false, false
	}
	b, ok := lit.Value.(value.Bool)
	return bool(b), ok
}
