package opt

import "github.com/tern-lang/tern/internal/ast"

// UnrollLoops peels Factor iterations off eligible while loops,
// leaving the original loop as the residual so the rewrite preserves
// semantics for any trip count:
//
//	while c { b }  =>  if c { b; if c { b; ... while c { b } } }
//
// Loops select the candidate loops by traversal index, matching the
// "loop:<proc>:<index>" site scheme the evaluator uses for back-edge
// branch records. A nil Loops set unrolls every loop.
type UnrollLoops struct {
	Factor int
	Loops  map[int]bool
}

// Name implements Pass.
func (UnrollLoops) Name() string { return "unroll-loops" }

// Rewrite implements Pass.
func (u UnrollLoops) Rewrite(p *ast.Proc) *ast.Proc {
	if u.Factor < 1 {
		return p
	}
	idx := 0
	p.Body = u.stmts(p.Body, &idx)
	return p
}

func (u UnrollLoops) stmts(stmts []ast.Stmt, idx *int) []ast.Stmt {
	return rewriteStmts(stmts, func(s ast.Stmt) []ast.Stmt {
		switch n := s.(type) {
		case *ast.If:
			n.Then = u.stmts(n.Then, idx)
			n.Else = u.stmts(n.Else, idx)
		case *ast.While:
			site := *idx
			*idx++
			n.Body = u.stmts(n.Body, idx)
			if u.Loops == nil || u.Loops[site] {
				return []ast.Stmt{u.peel(n, u.Factor)}
			}
		}
		return []ast.Stmt{s}
	})
}

// peel builds the nested-if form with n peeled iterations and the
// residual loop innermost.
func (u UnrollLoops) peel(loop *ast.While, n int) ast.Stmt {
	if n == 0 {
		return &ast.While{Cond: ast.CloneExpr(loop.Cond), Body: ast.CloneStmts(loop.Body)}
	}
	body := ast.CloneStmts(loop.Body)
	body = append(body, u.peel(loop, n-1))
	return &ast.If{Cond: ast.CloneExpr(loop.Cond), Then: body}
}
