// Package opt implements the AST-level optimizing passes the tier
// manager applies when generating tiers 2 and 3. Passes consume
// profiling and type feedback indirectly: the manager decides which
// passes run and with what parameters, the passes themselves are pure
// tree transforms.
//
// Every transform is an exhaustive switch over the sealed node kinds
// in the ast package, so adding a node kind breaks compilation here
// instead of silently skipping the new node.
package opt

import "github.com/tern-lang/tern/internal/ast"

// Pass is a single tree transform. Rewrite may mutate its input; Run
// clones the procedure once up front so callers' trees are safe.
type Pass interface {
	Name() string
	Rewrite(p *ast.Proc) *ast.Proc
}

// Run clones p and applies the passes in order.
func Run(p *ast.Proc, passes ...Pass) *ast.Proc {
	out := ast.CloneProc(p)
	for _, pass := range passes {
		out = pass.Rewrite(out)
	}
	return out
}

// rewriteStmts maps a statement transform over a list, allowing a
// statement to expand into several (or none).
func rewriteStmts(stmts []ast.Stmt, f func(ast.Stmt) []ast.Stmt) []ast.Stmt {
	out := make([]ast.Stmt, 0, len(stmts))
	for _, s := range stmts {
		out = append(out, f(s)...)
	}
	return out
}
