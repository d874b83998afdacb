package opt

import "github.com/tern-lang/tern/internal/ast"

// InlineCalls substitutes calls to hot-chain callees with the callee's
// body. Only the safe shape is inlined: the callee body must be a
// single return of an expression, and every argument must be a literal
// or a reference, so substitution cannot duplicate side effects or
// reorder evaluation.
type InlineCalls struct {
	// Lookup resolves a callee's syntax tree; nil trees are skipped.
	Lookup func(name string) *ast.Proc
	// Candidates is the set of callee names the profiler nominated.
	Candidates map[string]bool
}

// Name implements Pass.
func (InlineCalls) Name() string { return "inline-calls" }

// Rewrite implements Pass.
func (ic InlineCalls) Rewrite(p *ast.Proc) *ast.Proc {
	p.Body = ic.stmts(p.Body)
	return p
}

func (ic InlineCalls) stmts(stmts []ast.Stmt) []ast.Stmt {
	return rewriteStmts(stmts, func(s ast.Stmt) []ast.Stmt {
		switch n := s.(type) {
		case *ast.Let:
			n.Expr = ic.expr(n.Expr)
		case *ast.Assign:
			n.Expr = ic.expr(n.Expr)
		case *ast.If:
			n.Cond = ic.expr(n.Cond)
			n.Then = ic.stmts(n.Then)
			n.Else = ic.stmts(n.Else)
		case *ast.While:
			n.Cond = ic.expr(n.Cond)
			n.Body = ic.stmts(n.Body)
		case *ast.Return:
			n.Expr = ic.expr(n.Expr)
		case *ast.ExprStmt:
			n.Expr = ic.expr(n.Expr)
		}
		return []ast.Stmt{s}
	})
}

func (ic InlineCalls) expr(e ast.Expr) ast.Expr {
	switch n := e.(type) {
	case nil:
		return nil
	case *ast.Lit, *ast.Ref:
		return e
	case *ast.Binary:
		n.L = ic.expr(n.L)
		n.R = ic.expr(n.R)
		return n
	case *ast.Unary:
		n.X = ic.expr(n.X)
		return n
	case *ast.Field:
		n.X = ic.expr(n.X)
		return n
	case *ast.Call:
		for i, a := range n.Args {
			n.Args[i] = ic.expr(a)
		}
		if inlined := ic.tryInline(n); inlined != nil {
			return inlined
		}
		return n
	default:
		return e
	}
}

// tryInline returns the substituted callee expression, or nil when the
// call does not fit the safe shape.
func (ic InlineCalls) tryInline(call *ast.Call) ast.Expr {
	if !ic.Candidates[call.Name] || ic.Lookup == nil {
		return nil
	}
	callee := ic.Lookup(call.Name)
	if callee == nil || len(callee.Body) != 1 || len(callee.Params) != len(call.Args) {
		return nil
	}
	ret, ok := callee.Body[0].(*ast.Return)
	if !ok || ret.Expr == nil {
		return nil
	}
	for _, a := range call.Args {
		switch a.(type) {
		case *ast.Lit, *ast.Ref:
		default:
			return nil
		}
	}

	sub := make(map[string]ast.Expr, len(callee.Params))
	for i, param := range callee.Params {
		sub[param] = call.Args[i]
	}
	return substitute(ast.CloneExpr(ret.Expr), sub)
}

// substitute replaces parameter references with the bound argument
// expressions.
func substitute(e ast.Expr, sub map[string]ast.Expr) ast.Expr {
	switch n := e.(type) {
	case nil:
		return nil
	case *ast.Lit:
		return n
	case *ast.Ref:
		if repl, ok := sub[n.Name]; ok {
			return ast.CloneExpr(repl)
		}
		return n
	case *ast.Binary:
		n.L = substitute(n.L, sub)
		n.R = substitute(n.R, sub)
		return n
	case *ast.Unary:
		n.X = substitute(n.X, sub)
		return n
	case *ast.Call:
		for i, a := range n.Args {
			n.Args[i] = substitute(a, sub)
		}
		return n
	case *ast.Field:
		n.X = substitute(n.X, sub)
		return n
	default:
		return e
	}
}
