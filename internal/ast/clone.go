package ast

// CloneProc deep-copies a procedure. Optimizer passes operate on a
// clone so the front end's tree is never mutated; the interpreter tier
// keeps evaluating the original while higher tiers are generated.
func CloneProc(p *Proc) *Proc {
	if p == nil {
		return nil
	}
	params := make([]string, len(p.Params))
	copy(params, p.Params)
	return &Proc{
		Name:   p.Name,
		Params: params,
		Body:   CloneStmts(p.Body),
	}
}

// CloneStmts deep-copies a statement list.
func CloneStmts(stmts []Stmt) []Stmt {
	if stmts == nil {
		return nil
	}
	out := make([]Stmt, len(stmts))
	for i, s := range stmts {
		out[i] = CloneStmt(s)
	}
	return out
}

// CloneStmt deep-copies a single statement. The switch is exhaustive
// over the sealed Stmt kinds.
func CloneStmt(s Stmt) Stmt {
	switch n := s.(type) {
	case *Let:
		return &Let{Name: n.Name, Expr: CloneExpr(n.Expr)}
	case *Assign:
		return &Assign{Name: n.Name, Expr: CloneExpr(n.Expr)}
	case *If:
		return &If{Cond: CloneExpr(n.Cond), Then: CloneStmts(n.Then), Else: CloneStmts(n.Else)}
	case *While:
		return &While{Cond: CloneExpr(n.Cond), Body: CloneStmts(n.Body)}
	case *Return:
		return &Return{Expr: CloneExpr(n.Expr)}
	case *ExprStmt:
		return &ExprStmt{Expr: CloneExpr(n.Expr)}
	default:
		return s
	}
}

// CloneExpr deep-copies a single expression.
func CloneExpr(e Expr) Expr {
	switch n := e.(type) {
	case nil:
		return nil
	case *Lit:
		return &Lit{Value: n.Value}
	case *Ref:
		return &Ref{Name: n.Name}
	case *Binary:
		return &Binary{Op: n.Op, L: CloneExpr(n.L), R: CloneExpr(n.R)}
	case *Unary:
		return &Unary{Op: n.Op, X: CloneExpr(n.X)}
	case *Call:
		args := make([]Expr, len(n.Args))
		for i, a := range n.Args {
			args[i] = CloneExpr(a)
		}
		return &Call{Name: n.Name, Args: args}
	case *Field:
		return &Field{X: CloneExpr(n.X), Name: n.Name}
	default:
		return e
	}
}
