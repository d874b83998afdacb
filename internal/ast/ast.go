package ast

import "github.com/tern-lang/tern/internal/value"

// Node is the interface shared by all syntax-tree nodes the engine
// consumes. The front end's semantic analyzer produces these; the
// engine only transforms and hands them to the evaluator.
type Node interface {
	node()
}

// Stmt represents a statement node.
//
// This is a sealed interface - only types in this package implement it.
// The marker method pattern enables exhaustive type switches in the
// optimizer passes: a new statement kind fails to compile every
// transform that does not handle it.
type Stmt interface {
	Node
	stmtNode()
}

// Expr represents an expression node. Sealed, same as Stmt.
type Expr interface {
	Node
	exprNode()
}

// Proc is a procedure definition: an optional ordered parameter list and
// a statement-list body. This is the unit the tier manager compiles.
type Proc struct {
	Name   string
	Params []string
	Body   []Stmt
}

func (*Proc) node() {}

// Let introduces a new binding in the current scope.
type Let struct {
	Name string
	Expr Expr
}

// Assign overwrites an existing binding.
type Assign struct {
	Name string
	Expr Expr
}

// If evaluates Cond and executes Then or Else.
type If struct {
	Cond Expr
	Then []Stmt
	Else []Stmt
}

// While evaluates Cond before each iteration of Body.
type While struct {
	Cond Expr
	Body []Stmt
}

// Return ends the procedure with the value of Expr (Empty when nil).
type Return struct {
	Expr Expr
}

// ExprStmt evaluates an expression for its side effects.
type ExprStmt struct {
	Expr Expr
}

func (*Let) node()      {}
func (*Assign) node()   {}
func (*If) node()       {}
func (*While) node()    {}
func (*Return) node()   {}
func (*ExprStmt) node() {}

func (*Let) stmtNode()      {}
func (*Assign) stmtNode()   {}
func (*If) stmtNode()       {}
func (*While) stmtNode()    {}
func (*Return) stmtNode()   {}
func (*ExprStmt) stmtNode() {}

// Lit is a literal value.
type Lit struct {
	Value value.Value
}

// Ref reads a binding or parameter by name.
type Ref struct {
	Name string
}

// BinOp identifies a binary operator.
type BinOp string

const (
	OpAdd BinOp = "+"
	OpSub BinOp = "-"
	OpMul BinOp = "*"
	OpDiv BinOp = "/"
	OpEq  BinOp = "=="
	OpNe  BinOp = "!="
	OpLt  BinOp = "<"
	OpLe  BinOp = "<="
	OpGt  BinOp = ">"
	OpGe  BinOp = ">="
)

// Binary applies Op to the results of L and R.
type Binary struct {
	Op BinOp
	L  Expr
	R  Expr
}

// UnOp identifies a unary operator.
type UnOp string

const (
	OpNeg UnOp = "-"
	OpNot UnOp = "!"
)

// Unary applies Op to the result of X.
type Unary struct {
	Op UnOp
	X  Expr
}

// Call invokes a procedure by name with argument expressions.
type Call struct {
	Name string
	Args []Expr
}

// Field reads a named field from an object-valued expression.
type Field struct {
	X    Expr
	Name string
}

func (*Lit) node()    {}
func (*Ref) node()    {}
func (*Binary) node() {}
func (*Unary) node()  {}
func (*Call) node()   {}
func (*Field) node()  {}

func (*Lit) exprNode()    {}
func (*Ref) exprNode()    {}
func (*Binary) exprNode() {}
func (*Unary) exprNode()  {}
func (*Call) exprNode()   {}
func (*Field) exprNode()  {}
