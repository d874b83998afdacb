package harness

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tern-lang/tern/internal/ast"
	"github.com/tern-lang/tern/internal/value"
)

// Scenario is a declarative exercise for the engine: procedures to
// compile, a drive script of calls, and an optional CUE policy
// fragment overriding the defaults.
type Scenario struct {
	Name       string      `yaml:"name"`
	Policy     string      `yaml:"policy"`
	Procedures []Procedure `yaml:"procedures"`
	Drive      []DriveStep `yaml:"drive"`
}

// Procedure declares one procedure's syntax tree.
type Procedure struct {
	Name   string     `yaml:"name"`
	Params []string   `yaml:"params"`
	Body   []StmtNode `yaml:"body"`
}

// DriveStep is one scripted call, repeated Times times (default 1).
type DriveStep struct {
	Call  string     `yaml:"call"`
	Args  []ExprNode `yaml:"args"`
	Times int        `yaml:"times"`
}

// LoadScenario reads and decodes a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("decode scenario %s: %w", path, err)
	}
	if sc.Name == "" {
		return nil, fmt.Errorf("scenario %s: missing name", path)
	}
	if len(sc.Procedures) == 0 {
		return nil, fmt.Errorf("scenario %s: no procedures", path)
	}
	return &sc, nil
}

// StmtNode is the YAML form of a statement: exactly one field set.
type StmtNode struct {
	Let    *Binding   `yaml:"let"`
	Assign *Binding   `yaml:"assign"`
	If     *IfNode    `yaml:"if"`
	While  *WhileNode `yaml:"while"`
	Return *ExprNode  `yaml:"return"`
	Expr   *ExprNode  `yaml:"expr"`
}

type Binding struct {
	Name  string   `yaml:"name"`
	Value ExprNode `yaml:"value"`
}

type IfNode struct {
	Cond ExprNode   `yaml:"cond"`
	Then []StmtNode `yaml:"then"`
	Else []StmtNode `yaml:"else"`
}

type WhileNode struct {
	Cond ExprNode   `yaml:"cond"`
	Body []StmtNode `yaml:"body"`
}

// ExprNode is the YAML form of an expression: exactly one field set.
type ExprNode struct {
	Int    *int64      `yaml:"int"`
	Float  *float64    `yaml:"float"`
	Str    *string     `yaml:"str"`
	Bool   *bool       `yaml:"bool"`
	Null   bool        `yaml:"null"`
	Ref    *string     `yaml:"ref"`
	Bin    *BinNode    `yaml:"bin"`
	Un     *UnNode     `yaml:"un"`
	Call   *CallNode   `yaml:"call"`
	Field  *FieldNode  `yaml:"field"`
	Object *ObjectNode `yaml:"object"`
	Array  []ExprNode  `yaml:"array"`
}

type BinNode struct {
	Op string   `yaml:"op"`
	L  ExprNode `yaml:"l"`
	R  ExprNode `yaml:"r"`
}

type UnNode struct {
	Op string   `yaml:"op"`
	X  ExprNode `yaml:"x"`
}

type CallNode struct {
	Name string     `yaml:"name"`
	Args []ExprNode `yaml:"args"`
}

type FieldNode struct {
	X    ExprNode `yaml:"x"`
	Name string   `yaml:"name"`
}

type ObjectNode struct {
	TypeName string              `yaml:"typeName"`
	Fields   map[string]ExprNode `yaml:"fields"`
}

// Tree converts the procedure declaration into a syntax tree.
func (p Procedure) Tree() (*ast.Proc, error) {
	body, err := buildStmts(p.Name, p.Body)
	if err != nil {
		return nil, err
	}
	return &ast.Proc{Name: p.Name, Params: p.Params, Body: body}, nil
}

func buildStmts(proc string, nodes []StmtNode) ([]ast.Stmt, error) {
	out := make([]ast.Stmt, 0, len(nodes))
	for i, n := range nodes {
		st, err := buildStmt(proc, n)
		if err != nil {
			return nil, fmt.Errorf("statement %d: %w", i, err)
		}
		out = append(out, st)
	}
	return out, nil
}

func buildStmt(proc string, n StmtNode) (ast.Stmt, error) {
	switch {
	case n.Let != nil:
		v, err := buildExpr(proc, n.Let.Value)
		if err != nil {
			return nil, err
		}
		return &ast.Let{Name: n.Let.Name, Expr: v}, nil
	case n.Assign != nil:
		v, err := buildExpr(proc, n.Assign.Value)
		if err != nil {
			return nil, err
		}
		return &ast.Assign{Name: n.Assign.Name, Expr: v}, nil
	case n.If != nil:
		cond, err := buildExpr(proc, n.If.Cond)
		if err != nil {
			return nil, err
		}
		then, err := buildStmts(proc, n.If.Then)
		if err != nil {
			return nil, err
		}
		els, err := buildStmts(proc, n.If.Else)
		if err != nil {
			return nil, err
		}
		return &ast.If{Cond: cond, Then: then, Else: els}, nil
	case n.While != nil:
		cond, err := buildExpr(proc, n.While.Cond)
		if err != nil {
			return nil, err
		}
		body, err := buildStmts(proc, n.While.Body)
		if err != nil {
			return nil, err
		}
		return &ast.While{Cond: cond, Body: body}, nil
	case n.Return != nil:
		v, err := buildExpr(proc, *n.Return)
		if err != nil {
			return nil, err
		}
		return &ast.Return{Expr: v}, nil
	case n.Expr != nil:
		v, err := buildExpr(proc, *n.Expr)
		if err != nil {
			return nil, err
		}
		return &ast.ExprStmt{Expr: v}, nil
	default:
		return nil, fmt.Errorf("proc %s: empty statement node", proc)
	}
}

func buildExpr(proc string, n ExprNode) (ast.Expr, error) {
	switch {
	case n.Int != nil:
		return &ast.Lit{Value: value.Int(*n.Int)}, nil
	case n.Float != nil:
		return &ast.Lit{Value: value.Float(*n.Float)}, nil
	case n.Str != nil:
		return &ast.Lit{Value: value.Str(*n.Str)}, nil
	case n.Bool != nil:
		return &ast.Lit{Value: value.Bool(*n.Bool)}, nil
	case n.Null:
		return &ast.Lit{Value: value.Null{}}, nil
	case n.Ref != nil:
		return &ast.Ref{Name: *n.Ref}, nil
	case n.Bin != nil:
		l, err := buildExpr(proc, n.Bin.L)
		if err != nil {
			return nil, err
		}
		r, err := buildExpr(proc, n.Bin.R)
		if err != nil {
			return nil, err
		}
		return &ast.Binary{Op: ast.BinOp(n.Bin.Op), L: l, R: r}, nil
	case n.Un != nil:
		x, err := buildExpr(proc, n.Un.X)
		if err != nil {
			return nil, err
		}
		return &ast.Unary{Op: ast.UnOp(n.Un.Op), X: x}, nil
	case n.Call != nil:
		args := make([]ast.Expr, 0, len(n.Call.Args))
		for _, a := range n.Call.Args {
			e, err := buildExpr(proc, a)
			if err != nil {
				return nil, err
			}
			args = append(args, e)
		}
		return &ast.Call{Name: n.Call.Name, Args: args}, nil
	case n.Field != nil:
		x, err := buildExpr(proc, n.Field.X)
		if err != nil {
			return nil, err
		}
		return &ast.Field{X: x, Name: n.Field.Name}, nil
	case n.Object != nil || n.Array != nil:
		v, err := n.Literal()
		if err != nil {
			return nil, err
		}
		return &ast.Lit{Value: v}, nil
	default:
		return nil, fmt.Errorf("proc %s: empty expression node", proc)
	}
}

// Literal evaluates an expression node holding only literal forms, for
// drive-step arguments.
func (n ExprNode) Literal() (value.Value, error) {
	switch {
	case n.Int != nil:
		return value.Int(*n.Int), nil
	case n.Float != nil:
		return value.Float(*n.Float), nil
	case n.Str != nil:
		return value.Str(*n.Str), nil
	case n.Bool != nil:
		return value.Bool(*n.Bool), nil
	case n.Null:
		return value.Null{}, nil
	case n.Object != nil:
		fields := make(map[string]value.Value, len(n.Object.Fields))
		for name, f := range n.Object.Fields {
			v, err := f.Literal()
			if err != nil {
				return nil, err
			}
			fields[name] = v
		}
		return &value.Object{TypeName: n.Object.TypeName, Fields: fields}, nil
	case n.Array != nil:
		arr := make(value.Array, 0, len(n.Array))
		for _, e := range n.Array {
			v, err := e.Literal()
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		return arr, nil
	default:
		return nil, fmt.Errorf("expression is not a literal")
	}
}
