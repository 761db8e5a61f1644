package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"cuelang.org/go/cue/ast"
	"cuelang.org/go/cue/parser"
	"cuelang.org/go/cue/token"

	"github.com/roach88/rxnsim/internal/ir"
)

// ParseFormula parses an infix math string into a symbolic tree.
//
// Formulas use CUE expression syntax, so the CUE parser does the lexing and
// precedence work:
//
//	k1 * A * B / (Km + A)
//	piecewise(1, time > 10, 0)
//	pow(S, n) / (pow(K, n) + pow(S, n))
//	A > 5 && !(B < 1)
//
// Power has no operator form; use pow(base, exp). Identifiers are NFC
// normalized. Names of built-in constants (pi, exponentiale, true, false,
// infinity, notanumber, avogadro) and the time symbol are recognized.
func ParseFormula(src string) (*ir.ASTNode, error) {
	if strings.TrimSpace(src) == "" {
		return nil, fmt.Errorf("empty formula")
	}
	expr, err := parser.ParseExpr("formula", src)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", src, err)
	}
	node, err := convertExpr(expr)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", src, err)
	}
	return node, nil
}

// MustParseFormula is like ParseFormula but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustParseFormula(src string) *ir.ASTNode {
	n, err := ParseFormula(src)
	if err != nil {
		panic(err)
	}
	return n
}

var binaryKinds = map[token.Token]ir.ASTKind{
	token.ADD:  ir.ASTPlus,
	token.SUB:  ir.ASTMinus,
	token.MUL:  ir.ASTTimes,
	token.QUO:  ir.ASTDivide,
	token.LAND: ir.ASTAnd,
	token.LOR:  ir.ASTOr,
	token.EQL:  ir.ASTEq,
	token.NEQ:  ir.ASTNeq,
	token.LSS:  ir.ASTLt,
	token.LEQ:  ir.ASTLeq,
	token.GTR:  ir.ASTGt,
	token.GEQ:  ir.ASTGeq,
}

// callKinds maps function-call spellings onto operator kinds.
var callKinds = map[string]ir.ASTKind{
	"pow":       ir.ASTPower,
	"power":     ir.ASTPower,
	"piecewise": ir.ASTPiecewise,
	"xor":       ir.ASTXor,
	"and":       ir.ASTAnd,
	"or":        ir.ASTOr,
	"not":       ir.ASTNot,
	"plus":      ir.ASTPlus,
	"times":     ir.ASTTimes,
	"eq":        ir.ASTEq,
	"neq":       ir.ASTNeq,
	"lt":        ir.ASTLt,
	"leq":       ir.ASTLeq,
	"gt":        ir.ASTGt,
	"geq":       ir.ASTGeq,
	"delay":     ir.ASTDelay,
}

// flattenable operators are associative and become n-ary nodes.
var flattenable = map[ir.ASTKind]bool{
	ir.ASTPlus:  true,
	ir.ASTTimes: true,
	ir.ASTAnd:   true,
	ir.ASTOr:    true,
}

func convertExpr(e ast.Expr) (*ir.ASTNode, error) {
	switch x := e.(type) {
	case *ast.ParenExpr:
		return convertExpr(x.X)

	case *ast.BasicLit:
		return convertLiteral(x)

	case *ast.Ident:
		return convertIdent(x.Name), nil

	case *ast.UnaryExpr:
		operand, err := convertExpr(x.X)
		if err != nil {
			return nil, err
		}
		switch x.Op {
		case token.ADD:
			return operand, nil
		case token.SUB:
			if operand.Kind == ir.ASTNumber {
				return ir.Num(-operand.Value), nil
			}
			return ir.Op(ir.ASTMinus, operand), nil
		case token.NOT:
			return ir.Op(ir.ASTNot, operand), nil
		}
		return nil, fmt.Errorf("unsupported unary operator %s", x.Op)

	case *ast.BinaryExpr:
		kind, ok := binaryKinds[x.Op]
		if !ok {
			return nil, fmt.Errorf("unsupported operator %s", x.Op)
		}
		left, err := convertExpr(x.X)
		if err != nil {
			return nil, err
		}
		right, err := convertExpr(x.Y)
		if err != nil {
			return nil, err
		}
		if flattenable[kind] {
			var children []*ir.ASTNode
			for _, side := range []*ir.ASTNode{left, right} {
				if side.Kind == kind {
					children = append(children, side.Children...)
				} else {
					children = append(children, side)
				}
			}
			return ir.Op(kind, children...), nil
		}
		return ir.Op(kind, left, right), nil

	case *ast.CallExpr:
		fun, ok := x.Fun.(*ast.Ident)
		if !ok {
			return nil, fmt.Errorf("call target must be a plain name")
		}
		args := make([]*ir.ASTNode, len(x.Args))
		for i, a := range x.Args {
			arg, err := convertExpr(a)
			if err != nil {
				return nil, err
			}
			args[i] = arg
		}
		name := ir.NormalizeID(fun.Name)
		if kind, ok := callKinds[name]; ok {
			if kind == ir.ASTPower && len(args) != 2 {
				return nil, fmt.Errorf("%s expects 2 arguments, got %d", name, len(args))
			}
			if kind == ir.ASTNot && len(args) != 1 {
				return nil, fmt.Errorf("not expects 1 argument, got %d", len(args))
			}
			return ir.Op(kind, args...), nil
		}
		if arity, ok := ir.BuiltinFunctions[name]; ok {
			if !arity.Accepts(len(args)) {
				return nil, fmt.Errorf("%s: wrong number of arguments (%d)", name, len(args))
			}
			return ir.Fn(name, args...), nil
		}
		return ir.Call(name, args...), nil
	}

	return nil, fmt.Errorf("unsupported expression %T", e)
}

func convertLiteral(lit *ast.BasicLit) (*ir.ASTNode, error) {
	switch lit.Kind {
	case token.TRUE:
		return &ir.ASTNode{Kind: ir.ASTConstant, Name: "true"}, nil
	case token.FALSE:
		return &ir.ASTNode{Kind: ir.ASTConstant, Name: "false"}, nil
	case token.INT, token.FLOAT:
		v, err := parseNumber(lit.Value)
		if err != nil {
			return nil, err
		}
		return ir.Num(v), nil
	}
	return nil, fmt.Errorf("unsupported literal %s", lit.Value)
}

func parseNumber(s string) (float64, error) {
	clean := strings.ReplaceAll(s, "_", "")
	if v, err := strconv.ParseFloat(clean, 64); err == nil {
		return v, nil
	}
	// Hex, octal and binary integer forms.
	if i, err := strconv.ParseInt(clean, 0, 64); err == nil {
		return float64(i), nil
	}
	return 0, fmt.Errorf("invalid number %q", s)
}

func convertIdent(name string) *ir.ASTNode {
	name = ir.NormalizeID(name)
	switch name {
	case "time":
		return ir.Time()
	case "Inf", "INF", "inf", "Infinity":
		return &ir.ASTNode{Kind: ir.ASTConstant, Name: "infinity"}
	case "NaN", "nan":
		return &ir.ASTNode{Kind: ir.ASTConstant, Name: "notanumber"}
	}
	if ir.Constants[name] {
		return &ir.ASTNode{Kind: ir.ASTConstant, Name: name}
	}
	return ir.Sym(name)
}
