package ir

import (
	"strconv"
	"strings"
)

// ASTKind identifies the operator or leaf type of an ASTNode.
type ASTKind int

const (
	// ASTNumber is a numeric literal (Value).
	ASTNumber ASTKind = iota + 1
	// ASTName references a model symbol, a local parameter or a function
	// formal argument (Name).
	ASTName
	// ASTTime is the simulation time symbol.
	ASTTime
	// ASTConstant is a named built-in constant (Name: pi, exponentiale,
	// true, false, infinity, notanumber, avogadro).
	ASTConstant

	ASTPlus
	ASTMinus // binary subtraction, or negation with a single child
	ASTTimes
	ASTDivide
	ASTPower

	// ASTFunction is a built-in math function (Name: exp, ln, sqrt, ...).
	ASTFunction
	// ASTCall invokes a user-defined function definition (Name).
	ASTCall

	ASTEq
	ASTNeq
	ASTLt
	ASTLeq
	ASTGt
	ASTGeq

	ASTAnd
	ASTOr
	ASTXor
	ASTNot

	// ASTPiecewise holds (value, condition)* pairs and an optional trailing
	// otherwise value.
	ASTPiecewise

	// ASTDelay is the delay csymbol. The runtime does not support it; it
	// exists so loaders can report it precisely.
	ASTDelay
)

var astKindNames = map[ASTKind]string{
	ASTNumber:    "number",
	ASTName:      "name",
	ASTTime:      "time",
	ASTConstant:  "constant",
	ASTPlus:      "plus",
	ASTMinus:     "minus",
	ASTTimes:     "times",
	ASTDivide:    "divide",
	ASTPower:     "power",
	ASTFunction:  "function",
	ASTCall:      "call",
	ASTEq:        "eq",
	ASTNeq:       "neq",
	ASTLt:        "lt",
	ASTLeq:       "leq",
	ASTGt:        "gt",
	ASTGeq:       "geq",
	ASTAnd:       "and",
	ASTOr:        "or",
	ASTXor:       "xor",
	ASTNot:       "not",
	ASTPiecewise: "piecewise",
	ASTDelay:     "delay",
}

// String returns the lower-case kind name.
func (k ASTKind) String() string {
	if s, ok := astKindNames[k]; ok {
		return s
	}
	return "ASTKind(" + strconv.Itoa(int(k)) + ")"
}

// IsRelational reports whether k is a comparison operator.
func (k ASTKind) IsRelational() bool {
	return k >= ASTEq && k <= ASTGeq
}

// IsLogical reports whether k is a boolean connective.
func (k ASTKind) IsLogical() bool {
	return k >= ASTAnd && k <= ASTNot
}

// IsBoolean reports whether nodes of this kind produce a truth value.
func (k ASTKind) IsBoolean() bool {
	return k.IsRelational() || k.IsLogical()
}

var relationalSymbols = map[ASTKind]string{
	ASTEq:  "==",
	ASTNeq: "!=",
	ASTLt:  "<",
	ASTLeq: "<=",
	ASTGt:  ">",
	ASTGeq: ">=",
}

// ASTNode is one node of a symbolic math tree.
type ASTNode struct {
	Kind     ASTKind    `json:"kind"`
	Name     string     `json:"name,omitempty"`
	Value    float64    `json:"value,omitempty"`
	Children []*ASTNode `json:"children,omitempty"`
}

// Num builds a numeric literal.
func Num(v float64) *ASTNode {
	return &ASTNode{Kind: ASTNumber, Value: v}
}

// Sym builds a symbol reference.
func Sym(name string) *ASTNode {
	return &ASTNode{Kind: ASTName, Name: name}
}

// Time builds the time symbol.
func Time() *ASTNode {
	return &ASTNode{Kind: ASTTime, Name: "time"}
}

// Op builds an operator node.
func Op(kind ASTKind, children ...*ASTNode) *ASTNode {
	return &ASTNode{Kind: kind, Children: children}
}

// Fn builds a built-in function application.
func Fn(name string, args ...*ASTNode) *ASTNode {
	return &ASTNode{Kind: ASTFunction, Name: name, Children: args}
}

// Call builds a user-defined function application.
func Call(name string, args ...*ASTNode) *ASTNode {
	return &ASTNode{Kind: ASTCall, Name: name, Children: args}
}

// Clone returns a deep copy of n.
func (n *ASTNode) Clone() *ASTNode {
	if n == nil {
		return nil
	}
	c := &ASTNode{Kind: n.Kind, Name: n.Name, Value: n.Value}
	if len(n.Children) > 0 {
		c.Children = make([]*ASTNode, len(n.Children))
		for i, child := range n.Children {
			c.Children[i] = child.Clone()
		}
	}
	return c
}

// Walk visits n and its descendants in pre-order. Returning false from fn
// stops descent into that node's children.
func (n *ASTNode) Walk(fn func(*ASTNode) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, child := range n.Children {
		child.Walk(fn)
	}
}

// Names returns the distinct symbol names referenced by n in first-seen
// order. Function names of ASTCall nodes are not included.
func (n *ASTNode) Names() []string {
	var names []string
	seen := make(map[string]bool)
	n.Walk(func(node *ASTNode) bool {
		if node.Kind == ASTName && !seen[node.Name] {
			seen[node.Name] = true
			names = append(names, node.Name)
		}
		return true
	})
	return names
}

// Contains reports whether n references the symbol name.
func (n *ASTNode) Contains(name string) bool {
	found := false
	n.Walk(func(node *ASTNode) bool {
		if node.Kind == ASTName && node.Name == name {
			found = true
		}
		return !found
	})
	return found
}

// String returns a fully parenthesized infix rendering of the tree. The
// rendering is deterministic and is parseable by compiler.ParseFormula.
func (n *ASTNode) String() string {
	if n == nil {
		return "<nil>"
	}
	var b strings.Builder
	n.write(&b)
	return b.String()
}

func (n *ASTNode) write(b *strings.Builder) {
	switch n.Kind {
	case ASTNumber:
		b.WriteString(FormatFloat(n.Value))
	case ASTName, ASTConstant:
		b.WriteString(n.Name)
	case ASTTime:
		b.WriteString("time")
	case ASTPlus:
		n.writeInfix(b, " + ")
	case ASTTimes:
		n.writeInfix(b, " * ")
	case ASTDivide:
		n.writeInfix(b, " / ")
	case ASTMinus:
		if len(n.Children) == 1 {
			b.WriteString("(-")
			n.Children[0].write(b)
			b.WriteByte(')')
			return
		}
		n.writeInfix(b, " - ")
	case ASTAnd:
		n.writeInfix(b, " && ")
	case ASTOr:
		n.writeInfix(b, " || ")
	case ASTNot:
		b.WriteString("!")
		n.writeArgs(b)
	case ASTPower:
		b.WriteString("pow")
		n.writeArgs(b)
	case ASTXor:
		b.WriteString("xor")
		n.writeArgs(b)
	case ASTPiecewise:
		b.WriteString("piecewise")
		n.writeArgs(b)
	case ASTDelay:
		b.WriteString("delay")
		n.writeArgs(b)
	case ASTFunction, ASTCall:
		b.WriteString(n.Name)
		n.writeArgs(b)
	default:
		if sym, ok := relationalSymbols[n.Kind]; ok {
			n.writeInfix(b, " "+sym+" ")
			return
		}
		b.WriteString(n.Kind.String())
		n.writeArgs(b)
	}
}

func (n *ASTNode) writeInfix(b *strings.Builder, sep string) {
	b.WriteByte('(')
	for i, child := range n.Children {
		if i > 0 {
			b.WriteString(sep)
		}
		child.write(b)
	}
	b.WriteByte(')')
}

func (n *ASTNode) writeArgs(b *strings.Builder) {
	b.WriteByte('(')
	for i, child := range n.Children {
		if i > 0 {
			b.WriteString(", ")
		}
		child.write(b)
	}
	b.WriteByte(')')
}

// FormatFloat renders v in the shortest form that round-trips.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
