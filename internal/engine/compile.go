package engine

import (
	"math"
	"sort"
	"strings"

	"github.com/roach88/rxnsim/internal/ir"
)

// maxCallDepth bounds nested user function expansion.
const maxCallDepth = 64

// Scope carries the names visible while compiling one expression.
type Scope struct {
	// Reaction is the id of the reaction whose kinetic law is compiled.
	Reaction string

	// Locals maps the reaction's local parameter names to their nodes.
	Locals map[string]NodeID

	formals map[string]NodeID
	calling []string
}

var constantValues = map[string]float64{
	"pi":           math.Pi,
	"exponentiale": math.E,
	"true":         1,
	"false":        0,
	"infinity":     math.Inf(1),
	"notanumber":   math.NaN(),
	"avogadro":     6.02214076e23,
}

var relationalKinds = map[ir.ASTKind]NodeKind{
	ir.ASTEq:  kindEq,
	ir.ASTNeq: kindNeq,
	ir.ASTLt:  kindLt,
	ir.ASTLeq: kindLeq,
	ir.ASTGt:  kindGt,
	ir.ASTGeq: kindGeq,
}

// NewLocal allocates a reaction-local parameter node. Local nodes are never
// merged: each reaction owns its own instance.
func (g *Graph) NewLocal(value float64) NodeID {
	return g.alloc(node{kind: kindLocal, value: value, slot: -1})
}

// SetLocal changes the value of a local parameter node.
func (g *Graph) SetLocal(id NodeID, value float64) {
	g.nodes[id].value = value
}

// Compile turns a symbolic tree into a compiled node.
//
// With merging allowed, a subexpression whose printed form and
// local-parameter bindings match an already compiled node reuses that node.
// Expressions that read different reaction-local parameters never merge,
// even when they print identically.
func (g *Graph) Compile(n *ir.ASTNode, sc *Scope, merging bool) (NodeID, error) {
	if sc == nil {
		sc = &Scope{}
	}
	if n == nil {
		return NoNode, newModelError(ErrCodeMissingMath, sc.Reaction, "missing math")
	}

	var key string
	if merging {
		key = mergeKey(n, sc)
		if id, ok := g.merge[key]; ok {
			return id, nil
		}
	}
	return g.compileNode(n, sc, merging, key)
}

// mergeKey is the printed form plus the local bindings the tree reads.
func mergeKey(n *ir.ASTNode, sc *Scope) string {
	key := n.String()
	if len(sc.Locals) == 0 {
		return key
	}
	var bound []string
	for _, name := range n.Names() {
		if _, ok := sc.Locals[name]; ok {
			bound = append(bound, name+"@"+sc.Reaction)
		}
	}
	if len(bound) == 0 {
		return key
	}
	sort.Strings(bound)
	return key + "|" + strings.Join(bound, ",")
}

func (g *Graph) compileChildren(n *ir.ASTNode, sc *Scope, merging bool) ([]NodeID, bool, error) {
	children := make([]NodeID, len(n.Children))
	constant := len(n.Children) > 0
	for i, c := range n.Children {
		id, err := g.Compile(c, sc, merging)
		if err != nil {
			return nil, false, err
		}
		children[i] = id
		constant = constant && g.nodes[id].constant
	}
	return children, constant, nil
}

func (g *Graph) compileNode(n *ir.ASTNode, sc *Scope, merging bool, key string) (NodeID, error) {
	switch n.Kind {
	case ir.ASTNumber:
		return g.alloc(node{kind: kindNumber, value: n.Value, constant: true, key: key}), nil

	case ir.ASTConstant:
		v, ok := constantValues[n.Name]
		if !ok {
			return NoNode, newModelError(ErrCodeUnsupportedSymbol, sc.Reaction, "unknown constant %q", n.Name)
		}
		return g.alloc(node{kind: kindNumber, value: v, constant: true, key: key}), nil

	case ir.ASTTime:
		return g.alloc(node{kind: kindTime, key: key}), nil

	case ir.ASTName:
		return g.compileName(n.Name, sc, key)

	case ir.ASTDelay:
		return NoNode, newModelError(ErrCodeUnsupportedSymbol, sc.Reaction, "delay() is not supported")

	case ir.ASTCall:
		return g.compileCall(n, sc, merging, key)
	}

	kind, err := operatorKind(n)
	if err != nil {
		if me, ok := err.(*ModelError); ok && me.ElementID == "" {
			me.ElementID = sc.Reaction
		}
		return NoNode, err
	}
	children, constant, err := g.compileChildren(n, sc, merging)
	if err != nil {
		return NoNode, err
	}
	return g.alloc(node{
		kind:     kind,
		op:       n.Name,
		children: children,
		constant: constant,
		key:      key,
	}), nil
}

// operatorKind maps an operator tree node to its compiled kind, checking
// the argument count.
func operatorKind(n *ir.ASTNode) (NodeKind, error) {
	argc := len(n.Children)
	arity := func(kind NodeKind, ok bool) (NodeKind, error) {
		if !ok {
			return 0, newModelError(ErrCodeArity, "", "%s: wrong number of arguments (%d)", n.Kind, argc)
		}
		return kind, nil
	}

	switch n.Kind {
	case ir.ASTPlus:
		return kindPlus, nil
	case ir.ASTTimes:
		return kindTimes, nil
	case ir.ASTMinus:
		if argc == 1 {
			return kindNeg, nil
		}
		return arity(kindMinus, argc == 2)
	case ir.ASTDivide:
		return arity(kindDivide, argc == 2)
	case ir.ASTPower:
		return arity(kindPower, argc == 2)
	case ir.ASTAnd:
		return kindAnd, nil
	case ir.ASTOr:
		return kindOr, nil
	case ir.ASTXor:
		return kindXor, nil
	case ir.ASTNot:
		return arity(kindNot, argc == 1)
	case ir.ASTPiecewise:
		return arity(kindPiecewise, argc >= 1)
	case ir.ASTFunction:
		a, ok := ir.BuiltinFunctions[n.Name]
		if !ok {
			return 0, newModelError(ErrCodeUnsupportedSymbol, "", "unknown built-in function %q", n.Name)
		}
		return arity(kindFunction, a.Accepts(argc))
	}
	if kind, ok := relationalKinds[n.Kind]; ok {
		return arity(kind, argc == 2)
	}
	return 0, newModelError(ErrCodeUnsupportedSymbol, "", "unsupported operator %s", n.Kind)
}

func (g *Graph) compileName(name string, sc *Scope, key string) (NodeID, error) {
	if id, ok := sc.formals[name]; ok {
		return id, nil
	}
	if sc.formals != nil {
		return NoNode, newModelError(ErrCodeUnknownSymbol, "",
			"function body references %q, which is not an argument", name)
	}
	if id, ok := sc.Locals[name]; ok {
		return id, nil
	}

	sym, ok := g.symbols[name]
	if !ok {
		return NoNode, newModelError(ErrCodeUnknownSymbol, sc.Reaction, "unknown symbol %q", name)
	}
	switch sym.kind {
	case symSpeciesRef:
		return g.alloc(node{kind: kindSpeciesRef, slot: int32(sym.index), key: key}), nil
	case symReaction:
		return g.alloc(node{kind: kindReaction, slot: int32(sym.index), key: key}), nil
	}

	slot := g.layout.Slots[sym.index]
	n := node{slot: int32(sym.index), constant: slot.Constant, key: key}
	switch slot.Kind {
	case SlotCompartment:
		n.kind = kindCompartment
	case SlotSpecies:
		n.kind = kindSpecies
		if slot.CompartmentSlot >= 0 && !g.layout.Slots[slot.CompartmentSlot].Constant {
			n.constant = false
		}
	default:
		n.kind = kindParameter
	}
	return g.alloc(n), nil
}

// compileCall expands a user function: the actual arguments are compiled
// (and merged) as usual, then a fresh copy of the body is compiled with the
// formals bound to the argument nodes. Body nodes are never merged since
// another call site binds different arguments.
func (g *Graph) compileCall(n *ir.ASTNode, sc *Scope, merging bool, key string) (NodeID, error) {
	f, ok := g.funcs[n.Name]
	if !ok {
		return NoNode, newModelError(ErrCodeUnknownSymbol, sc.Reaction, "unknown function %q", n.Name)
	}
	if len(n.Children) != len(f.Args) {
		return NoNode, newModelError(ErrCodeArity, sc.Reaction,
			"%s expects %d arguments, got %d", n.Name, len(f.Args), len(n.Children))
	}
	if len(sc.calling) >= maxCallDepth {
		return NoNode, newModelError(ErrCodeUnsupportedSymbol, sc.Reaction,
			"function %q nests deeper than %d calls", n.Name, maxCallDepth)
	}
	for _, active := range sc.calling {
		if active == n.Name {
			return NoNode, newModelError(ErrCodeUnsupportedSymbol, sc.Reaction,
				"function %q is recursive", n.Name)
		}
	}

	args, _, err := g.compileChildren(n, sc, merging)
	if err != nil {
		return NoNode, err
	}
	body := &Scope{
		Reaction: sc.Reaction,
		formals:  make(map[string]NodeID, len(args)),
		calling:  append(append([]string(nil), sc.calling...), n.Name),
	}
	for i, formal := range f.Args {
		body.formals[formal] = args[i]
	}
	root, err := g.Compile(f.Body, body, false)
	if err != nil {
		return NoNode, err
	}
	return g.alloc(node{
		kind:     kindCall,
		op:       n.Name,
		children: []NodeID{root},
		constant: g.nodes[root].constant,
		key:      key,
	}), nil
}
