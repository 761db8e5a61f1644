package engine

import (
	"github.com/roach88/rxnsim/internal/ir"
)

// NodeID addresses a compiled node in a Graph's arena.
type NodeID int32

// NoNode marks an absent optional expression.
const NoNode NodeID = -1

// NodeKind is the closed set of compiled node variants. Evaluation
// dispatches on it through a single table (see eval.go).
type NodeKind uint8

const (
	kindNumber NodeKind = iota // literal or built-in constant (value)
	kindTime

	// References into the state vector (slot).
	kindCompartment
	kindSpecies
	kindParameter

	kindLocal      // reaction-local parameter (value, mutable)
	kindSpeciesRef // species reference stoichiometry (slot = ref index)
	kindReaction   // reaction velocity (slot = reaction index)
	kindCall       // user function application (child = body root)

	kindPlus
	kindMinus
	kindNeg
	kindTimes
	kindDivide
	kindPower
	kindFunction // built-in math function (op)

	kindEq
	kindNeq
	kindLt
	kindLeq
	kindGt
	kindGeq

	kindAnd
	kindOr
	kindXor
	kindNot

	kindPiecewise

	numKinds
)

var kindNames = [numKinds]string{
	kindNumber:      "number",
	kindTime:        "time",
	kindCompartment: "compartment",
	kindSpecies:     "species",
	kindParameter:   "parameter",
	kindLocal:       "local",
	kindSpeciesRef:  "speciesref",
	kindReaction:    "reaction",
	kindCall:        "call",
	kindPlus:        "plus",
	kindMinus:       "minus",
	kindNeg:         "neg",
	kindTimes:       "times",
	kindDivide:      "divide",
	kindPower:       "power",
	kindFunction:    "function",
	kindEq:          "eq",
	kindNeq:         "neq",
	kindLt:          "lt",
	kindLeq:         "leq",
	kindGt:          "gt",
	kindGeq:         "geq",
	kindAnd:         "and",
	kindOr:          "or",
	kindXor:         "xor",
	kindNot:         "not",
	kindPiecewise:   "piecewise",
}

func (k NodeKind) String() string {
	if k < numKinds {
		return kindNames[k]
	}
	return "invalid"
}

// node is one arena entry. Children are arena indices, never pointers.
type node struct {
	kind     NodeKind
	op       string // built-in function name
	children []NodeID
	slot     int32
	value    float64

	// constant nodes are computed once and then served from cache until
	// the caches are reset.
	constant bool

	evaluated bool
	stamp     int64
	cached    float64

	// key is the merge key; empty for unmergeable nodes.
	key string
}

// stoichRef is the runtime record of one reaction participant.
type stoichRef struct {
	id       string
	reaction int

	// slot is the state vector slot of a rate-rule-governed reference, or
	// -1.
	slot int

	// math is the compiled stoichiometryMath, or NoNode.
	math NodeID

	// fixed is the declared stoichiometry (1 when unset).
	fixed    float64
	constant bool

	// override is set by assignment rules and events that target a
	// reference without a state vector slot.
	override   float64
	overridden bool
}

// symbolKind says what a name resolves to during compilation.
type symbolKind int

const (
	symState symbolKind = iota + 1
	symSpeciesRef
	symReaction
)

type symbol struct {
	kind  symbolKind
	index int
}

// Graph is the arena of compiled nodes for one model, plus the side tables
// the nodes read from (layout, stoichiometries, kinetic laws).
type Graph struct {
	nodes  []node
	merge  map[string]NodeID
	layout *Layout

	symbols map[string]symbol
	funcs   map[string]ir.FunctionDefinition

	refs []stoichRef
	laws []NodeID // kinetic law root per reaction

	evaluations int64
	cacheHits   int64
}

// NewGraph creates an empty graph over the given layout. Every state slot
// is resolvable by its identifier.
func NewGraph(layout *Layout, funcs []ir.FunctionDefinition) *Graph {
	g := &Graph{
		merge:   make(map[string]NodeID),
		layout:  layout,
		symbols: make(map[string]symbol),
		funcs:   make(map[string]ir.FunctionDefinition),
	}
	for i, s := range layout.Slots {
		if s.Kind == SlotStoichiometry {
			continue
		}
		g.symbols[s.ID] = symbol{kind: symState, index: i}
	}
	for _, f := range funcs {
		g.funcs[f.ID] = f
	}
	return g
}

// addRef registers a reaction participant and returns its index.
func (g *Graph) addRef(r stoichRef) int {
	g.refs = append(g.refs, r)
	idx := len(g.refs) - 1
	if r.id != "" {
		g.symbols[r.id] = symbol{kind: symSpeciesRef, index: idx}
	}
	return idx
}

// addReaction registers a reaction id so math can read its velocity.
func (g *Graph) addReaction(id string) int {
	g.laws = append(g.laws, NoNode)
	idx := len(g.laws) - 1
	g.symbols[id] = symbol{kind: symReaction, index: idx}
	return idx
}

// Len returns the number of compiled nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Evaluations returns how many times a node was recomputed.
func (g *Graph) Evaluations() int64 {
	return g.evaluations
}

// CacheHits returns how many evaluations were served from cache.
func (g *Graph) CacheHits() int64 {
	return g.cacheHits
}

// Kind returns the variant of a compiled node.
func (g *Graph) Kind(id NodeID) NodeKind {
	return g.nodes[id].kind
}

// Children returns the child nodes of id.
func (g *Graph) Children(id NodeID) []NodeID {
	return g.nodes[id].children
}

// IsConstant reports whether id is evaluated once per reset.
func (g *Graph) IsConstant(id NodeID) bool {
	return g.nodes[id].constant
}

// ResetCaches forgets every cached value, including constant ones.
func (g *Graph) ResetCaches() {
	for i := range g.nodes {
		g.nodes[i].evaluated = false
		g.nodes[i].stamp = 0
	}
}

// resetOverrides drops stoichiometry values set by rules and events.
func (g *Graph) resetOverrides() {
	for i := range g.refs {
		g.refs[i].overridden = false
	}
}

func (g *Graph) alloc(n node) NodeID {
	g.nodes = append(g.nodes, n)
	id := NodeID(len(g.nodes) - 1)
	if n.key != "" {
		g.merge[n.key] = id
	}
	return id
}
