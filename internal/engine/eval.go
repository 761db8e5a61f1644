package engine

import (
	"math"
)

// EvalState is everything a compiled node may read besides the graph
// itself. The stamp is passed explicitly on every call; nodes never consult
// ambient state.
type EvalState struct {
	Stamp int64
	Time  float64
	Y     []float64
}

type evalFunc func(g *Graph, n *node, st *EvalState) float64

// dispatch is indexed by NodeKind. It is filled in init because several
// entries reach back into Graph.Double.
var dispatch [numKinds]evalFunc

func init() {
	dispatch = [numKinds]evalFunc{
		kindNumber:      func(_ *Graph, n *node, _ *EvalState) float64 { return n.value },
		kindTime:        func(_ *Graph, _ *node, st *EvalState) float64 { return st.Time },
		kindCompartment: evalStateSlot,
		kindParameter:   evalStateSlot,
		kindSpecies:     evalSpecies,
		kindLocal:       func(_ *Graph, n *node, _ *EvalState) float64 { return n.value },
		kindSpeciesRef: func(g *Graph, n *node, st *EvalState) float64 {
			return g.stoichiometry(int(n.slot), st)
		},
		kindReaction: func(g *Graph, n *node, st *EvalState) float64 {
			return g.Double(g.laws[n.slot], st)
		},
		kindCall: func(g *Graph, n *node, st *EvalState) float64 {
			return g.Double(n.children[0], st)
		},
		kindPlus:  evalPlus,
		kindMinus: func(g *Graph, n *node, st *EvalState) float64 { return g.arg(n, 0, st) - g.arg(n, 1, st) },
		kindNeg:   func(g *Graph, n *node, st *EvalState) float64 { return -g.arg(n, 0, st) },
		kindTimes: evalTimes,
		kindDivide: func(g *Graph, n *node, st *EvalState) float64 {
			return g.arg(n, 0, st) / g.arg(n, 1, st)
		},
		kindPower: func(g *Graph, n *node, st *EvalState) float64 {
			return power(g.arg(n, 0, st), g.arg(n, 1, st))
		},
		kindFunction: evalFunction,
		kindEq:       relational(func(a, b float64) bool { return a == b }),
		kindNeq:      relational(func(a, b float64) bool { return a != b }),
		kindLt:       relational(func(a, b float64) bool { return a < b }),
		kindLeq:      relational(func(a, b float64) bool { return a <= b }),
		kindGt:       relational(func(a, b float64) bool { return a > b }),
		kindGeq:      relational(func(a, b float64) bool { return a >= b }),
		kindAnd:      evalAnd,
		kindOr:       evalOr,
		kindXor:      evalXor,
		kindNot:      func(g *Graph, n *node, st *EvalState) float64 { return boolValue(g.arg(n, 0, st) == 0) },
		kindPiecewise: evalPiecewise,
	}
}

// Double returns the value of id at st.Stamp. A node already evaluated at
// that stamp, or a constant node evaluated since the last reset, is served
// from cache without touching its children.
func (g *Graph) Double(id NodeID, st *EvalState) float64 {
	n := &g.nodes[id]
	if n.evaluated && (n.constant || n.stamp == st.Stamp) {
		g.cacheHits++
		return n.cached
	}
	g.evaluations++
	v := dispatch[n.kind](g, n, st)
	n.cached = v
	n.stamp = st.Stamp
	n.evaluated = true
	return v
}

// Bool returns the truth value of id. Any non-zero value is true.
func (g *Graph) Bool(id NodeID, st *EvalState) bool {
	return g.Double(id, st) != 0
}

func (g *Graph) arg(n *node, i int, st *EvalState) float64 {
	return g.Double(n.children[i], st)
}

// stoichiometry resolves a participant's current multiplicity: a state
// vector slot when a rate rule governs it, then a value set by a rule or
// event, then its stoichiometryMath, then the declared constant.
func (g *Graph) stoichiometry(i int, st *EvalState) float64 {
	r := &g.refs[i]
	switch {
	case r.slot >= 0:
		return st.Y[r.slot]
	case r.overridden:
		return r.override
	case r.math != NoNode:
		return g.Double(r.math, st)
	}
	return r.fixed
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func evalStateSlot(_ *Graph, n *node, st *EvalState) float64 {
	return st.Y[n.slot]
}

// evalSpecies reads a species in the representation math expects. When
// the compartment size is exactly zero the raw state value is returned.
func evalSpecies(g *Graph, n *node, st *EvalState) float64 {
	return g.layout.fromStored(int(n.slot), st.Y[n.slot], st.Y)
}

func evalPlus(g *Graph, n *node, st *EvalState) float64 {
	sum := 0.0
	for _, c := range n.children {
		sum += g.Double(c, st)
	}
	return sum
}

func evalTimes(g *Graph, n *node, st *EvalState) float64 {
	product := 1.0
	for _, c := range n.children {
		product *= g.Double(c, st)
	}
	return product
}

// power applies the sign convention for negative bases raised to
// non-integer exponents: -(|base|^exp) instead of NaN.
func power(base, exp float64) float64 {
	if base < 0 && exp != math.Trunc(exp) && !math.IsInf(exp, 0) && !math.IsNaN(exp) {
		return -math.Pow(-base, exp)
	}
	return math.Pow(base, exp)
}

func relational(cmp func(a, b float64) bool) evalFunc {
	return func(g *Graph, n *node, st *EvalState) float64 {
		return boolValue(cmp(g.arg(n, 0, st), g.arg(n, 1, st)))
	}
}

func evalAnd(g *Graph, n *node, st *EvalState) float64 {
	for _, c := range n.children {
		if g.Double(c, st) == 0 {
			return 0
		}
	}
	return 1
}

func evalOr(g *Graph, n *node, st *EvalState) float64 {
	for _, c := range n.children {
		if g.Double(c, st) != 0 {
			return 1
		}
	}
	return 0
}

func evalXor(g *Graph, n *node, st *EvalState) float64 {
	odd := false
	for _, c := range n.children {
		if g.Double(c, st) != 0 {
			odd = !odd
		}
	}
	return boolValue(odd)
}

// evalPiecewise walks (value, condition) pairs and returns the first value
// whose condition holds, else the trailing otherwise value, else 0.
func evalPiecewise(g *Graph, n *node, st *EvalState) float64 {
	pairs := len(n.children) / 2
	for i := 0; i < pairs; i++ {
		if g.Double(n.children[2*i+1], st) != 0 {
			return g.Double(n.children[2*i], st)
		}
	}
	if len(n.children)%2 == 1 {
		return g.Double(n.children[len(n.children)-1], st)
	}
	return 0
}

func evalFunction(g *Graph, n *node, st *EvalState) float64 {
	x := g.arg(n, 0, st)
	switch n.op {
	case "abs":
		return math.Abs(x)
	case "exp":
		return math.Exp(x)
	case "ln":
		return math.Log(x)
	case "log":
		if len(n.children) == 2 {
			return math.Log(g.arg(n, 1, st)) / math.Log(x)
		}
		return math.Log10(x)
	case "log10":
		return math.Log10(x)
	case "sqrt":
		return math.Sqrt(x)
	case "root":
		return power(g.arg(n, 1, st), 1/x)
	case "floor":
		return math.Floor(x)
	case "ceil", "ceiling":
		return math.Ceil(x)
	case "factorial":
		return math.Gamma(math.Floor(x) + 1)
	case "sin":
		return math.Sin(x)
	case "cos":
		return math.Cos(x)
	case "tan":
		return math.Tan(x)
	case "sec":
		return 1 / math.Cos(x)
	case "csc":
		return 1 / math.Sin(x)
	case "cot":
		return 1 / math.Tan(x)
	case "sinh":
		return math.Sinh(x)
	case "cosh":
		return math.Cosh(x)
	case "tanh":
		return math.Tanh(x)
	case "arcsin":
		return math.Asin(x)
	case "arccos":
		return math.Acos(x)
	case "arctan":
		return math.Atan(x)
	case "arcsinh":
		return math.Asinh(x)
	case "arccosh":
		return math.Acosh(x)
	case "arctanh":
		return math.Atanh(x)
	case "min":
		for i := 1; i < len(n.children); i++ {
			x = math.Min(x, g.arg(n, i, st))
		}
		return x
	case "max":
		for i := 1; i < len(n.children); i++ {
			x = math.Max(x, g.arg(n, i, st))
		}
		return x
	case "rem":
		return math.Mod(x, g.arg(n, 1, st))
	case "quotient":
		return math.Trunc(x / g.arg(n, 1, st))
	}
	return math.NaN()
}
