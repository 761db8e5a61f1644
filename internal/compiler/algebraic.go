package compiler

import (
	"fmt"

	"github.com/roach88/rxnsim/internal/ir"
)

// AlgebraicConverter rewrites algebraic rules (0 = f(...)) as assignment
// rules. Each rule is matched to one free variable it mentions, then the
// variable is isolated symbolically.
//
// A variable is free when it is not constant, not already determined by an
// assignment or rate rule, and not a non-boundary species changed by
// reactions. Matching is a maximum bipartite matching over rules and free
// variables, visited in declaration order so the same model always yields
// the same assignment.
//
// Isolation handles a variable that occurs once, under any nesting of
// +, -, *, / and negation. Anything else is reported as an error.
type AlgebraicConverter struct{}

// NewAlgebraicConverter returns a converter.
func NewAlgebraicConverter() *AlgebraicConverter {
	return &AlgebraicConverter{}
}

// ConvertAlgebraic returns one assignment rule per algebraic rule of m, in
// algebraic-rule order.
func (c *AlgebraicConverter) ConvertAlgebraic(m *ir.Model) ([]ir.Rule, error) {
	var algebraic []ir.Rule
	for _, r := range m.Rules {
		if r.Kind == ir.RuleAlgebraic {
			algebraic = append(algebraic, r)
		}
	}
	if len(algebraic) == 0 {
		return nil, nil
	}

	free := freeVariables(m)
	candidates := make([][]string, len(algebraic))
	for i, r := range algebraic {
		for _, name := range r.Math.Names() {
			if free[name] {
				candidates[i] = append(candidates[i], name)
			}
		}
	}

	match, err := matchRules(candidates)
	if err != nil {
		return nil, err
	}

	out := make([]ir.Rule, len(algebraic))
	for i, r := range algebraic {
		variable := match[i]
		solved, err := isolate(r.Math, variable, ir.Num(0))
		if err != nil {
			return nil, fmt.Errorf("algebraic rule %d (%s = 0): %w", i, r.Math, err)
		}
		out[i] = ir.Rule{Kind: ir.RuleAssignment, Variable: variable, Math: solved}
	}
	return out, nil
}

// freeVariables returns the symbols an algebraic rule may determine.
func freeVariables(m *ir.Model) map[string]bool {
	free := make(map[string]bool)
	for _, c := range m.Compartments {
		if !c.Constant {
			free[c.ID] = true
		}
	}
	for _, s := range m.Species {
		if !s.Constant {
			free[s.ID] = true
		}
	}
	for _, p := range m.Parameters {
		if !p.Constant {
			free[p.ID] = true
		}
	}
	boundary := make(map[string]bool)
	for _, s := range m.Species {
		boundary[s.ID] = s.BoundaryCondition
	}
	for _, r := range m.Reactions {
		for _, refs := range [][]ir.SpeciesReference{r.Reactants, r.Products} {
			for _, ref := range refs {
				if ref.ID != "" && !ref.Constant {
					free[ref.ID] = true
				}
				if !boundary[ref.Species] {
					delete(free, ref.Species)
				}
			}
		}
	}
	for _, r := range m.Rules {
		if r.Kind != ir.RuleAlgebraic {
			delete(free, r.Variable)
		}
	}
	return free
}

// matchRules finds a variable for every rule (Kuhn's augmenting paths).
func matchRules(candidates [][]string) ([]string, error) {
	owner := make(map[string]int)
	var try func(rule int, seen map[string]bool) bool
	try = func(rule int, seen map[string]bool) bool {
		for _, v := range candidates[rule] {
			if seen[v] {
				continue
			}
			seen[v] = true
			prev, taken := owner[v]
			if !taken || try(prev, seen) {
				owner[v] = rule
				return true
			}
		}
		return false
	}

	for rule := range candidates {
		if !try(rule, make(map[string]bool)) {
			return nil, fmt.Errorf("algebraic rule %d has no free variable left to determine", rule)
		}
	}

	match := make([]string, len(candidates))
	for v, rule := range owner {
		match[rule] = v
	}
	return match, nil
}

// isolate solves expr = rhs for variable.
func isolate(expr *ir.ASTNode, variable string, rhs *ir.ASTNode) (*ir.ASTNode, error) {
	if expr.Kind == ir.ASTName && expr.Name == variable {
		return rhs, nil
	}
	if countOccurrences(expr, variable) != 1 {
		return nil, fmt.Errorf("%s must occur exactly once to be isolated", variable)
	}

	idx := -1
	for i, child := range expr.Children {
		if child.Contains(variable) {
			idx = i
			break
		}
	}
	others := func() []*ir.ASTNode {
		var out []*ir.ASTNode
		for i, child := range expr.Children {
			if i != idx {
				out = append(out, child.Clone())
			}
		}
		return out
	}
	combine := func(kind ir.ASTKind, nodes []*ir.ASTNode) *ir.ASTNode {
		if len(nodes) == 1 {
			return nodes[0]
		}
		return ir.Op(kind, nodes...)
	}
	target := expr.Children[idx]

	switch expr.Kind {
	case ir.ASTPlus:
		return isolate(target, variable, ir.Op(ir.ASTMinus, rhs, combine(ir.ASTPlus, others())))
	case ir.ASTTimes:
		return isolate(target, variable, ir.Op(ir.ASTDivide, rhs, combine(ir.ASTTimes, others())))
	case ir.ASTMinus:
		if len(expr.Children) == 1 {
			return isolate(target, variable, ir.Op(ir.ASTMinus, rhs))
		}
		if idx == 0 {
			return isolate(target, variable, ir.Op(ir.ASTPlus, rhs, expr.Children[1].Clone()))
		}
		return isolate(target, variable, ir.Op(ir.ASTMinus, expr.Children[0].Clone(), rhs))
	case ir.ASTDivide:
		if idx == 0 {
			return isolate(target, variable, ir.Op(ir.ASTTimes, rhs, expr.Children[1].Clone()))
		}
		return isolate(target, variable, ir.Op(ir.ASTDivide, expr.Children[0].Clone(), rhs))
	}
	return nil, fmt.Errorf("cannot isolate %s under %s", variable, expr.Kind)
}

func countOccurrences(n *ir.ASTNode, variable string) int {
	count := 0
	n.Walk(func(node *ir.ASTNode) bool {
		if node.Kind == ir.ASTName && node.Name == variable {
			count++
		}
		return true
	})
	return count
}
