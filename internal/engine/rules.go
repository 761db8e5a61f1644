package engine

import (
	"math"

	"github.com/roach88/rxnsim/internal/ir"
)

// target is where a rule or event assignment writes: a state vector slot,
// or the stoichiometry side table for species references without a slot.
type target struct {
	id   string
	slot int
	ref  int
}

func sameValue(a, b float64) bool {
	return a == b || (math.IsNaN(a) && math.IsNaN(b))
}

// write stores v (given in the math representation) and reports whether
// the stored value changed. Species values are converted to their stored
// representation unless the species has no usable compartment.
func (t target) write(g *Graph, st *EvalState, v float64) bool {
	if t.slot >= 0 {
		stored := g.layout.toStored(t.slot, v, st.Y)
		if sameValue(st.Y[t.slot], stored) {
			return false
		}
		st.Y[t.slot] = stored
		return true
	}
	r := &g.refs[t.ref]
	if r.overridden && sameValue(r.override, v) {
		return false
	}
	r.override = v
	r.overridden = true
	return true
}

type compiledRule struct {
	kind   ir.RuleKind
	target target
	node   NodeID

	// reads lists the symbols the rule depends on, used for ordering.
	reads []string
}

// ruleEngine orders and evaluates assignment and rate rules.
type ruleEngine struct {
	ordered []compiledRule

	// cyclic holds the rules left after dependency peeling. They run
	// passes times, in declaration order, on every evaluation.
	cyclic []compiledRule
	passes int

	rates []compiledRule

	// hosted maps a rate-ruled compartment slot to the concentration
	// species whose change rate needs the dilution correction.
	hosted map[int][]int

	clock *Clock
}

func newRuleEngine(assignments, rates []compiledRule, layout *Layout, clock *Clock) *ruleEngine {
	e := &ruleEngine{
		rates:  rates,
		hosted: make(map[int][]int),
		clock:  clock,
	}
	e.ordered, e.cyclic = orderAssignments(assignments)
	if len(e.cyclic) > 0 {
		vars := make(map[string]bool)
		for _, r := range e.cyclic {
			vars[r.target.id] = true
		}
		e.passes = max(1, len(vars))
	}

	ruled := make(map[int]bool)
	for _, r := range assignments {
		if r.target.slot >= 0 {
			ruled[r.target.slot] = true
		}
	}
	for _, r := range rates {
		ruled[r.target.slot] = true
	}
	for _, r := range rates {
		c := r.target.slot
		if layout.Slots[c].Kind != SlotCompartment {
			continue
		}
		for i, s := range layout.Slots {
			if s.Kind == SlotSpecies && s.CompartmentSlot == c && !s.IsAmount && !s.Constant && !ruled[i] {
				e.hosted[c] = append(e.hosted[c], i)
			}
		}
	}
	return e
}

// orderAssignments peels rules whose inputs are all resolved, repeatedly,
// keeping declaration order among ready rules. Whatever remains is part of
// (or downstream of) a dependency cycle.
func orderAssignments(rules []compiledRule) (ordered, cyclic []compiledRule) {
	targets := make(map[string]bool, len(rules))
	for _, r := range rules {
		targets[r.target.id] = true
	}

	resolved := make(map[string]bool, len(rules))
	done := make([]bool, len(rules))
	for progress := true; progress; {
		progress = false
		for i, r := range rules {
			if done[i] || !ready(r, targets, resolved) {
				continue
			}
			done[i] = true
			resolved[r.target.id] = true
			ordered = append(ordered, r)
			progress = true
		}
	}

	for i, r := range rules {
		if !done[i] {
			cyclic = append(cyclic, r)
		}
	}
	return ordered, cyclic
}

func ready(r compiledRule, targets, resolved map[string]bool) bool {
	for _, name := range r.reads {
		if targets[name] && !resolved[name] {
			return false
		}
	}
	return true
}

// Cyclic reports whether some assignment rules depend on each other.
func (e *ruleEngine) Cyclic() bool {
	return len(e.cyclic) > 0
}

// EvaluateAssignments runs every assignment rule once, in dependency order,
// followed by the bounded passes over any cyclic group. Each value change
// takes a new stamp so later rules see it. Returns whether any value
// changed.
func (e *ruleEngine) EvaluateAssignments(g *Graph, st *EvalState) bool {
	changed := false
	for i := range e.ordered {
		if e.apply(&e.ordered[i], g, st) {
			changed = true
		}
	}
	for p := 0; p < e.passes; p++ {
		for i := range e.cyclic {
			if e.apply(&e.cyclic[i], g, st) {
				changed = true
			}
		}
	}
	return changed
}

func (e *ruleEngine) apply(r *compiledRule, g *Graph, st *EvalState) bool {
	v := g.Double(r.node, st)
	if !r.target.write(g, st, v) {
		return false
	}
	st.Stamp = e.clock.Next()
	return true
}

// EvaluateRates writes rate rule values into dY. A compartment's rate also
// corrects the change rate of every concentration species it hosts by
// -dC × s / C.
func (e *ruleEngine) EvaluateRates(g *Graph, st *EvalState, dY []float64) {
	for _, r := range e.rates {
		v := g.Double(r.node, st)
		dY[r.target.slot] = g.layout.toStored(r.target.slot, v, st.Y)
	}
	for _, r := range e.rates {
		c := r.target.slot
		species := e.hosted[c]
		if len(species) == 0 {
			continue
		}
		size := st.Y[c]
		if size == 0 {
			continue
		}
		dC := dY[c]
		for _, s := range species {
			dY[s] -= dC * st.Y[s] / size
		}
	}
}
