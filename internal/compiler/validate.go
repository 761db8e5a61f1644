package compiler

import (
	"fmt"

	"github.com/roach88/rxnsim/internal/ir"
)

// Validation error codes (E100-E199)
const (
	ErrModelIDEmpty = "E100" // model id is required

	// Identifier errors (E101-E109)
	ErrDuplicateID      = "E101" // identifier declared twice
	ErrUnknownSymbol    = "E102" // math references an undeclared name
	ErrUnknownFunction  = "E103" // call to an undeclared function
	ErrFunctionArity    = "E104" // call with the wrong number of arguments
	ErrRecursiveFunc    = "E105" // function definitions call each other
	ErrUnknownReference = "E106" // compartment/species/parameter reference is undeclared

	// Target errors (E110-E119)
	ErrNotAssignable   = "E110" // rule or event targets a non-assignable symbol
	ErrConstantTarget  = "E111" // rule or event targets a constant
	ErrOverdetermined  = "E112" // symbol determined by more than one rule
	ErrRateRuleReacted = "E113" // non-boundary species has a rate rule and reactions

	// Math errors (E120-E129)
	ErrMissingMath      = "E120" // required math is absent
	ErrDelayUnsupported = "E121" // delay() is not supported
	ErrEventNoTrigger   = "E122" // event has no trigger
	ErrBadConversion    = "E123" // conversion factor is not a parameter
)

// ValidationError represents a model validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a loaded model for structural errors.
// Returns all errors found (does not fail-fast).
func Validate(m *ir.Model) []ValidationError {
	v := &validator{
		model:   m,
		symbols: m.Symbols(),
		funcs:   make(map[string]ir.FunctionDefinition),
	}
	for _, f := range m.FunctionDefs {
		v.funcs[f.ID] = f
	}

	if m.ID == "" {
		v.add("id", ErrModelIDEmpty, "model id is required")
	}

	v.checkDuplicates()
	v.checkFunctions()
	v.checkReferences()
	v.checkRules()
	v.checkReactions()
	v.checkEvents()

	for _, ia := range m.InitialAssignments {
		field := "initialAssignments." + ia.Symbol
		v.checkTarget(field, ia.Symbol, false)
		v.checkMath(field, ia.Math, nil)
	}
	for i, c := range m.Constraints {
		v.checkMath(fmt.Sprintf("constraints[%d]", i), c.Math, nil)
	}

	return v.errs
}

type validator struct {
	model   *ir.Model
	symbols map[string]ir.SymbolKind
	funcs   map[string]ir.FunctionDefinition
	errs    []ValidationError
}

func (v *validator) add(field, code, format string, args ...any) {
	v.errs = append(v.errs, ValidationError{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
		Code:    code,
	})
}

func (v *validator) checkDuplicates() {
	seen := make(map[string]string)
	check := func(field, id string) {
		if id == "" {
			return
		}
		if prev, ok := seen[id]; ok {
			v.add(field, ErrDuplicateID, "identifier %q already declared at %s", id, prev)
			return
		}
		seen[id] = field
	}

	m := v.model
	for _, f := range m.FunctionDefs {
		check("functions."+f.ID, f.ID)
	}
	for _, c := range m.Compartments {
		check("compartments."+c.ID, c.ID)
	}
	for _, s := range m.Species {
		check("species."+s.ID, s.ID)
	}
	for _, p := range m.Parameters {
		check("parameters."+p.ID, p.ID)
	}
	for _, r := range m.Reactions {
		check("reactions."+r.ID, r.ID)
		for i, ref := range r.Reactants {
			check(fmt.Sprintf("reactions.%s.reactants[%d]", r.ID, i), ref.ID)
		}
		for i, ref := range r.Products {
			check(fmt.Sprintf("reactions.%s.products[%d]", r.ID, i), ref.ID)
		}
		if r.KineticLaw != nil {
			local := make(map[string]bool)
			for _, p := range r.KineticLaw.LocalParameters {
				if local[p.ID] {
					v.add("reactions."+r.ID+".kineticLaw.localParameters."+p.ID, ErrDuplicateID,
						"local parameter %q declared twice", p.ID)
				}
				local[p.ID] = true
			}
		}
	}
	for _, e := range m.Events {
		check("events."+e.ID, e.ID)
	}
}

func (v *validator) checkFunctions() {
	for _, f := range v.model.FunctionDefs {
		field := "functions." + f.ID + ".body"
		if f.Body == nil {
			v.add(field, ErrMissingMath, "function %q has no body", f.ID)
			continue
		}
		formals := make(map[string]bool, len(f.Args))
		for _, a := range f.Args {
			formals[a] = true
		}
		for _, name := range f.Body.Names() {
			if !formals[name] {
				v.add(field, ErrUnknownSymbol, "function body references %q, which is not an argument", name)
			}
		}
		v.checkCalls(field, f.Body)
	}

	// Recursion: follow call edges from each definition.
	for _, f := range v.model.FunctionDefs {
		if v.reaches(f.ID, f.ID, make(map[string]bool)) {
			v.add("functions."+f.ID, ErrRecursiveFunc, "function %q is recursive", f.ID)
		}
	}
}

// reaches reports whether any call path starting in the body of from
// reaches target.
func (v *validator) reaches(from, target string, visited map[string]bool) bool {
	if visited[from] {
		return false
	}
	visited[from] = true
	f, ok := v.funcs[from]
	if !ok || f.Body == nil {
		return false
	}
	found := false
	f.Body.Walk(func(n *ir.ASTNode) bool {
		if found {
			return false
		}
		if n.Kind == ir.ASTCall {
			if n.Name == target || v.reaches(n.Name, target, visited) {
				found = true
			}
		}
		return true
	})
	return found
}

func (v *validator) checkCalls(field string, n *ir.ASTNode) {
	n.Walk(func(node *ir.ASTNode) bool {
		switch node.Kind {
		case ir.ASTCall:
			f, ok := v.funcs[node.Name]
			if !ok {
				v.add(field, ErrUnknownFunction, "unknown function %q", node.Name)
				break
			}
			if len(node.Children) != len(f.Args) {
				v.add(field, ErrFunctionArity, "%s expects %d arguments, got %d",
					node.Name, len(f.Args), len(node.Children))
			}
		case ir.ASTDelay:
			v.add(field, ErrDelayUnsupported, "delay() is not supported")
		}
		return true
	})
}

// checkMath verifies that every name in n is a model symbol or a local.
func (v *validator) checkMath(field string, n *ir.ASTNode, locals map[string]bool) {
	if n == nil {
		v.add(field, ErrMissingMath, "math is required")
		return
	}
	for _, name := range n.Names() {
		if locals[name] {
			continue
		}
		kind := v.symbols[name]
		if kind == ir.SymbolUnknown || kind == ir.SymbolFunction {
			v.add(field, ErrUnknownSymbol, "unknown symbol %q", name)
		}
	}
	v.checkCalls(field, n)
}

func (v *validator) checkReferences() {
	m := v.model
	for _, s := range m.Species {
		if s.Compartment != "" && v.symbols[s.Compartment] != ir.SymbolCompartment {
			v.add("species."+s.ID+".compartment", ErrUnknownReference,
				"unknown compartment %q", s.Compartment)
		}
		if s.ConversionFactor != "" && v.symbols[s.ConversionFactor] != ir.SymbolParameter {
			v.add("species."+s.ID+".conversionFactor", ErrBadConversion,
				"conversion factor %q is not a parameter", s.ConversionFactor)
		}
	}
	if m.ConversionFactor != "" && v.symbols[m.ConversionFactor] != ir.SymbolParameter {
		v.add("conversionFactor", ErrBadConversion,
			"conversion factor %q is not a parameter", m.ConversionFactor)
	}
}

// constantSymbol reports whether id names a constant compartment, species
// or parameter.
func (v *validator) constantSymbol(id string) bool {
	m := v.model
	for _, c := range m.Compartments {
		if c.ID == id {
			return c.Constant
		}
	}
	for _, s := range m.Species {
		if s.ID == id {
			return s.Constant
		}
	}
	for _, p := range m.Parameters {
		if p.ID == id {
			return p.Constant
		}
	}
	for _, r := range m.Reactions {
		for _, refs := range [][]ir.SpeciesReference{r.Reactants, r.Products} {
			for _, ref := range refs {
				if ref.ID == id {
					return ref.Constant
				}
			}
		}
	}
	return false
}

// checkTarget verifies that id can receive a value. Initial assignments may
// target constants; rules and events may not.
func (v *validator) checkTarget(field, id string, mustBeVariable bool) {
	switch v.symbols[id] {
	case ir.SymbolCompartment, ir.SymbolSpecies, ir.SymbolParameter, ir.SymbolSpeciesReference:
	case ir.SymbolUnknown:
		v.add(field, ErrUnknownSymbol, "unknown symbol %q", id)
		return
	default:
		v.add(field, ErrNotAssignable, "%q cannot be assigned", id)
		return
	}
	if mustBeVariable && v.constantSymbol(id) {
		v.add(field, ErrConstantTarget, "%q is constant", id)
	}
}

func (v *validator) checkRules() {
	determined := make(map[string]string)
	for _, ia := range v.model.InitialAssignments {
		if prev, ok := determined["init:"+ia.Symbol]; ok {
			v.add("initialAssignments."+ia.Symbol, ErrOverdetermined,
				"%q already has an initial assignment at %s", ia.Symbol, prev)
		}
		determined["init:"+ia.Symbol] = "initialAssignments." + ia.Symbol
	}

	for i, r := range v.model.Rules {
		field := fmt.Sprintf("rules[%d]", i)
		v.checkMath(field+".math", r.Math, nil)
		if r.Kind == ir.RuleAlgebraic {
			continue
		}
		v.checkTarget(field+".variable", r.Variable, true)
		if prev, ok := determined[r.Variable]; ok {
			v.add(field+".variable", ErrOverdetermined,
				"%q is already determined by %s", r.Variable, prev)
		}
		determined[r.Variable] = field
		if r.Kind == ir.RuleAssignment {
			if prev, ok := determined["init:"+r.Variable]; ok {
				v.add(field+".variable", ErrOverdetermined,
					"%q has both an assignment rule and an initial assignment (%s)", r.Variable, prev)
			}
		}
	}
}

func (v *validator) checkReactions() {
	rateRuled := make(map[string]bool)
	for _, r := range v.model.Rules {
		if r.Kind == ir.RuleRate {
			rateRuled[r.Variable] = true
		}
	}
	boundary := make(map[string]bool)
	for _, s := range v.model.Species {
		boundary[s.ID] = s.BoundaryCondition
	}

	for _, r := range v.model.Reactions {
		field := "reactions." + r.ID
		if r.KineticLaw == nil || r.KineticLaw.Math == nil {
			v.add(field+".kineticLaw", ErrMissingMath, "reaction %q has no kinetic law", r.ID)
		} else {
			locals := make(map[string]bool)
			for _, p := range r.KineticLaw.LocalParameters {
				locals[p.ID] = true
			}
			v.checkMath(field+".kineticLaw", r.KineticLaw.Math, locals)
		}

		refs := append(append([]ir.SpeciesReference{}, r.Reactants...), r.Products...)
		for i, ref := range refs {
			refField := fmt.Sprintf("%s.participants[%d]", field, i)
			if v.symbols[ref.Species] != ir.SymbolSpecies {
				v.add(refField+".species", ErrUnknownReference, "unknown species %q", ref.Species)
				continue
			}
			if rateRuled[ref.Species] && !boundary[ref.Species] {
				v.add(refField+".species", ErrRateRuleReacted,
					"species %q has a rate rule and takes part in reaction %q without being a boundary species",
					ref.Species, r.ID)
			}
			if ref.StoichiometryMath != nil {
				v.checkMath(refField+".stoichiometryMath", ref.StoichiometryMath, nil)
			}
		}
		for i, mod := range r.Modifiers {
			if v.symbols[mod] != ir.SymbolSpecies {
				v.add(fmt.Sprintf("%s.modifiers[%d]", field, i), ErrUnknownReference, "unknown species %q", mod)
			}
		}
	}
}

func (v *validator) checkEvents() {
	for _, e := range v.model.Events {
		field := "events." + e.ID
		if e.Trigger == nil {
			v.add(field+".trigger", ErrEventNoTrigger, "event %q has no trigger", e.ID)
		} else {
			v.checkMath(field+".trigger", e.Trigger.Math, nil)
		}
		if e.Delay != nil {
			v.checkMath(field+".delay", e.Delay, nil)
		}
		if e.Priority != nil {
			v.checkMath(field+".priority", e.Priority, nil)
		}
		for _, a := range e.Assignments {
			afield := field + ".assignments." + a.Variable
			v.checkTarget(afield, a.Variable, true)
			v.checkMath(afield, a.Math, nil)
		}
	}
}
