package ir

// Model is a parsed biochemical network.
//
// Slices keep declaration order; every consumer that needs determinism
// (slot layout, rule ordering, event tie handling) relies on it.
type Model struct {
	ID                 string               `json:"id"`
	Name               string               `json:"name,omitempty"`
	FunctionDefs       []FunctionDefinition `json:"functions,omitempty"`
	Compartments       []Compartment        `json:"compartments,omitempty"`
	Species            []Species            `json:"species,omitempty"`
	Parameters         []Parameter          `json:"parameters,omitempty"`
	InitialAssignments []InitialAssignment  `json:"initial_assignments,omitempty"`
	Rules              []Rule               `json:"rules,omitempty"`
	Reactions          []Reaction           `json:"reactions,omitempty"`
	Events             []Event              `json:"events,omitempty"`
	Constraints        []Constraint         `json:"constraints,omitempty"`

	// ConversionFactor names a parameter applied to every species that does
	// not declare its own conversion factor.
	ConversionFactor string `json:"conversion_factor,omitempty"`
}

// FunctionDefinition is a user-defined lambda.
type FunctionDefinition struct {
	ID   string   `json:"id"`
	Args []string `json:"args"`
	Body *ASTNode `json:"body"`
}

// Compartment is a container with a size.
type Compartment struct {
	ID   string   `json:"id"`
	Size *float64 `json:"size,omitempty"`
	// SpatialDimensions defaults to 3. Zero-dimensional compartments host
	// species whose amount and concentration coincide.
	SpatialDimensions float64 `json:"spatial_dimensions"`
	Constant          bool    `json:"constant"`
}

// Species is a chemical entity tracked as an amount or a concentration.
type Species struct {
	ID                    string   `json:"id"`
	Compartment           string   `json:"compartment,omitempty"`
	InitialAmount         *float64 `json:"initial_amount,omitempty"`
	InitialConcentration  *float64 `json:"initial_concentration,omitempty"`
	HasOnlySubstanceUnits bool     `json:"has_only_substance_units"`
	BoundaryCondition     bool     `json:"boundary_condition"`
	Constant              bool     `json:"constant"`
	ConversionFactor      string   `json:"conversion_factor,omitempty"`
}

// HasInitialValue reports whether either initial amount or concentration
// was given.
func (s *Species) HasInitialValue() bool {
	return s.InitialAmount != nil || s.InitialConcentration != nil
}

// Parameter is a named numeric value, global or reaction-local.
type Parameter struct {
	ID       string   `json:"id"`
	Value    *float64 `json:"value,omitempty"`
	Constant bool     `json:"constant"`
}

// InitialAssignment sets Symbol at t0 from Math.
type InitialAssignment struct {
	Symbol string   `json:"symbol"`
	Math   *ASTNode `json:"math"`
}

// RuleKind distinguishes assignment, rate and algebraic rules.
type RuleKind string

const (
	RuleAssignment RuleKind = "assignment"
	RuleRate       RuleKind = "rate"
	RuleAlgebraic  RuleKind = "algebraic"
)

// ValidRuleKinds defines allowed rule kinds.
var ValidRuleKinds = map[RuleKind]bool{
	RuleAssignment: true,
	RuleRate:       true,
	RuleAlgebraic:  true,
}

// Rule is an assignment, rate or algebraic rule. Algebraic rules have no
// Variable; their Math is constrained to equal zero.
type Rule struct {
	Kind     RuleKind `json:"kind"`
	Variable string   `json:"variable,omitempty"`
	Math     *ASTNode `json:"math"`
}

// Reaction is a transformation with a kinetic law.
type Reaction struct {
	ID         string             `json:"id"`
	Reversible bool               `json:"reversible"`
	Fast       bool               `json:"fast"`
	Reactants  []SpeciesReference `json:"reactants,omitempty"`
	Products   []SpeciesReference `json:"products,omitempty"`
	Modifiers  []string           `json:"modifiers,omitempty"`
	KineticLaw *KineticLaw        `json:"kinetic_law,omitempty"`
}

// SpeciesReference is one reactant or product of a reaction.
type SpeciesReference struct {
	// ID is optional; when set, the reference is a symbol whose value is the
	// current stoichiometry and which rules and events may target.
	ID                string   `json:"id,omitempty"`
	Species           string   `json:"species"`
	Stoichiometry     *float64 `json:"stoichiometry,omitempty"`
	StoichiometryMath *ASTNode `json:"stoichiometry_math,omitempty"`
	Constant          bool     `json:"constant"`
}

// KineticLaw gives the reaction velocity and its local parameters.
type KineticLaw struct {
	Math            *ASTNode    `json:"math"`
	LocalParameters []Parameter `json:"local_parameters,omitempty"`
}

// Event is a triggered, optionally delayed set of assignments.
type Event struct {
	ID                       string            `json:"id"`
	Trigger                  *Trigger          `json:"trigger"`
	Delay                    *ASTNode          `json:"delay,omitempty"`
	Priority                 *ASTNode          `json:"priority,omitempty"`
	UseValuesFromTriggerTime bool              `json:"use_values_from_trigger_time"`
	Assignments              []EventAssignment `json:"assignments,omitempty"`
}

// Trigger is the condition of an event.
type Trigger struct {
	Math *ASTNode `json:"math"`
	// InitialValue is the trigger value assumed just before the start time.
	// With InitialValue true, a trigger already true at t0 does not fire.
	InitialValue bool `json:"initial_value"`
	// Persistent triggers are not rechecked between firing and execution.
	Persistent bool `json:"persistent"`
}

// EventAssignment sets Variable when the event executes.
type EventAssignment struct {
	Variable string   `json:"variable"`
	Math     *ASTNode `json:"math"`
}

// Constraint is a boolean condition expected to hold during simulation.
type Constraint struct {
	Math    *ASTNode `json:"math"`
	Message string   `json:"message,omitempty"`
}

// SymbolKind classifies a model-level identifier.
type SymbolKind int

const (
	SymbolUnknown SymbolKind = iota
	SymbolCompartment
	SymbolSpecies
	SymbolParameter
	SymbolReaction
	SymbolSpeciesReference
	SymbolFunction
)

// Symbols indexes every global identifier of the model by kind.
// Duplicate identifiers keep their first kind; validation reports them.
func (m *Model) Symbols() map[string]SymbolKind {
	out := make(map[string]SymbolKind)
	add := func(id string, kind SymbolKind) {
		if id == "" {
			return
		}
		if _, exists := out[id]; !exists {
			out[id] = kind
		}
	}
	for _, c := range m.Compartments {
		add(c.ID, SymbolCompartment)
	}
	for _, s := range m.Species {
		add(s.ID, SymbolSpecies)
	}
	for _, p := range m.Parameters {
		add(p.ID, SymbolParameter)
	}
	for _, r := range m.Reactions {
		add(r.ID, SymbolReaction)
		for _, ref := range r.Reactants {
			add(ref.ID, SymbolSpeciesReference)
		}
		for _, ref := range r.Products {
			add(ref.ID, SymbolSpeciesReference)
		}
	}
	for _, f := range m.FunctionDefs {
		add(f.ID, SymbolFunction)
	}
	return out
}

// HasAlgebraicRules reports whether any rule is algebraic.
func (m *Model) HasAlgebraicRules() bool {
	for _, r := range m.Rules {
		if r.Kind == RuleAlgebraic {
			return true
		}
	}
	return false
}

// Float returns a pointer to v, for optional numeric fields.
func Float(v float64) *float64 {
	return &v
}
