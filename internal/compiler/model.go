package compiler

import (
	"fmt"

	"cuelang.org/go/cue"

	"github.com/roach88/rxnsim/internal/ir"
)

// CompileModel parses a CUE value into a symbolic model.
// Uses the CUE SDK's Go API directly (not a CLI subprocess).
//
// The CUE value should be the model struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(src)
//	m, err := CompileModel(v.LookupPath(cue.ParsePath("model")))
//
// Expected shape (all sections optional):
//
//	model: {
//		id: "decay"
//		compartments: cell: {size: 1}
//		species: A: {compartment: "cell", initialAmount: 100}
//		parameters: k: 0.1
//		reactions: r1: {reactants: ["A"], kineticLaw: "k*A"}
//	}
//
// Struct fields are read in declaration order; that order is the model's
// declaration order everywhere downstream.
func CompileModel(v cue.Value) (*ir.Model, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err, "model")
	}

	m := &ir.Model{}

	id, _, err := optionalString(v, "id")
	if err != nil {
		return nil, err
	}
	if id == "" {
		if labels := v.Path().Selectors(); len(labels) > 0 {
			id = labels[len(labels)-1].String()
		}
	}
	m.ID = ir.NormalizeID(id)

	if m.Name, _, err = optionalString(v, "name"); err != nil {
		return nil, err
	}
	conv, _, err := optionalString(v, "conversionFactor")
	if err != nil {
		return nil, err
	}
	m.ConversionFactor = ir.NormalizeID(conv)

	steps := []func(cue.Value, *ir.Model) error{
		parseFunctions,
		parseCompartments,
		parseSpecies,
		parseParameters,
		parseInitialAssignments,
		parseRules,
		parseReactions,
		parseEvents,
		parseConstraints,
	}
	for _, step := range steps {
		if err := step(v, m); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// eachField iterates the regular fields of the struct at path, in
// declaration order. A missing path is not an error.
func eachField(v cue.Value, path string, fn func(label string, fv cue.Value) error) error {
	sv := v.LookupPath(cue.ParsePath(path))
	if !sv.Exists() {
		return nil
	}
	iter, err := sv.Fields()
	if err != nil {
		return formatCUEError(err, path)
	}
	for iter.Next() {
		if err := fn(ir.NormalizeID(iter.Selector().Unquoted()), iter.Value()); err != nil {
			return err
		}
	}
	return nil
}

// eachElem iterates the list at path. A missing path is not an error.
func eachElem(v cue.Value, path string, fn func(i int, ev cue.Value) error) error {
	lv := v.LookupPath(cue.ParsePath(path))
	if !lv.Exists() {
		return nil
	}
	iter, err := lv.List()
	if err != nil {
		return formatCUEError(err, path)
	}
	for i := 0; iter.Next(); i++ {
		if err := fn(i, iter.Value()); err != nil {
			return err
		}
	}
	return nil
}

func optionalString(v cue.Value, path string) (string, bool, error) {
	fv := v.LookupPath(cue.ParsePath(path))
	if !fv.Exists() {
		return "", false, nil
	}
	s, err := fv.String()
	if err != nil {
		return "", false, formatCUEError(err, path)
	}
	return s, true, nil
}

func optionalFloat(v cue.Value, path, field string) (*float64, error) {
	fv := v.LookupPath(cue.ParsePath(path))
	if !fv.Exists() {
		return nil, nil
	}
	f, err := fv.Float64()
	if err != nil {
		return nil, formatCUEError(err, field)
	}
	return &f, nil
}

func boolOr(v cue.Value, path, field string, def bool) (bool, error) {
	fv := v.LookupPath(cue.ParsePath(path))
	if !fv.Exists() {
		return def, nil
	}
	b, err := fv.Bool()
	if err != nil {
		return false, formatCUEError(err, field)
	}
	return b, nil
}

// mathOf converts a CUE value holding a formula string, a number or a bool
// into a symbolic tree.
func mathOf(v cue.Value, field string) (*ir.ASTNode, error) {
	switch v.IncompleteKind() {
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err, field)
		}
		n, err := ParseFormula(s)
		if err != nil {
			return nil, &CompileError{Field: field, Message: err.Error(), Pos: v.Pos()}
		}
		return n, nil
	case cue.IntKind, cue.FloatKind, cue.NumberKind:
		f, err := v.Float64()
		if err != nil {
			return nil, formatCUEError(err, field)
		}
		return ir.Num(f), nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err, field)
		}
		name := "false"
		if b {
			name = "true"
		}
		return &ir.ASTNode{Kind: ir.ASTConstant, Name: name}, nil
	}
	return nil, &CompileError{
		Field:   field,
		Message: "math must be a formula string or a number",
		Pos:     v.Pos(),
	}
}

// optionalMath reads math at path, returning nil when absent.
func optionalMath(v cue.Value, path, field string) (*ir.ASTNode, error) {
	fv := v.LookupPath(cue.ParsePath(path))
	if !fv.Exists() {
		return nil, nil
	}
	return mathOf(fv, field)
}

func parseFunctions(v cue.Value, m *ir.Model) error {
	return eachField(v, "functions", func(id string, fv cue.Value) error {
		field := "functions." + id
		fd := ir.FunctionDefinition{ID: id}
		err := eachElem(fv, "args", func(i int, av cue.Value) error {
			s, err := av.String()
			if err != nil {
				return formatCUEError(err, fmt.Sprintf("%s.args[%d]", field, i))
			}
			fd.Args = append(fd.Args, ir.NormalizeID(s))
			return nil
		})
		if err != nil {
			return err
		}
		bodyVal := fv.LookupPath(cue.ParsePath("body"))
		if !bodyVal.Exists() {
			return &CompileError{Field: field + ".body", Message: "function body is required", Pos: fv.Pos()}
		}
		if fd.Body, err = mathOf(bodyVal, field+".body"); err != nil {
			return err
		}
		m.FunctionDefs = append(m.FunctionDefs, fd)
		return nil
	})
}

func parseCompartments(v cue.Value, m *ir.Model) error {
	return eachField(v, "compartments", func(id string, cv cue.Value) error {
		field := "compartments." + id
		c := ir.Compartment{ID: id, SpatialDimensions: 3}

		// Shorthand: cell: 1.5
		if k := cv.IncompleteKind(); k&cue.NumberKind != 0 && k&cue.StructKind == 0 {
			f, err := cv.Float64()
			if err != nil {
				return formatCUEError(err, field)
			}
			c.Size = &f
			c.Constant = true
			m.Compartments = append(m.Compartments, c)
			return nil
		}

		var err error
		if c.Size, err = optionalFloat(cv, "size", field+".size"); err != nil {
			return err
		}
		dims, err := optionalFloat(cv, "spatialDimensions", field+".spatialDimensions")
		if err != nil {
			return err
		}
		if dims != nil {
			c.SpatialDimensions = *dims
		}
		if c.Constant, err = boolOr(cv, "constant", field+".constant", true); err != nil {
			return err
		}
		m.Compartments = append(m.Compartments, c)
		return nil
	})
}

func parseSpecies(v cue.Value, m *ir.Model) error {
	return eachField(v, "species", func(id string, sv cue.Value) error {
		field := "species." + id
		s := ir.Species{ID: id}
		var err error

		comp, _, err := optionalString(sv, "compartment")
		if err != nil {
			return err
		}
		s.Compartment = ir.NormalizeID(comp)
		if s.InitialAmount, err = optionalFloat(sv, "initialAmount", field+".initialAmount"); err != nil {
			return err
		}
		if s.InitialConcentration, err = optionalFloat(sv, "initialConcentration", field+".initialConcentration"); err != nil {
			return err
		}
		if s.InitialAmount != nil && s.InitialConcentration != nil {
			return &CompileError{
				Field:   field,
				Message: "initialAmount and initialConcentration are mutually exclusive",
				Pos:     sv.Pos(),
			}
		}
		if s.HasOnlySubstanceUnits, err = boolOr(sv, "hasOnlySubstanceUnits", field+".hasOnlySubstanceUnits", false); err != nil {
			return err
		}
		if s.BoundaryCondition, err = boolOr(sv, "boundaryCondition", field+".boundaryCondition", false); err != nil {
			return err
		}
		if s.Constant, err = boolOr(sv, "constant", field+".constant", false); err != nil {
			return err
		}
		cf, _, err := optionalString(sv, "conversionFactor")
		if err != nil {
			return err
		}
		s.ConversionFactor = ir.NormalizeID(cf)

		m.Species = append(m.Species, s)
		return nil
	})
}

// parseParameterValue reads either the shorthand `k: 0.1` or the struct
// form `k: {value: 0.1, constant: false}`.
func parseParameterValue(id, field string, pv cue.Value) (ir.Parameter, error) {
	p := ir.Parameter{ID: id, Constant: true}
	if k := pv.IncompleteKind(); k&cue.NumberKind != 0 && k&cue.StructKind == 0 {
		f, err := pv.Float64()
		if err != nil {
			return p, formatCUEError(err, field)
		}
		p.Value = &f
		return p, nil
	}
	var err error
	if p.Value, err = optionalFloat(pv, "value", field+".value"); err != nil {
		return p, err
	}
	if p.Constant, err = boolOr(pv, "constant", field+".constant", true); err != nil {
		return p, err
	}
	return p, nil
}

func parseParameters(v cue.Value, m *ir.Model) error {
	return eachField(v, "parameters", func(id string, pv cue.Value) error {
		p, err := parseParameterValue(id, "parameters."+id, pv)
		if err != nil {
			return err
		}
		m.Parameters = append(m.Parameters, p)
		return nil
	})
}

func parseInitialAssignments(v cue.Value, m *ir.Model) error {
	return eachField(v, "initialAssignments", func(symbol string, av cue.Value) error {
		math, err := mathOf(av, "initialAssignments."+symbol)
		if err != nil {
			return err
		}
		m.InitialAssignments = append(m.InitialAssignments, ir.InitialAssignment{Symbol: symbol, Math: math})
		return nil
	})
}

func parseRules(v cue.Value, m *ir.Model) error {
	return eachElem(v, "rules", func(i int, rv cue.Value) error {
		field := fmt.Sprintf("rules[%d]", i)
		kind, ok, err := optionalString(rv, "kind")
		if err != nil {
			return err
		}
		if !ok {
			kind = string(ir.RuleAssignment)
		}
		r := ir.Rule{Kind: ir.RuleKind(kind)}
		if !ir.ValidRuleKinds[r.Kind] {
			return &CompileError{
				Field:   field + ".kind",
				Message: fmt.Sprintf("invalid rule kind %q (must be assignment, rate or algebraic)", kind),
				Pos:     rv.Pos(),
			}
		}
		variable, _, err := optionalString(rv, "variable")
		if err != nil {
			return err
		}
		r.Variable = ir.NormalizeID(variable)
		if r.Kind != ir.RuleAlgebraic && r.Variable == "" {
			return &CompileError{Field: field + ".variable", Message: "variable is required", Pos: rv.Pos()}
		}
		if r.Math, err = optionalMath(rv, "math", field+".math"); err != nil {
			return err
		}
		if r.Math == nil {
			return &CompileError{Field: field + ".math", Message: "rule math is required", Pos: rv.Pos()}
		}
		m.Rules = append(m.Rules, r)
		return nil
	})
}

func parseSpeciesRefs(rv cue.Value, path, field string) ([]ir.SpeciesReference, error) {
	var refs []ir.SpeciesReference
	err := eachElem(rv, path, func(i int, ev cue.Value) error {
		elemField := fmt.Sprintf("%s.%s[%d]", field, path, i)

		// Shorthand: reactants: ["A", "B"]
		if ev.IncompleteKind() == cue.StringKind {
			s, err := ev.String()
			if err != nil {
				return formatCUEError(err, elemField)
			}
			refs = append(refs, ir.SpeciesReference{Species: ir.NormalizeID(s), Constant: true})
			return nil
		}

		ref := ir.SpeciesReference{}
		species, ok, err := optionalString(ev, "species")
		if err != nil {
			return err
		}
		if !ok {
			return &CompileError{Field: elemField + ".species", Message: "species is required", Pos: ev.Pos()}
		}
		ref.Species = ir.NormalizeID(species)
		id, _, err := optionalString(ev, "id")
		if err != nil {
			return err
		}
		ref.ID = ir.NormalizeID(id)
		if ref.Stoichiometry, err = optionalFloat(ev, "stoichiometry", elemField+".stoichiometry"); err != nil {
			return err
		}
		if ref.StoichiometryMath, err = optionalMath(ev, "stoichiometryMath", elemField+".stoichiometryMath"); err != nil {
			return err
		}
		if ref.Constant, err = boolOr(ev, "constant", elemField+".constant", ref.StoichiometryMath == nil); err != nil {
			return err
		}
		refs = append(refs, ref)
		return nil
	})
	return refs, err
}

func parseReactions(v cue.Value, m *ir.Model) error {
	return eachField(v, "reactions", func(id string, rv cue.Value) error {
		field := "reactions." + id
		r := ir.Reaction{ID: id}
		var err error

		if r.Reversible, err = boolOr(rv, "reversible", field+".reversible", false); err != nil {
			return err
		}
		if r.Fast, err = boolOr(rv, "fast", field+".fast", false); err != nil {
			return err
		}
		if r.Reactants, err = parseSpeciesRefs(rv, "reactants", field); err != nil {
			return err
		}
		if r.Products, err = parseSpeciesRefs(rv, "products", field); err != nil {
			return err
		}
		err = eachElem(rv, "modifiers", func(i int, mv cue.Value) error {
			s, err := mv.String()
			if err != nil {
				return formatCUEError(err, fmt.Sprintf("%s.modifiers[%d]", field, i))
			}
			r.Modifiers = append(r.Modifiers, ir.NormalizeID(s))
			return nil
		})
		if err != nil {
			return err
		}

		klv := rv.LookupPath(cue.ParsePath("kineticLaw"))
		if klv.Exists() {
			law := &ir.KineticLaw{}
			if klv.IncompleteKind()&cue.StructKind != 0 {
				if law.Math, err = optionalMath(klv, "math", field+".kineticLaw.math"); err != nil {
					return err
				}
				err = eachField(klv, "localParameters", func(pid string, pv cue.Value) error {
					p, err := parseParameterValue(pid, field+".kineticLaw.localParameters."+pid, pv)
					if err != nil {
						return err
					}
					law.LocalParameters = append(law.LocalParameters, p)
					return nil
				})
				if err != nil {
					return err
				}
			} else if law.Math, err = mathOf(klv, field+".kineticLaw"); err != nil {
				return err
			}
			r.KineticLaw = law
		}

		m.Reactions = append(m.Reactions, r)
		return nil
	})
}

func parseEvents(v cue.Value, m *ir.Model) error {
	return eachField(v, "events", func(id string, ev cue.Value) error {
		field := "events." + id
		e := ir.Event{ID: id}
		var err error

		tv := ev.LookupPath(cue.ParsePath("trigger"))
		if tv.Exists() {
			trig := &ir.Trigger{InitialValue: true, Persistent: true}
			if tv.IncompleteKind()&cue.StructKind != 0 {
				if trig.Math, err = optionalMath(tv, "math", field+".trigger.math"); err != nil {
					return err
				}
				if trig.InitialValue, err = boolOr(tv, "initialValue", field+".trigger.initialValue", true); err != nil {
					return err
				}
				if trig.Persistent, err = boolOr(tv, "persistent", field+".trigger.persistent", true); err != nil {
					return err
				}
			} else if trig.Math, err = mathOf(tv, field+".trigger"); err != nil {
				return err
			}
			e.Trigger = trig
		}

		if e.Delay, err = optionalMath(ev, "delay", field+".delay"); err != nil {
			return err
		}
		if e.Priority, err = optionalMath(ev, "priority", field+".priority"); err != nil {
			return err
		}
		if e.UseValuesFromTriggerTime, err = boolOr(ev, "useValuesFromTriggerTime", field+".useValuesFromTriggerTime", true); err != nil {
			return err
		}
		err = eachField(ev, "assignments", func(variable string, av cue.Value) error {
			math, err := mathOf(av, field+".assignments."+variable)
			if err != nil {
				return err
			}
			e.Assignments = append(e.Assignments, ir.EventAssignment{Variable: variable, Math: math})
			return nil
		})
		if err != nil {
			return err
		}

		m.Events = append(m.Events, e)
		return nil
	})
}

func parseConstraints(v cue.Value, m *ir.Model) error {
	return eachElem(v, "constraints", func(i int, cv cue.Value) error {
		field := fmt.Sprintf("constraints[%d]", i)
		c := ir.Constraint{}
		var err error

		if cv.IncompleteKind() == cue.StringKind {
			if c.Math, err = mathOf(cv, field); err != nil {
				return err
			}
			m.Constraints = append(m.Constraints, c)
			return nil
		}
		if c.Math, err = optionalMath(cv, "math", field+".math"); err != nil {
			return err
		}
		if c.Message, _, err = optionalString(cv, "message"); err != nil {
			return err
		}
		m.Constraints = append(m.Constraints, c)
		return nil
	})
}
