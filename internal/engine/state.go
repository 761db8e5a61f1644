package engine

import (
	"math"

	"github.com/roach88/rxnsim/internal/ir"
)

// SlotKind classifies a state vector slot.
type SlotKind int

const (
	SlotCompartment SlotKind = iota + 1
	SlotSpecies
	SlotStoichiometry
	SlotParameter
)

func (k SlotKind) String() string {
	switch k {
	case SlotCompartment:
		return "compartment"
	case SlotSpecies:
		return "species"
	case SlotStoichiometry:
		return "stoichiometry"
	case SlotParameter:
		return "parameter"
	}
	return "unknown"
}

// Slot is the metadata of one state vector entry.
type Slot struct {
	ID   string
	Kind SlotKind

	// IsAmount is true when a species is stored as an absolute amount and
	// false when it is stored as a concentration.
	IsAmount bool

	// HasOnlySubstanceUnits is true when math reads the species as an
	// amount rather than a concentration.
	HasOnlySubstanceUnits bool

	// CompartmentSlot is the owning compartment's slot, or -1 for species
	// without a compartment or in a zero-dimensional one.
	CompartmentSlot int

	Constant          bool
	BoundaryCondition bool

	// ConversionSlot is the slot of the species' conversion factor
	// parameter, or -1 for a factor of 1.
	ConversionSlot int

	// ReactsInConcentration is set for species that take part in at least
	// one reaction while being stored as a concentration. Their reaction
	// contributions are divided by the compartment size.
	ReactsInConcentration bool

	// Initial is the declared start value in the stored representation.
	Initial float64
}

// Layout is the fixed shape of the state vector.
type Layout struct {
	Slots []Slot
	index map[string]int
}

// Len returns the state vector dimension.
func (l *Layout) Len() int {
	return len(l.Slots)
}

// Index returns the slot of id.
func (l *Layout) Index(id string) (int, bool) {
	i, ok := l.index[id]
	return i, ok
}

// IDs returns the slot identifiers in slot order.
func (l *Layout) IDs() []string {
	ids := make([]string, len(l.Slots))
	for i, s := range l.Slots {
		ids[i] = s.ID
	}
	return ids
}

// InitialState returns the declared start values.
func (l *Layout) InitialState() []float64 {
	y := make([]float64, len(l.Slots))
	for i, s := range l.Slots {
		y[i] = s.Initial
	}
	return y
}

// maxSlots bounds the state vector to the int32 index space used by
// compiled nodes.
var maxSlots = math.MaxInt32

// BuildLayout assigns state vector slots: compartments, species,
// rate-rule-governed species references, then parameters, each group in
// declaration order.
//
// Species without an initial amount or concentration take the majority
// convention of the other species. Ties fall back to amounts, and to the
// species' own hasOnlySubstanceUnits flag.
func BuildLayout(m *ir.Model) (*Layout, error) {
	l := &Layout{index: make(map[string]int)}

	add := func(s Slot) error {
		if _, dup := l.index[s.ID]; dup {
			return newModelError(ErrCodeDuplicateID, s.ID, "identifier %q declared twice", s.ID)
		}
		if len(l.Slots) >= maxSlots {
			return newModelError(ErrCodeTooManySymbols, s.ID,
				"model declares more than %d state variables", maxSlots)
		}
		l.index[s.ID] = len(l.Slots)
		l.Slots = append(l.Slots, s)
		return nil
	}

	zeroDim := make(map[string]bool)
	for _, c := range m.Compartments {
		size := 1.0
		if c.Size != nil {
			size = *c.Size
		}
		if c.SpatialDimensions == 0 {
			zeroDim[c.ID] = true
		}
		err := add(Slot{
			ID:              c.ID,
			Kind:            SlotCompartment,
			CompartmentSlot: -1,
			Constant:        c.Constant,
			ConversionSlot:  -1,
			Initial:         size,
		})
		if err != nil {
			return nil, err
		}
	}

	isAmount, hosu := speciesConventions(m)
	initialAssigned := make(map[string]bool)
	for _, ia := range m.InitialAssignments {
		initialAssigned[ia.Symbol] = true
	}

	for i, s := range m.Species {
		slot := Slot{
			ID:                    s.ID,
			Kind:                  SlotSpecies,
			IsAmount:              isAmount[i],
			HasOnlySubstanceUnits: hosu[i],
			CompartmentSlot:       -1,
			Constant:              s.Constant,
			BoundaryCondition:     s.BoundaryCondition,
			ConversionSlot:        -1,
		}
		switch {
		case s.InitialAmount != nil:
			slot.Initial = *s.InitialAmount
		case s.InitialConcentration != nil:
			slot.Initial = *s.InitialConcentration
		case initialAssigned[s.ID]:
			// Stored in the representation its math produces, so the
			// initial assignment needs no conversion.
			slot.IsAmount = slot.HasOnlySubstanceUnits
		}
		if s.Compartment != "" && !zeroDim[s.Compartment] {
			if cs, ok := l.index[s.Compartment]; ok {
				slot.CompartmentSlot = cs
			}
		}
		if err := add(slot); err != nil {
			return nil, err
		}
	}

	rateRuled := make(map[string]bool)
	for _, r := range m.Rules {
		if r.Kind == ir.RuleRate {
			rateRuled[r.Variable] = true
		}
	}
	for _, r := range m.Reactions {
		for _, ref := range participants(r) {
			if ref.ID == "" || !rateRuled[ref.ID] {
				continue
			}
			initial := 1.0
			if ref.Stoichiometry != nil {
				initial = *ref.Stoichiometry
			}
			err := add(Slot{
				ID:              ref.ID,
				Kind:            SlotStoichiometry,
				CompartmentSlot: -1,
				ConversionSlot:  -1,
				Initial:         initial,
			})
			if err != nil {
				return nil, err
			}
		}
	}

	for _, p := range m.Parameters {
		value := 0.0
		if p.Value != nil {
			value = *p.Value
		}
		err := add(Slot{
			ID:              p.ID,
			Kind:            SlotParameter,
			CompartmentSlot: -1,
			Constant:        p.Constant,
			ConversionSlot:  -1,
			Initial:         value,
		})
		if err != nil {
			return nil, err
		}
	}

	// Conversion factors and reaction units need the full index.
	for _, s := range m.Species {
		i := l.index[s.ID]
		factor := s.ConversionFactor
		if factor == "" {
			factor = m.ConversionFactor
		}
		if factor != "" {
			cs, ok := l.index[factor]
			if !ok || l.Slots[cs].Kind != SlotParameter {
				return nil, newModelError(ErrCodeUnknownSymbol, s.ID,
					"conversion factor %q is not a parameter", factor)
			}
			l.Slots[i].ConversionSlot = cs
		}
	}
	for _, r := range m.Reactions {
		for _, ref := range participants(r) {
			i, ok := l.index[ref.Species]
			if !ok || l.Slots[i].Kind != SlotSpecies {
				return nil, newModelError(ErrCodeUnknownSymbol, r.ID,
					"reaction %q references unknown species %q", r.ID, ref.Species)
			}
			slot := &l.Slots[i]
			if !slot.IsAmount && slot.CompartmentSlot >= 0 {
				slot.ReactsInConcentration = true
			}
		}
	}

	return l, nil
}

// speciesConventions returns, per species, whether it is stored as an
// amount and whether math reads it as an amount.
func speciesConventions(m *ir.Model) (isAmount, hosu []bool) {
	var amounts, concentrations, substance, nonSubstance int
	for _, s := range m.Species {
		if !s.HasInitialValue() {
			continue
		}
		if s.InitialAmount != nil {
			amounts++
		} else {
			concentrations++
		}
		if s.HasOnlySubstanceUnits {
			substance++
		} else {
			nonSubstance++
		}
	}

	isAmount = make([]bool, len(m.Species))
	hosu = make([]bool, len(m.Species))
	for i, s := range m.Species {
		hosu[i] = s.HasOnlySubstanceUnits
		if s.HasInitialValue() {
			isAmount[i] = s.InitialAmount != nil
			continue
		}
		isAmount[i] = amounts >= concentrations
		switch {
		case substance > nonSubstance:
			hosu[i] = true
		case nonSubstance > substance:
			hosu[i] = false
		}
	}
	return isAmount, hosu
}

// participants returns reactants then products.
func participants(r ir.Reaction) []ir.SpeciesReference {
	out := make([]ir.SpeciesReference, 0, len(r.Reactants)+len(r.Products))
	out = append(out, r.Reactants...)
	return append(out, r.Products...)
}

// toStored converts a value in the species' math representation into its
// stored representation. Non-species slots and species without a usable
// compartment size are stored unchanged.
func (l *Layout) toStored(slot int, v float64, y []float64) float64 {
	s := &l.Slots[slot]
	if s.Kind != SlotSpecies || s.CompartmentSlot < 0 || s.IsAmount == s.HasOnlySubstanceUnits {
		return v
	}
	size := y[s.CompartmentSlot]
	if size == 0 {
		return v
	}
	if s.IsAmount {
		// math gives a concentration
		return v * size
	}
	return v / size
}

// fromStored converts a stored species value into its math representation.
func (l *Layout) fromStored(slot int, v float64, y []float64) float64 {
	s := &l.Slots[slot]
	if s.Kind != SlotSpecies || s.CompartmentSlot < 0 || s.IsAmount == s.HasOnlySubstanceUnits {
		return v
	}
	size := y[s.CompartmentSlot]
	if size == 0 {
		return v
	}
	if s.IsAmount {
		return v / size
	}
	return v * size
}
