package engine

// participant is one (species, stoichiometry) incidence of a reaction.
type participant struct {
	species int     // state vector slot
	ref     int     // index into Graph.refs
	sign    float64 // -1 for reactants, +1 for products
}

type reaction struct {
	id           string
	law          NodeID
	fast         bool
	participants []participant
}

// reactionSet evaluates velocities and folds them into change rates.
type reactionSet struct {
	reactions  []reaction
	velocities []float64
	hasFast    bool
	hasSlow    bool

	// reacted lists every species slot with at least one incidence, in
	// slot order, for the unit pass.
	reacted []int
}

func newReactionSet(reactions []reaction, layout *Layout) *reactionSet {
	rs := &reactionSet{
		reactions:  reactions,
		velocities: make([]float64, len(reactions)),
	}
	seen := make(map[int]bool)
	for _, r := range reactions {
		if r.fast {
			rs.hasFast = true
		} else {
			rs.hasSlow = true
		}
		for _, p := range r.participants {
			seen[p.species] = true
		}
	}
	for i := range layout.Slots {
		if seen[i] {
			rs.reacted = append(rs.reacted, i)
		}
	}
	return rs
}

// mixed reports whether fast and slow reactions must be evaluated in
// separate passes.
func (rs *reactionSet) mixed() bool {
	return rs.hasFast && rs.hasSlow
}

// evaluate computes one velocity per reaction and accumulates
// velocity × stoichiometry into dY. With mixed fast and slow reactions,
// only the partition selected by processingFast contributes; the others get
// velocity 0.
//
// Boundary and constant species receive no contribution. Species stored as
// concentrations are then divided by their live compartment size (skipped
// for a size of exactly 0), and every reacted species is scaled by its
// conversion factor.
func (rs *reactionSet) evaluate(g *Graph, st *EvalState, dY []float64, processingFast bool) {
	layout := g.layout
	mixed := rs.mixed()

	for i := range rs.reactions {
		r := &rs.reactions[i]
		if mixed && r.fast != processingFast {
			rs.velocities[i] = 0
			continue
		}
		v := g.Double(r.law, st)
		rs.velocities[i] = v

		for _, p := range r.participants {
			slot := &layout.Slots[p.species]
			if slot.BoundaryCondition || slot.Constant {
				continue
			}
			dY[p.species] += p.sign * v * g.stoichiometry(p.ref, st)
		}
	}

	for _, s := range rs.reacted {
		slot := &layout.Slots[s]
		if slot.ReactsInConcentration {
			if size := st.Y[slot.CompartmentSlot]; size != 0 {
				dY[s] /= size
			}
		}
		if slot.ConversionSlot >= 0 {
			dY[s] *= st.Y[slot.ConversionSlot]
		}
	}
}
