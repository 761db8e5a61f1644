package engine

import (
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/roach88/rxnsim/internal/ir"
)

// AlgebraicConverter rewrites a model's algebraic rules as assignment
// rules. The returned rules are evaluated after the model's own assignment
// rules.
type AlgebraicConverter interface {
	ConvertAlgebraic(m *ir.Model) ([]ir.Rule, error)
}

// Model is a compiled reaction network: the derivative function an
// integrator drives plus the event and constraint side channels.
//
// A Model is not safe for concurrent use. Each trajectory needs its own.
type Model struct {
	id     string
	layout *Layout
	graph  *Graph
	clock  *Clock

	rules       *ruleEngine
	reactions   *reactionSet
	events      *eventEngine
	constraints *constraintChecker
	initial     []initialAssignment
	locals      map[string]map[string]NodeID

	y  []float64
	dY []float64
	st EvalState

	processingFast bool

	// memo of the last derivative query
	memoValid bool
	memoT     float64
	memoY     []float64
	memoDY    []float64

	logger    *slog.Logger
	seed      uint64
	quota     int
	metrics   *Metrics
	flushed   graphCounters
	converter AlgebraicConverter
	listeners []ConstraintListener
}

type initialAssignment struct {
	target target
	node   NodeID
}

// Option configures a Model at compile time.
type Option func(*Model)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Model) {
		m.logger = l
	}
}

// WithSeed seeds the generator that breaks ties between simultaneous
// events of equal priority. Default: 0.
func WithSeed(seed uint64) Option {
	return func(m *Model) {
		m.seed = seed
	}
}

// WithEventQuota bounds event executions per time point.
//
// Default: 10000 (DefaultEventQuota)
func WithEventQuota(n int) Option {
	return func(m *Model) {
		m.quota = n
	}
}

// WithMetrics records runtime counters into metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(m *Model) {
		m.metrics = metrics
	}
}

// WithAlgebraicConverter sets the converter for algebraic rules. Models
// with algebraic rules fail to compile without one.
func WithAlgebraicConverter(c AlgebraicConverter) Option {
	return func(m *Model) {
		m.converter = c
	}
}

// WithConstraintListener adds a constraint listener next to the default
// logging one.
func WithConstraintListener(l ConstraintListener) Option {
	return func(m *Model) {
		m.listeners = append(m.listeners, l)
	}
}

// WithClock sets the stamp clock.
func WithClock(c *Clock) Option {
	return func(m *Model) {
		m.clock = c
	}
}

// Compile builds a Model from a symbolic model.
//
// Every model-structure problem is reported here as a *ModelError; no
// partially compiled Model is ever returned. The returned Model is already
// initialized.
func Compile(src *ir.Model, opts ...Option) (*Model, error) {
	m := &Model{
		id:     src.ID,
		clock:  NewClock(),
		logger: slog.Default(),
		quota:  DefaultEventQuota,
		locals: make(map[string]map[string]NodeID),
	}
	for _, opt := range opts {
		opt(m)
	}

	rules, err := m.effectiveRules(src)
	if err != nil {
		return nil, err
	}

	layout, err := BuildLayout(src)
	if err != nil {
		return nil, err
	}
	m.layout = layout
	m.graph = NewGraph(layout, src.FunctionDefs)

	if err := m.checkFunctionIDs(src); err != nil {
		return nil, err
	}
	reactions, err := m.compileReactions(src)
	if err != nil {
		return nil, err
	}
	assignments, rates, err := m.compileRules(src, rules)
	if err != nil {
		return nil, err
	}
	if err := m.compileInitialAssignments(src, assignments); err != nil {
		return nil, err
	}
	events, err := m.compileEvents(src)
	if err != nil {
		return nil, err
	}
	constraints, err := m.compileConstraints(src)
	if err != nil {
		return nil, err
	}

	m.rules = newRuleEngine(assignments, rates, layout, m.clock)
	if m.rules.Cyclic() {
		var ids []string
		for _, r := range m.rules.cyclic {
			ids = append(ids, r.target.id)
		}
		m.logger.Warn("assignment rules form a cycle, evaluating with bounded passes",
			"model", m.id,
			"variables", ids,
			"passes", m.rules.passes)
	}
	m.reactions = newReactionSet(reactions, layout)
	m.events = newEventEngine(events, m.seed, m.quota, m.clock, m.logger)

	m.constraints = newConstraintChecker(constraints)
	m.constraints.listeners = append(m.constraints.listeners, LogListener{Logger: m.logger})
	if m.metrics != nil {
		m.constraints.listeners = append(m.constraints.listeners, metricsListener{m: m.metrics})
	}
	m.constraints.listeners = append(m.constraints.listeners, m.listeners...)

	n := layout.Len()
	m.y = make([]float64, n)
	m.dY = make([]float64, n)
	m.memoY = make([]float64, n)
	m.memoDY = make([]float64, n)

	m.logger.Debug("model compiled",
		"model", m.id,
		"slots", n,
		"nodes", m.graph.Len(),
		"reactions", len(reactions),
		"events", len(events))

	m.Initialize()
	return m, nil
}

// effectiveRules returns the model's rules with algebraic rules replaced by
// their converted assignment rules, appended at the end.
func (m *Model) effectiveRules(src *ir.Model) ([]ir.Rule, error) {
	var rules []ir.Rule
	for _, r := range src.Rules {
		if r.Kind != ir.RuleAlgebraic {
			rules = append(rules, r)
		}
	}
	if !src.HasAlgebraicRules() {
		return rules, nil
	}
	if m.converter == nil {
		return nil, newModelError(ErrCodeAlgebraicUnconverted, src.ID,
			"model has algebraic rules and no converter is configured")
	}
	converted, err := m.converter.ConvertAlgebraic(src)
	if err != nil {
		return nil, newModelError(ErrCodeAlgebraicUnconverted, src.ID, "%v", err)
	}
	for _, r := range converted {
		if r.Kind != ir.RuleAssignment {
			return nil, newModelError(ErrCodeAlgebraicUnconverted, r.Variable,
				"converter returned a %s rule", r.Kind)
		}
	}
	return append(rules, converted...), nil
}

func (m *Model) checkFunctionIDs(src *ir.Model) error {
	for _, f := range src.FunctionDefs {
		if _, ok := m.layout.Index(f.ID); ok {
			return newModelError(ErrCodeDuplicateID, f.ID, "identifier %q declared twice", f.ID)
		}
		if f.Body == nil {
			return newModelError(ErrCodeMissingMath, f.ID, "function %q has no body", f.ID)
		}
	}
	return nil
}

func (m *Model) declared(id string) bool {
	if _, ok := m.layout.Index(id); ok {
		return true
	}
	_, ok := m.graph.symbols[id]
	return ok
}

func (m *Model) compileReactions(src *ir.Model) ([]reaction, error) {
	g := m.graph
	for _, r := range src.Reactions {
		if m.declared(r.ID) {
			return nil, newModelError(ErrCodeDuplicateID, r.ID, "identifier %q declared twice", r.ID)
		}
		g.addReaction(r.ID)
	}

	reactions := make([]reaction, len(src.Reactions))
	var stoichMath []struct {
		ref  int
		math *ir.ASTNode
		id   string
	}
	for ri, r := range src.Reactions {
		rec := reaction{id: r.ID, law: NoNode, fast: r.Fast}
		sides := []struct {
			refs []ir.SpeciesReference
			sign float64
		}{{r.Reactants, -1}, {r.Products, 1}}
		for _, side := range sides {
			for _, ref := range side.refs {
				species, _ := m.layout.Index(ref.Species)
				sr := stoichRef{
					id:       ref.ID,
					reaction: ri,
					slot:     -1,
					math:     NoNode,
					fixed:    1,
					constant: ref.Constant,
				}
				if ref.Stoichiometry != nil {
					sr.fixed = *ref.Stoichiometry
				}
				if ref.ID != "" {
					if s, ok := m.layout.Index(ref.ID); ok {
						if m.layout.Slots[s].Kind != SlotStoichiometry {
							return nil, newModelError(ErrCodeDuplicateID, ref.ID, "identifier %q declared twice", ref.ID)
						}
						sr.slot = s
					} else if _, dup := g.symbols[ref.ID]; dup {
						return nil, newModelError(ErrCodeDuplicateID, ref.ID, "identifier %q declared twice", ref.ID)
					}
				}
				idx := g.addRef(sr)
				if ref.StoichiometryMath != nil {
					stoichMath = append(stoichMath, struct {
						ref  int
						math *ir.ASTNode
						id   string
					}{idx, ref.StoichiometryMath, r.ID})
				}
				rec.participants = append(rec.participants, participant{species: species, ref: idx, sign: side.sign})
			}
		}
		reactions[ri] = rec
	}

	for _, sm := range stoichMath {
		id, err := g.Compile(sm.math, &Scope{}, true)
		if err != nil {
			return nil, inElement(err, sm.id)
		}
		g.refs[sm.ref].math = id
	}

	for ri, r := range src.Reactions {
		if r.KineticLaw == nil || r.KineticLaw.Math == nil {
			return nil, newModelError(ErrCodeMissingMath, r.ID, "reaction %q has no kinetic law", r.ID)
		}
		sc := &Scope{Reaction: r.ID, Locals: make(map[string]NodeID)}
		for _, p := range r.KineticLaw.LocalParameters {
			if _, dup := sc.Locals[p.ID]; dup {
				return nil, newModelError(ErrCodeDuplicateID, r.ID, "local parameter %q declared twice", p.ID)
			}
			value := 0.0
			if p.Value != nil {
				value = *p.Value
			}
			sc.Locals[p.ID] = g.NewLocal(value)
		}
		m.locals[r.ID] = sc.Locals

		law, err := g.Compile(r.KineticLaw.Math, sc, true)
		if err != nil {
			return nil, inElement(err, r.ID)
		}
		g.laws[ri] = law
		reactions[ri].law = law
	}

	if err := checkReactionCycles(src); err != nil {
		return nil, err
	}
	return reactions, nil
}

// checkReactionCycles rejects kinetic laws that read their own velocity,
// directly or through other reactions.
func checkReactionCycles(src *ir.Model) error {
	index := make(map[string]int, len(src.Reactions))
	for i, r := range src.Reactions {
		index[r.ID] = i
	}
	edges := make([][]int, len(src.Reactions))
	for i, r := range src.Reactions {
		locals := make(map[string]bool)
		for _, p := range r.KineticLaw.LocalParameters {
			locals[p.ID] = true
		}
		for _, name := range r.KineticLaw.Math.Names() {
			if j, ok := index[name]; ok && !locals[name] {
				edges[i] = append(edges[i], j)
			}
		}
	}

	const (
		white = iota
		grey
		black
	)
	color := make([]int, len(src.Reactions))
	var visit func(i int) bool
	visit = func(i int) bool {
		color[i] = grey
		for _, j := range edges[i] {
			if color[j] == grey || (color[j] == white && visit(j)) {
				return true
			}
		}
		color[i] = black
		return false
	}
	for i := range src.Reactions {
		if color[i] == white && visit(i) {
			return newModelError(ErrCodeUnsupportedSymbol, src.Reactions[i].ID,
				"kinetic law depends on its own reaction velocity")
		}
	}
	return nil
}

// resolveTarget finds where an assignment to id writes.
func (m *Model) resolveTarget(id, element string, allowConstant bool) (target, error) {
	if s, ok := m.layout.Index(id); ok {
		if m.layout.Slots[s].Constant && !allowConstant {
			return target{}, newModelError(ErrCodeConstantTarget, element, "%q is constant", id)
		}
		return target{id: id, slot: s, ref: -1}, nil
	}
	sym, ok := m.graph.symbols[id]
	if !ok {
		return target{}, newModelError(ErrCodeUnknownSymbol, element, "unknown symbol %q", id)
	}
	if sym.kind != symSpeciesRef {
		return target{}, newModelError(ErrCodeUnsupportedSymbol, element, "%q cannot be assigned", id)
	}
	ref := &m.graph.refs[sym.index]
	if ref.constant && !allowConstant {
		return target{}, newModelError(ErrCodeConstantTarget, element, "%q is constant", id)
	}
	return target{id: id, slot: -1, ref: sym.index}, nil
}

func (m *Model) compileRules(src *ir.Model, rules []ir.Rule) (assignments, rates []compiledRule, err error) {
	reads := newReadIndex(src)
	determined := make(map[string]bool)

	for _, r := range rules {
		element := r.Variable
		if r.Math == nil {
			return nil, nil, newModelError(ErrCodeMissingMath, element, "rule for %q has no math", r.Variable)
		}
		tgt, err := m.resolveTarget(r.Variable, element, false)
		if err != nil {
			return nil, nil, err
		}
		if determined[r.Variable] {
			return nil, nil, newModelError(ErrCodeOverdetermined, element,
				"%q is determined by more than one rule", r.Variable)
		}
		determined[r.Variable] = true

		id, err := m.graph.Compile(r.Math, &Scope{}, true)
		if err != nil {
			return nil, nil, inElement(err, element)
		}
		cr := compiledRule{kind: r.Kind, target: tgt, node: id, reads: reads.of(r.Math)}
		switch r.Kind {
		case ir.RuleAssignment:
			assignments = append(assignments, cr)
		case ir.RuleRate:
			if tgt.slot < 0 {
				return nil, nil, newModelError(ErrCodeUnsupportedSymbol, element,
					"rate rule target %q has no state slot", r.Variable)
			}
			rates = append(rates, cr)
		default:
			return nil, nil, newModelError(ErrCodeUnsupportedSymbol, element, "unknown rule kind %q", r.Kind)
		}
	}
	return assignments, rates, nil
}

func (m *Model) compileInitialAssignments(src *ir.Model, assignments []compiledRule) error {
	ruled := make(map[string]bool)
	for _, r := range assignments {
		ruled[r.target.id] = true
	}
	seen := make(map[string]bool)
	for _, ia := range src.InitialAssignments {
		if ruled[ia.Symbol] || seen[ia.Symbol] {
			return newModelError(ErrCodeOverdetermined, ia.Symbol,
				"%q has more than one initial value definition", ia.Symbol)
		}
		seen[ia.Symbol] = true
		tgt, err := m.resolveTarget(ia.Symbol, ia.Symbol, true)
		if err != nil {
			return err
		}
		id, err := m.graph.Compile(ia.Math, &Scope{}, true)
		if err != nil {
			return inElement(err, ia.Symbol)
		}
		m.initial = append(m.initial, initialAssignment{target: tgt, node: id})
	}
	return nil
}

func (m *Model) compileEvents(src *ir.Model) ([]compiledEvent, error) {
	g := m.graph
	events := make([]compiledEvent, 0, len(src.Events))
	for _, ev := range src.Events {
		if m.declared(ev.ID) {
			return nil, newModelError(ErrCodeDuplicateID, ev.ID, "identifier %q declared twice", ev.ID)
		}
		if ev.Trigger == nil || ev.Trigger.Math == nil {
			return nil, newModelError(ErrCodeMissingMath, ev.ID, "event %q has no trigger", ev.ID)
		}
		ce := compiledEvent{
			id:               ev.ID,
			delay:            NoNode,
			priority:         NoNode,
			persistent:       ev.Trigger.Persistent,
			useTriggerValues: ev.UseValuesFromTriggerTime,
			initialValue:     ev.Trigger.InitialValue,
		}
		var err error
		if ce.trigger, err = g.Compile(ev.Trigger.Math, &Scope{}, true); err != nil {
			return nil, inElement(err, ev.ID)
		}
		if ev.Delay != nil {
			if ce.delay, err = g.Compile(ev.Delay, &Scope{}, true); err != nil {
				return nil, inElement(err, ev.ID)
			}
		}
		if ev.Priority != nil {
			if ce.priority, err = g.Compile(ev.Priority, &Scope{}, true); err != nil {
				return nil, inElement(err, ev.ID)
			}
		}
		for _, a := range ev.Assignments {
			if a.Math == nil {
				return nil, newModelError(ErrCodeMissingMath, ev.ID, "assignment to %q has no math", a.Variable)
			}
			tgt, err := m.resolveTarget(a.Variable, ev.ID, false)
			if err != nil {
				return nil, err
			}
			id, err := g.Compile(a.Math, &Scope{}, true)
			if err != nil {
				return nil, inElement(err, ev.ID)
			}
			ce.assignments = append(ce.assignments, eventAssignment{target: tgt, node: id})
		}
		events = append(events, ce)
	}
	return events, nil
}

func (m *Model) compileConstraints(src *ir.Model) ([]compiledConstraint, error) {
	out := make([]compiledConstraint, 0, len(src.Constraints))
	for i, c := range src.Constraints {
		element := fmt.Sprintf("constraint[%d]", i)
		if c.Math == nil {
			return nil, newModelError(ErrCodeMissingMath, element, "constraint has no math")
		}
		id, err := m.graph.Compile(c.Math, &Scope{}, true)
		if err != nil {
			return nil, inElement(err, element)
		}
		out = append(out, compiledConstraint{node: id, message: c.Message, math: c.Math.String()})
	}
	return out, nil
}

// readIndex computes the symbols an expression depends on for rule
// ordering. Reading a reaction id depends on its kinetic law's inputs, and
// reading a species depends on its compartment's size.
type readIndex struct {
	laws        map[string]*ir.KineticLaw
	compartment map[string]string
}

func newReadIndex(src *ir.Model) *readIndex {
	ri := &readIndex{
		laws:        make(map[string]*ir.KineticLaw),
		compartment: make(map[string]string),
	}
	for _, r := range src.Reactions {
		ri.laws[r.ID] = r.KineticLaw
	}
	for _, s := range src.Species {
		ri.compartment[s.ID] = s.Compartment
	}
	return ri
}

func (ri *readIndex) of(n *ir.ASTNode) []string {
	var out []string
	seen := make(map[string]bool)
	var visit func(n *ir.ASTNode, locals map[string]bool)
	visit = func(n *ir.ASTNode, locals map[string]bool) {
		for _, name := range n.Names() {
			if locals[name] || seen[name] {
				continue
			}
			seen[name] = true
			out = append(out, name)
			if c := ri.compartment[name]; c != "" && !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
			if law := ri.laws[name]; law != nil && law.Math != nil {
				inner := make(map[string]bool)
				for _, p := range law.LocalParameters {
					inner[p.ID] = true
				}
				visit(law.Math, inner)
			}
		}
	}
	visit(n, nil)
	return out
}

// ID returns the model identifier.
func (m *Model) ID() string {
	return m.id
}

// Dimension returns the state vector length.
func (m *Model) Dimension() int {
	return m.layout.Len()
}

// Layout returns the state vector layout.
func (m *Model) Layout() *Layout {
	return m.layout
}

// Graph returns the compiled expression graph.
func (m *Model) Graph() *Graph {
	return m.graph
}

// SlotIndex returns the state slot of id.
func (m *Model) SlotIndex(id string) (int, bool) {
	return m.layout.Index(id)
}

// ReactionIDs returns the reaction identifiers in velocity order.
func (m *Model) ReactionIDs() []string {
	ids := make([]string, len(m.reactions.reactions))
	for i, r := range m.reactions.reactions {
		ids[i] = r.id
	}
	return ids
}

// Initialize resets the model to its declared start state and returns it.
//
// Initial assignments and assignment rules are applied at time 0, event
// state machines return to Idle, constraint tracking is cleared and every
// cached node value (constant ones included) is forgotten.
func (m *Model) Initialize() []float64 {
	g := m.graph
	copy(m.y, m.layout.InitialState())
	g.resetOverrides()
	g.ResetCaches()
	m.st = EvalState{Stamp: m.clock.Next(), Time: 0, Y: m.y}

	// Initial assignments may read each other and rule targets; repeat
	// until nothing moves, at most once per assignment.
	for pass := 0; pass <= len(m.initial); pass++ {
		changed := false
		for _, ia := range m.initial {
			v := g.Double(ia.node, &m.st)
			if ia.target.write(g, &m.st, v) {
				m.st.Stamp = m.clock.Next()
				changed = true
			}
		}
		if m.rules.EvaluateAssignments(g, &m.st) {
			changed = true
		}
		if !changed {
			break
		}
		g.ResetCaches()
	}

	g.ResetCaches()
	m.st.Stamp = m.clock.Next()
	m.rules.EvaluateAssignments(g, &m.st)

	m.events.reset(m.seed)
	m.constraints.reset()
	m.memoValid = false
	clear(m.reactions.velocities)

	return slices.Clone(m.y)
}

// load copies y into the working state under a fresh stamp and applies
// assignment rules.
func (m *Model) load(t float64, y []float64) {
	if len(y) != len(m.y) {
		panic(fmt.Sprintf("engine: state has %d values, model %s has dimension %d", len(y), m.id, len(m.y)))
	}
	copy(m.y, y)
	m.st.Time = t
	m.st.Stamp = m.clock.Next()
	m.rules.EvaluateAssignments(m.graph, &m.st)
}

func sameState(a, b []float64) bool {
	for i := range a {
		if math.Float64bits(a[i]) != math.Float64bits(b[i]) {
			return false
		}
	}
	return true
}

// ComputeDerivative returns dY/dt at (t, y). The caller's y is never
// modified. Querying the same (t, y) twice in a row returns the previous
// result without evaluating anything.
func (m *Model) ComputeDerivative(t float64, y []float64) []float64 {
	if m.memoValid && t == m.memoT && len(y) == len(m.memoY) && sameState(y, m.memoY) {
		if m.metrics != nil {
			m.metrics.DerivativeReuses.Inc()
		}
		return slices.Clone(m.memoDY)
	}

	m.load(t, y)
	clear(m.dY)
	m.reactions.evaluate(m.graph, &m.st, m.dY, m.processingFast)
	// rate rules belong to the slow partition
	if !m.processingFast || !m.reactions.mixed() {
		m.rules.EvaluateRates(m.graph, &m.st, m.dY)
	}
	m.constraints.check(m.graph, &m.st)

	m.memoValid = true
	m.memoT = t
	copy(m.memoY, y)
	copy(m.memoDY, m.dY)

	if m.metrics != nil {
		m.metrics.Derivatives.Inc()
		m.metrics.flush(m.graph, &m.flushed)
	}
	return slices.Clone(m.dY)
}

// ReactionVelocities returns the velocities computed by the latest
// ComputeDerivative call. Reactions outside the active fast/slow partition
// report 0.
func (m *Model) ReactionVelocities() []float64 {
	return slices.Clone(m.reactions.velocities)
}

// SlotChange is one state value changed by an event poll.
type SlotChange struct {
	Slot  int
	ID    string
	Value float64
}

// EventOutcome is the result of a PollEvents call that did something.
type EventOutcome struct {
	Time    float64
	Effects []Effect

	// Changes lists the state slots that differ from the polled state.
	Changes []SlotChange

	// State is the full state after all executions.
	State []float64

	// Cascade is set when the event quota stopped the executions at this
	// time point. Firings still pending run at the next poll.
	Cascade *CascadeLimitError
}

// Executed reports whether any event assignments were applied.
func (o *EventOutcome) Executed() bool {
	for _, fx := range o.Effects {
		if fx.Kind == EffectExecute {
			return true
		}
	}
	return false
}

// PollEvents advances every event state machine to time t, given the
// previously visited time point prevT and the state y at t. It returns nil
// when no event fired, aborted or executed.
func (m *Model) PollEvents(t, prevT float64, y []float64) *EventOutcome {
	m.load(t, y)
	effects, cut := m.events.advance(m.graph, &m.st, m.rules, t, prevT)
	if len(effects) == 0 && cut == nil {
		return nil
	}
	m.memoValid = false
	if m.metrics != nil {
		m.metrics.recordEffects(effects)
		m.metrics.flush(m.graph, &m.flushed)
	}

	out := &EventOutcome{Time: t, Effects: effects, State: slices.Clone(m.y), Cascade: cut}
	for i := range y {
		if !sameValue(y[i], m.y[i]) {
			out.Changes = append(out.Changes, SlotChange{Slot: i, ID: m.layout.Slots[i].ID, Value: m.y[i]})
		}
	}
	return out
}

// NextEventTime returns the earliest scheduled event execution, so an
// integrator can land on it exactly.
func (m *Model) NextEventTime() (float64, bool) {
	return m.events.nextExecTime()
}

// EventStatus returns a snapshot of every event's runtime state.
func (m *Model) EventStatus() []EventStatus {
	return m.events.status()
}

// CheckConstraints evaluates the constraints at (t, y), notifies listeners
// of transitions and returns the constraints violated now.
func (m *Model) CheckConstraints(t float64, y []float64) []ConstraintViolation {
	m.load(t, y)
	return m.constraints.check(m.graph, &m.st)
}

// AddConstraintListener registers another constraint listener.
func (m *Model) AddConstraintListener(l ConstraintListener) {
	m.constraints.listeners = append(m.constraints.listeners, l)
}

// ResolveState returns y with every assignment rule applied at time t.
func (m *Model) ResolveState(t float64, y []float64) []float64 {
	m.load(t, y)
	return slices.Clone(m.y)
}

// HasFastReactions reports whether the model mixes fast and slow
// reactions, so derivative queries must choose a partition.
func (m *Model) HasFastReactions() bool {
	return m.reactions.mixed()
}

// SetProcessingFastReactions selects the partition ComputeDerivative
// evaluates when fast and slow reactions are mixed.
func (m *Model) SetProcessingFastReactions(fast bool) {
	if m.processingFast != fast {
		m.processingFast = fast
		m.memoValid = false
	}
}

// SetLocalParameter changes a reaction-local parameter.
func (m *Model) SetLocalParameter(reactionID, name string, value float64) error {
	id, ok := m.locals[reactionID][name]
	if !ok {
		return newModelError(ErrCodeUnknownSymbol, reactionID, "reaction has no local parameter %q", name)
	}
	m.graph.SetLocal(id, value)
	m.memoValid = false
	return nil
}

// LocalParameter returns a reaction-local parameter's value.
func (m *Model) LocalParameter(reactionID, name string) (float64, bool) {
	id, ok := m.locals[reactionID][name]
	if !ok {
		return 0, false
	}
	return m.graph.nodes[id].value, true
}
