package engine

import (
	"log/slog"
	"math"
	"math/rand/v2"
)

// EffectKind distinguishes the side effects of advancing events.
type EffectKind int

const (
	// EffectFire: a trigger went false→true and a firing was scheduled.
	EffectFire EffectKind = iota + 1
	// EffectAbort: a non-persistent trigger went false and its pending
	// firings were discarded.
	EffectAbort
	// EffectExecute: a firing ran and applied its assignments.
	EffectExecute
)

func (k EffectKind) String() string {
	switch k {
	case EffectFire:
		return "fire"
	case EffectAbort:
		return "abort"
	case EffectExecute:
		return "execute"
	}
	return "unknown"
}

// Assignment is one value written by an event execution. Value is the
// stored state value; Slot is -1 for stoichiometries without a state slot.
type Assignment struct {
	Variable string
	Slot     int
	Value    float64
}

// Effect is one transition of an event's state machine.
type Effect struct {
	Kind    EffectKind
	EventID string
	Time    float64

	// ExecTime is the scheduled execution time (fire and execute).
	ExecTime float64

	// Aborted counts the discarded firings (abort).
	Aborted int

	// Assignments lists the applied values (execute).
	Assignments []Assignment
}

// EventStatus is a snapshot of one event's runtime state.
type EventStatus struct {
	ID                string
	Fired             bool // fired and trigger not yet recovered
	Pending           int
	LastFiredTime     float64
	LastRecoveredTime float64
	LastExecutedTime  float64
}

type eventAssignment struct {
	target target
	node   NodeID
}

type compiledEvent struct {
	id       string
	trigger  NodeID
	delay    NodeID
	priority NodeID

	persistent       bool
	useTriggerValues bool
	initialValue     bool

	assignments []eventAssignment
}

type eventRuntime struct {
	prev  bool // trigger value at the last visited time point
	fired bool

	lastFired     float64
	lastRecovered float64
	lastExecuted  float64

	pending firingQueue
}

// eventEngine runs the per-event state machines.
type eventEngine struct {
	events []compiledEvent
	state  []eventRuntime

	rng    *rand.Rand
	quota  int
	clock  *Clock
	logger *slog.Logger
}

func newEventEngine(events []compiledEvent, seed uint64, quota int, clock *Clock, logger *slog.Logger) *eventEngine {
	e := &eventEngine{
		events: events,
		state:  make([]eventRuntime, len(events)),
		quota:  quota,
		clock:  clock,
		logger: logger,
	}
	e.reset(seed)
	return e
}

// reset returns every event to Idle and reseeds the tie breaker.
func (e *eventEngine) reset(seed uint64) {
	e.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	for i, ev := range e.events {
		e.state[i] = eventRuntime{
			prev:          ev.initialValue,
			lastFired:     math.NaN(),
			lastRecovered: math.NaN(),
			lastExecuted:  math.NaN(),
		}
	}
}

// advance runs the state machine transitions for time point t:
//  1. pending firings of non-persistent events whose trigger is false are
//     aborted
//  2. triggers with a false→true edge fire and schedule an execution
//  3. firings due at or before t execute one at a time, highest priority
//     first, with ties broken at random; after each execution assignment
//     rules are re-run and steps 1-2 repeat on the new state
//
// prevT is the previously visited time point; firings scheduled inside
// (prevT, t) run late at t. A cascade cut by the quota is returned
// alongside the effects.
func (e *eventEngine) advance(g *Graph, st *EvalState, rules *ruleEngine, t, prevT float64) ([]Effect, *CascadeLimitError) {
	effects := e.scan(g, st, t, nil)

	quota := NewQuotaEnforcer(e.quota)
	for {
		idx := e.pickRunnable(g, st, t)
		if idx < 0 {
			break
		}
		if err := quota.Check(t); err != nil {
			e.logger.Warn("event cascade cut",
				"time", t,
				"limit", err.Limit,
				"pending", e.pendingCount())
			return effects, err
		}
		fx := e.execute(idx, g, st, t)
		if fx.ExecTime < prevT {
			e.logger.Debug("event executed late",
				"event", fx.EventID,
				"scheduled", fx.ExecTime,
				"time", t)
		}
		effects = append(effects, fx)
		rules.EvaluateAssignments(g, st)
		effects = e.scan(g, st, t, effects)
	}
	return effects, nil
}

func (e *eventEngine) pendingCount() int {
	n := 0
	for i := range e.state {
		n += e.state[i].pending.Len()
	}
	return n
}

// scan evaluates every trigger once, aborting and firing as needed.
func (e *eventEngine) scan(g *Graph, st *EvalState, t float64, effects []Effect) []Effect {
	for i := range e.events {
		ev := &e.events[i]
		rt := &e.state[i]
		v := g.Bool(ev.trigger, st)

		if !v && !ev.persistent && rt.pending.Len() > 0 {
			n := rt.pending.Clear()
			effects = append(effects, Effect{Kind: EffectAbort, EventID: ev.id, Time: t, Aborted: n})
		}

		switch {
		case v && !rt.prev && !rt.fired:
			effects = append(effects, e.fire(i, g, st, t))
		case !v && rt.prev:
			rt.fired = false
			rt.lastRecovered = t
		}
		rt.prev = v
	}
	return effects
}

func (e *eventEngine) fire(i int, g *Graph, st *EvalState, t float64) Effect {
	ev := &e.events[i]
	rt := &e.state[i]

	delay := 0.0
	if ev.delay != NoNode {
		delay = g.Double(ev.delay, st)
		if delay < 0 || math.IsNaN(delay) {
			delay = 0
		}
	}

	f := firing{ExecTime: t + delay, FiredAt: t}
	if ev.useTriggerValues {
		f.Values = e.evaluateAssignments(ev, g, st)
	}
	rt.pending.Push(f)
	rt.fired = true
	rt.lastFired = t

	return Effect{Kind: EffectFire, EventID: ev.id, Time: t, ExecTime: f.ExecTime}
}

// evaluateAssignments computes every right-hand side before any is applied.
func (e *eventEngine) evaluateAssignments(ev *compiledEvent, g *Graph, st *EvalState) []float64 {
	values := make([]float64, len(ev.assignments))
	for j, a := range ev.assignments {
		values[j] = g.Double(a.node, st)
	}
	return values
}

// pickRunnable returns the event to execute next at t, or -1.
func (e *eventEngine) pickRunnable(g *Graph, st *EvalState, t float64) int {
	var ties []int
	best := math.Inf(-1)
	for i := range e.events {
		f, ok := e.state[i].pending.Peek()
		if !ok || f.ExecTime > t {
			continue
		}
		p := math.Inf(-1)
		if e.events[i].priority != NoNode {
			p = g.Double(e.events[i].priority, st)
			if math.IsNaN(p) {
				p = math.Inf(-1)
			}
		}
		switch {
		case len(ties) == 0 || p > best:
			best = p
			ties = append(ties[:0], i)
		case p == best:
			ties = append(ties, i)
		}
	}
	switch len(ties) {
	case 0:
		return -1
	case 1:
		return ties[0]
	}
	return ties[e.rng.IntN(len(ties))]
}

// execute consumes the earliest firing of event i and applies it.
func (e *eventEngine) execute(i int, g *Graph, st *EvalState, t float64) Effect {
	ev := &e.events[i]
	rt := &e.state[i]

	f, _ := rt.pending.Pop()
	values := f.Values
	if values == nil {
		values = e.evaluateAssignments(ev, g, st)
	}

	applied := make([]Assignment, len(ev.assignments))
	for j, a := range ev.assignments {
		a.target.write(g, st, values[j])
		var value float64
		if a.target.slot >= 0 {
			value = st.Y[a.target.slot]
		} else {
			value = g.refs[a.target.ref].override
		}
		applied[j] = Assignment{Variable: a.target.id, Slot: a.target.slot, Value: value}
	}
	st.Stamp = e.clock.Next()
	rt.lastExecuted = t

	return Effect{
		Kind:        EffectExecute,
		EventID:     ev.id,
		Time:        t,
		ExecTime:    f.ExecTime,
		Assignments: applied,
	}
}

// nextExecTime returns the earliest pending execution time.
func (e *eventEngine) nextExecTime() (float64, bool) {
	next := math.Inf(1)
	found := false
	for i := range e.state {
		if f, ok := e.state[i].pending.Peek(); ok && f.ExecTime < next {
			next = f.ExecTime
			found = true
		}
	}
	return next, found
}

func (e *eventEngine) status() []EventStatus {
	out := make([]EventStatus, len(e.events))
	for i, ev := range e.events {
		rt := &e.state[i]
		out[i] = EventStatus{
			ID:                ev.id,
			Fired:             rt.fired,
			Pending:           rt.pending.Len(),
			LastFiredTime:     rt.lastFired,
			LastRecoveredTime: rt.lastRecovered,
			LastExecutedTime:  rt.lastExecuted,
		}
	}
	return out
}
