package engine

import (
	"log/slog"
)

// ConstraintViolation describes a constraint that does not hold.
type ConstraintViolation struct {
	Index   int
	Message string
	Math    string
	Time    float64
}

// ConstraintListener is told when a constraint starts and stops being
// violated. Each transition is reported once; a constraint that stays
// violated across many steps produces a single ConstraintViolated call.
type ConstraintListener interface {
	ConstraintViolated(v ConstraintViolation)
	ConstraintRecovered(v ConstraintViolation)
}

// LogListener reports constraint transitions through slog. It is the
// listener every Model starts with.
type LogListener struct {
	Logger *slog.Logger
}

// ConstraintViolated implements ConstraintListener.
func (l LogListener) ConstraintViolated(v ConstraintViolation) {
	l.Logger.Warn("constraint violated",
		"constraint", v.Index,
		"math", v.Math,
		"message", v.Message,
		"time", v.Time)
}

// ConstraintRecovered implements ConstraintListener.
func (l LogListener) ConstraintRecovered(v ConstraintViolation) {
	l.Logger.Info("constraint recovered",
		"constraint", v.Index,
		"math", v.Math,
		"time", v.Time)
}

type compiledConstraint struct {
	node    NodeID
	message string
	math    string
}

// constraintChecker tracks which constraints are currently violated.
type constraintChecker struct {
	constraints []compiledConstraint
	violated    []bool
	listeners   []ConstraintListener
}

func newConstraintChecker(constraints []compiledConstraint) *constraintChecker {
	return &constraintChecker{
		constraints: constraints,
		violated:    make([]bool, len(constraints)),
	}
}

func (c *constraintChecker) reset() {
	for i := range c.violated {
		c.violated[i] = false
	}
}

// check evaluates every constraint, notifies listeners of transitions and
// returns the constraints violated now.
func (c *constraintChecker) check(g *Graph, st *EvalState) []ConstraintViolation {
	var out []ConstraintViolation
	for i, cc := range c.constraints {
		holds := g.Bool(cc.node, st)
		v := ConstraintViolation{Index: i, Message: cc.message, Math: cc.math, Time: st.Time}
		switch {
		case !holds && !c.violated[i]:
			c.violated[i] = true
			for _, l := range c.listeners {
				l.ConstraintViolated(v)
			}
		case holds && c.violated[i]:
			c.violated[i] = false
			for _, l := range c.listeners {
				l.ConstraintRecovered(v)
			}
		}
		if !holds {
			out = append(out, v)
		}
	}
	return out
}
