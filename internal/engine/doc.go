// Package engine compiles a symbolic reaction network into a numerically
// evaluable system and evaluates it for an integrator.
//
// ARCHITECTURE:
//
// State vector:
// Every compartment, species, rate-rule-governed stoichiometry and global
// parameter owns one slot of a flat []float64. Slot order is fixed by
// BuildLayout and never changes for the lifetime of a compiled Model.
//
// Compiled graph:
// Math trees are compiled into an arena of nodes addressed by NodeID.
// Structurally identical subexpressions share one node (unless they bind
// different reaction-local parameters). Each node caches its last value
// together with the evaluation stamp it was computed at; a node is
// recomputed only when asked for a different stamp.
//
// Query flow:
//  1. ComputeDerivative copies the caller's state and takes a fresh stamp
//  2. Assignment rules run in dependency order
//  3. Reaction velocities are folded through the stoichiometry into dY
//  4. Rate rules write their targets' derivatives
//  5. Constraints are checked and listeners told about transitions
//
// PollEvents is called by the integrator between accepted steps. It runs the
// per-event state machine (edge detection, delays, priorities, persistence)
// and returns the state changes the integrator must apply.
//
// CRITICAL PATTERNS:
//
// Logical stamps:
// All cache invalidation goes through Clock.Next(). Re-querying an already
// seen (t, y) pair never recomputes anything.
//
// Deterministic scheduling:
// Rules, reactions and events are processed in declaration order. The only
// randomness (breaking ties between simultaneous events of equal priority)
// comes from a seeded generator.
//
// A Model is single-threaded. Concurrent trajectories need one compiled
// Model each.
package engine
