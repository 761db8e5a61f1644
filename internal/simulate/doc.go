// Package simulate integrates compiled reaction networks over time.
//
// It is the reference driver of the engine's derivative contract: a fixed
// step Euler or RK4 stepper that
//   - shortens steps so scheduled event executions land exactly on their
//     time points
//   - polls events after every accepted step and restarts from the state
//     they produce
//   - equilibrates fast reactions before each step
//   - records samples, reaction velocities, event executions and
//     constraint transitions into a Trajectory
//
// Run drives one model. RunEnsemble drives one freshly compiled model per
// configuration, concurrently.
package simulate
