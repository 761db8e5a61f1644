// Package store persists simulation runs in SQLite.
//
// A run is one recorded trajectory together with what is needed to
// reproduce it:
//   - runs: model identity and hash, the simulation config, column layout
//     and the trajectory hash
//   - samples: time points with state and reaction velocities
//   - event_executions: event fire, execute and abort transitions
//   - constraint_events: constraint violations and recoveries
//
// # Ordering
//
// Runs carry a seq INTEGER assigned at write time; listings order by
// seq ASC, id ASC COLLATE BINARY. Child rows order by their index within
// the run. Wall-clock time is never stored.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Run IDs are UUIDv7 by default, so they also sort by creation time.
package store
