// Package ir provides the symbolic object model for rxnsim.
//
// A model is loaded into these types by an external loader (see
// internal/compiler) and then compiled into a numeric runtime by
// internal/engine. The types here are plain data: they carry no caches and
// are never mutated by the runtime.
//
// This package imports nothing internal. All other internal packages import
// ir; ir stays the foundational layer with no circular dependencies.
//
// Key conventions:
//   - Identifiers are NFC normalized at the loader boundary (NormalizeID)
//   - Optional numeric fields are pointers (nil = unset)
//   - Math is an *ASTNode tree; nil means "no math given"
//   - Canonical JSON (MarshalCanonical) is the only serialization used for
//     content hashes (ModelHash)
package ir
