// Package domain defines the core domain models for the metadata node.
//
// Domain models are pure value objects without any IO dependencies or
// framework coupling. This package contains:
//
//   - TableID and Action: the identity and mutation kinds carried by WAL records
//   - Row: a live metadata row
//   - Errors: coded domain errors surfaced by the row API
package domain
