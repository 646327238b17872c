// Package memory provides the in-memory row store of the metadata node.
//
// Each table is a sharded concurrent map keyed by row key. Rows are the
// materialized result of WAL replay: the engine writes a mutation to the
// WAL first and then applies it here, so reads never touch disk.
package memory
