// Package benchmark contains performance benchmarks for metastore.
//
// Benchmarks cover WAL appends, WAL index build and decode, and node
// recovery through the index versus a full WAL replay.
//
// Run with: go test -bench=. -benchmem ./internal/tests/benchmark/...
package benchmark
