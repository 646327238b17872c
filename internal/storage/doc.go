// Package storage provides the storage engine of the metadata node.
//
// The engine keeps every table in memory and makes mutations durable in a
// write-ahead log before applying them. A checkpoint rewrites the live rows
// into a fresh WAL segment and persists a walindex over it, so a restart
// restores the rows straight from their indexed records and only replays
// the log written after the checkpoint.
package storage
