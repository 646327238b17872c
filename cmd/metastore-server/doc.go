// Package main provides the entry point for metastore-server.
//
// metastore-server keeps a node's metadata tables in memory, persists
// every mutation to a write-ahead log and maintains a WAL index so that
// restarts restore the live rows without replaying the whole log.
package main
