// Package main provides the entry point for metastore-cli.
//
// metastore-cli manages metastore-server nodes over HTTP and inspects
// WAL segments and WAL index files offline.
package main
