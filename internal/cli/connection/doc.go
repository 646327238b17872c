// Package connection provides the metastore-server HTTP client used by
// metastore-cli.
package connection
