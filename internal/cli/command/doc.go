// Package command provides CLI command definitions for metastore-cli.
//
// This package defines all CLI commands using urfave/cli/v2:
//
//   - root.go: App, global flags, config resolution
//   - row.go: Row subcommand group
//   - index.go: WAL index subcommand group (remote and offline)
//   - wal.go: Offline WAL inspection
//   - system.go: Status, health, version and checkpoint
//
// Remote commands talk to metastore-server over HTTP. Offline commands
// read the metadata directory directly and never contact a server.
package command
