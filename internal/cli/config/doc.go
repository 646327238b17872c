// Package config defines the metastore-cli configuration.
//
// Values come from, in increasing priority: built-in defaults, the YAML
// file at ~/.metastore/cli.yaml, METASTORE_CLI_* environment variables
// and command-line flags.
package config
