// Package output renders metastore-cli results as tables, JSON or YAML.
package output
