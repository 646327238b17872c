// Package logger provides structured logging for the metadata node.
//
//   - logger.go: slog-based Logger, level control, process-wide default
//   - context.go: logger and request ID propagation through context
//   - redact.go: masking of secrets such as the WAL encryption key
//
// Output is JSON by default; "text" selects the slog text handler. The
// level can be changed at runtime with SetLevel, which the config watcher
// calls when log.level changes on disk.
package logger
