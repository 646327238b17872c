// Package handler provides HTTP request handlers for metastore.
//
// This package contains handlers for all HTTP endpoints:
//
//   - rows.go: Row CRUD and listing per table
//   - admin.go: Index status, checkpoints and build information
//   - health.go: Health and readiness checks
//
// All handlers follow a consistent pattern:
//
//   - Parse and validate request
//   - Call the storage engine
//   - Format and return response
//   - Handle errors with appropriate HTTP status codes
package handler
