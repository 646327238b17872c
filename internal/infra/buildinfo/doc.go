// Package buildinfo provides build information for the metadata node.
//
// Version, Commit and BuildTime are injected via ldflags:
//
//	go build -ldflags "-X github.com/yndnr/metastore-go/internal/infra/buildinfo.Version=v1.0.0"
//
// Values left unset are filled from the module build info when available.
package buildinfo
