// Package tlsroots manages the TLS material of the HTTP server.
//
//   - certs.go: client CA pools and the server tls.Config
//   - reloader.go: server certificate hot-reload via fsnotify
package tlsroots
