package tlsroots

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoCertsFound is returned when a PEM source holds no certificates.
var ErrNoCertsFound = errors.New("tlsroots: no certificates found")

// LoadClientCAs builds a pool from a PEM file or from every .pem, .crt and
// .cer file of a directory.
func LoadClientCAs(path string) (*x509.CertPool, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("tlsroots: %w", err)
	}

	pool := x509.NewCertPool()
	if !fi.IsDir() {
		if _, err := addPEMFile(pool, path); err != nil {
			return nil, err
		}
		return pool, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("tlsroots: read dir %s: %w", path, err)
	}
	total := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".pem", ".crt", ".cer":
			n, err := addPEMFile(pool, filepath.Join(path, entry.Name()))
			if err != nil && !errors.Is(err, ErrNoCertsFound) {
				return nil, err
			}
			total += n
		}
	}
	if total == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoCertsFound, path)
	}
	return pool, nil
}

func addPEMFile(pool *x509.CertPool, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("tlsroots: read cert file %s: %w", path, err)
	}
	n, err := addPEM(pool, data)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", err, path)
	}
	return n, nil
}

// addPEM adds every CERTIFICATE block of data to pool.
func addPEM(pool *x509.CertPool, data []byte) (int, error) {
	added := 0
	for len(data) > 0 {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return added, fmt.Errorf("tlsroots: parse certificate: %w", err)
		}
		pool.AddCert(cert)
		added++
	}
	if added == 0 {
		return 0, ErrNoCertsFound
	}
	return added, nil
}

// ServerConfig returns a TLS 1.2+ server config that takes its certificate
// from r. A non-nil clientCAs enables mutual TLS.
func ServerConfig(r *CertReloader, clientCAs *x509.CertPool) *tls.Config {
	cfg := &tls.Config{
		GetCertificate: r.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}
	if clientCAs != nil {
		cfg.ClientCAs = clientCAs
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return cfg
}
