// Package tlsutil loads the TLS material tbl serves with. Certificate
// provisioning itself is out of scope; tbl only consumes PEM files the
// operator points it at.
package tlsutil

import (
	"crypto/tls"
	"fmt"
)

// LoadServerConfig builds a server TLS configuration from PEM cert and key
// files. Unreadable or mismatched material is a fatal configuration error
// surfaced before the server binds.
func LoadServerConfig(certPath, keyPath string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("load TLS cert/key (%s, %s): %w", certPath, keyPath, err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
