package security

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"

	"google.golang.org/grpc/credentials"
)

// PeerCredentials holds the transport credentials of a node's peer sync
// channel. Both sides present a node certificate signed by the fleet CA.
type PeerCredentials struct {
	Server credentials.TransportCredentials
	Client credentials.TransportCredentials

	// Leaf is the node certificate, for expiry reporting
	Leaf *x509.Certificate
}

// LoadPeerCredentials builds mutual TLS credentials from node.crt, node.key
// and ca.crt in certDir
func LoadPeerCredentials(certDir string) (*PeerCredentials, error) {
	cert, err := LoadCertFromFile(certDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load node certificate: %w", err)
	}

	caCert, err := LoadCACertFromFile(certDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load CA certificate: %w", err)
	}

	if err := ValidateCertChain(cert.Leaf, caCert); err != nil {
		return nil, fmt.Errorf("node certificate does not chain to CA: %w", err)
	}

	pool := x509.NewCertPool()
	pool.AddCert(caCert)

	server := &tls.Config{
		Certificates: []tls.Certificate{*cert},
		ClientCAs:    pool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
		MinVersion:   tls.VersionTLS13,
	}
	client := &tls.Config{
		Certificates: []tls.Certificate{*cert},
		RootCAs:      pool,
		MinVersion:   tls.VersionTLS13,
	}

	return &PeerCredentials{
		Server: credentials.NewTLS(server),
		Client: credentials.NewTLS(client),
		Leaf:   cert.Leaf,
	}, nil
}
