package security

import (
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	nodeCertFile = "node.crt"
	nodeKeyFile  = "node.key"
	caCertFile   = "ca.crt"
	caKeyFile    = "ca.key"

	// rotate when less than 30 days remain
	certRotationThreshold = 30 * 24 * time.Hour
)

// SaveCertToFile writes node.crt and node.key to certDir
func SaveCertToFile(cert *tls.Certificate, certDir string) error {
	if err := os.MkdirAll(certDir, 0700); err != nil {
		return fmt.Errorf("failed to create cert directory: %w", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: cert.Certificate[0],
	})
	if err := os.WriteFile(filepath.Join(certDir, nodeCertFile), certPEM, 0600); err != nil {
		return fmt.Errorf("failed to write certificate: %w", err)
	}

	privateKey, ok := cert.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return fmt.Errorf("private key is not RSA")
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privateKey),
	})
	if err := os.WriteFile(filepath.Join(certDir, nodeKeyFile), keyPEM, 0600); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}

	return nil
}

// LoadCertFromFile loads node.crt and node.key from certDir
func LoadCertFromFile(certDir string) (*tls.Certificate, error) {
	cert, err := tls.LoadX509KeyPair(filepath.Join(certDir, nodeCertFile), filepath.Join(certDir, nodeKeyFile))
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate: %w", err)
	}

	if cert.Leaf == nil {
		leaf, err := x509.ParseCertificate(cert.Certificate[0])
		if err != nil {
			return nil, fmt.Errorf("failed to parse certificate: %w", err)
		}
		cert.Leaf = leaf
	}

	return &cert, nil
}

// SaveCACertToFile writes ca.crt to certDir
func SaveCACertToFile(caCert []byte, certDir string) error {
	if err := os.MkdirAll(certDir, 0700); err != nil {
		return fmt.Errorf("failed to create cert directory: %w", err)
	}

	caPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: caCert,
	})
	if err := os.WriteFile(filepath.Join(certDir, caCertFile), caPEM, 0644); err != nil {
		return fmt.Errorf("failed to write CA certificate: %w", err)
	}

	return nil
}

// LoadCACertFromFile loads ca.crt from certDir
func LoadCACertFromFile(certDir string) (*x509.Certificate, error) {
	caPEM, err := os.ReadFile(filepath.Join(certDir, caCertFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}

	block, _ := pem.Decode(caPEM)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("failed to decode CA certificate PEM")
	}

	caCert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CA certificate: %w", err)
	}

	return caCert, nil
}

// CertExists reports whether certDir holds a node certificate, its key and
// the CA certificate
func CertExists(certDir string) bool {
	for _, name := range []string{nodeCertFile, nodeKeyFile, caCertFile} {
		if _, err := os.Stat(filepath.Join(certDir, name)); err != nil {
			return false
		}
	}
	return true
}

// CertNeedsRotation returns true when less than 30 days remain until expiry
func CertNeedsRotation(cert *x509.Certificate) bool {
	if cert == nil {
		return true
	}
	return time.Until(cert.NotAfter) < certRotationThreshold
}

// ValidateCertChain checks that cert is signed by ca for peer use
func ValidateCertChain(cert, ca *x509.Certificate) error {
	if cert == nil {
		return fmt.Errorf("certificate is nil")
	}
	if ca == nil {
		return fmt.Errorf("CA certificate is nil")
	}

	roots := x509.NewCertPool()
	roots.AddCert(ca)

	opts := x509.VerifyOptions{
		Roots:     roots,
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
	}
	if _, err := cert.Verify(opts); err != nil {
		return fmt.Errorf("certificate verification failed: %w", err)
	}

	return nil
}
