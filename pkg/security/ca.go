package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"
)

const (
	// Root CA validity: 10 years
	rootCAValidity = 10 * 365 * 24 * time.Hour
	// Node certificate validity: 90 days
	nodeCertValidity = 90 * 24 * time.Hour
	// Root CA key size: 4096 bits (long-lived)
	rootKeySize = 4096
	// Node key size: 2048 bits (shorter-lived, faster)
	nodeKeySize = 2048

	organization = "Shepherd Fleet"
)

// CertAuthority signs the node certificates of one fleet
type CertAuthority struct {
	rootCert *x509.Certificate
	rootKey  *rsa.PrivateKey
}

// NewCertAuthority generates a new self-signed root for the fleet
func NewCertAuthority(fleet string) (*CertAuthority, error) {
	rootKey, err := rsa.GenerateKey(rand.Reader, rootKeySize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate root key: %w", err)
	}

	serial, err := serialNumber()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{organization},
			CommonName:   fmt.Sprintf("%s root CA", fleet),
		},
		NotBefore:             now,
		NotAfter:              now.Add(rootCAValidity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		IsCA:                  true,
		BasicConstraintsValid: true,
		MaxPathLen:            1,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &rootKey.PublicKey, rootKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create root certificate: %w", err)
	}
	rootCert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, fmt.Errorf("failed to parse root certificate: %w", err)
	}

	return &CertAuthority{rootCert: rootCert, rootKey: rootKey}, nil
}

// LoadCertAuthority reads ca.crt and ca.key from dir
func LoadCertAuthority(dir string) (*CertAuthority, error) {
	rootCert, err := LoadCACertFromFile(dir)
	if err != nil {
		return nil, err
	}

	keyPEM, err := os.ReadFile(filepath.Join(dir, caKeyFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read CA key: %w", err)
	}
	block, _ := pem.Decode(keyPEM)
	if block == nil || block.Type != "RSA PRIVATE KEY" {
		return nil, fmt.Errorf("failed to decode CA key PEM")
	}
	rootKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CA key: %w", err)
	}

	return &CertAuthority{rootCert: rootCert, rootKey: rootKey}, nil
}

// Save writes ca.crt and ca.key to dir. The key never leaves the operator
// host; nodes only receive ca.crt.
func (ca *CertAuthority) Save(dir string) error {
	if err := SaveCACertToFile(ca.rootCert.Raw, dir); err != nil {
		return err
	}

	keyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(ca.rootKey),
	})
	if err := os.WriteFile(filepath.Join(dir, caKeyFile), keyPEM, 0600); err != nil {
		return fmt.Errorf("failed to write CA key: %w", err)
	}
	return nil
}

// Certificate returns the root certificate
func (ca *CertAuthority) Certificate() *x509.Certificate {
	return ca.rootCert
}

// IssueNodeCertificate issues a certificate a node presents both as a peer
// sync server and as a client. hosts may mix DNS names and IP addresses;
// every address peers dial the node on must be listed.
func (ca *CertAuthority) IssueNodeCertificate(node string, hosts []string) (*tls.Certificate, error) {
	nodeKey, err := rsa.GenerateKey(rand.Reader, nodeKeySize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate node key: %w", err)
	}

	serial, err := serialNumber()
	if err != nil {
		return nil, err
	}

	var dnsNames []string
	var ips []net.IP
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			ips = append(ips, ip)
		} else if h != "" {
			dnsNames = append(dnsNames, h)
		}
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{organization},
			CommonName:   node,
		},
		NotBefore:   now,
		NotAfter:    now.Add(nodeCertValidity),
		KeyUsage:    x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
		DNSNames:    dnsNames,
		IPAddresses: ips,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, ca.rootCert, &nodeKey.PublicKey, ca.rootKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create node certificate: %w", err)
	}
	nodeCert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, fmt.Errorf("failed to parse node certificate: %w", err)
	}

	return &tls.Certificate{
		Certificate: [][]byte{certDER},
		PrivateKey:  nodeKey,
		Leaf:        nodeCert,
	}, nil
}

func serialNumber() (*big.Int, error) {
	n, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}
	return n, nil
}
