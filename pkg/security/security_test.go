package security

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testCAOnce sync.Once
	testCA     *CertAuthority
	testCAErr  error
)

func fleetCA(t *testing.T) *CertAuthority {
	t.Helper()
	testCAOnce.Do(func() {
		testCA, testCAErr = NewCertAuthority("db")
	})
	require.NoError(t, testCAErr)
	return testCA
}

func TestCertAuthority_IssueNodeCertificate(t *testing.T) {
	ca := fleetCA(t)
	assert.True(t, ca.Certificate().IsCA)

	cert, err := ca.IssueNodeCertificate("db/1", []string{"db-1.internal", "10.0.0.2", ""})
	require.NoError(t, err)

	assert.Equal(t, "db/1", cert.Leaf.Subject.CommonName)
	assert.Equal(t, []string{"db-1.internal"}, cert.Leaf.DNSNames)
	require.Len(t, cert.Leaf.IPAddresses, 1)
	assert.Equal(t, "10.0.0.2", cert.Leaf.IPAddresses[0].String())
	assert.NoError(t, ValidateCertChain(cert.Leaf, ca.Certificate()))
	assert.False(t, CertNeedsRotation(cert.Leaf))
}

func TestCertAuthority_SaveAndLoad(t *testing.T) {
	ca := fleetCA(t)
	dir := t.TempDir()
	require.NoError(t, ca.Save(dir))

	info, err := os.Stat(filepath.Join(dir, caKeyFile))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := LoadCertAuthority(dir)
	require.NoError(t, err)
	assert.True(t, loaded.Certificate().Equal(ca.Certificate()))

	// a certificate from the reloaded CA still chains to the original root
	cert, err := loaded.IssueNodeCertificate("db/0", []string{"127.0.0.1"})
	require.NoError(t, err)
	assert.NoError(t, ValidateCertChain(cert.Leaf, ca.Certificate()))
}

func TestLoadCertAuthority_Missing(t *testing.T) {
	_, err := LoadCertAuthority(t.TempDir())
	assert.Error(t, err)
}

func TestSaveLoadCertToFile(t *testing.T) {
	ca := fleetCA(t)
	dir := filepath.Join(t.TempDir(), "certs")

	assert.False(t, CertExists(dir))

	cert, err := ca.IssueNodeCertificate("db/0", []string{"127.0.0.1"})
	require.NoError(t, err)
	require.NoError(t, SaveCertToFile(cert, dir))
	assert.False(t, CertExists(dir), "CA certificate still missing")

	require.NoError(t, SaveCACertToFile(ca.Certificate().Raw, dir))
	assert.True(t, CertExists(dir))

	loaded, err := LoadCertFromFile(dir)
	require.NoError(t, err)
	require.NotNil(t, loaded.Leaf)
	assert.Equal(t, "db/0", loaded.Leaf.Subject.CommonName)

	caCert, err := LoadCACertFromFile(dir)
	require.NoError(t, err)
	assert.True(t, caCert.Equal(ca.Certificate()))
}

func TestLoadCACertFromFile_BadPEM(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, caCertFile), []byte("not pem"), 0644))

	_, err := LoadCACertFromFile(dir)
	assert.Error(t, err)
}

func TestValidateCertChain(t *testing.T) {
	ca := fleetCA(t)
	cert, err := ca.IssueNodeCertificate("db/0", nil)
	require.NoError(t, err)
	otherCA, err := NewCertAuthority("other")
	require.NoError(t, err)

	tests := []struct {
		name    string
		run     func() error
		wantErr bool
	}{
		{"signed by CA", func() error { return ValidateCertChain(cert.Leaf, ca.Certificate()) }, false},
		{"nil certificate", func() error { return ValidateCertChain(nil, ca.Certificate()) }, true},
		{"nil CA", func() error { return ValidateCertChain(cert.Leaf, nil) }, true},
		{"other fleet", func() error { return ValidateCertChain(cert.Leaf, otherCA.Certificate()) }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCertNeedsRotation(t *testing.T) {
	assert.True(t, CertNeedsRotation(nil))

	cert, err := fleetCA(t).IssueNodeCertificate("db/0", nil)
	require.NoError(t, err)

	leaf := *cert.Leaf
	leaf.NotAfter = time.Now().Add(10 * 24 * time.Hour)
	assert.True(t, CertNeedsRotation(&leaf))
}

func TestLoadPeerCredentials(t *testing.T) {
	ca := fleetCA(t)
	dir := t.TempDir()

	_, err := LoadPeerCredentials(dir)
	assert.Error(t, err)

	cert, err := ca.IssueNodeCertificate("db/0", []string{"127.0.0.1"})
	require.NoError(t, err)
	require.NoError(t, SaveCertToFile(cert, dir))
	require.NoError(t, SaveCACertToFile(ca.Certificate().Raw, dir))

	creds, err := LoadPeerCredentials(dir)
	require.NoError(t, err)
	assert.NotNil(t, creds.Server)
	assert.NotNil(t, creds.Client)
	assert.Equal(t, "db/0", creds.Leaf.Subject.CommonName)

	other, err := NewCertAuthority("other")
	require.NoError(t, err)
	require.NoError(t, SaveCACertToFile(other.Certificate().Raw, dir))
	_, err = LoadPeerCredentials(dir)
	assert.Error(t, err, "node certificate from a different fleet CA")
}
