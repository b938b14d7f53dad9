package certutil

import (
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseCert(t *testing.T, pemBytes []byte) *x509.Certificate {
	t.Helper()
	block, _ := pem.Decode(pemBytes)
	require.NotNil(t, block)
	cert, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)
	return cert
}

func TestIssuedCertsChainToCA(t *testing.T) {
	ca, err := NewCA("test CA")
	require.NoError(t, err)

	serverPair, err := IssueServerCert(ca, []string{"localhost", "127.0.0.1"})
	require.NoError(t, err)
	clientPair, err := IssueClientCert(ca, "alice")
	require.NoError(t, err)

	roots := x509.NewCertPool()
	require.True(t, roots.AppendCertsFromPEM(ca.CertPEM))

	serverCert := parseCert(t, serverPair.CertPEM)
	_, err = serverCert.Verify(x509.VerifyOptions{
		Roots:     roots,
		DNSName:   "localhost",
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	})
	assert.NoError(t, err, "server certificate must verify against the CA")
	assert.Len(t, serverCert.IPAddresses, 1)

	clientCert := parseCert(t, clientPair.CertPEM)
	_, err = clientCert.Verify(x509.VerifyOptions{
		Roots:     roots,
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	})
	assert.NoError(t, err, "client certificate must verify against the CA")
	assert.Equal(t, "alice", clientCert.Subject.CommonName)
}

func TestClientCertEmptyCommonName(t *testing.T) {
	ca, err := NewCA("test CA")
	require.NoError(t, err)

	pair, err := IssueClientCert(ca, "")
	require.NoError(t, err)
	assert.Empty(t, parseCert(t, pair.CertPEM).Subject.CommonName)
}

func TestIssueRejectsGarbageCA(t *testing.T) {
	_, err := IssueServerCert(KeyPair{CertPEM: []byte("nope"), KeyPEM: []byte("nope")}, []string{"localhost"})
	assert.Error(t, err)

	_, err = IssueClientCert(KeyPair{CertPEM: []byte("nope"), KeyPEM: []byte("nope")}, "alice")
	assert.Error(t, err)
}
