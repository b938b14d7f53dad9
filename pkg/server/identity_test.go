package server

import (
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"testing"

	"github.com/stretchr/testify/assert"
)

func connStateWithCN(cn string) tls.ConnectionState {
	return tls.ConnectionState{
		PeerCertificates: []*x509.Certificate{
			{Subject: pkix.Name{CommonName: cn}},
		},
	}
}

func TestPeerIdentity(t *testing.T) {
	identity, err := peerIdentity(connStateWithCN("alice"))
	assert.NoError(t, err)
	assert.Equal(t, "alice", identity)
}

func TestPeerIdentityNoCertificate(t *testing.T) {
	_, err := peerIdentity(tls.ConnectionState{})
	assert.ErrorIs(t, err, ErrNoCertificate)
}

func TestPeerIdentityEmptyCommonName(t *testing.T) {
	_, err := peerIdentity(connStateWithCN(""))
	assert.ErrorIs(t, err, ErrNoCommonName)
}

func TestPeerIdentityUsesLeafOnly(t *testing.T) {
	// Chain order is leaf first; the CA's common name must never leak in
	state := tls.ConnectionState{
		PeerCertificates: []*x509.Certificate{
			{Subject: pkix.Name{CommonName: "alice"}},
			{Subject: pkix.Name{CommonName: "certroom CA"}},
		},
	}
	identity, err := peerIdentity(state)
	assert.NoError(t, err)
	assert.Equal(t, "alice", identity)
}
