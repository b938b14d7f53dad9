package server

import (
	"crypto/tls"
	"errors"
)

var (
	// ErrNoCertificate means the peer presented no verified certificate.
	// With RequireAndVerifyClientCert the handshake normally fails first;
	// this guards the WebSocket path, where the TLS state arrives via the
	// HTTP request.
	ErrNoCertificate = errors.New("no client certificate presented")

	// ErrNoCommonName means the verified leaf certificate has an empty
	// subject common name, so no chat identity can be derived.
	ErrNoCommonName = errors.New("client certificate has no common name")
)

// peerIdentity derives the chat username from a completed TLS handshake:
// the subject common name of the verified leaf certificate. Identity comes
// from the credential only, never from client-supplied text.
func peerIdentity(state tls.ConnectionState) (string, error) {
	if len(state.PeerCertificates) == 0 {
		return "", ErrNoCertificate
	}

	cn := state.PeerCertificates[0].Subject.CommonName
	if cn == "" {
		return "", ErrNoCommonName
	}

	return cn, nil
}
