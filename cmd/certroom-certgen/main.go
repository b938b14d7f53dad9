// Command certroom-certgen mints the PKI a certroom deployment needs: a
// certificate authority, the server certificate, and one client certificate
// per user (the certificate's common name is the chat username).
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"certroom/pkg/certutil"
)

func main() {
	outDir := flag.String("out", "ssl", "output directory for certificates and keys")
	hosts := flag.String("hosts", "localhost,127.0.0.1", "comma-separated hostnames/IPs for the server certificate")
	users := flag.String("users", "", "comma-separated usernames to issue client certificates for")
	caName := flag.String("ca-name", "certroom CA", "common name for the certificate authority")
	flag.Parse()

	if err := os.MkdirAll(*outDir, 0755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	// Reuse an existing CA so new client certs verify against deployed
	// servers; generate one only if absent.
	caCertPath := filepath.Join(*outDir, "ca.crt")
	caKeyPath := filepath.Join(*outDir, "ca.key")

	var ca certutil.KeyPair
	caCertPEM, certErr := os.ReadFile(caCertPath)
	caKeyPEM, keyErr := os.ReadFile(caKeyPath)
	if certErr == nil && keyErr == nil {
		ca = certutil.KeyPair{CertPEM: caCertPEM, KeyPEM: caKeyPEM}
		log.Printf("Using existing CA at %s", caCertPath)
	} else {
		var err error
		ca, err = certutil.NewCA(*caName)
		if err != nil {
			log.Fatalf("Failed to generate CA: %v", err)
		}
		writeFile(caCertPath, ca.CertPEM, 0644)
		writeFile(caKeyPath, ca.KeyPEM, 0600)
		log.Printf("Generated CA at %s", caCertPath)
	}

	hostList := splitList(*hosts)
	if len(hostList) > 0 {
		serverPair, err := certutil.IssueServerCert(ca, hostList)
		if err != nil {
			log.Fatalf("Failed to issue server certificate: %v", err)
		}
		writeFile(filepath.Join(*outDir, "server.crt"), serverPair.CertPEM, 0644)
		writeFile(filepath.Join(*outDir, "server.key"), serverPair.KeyPEM, 0600)
		log.Printf("Issued server certificate for %s", strings.Join(hostList, ", "))
	}

	for _, user := range splitList(*users) {
		clientPair, err := certutil.IssueClientCert(ca, user)
		if err != nil {
			log.Fatalf("Failed to issue client certificate for %s: %v", user, err)
		}
		writeFile(filepath.Join(*outDir, user+".crt"), clientPair.CertPEM, 0644)
		writeFile(filepath.Join(*outDir, user+".key"), clientPair.KeyPEM, 0600)
		log.Printf("Issued client certificate for user %q", user)
	}

	fmt.Printf("Certificates written to %s\n", *outDir)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func writeFile(path string, data []byte, mode os.FileMode) {
	if err := os.WriteFile(path, data, mode); err != nil {
		log.Fatalf("Failed to write %s: %v", path, err)
	}
}
