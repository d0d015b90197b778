package tlsutil

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"strings"
	"time"
)

// CA holds a certificate authority keypair.
type CA struct {
	Cert    *x509.Certificate
	CertPEM []byte
	Key     ed25519.PrivateKey
}

// IssuedCert captures an issued certificate and its private key.
type IssuedCert struct {
	CertPEM []byte
	KeyPEM  []byte
}

// GenerateCA creates a self-signed ed25519 certificate authority.
func GenerateCA(commonName string, validity time.Duration) (*CA, error) {
	if validity <= 0 {
		validity = 10 * 365 * 24 * time.Hour
	}
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 key: %w", err)
	}
	serial, err := newSerial()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: defaultString(commonName, "httptxn-ca")},
		NotBefore:             now.Add(-1 * time.Hour),
		NotAfter:              now.Add(validity),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		MaxPathLenZero:        true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, pub, priv)
	if err != nil {
		return nil, fmt.Errorf("create ca certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("parse ca cert: %w", err)
	}
	return &CA{
		Cert:    cert,
		CertPEM: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		Key:     priv,
	}, nil
}

// IssueServer issues a server certificate valid for hosts (DNS names or IPs).
func (ca *CA) IssueServer(hosts []string, commonName string, validity time.Duration) (IssuedCert, error) {
	template := &x509.Certificate{
		Subject:     pkix.Name{CommonName: defaultString(commonName, "httptxn-coordinator")},
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	for _, host := range hosts {
		host = strings.TrimSpace(host)
		if host == "" {
			continue
		}
		if ip := net.ParseIP(host); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, host)
		}
	}
	return ca.issue(template, validity)
}

// IssueClient issues a client authentication certificate.
func (ca *CA) IssueClient(commonName string, validity time.Duration) (IssuedCert, error) {
	template := &x509.Certificate{
		Subject:     pkix.Name{CommonName: defaultString(commonName, "httptxn-client")},
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	return ca.issue(template, validity)
}

func (ca *CA) issue(template *x509.Certificate, validity time.Duration) (IssuedCert, error) {
	if ca == nil {
		return IssuedCert{}, fmt.Errorf("ca is nil")
	}
	if validity <= 0 {
		validity = 365 * 24 * time.Hour
	}
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return IssuedCert{}, fmt.Errorf("generate key: %w", err)
	}
	serial, err := newSerial()
	if err != nil {
		return IssuedCert{}, err
	}
	now := time.Now().UTC()
	template.SerialNumber = serial
	template.NotBefore = now.Add(-1 * time.Hour)
	template.NotAfter = now.Add(validity)
	template.KeyUsage = x509.KeyUsageDigitalSignature
	der, err := x509.CreateCertificate(rand.Reader, template, ca.Cert, pub, ca.Key)
	if err != nil {
		return IssuedCert{}, fmt.Errorf("create certificate: %w", err)
	}
	keyBytes, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return IssuedCert{}, fmt.Errorf("marshal key: %w", err)
	}
	return IssuedCert{
		CertPEM: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		KeyPEM:  pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyBytes}),
	}, nil
}

func newSerial() (*big.Int, error) {
	serial, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		return nil, fmt.Errorf("generate serial: %w", err)
	}
	return serial, nil
}

func defaultString(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
