// Package tlsutil loads the PEM client bundles used for mutual TLS against a
// transaction coordinator and issues throwaway certificates for tests and
// local development.
package tlsutil

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

// ClientBundle is a parsed client PEM bundle: CA certificates plus a client
// certificate and its private key.
type ClientBundle struct {
	Certificate   tls.Certificate
	ClientCert    *x509.Certificate
	ClientCertPEM []byte
	ClientKeyPEM  []byte
	CACerts       []*x509.Certificate
	CAPool        *x509.CertPool
}

// LoadClientBundle parses a client bundle from path.
func LoadClientBundle(path string) (*ClientBundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read client bundle: %w", err)
	}
	return LoadClientBundleFromBytes(data)
}

type pemKey struct {
	signer crypto.Signer
	pem    []byte
}

// LoadClientBundleFromBytes parses a client bundle from data. Certificates
// flagged as CA go to the trust pool, the first leaf becomes the client
// certificate and later leaves are kept as its intermediates.
func LoadClientBundleFromBytes(data []byte) (*ClientBundle, error) {
	var (
		caCerts       []*x509.Certificate
		caPool        = x509.NewCertPool()
		clientCert    *x509.Certificate
		clientCertPEM []byte
		clientKeyPEM  []byte
		keys          []pemKey
	)
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		switch block.Type {
		case "CERTIFICATE":
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("client bundle: parse certificate: %w", err)
			}
			switch {
			case cert.IsCA:
				caCerts = append(caCerts, cert)
				caPool.AddCert(cert)
			case clientCert == nil:
				clientCert = cert
				clientCertPEM = pem.EncodeToMemory(block)
			default:
				clientCertPEM = append(clientCertPEM, pem.EncodeToMemory(block)...)
			}
		case "PRIVATE KEY", "RSA PRIVATE KEY", "EC PRIVATE KEY":
			key, err := parsePrivateKey(block)
			if err != nil {
				return nil, fmt.Errorf("client bundle: parse private key: %w", err)
			}
			keys = append(keys, pemKey{signer: key, pem: pem.EncodeToMemory(block)})
		}
	}
	if clientCert == nil {
		return nil, errors.New("client bundle: client certificate not found")
	}
	for _, key := range keys {
		if publicKeysEqual(clientCert.PublicKey, key.signer.Public()) {
			clientKeyPEM = key.pem
			break
		}
	}
	if len(clientKeyPEM) == 0 {
		return nil, errors.New("client bundle: matching private key not found")
	}
	if len(caCerts) == 0 {
		return nil, errors.New("client bundle: CA certificate required")
	}
	tlsCert, err := tls.X509KeyPair(clientCertPEM, clientKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("client bundle: build key pair: %w", err)
	}
	return &ClientBundle{
		Certificate:   tlsCert,
		ClientCert:    clientCert,
		ClientCertPEM: clientCertPEM,
		ClientKeyPEM:  clientKeyPEM,
		CACerts:       caCerts,
		CAPool:        caPool,
	}, nil
}

// EncodeClientBundle concatenates the CA certificate, client certificate and
// client key into one PEM blob.
func EncodeClientBundle(caCertPEM, clientCertPEM, clientKeyPEM []byte) ([]byte, error) {
	if len(clientCertPEM) == 0 || len(clientKeyPEM) == 0 {
		return nil, errors.New("encode client bundle: missing components")
	}
	var buf bytes.Buffer
	buf.Write(caCertPEM)
	buf.Write(clientCertPEM)
	buf.Write(clientKeyPEM)
	return buf.Bytes(), nil
}

func parsePrivateKey(block *pem.Block) (crypto.Signer, error) {
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		if k, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
			return k, nil
		}
		if k, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
			return k, nil
		}
		return nil, err
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("unsupported private key type %T", key)
	}
	return signer, nil
}

func publicKeysEqual(a, b crypto.PublicKey) bool {
	switch ak := a.(type) {
	case ed25519.PublicKey:
		bk, ok := b.(ed25519.PublicKey)
		return ok && bytes.Equal(ak, bk)
	case *rsa.PublicKey:
		return ak.Equal(b)
	case *ecdsa.PublicKey:
		return ak.Equal(b)
	default:
		return false
	}
}
