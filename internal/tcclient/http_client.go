package tcclient

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"pkt.systems/httptxn/tlsutil"
)

// Config configures the HTTP client used to reach a transaction coordinator.
type Config struct {
	DisableMTLS bool
	BundlePath  string
	Bundle      *tlsutil.ClientBundle
	Timeout     time.Duration
	TrustPEM    [][]byte
	// DisableTracing skips the otelhttp round tripper.
	DisableTracing bool
}

// NewHTTPClient builds an HTTP client with optional mTLS and custom trust
// roots. Unless disabled, requests are traced through otelhttp.
func NewHTTPClient(cfg Config) (*http.Client, error) {
	transport, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return nil, errors.New("tcclient: http transport unexpected type")
	}
	tr := transport.Clone()
	if !cfg.DisableMTLS {
		bundle := cfg.Bundle
		if bundle == nil {
			if cfg.BundlePath == "" {
				return nil, errors.New("tcclient: client bundle required for mTLS")
			}
			var err error
			bundle, err = tlsutil.LoadClientBundle(cfg.BundlePath)
			if err != nil {
				return nil, fmt.Errorf("tcclient: load client bundle: %w", err)
			}
		}
		roots := x509.NewCertPool()
		for _, cert := range bundle.CACerts {
			roots.AddCert(cert)
		}
		for _, blob := range cfg.TrustPEM {
			if len(blob) == 0 {
				continue
			}
			roots.AppendCertsFromPEM(blob)
		}
		tr.TLSClientConfig = buildClientTLS(bundle, roots)
	} else {
		tr.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	var rt http.RoundTripper = tr
	if !cfg.DisableTracing {
		rt = otelhttp.NewTransport(tr)
	}
	return &http.Client{
		Timeout:   cfg.Timeout,
		Transport: rt,
	}, nil
}

func buildClientTLS(bundle *tlsutil.ClientBundle, roots *x509.CertPool) *tls.Config {
	if roots == nil {
		roots = bundle.CAPool
	}
	return &tls.Config{
		MinVersion:         tls.VersionTLS12,
		Certificates:       []tls.Certificate{bundle.Certificate},
		RootCAs:            roots,
		InsecureSkipVerify: true,
		VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			return verifyServerCertificate(rawCerts, roots)
		},
	}
}

// verifyServerCertificate checks the presented chain against roots without
// hostname verification; coordinators are addressed by configured URL and
// authenticated by the shared CA.
func verifyServerCertificate(rawCerts [][]byte, roots *x509.CertPool) error {
	if len(rawCerts) == 0 {
		return errors.New("mtls: missing server certificate")
	}
	certs := make([]*x509.Certificate, 0, len(rawCerts))
	for _, raw := range rawCerts {
		cert, err := x509.ParseCertificate(raw)
		if err != nil {
			return fmt.Errorf("mtls: parse server certificate: %w", err)
		}
		certs = append(certs, cert)
	}
	opts := x509.VerifyOptions{
		Roots:         roots,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		Intermediates: x509.NewCertPool(),
		CurrentTime:   time.Now(),
	}
	for _, cert := range certs[1:] {
		opts.Intermediates.AddCert(cert)
	}
	if _, err := certs[0].Verify(opts); err != nil {
		return fmt.Errorf("mtls: verify server certificate: %w", err)
	}
	return nil
}
