package tlsutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadClientBundle(t *testing.T) {
	ca, err := GenerateCA("test-ca", 24*time.Hour)
	if err != nil {
		t.Fatalf("generate ca: %v", err)
	}
	issued, err := ca.IssueClient("test-client", 12*time.Hour)
	if err != nil {
		t.Fatalf("issue client: %v", err)
	}
	bundle, err := EncodeClientBundle(ca.CertPEM, issued.CertPEM, issued.KeyPEM)
	if err != nil {
		t.Fatalf("encode client bundle: %v", err)
	}
	path := filepath.Join(t.TempDir(), "client.pem")
	if err := os.WriteFile(path, bundle, 0o600); err != nil {
		t.Fatalf("write bundle: %v", err)
	}

	parsed, err := LoadClientBundle(path)
	if err != nil {
		t.Fatalf("load client bundle: %v", err)
	}
	if parsed.ClientCert == nil || parsed.ClientCert.Subject.CommonName != "test-client" {
		t.Fatalf("unexpected client certificate %+v", parsed.ClientCert)
	}
	if len(parsed.CACerts) != 1 {
		t.Fatalf("expected 1 CA, got %d", len(parsed.CACerts))
	}
	if len(parsed.Certificate.Certificate) == 0 {
		t.Fatal("expected tls certificate chain")
	}
}

func TestLoadClientBundleErrors(t *testing.T) {
	ca, err := GenerateCA("", time.Hour)
	if err != nil {
		t.Fatalf("generate ca: %v", err)
	}
	issued, err := ca.IssueClient("", time.Hour)
	if err != nil {
		t.Fatalf("issue client: %v", err)
	}
	other, err := ca.IssueClient("other", time.Hour)
	if err != nil {
		t.Fatalf("issue other: %v", err)
	}
	cases := []struct {
		name string
		data []byte
		want string
	}{
		{name: "empty", data: nil, want: "client certificate not found"},
		{name: "no key", data: append(append([]byte{}, ca.CertPEM...), issued.CertPEM...), want: "matching private key"},
		{name: "wrong key", data: append(append(append([]byte{}, ca.CertPEM...), issued.CertPEM...), other.KeyPEM...), want: "matching private key"},
		{name: "no ca", data: append(append([]byte{}, issued.CertPEM...), issued.KeyPEM...), want: "CA certificate required"},
	}
	for _, tc := range cases {
		_, err := LoadClientBundleFromBytes(tc.data)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: expected error containing %q, got %v", tc.name, tc.want, err)
		}
	}
	if _, err := EncodeClientBundle(ca.CertPEM, nil, nil); err == nil {
		t.Fatal("expected encode error for missing components")
	}
}
