package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pkt.systems/httptxn/fault"
	"pkt.systems/httptxn/tlsutil"
)

type outcome struct {
	body string
	err  error
}

func sendAndWait(t *testing.T, target Target, ctx context.Context, req Request) outcome {
	t.Helper()
	ch := make(chan outcome, 2)
	target.Send(ctx, req,
		func(body io.Reader) {
			data, err := io.ReadAll(body)
			ch <- outcome{body: string(data), err: err}
		},
		func(err error) {
			ch <- outcome{err: err}
		},
	)
	select {
	case out := <-ch:
		select {
		case extra := <-ch:
			t.Fatalf("callback invoked twice: %+v", extra)
		case <-time.After(20 * time.Millisecond):
		}
		return out
	case <-time.After(5 * time.Second):
		t.Fatal("no callback")
	}
	return outcome{}
}

func TestNewHTTPValidatesEndpoint(t *testing.T) {
	cases := map[string]string{
		"empty":     "",
		"scheme":    "ftp://tc/txn",
		"no host":   "http:///txn",
		"malformed": "http://[::1",
	}
	for name, endpoint := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := NewHTTP(HTTPConfig{Endpoint: endpoint, DisableMTLS: true}); err == nil {
				t.Fatalf("expected error for %q", endpoint)
			}
		})
	}
}

func TestNewHTTPRequiresBundleForMTLS(t *testing.T) {
	if _, err := NewHTTP(HTTPConfig{Endpoint: "https://tc:8443/txn"}); err == nil {
		t.Fatal("expected error without client bundle")
	}
}

func TestURITrimsTrailingSlash(t *testing.T) {
	target, err := NewHTTP(HTTPConfig{Endpoint: "http://tc:8080/txn/v1/?x=1", DisableMTLS: true})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	uri := target.URI()
	if uri.String() != "http://tc:8080/txn/v1" {
		t.Fatalf("unexpected uri %s", uri)
	}
	uri.Path = "/mutated"
	if target.URI().Path != "/txn/v1" {
		t.Fatal("URI must return a copy")
	}
}

func TestSendSuccess(t *testing.T) {
	var gotCorrelation, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/txn/begin" {
			http.NotFound(w, r)
			return
		}
		gotCorrelation = r.Header.Get(HeaderCorrelationID)
		gotAccept = r.Header.Get("Accept")
		_, _ = w.Write([]byte("payload"))
	}))
	defer srv.Close()

	target, err := NewHTTP(HTTPConfig{Endpoint: srv.URL + "/txn", HTTPClient: srv.Client()})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := WithCorrelationID(context.Background(), "corr-123")
	out := sendAndWait(t, target, ctx, Request{
		Method: http.MethodPost,
		Path:   target.URI().Path + "/begin",
		Header: http.Header{"Accept": []string{"new-transaction"}},
	})
	if out.err != nil {
		t.Fatalf("send: %v", out.err)
	}
	if out.body != "payload" {
		t.Fatalf("unexpected body %q", out.body)
	}
	if gotCorrelation != "corr-123" {
		t.Fatalf("expected correlation id to propagate, got %q", gotCorrelation)
	}
	if gotAccept != "new-transaction" {
		t.Fatalf("expected accept header, got %q", gotAccept)
	}
}

func TestSendGeneratesCorrelationID(t *testing.T) {
	ids := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ids <- r.Header.Get(HeaderCorrelationID)
	}))
	defer srv.Close()

	target, err := NewHTTP(HTTPConfig{Endpoint: srv.URL, HTTPClient: srv.Client()})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	out := sendAndWait(t, target, context.Background(), Request{Method: http.MethodGet, Path: "/ping"})
	if out.err != nil {
		t.Fatalf("send: %v", out.err)
	}
	id := <-ids
	if _, ok := NormalizeCorrelationID(id); !ok || len(id) != 36 {
		t.Fatalf("expected generated uuid correlation id, got %q", id)
	}
}

func TestSendStatusErrorIsTransportFault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "coordinator overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	target, err := NewHTTP(HTTPConfig{Endpoint: srv.URL, HTTPClient: srv.Client()})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	out := sendAndWait(t, target, context.Background(), Request{Method: http.MethodPost, Path: "/begin"})
	if !errors.Is(out.err, fault.ErrTransport) {
		t.Fatalf("expected transport fault, got %v", out.err)
	}
	var statusErr *StatusError
	if !errors.As(out.err, &statusErr) {
		t.Fatalf("expected StatusError in chain, got %v", out.err)
	}
	if statusErr.StatusCode != http.StatusServiceUnavailable || statusErr.Body != "coordinator overloaded" {
		t.Fatalf("unexpected status error %+v", statusErr)
	}
	if _, ok := fault.CodeOf(out.err); ok {
		t.Fatal("status without XA header must not carry a code")
	}
}

func TestSendStatusWithXACode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(HeaderXAErrorCode, "-4")
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	target, err := NewHTTP(HTTPConfig{Endpoint: srv.URL, HTTPClient: srv.Client()})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	out := sendAndWait(t, target, context.Background(), Request{Method: http.MethodGet, Path: "/xa-recover/x"})
	if !errors.Is(out.err, fault.ErrXA) {
		t.Fatalf("expected XA fault, got %v", out.err)
	}
	if code, ok := fault.CodeOf(out.err); !ok || code != fault.XAErrNoTA {
		t.Fatalf("expected XAER_NOTA, got %d ok=%v", code, ok)
	}
}

func TestSendMalformedXACodeFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(HeaderXAErrorCode, "not-a-number")
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	target, err := NewHTTP(HTTPConfig{Endpoint: srv.URL, HTTPClient: srv.Client()})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	out := sendAndWait(t, target, context.Background(), Request{Method: http.MethodGet, Path: "/x"})
	if !errors.Is(out.err, fault.ErrTransport) {
		t.Fatalf("expected transport fault, got %v", out.err)
	}
}

func TestSendIgnoresCallerCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		_, _ = w.Write([]byte("late"))
	}))
	defer srv.Close()

	target, err := NewHTTP(HTTPConfig{Endpoint: srv.URL, HTTPClient: srv.Client()})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan outcome, 1)
	target.Send(ctx, Request{Method: http.MethodGet, Path: "/slow"},
		func(body io.Reader) {
			data, _ := io.ReadAll(body)
			ch <- outcome{body: string(data)}
		},
		func(err error) { ch <- outcome{err: err} },
	)
	cancel()
	time.Sleep(20 * time.Millisecond)
	close(release)
	select {
	case out := <-ch:
		if out.err != nil || out.body != "late" {
			t.Fatalf("expected exchange to complete, got %+v", out)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("exchange did not complete")
	}
}

func TestSendOverMTLS(t *testing.T) {
	ca, err := tlsutil.GenerateCA("test-ca", time.Hour)
	if err != nil {
		t.Fatalf("ca: %v", err)
	}
	server, err := ca.IssueServer([]string{"127.0.0.1", "localhost"}, "coordinator", time.Hour)
	if err != nil {
		t.Fatalf("server cert: %v", err)
	}
	client, err := ca.IssueClient("peer", time.Hour)
	if err != nil {
		t.Fatalf("client cert: %v", err)
	}
	serverPair, err := tls.X509KeyPair(server.CertPEM, server.KeyPEM)
	if err != nil {
		t.Fatalf("server keypair: %v", err)
	}
	clientCAs := x509.NewCertPool()
	clientCAs.AddCert(ca.Cert)

	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.TLS == nil || len(r.TLS.PeerCertificates) == 0 {
			http.Error(w, "no client cert", http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(r.TLS.PeerCertificates[0].Subject.CommonName))
	}))
	srv.TLS = &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{serverPair},
		ClientCAs:    clientCAs,
		ClientAuth:   tls.RequireAndVerifyClientCert,
	}
	srv.StartTLS()
	defer srv.Close()

	raw, err := tlsutil.EncodeClientBundle(ca.CertPEM, client.CertPEM, client.KeyPEM)
	if err != nil {
		t.Fatalf("encode bundle: %v", err)
	}
	bundle, err := tlsutil.LoadClientBundleFromBytes(raw)
	if err != nil {
		t.Fatalf("load bundle: %v", err)
	}
	target, err := NewHTTP(HTTPConfig{Endpoint: srv.URL, Bundle: bundle, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	out := sendAndWait(t, target, context.Background(), Request{Method: http.MethodGet, Path: "/whoami"})
	if out.err != nil {
		t.Fatalf("send: %v", out.err)
	}
	if strings.TrimSpace(out.body) != "peer" {
		t.Fatalf("expected client identity, got %q", out.body)
	}
}

func TestSendMTLSRejectsUnknownServer(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	ca, err := tlsutil.GenerateCA("other-ca", time.Hour)
	if err != nil {
		t.Fatalf("ca: %v", err)
	}
	client, err := ca.IssueClient("peer", time.Hour)
	if err != nil {
		t.Fatalf("client cert: %v", err)
	}
	raw, err := tlsutil.EncodeClientBundle(ca.CertPEM, client.CertPEM, client.KeyPEM)
	if err != nil {
		t.Fatalf("encode bundle: %v", err)
	}
	bundle, err := tlsutil.LoadClientBundleFromBytes(raw)
	if err != nil {
		t.Fatalf("load bundle: %v", err)
	}
	target, err := NewHTTP(HTTPConfig{Endpoint: srv.URL, Bundle: bundle, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	out := sendAndWait(t, target, context.Background(), Request{Method: http.MethodGet, Path: "/"})
	if !errors.Is(out.err, fault.ErrTransport) {
		t.Fatalf("expected transport fault for untrusted server, got %v", out.err)
	}
}

func TestCorrelationIDNormalization(t *testing.T) {
	if _, ok := NormalizeCorrelationID("  "); ok {
		t.Fatal("blank id accepted")
	}
	if _, ok := NormalizeCorrelationID(strings.Repeat("a", MaxCorrelationIDLength+1)); ok {
		t.Fatal("oversized id accepted")
	}
	if _, ok := NormalizeCorrelationID("bad\nid"); ok {
		t.Fatal("control character accepted")
	}
	if got, ok := NormalizeCorrelationID(" abc "); !ok || got != "abc" {
		t.Fatalf("expected trimmed id, got %q ok=%v", got, ok)
	}
	ctx := WithCorrelationID(context.Background(), "bad\nid")
	if CorrelationIDFromContext(ctx) != "" {
		t.Fatal("invalid id stored in context")
	}
}
