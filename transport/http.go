package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"pkt.systems/httptxn/fault"
	"pkt.systems/httptxn/internal/loggingutil"
	"pkt.systems/httptxn/internal/tcclient"
	"pkt.systems/httptxn/tlsutil"
	"pkt.systems/pslog"
)

// HeaderXAErrorCode lets a coordinator report an XA error code alongside a
// non-2xx response.
const HeaderXAErrorCode = "X-XA-Error-Code"

// DefaultHTTPTimeout bounds a single exchange when HTTPConfig.Timeout is unset.
const DefaultHTTPTimeout = 30 * time.Second

const maxErrorBody = 512

// HTTPConfig configures an HTTPTarget.
type HTTPConfig struct {
	// Endpoint is the coordinator base URL, e.g. https://tc:8443/txn/v1.
	Endpoint string
	Timeout  time.Duration

	DisableMTLS bool
	BundlePath  string
	Bundle      *tlsutil.ClientBundle
	TrustPEM    [][]byte

	// HTTPClient overrides client construction entirely.
	HTTPClient *http.Client
	Logger     pslog.Logger
}

// HTTPTarget is a Target backed by net/http. Each Send runs the exchange on
// its own goroutine.
type HTTPTarget struct {
	uri    *url.URL
	client *http.Client
	logger pslog.Logger
}

// StatusError reports a non-2xx coordinator response.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if e == nil {
		return "unexpected status"
	}
	msg := "unexpected status " + e.Status
	if e.Status == "" {
		msg = "unexpected status " + strconv.Itoa(e.StatusCode)
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// NewHTTP constructs an HTTPTarget.
func NewHTTP(cfg HTTPConfig) (*HTTPTarget, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.New("transport: endpoint required")
	}
	uri, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("transport: parse endpoint: %w", err)
	}
	if uri.Scheme != "http" && uri.Scheme != "https" {
		return nil, fmt.Errorf("transport: unsupported scheme %q", uri.Scheme)
	}
	if uri.Host == "" {
		return nil, fmt.Errorf("transport: endpoint %q has no host", endpoint)
	}
	uri.Path = strings.TrimSuffix(uri.Path, "/")
	uri.RawQuery = ""
	uri.Fragment = ""
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultHTTPTimeout
		}
		client, err = tcclient.NewHTTPClient(tcclient.Config{
			DisableMTLS: cfg.DisableMTLS,
			BundlePath:  cfg.BundlePath,
			Bundle:      cfg.Bundle,
			Timeout:     timeout,
			TrustPEM:    cfg.TrustPEM,
		})
		if err != nil {
			return nil, err
		}
	}
	return &HTTPTarget{
		uri:    uri,
		client: client,
		logger: loggingutil.WithSubsystem(cfg.Logger, "txn.transport"),
	}, nil
}

// URI returns a copy of the coordinator base URL.
func (t *HTTPTarget) URI() *url.URL {
	u := *t.uri
	return &u
}

// Send starts the exchange and returns immediately. The request is detached
// from ctx cancellation so an interrupted caller does not abort it; values
// such as the correlation id and trace span still flow through.
func (t *HTTPTarget) Send(ctx context.Context, req Request, onSuccess func(body io.Reader), onFailure func(err error)) {
	if ctx == nil {
		ctx = context.Background()
	}
	go t.exchange(context.WithoutCancel(ctx), req.Clone(), onSuccess, onFailure)
}

func (t *HTTPTarget) exchange(ctx context.Context, req Request, onSuccess func(io.Reader), onFailure func(error)) {
	start := time.Now()
	target := t.resolve(req.Path)
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, nil)
	if err != nil {
		onFailure(fault.Transport("build request", err))
		return
	}
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	correlationID := CorrelationIDFromContext(ctx)
	if correlationID == "" {
		correlationID = GenerateCorrelationID()
	}
	httpReq.Header.Set(HeaderCorrelationID, correlationID)
	logger := t.logger.With("method", req.Method, "path", req.Path, "correlation_id", correlationID)
	logger.Trace("txn.transport.send")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		logger.Debug("txn.transport.send.failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
		onFailure(fault.Transport(req.Method+" "+req.Path, err))
		return
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := statusFault(req, resp)
		logger.Debug("txn.transport.status",
			"status", resp.StatusCode,
			"error", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		onFailure(err)
		return
	}
	body := &countingReader{r: resp.Body}
	onSuccess(body)
	logger.Debug("txn.transport.complete",
		"status", resp.StatusCode,
		"read", humanize.IBytes(uint64(body.n)),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

func (t *HTTPTarget) resolve(path string) string {
	u := url.URL{Scheme: t.uri.Scheme, Host: t.uri.Host, User: t.uri.User}
	return u.String() + path
}

func statusFault(req Request, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	statusErr := &StatusError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       strings.TrimSpace(string(raw)),
	}
	if header := strings.TrimSpace(resp.Header.Get(HeaderXAErrorCode)); header != "" {
		if code, err := strconv.ParseInt(header, 10, 32); err == nil {
			return &fault.Fault{
				Kind:    fault.KindXA,
				Msg:     req.Method + " " + req.Path,
				Code:    int32(code),
				HasCode: true,
				Cause:   statusErr,
			}
		}
	}
	return fault.Transport(req.Method+" "+req.Path, statusErr)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
