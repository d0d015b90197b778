// Package transport defines the request/response collaborator used by the
// remote transaction peer and provides an HTTP implementation.
//
// A Target issues one request per Send and reports the outcome through exactly
// one of two callbacks, invoked exactly once, usually on a goroutine other than
// the caller's.
package transport

import (
	"context"
	"io"
	"net/http"
	"net/url"
)

// Request is the logical request handed to a Target. Path is absolute and
// already includes the target's base path.
type Request struct {
	Method string
	Path   string
	Header http.Header
}

// Clone returns a deep copy of r.
func (r Request) Clone() Request {
	return Request{
		Method: r.Method,
		Path:   r.Path,
		Header: r.Header.Clone(),
	}
}

// Target is an endpoint context: a base address plus an asynchronous send.
//
// Send must invoke exactly one of onSuccess or onFailure exactly once. The
// body passed to onSuccess is only valid for the duration of the callback.
// Cancelling ctx after Send returns must not abort the exchange.
type Target interface {
	URI() *url.URL
	Send(ctx context.Context, req Request, onSuccess func(body io.Reader), onFailure func(err error))
}
