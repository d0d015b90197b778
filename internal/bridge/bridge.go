// Package bridge turns one asynchronous transport exchange into a Future.
package bridge

import (
	"context"
	"fmt"
	"io"

	"pkt.systems/httptxn/fault"
	"pkt.systems/httptxn/internal/future"
	"pkt.systems/httptxn/internal/loggingutil"
	"pkt.systems/httptxn/transport"
	"pkt.systems/pslog"
)

// Decoder turns a successful response body into a value.
type Decoder[T any] func(body io.Reader) (T, error)

// Send issues req through target and returns the future that settles with the
// decoded value or the first failure. decode runs on whatever goroutine the
// target completes on; its errors and panics are routed into the future and
// never escape onto the transport. Completions after the first are dropped.
func Send[T any](ctx context.Context, target transport.Target, req transport.Request, decode Decoder[T], logger pslog.Logger) *future.Future[T] {
	fut := future.New[T]()
	logger = loggingutil.EnsureLogger(logger)
	onSuccess := func(body io.Reader) {
		v, err := safeDecode(decode, body)
		if err != nil {
			settle(fut.Fail(err), logger, req, "decode_failed")
			return
		}
		settle(fut.Resolve(v), logger, req, "success")
	}
	onFailure := func(err error) {
		if err == nil {
			err = fault.Transport("failure reported without cause", nil)
		}
		settle(fut.Fail(err), logger, req, "failure")
	}
	target.Send(ctx, req, onSuccess, onFailure)
	return fut
}

func safeDecode[T any](decode Decoder[T], body io.Reader) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			v = zero
			err = fault.Decode("decoder panic", fmt.Errorf("%v", r))
		}
	}()
	return decode(body)
}

func settle(won bool, logger pslog.Logger, req transport.Request, outcome string) {
	if won {
		return
	}
	logger.Debug("txn.bridge.completion.discarded",
		"method", req.Method,
		"path", req.Path,
		"outcome", outcome,
	)
}
