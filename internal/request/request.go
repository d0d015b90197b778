// Package request builds the coordinator requests for the begin and recovery
// operations.
package request

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"pkt.systems/httptxn/transport"
)

const (
	beginPath   = "/begin"
	recoverPath = "/xa-recover"

	HeaderAccept             = "Accept"
	HeaderTimeout            = "Timeout"
	HeaderRecoveryParentName = "Recovery-Parent-Name"
	HeaderRecoveryFlags      = "Recovery-Flags"

	AcceptNewTransaction = "new-transaction"
	AcceptRecoveryList   = "recovery-list"
)

// ErrInvalidArgument reports a request that must not be sent.
var ErrInvalidArgument = errors.New("request: invalid argument")

// Builder produces requests rooted at a base path.
type Builder struct {
	base string
}

// NewBuilder returns a Builder for the given base path. Trailing slashes are
// dropped.
func NewBuilder(basePath string) Builder {
	return Builder{base: strings.TrimRight(strings.TrimSpace(basePath), "/")}
}

// Begin builds the request that starts a transaction. A zero timeout asks the
// coordinator to apply its default.
func (b Builder) Begin(timeoutSeconds int32) (transport.Request, error) {
	if timeoutSeconds < 0 {
		return transport.Request{}, fmt.Errorf("%w: timeout %d must be >= 0", ErrInvalidArgument, timeoutSeconds)
	}
	header := make(http.Header, 2)
	header.Set(HeaderAccept, AcceptNewTransaction)
	header.Set(HeaderTimeout, strconv.FormatInt(int64(timeoutSeconds), 10))
	return transport.Request{
		Method: http.MethodPost,
		Path:   b.base + beginPath,
		Header: header,
	}, nil
}

// Recover builds the recovery scan request for parentName.
func (b Builder) Recover(flag int32, parentName string) (transport.Request, error) {
	if parentName == "" {
		return transport.Request{}, fmt.Errorf("%w: parent name required", ErrInvalidArgument)
	}
	header := make(http.Header, 3)
	header.Set(HeaderAccept, AcceptRecoveryList)
	header.Set(HeaderRecoveryParentName, parentName)
	header.Set(HeaderRecoveryFlags, strconv.FormatInt(int64(flag), 10))
	return transport.Request{
		Method: http.MethodGet,
		Path:   b.base + recoverPath + "/" + url.PathEscape(parentName),
		Header: header,
	}, nil
}
