// Package fault defines the tagged failure taxonomy surfaced by the remote
// transaction peer and the translation rules that map low-level failures onto
// it.
package fault

import (
	"errors"
	"strconv"
	"strings"
)

// Kind classifies a Fault.
type Kind uint8

const (
	// KindUnknown is the zero Kind.
	KindUnknown Kind = iota
	// KindTransport reports a network or connection failure before decoding.
	KindTransport
	// KindDecode reports a malformed, truncated or oversized payload.
	KindDecode
	// KindInterrupted reports that the local wait was interrupted.
	KindInterrupted
	// KindXA reports a recovery or subordinate failure carrying an XA code.
	KindXA
	// KindSystem reports a generic transaction system failure (begin path).
	KindSystem
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindDecode:
		return "decode"
	case KindInterrupted:
		return "interrupted"
	case KindXA:
		return "xa"
	case KindSystem:
		return "system"
	default:
		return "unknown"
	}
}

// X/Open XA error codes.
const (
	// CodeGeneric is attached when a failure carries no specific XA code.
	CodeGeneric int32 = 0
	XAErrRMErr  int32 = -3
	XAErrNoTA   int32 = -4
	XAErrInval  int32 = -5
	XAErrProto  int32 = -6
	XAErrRMFail int32 = -7
	XAErrDupID  int32 = -8
	// XAErrOutside reports that the resource manager is doing work outside
	// the global transaction.
	XAErrOutside int32 = -9
)

// Sentinels for errors.Is matching by kind.
var (
	ErrTransport   = &Fault{Kind: KindTransport}
	ErrDecode      = &Fault{Kind: KindDecode}
	ErrInterrupted = &Fault{Kind: KindInterrupted}
	ErrXA          = &Fault{Kind: KindXA}
	ErrSystem      = &Fault{Kind: KindSystem}
)

// Fault is the single error type produced by this module. Op names the peer
// operation (begin, recover) when known; Code is only meaningful when HasCode
// is set.
type Fault struct {
	Kind    Kind
	Op      string
	Msg     string
	Code    int32
	HasCode bool
	Cause   error
}

func (f *Fault) Error() string {
	if f == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString("httptxn")
	if f.Op != "" {
		b.WriteString(" ")
		b.WriteString(f.Op)
	}
	b.WriteString(": ")
	b.WriteString(f.Kind.String())
	if f.Msg != "" {
		b.WriteString(": ")
		b.WriteString(f.Msg)
	}
	if f.Cause != nil {
		b.WriteString(": ")
		b.WriteString(f.Cause.Error())
	}
	if f.HasCode {
		b.WriteString(" (xa code ")
		b.WriteString(strconv.FormatInt(int64(f.Code), 10))
		b.WriteString(")")
	}
	return b.String()
}

// Unwrap exposes the underlying cause.
func (f *Fault) Unwrap() error {
	if f == nil {
		return nil
	}
	return f.Cause
}

// Is matches another Fault by kind so the package sentinels work with
// errors.Is.
func (f *Fault) Is(target error) bool {
	t, ok := target.(*Fault)
	if !ok || f == nil || t == nil {
		return false
	}
	return t.Kind == f.Kind && t.Kind != KindUnknown
}

// Transport wraps a network level failure.
func Transport(msg string, cause error) *Fault {
	return &Fault{Kind: KindTransport, Msg: msg, Cause: cause}
}

// Decode reports a payload that could not be decoded.
func Decode(msg string, cause error) *Fault {
	return &Fault{Kind: KindDecode, Msg: msg, Cause: cause}
}

// Interrupted reports an interrupted wait for op.
func Interrupted(op string, cause error) *Fault {
	return &Fault{Kind: KindInterrupted, Op: op, Cause: cause}
}

// XA builds an XA fault carrying code.
func XA(op string, code int32, cause error) *Fault {
	return &Fault{Kind: KindXA, Op: op, Code: code, HasCode: true, Cause: cause}
}

// System builds a transaction system fault.
func System(op string, cause error) *Fault {
	return &Fault{Kind: KindSystem, Op: op, Cause: cause}
}

// XACoder is implemented by errors from other layers that carry an XA code.
type XACoder interface {
	XACode() int32
}

// CodeOf returns the XA code carried anywhere in err's chain.
func CodeOf(err error) (int32, bool) {
	if err == nil {
		return 0, false
	}
	for cur := err; cur != nil; cur = errors.Unwrap(cur) {
		if f, ok := cur.(*Fault); ok && f != nil && f.HasCode {
			return f.Code, true
		}
	}
	var coder XACoder
	if errors.As(err, &coder) {
		return coder.XACode(), true
	}
	return 0, false
}

// KindOf returns the kind of the outermost Fault in err's chain.
func KindOf(err error) Kind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	return KindUnknown
}
