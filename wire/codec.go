// Package wire implements the length-prefixed binary encoding of XA
// transaction identifiers returned by the remote transaction coordinator.
//
// A single identifier is encoded as
//
//	int32 formatID | int32 len(global) | global | int32 len(branch) | branch
//
// and a list as an int32 count followed by count identifiers. All integers are
// big-endian.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"pkt.systems/httptxn/fault"
	"pkt.systems/httptxn/xid"
)

const (
	// ProtocolVersion is the only encoding version understood by Codec.
	ProtocolVersion = 2
	// DefaultMaxLength caps declared byte lengths and list counts.
	DefaultMaxLength = 64 << 10

	preallocLimit = 256
)

// Config selects the protocol version and the length ceiling of a Codec.
type Config struct {
	Version   int
	MaxLength int
}

// Codec encodes and decodes identifiers. It holds no mutable state and is
// safe for concurrent use.
type Codec struct {
	version   int
	maxLength int
}

// New returns a Codec bound to cfg.Version.
func New(cfg Config) (*Codec, error) {
	if cfg.Version != ProtocolVersion {
		return nil, fmt.Errorf("wire: unsupported protocol version %d (want %d)", cfg.Version, ProtocolVersion)
	}
	maxLength := cfg.MaxLength
	if maxLength < 0 {
		return nil, fmt.Errorf("wire: max length must be >= 0, got %d", maxLength)
	}
	if maxLength == 0 {
		maxLength = DefaultMaxLength
	}
	return &Codec{version: cfg.Version, maxLength: maxLength}, nil
}

// Version returns the protocol version the codec is bound to.
func (c *Codec) Version() int { return c.version }

// MaxLength returns the configured ceiling.
func (c *Codec) MaxLength() int { return c.maxLength }

// DecodeOne reads a single identifier from r.
func (c *Codec) DecodeOne(r io.Reader) (xid.Xid, error) {
	formatID, err := readInt32(r, "format id")
	if err != nil {
		return xid.Xid{}, err
	}
	global, err := c.readBytes(r, "global id")
	if err != nil {
		return xid.Xid{}, err
	}
	branch, err := c.readBytes(r, "branch qualifier")
	if err != nil {
		return xid.Xid{}, err
	}
	return xid.New(formatID, global, branch), nil
}

// DecodeMany reads a count-prefixed list of identifiers from r, preserving
// wire order. No partial list is returned on failure.
func (c *Codec) DecodeMany(r io.Reader) ([]xid.Xid, error) {
	count, err := c.readLength(r, "count")
	if err != nil {
		return nil, err
	}
	out := make([]xid.Xid, 0, min(count, preallocLimit))
	for i := 0; i < count; i++ {
		x, err := c.DecodeOne(r)
		if err != nil {
			return nil, fault.Decode(fmt.Sprintf("record %d of %d", i+1, count), err)
		}
		out = append(out, x)
	}
	return out, nil
}

// EncodeOne writes x to w.
func (c *Codec) EncodeOne(w io.Writer, x xid.Xid) error {
	if x.GlobalLen() > c.maxLength || x.BranchLen() > c.maxLength {
		return fmt.Errorf("wire: xid part exceeds max length %d", c.maxLength)
	}
	if err := writeInt32(w, x.FormatID()); err != nil {
		return err
	}
	if err := writeBytes(w, x.GlobalID()); err != nil {
		return err
	}
	return writeBytes(w, x.BranchQualifier())
}

// EncodeMany writes a count-prefixed list to w.
func (c *Codec) EncodeMany(w io.Writer, list []xid.Xid) error {
	if len(list) > c.maxLength {
		return fmt.Errorf("wire: %d xids exceed max count %d", len(list), c.maxLength)
	}
	if err := writeInt32(w, int32(len(list))); err != nil {
		return err
	}
	for _, x := range list {
		if err := c.EncodeOne(w, x); err != nil {
			return err
		}
	}
	return nil
}

func (c *Codec) readLength(r io.Reader, field string) (int, error) {
	n, err := readInt32(r, field)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fault.Decode(fmt.Sprintf("negative %s %d", field, n), nil)
	}
	if int(n) > c.maxLength {
		return 0, fault.Decode(fmt.Sprintf("%s %d exceeds max length %d", field, n, c.maxLength), nil)
	}
	return int(n), nil
}

func (c *Codec) readBytes(r io.Reader, field string) ([]byte, error) {
	n, err := c.readLength(r, field+" length")
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fault.Decode("read "+field, truncated(err))
	}
	return buf, nil
}

func readInt32(r io.Reader, field string) (int32, error) {
	var raw [4]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return 0, fault.Decode("read "+field, truncated(err))
	}
	return int32(binary.BigEndian.Uint32(raw[:])), nil
}

func truncated(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

func writeInt32(w io.Writer, v int32) error {
	var raw [4]byte
	binary.BigEndian.PutUint32(raw[:], uint32(v))
	_, err := w.Write(raw[:])
	return err
}

func writeBytes(w io.Writer, b []byte) error {
	if err := writeInt32(w, int32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}
