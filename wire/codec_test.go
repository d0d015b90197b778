package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"pkt.systems/httptxn/fault"
	"pkt.systems/httptxn/xid"
)

func newTestCodec(t testing.TB, maxLength int) *Codec {
	t.Helper()
	codec, err := New(Config{Version: ProtocolVersion, MaxLength: maxLength})
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	return codec
}

func int32Bytes(values ...int32) []byte {
	var buf bytes.Buffer
	for _, v := range values {
		_ = binary.Write(&buf, binary.BigEndian, v)
	}
	return buf.Bytes()
}

type countingReader struct {
	r    io.Reader
	read int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.read += n
	return n, err
}

func TestNewRejectsUnsupportedVersion(t *testing.T) {
	t.Parallel()

	for _, v := range []int{0, 1, 3} {
		if _, err := New(Config{Version: v}); err == nil {
			t.Fatalf("expected error for version %d", v)
		}
	}
	if _, err := New(Config{Version: ProtocolVersion, MaxLength: -1}); err == nil {
		t.Fatal("expected error for negative max length")
	}
	codec := newTestCodec(t, 0)
	if codec.MaxLength() != DefaultMaxLength {
		t.Fatalf("expected default max length, got %d", codec.MaxLength())
	}
	if codec.Version() != ProtocolVersion {
		t.Fatalf("expected version %d, got %d", ProtocolVersion, codec.Version())
	}
}

func TestEncodeDecodeOneRoundTrip(t *testing.T) {
	t.Parallel()

	codec := newTestCodec(t, 0)
	want := xid.New(42, []byte{1, 2, 3}, []byte{9, 9})
	var buf bytes.Buffer
	if err := codec.EncodeOne(&buf, want); err != nil {
		t.Fatalf("encode: %v", err)
	}
	wantWire := append(int32Bytes(42, 3), 1, 2, 3)
	wantWire = append(wantWire, int32Bytes(2)...)
	wantWire = append(wantWire, 9, 9)
	if !bytes.Equal(buf.Bytes(), wantWire) {
		t.Fatalf("unexpected wire bytes %v", buf.Bytes())
	}
	got, err := codec.DecodeOne(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestEncodeDecodeManyEmpty(t *testing.T) {
	t.Parallel()

	codec := newTestCodec(t, 0)
	var buf bytes.Buffer
	if err := codec.EncodeMany(&buf, nil); err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := codec.DecodeMany(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", got)
	}
}

func TestEncodeDecodeManyPreservesOrder(t *testing.T) {
	t.Parallel()

	codec := newTestCodec(t, 0)
	want := []xid.Xid{
		xid.New(1, []byte("g1"), []byte("b1")),
		xid.New(2, []byte{}, []byte("b2")),
		xid.New(-1, []byte("global-three"), nil),
		xid.New(1, []byte("g1"), []byte("b4")),
	}
	var buf bytes.Buffer
	if err := codec.EncodeMany(&buf, want); err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := codec.DecodeMany(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d xids, got %d", len(want), len(got))
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Fatalf("index %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestDecodeTruncated(t *testing.T) {
	t.Parallel()

	codec := newTestCodec(t, 0)
	var full bytes.Buffer
	if err := codec.EncodeOne(&full, xid.New(7, []byte{5, 5, 5}, []byte{6})); err != nil {
		t.Fatalf("encode: %v", err)
	}
	raw := full.Bytes()
	for cut := 0; cut < len(raw); cut++ {
		got, err := codec.DecodeOne(bytes.NewReader(raw[:cut]))
		if err == nil {
			t.Fatalf("cut %d: expected error, got %s", cut, got)
		}
		if !errors.Is(err, fault.ErrDecode) {
			t.Fatalf("cut %d: expected decode fault, got %v", cut, err)
		}
		if !errors.Is(err, io.ErrUnexpectedEOF) {
			t.Fatalf("cut %d: expected unexpected EOF cause, got %v", cut, err)
		}
	}
}

func TestDecodeManyTruncatedReturnsNoPartialList(t *testing.T) {
	t.Parallel()

	codec := newTestCodec(t, 0)
	var buf bytes.Buffer
	list := []xid.Xid{xid.New(1, []byte{1}, []byte{1}), xid.New(2, []byte{2}, []byte{2})}
	if err := codec.EncodeMany(&buf, list); err != nil {
		t.Fatalf("encode: %v", err)
	}
	raw := buf.Bytes()
	got, err := codec.DecodeMany(bytes.NewReader(raw[:len(raw)-1]))
	if err == nil {
		t.Fatal("expected error")
	}
	if got != nil {
		t.Fatalf("expected no partial list, got %v", got)
	}
	if !errors.Is(err, fault.ErrDecode) {
		t.Fatalf("expected decode fault, got %v", err)
	}
}

func TestDecodeRejectsOversizedLengthBeforeReading(t *testing.T) {
	t.Parallel()

	codec := newTestCodec(t, 16)
	payload := append(int32Bytes(1, 17), make([]byte, 17)...)
	r := &countingReader{r: bytes.NewReader(payload)}
	_, err := codec.DecodeOne(r)
	if !errors.Is(err, fault.ErrDecode) {
		t.Fatalf("expected decode fault, got %v", err)
	}
	if r.read != 8 {
		t.Fatalf("expected decoder to stop after the length prefix, consumed %d bytes", r.read)
	}
}

func TestDecodeRejectsNegativeAndOversizedCounts(t *testing.T) {
	t.Parallel()

	codec := newTestCodec(t, 4)
	for _, count := range []int32{-1, 5, 1 << 30} {
		if _, err := codec.DecodeMany(bytes.NewReader(int32Bytes(count))); !errors.Is(err, fault.ErrDecode) {
			t.Fatalf("count %d: expected decode fault, got %v", count, err)
		}
	}
	if _, err := codec.DecodeOne(bytes.NewReader(int32Bytes(1, -2))); !errors.Is(err, fault.ErrDecode) {
		t.Fatalf("expected decode fault for negative length, got %v", err)
	}
}

func TestEncodeEnforcesCeiling(t *testing.T) {
	t.Parallel()

	codec := newTestCodec(t, 2)
	if err := codec.EncodeOne(io.Discard, xid.New(1, []byte{1, 2, 3}, nil)); err == nil {
		t.Fatal("expected error for oversized global id")
	}
	list := make([]xid.Xid, 3)
	if err := codec.EncodeMany(io.Discard, list); err == nil {
		t.Fatal("expected error for oversized list")
	}
}
