// Package xid defines the XA global transaction identifier exchanged with a
// remote transaction coordinator.
package xid

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// XA recovery scan flags. The values are fixed by the X/Open XA standard and
// are forwarded to the coordinator without interpretation.
const (
	TMNoFlags    int32 = 0x00000000
	TMEndRScan   int32 = 0x00800000
	TMStartRScan int32 = 0x01000000
)

// Xid is an immutable XA transaction identifier: a format tag plus the global
// transaction id and the branch qualifier.
type Xid struct {
	formatID int32
	global   []byte
	branch   []byte
}

// New copies global and branch into a new Xid.
func New(formatID int32, global, branch []byte) Xid {
	return Xid{
		formatID: formatID,
		global:   bytes.Clone(nonNil(global)),
		branch:   bytes.Clone(nonNil(branch)),
	}
}

// FormatID returns the format tag.
func (x Xid) FormatID() int32 { return x.formatID }

// GlobalID returns a copy of the global transaction id.
func (x Xid) GlobalID() []byte { return bytes.Clone(nonNil(x.global)) }

// BranchQualifier returns a copy of the branch qualifier.
func (x Xid) BranchQualifier() []byte { return bytes.Clone(nonNil(x.branch)) }

// GlobalLen reports the length of the global transaction id without copying.
func (x Xid) GlobalLen() int { return len(x.global) }

// BranchLen reports the length of the branch qualifier without copying.
func (x Xid) BranchLen() int { return len(x.branch) }

// Equal reports whether x and other carry the same format id and bytes.
func (x Xid) Equal(other Xid) bool {
	return x.formatID == other.formatID &&
		bytes.Equal(x.global, other.global) &&
		bytes.Equal(x.branch, other.branch)
}

// String renders the id as formatID:globalHex:branchHex.
func (x Xid) String() string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(int64(x.formatID), 10))
	b.WriteByte(':')
	b.WriteString(hex.EncodeToString(x.global))
	b.WriteByte(':')
	b.WriteString(hex.EncodeToString(x.branch))
	return b.String()
}

// Parse is the inverse of String.
func Parse(raw string) (Xid, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) != 3 {
		return Xid{}, errors.New("xid: expected formatID:global:branch")
	}
	formatID, err := strconv.ParseInt(parts[0], 10, 32)
	if err != nil {
		return Xid{}, fmt.Errorf("xid: parse format id: %w", err)
	}
	global, err := hex.DecodeString(parts[1])
	if err != nil {
		return Xid{}, fmt.Errorf("xid: parse global id: %w", err)
	}
	branch, err := hex.DecodeString(parts[2])
	if err != nil {
		return Xid{}, fmt.Errorf("xid: parse branch qualifier: %w", err)
	}
	return Xid{formatID: int32(formatID), global: global, branch: branch}, nil
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
