package peer

import (
	"net/url"

	"pkt.systems/httptxn/transport"
	"pkt.systems/httptxn/xid"
)

// TransactionHandle is a transaction freshly begun on the coordinator at
// Target. Ownership passes to the caller; commit, rollback and prepare are
// driven by the transaction manager layer through this handle's Xid.
type TransactionHandle struct {
	xid    xid.Xid
	target transport.Target
}

// Xid returns the identifier issued by the coordinator.
func (h *TransactionHandle) Xid() xid.Xid { return h.xid }

// Target returns the endpoint that issued the transaction.
func (h *TransactionHandle) Target() transport.Target { return h.target }

// Location returns the coordinator base URL.
func (h *TransactionHandle) Location() *url.URL { return h.target.URI() }

// SubordinateHandle lets the local process participate in an existing global
// transaction known to the coordinator at Target.
type SubordinateHandle struct {
	xid    xid.Xid
	target transport.Target
}

// Xid returns the caller supplied identifier.
func (h *SubordinateHandle) Xid() xid.Xid { return h.xid }

// Target returns the endpoint the subordinate is bound to.
func (h *SubordinateHandle) Target() transport.Target { return h.target }

// Location returns the coordinator base URL.
func (h *SubordinateHandle) Location() *url.URL { return h.target.URI() }
