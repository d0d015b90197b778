// Package httptxn is a remote XA transaction peer that talks to a transaction
// coordinator over HTTP. It begins transactions, lists in-doubt branches for
// recovery and binds subordinate handles to known transaction ids.
//
// # Building a peer
//
// Config carries the coordinator endpoint and TLS material. Mutual TLS is on
// by default and expects a client PEM bundle (CA certificate, client
// certificate and key):
//
//	p, err := httptxn.NewPeer(httptxn.Config{
//	    Endpoint:   "https://tc.example:9443/txn",
//	    BundlePath: "/etc/httptxn/client.pem",
//	}, logger)
//	if err != nil { log.Fatal(err) }
//
//	handle, err := p.Begin(ctx, 30)
//	if err != nil { log.Fatal(err) }
//	fmt.Println(handle.Xid())
//
// # Requests
//
// Begin issues POST <base>/begin with "Accept: new-transaction" and a
// "Timeout" header in seconds. Recover issues GET
// <base>/xa-recover/<parent> with "Accept: recovery-list",
// "Recovery-Parent-Name" and "Recovery-Flags". Responses carry Xids in the
// big-endian length-prefixed format implemented by package wire.
//
// # Failures
//
// Errors are *fault.Fault values. Begin failures are fault.ErrSystem;
// Recover failures are fault.ErrXA with an X/Open code (CodeGeneric when the
// coordinator gave none). A caller whose context ends while waiting gets
// fault.ErrInterrupted; the in-flight request is not cancelled.
//
// A coordinator may report an XA code on a non-2xx response via the
// X-XA-Error-Code header; Recover surfaces that code unchanged.
package httptxn
