package request

import (
	"errors"
	"net/http"
	"testing"

	"pkt.systems/httptxn/xid"
)

func TestBeginRequest(t *testing.T) {
	t.Parallel()

	req, err := NewBuilder("/txn/v1/").Begin(30)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if req.Method != http.MethodPost {
		t.Fatalf("expected POST, got %s", req.Method)
	}
	if req.Path != "/txn/v1/begin" {
		t.Fatalf("unexpected path %q", req.Path)
	}
	if got := req.Header.Get("Accept"); got != "new-transaction" {
		t.Fatalf("unexpected accept %q", got)
	}
	if got := req.Header.Get("Timeout"); got != "30" {
		t.Fatalf("unexpected timeout %q", got)
	}

	req, err = NewBuilder("").Begin(0)
	if err != nil {
		t.Fatalf("begin zero timeout: %v", err)
	}
	if req.Path != "/begin" || req.Header.Get("Timeout") != "0" {
		t.Fatalf("unexpected zero-timeout request %+v", req)
	}
}

func TestBeginRejectsNegativeTimeout(t *testing.T) {
	t.Parallel()

	if _, err := NewBuilder("/txn").Begin(-1); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestRecoverRequest(t *testing.T) {
	t.Parallel()

	flags := xid.TMStartRScan | xid.TMEndRScan
	req, err := NewBuilder("/txn").Recover(flags, "node a/1")
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if req.Method != http.MethodGet {
		t.Fatalf("expected GET, got %s", req.Method)
	}
	if req.Path != "/txn/xa-recover/node%20a%2F1" {
		t.Fatalf("unexpected path %q", req.Path)
	}
	want := map[string]string{
		"Accept":               "recovery-list",
		"Recovery-Parent-Name": "node a/1",
		"Recovery-Flags":       "25165824",
	}
	for key, value := range want {
		if got := req.Header.Get(key); got != value {
			t.Fatalf("header %s: got %q want %q", key, got, value)
		}
	}
}

func TestRecoverRejectsEmptyParent(t *testing.T) {
	t.Parallel()

	if _, err := NewBuilder("/txn").Recover(xid.TMNoFlags, ""); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}
