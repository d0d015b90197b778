// Package peer implements the client side of remote XA transaction
// coordination: beginning transactions, scanning for in-doubt branches and
// binding subordinate handles to existing transactions.
//
// Every network operation issues exactly one request and blocks the caller
// until the coordinator answers or the caller's context ends. An interrupted
// wait does not cancel the request; it is left to finish on its own.
package peer

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"pkt.systems/httptxn/fault"
	"pkt.systems/httptxn/internal/bridge"
	"pkt.systems/httptxn/internal/loggingutil"
	"pkt.systems/httptxn/internal/request"
	"pkt.systems/httptxn/transport"
	"pkt.systems/httptxn/wire"
	"pkt.systems/httptxn/xid"
	"pkt.systems/pslog"
)

const (
	opBegin   = "begin"
	opRecover = "recover"
	opLookup  = "lookup"
)

// Config wires a Peer to its collaborators.
type Config struct {
	// Target is the coordinator endpoint. Required.
	Target transport.Target
	// Codec decodes coordinator payloads. Required; it fixes the protocol
	// version used by this peer.
	Codec  *wire.Codec
	Logger pslog.Logger
}

// Peer talks to one remote transaction coordinator. It is safe for
// concurrent use.
type Peer struct {
	target  transport.Target
	codec   *wire.Codec
	builder request.Builder
	logger  pslog.Logger
	tracer  trace.Tracer
	metrics *peerMetrics
}

// New constructs a Peer.
func New(cfg Config) (*Peer, error) {
	if cfg.Target == nil {
		return nil, errors.New("peer: target required")
	}
	if cfg.Codec == nil {
		return nil, errors.New("peer: codec required")
	}
	uri := cfg.Target.URI()
	if uri == nil {
		return nil, errors.New("peer: target has no base address")
	}
	logger := loggingutil.WithSubsystem(cfg.Logger, "txn.peer")
	return &Peer{
		target:  cfg.Target,
		codec:   cfg.Codec,
		builder: request.NewBuilder(uri.Path),
		logger:  logger,
		tracer:  otel.Tracer("pkt.systems/httptxn/peer"),
		metrics: newPeerMetrics(logger),
	}, nil
}

// Begin starts a new transaction on the coordinator. timeoutSeconds bounds the
// transaction on the remote side; zero selects the coordinator default.
// Failures are KindSystem faults, or KindInterrupted when ctx ends first.
func (p *Peer) Begin(ctx context.Context, timeoutSeconds int32) (*TransactionHandle, error) {
	ctx, span := p.tracer.Start(ctx, "httptxn.peer.begin",
		trace.WithAttributes(attribute.Int("httptxn.timeout_seconds", int(timeoutSeconds))))
	defer span.End()
	start := time.Now()

	req, err := p.builder.Begin(timeoutSeconds)
	if err != nil {
		return nil, p.fail(ctx, span, opBegin, start, fault.System(opBegin, err))
	}
	fut := bridge.Send[xid.Xid](ctx, p.target, req, p.codec.DecodeOne, p.logger)
	id, err := fut.Await(ctx)
	if err != nil {
		return nil, p.fail(ctx, span, opBegin, start, fault.Translate(opBegin, err, fault.KindSystem))
	}
	p.metrics.recordOp(ctx, opBegin, time.Since(start), nil)
	span.SetAttributes(attribute.String("httptxn.xid", id.String()))
	p.logger.Debug("txn.peer.begin.complete",
		"xid", id.String(),
		"timeout_seconds", timeoutSeconds,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return &TransactionHandle{xid: id, target: p.target}, nil
}

// Recover asks the coordinator for the in-doubt branches recorded under
// parentName. flag carries the XA scan flags (xid.TMStartRScan,
// xid.TMEndRScan, xid.TMNoFlags). The returned slice preserves coordinator
// order. Failures are KindXA faults, or KindInterrupted when ctx ends first.
func (p *Peer) Recover(ctx context.Context, flag int32, parentName string) ([]xid.Xid, error) {
	ctx, span := p.tracer.Start(ctx, "httptxn.peer.recover",
		trace.WithAttributes(
			attribute.String("httptxn.recovery.parent", parentName),
			attribute.Int("httptxn.recovery.flags", int(flag)),
		))
	defer span.End()
	start := time.Now()

	req, err := p.builder.Recover(flag, parentName)
	if err != nil {
		return nil, p.fail(ctx, span, opRecover, start, fault.XA(opRecover, fault.XAErrInval, err))
	}
	fut := bridge.Send[[]xid.Xid](ctx, p.target, req, p.codec.DecodeMany, p.logger)
	list, err := fut.Await(ctx)
	if err != nil {
		return nil, p.fail(ctx, span, opRecover, start, fault.Translate(opRecover, err, fault.KindXA))
	}
	p.metrics.recordOp(ctx, opRecover, time.Since(start), nil)
	p.metrics.recordRecovered(ctx, parentName, len(list))
	span.SetAttributes(attribute.Int("httptxn.recovery.count", len(list)))
	p.logger.Debug("txn.peer.recover.complete",
		"parent", parentName,
		"flags", flag,
		"count", len(list),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return list, nil
}

// LookupXid binds id to this peer's coordinator without a network round trip.
func (p *Peer) LookupXid(id xid.Xid) *SubordinateHandle {
	p.logger.Trace("txn.peer.lookup", "xid", id.String(), "op", opLookup)
	return &SubordinateHandle{xid: id, target: p.target}
}

func (p *Peer) fail(ctx context.Context, span trace.Span, op string, start time.Time, err error) error {
	p.metrics.recordOp(ctx, op, time.Since(start), err)
	span.RecordError(err)
	span.SetStatus(codes.Error, fault.KindOf(err).String())
	fields := []any{
		"op", op,
		"kind", fault.KindOf(err).String(),
		"duration_ms", time.Since(start).Milliseconds(),
		"error", err,
	}
	if code, ok := fault.CodeOf(err); ok {
		fields = append(fields, "xa_code", code)
	}
	if fault.KindOf(err) == fault.KindInterrupted {
		p.logger.Debug("txn.peer.interrupted", fields...)
	} else {
		p.logger.Warn("txn.peer.failed", fields...)
	}
	return err
}
