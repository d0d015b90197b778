package peer

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"pkt.systems/httptxn/fault"
	"pkt.systems/pslog"
)

type peerMetrics struct {
	opDuration metric.Int64Histogram
	opFailed   metric.Int64Counter
	recovered  metric.Int64Counter
}

func newPeerMetrics(logger pslog.Logger) *peerMetrics {
	meter := otel.Meter("pkt.systems/httptxn/peer")
	m := &peerMetrics{}
	var err error

	m.opDuration, err = meter.Int64Histogram(
		"httptxn.peer.duration_ms",
		metric.WithDescription("Time spent waiting for a coordinator operation"),
		metric.WithUnit("ms"),
	)
	logMetricInitError(logger, "httptxn.peer.duration_ms", err)

	m.opFailed, err = meter.Int64Counter(
		"httptxn.peer.failures",
		metric.WithDescription("Coordinator operations that ended in a fault"),
	)
	logMetricInitError(logger, "httptxn.peer.failures", err)

	m.recovered, err = meter.Int64Counter(
		"httptxn.peer.recovered_xids",
		metric.WithDescription("In-doubt branches returned by recovery scans"),
	)
	logMetricInitError(logger, "httptxn.peer.recovered_xids", err)

	return m
}

func (m *peerMetrics) recordOp(ctx context.Context, op string, duration time.Duration, err error) {
	if m == nil || m.opDuration == nil {
		return
	}
	ctx = metricContext(ctx)
	result := "ok"
	if err != nil {
		result = fault.KindOf(err).String()
	}
	attrs := []attribute.KeyValue{
		attribute.String("httptxn.op", op),
		attribute.String("httptxn.result", result),
	}
	m.opDuration.Record(ctx, duration.Milliseconds(), metric.WithAttributes(attrs...))
	if err != nil && m.opFailed != nil {
		m.opFailed.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func (m *peerMetrics) recordRecovered(ctx context.Context, parentName string, count int) {
	if m == nil || m.recovered == nil {
		return
	}
	m.recovered.Add(metricContext(ctx), int64(count),
		metric.WithAttributes(attribute.String("httptxn.recovery.parent", parentName)))
}

func metricContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func logMetricInitError(logger pslog.Logger, name string, err error) {
	if err == nil || logger == nil {
		return
	}
	logger.Warn("telemetry.metric.init_failed", "name", name, "error", err)
}
