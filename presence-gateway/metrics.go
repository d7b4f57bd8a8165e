package main

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// counter is a thin wrapper so handlers can record with string attribute
// pairs inline.
type counter struct {
	c metric.Int64Counter
}

func (c counter) add(n int64, kv ...string) {
	attrs := make([]attribute.KeyValue, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		attrs = append(attrs, attribute.String(kv[i], kv[i+1]))
	}
	c.c.Add(context.Background(), n, metric.WithAttributes(attrs...))
}

type gatewayMetrics struct {
	connects     counter
	disconnects  counter
	messages     counter
	typingStarts counter
	lockGrants   counter
	lockDenials  counter
}

func newGatewayMetrics(meter metric.Meter, reg *registry) *gatewayMetrics {
	connects, _ := meter.Int64Counter("presence_connects_total",
		metric.WithDescription("Total websocket connections accepted"))
	disconnects, _ := meter.Int64Counter("presence_disconnects_total",
		metric.WithDescription("Total websocket disconnects processed"))
	messages, _ := meter.Int64Counter("presence_messages_total",
		metric.WithDescription("Total inbound client messages by type"))
	typingStarts, _ := meter.Int64Counter("presence_typing_starts_total",
		metric.WithDescription("Total startTyping requests"))
	lockGrants, _ := meter.Int64Counter("presence_lock_grants_total",
		metric.WithDescription("Total edit lock grants"))
	lockDenials, _ := meter.Int64Counter("presence_lock_denials_total",
		metric.WithDescription("Total edit lock denials due to contention"))

	connGauge, _ := meter.Int64ObservableGauge("presence_live_connections",
		metric.WithDescription("Number of live websocket connections"))
	_, _ = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(connGauge, int64(reg.connCount()))
		return nil
	}, connGauge)

	return &gatewayMetrics{
		connects:     counter{connects},
		disconnects:  counter{disconnects},
		messages:     counter{messages},
		typingStarts: counter{typingStarts},
		lockGrants:   counter{lockGrants},
		lockDenials:  counter{lockDenials},
	}
}
