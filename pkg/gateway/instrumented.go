package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/platinummonkey/orgadmin/pkg/gateway")

// Metrics holds the Prometheus collectors for gateway calls
type Metrics struct {
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	SnapshotsTotal    *prometheus.CounterVec
}

// NewMetrics creates and registers the gateway metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orgadmin_gateway_operations_total",
				Help: "Total number of gateway operations",
			},
			[]string{"operation", "collection", "backend", "status"},
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orgadmin_gateway_operation_duration_seconds",
				Help:    "Gateway operation duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"operation", "collection", "backend"},
		),
		SnapshotsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orgadmin_gateway_snapshots_total",
				Help: "Total number of subscription snapshots delivered",
			},
			[]string{"collection", "backend"},
		),
	}
	registry.MustRegister(m.OperationsTotal, m.OperationDuration, m.SnapshotsTotal)
	return m
}

// Instrumented records metrics and spans for every call to the wrapped gateway
type Instrumented struct {
	next    Gateway
	backend string
	metrics *Metrics
}

// NewInstrumented wraps next. backend labels the metrics ("postgres", "redis", ...).
func NewInstrumented(next Gateway, backend string, metrics *Metrics) *Instrumented {
	return &Instrumented{next: next, backend: backend, metrics: metrics}
}

func (g *Instrumented) observe(ctx context.Context, op, collection string, fn func(context.Context) error) error {
	ctx, span := tracer.Start(ctx, "gateway."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("gateway.backend", g.backend),
			attribute.String("gateway.collection", collection),
		),
	)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start).Seconds()

	status := "ok"
	switch {
	case err == nil:
		span.SetStatus(codes.Ok, "")
	case errors.Is(err, ErrNotFound):
		status = "not_found"
	default:
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, op+" failed")
	}

	g.metrics.OperationsTotal.WithLabelValues(op, collection, g.backend, status).Inc()
	g.metrics.OperationDuration.WithLabelValues(op, collection, g.backend).Observe(elapsed)
	return err
}

func (g *Instrumented) Put(ctx context.Context, accountID, collection, id string, rec Record) error {
	return g.observe(ctx, "put", collection, func(ctx context.Context) error {
		return g.next.Put(ctx, accountID, collection, id, rec)
	})
}

func (g *Instrumented) Get(ctx context.Context, accountID, collection, id string) (Record, error) {
	var out Record
	err := g.observe(ctx, "get", collection, func(ctx context.Context) error {
		var err error
		out, err = g.next.Get(ctx, accountID, collection, id)
		return err
	})
	return out, err
}

func (g *Instrumented) List(ctx context.Context, accountID, collection string) ([]Record, error) {
	var out []Record
	err := g.observe(ctx, "list", collection, func(ctx context.Context) error {
		var err error
		out, err = g.next.List(ctx, accountID, collection)
		return err
	})
	return out, err
}

func (g *Instrumented) Remove(ctx context.Context, accountID, collection, id string) error {
	return g.observe(ctx, "remove", collection, func(ctx context.Context) error {
		return g.next.Remove(ctx, accountID, collection, id)
	})
}

func (g *Instrumented) Subscribe(ctx context.Context, accountID, collection string, fn SnapshotFunc) (Unsubscribe, error) {
	counter := g.metrics.SnapshotsTotal.WithLabelValues(collection, g.backend)
	counted := func(recs []Record) {
		counter.Inc()
		fn(recs)
	}

	var unsub Unsubscribe
	err := g.observe(ctx, "subscribe", collection, func(ctx context.Context) error {
		var err error
		unsub, err = g.next.Subscribe(ctx, accountID, collection, counted)
		return err
	})
	return unsub, err
}

// Accounts forwards to the wrapped gateway when it can list accounts
func (g *Instrumented) Accounts(ctx context.Context) ([]string, error) {
	return ListAccounts(ctx, g.next)
}
