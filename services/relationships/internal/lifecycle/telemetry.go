package lifecycle

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AuroralH2020/auroral-nm-sub000/pkg/domain"
)

var tracer = otel.Tracer("relationships.lifecycle")

var (
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relationships_lifecycle_operations_total",
		Help: "Lifecycle operations by outcome",
	}, []string{"operation", "outcome"})

	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "relationships_lifecycle_operation_duration_seconds",
		Help:    "Duration of lifecycle operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	bestEffortFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relationships_lifecycle_best_effort_failures_total",
		Help: "Swallowed failures of best-effort steps",
	}, []string{"operation", "step"})

	gatewayPushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relationships_gateway_pushes_total",
		Help: "Contract change pushes sent to gateways",
	}, []string{"outcome"})
)

// startOp opens a span for a lifecycle operation and returns a finisher that records
// the outcome on the span and in metrics.
func startOp(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(*error)) {
	ctx, span := tracer.Start(ctx, op, trace.WithAttributes(attrs...))
	start := time.Now()
	return ctx, func(errp *error) {
		outcome := "success"
		if errp != nil && *errp != nil {
			outcome = outcomeOf(*errp)
			span.RecordError(*errp)
			span.SetStatus(codes.Error, (*errp).Error())
		}
		span.End()
		operationsTotal.WithLabelValues(op, outcome).Inc()
		operationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

func outcomeOf(err error) string {
	switch st := domain.StatusOf(err); {
	case st == 400:
		return "rejected"
	case st == 404:
		return "not_found"
	default:
		return "failure"
	}
}
