package orchestrator

import (
	"context"
	"time"

	"github.com/BaSui01/askflow/internal/metrics"
	"github.com/BaSui01/askflow/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/BaSui01/askflow/orchestrator"

// nodeObserver 为每个节点创建 span, 并记录 OTel 与 Prometheus 指标.
type nodeObserver struct {
	tracer    trace.Tracer
	collector *metrics.Collector

	nodeTotal    metric.Int64Counter
	nodeDuration metric.Float64Histogram
}

func newNodeObserver(tp trace.TracerProvider, collector *metrics.Collector) (*nodeObserver, error) {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	meter := otel.Meter(instrumentationName)

	o := &nodeObserver{
		tracer:    tp.Tracer(instrumentationName),
		collector: collector,
	}

	var err error
	o.nodeTotal, err = meter.Int64Counter("askflow.node.total",
		metric.WithDescription("Total number of pipeline node executions"),
		metric.WithUnit("{execution}"))
	if err != nil {
		return nil, err
	}

	o.nodeDuration, err = meter.Float64Histogram("askflow.node.duration",
		metric.WithDescription("Pipeline node duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10))
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (o *nodeObserver) NodeStarted(ctx context.Context, graph, node string) context.Context {
	ctx, _ = o.tracer.Start(ctx, "askflow.node."+node,
		trace.WithAttributes(
			attribute.String("askflow.graph", graph),
			attribute.String("askflow.node", node),
		))
	return ctx
}

func (o *nodeObserver) NodeFinished(ctx context.Context, graph, node string, elapsed time.Duration, err error, degraded bool) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	status := "ok"
	switch {
	case degraded:
		status = "degraded"
	case err != nil:
		status = "error"
	}
	if err != nil {
		span.RecordError(err)
		if code := types.GetErrorCode(err); code != "" {
			span.SetAttributes(attribute.String("askflow.error_code", string(code)))
		}
		if !degraded {
			span.SetStatus(codes.Error, err.Error())
		}
	}
	span.SetAttributes(attribute.Bool("askflow.degraded", degraded))

	attrs := metric.WithAttributes(
		attribute.String("node", node),
		attribute.String("status", status))
	o.nodeTotal.Add(ctx, 1, attrs)
	o.nodeDuration.Record(ctx, elapsed.Seconds(), attrs)

	o.collector.RecordNode(node, elapsed, err, degraded)
}
