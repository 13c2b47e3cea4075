package graph

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	tracer = otel.Tracer("codegraph.graph")
	meter  = otel.Meter("codegraph.graph")
)

var (
	buildLatency metric.Float64Histogram
	buildTotal   metric.Int64Counter
	nodesCreated metric.Int64Histogram
	edgesCreated metric.Int64Histogram
	nodesSkipped metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics creates the build instruments. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		if buildLatency, err = meter.Float64Histogram(
			"graph_build_duration_seconds",
			metric.WithDescription("Duration of graph builds"),
			metric.WithUnit("s"),
		); err != nil {
			metricsErr = err
			return
		}
		if buildTotal, err = meter.Int64Counter(
			"graph_build_total",
			metric.WithDescription("Total number of graph builds"),
		); err != nil {
			metricsErr = err
			return
		}
		if nodesCreated, err = meter.Int64Histogram(
			"graph_nodes_created",
			metric.WithDescription("Number of nodes created per build"),
		); err != nil {
			metricsErr = err
			return
		}
		if edgesCreated, err = meter.Int64Histogram(
			"graph_edges_created",
			metric.WithDescription("Number of edges created per build"),
		); err != nil {
			metricsErr = err
			return
		}
		if nodesSkipped, err = meter.Int64Counter(
			"graph_nodes_skipped_total",
			metric.WithDescription("Tree nodes skipped by the builder"),
		); err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordBuildMetrics(ctx context.Context, r *Result) {
	if err := initMetrics(); err != nil {
		return
	}
	buildLatency.Record(ctx, r.Duration.Seconds())
	buildTotal.Add(ctx, 1)
	nodesCreated.Record(ctx, int64(len(r.Nodes)))
	edgesCreated.Record(ctx, int64(len(r.Edges)))
	nodesSkipped.Add(ctx, int64(r.Diagnostics.Total()))
}
