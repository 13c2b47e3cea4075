package telemetry

import (
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	httpOnce     sync.Once
	httpRequests metric.Int64Counter
	httpLatency  metric.Float64Histogram
)

func initHTTPMetrics() {
	httpOnce.Do(func() {
		meter := otel.Meter("codegraph.http")
		var err error
		httpRequests, err = meter.Int64Counter("codegraph_http_requests_total",
			metric.WithDescription("HTTP requests served"),
		)
		if err != nil {
			httpRequests = nil
		}
		httpLatency, err = meter.Float64Histogram("codegraph_http_request_duration_seconds",
			metric.WithDescription("HTTP request latency"),
			metric.WithUnit("s"),
		)
		if err != nil {
			httpLatency = nil
		}
	})
}

// statusResponseWriter captures the status code written by a handler.
type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (w *statusResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.statusCode = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusResponseWriter) Write(b []byte) (int, error) {
	w.written = true
	return w.ResponseWriter.Write(b)
}

func (w *statusResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Middleware traces each request and records request count and latency.
func Middleware(next http.Handler) http.Handler {
	initHTTPMetrics()
	tracer := otel.Tracer("codegraph.http")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.target", r.URL.Path),
			),
		)
		defer span.End()

		sw := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(sw, r.WithContext(ctx))

		span.SetAttributes(attribute.Int("http.status_code", sw.statusCode))
		if sw.statusCode >= 500 {
			span.SetStatus(codes.Error, http.StatusText(sw.statusCode))
		}

		attrs := metric.WithAttributes(
			attribute.String("method", r.Method),
			attribute.String("path", r.URL.Path),
			attribute.Int("status", sw.statusCode),
		)
		if httpRequests != nil {
			httpRequests.Add(ctx, 1, attrs)
		}
		if httpLatency != nil {
			httpLatency.Record(ctx, time.Since(start).Seconds(), attrs)
		}
	})
}
