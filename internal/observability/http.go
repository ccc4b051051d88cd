package observability

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// TraceHeader carries the request trace id in both directions.
const TraceHeader = "X-Trace-ID"

const maxTraceIDLen = 128

// Routes a browser console polls continuously. Their access records drop to debug.
var pollRoutes = map[string]bool{
	"GET /v1/health":                true,
	"GET /v1/ready":                 true,
	"GET /v1/metrics":               true,
	"GET /v1/sessions/{id}/status":  true,
	"GET /v1/sessions/{id}/results": true,
}

// Instrument traces, measures and logs every request passing through it.
// A nil logger disables the access log only.
func Instrument(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			traceID := incomingTraceID(r)
			w.Header().Set(TraceHeader, traceID)
			r = r.WithContext(ContextWithTraceID(r.Context(), traceID))

			apiInFlight.Inc()
			defer apiInFlight.Dec()

			start := time.Now()
			rec := &responseRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)
			elapsed := time.Since(start)

			route := RouteLabel(r)
			apiRequestsTotal.WithLabelValues(route, statusClass(rec.code())).Inc()
			apiRequestSeconds.WithLabelValues(route).Observe(elapsed.Seconds())

			if logger == nil {
				return
			}
			logger.LogAttrs(r.Context(), accessLevel(route, rec.code()), "api request",
				slog.String("trace_id", traceID),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("route", route),
				slog.Int("status", rec.code()),
				slog.Int64("duration_ms", elapsed.Milliseconds()),
				slog.Int("bytes", rec.written),
			)
		})
	}
}

// RouteLabel names the matched mux pattern so session ids stay out of metric labels.
func RouteLabel(r *http.Request) string {
	if r.Pattern == "" {
		return "unmatched"
	}
	return r.Pattern
}

func incomingTraceID(r *http.Request) string {
	if id := r.Header.Get(TraceHeader); id != "" && len(id) <= maxTraceIDLen {
		return id
	}
	return uuid.NewString()
}

func accessLevel(route string, status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case pollRoutes[route] && status < http.StatusBadRequest:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

type responseRecorder struct {
	http.ResponseWriter
	status  int
	written int
}

func (r *responseRecorder) code() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

func (r *responseRecorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(body []byte) (int, error) {
	n, err := r.ResponseWriter.Write(body)
	r.written += n
	return n, err
}

// Flush lets streaming handlers flush through the recorder.
func (r *responseRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
