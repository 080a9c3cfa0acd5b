package httpmw

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// PackInfo describes the pack currently served.
type PackInfo interface {
	PackName() string
	PackSHA256() string
}

// PackHeaders sets X-Pack-Name and a short X-Pack-Sha256 on every response
// and tags the active span with the full digest.
func PackHeaders(info PackInfo) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			name, sum := info.PackName(), info.PackSHA256()
			if name != "" {
				w.Header().Set("X-Pack-Name", name)
			}
			if sum != "" {
				short := sum
				if len(short) > 12 {
					short = short[:12]
				}
				w.Header().Set("X-Pack-Sha256", short)
			}
			if span := trace.SpanFromContext(r.Context()); span.IsRecording() && name != "" {
				span.SetAttributes(
					attribute.String("respack.pack.name", name),
					attribute.String("respack.pack.sha256", sum),
				)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// TraceHeaders echoes the trace and span ids of a valid span so callers can
// quote them in bug reports.
func TraceHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
			w.Header().Set("X-Trace-Id", sc.TraceID().String())
			w.Header().Set("X-Span-Id", sc.SpanID().String())
		}
		next.ServeHTTP(w, r)
	})
}

// AnnotateRoute renames the span to the matched chi pattern once routing is
// done, so "/files/*" is one span name instead of one per file.
func AnnotateRoute(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)

		span := trace.SpanFromContext(r.Context())
		if !span.IsRecording() {
			return
		}
		rc := chi.RouteContext(r.Context())
		if rc == nil || rc.RoutePattern() == "" {
			return
		}
		span.SetAttributes(attribute.String("http.route", rc.RoutePattern()))
		span.SetName(r.Method + " " + rc.RoutePattern())
	})
}

var securityHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Referrer-Policy", "no-referrer"},
	{"Cross-Origin-Resource-Policy", "same-site"},
	{"Content-Security-Policy", "default-src 'none'; img-src 'self'; style-src 'self'; frame-ancestors 'none'"},
}

// SecurityHeaders sets a restrictive header baseline. Packs hold arbitrary
// files, so nothing served here should be sniffed or framed.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		for _, kv := range securityHeaders {
			h.Set(kv[0], kv[1])
		}
		next.ServeHTTP(w, r)
	})
}
