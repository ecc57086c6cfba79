package middleware

import (
	"fmt"
	"net/http"

	"github.com/cloo-solutions/docrag/internal/telemetry"
)

// Tracing runs each request inside a Sentry transaction tagged with the
// collection the API serves and the request id. 5xx responses and panics
// are reported. Without Sentry configured the spans are no-ops.
func Tracing(collection string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := telemetry.StartRequest(r)
			defer span.End()

			if collection != "" {
				span.SetTag("collection", collection)
			}
			if requestID := GetRequestID(ctx); requestID != "" {
				span.SetTag("request_id", requestID)
			}
			if ua := r.UserAgent(); ua != "" {
				span.SetTag("user_agent", ua)
			}
			r = r.WithContext(ctx)

			defer func() {
				if err := recover(); err != nil {
					span.SetStatus(telemetry.StatusFromHTTP(http.StatusInternalServerError))
					telemetry.Recover(ctx, err)
					panic(err)
				}
			}()

			rec := &responseRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			span.SetStatus(telemetry.StatusFromHTTP(status))
			span.SetData("http.response.status_code", status)
			if status >= 500 {
				telemetry.CaptureError(ctx, fmt.Errorf("%s %s: HTTP %d", r.Method, r.URL.Path, status))
			}
		})
	}
}
