package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Context keys for tracing
type contextKey string

const (
	TraceIDKey   contextKey = "trace_id"
	StartTimeKey contextKey = "start_time"
)

// TraceHeader carries the trace id in both directions
const TraceHeader = "X-Request-ID"

const maxTraceIDLength = 128

// Tracing assigns every request a trace id. A well-formed id sent by the
// storefront is reused so both sides log the same value.
func Tracing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := incomingTraceID(r)
		if traceID == "" {
			traceID = uuid.New().String()
		}
		startTime := time.Now()

		ctx := context.WithValue(r.Context(), TraceIDKey, traceID)
		ctx = context.WithValue(ctx, StartTimeKey, startTime)

		w.Header().Set(TraceHeader, traceID)

		logrus.WithFields(logrus.Fields{
			"trace_id": traceID,
			"method":   r.Method,
			"path":     r.URL.Path,
		}).Debug("Request started")

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func incomingTraceID(r *http.Request) string {
	id := r.Header.Get(TraceHeader)
	if id == "" || len(id) > maxTraceIDLength {
		return ""
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_', c == '.':
		default:
			return ""
		}
	}
	return id
}

// GetTraceID extracts trace ID from context
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// GetStartTime extracts start time from context
func GetStartTime(ctx context.Context) time.Time {
	if startTime, ok := ctx.Value(StartTimeKey).(time.Time); ok {
		return startTime
	}
	return time.Time{}
}
