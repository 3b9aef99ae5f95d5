package middleware

import (
	"net/http"

	"github.com/frahmantamala/crm-backend/internal"
	"github.com/frahmantamala/crm-backend/pkg/logger"
	"github.com/google/uuid"
)

const TraceHeader = "X-Trace-ID"

// TraceID reuses the caller's X-Trace-ID or mints one, and echoes it back.
func TraceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(TraceHeader)
		if _, err := uuid.Parse(traceID); err != nil {
			traceID = uuid.NewString()
		}

		ctx := internal.ContextWithTraceID(r.Context(), traceID)
		ctx = logger.With(ctx, "trace_id", traceID)
		w.Header().Set(TraceHeader, traceID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
