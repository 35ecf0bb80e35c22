package middleware

import (
	"net/http"

	chimiddleware "github.com/go-chi/chi/middleware"
	"github.com/google/uuid"

	"github.com/teamplan/scheduler/pkg/logger"
)

// TraceHeader carries the trace id in both directions.
const TraceHeader = "X-Trace-ID"

// RequestID tags the request context and the response with a trace id.
// An inbound header wins so a gateway can stitch its own traces, the
// chi request id is the fallback, and a fresh uuid covers direct calls.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(TraceHeader)
		if traceID == "" {
			traceID = chimiddleware.GetReqID(r.Context())
		}
		if traceID == "" {
			traceID = uuid.NewString()
		}

		ctx := logger.With(r.Context(), "trace_id", traceID)
		w.Header().Set(TraceHeader, traceID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
