package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"postpilot/internal/logger"
)

const requestIDHeader = "X-Request-Id"

// RequestID attaches a correlation id to the request context and echoes it
// in the response. An id supplied by the caller is kept.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(requestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}

		w.Header().Set(requestIDHeader, reqID)
		ctx := logger.WithRequestID(r.Context(), reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
