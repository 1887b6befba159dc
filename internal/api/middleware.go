package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// RequestLogger emits one structured log line per request. Preflight
// requests are not logged.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		fields := []zap.Field{
			zap.String("request_id", requestID(r)),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.String("remote_addr", r.RemoteAddr),
		}
		if id := chi.URLParam(r, "id"); id != "" {
			fields = append(fields, zap.String("job_id", id))
		}
		switch {
		case ww.Status() >= http.StatusInternalServerError:
			zap.L().Error("api: request", fields...)
		case r.URL.Path == "/health":
			zap.L().Debug("api: request", fields...)
		default:
			zap.L().Info("api: request", fields...)
		}
	})
}

func requestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}
