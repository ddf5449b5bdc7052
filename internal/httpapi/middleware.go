package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"go.uber.org/zap"

	"github.com/elgrassa/replicated-log/internal/metrics"
)

// withLogging times every request and logs it at Info with the chi
// request ID attached, matching this corpus's convention of a
// request-scoped child logger.
func withLogging(log *zap.Logger, mtr *metrics.Client) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			reqLog := log.With(
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
			)

			next.ServeHTTP(ww, r)

			dur := time.Since(start)
			reqLog.Info("request handled", zap.Int("status", ww.Status()), zap.Duration("duration", dur))
			mtr.TimingMs("http.request", float64(dur.Milliseconds()),
				"path:"+r.URL.Path, "status:"+http.StatusText(ww.Status()))
		})
	}
}
