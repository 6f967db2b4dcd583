package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/mesh-intelligence/riddler/internal/auth"
	"github.com/mesh-intelligence/riddler/pkg/types"
)

type ctxKey int

const requestInfoKey ctxKey = iota

// requestInfo carries what inner handlers learn about a request out to the
// request logger.
type requestInfo struct {
	err     error
	subject string
}

// setRequestError records err for the request log line.
func setRequestError(r *http.Request, err error) {
	if holder, ok := r.Context().Value(requestInfoKey).(*requestInfo); ok {
		holder.err = err
	}
}

// recordSubject copies the authenticated subject into the request log line.
// It must run after the auth middleware.
func recordSubject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if holder, ok := r.Context().Value(requestInfoKey).(*requestInfo); ok {
			holder.subject = auth.Subject(r.Context())
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs one line per request.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			holder := &requestInfo{}
			r = r.WithContext(context.WithValue(r.Context(), requestInfoKey, holder))
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			}
			if holder.subject != "" {
				attrs = append(attrs, "subject", holder.subject)
			}
			switch {
			case holder.err != nil:
				logger.Error("request failed", append(attrs, "error", holder.err)...)
			case ww.Status() >= 500:
				logger.Error("request failed", attrs...)
			default:
				logger.Info("request", attrs...)
			}
		})
	}
}

// recoverer turns a handler panic into an internal fault.
func recoverer(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Error("handler panic", "panic", rec, "path", r.URL.Path)
					writeFault(w, r, fmt.Errorf("panic: %v", rec))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// rateLimit rejects requests beyond a shared token bucket.
func rateLimit(perSecond float64, burst int) func(http.Handler) http.Handler {
	limiter := rate.NewLimiter(rate.Limit(perSecond), burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				w.Header().Set("Retry-After", "1")
				writeFault(w, r, types.ErrRateLimited)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
