package core

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"backburner/internal/types"
)

// responseCapture wraps an http.ResponseWriter to observe the status code
// written by downstream handlers.
type responseCapture struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rc *responseCapture) WriteHeader(code int) {
	if !rc.written {
		rc.statusCode = code
		rc.written = true
	}
	rc.ResponseWriter.WriteHeader(code)
}

func (rc *responseCapture) Write(b []byte) (int, error) {
	if !rc.written {
		rc.statusCode = http.StatusOK
		rc.written = true
	}
	return rc.ResponseWriter.Write(b)
}

func (rc *responseCapture) Unwrap() http.ResponseWriter {
	return rc.ResponseWriter
}

// RequestID accepts a caller-supplied X-Request-Id or generates one, stores
// it in the request context, and echoes it on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}

		ctx := types.WithRequestID(r.Context(), reqID)
		w.Header().Set("X-Request-Id", reqID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Identity resolves the calling user from the X-User-Id header set by the
// gateway in front of this service and stores it in the request context.
// Requests without an identity pass through; handlers that require one
// reject them.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if userID := r.Header.Get("X-User-Id"); userID != "" {
			r = r.WithContext(types.WithUserID(r.Context(), userID))
		}
		next.ServeHTTP(w, r)
	})
}

// Recoverer catches panics in the handler chain, logs the stack, and writes
// a 500 envelope. Must be outermost in the chain.
func Recoverer(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						"method", r.Method,
						"path", r.URL.Path,
						"panic", fmt.Sprintf("%v", rvr),
						"stack", string(debug.Stack()),
					)
					Error(w, r, types.NewAppError(types.ErrCodeInternalUnexpected, "an unexpected error occurred", nil))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// RequestLogger logs method, path, status and duration for every request,
// leveled by response status.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rc := &responseCapture{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rc, r)

			args := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", rc.statusCode,
				"duration", time.Since(start),
				"remote_addr", r.RemoteAddr,
			}
			if reqID := types.GetRequestID(r.Context()); reqID != "" {
				args = append(args, "request_id", reqID)
			}

			switch {
			case rc.statusCode >= 500:
				logger.Error("request completed", args...)
			case rc.statusCode >= 400:
				logger.Warn("request completed", args...)
			default:
				logger.Info("request completed", args...)
			}
		})
	}
}
