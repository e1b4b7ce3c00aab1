package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/warp/timesheet-engine/auth"
	"github.com/warp/timesheet-engine/timesheet"
)

// RequireAuth resolves the bearer token into a Principal and stores it in
// the request context. The token only identifies the user: role, area and
// the active flag are reloaded from the directory on every request, so a
// deactivated user or a role change takes effect before the token expires.
// Requests without a valid token or an active user get 401.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			writeFail(w, http.StatusUnauthorized, "missing bearer token", "UNAUTHORIZED")
			return
		}
		claimed, err := h.Auth.Authenticate(strings.TrimSpace(token))
		if err != nil {
			writeFail(w, http.StatusUnauthorized, err.Error(), "UNAUTHORIZED")
			return
		}
		p, err := h.Engine.Directory.CurrentPrincipal(r.Context(), claimed.UserID)
		if errors.Is(err, timesheet.ErrInactiveUser) {
			writeFail(w, http.StatusUnauthorized, err.Error(), "UNAUTHORIZED")
			return
		}
		if err != nil {
			h.fail(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
	})
}

// RequestLogger logs one line per request through zap, replacing chi's
// stdlib-backed middleware.Logger.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	logger = logger.Named("http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				fields := []zap.Field{
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
				}
				if p, ok := auth.PrincipalFrom(r.Context()); ok {
					fields = append(fields, zap.String("user_id", string(p.UserID)))
				}
				if ww.Status() >= http.StatusInternalServerError {
					logger.Warn("request", fields...)
					return
				}
				logger.Debug("request", fields...)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
