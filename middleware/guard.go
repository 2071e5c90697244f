package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/PBLC21/authcore"
)

type resultContextKey struct{}

// FromContext returns the authentication result injected by [Authenticate].
func FromContext(ctx context.Context) (authcore.AuthResult, bool) {
	res, ok := ctx.Value(resultContextKey{}).(authcore.AuthResult)
	return res, ok
}

// Authenticate validates the bearer token on each request. On success the
// request context carries the [authcore.AuthResult] and the caller's
// origin; on failure the request is rejected with 401.
func Authenticate(engine *authcore.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := authcore.WithOrigin(r.Context(), clientIP(r))

			token, ok := bearerToken(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			res, err := engine.ValidateAccess(ctx, token)
			if err != nil {
				status := http.StatusUnauthorized
				if errors.Is(err, authcore.ErrStorageUnavailable) {
					status = http.StatusServiceUnavailable
				}
				writeError(w, status, "invalid token")
				return
			}

			ctx = context.WithValue(ctx, resultContextKey{}, res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAction authorizes the authenticated caller for one action. Must
// run inside [Authenticate].
func RequireAction(engine *authcore.Engine, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, ok := FromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "not authenticated")
				return
			}

			allowed, err := engine.Authorize(res.Roles, action)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "authorization error")
				return
			}
			if !allowed {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return header[len(prefix):], true
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
