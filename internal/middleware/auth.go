package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"solace/internal/auth"
	"solace/internal/httputil"
)

// Auth validates the Authorization bearer token and stores the user id and
// the raw session token in the request context. The token is kept because the
// streaming engine re-attaches it per-connection to the remote backend.
func Auth(verifier auth.JWTVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Health checks stay unauthenticated for load balancers.
			if r.URL.Path == "/health" {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			if header == "" {
				httputil.RespondError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				httputil.RespondError(w, http.StatusUnauthorized, "malformed authorization header")
				return
			}

			claims, err := verifier.VerifyToken(token)
			if err != nil {
				logger.Debug("token verification failed",
					"path", r.URL.Path,
					"error", err,
				)
				httputil.RespondError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			r = httputil.WithUserID(r, claims.GetUserID())
			r = httputil.WithSessionToken(r, token)
			next.ServeHTTP(w, r)
		})
	}
}
