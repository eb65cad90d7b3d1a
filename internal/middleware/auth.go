package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	"storefront-orderflow/internal/auth"
	"storefront-orderflow/internal/logger"

	"go.uber.org/zap"
)

// SessionParser verifies a raw access token.
type SessionParser interface {
	Parse(token string) (*auth.Session, error)
}

// Auth attaches the caller's session to the request context. Requests
// without a token pass through anonymously; a bad or expired token is
// rejected with 401.
func Auth(parser SessionParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := auth.ExtractAccessToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			session, err := parser.Parse(token)
			if err != nil {
				logger.FromCtx(r.Context()).Info("rejected access token", zap.Error(err))
				if errors.Is(err, auth.ErrSessionExpired) {
					writeError(w, http.StatusUnauthorized, "session_expired", "session expired, please sign in again")
					return
				}
				writeError(w, http.StatusUnauthorized, "unauthorized", "invalid access token")
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithSession(r.Context(), session)))
		})
	}
}

// RequireSession rejects anonymous requests. With roles given, the session
// must hold one of them.
func RequireSession(roles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, ok := auth.SessionFrom(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized", "sign in required")
				return
			}

			if len(roles) > 0 && !hasRole(s, roles) {
				writeError(w, http.StatusForbidden, "forbidden", "insufficient role")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func hasRole(s *auth.Session, roles []auth.Role) bool {
	for _, role := range roles {
		if s.Role == role {
			return true
		}
	}
	return false
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code, "message": msg})
}
