package auth

import (
	"net/http"
	"strings"
)

// ExtractAccessToken reads the session token from the access_token cookie,
// then the Authorization header, then the "token" query parameter used by
// browser websocket clients that cannot set headers.
func ExtractAccessToken(r *http.Request) string {
	if cookie, err := r.Cookie("access_token"); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}

	return r.URL.Query().Get("token")
}
