// ABOUTME: Bearer token authentication middleware for the board API.
// ABOUTME: The health check stays open; everything under /api requires the token when one is configured.
package web

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// AuthMiddleware validates "Authorization: Bearer <token>" on /api routes.
// An empty token disables the check.
func AuthMiddleware(token string) func(http.Handler) http.Handler {
	expected := "Bearer " + token
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			path := r.URL.Path
			if path != "/api" && !strings.HasPrefix(path, "/api/") {
				next.ServeHTTP(w, r)
				return
			}
			auth := r.Header.Get("Authorization")
			if subtle.ConstantTimeCompare([]byte(auth), []byte(expected)) == 1 {
				next.ServeHTTP(w, r)
				return
			}
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		})
	}
}
