package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/vikramshenoy/faultline/internal/api/response"
)

// AdminAuth gates provisioning routes behind a static operator token.
// An empty token disables the routes.
func AdminAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				response.Error(w, http.StatusNotFound, response.CodeNotFound, "Not found", nil)
				return
			}
			provided := extractBearerToken(r)
			if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
				response.Error(w, http.StatusUnauthorized, response.CodeInvalidToken, "Invalid admin token", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
