package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/oggyb/courier/internal/response"
)

// ServiceKey rejects requests whose Authorization header does not carry
// key, either bare or as a bearer token.
func ServiceKey(key string) func(http.Handler) http.Handler {
	want := []byte(key)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := strings.TrimSpace(r.Header.Get("Authorization"))
			got = strings.TrimSpace(strings.TrimPrefix(got, "Bearer "))

			if got == "" || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				response.RespondError(w, http.StatusUnauthorized, "invalid service key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
