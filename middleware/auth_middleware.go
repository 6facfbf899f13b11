package middleware

import (
	"net/http"

	"places-server/auth"
)

// RequireAuth resolves the request principal with strategy and rejects the
// request when there is none.
func RequireAuth(strategy auth.Strategy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := strategy.Authenticate(r)
			if err != nil {
				WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
		})
	}
}
