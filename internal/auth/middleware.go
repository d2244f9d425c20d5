package auth

import (
	"net/http"
	"strings"

	"cashier-settlement-go/internal/models"
)

// Middleware attaches the bearer token's actor to the request context.
// onError writes the response for a missing or invalid token.
func Middleware(verifier *JWTVerifier, onError func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if !strings.HasPrefix(h, "Bearer ") {
				onError(w, r, errMissingBearer)
				return
			}
			actor, err := verifier.ParseActor(strings.TrimPrefix(h, "Bearer "))
			if err != nil {
				onError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(models.WithActor(r.Context(), actor)))
		})
	}
}
