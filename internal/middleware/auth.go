package middleware

import (
	"net/http"
	"strings"

	"github.com/openforest/fieldcoord/internal/auth"
)

// TokenValidator validates a bearer token and returns its claims.
// Satisfied by auth.JWTService.
type TokenValidator interface {
	ValidateToken(tokenString string) (*auth.Claims, error)
}

// writeAuthError writes the standard error envelope without depending on the
// api package (which imports middleware).
func writeAuthError(w http.ResponseWriter, r *http.Request, code, message string) {
	UpdateResponseContext(w, SetErrorCode(r.Context(), code))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":{"code":"` + code + `","message":"` + message + `"}}`))
}

// Authenticate validates the Authorization bearer token and stores the
// authenticated person id in the request context, where handlers read it via
// GetActor. Requests without a valid access token get 401.
func Authenticate(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				writeAuthError(w, r, "unauthorized", "missing authorization header")
				return
			}

			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				writeAuthError(w, r, "unauthorized", "authorization header must be a bearer token")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				writeAuthError(w, r, "unauthorized", "invalid or expired token")
				return
			}
			if claims.Type != "access" {
				writeAuthError(w, r, "unauthorized", "token is not an access token")
				return
			}

			next.ServeHTTP(w, r.WithContext(SetActor(r.Context(), claims.Subject)))
		})
	}
}
