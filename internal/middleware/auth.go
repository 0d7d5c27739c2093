package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/otcheredev/emergency-dispatch/internal/auth"
	"github.com/otcheredev/emergency-dispatch/internal/models"
	"github.com/rs/zerolog/log"
)

// TokenVerifier turns a bearer credential into an actor
type TokenVerifier interface {
	Verify(token string) (models.Actor, error)
}

// Authenticate middleware resolves the Authorization bearer token to an actor
func Authenticate(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			actor, err := verifier.Verify(strings.TrimSpace(token))
			if err != nil {
				log.Warn().Err(err).Str("path", r.URL.Path).Msg("Rejected bearer token")
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithActor(r.Context(), actor)))
		})
	}
}

// RequireRole rejects actors whose role is not listed
func RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := auth.ActorFrom(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "not authenticated")
				return
			}
			for _, role := range roles {
				if actor.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "role not permitted")
		})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
