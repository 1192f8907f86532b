package auth

import (
	"campus-chat/errors"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
)

type contextKey string

const SubjectKey contextKey = "subject"

// BearerMiddleware rejects requests without a valid "Authorization: Bearer" token.
// The token subject is stored in the request context under SubjectKey.
func BearerMiddleware(log *slog.Logger, secret []byte) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := authenticate(secret, r.Header.Get("Authorization"))
			if err != nil {
				log.Warn("Request rejected", "path", r.URL.Path, "error", err)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": errors.ErrUnauthorized.Error()})
				return
			}
			ctx := context.WithValue(r.Context(), SubjectKey, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticate(secret []byte, header string) (*Claims, error) {
	tokenString, found := strings.CutPrefix(header, "Bearer ")
	if !found || tokenString == "" {
		return nil, fmt.Errorf("%w: missing bearer token", errors.ErrUnauthorized)
	}
	claims, err := ValidateToken(secret, tokenString)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrUnauthorized, err)
	}
	return claims, nil
}
