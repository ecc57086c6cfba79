package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/cloo-solutions/docrag/internal/api"
)

const ClientKey contextKey = "client"

// TokenValidator resolves a bearer token to a client name.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (string, error)
}

// StaticToken accepts a single shared token.
type StaticToken struct {
	Token  string
	Client string
}

func (s StaticToken) ValidateToken(ctx context.Context, token string) (string, error) {
	if s.Token == "" || subtle.ConstantTimeCompare([]byte(s.Token), []byte(token)) != 1 {
		return "", errors.New("invalid token")
	}
	if s.Client == "" {
		return "default", nil
	}
	return s.Client, nil
}

// BearerAuth rejects requests without a valid Authorization: Bearer token.
func BearerAuth(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				api.Error(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			if !strings.HasPrefix(authHeader, "Bearer ") {
				api.Error(w, http.StatusUnauthorized, "invalid authorization format")
				return
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")

			client, err := validator.ValidateToken(r.Context(), token)
			if err != nil {
				api.Error(w, http.StatusUnauthorized, "invalid api token")
				return
			}

			ctx := context.WithValue(r.Context(), ClientKey, client)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetClient returns the authenticated client name from context.
func GetClient(ctx context.Context) string {
	client, _ := ctx.Value(ClientKey).(string)
	return client
}
