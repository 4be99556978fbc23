package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	authproviders "github.com/idleforge/idlesync/pkg/auth/providers"
	"github.com/idleforge/idlesync/pkg/log"
	syncpkg "github.com/idleforge/idlesync/pkg/sync"
)

type ContextKey int

const (
	// IdentityContextKey is the key used to store the verified identity
	// in the request context.
	IdentityContextKey ContextKey = iota
)

// NewAuthMiddleware verifies the session token on every request and
// stores the resulting identity triple in the request context.
func NewAuthMiddleware(verifier authproviders.SessionVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bearerToken, err := parseBearerToken(r)
			if err != nil {
				log.Error("failed to parse bearer token: %v", err)
				http.Error(w, "failed to parse bearer token", http.StatusUnauthorized)
				return
			}

			claims, err := verifier.VerifySession(r.Context(), bearerToken)
			if err != nil {
				log.Error("failed to verify session token: %v", err)
				http.Error(w, "failed to verify session token", http.StatusUnauthorized)
				return
			}

			identity := syncpkg.Identity{
				UserID:    claims.UserID,
				SessionID: claims.SessionID,
				DeviceID:  claims.DeviceID,
			}
			ctx := context.WithValue(r.Context(), IdentityContextKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdentityFromContext returns the verified identity stored by the auth
// middleware.
func IdentityFromContext(ctx context.Context) (syncpkg.Identity, bool) {
	identity, ok := ctx.Value(IdentityContextKey).(syncpkg.Identity)
	return identity, ok
}

// parseBearerToken parses the bearer token from the Authorization header
func parseBearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", fmt.Errorf("authorization header is missing")
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", fmt.Errorf("invalid Authorization header format")
	}

	return parts[1], nil
}
