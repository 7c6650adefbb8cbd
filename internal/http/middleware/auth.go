package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/safecircle/safecircle-backend/internal/domain"
	"github.com/safecircle/safecircle-backend/internal/http/response"
	"github.com/safecircle/safecircle-backend/pkg/auth"
	"github.com/safecircle/safecircle-backend/pkg/logger"
)

type contextKey string

const (
	// ClaimsKey carries the parsed session claims through the request.
	ClaimsKey contextKey = "auth_claims"
)

// RequireSession rejects requests without a valid bearer token and
// stores the claims for handlers downstream.
func RequireSession(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				response.Error(w, r, domain.CodeInvalidToken, "Missing or malformed authorization header")
				return
			}

			claims, err := auth.Parse(token, secret)
			if err != nil {
				response.Error(w, r, domain.CodeInvalidToken, "Invalid or expired session")
				return
			}
			if claims.Role != "user" {
				response.Error(w, r, domain.CodeInvalidToken, "Session token required")
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsKey, claims)
			ctx = context.WithValue(ctx, logger.UserIDKey, claims.Sub)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionClaims pulls the authenticated claims out of the context.
func SessionClaims(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(ClaimsKey).(*auth.Claims)
	return claims
}
