// Package middleware provides HTTP middleware for the eldcore API.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/fleetyard/eldcore/pkg/api/auth"
	"github.com/fleetyard/eldcore/pkg/eld"
)

// Context key type for storing claims
type contextKey string

const claimsContextKey contextKey = "claims"

// GetClaimsFromContext retrieves JWT claims from the request context.
// Returns nil if no claims are present.
//
// This function should only be called within API handler code that runs
// after the JWTAuth middleware has processed the request. If called before
// authentication, or in routes without JWTAuth middleware, it will return nil.
func GetClaimsFromContext(ctx context.Context) *auth.Claims {
	claims, ok := ctx.Value(claimsContextKey).(*auth.Claims)
	if !ok {
		return nil
	}
	return claims
}

// WithClaims returns a context carrying the given claims. Handler tests
// use this to simulate an authenticated request.
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

// extractBearerToken extracts the token from a Bearer Authorization header.
// Returns the token string and true if successful, or empty string and false if not.
func extractBearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	return parts[1], true
}

// writeError writes the standard failure envelope. The middleware
// carries its own writer so auth rejections speak the same wire shape
// as handler errors without importing the handlers package.
func writeError(w http.ResponseWriter, code eld.Code, message string) {
	domainErr := eld.NewError(code, "%s", message)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(domainErr.HTTPStatus())
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   domainErr,
	})
}

// JWTAuth is a middleware that validates Bearer tokens in the Authorization header.
// If valid, the claims are stored in the request context.
// If invalid or missing, returns 401 Unauthorized.
func JWTAuth(jwtService *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := extractBearerToken(r)
			if !ok {
				writeError(w, eld.CodeUnauthorized, "authorization header required")
				return
			}

			claims, err := jwtService.ValidateAccessToken(tokenString)
			if err != nil {
				writeError(w, eld.CodeUnauthorized, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin is a middleware that blocks non-admin accounts.
// Must be used after JWTAuth middleware.
func RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetClaimsFromContext(r.Context())
			if claims == nil {
				writeError(w, eld.CodeUnauthorized, "authentication required")
				return
			}

			if !claims.IsAdmin() {
				writeError(w, eld.CodeForbidden, "admin access required")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireOperator blocks accounts below the operator role. Carrier
// back-office surfaces (unidentified review) sit behind this.
// Must be used after JWTAuth middleware.
func RequireOperator() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetClaimsFromContext(r.Context())
			if claims == nil {
				writeError(w, eld.CodeUnauthorized, "authentication required")
				return
			}

			if !claims.CanOperate() {
				writeError(w, eld.CodeForbidden, "operator access required")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
