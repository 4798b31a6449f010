package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/radif/filestore/internal/response"
)

// contextKey is an unexported type for context keys in this package.
type contextKey string

// AppIDKey is the context key for the application ID the bearer token was issued to.
const AppIDKey contextKey = "appID"

// RequireAuth returns middleware that validates a Bearer JWT and injects
// the application ID claim into the request context.
func RequireAuth(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				response.Unauthorized(w, "authorization header required")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				response.Unauthorized(w, "invalid authorization header format")
				return
			}

			token, err := jwt.Parse(parts[1], func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(jwtSecret), nil
			})
			if err != nil || !token.Valid {
				response.Unauthorized(w, "invalid or expired token")
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				response.Unauthorized(w, "invalid token claims")
				return
			}

			appID, _ := claims["appId"].(string)
			if appID == "" {
				response.Unauthorized(w, "token has no application")
				return
			}

			ctx := context.WithValue(r.Context(), AppIDKey, appID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AppID returns the authenticated application ID, if any.
func AppID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(AppIDKey).(string)
	return id, ok && id != ""
}
