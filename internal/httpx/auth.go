package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const roleAdmin = "admin"

type claimsKey struct{}

// RequireAdmin accepts an HS256 token, with or without the Bearer prefix,
// whose role claim is admin.
func RequireAdmin(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			raw = strings.TrimSpace(strings.TrimPrefix(raw, "Bearer"))
			if raw == "" {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "authorization header is missing"})
				return
			}

			claims, err := parseToken(raw, secret)
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid or expired token"})
				return
			}
			if role, _ := claims["role"].(string); role != roleAdmin {
				writeJSON(w, http.StatusForbidden, errorBody{Error: "admin role required"})
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
		})
	}
}

func parseToken(raw string, secret []byte) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !tok.Valid {
		return nil, errors.New("token not valid")
	}
	return claims, nil
}

// Subject returns the sub claim of the admin token on the request, if any.
func Subject(ctx context.Context) string {
	claims, _ := ctx.Value(claimsKey{}).(jwt.MapClaims)
	sub, _ := claims["sub"].(string)
	return sub
}
