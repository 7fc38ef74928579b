package web

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// systemActor is recorded as the actor when authentication is disabled.
const systemActor = "system"

type authClaimsKey struct{}

// AuthClaims holds the caller's identity extracted from the JWT.
type AuthClaims struct {
	Subject string
	Role    string
}

// authFromContext returns the auth claims stored in ctx, or nil.
func authFromContext(ctx context.Context) *AuthClaims {
	v, _ := ctx.Value(authClaimsKey{}).(*AuthClaims)
	return v
}

// actor names the caller for created_by / posted_by columns.
func actor(r *http.Request) string {
	if c := authFromContext(r.Context()); c != nil && c.Subject != "" {
		return c.Subject
	}
	return systemActor
}

// jwtClaims is the JWT payload. The subject is the user name recorded on documents.
type jwtClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// RequireAuth is chi middleware that validates a bearer token (or the
// auth_token cookie) and injects AuthClaims into the request context.
// Returns 401 if the token is absent or invalid.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			writeError(w, r, "authentication required", "unauthorized", http.StatusUnauthorized)
			return
		}

		claims, err := parseToken(raw, h.jwtSecret)
		if err != nil {
			writeError(w, r, "invalid or expired token", "unauthorized", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), authClaimsKey{}, &AuthClaims{
			Subject: claims.Subject,
			Role:    claims.Role,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if cookie, err := r.Cookie("auth_token"); err == nil {
		return cookie.Value
	}
	return ""
}

func parseToken(raw, secret string) (*jwtClaims, error) {
	claims := &jwtClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("token has no subject")
	}
	return claims, nil
}
