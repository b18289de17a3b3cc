// Package auth resolves the caller's identity from a JWT issued upstream.
// Tokens are validated against JWKS endpoints, or parsed without
// verification in local development.
package auth

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// ClaimsKey is the context key for storing JWT claims.
	ClaimsKey contextKey = "claims"
	// TokenKey is the context key for storing the raw JWT token string.
	TokenKey contextKey = "token"
	// ActorKey is the context key for storing the resolved models.Actor.
	ActorKey contextKey = "actor"
)

// Claims represents the JWT claims structure.
// Subject is the actor id. Role is the role the actor is acting under;
// tokens that only carry a roles list use its first entry.
type Claims struct {
	jwt.RegisteredClaims
	Email string   `json:"email,omitempty"`
	Role  string   `json:"role,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

// RoleID returns the effective role of the token.
func (c *Claims) RoleID() string {
	if c.Role != "" {
		return c.Role
	}
	if len(c.Roles) > 0 {
		return c.Roles[0]
	}
	return ""
}

// GetClaims retrieves JWT claims from the request context.
// Returns nil and false if claims are not present.
func GetClaims(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*Claims)
	return claims, ok && claims != nil
}

// GetToken retrieves the raw JWT token string from the request context.
// Returns empty string and false if token is not present.
func GetToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(TokenKey).(string)
	return token, ok
}
