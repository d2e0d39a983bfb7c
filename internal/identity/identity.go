// Package identity extracts the caller's identity from the platform-issued
// access token. The agent does not hold the signing secret; the token is
// parsed without verification for display and request scoping, and the
// session service remains the authority that actually validates it.
package identity

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Identity is the caller as described by their access token.
type Identity struct {
	UserID   uuid.UUID
	Name     string
	Role     string
	RawToken string
}

type ctxKey struct{}

// WithContext returns ctx carrying id.
func WithContext(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored in ctx, if any.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

// FromToken parses the access token without verifying its signature and
// pulls out the standard claims the agent needs.
func FromToken(token string) (Identity, error) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return Identity{}, fmt.Errorf("parse token: %w", err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, fmt.Errorf("unexpected claims type")
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return Identity{}, fmt.Errorf("token has no subject")
	}
	userID, err := uuid.Parse(sub)
	if err != nil {
		return Identity{}, fmt.Errorf("subject is not a user id: %w", err)
	}

	id := Identity{UserID: userID, RawToken: token}
	if name, ok := claims["name"].(string); ok {
		id.Name = name
	}
	if role, ok := claims["role"].(string); ok {
		id.Role = role
	}
	return id, nil
}
