package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt"
	"github.com/npezzotti/go-commhub/internal/types"
)

// Tokens are minted by the external identity provider; the hub only
// verifies the shared-key signature and extracts the claims.
const (
	tokenCookieKey = "token"

	identityClaim = "sub"
	usernameClaim = "username"
	adminClaim    = "admin"
)

type contextKey string

const identityKey contextKey = "identity"

func WithIdentity(ctx context.Context, identity types.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

func IdentityFrom(ctx context.Context) (types.Identity, bool) {
	identity, ok := ctx.Value(identityKey).(types.Identity)
	return identity, ok
}

// tokenFromRequest reads the session token from the cookie or, failing
// that, a bearer Authorization header.
func tokenFromRequest(r *http.Request) (string, error) {
	if cookie, err := r.Cookie(tokenCookieKey); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}

	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok && token != "" {
		return token, nil
	}

	return "", fmt.Errorf("no session token")
}

func (s *CommHubApp) extractIdentityFromToken(tokenString string) (types.Identity, error) {
	token, err := s.verifyToken(tokenString)
	if err != nil {
		return types.Identity{}, fmt.Errorf("verify token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return types.Identity{}, fmt.Errorf("invalid token claims")
	}

	id, ok := claims[identityClaim].(string)
	if !ok || id == "" {
		return types.Identity{}, fmt.Errorf("invalid identity claim")
	}

	username, _ := claims[usernameClaim].(string)
	admin, _ := claims[adminClaim].(bool)

	return types.Identity{
		Id:       id,
		Username: username,
		Admin:    admin,
	}, nil
}

func (s *CommHubApp) verifyToken(tokenString string) (*jwt.Token, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signingKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	return token, nil
}
