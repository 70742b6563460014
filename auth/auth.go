// Package auth validates the bearer token presented on connect and resolves
// it to an authenticated player identity through a pluggable TokenValidator,
// so the engine isn't tied to one identity provider.
package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"phalanx/config"
	"phalanx/matcherrors"
)

// Identity is the authenticated principal bound to a connection.
type Identity struct {
	PlayerID string
	Name     string
}

// TokenValidator authenticates a raw bearer token into an Identity.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (Identity, error)
}

// JWKSValidator validates JWTs against a remote JWKS endpoint (config's
// auth.jwks_url / auth.issuer).
type JWKSValidator struct {
	keyfunc jwt.Keyfunc
	issuer  string
}

// NewJWKSValidator fetches the JWKS document at jwksURL and returns a
// validator that checks tokens against it and, if issuer is non-empty,
// against that expected issuer claim.
func NewJWKSValidator(jwksURL, issuer string) (*JWKSValidator, error) {
	if jwksURL == "" {
		return nil, matcherrors.ErrAuthNotConfigured
	}
	jwks, err := keyfunc.NewDefault([]string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("auth: failed to fetch jwks from %s: %w", jwksURL, err)
	}
	return &JWKSValidator{keyfunc: jwks.Keyfunc, issuer: issuer}, nil
}

// Validate parses and checks tokenString, returning the resolved identity.
func (v *JWKSValidator) Validate(_ context.Context, tokenString string) (Identity, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"RS256", "ES256", "EdDSA"})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	token, err := jwt.Parse(tokenString, v.keyfunc, opts...)
	if err != nil || !token.Valid {
		return Identity{}, matcherrors.ErrInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, matcherrors.ErrInvalidToken
	}
	return Identity{PlayerID: subjectFrom(claims), Name: nameFrom(claims)}, nil
}

func subjectFrom(claims jwt.MapClaims) string {
	if sub, ok := claims["sub"].(string); ok && sub != "" {
		return sub
	}
	if id, ok := claims["id"].(string); ok && id != "" {
		return id
	}
	return ""
}

func nameFrom(claims jwt.MapClaims) string {
	name, _ := claims["name"].(string)
	name = strings.TrimSpace(name)
	if name == "" {
		return "player"
	}
	if parts := strings.Fields(name); len(parts) > 0 {
		return parts[0]
	}
	return "player"
}

// FromConfig builds the configured TokenValidator, or nil if auth is
// disabled in cfg.
func FromConfig(cfg config.AuthConfig) (TokenValidator, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	return NewJWKSValidator(cfg.JWKSURL, cfg.Issuer)
}
