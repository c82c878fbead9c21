// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-mfa.
//
// go-mfa is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package rest

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jeremyhahn/go-mfa/pkg/mfa"
)

// Principal is the authenticated caller resolved from a bearer token.
type Principal struct {
	// UserID is the caller's user id, taken from the subject claim.
	UserID uuid.UUID

	// Username is the account identifier, taken from the username claim
	// when present, otherwise the subject.
	Username string

	// DisplayName is the human-readable name, taken from the name claim.
	DisplayName string
}

// Identity converts the principal into the naming used by WebAuthn ceremonies.
func (p *Principal) Identity() mfa.Identity {
	return mfa.Identity{
		Username:    p.Username,
		DisplayName: p.DisplayName,
	}
}

type principalContextKey struct{}

// WithPrincipal stores the authenticated principal in the context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFrom retrieves the authenticated principal from the context.
func PrincipalFrom(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey{}).(*Principal)
	return p
}

// Authenticator validates HS256 bearer tokens issued by the surrounding
// authentication system and resolves them to a Principal.
type Authenticator struct {
	secret   []byte
	issuer   string
	audience []string
}

// AuthenticatorConfig configures the bearer-token authenticator.
type AuthenticatorConfig struct {
	// Secret is the HMAC signing secret shared with the token issuer (required).
	Secret []byte

	// Issuer is the expected issuer claim (optional, skips validation if empty).
	Issuer string

	// Audience is the expected audience claim (optional, skips validation if empty).
	Audience []string
}

// NewAuthenticator creates a bearer-token authenticator.
func NewAuthenticator(config *AuthenticatorConfig) (*Authenticator, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if len(config.Secret) == 0 {
		return nil, fmt.Errorf("signing secret is required")
	}
	return &Authenticator{
		secret:   config.Secret,
		issuer:   config.Issuer,
		audience: config.Audience,
	}, nil
}

// Authenticate resolves the request's bearer token to a Principal.
func (a *Authenticator) Authenticate(r *http.Request) (*Principal, error) {
	tokenString := bearerToken(r)
	if tokenString == "" {
		return nil, fmt.Errorf("no token provided")
	}
	return a.validateToken(tokenString)
}

func (a *Authenticator) validateToken(tokenString string) (*Principal, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	for _, aud := range a.audience {
		opts = append(opts, jwt.WithAudience(aud))
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid claims type")
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, fmt.Errorf("missing subject claim")
	}
	userID, err := uuid.Parse(sub)
	if err != nil {
		return nil, fmt.Errorf("subject is not a user id: %w", err)
	}

	principal := &Principal{
		UserID:   userID,
		Username: sub,
	}
	if username, ok := claims["username"].(string); ok && username != "" {
		principal.Username = username
	}
	if name, ok := claims["name"].(string); ok {
		principal.DisplayName = name
	}

	return principal, nil
}

// bearerToken extracts the token from the Authorization header. A bare
// token without the Bearer prefix is accepted as well.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return header
}
