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
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret []byte, method jwt.SigningMethod, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString(secret)
	require.NoError(t, err)
	return signed
}

func requestWithToken(token string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/auth/mfa/methods", nil)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	return r
}

func TestNewAuthenticator_RequiresSecret(t *testing.T) {
	_, err := NewAuthenticator(nil)
	assert.Error(t, err)

	_, err = NewAuthenticator(&AuthenticatorConfig{})
	assert.Error(t, err)
}

func TestAuthenticate(t *testing.T) {
	secret := []byte("secret")
	auth, err := NewAuthenticator(&AuthenticatorConfig{Secret: secret})
	require.NoError(t, err)

	userID := uuid.New()

	t.Run("resolves claims", func(t *testing.T) {
		token := signToken(t, secret, jwt.SigningMethodHS256, jwt.MapClaims{
			"sub":      userID.String(),
			"username": "alice",
			"name":     "Alice",
		})
		principal, err := auth.Authenticate(requestWithToken(token))
		require.NoError(t, err)
		assert.Equal(t, userID, principal.UserID)
		assert.Equal(t, "alice", principal.Username)
		assert.Equal(t, "Alice", principal.DisplayName)
		assert.Equal(t, "alice", principal.Identity().Username)
	})

	t.Run("username defaults to subject", func(t *testing.T) {
		token := signToken(t, secret, jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": userID.String(),
		})
		principal, err := auth.Authenticate(requestWithToken(token))
		require.NoError(t, err)
		assert.Equal(t, userID.String(), principal.Username)
	})

	t.Run("bare token without bearer prefix", func(t *testing.T) {
		token := signToken(t, secret, jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": userID.String(),
		})
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", token)
		_, err := auth.Authenticate(r)
		assert.NoError(t, err)
	})

	t.Run("missing header", func(t *testing.T) {
		_, err := auth.Authenticate(requestWithToken(""))
		assert.Error(t, err)
	})

	t.Run("wrong signing secret", func(t *testing.T) {
		token := signToken(t, []byte("other"), jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": userID.String(),
		})
		_, err := auth.Authenticate(requestWithToken(token))
		assert.Error(t, err)
	})

	t.Run("disallowed signing method", func(t *testing.T) {
		token := signToken(t, secret, jwt.SigningMethodHS512, jwt.MapClaims{
			"sub": userID.String(),
		})
		_, err := auth.Authenticate(requestWithToken(token))
		assert.Error(t, err)
	})

	t.Run("missing subject", func(t *testing.T) {
		token := signToken(t, secret, jwt.SigningMethodHS256, jwt.MapClaims{
			"username": "alice",
		})
		_, err := auth.Authenticate(requestWithToken(token))
		assert.Error(t, err)
	})

	t.Run("subject is not a uuid", func(t *testing.T) {
		token := signToken(t, secret, jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": "alice",
		})
		_, err := auth.Authenticate(requestWithToken(token))
		assert.Error(t, err)
	})
}

func TestAuthenticate_IssuerValidation(t *testing.T) {
	secret := []byte("secret")
	auth, err := NewAuthenticator(&AuthenticatorConfig{Secret: secret, Issuer: "login-service"})
	require.NoError(t, err)

	userID := uuid.New()

	token := signToken(t, secret, jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID.String(),
		"iss": "login-service",
	})
	_, err = auth.Authenticate(requestWithToken(token))
	assert.NoError(t, err)

	token = signToken(t, secret, jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID.String(),
		"iss": "someone-else",
	})
	_, err = auth.Authenticate(requestWithToken(token))
	assert.Error(t, err)
}

func TestPrincipalContext(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Nil(t, PrincipalFrom(r.Context()))

	principal := &Principal{UserID: uuid.New(), Username: "alice"}
	ctx := WithPrincipal(r.Context(), principal)
	assert.Equal(t, principal, PrincipalFrom(ctx))
}
