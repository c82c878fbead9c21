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

package mfa

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// enrollTOTP enrolls and confirms a TOTP method, returning the plain secret.
func enrollTOTP(t *testing.T, f *fixture, userID uuid.UUID) string {
	t.Helper()
	ctx := context.Background()

	enrollment, err := f.svc.StartTOTPEnrollment(ctx, userID, "", "")
	require.NoError(t, err)
	_, err = f.svc.ConfirmTOTPEnrollment(ctx, userID, enrollment.Method.ID, codeAt(t, enrollment.Secret, f.now))
	require.NoError(t, err)
	return enrollment.Secret
}

func TestCreateLoginChallenge_NoFactors(t *testing.T) {
	f := newFixture(t)

	challenge, err := f.svc.CreateLoginChallenge(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, challenge)
	assert.Equal(t, 0, f.challenges.Count())
}

func TestCreateLoginChallenge_UnconfirmedEnrollmentDoesNotCount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	_, err := f.svc.StartTOTPEnrollment(ctx, userID, "", "")
	require.NoError(t, err)

	challenge, err := f.svc.CreateLoginChallenge(ctx, userID)
	require.NoError(t, err)
	assert.Nil(t, challenge)
}

func TestCreateLoginChallenge_TOTPOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	enrollTOTP(t, f, userID)

	challenge, err := f.svc.CreateLoginChallenge(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, challenge)

	assert.Equal(t, []MethodType{MethodTOTP}, challenge.Methods)
	assert.Nil(t, challenge.WebAuthnOptions)
	assert.Equal(t, f.now.Add(5*time.Minute), challenge.ExpiresAt)
}

func TestCreateLoginChallenge_WebAuthnOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	auth := newAuthenticator()
	auth.register(t, f, userID, "")

	challenge, err := f.svc.CreateLoginChallenge(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, challenge)

	assert.Equal(t, []MethodType{MethodWebAuthn}, challenge.Methods)
	require.NotNil(t, challenge.WebAuthnOptions)
	assert.Len(t, challenge.WebAuthnOptions.Response.AllowedCredentials, 1)
}

func TestCreateLoginChallenge_BothFactors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	enrollTOTP(t, f, userID)
	auth := newAuthenticator()
	auth.register(t, f, userID, "")

	challenge, err := f.svc.CreateLoginChallenge(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, challenge)

	assert.ElementsMatch(t, []MethodType{MethodTOTP, MethodWebAuthn}, challenge.Methods)
	assert.NotNil(t, challenge.WebAuthnOptions)
}

func TestVerifyTOTPLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	secret := enrollTOTP(t, f, userID)

	challenge, err := f.svc.CreateLoginChallenge(ctx, userID)
	require.NoError(t, err)

	verified, err := f.svc.VerifyTOTPLogin(ctx, challenge.ChallengeID, codeAt(t, secret, f.now))
	require.NoError(t, err)
	assert.Equal(t, userID, verified)
}

func TestVerifyTOTPLogin_WrongCodeLeavesChallengeActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	secret := enrollTOTP(t, f, userID)

	challenge, err := f.svc.CreateLoginChallenge(ctx, userID)
	require.NoError(t, err)

	_, err = f.svc.VerifyTOTPLogin(ctx, challenge.ChallengeID, "000000")
	assert.ErrorIs(t, err, ErrInvalidCode)

	// The mistyped code did not burn the challenge.
	verified, err := f.svc.VerifyTOTPLogin(ctx, challenge.ChallengeID, codeAt(t, secret, f.now))
	require.NoError(t, err)
	assert.Equal(t, userID, verified)
}

func TestVerifyTOTPLogin_SecondAttemptIsGone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	secret := enrollTOTP(t, f, userID)

	challenge, err := f.svc.CreateLoginChallenge(ctx, userID)
	require.NoError(t, err)

	code := codeAt(t, secret, f.now)
	_, err = f.svc.VerifyTOTPLogin(ctx, challenge.ChallengeID, code)
	require.NoError(t, err)

	_, err = f.svc.VerifyTOTPLogin(ctx, challenge.ChallengeID, code)
	assert.ErrorIs(t, err, ErrChallengeConsumed)
	assert.True(t, IsGone(err))
}

func TestVerifyTOTPLogin_Expired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	secret := enrollTOTP(t, f, userID)

	challenge, err := f.svc.CreateLoginChallenge(ctx, userID)
	require.NoError(t, err)

	f.advance(6 * time.Minute)
	_, err = f.svc.VerifyTOTPLogin(ctx, challenge.ChallengeID, codeAt(t, secret, f.now))
	assert.ErrorIs(t, err, ErrChallengeExpired)
	assert.True(t, IsGone(err))
}

func TestVerifyTOTPLogin_MethodNotOffered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	auth := newAuthenticator()
	auth.register(t, f, userID, "")

	challenge, err := f.svc.CreateLoginChallenge(ctx, userID)
	require.NoError(t, err)

	_, err = f.svc.VerifyTOTPLogin(ctx, challenge.ChallengeID, "000000")
	assert.ErrorIs(t, err, ErrMethodNotAllowed)
}

func TestVerifyTOTPLogin_WrongPurpose(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	enrollTOTP(t, f, userID)

	start, err := f.svc.StartWebAuthnRegistration(ctx, userID, Identity{Username: "alice"}, "", "")
	require.NoError(t, err)

	_, err = f.svc.VerifyTOTPLogin(ctx, start.ChallengeID, "000000")
	assert.ErrorIs(t, err, ErrWrongPurpose)
}

func TestVerifyTOTPLogin_UnknownChallenge(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.VerifyTOTPLogin(context.Background(), uuid.New(), "000000")
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestVerifyWebAuthnLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	auth := newAuthenticator()
	method := auth.register(t, f, userID, "")

	challenge, err := f.svc.CreateLoginChallenge(ctx, userID)
	require.NoError(t, err)

	verified, err := f.svc.VerifyWebAuthnLogin(ctx, challenge.ChallengeID, auth.assert(t, challenge))
	require.NoError(t, err)
	assert.Equal(t, userID, verified)

	// The reported counter persisted.
	creds, err := f.creds.GetByMethodID(ctx, method.ID)
	require.NoError(t, err)
	require.Len(t, creds, 1)
	assert.Equal(t, uint32(1), creds[0].Counter)
	assert.NotNil(t, creds[0].LastUsedAt)

	m, err := f.methods.GetByID(ctx, method.ID)
	require.NoError(t, err)
	assert.NotNil(t, m.LastUsedAt)
}

func TestVerifyWebAuthnLogin_ReplayedAssertionRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	auth := newAuthenticator()
	auth.register(t, f, userID, "")

	challenge, err := f.svc.CreateLoginChallenge(ctx, userID)
	require.NoError(t, err)

	response := auth.assert(t, challenge)
	_, err = f.svc.VerifyWebAuthnLogin(ctx, challenge.ChallengeID, response)
	require.NoError(t, err)

	// Same assertion against a fresh challenge reports counter 1 again,
	// which is no longer strictly greater than the stored value.
	second, err := f.svc.CreateLoginChallenge(ctx, userID)
	require.NoError(t, err)
	_, err = f.svc.VerifyWebAuthnLogin(ctx, second.ChallengeID, response)
	assert.True(t, IsValidation(err))
}

func TestVerifyWebAuthnLogin_CounterRegression(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	auth := newAuthenticator()
	method := auth.register(t, f, userID, "")

	// Simulate a replayed/cloned authenticator stuck at the stored counter.
	creds, err := f.creds.GetByMethodID(ctx, method.ID)
	require.NoError(t, err)
	require.NoError(t, f.creds.UpdateCounter(ctx, creds[0].ID, 10, f.now))

	challenge, err := f.svc.CreateLoginChallenge(ctx, userID)
	require.NoError(t, err)

	// auth.assert advances the virtual counter to 1, well below 10.
	_, err = f.svc.VerifyWebAuthnLogin(ctx, challenge.ChallengeID, auth.assert(t, challenge))
	assert.ErrorIs(t, err, ErrCounterRegression)
}

func TestVerifyWebAuthnLogin_SecondAttemptIsGone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	auth := newAuthenticator()
	auth.register(t, f, userID, "")

	challenge, err := f.svc.CreateLoginChallenge(ctx, userID)
	require.NoError(t, err)

	_, err = f.svc.VerifyWebAuthnLogin(ctx, challenge.ChallengeID, auth.assert(t, challenge))
	require.NoError(t, err)

	_, err = f.svc.VerifyWebAuthnLogin(ctx, challenge.ChallengeID, auth.assert(t, challenge))
	assert.ErrorIs(t, err, ErrChallengeConsumed)
}

func TestVerifyWebAuthnLogin_MethodNotOffered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	enrollTOTP(t, f, userID)

	challenge, err := f.svc.CreateLoginChallenge(ctx, userID)
	require.NoError(t, err)

	_, err = f.svc.VerifyWebAuthnLogin(ctx, challenge.ChallengeID, json.RawMessage(`{}`))
	assert.ErrorIs(t, err, ErrMethodNotAllowed)
}

func TestVerifyWebAuthnLogin_BadResponseLeavesChallengeActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	auth := newAuthenticator()
	auth.register(t, f, userID, "")

	challenge, err := f.svc.CreateLoginChallenge(ctx, userID)
	require.NoError(t, err)

	_, err = f.svc.VerifyWebAuthnLogin(ctx, challenge.ChallengeID, json.RawMessage(`{"garbage":true}`))
	assert.True(t, IsValidation(err))

	stored, err := f.challenges.Get(ctx, challenge.ChallengeID)
	require.NoError(t, err)
	assert.Nil(t, stored.ConsumedAt)
}
