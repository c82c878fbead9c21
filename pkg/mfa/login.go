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
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
)

// LoginChallenge is the challenge handed to the login route when a user has
// at least one enabled factor.
type LoginChallenge struct {
	ChallengeID     uuid.UUID                     `json:"challenge_id"`
	Methods         []MethodType                  `json:"methods"`
	ExpiresAt       time.Time                     `json:"expires_at"`
	WebAuthnOptions *protocol.CredentialAssertion `json:"webauthn_options,omitempty"`
}

// CreateLoginChallenge composes the user's enabled factors into one
// login-time challenge. Returns nil when the user has no enabled factor; the
// login route decides how to treat a user without MFA.
func (s *Service) CreateLoginChallenge(ctx context.Context, userID uuid.UUID) (*LoginChallenge, error) {
	totpMethods, err := s.methods.GetByUserAndType(ctx, userID, MethodTOTP)
	if err != nil {
		return nil, WrapError("get totp methods", err)
	}
	hasTOTP := false
	for _, m := range totpMethods {
		if m.Enabled {
			hasTOTP = true
			break
		}
	}

	var credentials []*Credential
	waMethods, err := s.methods.GetByUserAndType(ctx, userID, MethodWebAuthn)
	if err != nil {
		return nil, WrapError("get webauthn methods", err)
	}
	for _, m := range waMethods {
		if !m.Enabled {
			continue
		}
		creds, err := s.creds.GetByMethodID(ctx, m.ID)
		if err != nil {
			return nil, WrapError("get credentials", err)
		}
		credentials = append(credentials, creds...)
	}

	if !hasTOTP && len(credentials) == 0 {
		return nil, nil
	}

	allowed := []MethodType{}
	if hasTOTP {
		allowed = append(allowed, MethodTOTP)
	}

	var options *protocol.CredentialAssertion
	var sessionJSON json.RawMessage
	if len(credentials) > 0 {
		allowed = append(allowed, MethodWebAuthn)

		allowList := make([]protocol.CredentialDescriptor, len(credentials))
		for i, c := range credentials {
			allowList[i] = c.Descriptor()
		}
		user := s.ceremonyUserFor(userID, credentials)
		var session *webauthn.SessionData
		options, session, err = s.webauthn.BeginLogin(user,
			webauthn.WithAllowedCredentials(allowList),
		)
		if err != nil {
			return nil, WrapError("begin login", err)
		}
		sessionJSON, err = json.Marshal(session)
		if err != nil {
			return nil, WrapError("encode session", err)
		}
	}

	payload, err := json.Marshal(&LoginChallengePayload{
		AllowedMethods:  allowed,
		WebAuthnSession: sessionJSON,
	})
	if err != nil {
		return nil, WrapError("encode challenge payload", err)
	}

	now := s.now()
	challenge := &Challenge{
		ID:        uuid.New(),
		UserID:    userID,
		Purpose:   PurposeLogin,
		Payload:   payload,
		ExpiresAt: now.Add(s.config.LoginChallengeTTL),
		CreatedAt: now,
	}
	if err := s.challenges.Create(ctx, challenge); err != nil {
		return nil, WrapError("create login challenge", err)
	}

	return &LoginChallenge{
		ChallengeID:     challenge.ID,
		Methods:         allowed,
		ExpiresAt:       challenge.ExpiresAt,
		WebAuthnOptions: options,
	}, nil
}

// VerifyTOTPLogin answers a login challenge with a TOTP code. Returns the
// authenticated user id. The challenge is consumed only on success so a
// mistyped code can be retried while the challenge is alive.
func (s *Service) VerifyTOTPLogin(ctx context.Context, challengeID uuid.UUID, code string) (uuid.UUID, error) {
	challenge, err := s.challenges.Get(ctx, challengeID)
	if err != nil {
		return uuid.Nil, err
	}
	now := s.now()
	if err := AssertActive(challenge, now); err != nil {
		return uuid.Nil, err
	}
	payload, err := challenge.LoginPayload()
	if err != nil {
		return uuid.Nil, err
	}
	if !payload.Allows(MethodTOTP) {
		return uuid.Nil, ErrMethodNotAllowed
	}

	ok, err := s.VerifyTOTPCode(ctx, challenge.UserID, code)
	if err != nil {
		return uuid.Nil, err
	}
	if !ok {
		return uuid.Nil, ErrInvalidCode
	}

	if err := s.challenges.Consume(ctx, challengeID, now); err != nil {
		return uuid.Nil, err
	}
	return challenge.UserID, nil
}

// VerifyWebAuthnLogin answers a login challenge with an assertion response.
// Returns the authenticated user id. An assertion whose reported signature
// counter is not strictly greater than the stored counter is rejected as a
// replay or clone suspect.
func (s *Service) VerifyWebAuthnLogin(ctx context.Context, challengeID uuid.UUID, response json.RawMessage) (uuid.UUID, error) {
	challenge, err := s.challenges.Get(ctx, challengeID)
	if err != nil {
		return uuid.Nil, err
	}
	now := s.now()
	if err := AssertActive(challenge, now); err != nil {
		return uuid.Nil, err
	}
	payload, err := challenge.LoginPayload()
	if err != nil {
		return uuid.Nil, err
	}
	if !payload.Allows(MethodWebAuthn) || len(payload.WebAuthnSession) == 0 {
		return uuid.Nil, ErrMethodNotAllowed
	}

	var session webauthn.SessionData
	if err := json.Unmarshal(payload.WebAuthnSession, &session); err != nil {
		return uuid.Nil, WrapError("decode session", err)
	}

	parsed, err := protocol.ParseCredentialRequestResponseBody(bytes.NewReader(response))
	if err != nil {
		return uuid.Nil, NewError("parse assertion response", ErrVerificationFailed)
	}

	stored, err := s.creds.GetByCredentialID(ctx, parsed.RawID)
	if err != nil {
		return uuid.Nil, err
	}
	method, err := s.methods.GetByID(ctx, stored.MethodID)
	if err != nil {
		return uuid.Nil, err
	}
	if method.UserID != challenge.UserID {
		return uuid.Nil, ErrCredentialNotFound
	}

	siblings, err := s.creds.GetByMethodID(ctx, method.ID)
	if err != nil {
		return uuid.Nil, WrapError("get credentials", err)
	}
	user := s.ceremonyUserFor(challenge.UserID, siblings)

	validated, err := s.webauthn.ValidateLogin(user, session, parsed)
	if err != nil {
		s.logger.Debugf("webauthn assertion verification failed: %v", err)
		return uuid.Nil, NewError("verify assertion", ErrVerificationFailed)
	}
	if validated.Authenticator.SignCount <= stored.Counter {
		return uuid.Nil, ErrCounterRegression
	}

	if err := s.challenges.Consume(ctx, challengeID, now); err != nil {
		return uuid.Nil, err
	}

	if err := s.creds.UpdateCounter(ctx, stored.ID, validated.Authenticator.SignCount, now); err != nil {
		return uuid.Nil, WrapError("update credential counter", err)
	}
	method.LastUsedAt = &now
	method.UpdatedAt = now
	if err := s.methods.Update(ctx, method); err != nil {
		return uuid.Nil, WrapError("update webauthn method", err)
	}

	return challenge.UserID, nil
}
