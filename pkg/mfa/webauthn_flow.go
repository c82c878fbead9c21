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

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
	"github.com/jeremyhahn/go-mfa/pkg/audit"
)

// RegistrationStart is the result of starting WebAuthn credential
// registration. Options are relayed to the client's authenticator; the
// challenge id is echoed back with the attestation response.
type RegistrationStart struct {
	ChallengeID uuid.UUID                    `json:"challenge_id"`
	Options     *protocol.CredentialCreation `json:"options"`
	Method      *Method                      `json:"method"`
}

// StartWebAuthnRegistration begins a credential registration ceremony.
//
// The user's single WebAuthn method is reused or created disabled. Options
// exclude credential ids the method already owns so the same authenticator
// cannot be registered twice.
func (s *Service) StartWebAuthnRegistration(ctx context.Context, userID uuid.UUID, identity Identity, deviceName, label string) (*RegistrationStart, error) {
	method, created, err := s.webauthnMethod(ctx, userID, label)
	if err != nil {
		return nil, err
	}

	existing, err := s.creds.GetByMethodID(ctx, method.ID)
	if err != nil {
		return nil, WrapError("get credentials", err)
	}
	excludeList := make([]protocol.CredentialDescriptor, len(existing))
	for i, c := range existing {
		excludeList[i] = c.Descriptor()
	}

	user := &ceremonyUser{
		id:          userID,
		name:        identity.Username,
		displayName: identity.DisplayName,
	}
	options, session, err := s.webauthn.BeginRegistration(user,
		webauthn.WithExclusions(excludeList),
	)
	if err != nil {
		return nil, WrapError("begin registration", err)
	}

	sessionJSON, err := json.Marshal(session)
	if err != nil {
		return nil, WrapError("encode session", err)
	}
	payload, err := json.Marshal(&RegistrationChallengePayload{
		MethodID:        method.ID,
		DeviceName:      deviceName,
		WebAuthnSession: sessionJSON,
	})
	if err != nil {
		return nil, WrapError("encode challenge payload", err)
	}

	now := s.now()
	challenge := &Challenge{
		ID:        uuid.New(),
		UserID:    userID,
		Purpose:   PurposeWebAuthnRegistration,
		Payload:   payload,
		ExpiresAt: now.Add(s.config.RegistrationChallengeTTL),
		CreatedAt: now,
	}
	if err := s.challenges.Create(ctx, challenge); err != nil {
		return nil, WrapError("create registration challenge", err)
	}

	if created {
		if err := s.recordAudit(ctx, userID, "mfa_method", method.ID.String(), audit.ActionCreate, nil, snapshotMethod(method)); err != nil {
			return nil, WrapError("audit webauthn method", err)
		}
	}

	return &RegistrationStart{
		ChallengeID: challenge.ID,
		Options:     options,
		Method:      method,
	}, nil
}

// CompleteWebAuthnRegistration verifies an attestation response and persists
// the new credential. The challenge is consumed before any state is written
// so a concurrent duplicate attempt fails with a gone error instead of
// inserting twice.
func (s *Service) CompleteWebAuthnRegistration(ctx context.Context, userID, challengeID uuid.UUID, response json.RawMessage) (*Method, error) {
	challenge, err := s.challenges.Get(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := AssertActive(challenge, now); err != nil {
		return nil, err
	}
	if challenge.UserID != userID {
		return nil, ErrChallengeNotFound
	}

	payload, err := challenge.RegistrationPayload()
	if err != nil {
		return nil, err
	}
	method, err := s.ownedMethod(ctx, userID, payload.MethodID)
	if err != nil {
		return nil, err
	}

	var session webauthn.SessionData
	if err := json.Unmarshal(payload.WebAuthnSession, &session); err != nil {
		return nil, WrapError("decode session", err)
	}

	parsed, err := protocol.ParseCredentialCreationResponseBody(bytes.NewReader(response))
	if err != nil {
		return nil, NewError("parse attestation response", ErrVerificationFailed)
	}

	existing, err := s.creds.GetByMethodID(ctx, method.ID)
	if err != nil {
		return nil, WrapError("get credentials", err)
	}
	user := s.ceremonyUserFor(userID, existing)

	cred, err := s.webauthn.CreateCredential(user, session, parsed)
	if err != nil {
		s.logger.Debugf("webauthn attestation verification failed: %v", err)
		return nil, NewError("verify attestation", ErrVerificationFailed)
	}

	if err := s.challenges.Consume(ctx, challengeID, now); err != nil {
		return nil, err
	}

	transports := make([]string, len(cred.Transport))
	for i, t := range cred.Transport {
		transports[i] = string(t)
	}
	record := &Credential{
		ID:                uuid.New(),
		MethodID:          method.ID,
		CredentialID:      cred.ID,
		PublicKey:         cred.PublicKey,
		Counter:           cred.Authenticator.SignCount,
		Transports:        transports,
		AttestationFormat: cred.AttestationType,
		DeviceName:        payload.DeviceName,
		CreatedAt:         now,
	}
	if err := s.creds.Create(ctx, record); err != nil {
		return nil, WrapError("store credential", err)
	}

	before := snapshotMethod(method)
	if !method.Enabled {
		method.Enabled = true
		method.UpdatedAt = now
		if err := s.methods.Update(ctx, method); err != nil {
			return nil, WrapError("enable webauthn method", err)
		}
	}

	if err := s.recordAudit(ctx, userID, "webauthn_credential", record.ID.String(), audit.ActionCreate, nil, record); err != nil {
		return nil, WrapError("audit credential creation", err)
	}
	if before.Enabled != method.Enabled {
		if err := s.recordAudit(ctx, userID, "mfa_method", method.ID.String(), audit.ActionUpdate, before, snapshotMethod(method)); err != nil {
			return nil, WrapError("audit method enable", err)
		}
	}

	return method, nil
}

// RemoveWebAuthnCredential deletes a credential owned by the user. Removing
// the method's last credential disables the method.
func (s *Service) RemoveWebAuthnCredential(ctx context.Context, userID, credentialID uuid.UUID) error {
	cred, err := s.creds.GetByID(ctx, credentialID)
	if err != nil {
		return err
	}
	method, err := s.methods.GetByID(ctx, cred.MethodID)
	if err != nil {
		return err
	}
	if method.UserID != userID {
		return ErrCredentialNotFound
	}

	if err := s.creds.Delete(ctx, credentialID); err != nil {
		return err
	}
	if err := s.recordAudit(ctx, userID, "webauthn_credential", cred.ID.String(), audit.ActionDelete, cred, nil); err != nil {
		return WrapError("audit credential removal", err)
	}

	remaining, err := s.creds.GetByMethodID(ctx, method.ID)
	if err != nil {
		return WrapError("get credentials", err)
	}
	if len(remaining) == 0 && method.Enabled {
		before := snapshotMethod(method)
		method.Enabled = false
		method.UpdatedAt = s.now()
		if err := s.methods.Update(ctx, method); err != nil {
			return WrapError("disable webauthn method", err)
		}
		if err := s.recordAudit(ctx, userID, "mfa_method", method.ID.String(), audit.ActionUpdate, before, snapshotMethod(method)); err != nil {
			return WrapError("audit method disable", err)
		}
	}
	return nil
}

// webauthnMethod returns the user's single WebAuthn method, creating it
// disabled when absent.
func (s *Service) webauthnMethod(ctx context.Context, userID uuid.UUID, label string) (*Method, bool, error) {
	existing, err := s.methods.GetByUserAndType(ctx, userID, MethodWebAuthn)
	if err != nil {
		return nil, false, WrapError("get webauthn methods", err)
	}
	if len(existing) > 0 {
		method := existing[0]
		if label != "" && label != method.Label {
			method.Label = label
			method.UpdatedAt = s.now()
			if err := s.methods.Update(ctx, method); err != nil {
				return nil, false, WrapError("update webauthn method", err)
			}
		}
		return method, false, nil
	}

	now := s.now()
	method := &Method{
		ID:        uuid.New(),
		UserID:    userID,
		Type:      MethodWebAuthn,
		Label:     label,
		Enabled:   false,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.methods.Create(ctx, method); err != nil {
		return nil, false, WrapError("create webauthn method", err)
	}
	return method, true, nil
}

// ceremonyUserFor builds the webauthn.User view of a user and their stored
// credentials.
func (s *Service) ceremonyUserFor(userID uuid.UUID, creds []*Credential) *ceremonyUser {
	converted := make([]webauthn.Credential, len(creds))
	for i, c := range creds {
		converted[i] = c.ToWebAuthn()
	}
	return &ceremonyUser{
		id:          userID,
		name:        userID.String(),
		credentials: converted,
	}
}
