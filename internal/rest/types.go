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
	"encoding/json"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/google/uuid"

	"github.com/jeremyhahn/go-mfa/pkg/mfa"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// ListMethodsResponse lists the caller's enrolled methods.
type ListMethodsResponse struct {
	Methods []*mfa.Method `json:"methods"`
}

// TOTPSetupRequest starts or restarts TOTP enrollment.
type TOTPSetupRequest struct {
	// Label is an optional display name for the method.
	Label string `json:"label,omitempty"`

	// AccountLabel overrides the account name embedded in the otpauth URL.
	AccountLabel string `json:"accountLabel,omitempty"`
}

// TOTPSetupResponse carries the provisioning material for an authenticator app.
type TOTPSetupResponse struct {
	Method     *mfa.Method `json:"method"`
	Secret     string      `json:"secret"`
	OtpauthURL string      `json:"otpauthUrl"`
}

// TOTPConfirmRequest confirms a pending TOTP enrollment.
type TOTPConfirmRequest struct {
	MethodID uuid.UUID `json:"methodId"`
	Code     string    `json:"code"`
}

// MethodResponse wraps a single method.
type MethodResponse struct {
	Method *mfa.Method `json:"method"`
}

// RegistrationOptionsRequest starts a WebAuthn credential registration.
type RegistrationOptionsRequest struct {
	// DeviceName is an optional name for the authenticator being registered.
	DeviceName string `json:"deviceName,omitempty"`

	// Label is an optional display name for the method.
	Label string `json:"label,omitempty"`
}

// RegistrationOptionsResponse carries the creation options for the browser.
type RegistrationOptionsResponse struct {
	ChallengeID uuid.UUID                    `json:"challengeId"`
	Options     *protocol.CredentialCreation `json:"options"`
	Method      *mfa.Method                  `json:"method"`
}

// RegistrationVerifyRequest finishes a WebAuthn credential registration.
type RegistrationVerifyRequest struct {
	ChallengeID uuid.UUID       `json:"challengeId"`
	Response    json.RawMessage `json:"response"`
}

// LoginChallengeRequest creates a login challenge for a user.
type LoginChallengeRequest struct {
	UserID uuid.UUID `json:"userId"`
}

// LoginChallengeResponse wraps the created challenge. Challenge is null when
// the user has no enabled second factor.
type LoginChallengeResponse struct {
	Challenge *mfa.LoginChallenge `json:"challenge"`
}

// VerifyTOTPLoginRequest verifies a TOTP code against a login challenge.
type VerifyTOTPLoginRequest struct {
	Code string `json:"code"`
}

// VerifyWebAuthnLoginRequest verifies an assertion against a login challenge.
type VerifyWebAuthnLoginRequest struct {
	Response json.RawMessage `json:"response"`
}

// VerifyLoginResponse reports the user a successful verification belongs to.
type VerifyLoginResponse struct {
	UserID uuid.UUID `json:"userId"`
}
