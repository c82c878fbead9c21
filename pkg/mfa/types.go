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
	"encoding/json"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
)

// MethodType identifies an authentication factor. The set is closed; methods
// are discriminated by this tag, never by a type hierarchy.
type MethodType string

const (
	// MethodTOTP is a time-based one-time password factor.
	MethodTOTP MethodType = "totp"

	// MethodWebAuthn is a public-key authenticator factor. A single WebAuthn
	// method aggregates all of a user's physical authenticators.
	MethodWebAuthn MethodType = "webauthn"
)

// Method is a per-user MFA method record.
//
// At most one TOTP method exists per user. Exactly one WebAuthn method exists
// per user, owning any number of credentials; its Enabled flag is true iff it
// owns at least one credential.
type Method struct {
	// ID is the method's primary key.
	ID uuid.UUID `json:"id"`

	// UserID is the owning user.
	UserID uuid.UUID `json:"user_id"`

	// Type discriminates the factor.
	Type MethodType `json:"type"`

	// Label is a user-chosen display name.
	Label string `json:"label,omitempty"`

	// Enabled reports whether the method participates in login challenges.
	Enabled bool `json:"enabled"`

	// LastUsedAt is when the method last verified successfully.
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`

	// CreatedAt is when the method record was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the method record was last modified.
	UpdatedAt time.Time `json:"updated_at"`
}

// TOTPSecret is the encrypted shared secret backing a TOTP method.
// One-to-one with its method.
type TOTPSecret struct {
	// MethodID is the owning TOTP method.
	MethodID uuid.UUID `json:"method_id"`

	// EncryptedSecret is the base32 TOTP secret, encrypted at rest by the
	// field encryption layer.
	EncryptedSecret string `json:"encrypted_secret"`

	// ConfirmedAt is when enrollment was confirmed. Reset to nil whenever
	// the secret is rotated.
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
}

// Credential is a WebAuthn public-key credential owned by a WebAuthn method.
type Credential struct {
	// ID is the credential row's primary key.
	ID uuid.UUID `json:"id"`

	// MethodID is the owning WebAuthn method.
	MethodID uuid.UUID `json:"method_id"`

	// CredentialID is the identifier assigned by the authenticator.
	CredentialID []byte `json:"credential_id"`

	// PublicKey is the credential's public key in COSE format.
	PublicKey []byte `json:"public_key"`

	// Counter is the signature counter, monotonically non-decreasing across
	// successful authentications. Assertions reporting a counter that is not
	// strictly greater are rejected as replay/clone suspects.
	Counter uint32 `json:"counter"`

	// Transports lists the transports reported by the authenticator.
	Transports []string `json:"transports,omitempty"`

	// AttestationFormat is the attestation type used at registration.
	AttestationFormat string `json:"attestation_format,omitempty"`

	// DeviceName is a user-chosen name for the authenticator.
	DeviceName string `json:"device_name,omitempty"`

	// CreatedAt is when the credential was registered.
	CreatedAt time.Time `json:"created_at"`

	// LastUsedAt is when the credential last authenticated.
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// ToWebAuthn converts a Credential to the go-webauthn library's type.
func (c *Credential) ToWebAuthn() webauthn.Credential {
	transports := make([]protocol.AuthenticatorTransport, len(c.Transports))
	for i, t := range c.Transports {
		transports[i] = protocol.AuthenticatorTransport(t)
	}
	return webauthn.Credential{
		ID:              c.CredentialID,
		PublicKey:       c.PublicKey,
		AttestationType: c.AttestationFormat,
		Transport:       transports,
		Authenticator: webauthn.Authenticator{
			SignCount: c.Counter,
		},
	}
}

// Descriptor returns the credential descriptor used in exclusion and
// allow-credential lists.
func (c *Credential) Descriptor() protocol.CredentialDescriptor {
	transports := make([]protocol.AuthenticatorTransport, len(c.Transports))
	for i, t := range c.Transports {
		transports[i] = protocol.AuthenticatorTransport(t)
	}
	return protocol.CredentialDescriptor{
		Type:         protocol.PublicKeyCredentialType,
		CredentialID: c.CredentialID,
		Transport:    transports,
	}
}

// ChallengePurpose tags a challenge with the ceremony it belongs to. The
// payload shape is determined by the purpose; decoders switch on it first.
type ChallengePurpose string

const (
	// PurposeLogin is a login-time challenge offering the user's enabled factors.
	PurposeLogin ChallengePurpose = "login"

	// PurposeWebAuthnRegistration is a credential registration challenge.
	PurposeWebAuthnRegistration ChallengePurpose = "webauthn_registration"
)

// Challenge is a short-lived, single-use challenge record.
//
// ConsumedAt is set exactly once and never cleared; a consumed or expired
// challenge can never be reactivated.
type Challenge struct {
	// ID is the challenge's primary key, returned to clients as an opaque handle.
	ID uuid.UUID `json:"id"`

	// UserID is the user this challenge was issued for.
	UserID uuid.UUID `json:"user_id"`

	// Purpose tags the ceremony the challenge belongs to.
	Purpose ChallengePurpose `json:"purpose"`

	// Payload is the purpose-specific challenge body.
	Payload json.RawMessage `json:"payload"`

	// ExpiresAt is when the challenge stops being verifiable.
	ExpiresAt time.Time `json:"expires_at"`

	// ConsumedAt is when the challenge was consumed, nil while active.
	ConsumedAt *time.Time `json:"consumed_at,omitempty"`

	// CreatedAt is when the challenge was issued.
	CreatedAt time.Time `json:"created_at"`
}

// LoginChallengePayload is the payload for PurposeLogin challenges.
type LoginChallengePayload struct {
	// AllowedMethods lists the factor types eligible to answer this challenge.
	AllowedMethods []MethodType `json:"allowed_methods"`

	// WebAuthnSession is the serialized webauthn.SessionData for the
	// assertion ceremony, present only when the user owns credentials.
	WebAuthnSession json.RawMessage `json:"webauthn_session,omitempty"`
}

// RegistrationChallengePayload is the payload for
// PurposeWebAuthnRegistration challenges.
type RegistrationChallengePayload struct {
	// MethodID is the WebAuthn method the new credential will belong to.
	MethodID uuid.UUID `json:"method_id"`

	// DeviceName is carried from the registration start call.
	DeviceName string `json:"device_name,omitempty"`

	// WebAuthnSession is the serialized webauthn.SessionData for the
	// attestation ceremony.
	WebAuthnSession json.RawMessage `json:"webauthn_session"`
}

// LoginPayload decodes the challenge payload as a login payload.
// Returns ErrWrongPurpose if the challenge has a different purpose.
func (c *Challenge) LoginPayload() (*LoginChallengePayload, error) {
	if c.Purpose != PurposeLogin {
		return nil, ErrWrongPurpose
	}
	var p LoginChallengePayload
	if err := json.Unmarshal(c.Payload, &p); err != nil {
		return nil, WrapError("decode login payload", err)
	}
	return &p, nil
}

// RegistrationPayload decodes the challenge payload as a registration payload.
// Returns ErrWrongPurpose if the challenge has a different purpose.
func (c *Challenge) RegistrationPayload() (*RegistrationChallengePayload, error) {
	if c.Purpose != PurposeWebAuthnRegistration {
		return nil, ErrWrongPurpose
	}
	var p RegistrationChallengePayload
	if err := json.Unmarshal(c.Payload, &p); err != nil {
		return nil, WrapError("decode registration payload", err)
	}
	return &p, nil
}

// Allows reports whether the payload permits the given factor type.
func (p *LoginChallengePayload) Allows(t MethodType) bool {
	for _, m := range p.AllowedMethods {
		if m == t {
			return true
		}
	}
	return false
}

// AssertActive is the shared precondition applied before any cryptographic
// work: nil challenge is ErrChallengeNotFound, a consumed challenge is
// ErrChallengeConsumed and an expired one ErrChallengeExpired.
func AssertActive(c *Challenge, now time.Time) error {
	if c == nil {
		return ErrChallengeNotFound
	}
	if c.ConsumedAt != nil {
		return ErrChallengeConsumed
	}
	if now.After(c.ExpiresAt) {
		return ErrChallengeExpired
	}
	return nil
}

// Identity carries the user-facing naming used in WebAuthn ceremonies.
// The subsystem has no user table of its own; callers supply this.
type Identity struct {
	// Username is the account identifier shown by authenticators.
	Username string `json:"username"`

	// DisplayName is the human-readable name shown by authenticators.
	DisplayName string `json:"display_name,omitempty"`
}

// ceremonyUser adapts a user id plus stored credentials to webauthn.User.
type ceremonyUser struct {
	id          uuid.UUID
	name        string
	displayName string
	credentials []webauthn.Credential
}

func (u *ceremonyUser) WebAuthnID() []byte { return u.id[:] }

func (u *ceremonyUser) WebAuthnName() string { return u.name }

func (u *ceremonyUser) WebAuthnDisplayName() string {
	if u.displayName != "" {
		return u.displayName
	}
	return u.name
}

func (u *ceremonyUser) WebAuthnCredentials() []webauthn.Credential { return u.credentials }
