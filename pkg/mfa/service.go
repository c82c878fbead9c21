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
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
	"github.com/jeremyhahn/go-mfa/pkg/audit"
	"github.com/jeremyhahn/go-mfa/pkg/logging"
)

// FieldCipher encrypts and decrypts individual secret values at rest.
type FieldCipher interface {
	EncryptString(ctx context.Context, plaintext string) (string, error)
	DecryptString(ctx context.Context, value string) (string, error)
}

// Service provides MFA enrollment, challenge issuance and verification for
// TOTP and WebAuthn factors.
type Service struct {
	webauthn   *webauthn.WebAuthn
	config     *Config
	methods    MethodStore
	secrets    SecretStore
	creds      CredentialStore
	challenges ChallengeStore
	audit      audit.Sink
	cipher     FieldCipher
	logger     *logging.Logger
	now        func() time.Time
}

// ServiceParams contains dependencies for creating an MFA service.
type ServiceParams struct {
	// Config is the MFA configuration (required).
	Config *Config

	// MethodStore is the method persistence layer (required).
	MethodStore MethodStore

	// SecretStore is the TOTP secret persistence layer (required).
	SecretStore SecretStore

	// CredentialStore is the WebAuthn credential persistence layer (required).
	CredentialStore CredentialStore

	// ChallengeStore is the challenge persistence layer (required).
	ChallengeStore ChallengeStore

	// AuditSink receives before/after snapshots for every mutation (required).
	AuditSink audit.Sink

	// FieldCipher encrypts TOTP secrets at rest (required).
	FieldCipher FieldCipher

	// Logger is the structured logger. Defaults to the package default logger.
	Logger *logging.Logger

	// Now overrides the clock, used by tests. Defaults to time.Now.
	Now func() time.Time
}

// NewService creates a new MFA service with the provided dependencies.
func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if params.MethodStore == nil {
		return nil, fmt.Errorf("method store is required")
	}
	if params.SecretStore == nil {
		return nil, fmt.Errorf("secret store is required")
	}
	if params.CredentialStore == nil {
		return nil, fmt.Errorf("credential store is required")
	}
	if params.ChallengeStore == nil {
		return nil, fmt.Errorf("challenge store is required")
	}
	if params.AuditSink == nil {
		return nil, fmt.Errorf("audit sink is required")
	}
	if params.FieldCipher == nil {
		return nil, fmt.Errorf("field cipher is required")
	}

	params.Config.SetDefaults()
	if err := params.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	wa, err := webauthn.New(params.Config.ToWebAuthnConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create webauthn instance: %w", err)
	}

	logger := params.Logger
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		webauthn:   wa,
		config:     params.Config,
		methods:    params.MethodStore,
		secrets:    params.SecretStore,
		creds:      params.CredentialStore,
		challenges: params.ChallengeStore,
		audit:      params.AuditSink,
		cipher:     params.FieldCipher,
		logger:     logger,
		now:        now,
	}, nil
}

// ListMethods returns all of a user's MFA methods.
func (s *Service) ListMethods(ctx context.Context, userID uuid.UUID) ([]*Method, error) {
	methods, err := s.methods.GetByUser(ctx, userID)
	if err != nil {
		return nil, WrapError("list methods", err)
	}
	return methods, nil
}

// SweepExpiredChallenges deletes challenges past their expiry. Intended to be
// called on a schedule by the process hosting the service.
func (s *Service) SweepExpiredChallenges(ctx context.Context) (int64, error) {
	removed, err := s.challenges.SweepExpired(ctx, s.now())
	if err != nil {
		return 0, WrapError("sweep expired challenges", err)
	}
	if removed > 0 {
		s.logger.Debugf("swept %d expired challenges", removed)
	}
	return removed, nil
}

// recordAudit writes one audit entry. Failures propagate to the caller.
func (s *Service) recordAudit(ctx context.Context, userID uuid.UUID, entity, entityID string, action audit.Action, before, after any) error {
	return s.audit.Record(ctx, &audit.Entry{
		UserID:    userID,
		Entity:    entity,
		EntityID:  entityID,
		Action:    action,
		Before:    before,
		After:     after,
		CreatedAt: s.now(),
	})
}

// ownedMethod loads a method and verifies caller ownership. A mismatch is
// reported as not-found so non-owners cannot probe for existence.
func (s *Service) ownedMethod(ctx context.Context, userID, methodID uuid.UUID) (*Method, error) {
	m, err := s.methods.GetByID(ctx, methodID)
	if err != nil {
		return nil, err
	}
	if m.UserID != userID {
		return nil, ErrMethodNotFound
	}
	return m, nil
}

// methodSnapshot is the audit payload for method mutations.
type methodSnapshot struct {
	Type    MethodType `json:"type"`
	Label   string     `json:"label,omitempty"`
	Enabled bool       `json:"enabled"`
}

func snapshotMethod(m *Method) *methodSnapshot {
	if m == nil {
		return nil
	}
	return &methodSnapshot{
		Type:    m.Type,
		Label:   m.Label,
		Enabled: m.Enabled,
	}
}
