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
	"time"

	"github.com/google/uuid"
)

// MethodStore is the persistence layer for MFA method records.
type MethodStore interface {
	// GetByID retrieves a method by its primary key.
	// Returns ErrMethodNotFound if the method does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*Method, error)

	// GetByUser retrieves all methods belonging to a user.
	// Returns an empty slice if the user has none.
	GetByUser(ctx context.Context, userID uuid.UUID) ([]*Method, error)

	// GetByUserAndType retrieves a user's methods of one factor type.
	GetByUserAndType(ctx context.Context, userID uuid.UUID, t MethodType) ([]*Method, error)

	// Create persists a new method.
	Create(ctx context.Context, m *Method) error

	// Update persists changes to an existing method.
	// Returns ErrMethodNotFound if the method does not exist.
	Update(ctx context.Context, m *Method) error

	// Delete removes a method by its primary key.
	// Returns ErrMethodNotFound if the method does not exist.
	Delete(ctx context.Context, id uuid.UUID) error
}

// SecretStore is the persistence layer for encrypted TOTP secrets.
type SecretStore interface {
	// GetByMethodID retrieves the secret for a TOTP method.
	// Returns ErrSecretNotFound if no secret is stored.
	GetByMethodID(ctx context.Context, methodID uuid.UUID) (*TOTPSecret, error)

	// Upsert inserts or replaces the secret for a method. Replacing the
	// secret resets ConfirmedAt; rotation invalidates any pending,
	// unconfirmed enrollment.
	Upsert(ctx context.Context, s *TOTPSecret) error

	// MarkConfirmed sets ConfirmedAt for a method's secret.
	// Returns ErrSecretNotFound if no secret is stored.
	MarkConfirmed(ctx context.Context, methodID uuid.UUID, confirmedAt time.Time) error

	// DeleteByMethodID removes the secret for a method, if any.
	DeleteByMethodID(ctx context.Context, methodID uuid.UUID) error
}

// CredentialStore is the persistence layer for WebAuthn credentials.
type CredentialStore interface {
	// GetByID retrieves a credential row by its primary key.
	// Returns ErrCredentialNotFound if the credential does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*Credential, error)

	// GetByCredentialID retrieves a credential by the authenticator-assigned id.
	// Returns ErrCredentialNotFound if the credential does not exist.
	GetByCredentialID(ctx context.Context, credentialID []byte) (*Credential, error)

	// GetByMethodID retrieves all credentials owned by a WebAuthn method.
	// Returns an empty slice if the method has none.
	GetByMethodID(ctx context.Context, methodID uuid.UUID) ([]*Credential, error)

	// Create persists a new credential.
	Create(ctx context.Context, c *Credential) error

	// UpdateCounter persists a new signature counter and last-used time.
	// Returns ErrCredentialNotFound if the credential does not exist.
	UpdateCounter(ctx context.Context, id uuid.UUID, counter uint32, usedAt time.Time) error

	// Delete removes a credential by its primary key.
	// Returns ErrCredentialNotFound if the credential does not exist.
	Delete(ctx context.Context, id uuid.UUID) error
}

// ChallengeStore is the persistence layer for short-lived, single-use
// challenges.
type ChallengeStore interface {
	// Create persists a new challenge.
	Create(ctx context.Context, c *Challenge) error

	// Get retrieves a challenge by id.
	// Returns ErrChallengeNotFound if the challenge does not exist.
	Get(ctx context.Context, id uuid.UUID) (*Challenge, error)

	// Consume marks the challenge consumed at the given time. The update is
	// conditional on ConsumedAt still being nil so that two concurrent
	// verification attempts cannot both succeed. Returns ErrChallengeConsumed
	// when the challenge was already consumed and ErrChallengeNotFound when
	// it does not exist.
	Consume(ctx context.Context, id uuid.UUID, consumedAt time.Time) error

	// SweepExpired physically deletes challenges whose expiry precedes ref.
	// Idempotent and safe for repeated or concurrent execution. Returns the
	// number of rows deleted.
	SweepExpired(ctx context.Context, ref time.Time) (int64, error)
}
