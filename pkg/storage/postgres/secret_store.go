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

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jeremyhahn/go-mfa/pkg/mfa"
)

// SecretStore is the PostgreSQL implementation of mfa.SecretStore.
type SecretStore struct {
	db *sql.DB
}

// NewSecretStore returns a secret store backed by the given db.
func NewSecretStore(db *sql.DB) *SecretStore {
	return &SecretStore{db: db}
}

// GetByMethodID retrieves the secret for a TOTP method.
func (s *SecretStore) GetByMethodID(ctx context.Context, methodID uuid.UUID) (*mfa.TOTPSecret, error) {
	var sec mfa.TOTPSecret
	err := s.db.QueryRowContext(ctx,
		"SELECT method_id, encrypted_secret, confirmed_at FROM totp_secrets WHERE method_id = $1",
		methodID).Scan(&sec.MethodID, &sec.EncryptedSecret, &sec.ConfirmedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, mfa.ErrSecretNotFound
		}
		return nil, err
	}
	return &sec, nil
}

// Upsert inserts or replaces the secret for a method. Replacement clears
// confirmed_at so rotation invalidates a pending enrollment.
func (s *SecretStore) Upsert(ctx context.Context, sec *mfa.TOTPSecret) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO totp_secrets (method_id, encrypted_secret, confirmed_at)
		 VALUES ($1, $2, NULL)
		 ON CONFLICT (method_id)
		 DO UPDATE SET encrypted_secret = EXCLUDED.encrypted_secret, confirmed_at = NULL`,
		sec.MethodID, sec.EncryptedSecret)
	return err
}

// MarkConfirmed sets confirmed_at for a method's secret.
func (s *SecretStore) MarkConfirmed(ctx context.Context, methodID uuid.UUID, confirmedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE totp_secrets SET confirmed_at = $1 WHERE method_id = $2",
		confirmedAt, methodID)
	if err != nil {
		return err
	}
	return requireRow(res, mfa.ErrSecretNotFound)
}

// DeleteByMethodID removes the secret for a method, if any.
func (s *SecretStore) DeleteByMethodID(ctx context.Context, methodID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM totp_secrets WHERE method_id = $1", methodID)
	return err
}
