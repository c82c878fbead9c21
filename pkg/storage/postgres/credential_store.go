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
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jeremyhahn/go-mfa/pkg/mfa"
)

// CredentialStore is the PostgreSQL implementation of mfa.CredentialStore.
type CredentialStore struct {
	db *sql.DB
}

// NewCredentialStore returns a credential store backed by the given db.
func NewCredentialStore(db *sql.DB) *CredentialStore {
	return &CredentialStore{db: db}
}

const credentialColumns = "id, method_id, credential_id, public_key, counter, transports, attestation_format, device_name, created_at, last_used_at"

func scanCredential(row interface{ Scan(...any) error }) (*mfa.Credential, error) {
	var c mfa.Credential
	var transports []byte
	err := row.Scan(&c.ID, &c.MethodID, &c.CredentialID, &c.PublicKey, &c.Counter,
		&transports, &c.AttestationFormat, &c.DeviceName, &c.CreatedAt, &c.LastUsedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, mfa.ErrCredentialNotFound
		}
		return nil, err
	}
	if len(transports) > 0 {
		if err := json.Unmarshal(transports, &c.Transports); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

// GetByID retrieves a credential row by its primary key.
func (s *CredentialStore) GetByID(ctx context.Context, id uuid.UUID) (*mfa.Credential, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+credentialColumns+" FROM webauthn_credentials WHERE id = $1", id)
	return scanCredential(row)
}

// GetByCredentialID retrieves a credential by the authenticator-assigned id.
func (s *CredentialStore) GetByCredentialID(ctx context.Context, credentialID []byte) (*mfa.Credential, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+credentialColumns+" FROM webauthn_credentials WHERE credential_id = $1", credentialID)
	return scanCredential(row)
}

// GetByMethodID retrieves all credentials owned by a WebAuthn method.
func (s *CredentialStore) GetByMethodID(ctx context.Context, methodID uuid.UUID) ([]*mfa.Credential, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+credentialColumns+" FROM webauthn_credentials WHERE method_id = $1 ORDER BY created_at", methodID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	creds := []*mfa.Credential{}
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		creds = append(creds, c)
	}
	return creds, rows.Err()
}

// Create persists a new credential.
func (s *CredentialStore) Create(ctx context.Context, c *mfa.Credential) error {
	transports, err := json.Marshal(c.Transports)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO webauthn_credentials
		 (id, method_id, credential_id, public_key, counter, transports, attestation_format, device_name, created_at, last_used_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		c.ID, c.MethodID, c.CredentialID, c.PublicKey, c.Counter, transports,
		c.AttestationFormat, c.DeviceName, c.CreatedAt, c.LastUsedAt)
	return err
}

// UpdateCounter persists a new signature counter and last-used time.
func (s *CredentialStore) UpdateCounter(ctx context.Context, id uuid.UUID, counter uint32, usedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE webauthn_credentials SET counter = $1, last_used_at = $2 WHERE id = $3",
		counter, usedAt, id)
	if err != nil {
		return err
	}
	return requireRow(res, mfa.ErrCredentialNotFound)
}

// Delete removes a credential by its primary key.
func (s *CredentialStore) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM webauthn_credentials WHERE id = $1", id)
	if err != nil {
		return err
	}
	return requireRow(res, mfa.ErrCredentialNotFound)
}
