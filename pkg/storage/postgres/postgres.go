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

// Package postgres implements the MFA storage interfaces against PostgreSQL
// using parameterized SQL over the pgx stdlib driver.
package postgres

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/jeremyhahn/go-mfa/pkg/audit"
	"github.com/jeremyhahn/go-mfa/pkg/mfa"
)

var (
	_ mfa.MethodStore     = (*MethodStore)(nil)
	_ mfa.SecretStore     = (*SecretStore)(nil)
	_ mfa.CredentialStore = (*CredentialStore)(nil)
	_ mfa.ChallengeStore  = (*ChallengeStore)(nil)
	_ audit.Sink          = (*AuditSink)(nil)
)

// Open opens a Postgres connection pool using the given DSN. Caller must
// call Close when done.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate creates the MFA tables if they do not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS mfa_methods (
	id           UUID PRIMARY KEY,
	user_id      UUID NOT NULL,
	type         TEXT NOT NULL,
	label        TEXT NOT NULL DEFAULT '',
	enabled      BOOLEAN NOT NULL DEFAULT FALSE,
	last_used_at TIMESTAMPTZ,
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_mfa_methods_user ON mfa_methods (user_id, type);

CREATE TABLE IF NOT EXISTS totp_secrets (
	method_id        UUID PRIMARY KEY REFERENCES mfa_methods (id) ON DELETE CASCADE,
	encrypted_secret TEXT NOT NULL,
	confirmed_at     TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS webauthn_credentials (
	id                 UUID PRIMARY KEY,
	method_id          UUID NOT NULL REFERENCES mfa_methods (id) ON DELETE CASCADE,
	credential_id      BYTEA NOT NULL UNIQUE,
	public_key         BYTEA NOT NULL,
	counter            BIGINT NOT NULL DEFAULT 0,
	transports         JSONB,
	attestation_format TEXT NOT NULL DEFAULT '',
	device_name        TEXT NOT NULL DEFAULT '',
	created_at         TIMESTAMPTZ NOT NULL,
	last_used_at       TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_webauthn_credentials_method ON webauthn_credentials (method_id);

CREATE TABLE IF NOT EXISTS mfa_challenges (
	id          UUID PRIMARY KEY,
	user_id     UUID NOT NULL,
	purpose     TEXT NOT NULL,
	payload     JSONB NOT NULL,
	expires_at  TIMESTAMPTZ NOT NULL,
	consumed_at TIMESTAMPTZ,
	created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_mfa_challenges_expiry ON mfa_challenges (expires_at);

CREATE TABLE IF NOT EXISTS audit_log (
	id          BIGSERIAL PRIMARY KEY,
	user_id     UUID NOT NULL,
	entity      TEXT NOT NULL,
	entity_id   TEXT NOT NULL,
	action      TEXT NOT NULL,
	before_data JSONB,
	after_data  JSONB,
	created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_log_user ON audit_log (user_id, created_at);
`
	_, err := db.ExecContext(ctx, schema)
	return err
}
