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

// ChallengeStore is the PostgreSQL implementation of mfa.ChallengeStore.
type ChallengeStore struct {
	db *sql.DB
}

// NewChallengeStore returns a challenge store backed by the given db.
func NewChallengeStore(db *sql.DB) *ChallengeStore {
	return &ChallengeStore{db: db}
}

// Create persists a new challenge.
func (s *ChallengeStore) Create(ctx context.Context, c *mfa.Challenge) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO mfa_challenges (id, user_id, purpose, payload, expires_at, consumed_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.UserID, c.Purpose, []byte(c.Payload), c.ExpiresAt, c.ConsumedAt, c.CreatedAt)
	return err
}

// Get retrieves a challenge by id.
func (s *ChallengeStore) Get(ctx context.Context, id uuid.UUID) (*mfa.Challenge, error) {
	var c mfa.Challenge
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, purpose, payload, expires_at, consumed_at, created_at
		 FROM mfa_challenges WHERE id = $1`, id).
		Scan(&c.ID, &c.UserID, &c.Purpose, &payload, &c.ExpiresAt, &c.ConsumedAt, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, mfa.ErrChallengeNotFound
		}
		return nil, err
	}
	c.Payload = payload
	return &c, nil
}

// Consume marks the challenge consumed. The conditional update is the
// serialization point: of two concurrent attempts exactly one sees an
// affected row.
func (s *ChallengeStore) Consume(ctx context.Context, id uuid.UUID, consumedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE mfa_challenges SET consumed_at = $1 WHERE id = $2 AND consumed_at IS NULL",
		consumedAt, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	// Lost the race or the row never existed; disambiguate for the caller.
	var exists bool
	err = s.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM mfa_challenges WHERE id = $1)", id).Scan(&exists)
	if err != nil {
		return err
	}
	if exists {
		return mfa.ErrChallengeConsumed
	}
	return mfa.ErrChallengeNotFound
}

// SweepExpired physically deletes challenges whose expiry precedes ref.
func (s *ChallengeStore) SweepExpired(ctx context.Context, ref time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM mfa_challenges WHERE expires_at < $1", ref)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
