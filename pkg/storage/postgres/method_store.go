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

	"github.com/google/uuid"
	"github.com/jeremyhahn/go-mfa/pkg/mfa"
)

// MethodStore is the PostgreSQL implementation of mfa.MethodStore.
type MethodStore struct {
	db *sql.DB
}

// NewMethodStore returns a method store backed by the given db.
func NewMethodStore(db *sql.DB) *MethodStore {
	return &MethodStore{db: db}
}

const methodColumns = "id, user_id, type, label, enabled, last_used_at, created_at, updated_at"

func scanMethod(row interface{ Scan(...any) error }) (*mfa.Method, error) {
	var m mfa.Method
	err := row.Scan(&m.ID, &m.UserID, &m.Type, &m.Label, &m.Enabled, &m.LastUsedAt, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, mfa.ErrMethodNotFound
		}
		return nil, err
	}
	return &m, nil
}

// GetByID retrieves a method by its primary key.
func (s *MethodStore) GetByID(ctx context.Context, id uuid.UUID) (*mfa.Method, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+methodColumns+" FROM mfa_methods WHERE id = $1", id)
	return scanMethod(row)
}

// GetByUser retrieves all methods belonging to a user.
func (s *MethodStore) GetByUser(ctx context.Context, userID uuid.UUID) ([]*mfa.Method, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+methodColumns+" FROM mfa_methods WHERE user_id = $1 ORDER BY created_at", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMethods(rows)
}

// GetByUserAndType retrieves a user's methods of one factor type.
func (s *MethodStore) GetByUserAndType(ctx context.Context, userID uuid.UUID, t mfa.MethodType) ([]*mfa.Method, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+methodColumns+" FROM mfa_methods WHERE user_id = $1 AND type = $2 ORDER BY created_at", userID, t)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMethods(rows)
}

func collectMethods(rows *sql.Rows) ([]*mfa.Method, error) {
	methods := []*mfa.Method{}
	for rows.Next() {
		m, err := scanMethod(rows)
		if err != nil {
			return nil, err
		}
		methods = append(methods, m)
	}
	return methods, rows.Err()
}

// Create persists a new method.
func (s *MethodStore) Create(ctx context.Context, m *mfa.Method) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO mfa_methods (id, user_id, type, label, enabled, last_used_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID, m.UserID, m.Type, m.Label, m.Enabled, m.LastUsedAt, m.CreatedAt, m.UpdatedAt)
	return err
}

// Update persists changes to an existing method.
func (s *MethodStore) Update(ctx context.Context, m *mfa.Method) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE mfa_methods SET label = $1, enabled = $2, last_used_at = $3, updated_at = $4 WHERE id = $5`,
		m.Label, m.Enabled, m.LastUsedAt, m.UpdatedAt, m.ID)
	if err != nil {
		return err
	}
	return requireRow(res, mfa.ErrMethodNotFound)
}

// Delete removes a method by its primary key.
func (s *MethodStore) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM mfa_methods WHERE id = $1", id)
	if err != nil {
		return err
	}
	return requireRow(res, mfa.ErrMethodNotFound)
}

// requireRow maps a zero affected-row count to the given sentinel.
func requireRow(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missing
	}
	return nil
}
