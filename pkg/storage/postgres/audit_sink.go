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

	"github.com/jeremyhahn/go-mfa/pkg/audit"
)

// AuditSink writes audit entries to the audit_log table.
type AuditSink struct {
	db *sql.DB
}

// NewAuditSink returns an audit sink backed by the given db.
func NewAuditSink(db *sql.DB) *AuditSink {
	return &AuditSink{db: db}
}

// Record inserts one audit entry. Failures propagate to the caller; the
// subsystem defines no retry policy.
func (s *AuditSink) Record(ctx context.Context, e *audit.Entry) error {
	before, err := marshalSnapshot(e.Before)
	if err != nil {
		return err
	}
	after, err := marshalSnapshot(e.After)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_log (user_id, entity, entity_id, action, before_data, after_data, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.UserID, e.Entity, e.EntityID, e.Action, before, after, e.CreatedAt)
	return err
}

func marshalSnapshot(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
