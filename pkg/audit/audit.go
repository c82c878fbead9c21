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

// Package audit defines the audit-trail write contract consumed by the MFA
// services. Every state-mutating success and every authorization-relevant
// deletion produces one entry with before/after snapshots. Write failures are
// not suppressed; they propagate to the caller like any other infrastructure
// error.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Action identifies what happened to the entity.
type Action string

const (
	// ActionCreate records creation of an entity.
	ActionCreate Action = "create"

	// ActionUpdate records mutation of an entity.
	ActionUpdate Action = "update"

	// ActionDelete records deletion of an entity.
	ActionDelete Action = "delete"
)

// Entry is a single audit record.
type Entry struct {
	// UserID is the user the mutated entity belongs to.
	UserID uuid.UUID `json:"user_id"`

	// Entity names the record type, e.g. "mfa_method" or "webauthn_credential".
	Entity string `json:"entity"`

	// EntityID identifies the mutated record.
	EntityID string `json:"entity_id"`

	// Action is what happened.
	Action Action `json:"action"`

	// Before is a snapshot of the entity prior to the mutation, nil on create.
	Before any `json:"before_data,omitempty"`

	// After is a snapshot of the entity after the mutation, nil on delete.
	After any `json:"after_data,omitempty"`

	// CreatedAt is when the entry was recorded.
	CreatedAt time.Time `json:"created_at"`
}

// Sink receives audit entries. Implementations decide durability; the
// subsystem defines no retry policy.
type Sink interface {
	// Record writes one audit entry.
	Record(ctx context.Context, e *Entry) error
}
