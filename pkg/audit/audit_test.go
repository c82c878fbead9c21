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

package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySink(t *testing.T) {
	sink := NewMemorySink()
	ctx := context.Background()
	alice := uuid.New()
	bob := uuid.New()

	require.NoError(t, sink.Record(ctx, &Entry{UserID: alice, Entity: "mfa_method", Action: ActionCreate}))
	require.NoError(t, sink.Record(ctx, &Entry{UserID: bob, Entity: "mfa_method", Action: ActionDelete}))

	assert.Len(t, sink.Entries(), 2)
	assert.Len(t, sink.EntriesForUser(alice), 1)
	assert.Equal(t, ActionDelete, sink.EntriesForUser(bob)[0].Action)

	sink.Clear()
	assert.Empty(t, sink.Entries())
}

func TestWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewWriterSink(&buf)
	userID := uuid.New()

	entry := &Entry{
		UserID:    userID,
		Entity:    "webauthn_credential",
		EntityID:  "cred-1",
		Action:    ActionCreate,
		After:     map[string]any{"device_name": "yubikey"},
		CreatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, sink.Record(context.Background(), entry))

	line := buf.String()
	assert.True(t, len(line) > 0 && line[len(line)-1] == '\n')

	var decoded Entry
	require.NoError(t, json.Unmarshal([]byte(line), &decoded))
	assert.Equal(t, userID, decoded.UserID)
	assert.Equal(t, "webauthn_credential", decoded.Entity)
	assert.Equal(t, ActionCreate, decoded.Action)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, fmt.Errorf("disk full") }

func TestWriterSink_ErrorsPropagate(t *testing.T) {
	sink := NewWriterSink(failingWriter{})
	err := sink.Record(context.Background(), &Entry{Action: ActionUpdate})
	assert.Error(t, err)
}
