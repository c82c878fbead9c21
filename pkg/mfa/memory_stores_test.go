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
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryChallengeStore_ConsumeOnce(t *testing.T) {
	store := NewMemoryChallengeStore()
	ctx := context.Background()
	now := time.Now()

	challenge := &Challenge{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		Purpose:   PurposeLogin,
		ExpiresAt: now.Add(time.Minute),
		CreatedAt: now,
	}
	require.NoError(t, store.Create(ctx, challenge))

	require.NoError(t, store.Consume(ctx, challenge.ID, now))
	err := store.Consume(ctx, challenge.ID, now)
	assert.ErrorIs(t, err, ErrChallengeConsumed)

	got, err := store.Get(ctx, challenge.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ConsumedAt)
	assert.Equal(t, now, *got.ConsumedAt)
}

func TestMemoryChallengeStore_ConcurrentConsume(t *testing.T) {
	store := NewMemoryChallengeStore()
	ctx := context.Background()
	now := time.Now()

	challenge := &Challenge{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		Purpose:   PurposeLogin,
		ExpiresAt: now.Add(time.Minute),
		CreatedAt: now,
	}
	require.NoError(t, store.Create(ctx, challenge))

	const attempts = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := store.Consume(ctx, challenge.ID, time.Now()); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestMemoryChallengeStore_ConsumeUnknown(t *testing.T) {
	store := NewMemoryChallengeStore()
	err := store.Consume(context.Background(), uuid.New(), time.Now())
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestMemoryChallengeStore_SweepExpired(t *testing.T) {
	store := NewMemoryChallengeStore()
	ctx := context.Background()
	now := time.Now()

	expired := &Challenge{ID: uuid.New(), Purpose: PurposeLogin, ExpiresAt: now.Add(-time.Minute)}
	active := &Challenge{ID: uuid.New(), Purpose: PurposeLogin, ExpiresAt: now.Add(time.Minute)}
	require.NoError(t, store.Create(ctx, expired))
	require.NoError(t, store.Create(ctx, active))

	removed, err := store.SweepExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	// Running again removes nothing.
	removed, err = store.SweepExpired(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, removed)

	_, err = store.Get(ctx, expired.ID)
	assert.ErrorIs(t, err, ErrChallengeNotFound)
	_, err = store.Get(ctx, active.ID)
	require.NoError(t, err)
}

func TestMemorySecretStore_UpsertResetsConfirmation(t *testing.T) {
	store := NewMemorySecretStore()
	ctx := context.Background()
	methodID := uuid.New()

	require.NoError(t, store.Upsert(ctx, &TOTPSecret{MethodID: methodID, EncryptedSecret: "first"}))
	require.NoError(t, store.MarkConfirmed(ctx, methodID, time.Now()))

	got, err := store.GetByMethodID(ctx, methodID)
	require.NoError(t, err)
	require.NotNil(t, got.ConfirmedAt)

	require.NoError(t, store.Upsert(ctx, &TOTPSecret{MethodID: methodID, EncryptedSecret: "second"}))
	got, err = store.GetByMethodID(ctx, methodID)
	require.NoError(t, err)
	assert.Equal(t, "second", got.EncryptedSecret)
	assert.Nil(t, got.ConfirmedAt)
}

func TestMemorySecretStore_NotFound(t *testing.T) {
	store := NewMemorySecretStore()
	ctx := context.Background()

	_, err := store.GetByMethodID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrSecretNotFound)
	err = store.MarkConfirmed(ctx, uuid.New(), time.Now())
	assert.ErrorIs(t, err, ErrSecretNotFound)
	// Deleting an absent secret is a no-op.
	assert.NoError(t, store.DeleteByMethodID(ctx, uuid.New()))
}

func TestMemoryMethodStore_CRUD(t *testing.T) {
	store := NewMemoryMethodStore()
	ctx := context.Background()
	userID := uuid.New()

	method := &Method{ID: uuid.New(), UserID: userID, Type: MethodTOTP, Label: "phone"}
	require.NoError(t, store.Create(ctx, method))

	got, err := store.GetByID(ctx, method.ID)
	require.NoError(t, err)
	assert.Equal(t, "phone", got.Label)

	// Mutating the returned copy does not touch the store.
	got.Label = "changed"
	again, err := store.GetByID(ctx, method.ID)
	require.NoError(t, err)
	assert.Equal(t, "phone", again.Label)

	method.Enabled = true
	require.NoError(t, store.Update(ctx, method))
	got, err = store.GetByID(ctx, method.ID)
	require.NoError(t, err)
	assert.True(t, got.Enabled)

	byType, err := store.GetByUserAndType(ctx, userID, MethodTOTP)
	require.NoError(t, err)
	assert.Len(t, byType, 1)
	byType, err = store.GetByUserAndType(ctx, userID, MethodWebAuthn)
	require.NoError(t, err)
	assert.Empty(t, byType)

	require.NoError(t, store.Delete(ctx, method.ID))
	assert.ErrorIs(t, store.Delete(ctx, method.ID), ErrMethodNotFound)
	assert.ErrorIs(t, store.Update(ctx, method), ErrMethodNotFound)
}

func TestMemoryCredentialStore_Lookups(t *testing.T) {
	store := NewMemoryCredentialStore()
	ctx := context.Background()
	methodID := uuid.New()

	cred := &Credential{
		ID:           uuid.New(),
		MethodID:     methodID,
		CredentialID: []byte{1, 2, 3},
		PublicKey:    []byte{4, 5, 6},
	}
	require.NoError(t, store.Create(ctx, cred))

	// Duplicate authenticator ids are rejected.
	dup := &Credential{ID: uuid.New(), MethodID: methodID, CredentialID: []byte{1, 2, 3}}
	assert.ErrorIs(t, store.Create(ctx, dup), ErrConflict)

	got, err := store.GetByCredentialID(ctx, []byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, cred.ID, got.ID)

	_, err = store.GetByCredentialID(ctx, []byte{9})
	assert.ErrorIs(t, err, ErrCredentialNotFound)

	now := time.Now()
	require.NoError(t, store.UpdateCounter(ctx, cred.ID, 7, now))
	got, err = store.GetByID(ctx, cred.ID)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), got.Counter)
	require.NotNil(t, got.LastUsedAt)

	require.NoError(t, store.Delete(ctx, cred.ID))
	_, err = store.GetByCredentialID(ctx, []byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrCredentialNotFound)
}
