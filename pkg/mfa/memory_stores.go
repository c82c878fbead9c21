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
	"encoding/hex"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryMethodStore is an in-memory implementation of MethodStore.
// This is intended for development and testing only.
type MemoryMethodStore struct {
	mu      sync.RWMutex
	methods map[uuid.UUID]*Method
}

// NewMemoryMethodStore creates a new in-memory method store.
func NewMemoryMethodStore() *MemoryMethodStore {
	return &MemoryMethodStore{
		methods: make(map[uuid.UUID]*Method),
	}
}

// GetByID retrieves a method by its primary key.
func (s *MemoryMethodStore) GetByID(ctx context.Context, id uuid.UUID) (*Method, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.methods[id]
	if !ok {
		return nil, ErrMethodNotFound
	}
	cp := *m
	return &cp, nil
}

// GetByUser retrieves all methods belonging to a user.
func (s *MemoryMethodStore) GetByUser(ctx context.Context, userID uuid.UUID) ([]*Method, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*Method{}
	for _, m := range s.methods {
		if m.UserID == userID {
			cp := *m
			result = append(result, &cp)
		}
	}
	return result, nil
}

// GetByUserAndType retrieves a user's methods of one factor type.
func (s *MemoryMethodStore) GetByUserAndType(ctx context.Context, userID uuid.UUID, t MethodType) ([]*Method, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*Method{}
	for _, m := range s.methods {
		if m.UserID == userID && m.Type == t {
			cp := *m
			result = append(result, &cp)
		}
	}
	return result, nil
}

// Create persists a new method.
func (s *MemoryMethodStore) Create(ctx context.Context, m *Method) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *m
	s.methods[m.ID] = &cp
	return nil
}

// Update persists changes to an existing method.
func (s *MemoryMethodStore) Update(ctx context.Context, m *Method) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.methods[m.ID]; !ok {
		return ErrMethodNotFound
	}
	cp := *m
	s.methods[m.ID] = &cp
	return nil
}

// Delete removes a method by its primary key.
func (s *MemoryMethodStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.methods[id]; !ok {
		return ErrMethodNotFound
	}
	delete(s.methods, id)
	return nil
}

// Count returns the number of methods in the store.
func (s *MemoryMethodStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.methods)
}

// Clear removes all methods from the store.
func (s *MemoryMethodStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.methods = make(map[uuid.UUID]*Method)
}

// MemorySecretStore is an in-memory implementation of SecretStore.
// This is intended for development and testing only.
type MemorySecretStore struct {
	mu      sync.RWMutex
	secrets map[uuid.UUID]*TOTPSecret
}

// NewMemorySecretStore creates a new in-memory secret store.
func NewMemorySecretStore() *MemorySecretStore {
	return &MemorySecretStore{
		secrets: make(map[uuid.UUID]*TOTPSecret),
	}
}

// GetByMethodID retrieves the secret for a TOTP method.
func (s *MemorySecretStore) GetByMethodID(ctx context.Context, methodID uuid.UUID) (*TOTPSecret, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sec, ok := s.secrets[methodID]
	if !ok {
		return nil, ErrSecretNotFound
	}
	cp := *sec
	return &cp, nil
}

// Upsert inserts or replaces the secret for a method. Replacement resets
// ConfirmedAt.
func (s *MemorySecretStore) Upsert(ctx context.Context, sec *TOTPSecret) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *sec
	cp.ConfirmedAt = nil
	s.secrets[sec.MethodID] = &cp
	return nil
}

// MarkConfirmed sets ConfirmedAt for a method's secret.
func (s *MemorySecretStore) MarkConfirmed(ctx context.Context, methodID uuid.UUID, confirmedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sec, ok := s.secrets[methodID]
	if !ok {
		return ErrSecretNotFound
	}
	t := confirmedAt
	sec.ConfirmedAt = &t
	return nil
}

// DeleteByMethodID removes the secret for a method, if any.
func (s *MemorySecretStore) DeleteByMethodID(ctx context.Context, methodID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.secrets, methodID)
	return nil
}

// Clear removes all secrets from the store.
func (s *MemorySecretStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets = make(map[uuid.UUID]*TOTPSecret)
}

// MemoryCredentialStore is an in-memory implementation of CredentialStore.
// This is intended for development and testing only.
type MemoryCredentialStore struct {
	mu       sync.RWMutex
	byID     map[uuid.UUID]*Credential
	byCredID map[string]uuid.UUID
}

// NewMemoryCredentialStore creates a new in-memory credential store.
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{
		byID:     make(map[uuid.UUID]*Credential),
		byCredID: make(map[string]uuid.UUID),
	}
}

// GetByID retrieves a credential row by its primary key.
func (s *MemoryCredentialStore) GetByID(ctx context.Context, id uuid.UUID) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.byID[id]
	if !ok {
		return nil, ErrCredentialNotFound
	}
	cp := *c
	return &cp, nil
}

// GetByCredentialID retrieves a credential by the authenticator-assigned id.
func (s *MemoryCredentialStore) GetByCredentialID(ctx context.Context, credentialID []byte) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byCredID[hex.EncodeToString(credentialID)]
	if !ok {
		return nil, ErrCredentialNotFound
	}
	cp := *s.byID[id]
	return &cp, nil
}

// GetByMethodID retrieves all credentials owned by a WebAuthn method.
func (s *MemoryCredentialStore) GetByMethodID(ctx context.Context, methodID uuid.UUID) ([]*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*Credential{}
	for _, c := range s.byID {
		if c.MethodID == methodID {
			cp := *c
			result = append(result, &cp)
		}
	}
	return result, nil
}

// Create persists a new credential.
func (s *MemoryCredentialStore) Create(ctx context.Context, c *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := hex.EncodeToString(c.CredentialID)
	if _, ok := s.byCredID[key]; ok {
		return ErrConflict
	}

	cp := *c
	s.byID[c.ID] = &cp
	s.byCredID[key] = c.ID
	return nil
}

// UpdateCounter persists a new signature counter and last-used time.
func (s *MemoryCredentialStore) UpdateCounter(ctx context.Context, id uuid.UUID, counter uint32, usedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byID[id]
	if !ok {
		return ErrCredentialNotFound
	}
	c.Counter = counter
	t := usedAt
	c.LastUsedAt = &t
	return nil
}

// Delete removes a credential by its primary key.
func (s *MemoryCredentialStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byID[id]
	if !ok {
		return ErrCredentialNotFound
	}
	delete(s.byCredID, hex.EncodeToString(c.CredentialID))
	delete(s.byID, id)
	return nil
}

// Count returns the number of credentials in the store.
func (s *MemoryCredentialStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// Clear removes all credentials from the store.
func (s *MemoryCredentialStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID = make(map[uuid.UUID]*Credential)
	s.byCredID = make(map[string]uuid.UUID)
}

// MemoryChallengeStore is an in-memory implementation of ChallengeStore.
// This is intended for development and testing only.
type MemoryChallengeStore struct {
	mu         sync.Mutex
	challenges map[uuid.UUID]*Challenge
}

// NewMemoryChallengeStore creates a new in-memory challenge store.
func NewMemoryChallengeStore() *MemoryChallengeStore {
	return &MemoryChallengeStore{
		challenges: make(map[uuid.UUID]*Challenge),
	}
}

// Create persists a new challenge.
func (s *MemoryChallengeStore) Create(ctx context.Context, c *Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *c
	s.challenges[c.ID] = &cp
	return nil
}

// Get retrieves a challenge by id.
func (s *MemoryChallengeStore) Get(ctx context.Context, id uuid.UUID) (*Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.challenges[id]
	if !ok {
		return nil, ErrChallengeNotFound
	}
	cp := *c
	return &cp, nil
}

// Consume marks the challenge consumed. The check-and-set happens under the
// store mutex so only one caller can win.
func (s *MemoryChallengeStore) Consume(ctx context.Context, id uuid.UUID, consumedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.challenges[id]
	if !ok {
		return ErrChallengeNotFound
	}
	if c.ConsumedAt != nil {
		return ErrChallengeConsumed
	}
	t := consumedAt
	c.ConsumedAt = &t
	return nil
}

// SweepExpired physically deletes challenges whose expiry precedes ref.
func (s *MemoryChallengeStore) SweepExpired(ctx context.Context, ref time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for id, c := range s.challenges {
		if c.ExpiresAt.Before(ref) {
			delete(s.challenges, id)
			removed++
		}
	}
	return removed, nil
}

// Count returns the number of challenges in the store.
func (s *MemoryChallengeStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.challenges)
}

// Clear removes all challenges from the store.
func (s *MemoryChallengeStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges = make(map[uuid.UUID]*Challenge)
}
