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

// Package mfa provides multi-factor authentication enrollment, challenge
// issuance and verification for TOTP and WebAuthn (FIDO2) factors.
//
// This package wraps the pquerna/otp and go-webauthn/webauthn libraries and
// provides:
//   - Pluggable storage interfaces for methods, secrets, credentials and
//     challenges
//   - In-memory storage implementations for development/testing
//   - Short-lived, single-use, purpose-tagged challenges with atomic
//     consumption
//   - A login challenge orchestrator composing the factors a user has
//     enabled
//
// # Architecture
//
// The package is designed with a layered architecture:
//
//  1. Service layer (Service) - Enrollment, verification and challenge flows
//  2. Storage layer (MethodStore, SecretStore, CredentialStore,
//     ChallengeStore) - Pluggable persistence
//  3. HTTP layer (internal/rest) - Route handlers consuming the service
//
// # Usage
//
// Basic usage with in-memory storage (for development):
//
//	svc, err := mfa.NewService(mfa.ServiceParams{
//	    Config: &mfa.Config{
//	        RPID:          "localhost",
//	        RPDisplayName: "My App",
//	        RPOrigins:     []string{"https://localhost:3000"},
//	        TOTPIssuer:    "My App",
//	    },
//	    MethodStore:     mfa.NewMemoryMethodStore(),
//	    SecretStore:     mfa.NewMemorySecretStore(),
//	    CredentialStore: mfa.NewMemoryCredentialStore(),
//	    ChallengeStore:  mfa.NewMemoryChallengeStore(),
//	    AuditSink:       audit.NewMemorySink(),
//	    FieldCipher:     fieldcrypt.NewCodec(keys),
//	})
//
// For production, implement the storage interfaces with your database or use
// the PostgreSQL stores in pkg/storage/postgres.
//
// # Challenge Lifecycle
//
// A challenge is created by a start call and consumed at most once by a
// successful verification. Verifiers check liveness before any cryptographic
// work; a consumed or expired challenge can never be reactivated. Expired
// rows are physically removed by SweepExpiredChallenges, intended to run on
// a schedule.
//
// Note: WebAuthn requires HTTPS for all operations. Browsers will only
// expose the WebAuthn API in secure contexts.
package mfa
