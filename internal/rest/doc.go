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

// Package rest provides the HTTP API for the go-mfa service.
//
// The self-service surface under /auth/mfa lets an authenticated user
// manage their own second factors:
//
//	GET    /auth/mfa/methods
//	POST   /auth/mfa/totp/setup
//	POST   /auth/mfa/totp/confirm
//	DELETE /auth/mfa/totp/{methodId}
//	POST   /auth/mfa/webauthn/registration/options
//	POST   /auth/mfa/webauthn/registration/verify
//	DELETE /auth/mfa/webauthn/credentials/{credentialId}
//
// Callers authenticate with an HS256 bearer token whose subject claim is
// their user id.
//
// The surface under /internal/login is consumed by the login route during
// authentication, before the user holds a token. It is guarded by a shared
// service token and mounted only when one is configured:
//
//	POST /internal/login/challenges
//	POST /internal/login/challenges/{challengeId}/totp
//	POST /internal/login/challenges/{challengeId}/webauthn
//
// Service errors map onto status codes by category: not-found 404,
// conflict 409, consumed or expired challenges 410, validation failures
// 400. Infrastructure errors surface as 500 with a generic body.
package rest
