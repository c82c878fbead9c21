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
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing rp id", func(c *Config) { c.RPID = "" }, true},
		{"missing display name", func(c *Config) { c.RPDisplayName = "" }, true},
		{"missing origins", func(c *Config) { c.RPOrigins = nil }, true},
		{"missing issuer", func(c *Config) { c.TOTPIssuer = "" }, true},
		{"bad user verification", func(c *Config) { c.UserVerification = "sometimes" }, true},
		{"bad attestation", func(c *Config) { c.AttestationPreference = "full" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfigSetDefaults(t *testing.T) {
	cfg := testConfig()
	cfg.SetDefaults()

	assert.Equal(t, 5*time.Minute, cfg.LoginChallengeTTL)
	assert.Equal(t, 5*time.Minute, cfg.RegistrationChallengeTTL)
	assert.Equal(t, 60*time.Second, cfg.CeremonyTimeout)
	assert.Equal(t, "preferred", cfg.UserVerification)
	assert.Equal(t, "none", cfg.AttestationPreference)

	// Explicit values survive.
	cfg = testConfig()
	cfg.LoginChallengeTTL = time.Minute
	cfg.UserVerification = "required"
	cfg.SetDefaults()
	assert.Equal(t, time.Minute, cfg.LoginChallengeTTL)
	assert.Equal(t, "required", cfg.UserVerification)
}

func TestConfigToWebAuthnConfig(t *testing.T) {
	cfg := testConfig()
	cfg.SetDefaults()
	cfg.UserVerification = "required"
	cfg.AttestationPreference = "direct"

	wc := cfg.ToWebAuthnConfig()
	require.NotNil(t, wc)
	assert.Equal(t, cfg.RPID, wc.RPID)
	assert.Equal(t, cfg.RPDisplayName, wc.RPDisplayName)
	assert.Equal(t, cfg.RPOrigins, wc.RPOrigins)
	assert.Equal(t, protocol.VerificationRequired, wc.AuthenticatorSelection.UserVerification)
	assert.Equal(t, protocol.PreferDirectAttestation, wc.AttestationPreference)
	assert.True(t, wc.Timeouts.Login.Enforce)
	assert.Equal(t, cfg.CeremonyTimeout, wc.Timeouts.Login.Timeout)
}
