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

package datakey

import (
	"fmt"
	"time"
)

// Config configures the data-key provider.
//
// A static key takes precedence over KMS. With neither configured the
// provider runs in degraded mode and reports that no key is available.
type Config struct {
	// StaticKey is a locally configured key string. When set, no KMS calls
	// are made; the 256-bit encryption key is derived from this value.
	StaticKey string `yaml:"static_key" json:"static_key"`

	// KMSKeyID is the AWS KMS key id or alias used to generate data keys.
	KMSKeyID string `yaml:"kms_key_id" json:"kms_key_id"`

	// Region is the AWS region hosting the KMS key.
	Region string `yaml:"region" json:"region"`

	// AccessKeyID is an optional static AWS credential.
	AccessKeyID string `yaml:"access_key_id" json:"access_key_id"`

	// SecretAccessKey is an optional static AWS credential.
	SecretAccessKey string `yaml:"secret_access_key" json:"secret_access_key"`

	// SessionToken is an optional AWS session token.
	SessionToken string `yaml:"session_token" json:"session_token"`

	// Endpoint is an optional KMS endpoint override (LocalStack, VPC endpoints).
	Endpoint string `yaml:"endpoint" json:"endpoint"`

	// CacheTTL is how long a resolved key is cached before the provider goes
	// back to its source. Default: 15 minutes.
	CacheTTL time.Duration `yaml:"cache_ttl" json:"cache_ttl"`
}

// SetDefaults sets default values for unset configuration fields.
func (c *Config) SetDefaults() {
	if c.CacheTTL == 0 {
		c.CacheTTL = 15 * time.Minute
	}
}

// Validate validates the configuration and returns an error if invalid.
// An empty config is valid; it selects degraded pass-through mode.
func (c *Config) Validate() error {
	if c.KMSKeyID != "" && c.Region == "" {
		return fmt.Errorf("region is required when kms_key_id is set")
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("cache_ttl must not be negative")
	}
	return nil
}
