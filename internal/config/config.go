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

// Package config loads the server configuration from a YAML file with
// environment variable overrides for deployment secrets.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jeremyhahn/go-mfa/pkg/datakey"
	"github.com/jeremyhahn/go-mfa/pkg/mfa"
	"github.com/jeremyhahn/go-mfa/pkg/ratelimit"
)

// Duration wraps time.Duration so YAML values can be written as duration
// strings ("5m", "30s") or plain nanosecond integers.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration value: %s", value.Value)
	}
	*d = Duration(n)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config represents the complete server configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	TLS       TLSConfig       `yaml:"tls"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Database  DatabaseConfig  `yaml:"database"`
	KMS       KMSConfig       `yaml:"kms"`
	MFA       MFAConfig       `yaml:"mfa"`
	Sweep     SweepConfig     `yaml:"sweep"`
}

// ServerConfig contains server-level settings
type ServerConfig struct {
	Host         string   `yaml:"host"`
	Port         int      `yaml:"port"`
	ReadTimeout  Duration `yaml:"read_timeout"`
	WriteTimeout Duration `yaml:"write_timeout"`
	IdleTimeout  Duration `yaml:"idle_timeout"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TLSConfig controls TLS/SSL settings
type TLSConfig struct {
	Enabled    bool   `yaml:"enabled"`
	CertFile   string `yaml:"cert_file"`
	KeyFile    string `yaml:"key_file"`
	MinVersion string `yaml:"min_version"` // TLS1.2, TLS1.3
}

// AuthConfig controls how callers are authenticated
type AuthConfig struct {
	// JWTSecret is the HS256 secret shared with the token issuer
	JWTSecret string `yaml:"jwt_secret"`

	// JWTIssuer is the expected issuer claim (optional)
	JWTIssuer string `yaml:"jwt_issuer"`

	// InternalToken guards the service-to-service login endpoints.
	// Those endpoints stay unmounted when this is empty.
	InternalToken string `yaml:"internal_token"`
}

// RateLimitConfig controls per-client request limiting
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_min"`
	Burst             int  `yaml:"burst"`
}

// DatabaseConfig controls the relational store
type DatabaseConfig struct {
	// DSN is the postgres connection string. Empty selects in-memory
	// stores, intended for development only.
	DSN string `yaml:"dsn"`

	// Migrate runs schema migrations on startup
	Migrate bool `yaml:"migrate"`
}

// KMSConfig controls the data-key provider
type KMSConfig struct {
	// StaticKey derives the field encryption key locally instead of KMS
	StaticKey string `yaml:"static_key"`

	// KMSKeyID selects the AWS KMS key used to generate data keys
	KMSKeyID string `yaml:"kms_key_id"`

	Region          string   `yaml:"region"`
	AccessKeyID     string   `yaml:"access_key_id"`
	SecretAccessKey string   `yaml:"secret_access_key"`
	Endpoint        string   `yaml:"endpoint"`
	CacheTTL        Duration `yaml:"cache_ttl"`
}

// MFAConfig controls relying-party identity and challenge lifetimes
type MFAConfig struct {
	RPID                     string   `yaml:"rp_id"`
	RPDisplayName            string   `yaml:"rp_display_name"`
	RPOrigins                []string `yaml:"rp_origins"`
	TOTPIssuer               string   `yaml:"totp_issuer"`
	LoginChallengeTTL        Duration `yaml:"login_challenge_ttl"`
	RegistrationChallengeTTL Duration `yaml:"registration_challenge_ttl"`
	CeremonyTimeout          Duration `yaml:"ceremony_timeout"`
	UserVerification         string   `yaml:"user_verification"`
	Attestation              string   `yaml:"attestation"`
}

// SweepConfig controls the periodic expired-challenge sweep
type SweepConfig struct {
	// Interval between sweeps. Zero disables the sweeper.
	Interval Duration `yaml:"interval"`
}

// Load reads configuration from a YAML file and applies environment
// variable overrides
func Load(path string) (*Config, error) {
	// #nosec G304 - Config file path is provided by admin/user
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(&cfg)
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the
// configuration. Secrets are expected to arrive this way in production.
func applyEnvOverrides(cfg *Config) {
	if host := os.Getenv("MFA_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if portValue := os.Getenv("MFA_PORT"); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil {
			log.Printf("Warning: invalid MFA_PORT value %q, using default %d: %v",
				portValue, cfg.Server.Port, err)
		} else if port < 1 || port > 65535 {
			log.Printf("Warning: invalid MFA_PORT value %q (out of range 1-65535), using default %d",
				portValue, cfg.Server.Port)
		} else {
			cfg.Server.Port = port
		}
	}

	if level := os.Getenv("MFA_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}

	if dsn := os.Getenv("MFA_DATABASE_DSN"); dsn != "" {
		cfg.Database.DSN = dsn
	}

	if secret := os.Getenv("MFA_JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if token := os.Getenv("MFA_INTERNAL_TOKEN"); token != "" {
		cfg.Auth.InternalToken = token
	}

	if key := os.Getenv("MFA_STATIC_KEY"); key != "" {
		cfg.KMS.StaticKey = key
	}
	if region := os.Getenv("AWS_REGION"); region != "" {
		cfg.KMS.Region = region
	}
}

// SetDefaults fills in unset fields with sane defaults
func (c *Config) SetDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8443
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Sweep.Interval == 0 {
		c.Sweep.Interval = Duration(time.Minute)
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"json": true, "text": true,
	}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}

	if c.TLS.Enabled {
		if c.TLS.CertFile == "" {
			return fmt.Errorf("TLS cert_file is required when TLS is enabled")
		}
		if c.TLS.KeyFile == "" {
			return fmt.Errorf("TLS key_file is required when TLS is enabled")
		}
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth jwt_secret must be specified")
	}

	mfaConfig := c.MFAConfig()
	mfaConfig.SetDefaults()
	if err := mfaConfig.Validate(); err != nil {
		return fmt.Errorf("invalid mfa configuration: %w", err)
	}

	kmsConfig := c.KMSConfig()
	if err := kmsConfig.Validate(); err != nil {
		return fmt.Errorf("invalid kms configuration: %w", err)
	}

	return nil
}

// MFAConfig converts the YAML section into the service configuration.
func (c *Config) MFAConfig() *mfa.Config {
	return &mfa.Config{
		RPID:                     c.MFA.RPID,
		RPDisplayName:            c.MFA.RPDisplayName,
		RPOrigins:                c.MFA.RPOrigins,
		TOTPIssuer:               c.MFA.TOTPIssuer,
		LoginChallengeTTL:        c.MFA.LoginChallengeTTL.Std(),
		RegistrationChallengeTTL: c.MFA.RegistrationChallengeTTL.Std(),
		CeremonyTimeout:          c.MFA.CeremonyTimeout.Std(),
		UserVerification:         c.MFA.UserVerification,
		AttestationPreference:    c.MFA.Attestation,
		Debug:                    c.Debug(),
	}
}

// KMSConfig converts the YAML section into the data-key provider
// configuration.
func (c *Config) KMSConfig() *datakey.Config {
	return &datakey.Config{
		StaticKey:       c.KMS.StaticKey,
		KMSKeyID:        c.KMS.KMSKeyID,
		Region:          c.KMS.Region,
		AccessKeyID:     c.KMS.AccessKeyID,
		SecretAccessKey: c.KMS.SecretAccessKey,
		Endpoint:        c.KMS.Endpoint,
		CacheTTL:        c.KMS.CacheTTL.Std(),
	}
}

// RateLimitConfig converts the YAML section into the limiter configuration.
func (c *Config) RateLimitConfig() *ratelimit.Config {
	return &ratelimit.Config{
		Enabled:           c.RateLimit.Enabled,
		RequestsPerMinute: c.RateLimit.RequestsPerMinute,
		Burst:             c.RateLimit.Burst,
	}
}

// Debug reports whether debug-level logging is configured.
func (c *Config) Debug() bool {
	return strings.EqualFold(c.Logging.Level, "debug")
}
