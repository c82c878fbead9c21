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

// Package datakey resolves the symmetric key used to encrypt long-lived MFA
// secrets at rest. The key comes from a static configuration value or from
// AWS KMS ("generate data key"), cached in one process-wide slot for a
// configurable TTL.
//
// Key availability is best-effort: a failing KMS call is logged and treated
// as "no key available" so the system keeps functioning (unencrypted) rather
// than refusing writes. Operators must call Invalidate after rotating the
// underlying key.
package datakey

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"

	"github.com/jeremyhahn/go-mfa/pkg/logging"
)

// KeySize is the size in bytes of every key the provider returns.
const KeySize = 32

// KMSClient defines the KMS operations used by the provider.
// This interface allows us to mock KMS operations for testing.
type KMSClient interface {
	GenerateDataKey(ctx context.Context, params *kms.GenerateDataKeyInput, optFns ...func(*kms.Options)) (*kms.GenerateDataKeyOutput, error)
}

// Provider resolves and caches the current data-encryption key.
//
// Provider is an explicitly constructed, injected object with one cache slot;
// there is no package-level singleton.
type Provider struct {
	config *Config
	client KMSClient
	logger *logging.Logger

	mu       sync.Mutex
	cached   []byte
	cachedAt time.Time
}

// NewProvider creates a data-key provider from the given configuration.
// The KMS client is initialized lazily on first use.
func NewProvider(config *Config, logger *logging.Logger) (*Provider, error) {
	return newProvider(config, nil, logger)
}

// NewProviderWithClient creates a provider with a custom KMS client.
// This is primarily used for testing with mock clients.
func NewProviderWithClient(config *Config, client KMSClient, logger *logging.Logger) (*Provider, error) {
	return newProvider(config, client, logger)
}

func newProvider(config *Config, client KMSClient, logger *logging.Logger) (*Provider, error) {
	if config == nil {
		config = &Config{}
	}
	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	return &Provider{
		config: config,
		client: client,
		logger: logger,
	}, nil
}

// Key returns the current 256-bit data-encryption key, or nil when no key
// source is configured or the source is unavailable. It never returns an
// error for key unavailability; only context cancellation and client
// construction problems surface as errors.
func (p *Provider) Key(ctx context.Context) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached != nil && time.Since(p.cachedAt) < p.config.CacheTTL {
		return p.cached, nil
	}

	if p.config.StaticKey != "" {
		key := deriveKey(p.config.StaticKey)
		p.cache(key)
		return key, nil
	}

	if p.config.KMSKeyID == "" {
		return nil, nil
	}

	if err := p.initClient(ctx); err != nil {
		p.logger.Errorf("datakey: failed to initialize KMS client: %v", err)
		return nil, nil
	}

	keySpec := kmstypes.DataKeySpecAes256
	out, err := p.client.GenerateDataKey(ctx, &kms.GenerateDataKeyInput{
		KeyId:   &p.config.KMSKeyID,
		KeySpec: keySpec,
	})
	if err != nil {
		// The caller degrades to pass-through instead of refusing writes.
		p.logger.Errorf("datakey: KMS GenerateDataKey failed, continuing without key: %v", err)
		return nil, nil
	}
	if len(out.Plaintext) != KeySize {
		p.logger.Errorf("datakey: KMS returned %d-byte key, expected %d", len(out.Plaintext), KeySize)
		return nil, nil
	}

	p.cache(out.Plaintext)
	return out.Plaintext, nil
}

// Invalidate clears the cached key. Call after rotating the static key or
// the KMS key so the next request resolves a fresh one.
func (p *Provider) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cached = nil
	p.cachedAt = time.Time{}
}

// cache stores the key in the process-wide slot. Caller holds p.mu.
func (p *Provider) cache(key []byte) {
	p.cached = key
	p.cachedAt = time.Now()
}

// initClient initializes the AWS KMS client if not already initialized.
// Caller holds p.mu.
func (p *Provider) initClient(ctx context.Context) error {
	if p.client != nil {
		return nil
	}

	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(p.config.Region))

	if p.config.AccessKeyID != "" && p.config.SecretAccessKey != "" {
		creds := credentials.NewStaticCredentialsProvider(
			p.config.AccessKeyID,
			p.config.SecretAccessKey,
			p.config.SessionToken,
		)
		opts = append(opts, awsconfig.WithCredentialsProvider(creds))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}

	p.client = kms.NewFromConfig(cfg, func(o *kms.Options) {
		if p.config.Endpoint != "" {
			o.BaseEndpoint = &p.config.Endpoint
		}
	})

	return nil
}

// deriveKey stretches a configured key string to the fixed key size.
func deriveKey(staticKey string) []byte {
	sum := sha256.Sum256([]byte(staticKey))
	return sum[:]
}
