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
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvider_NoSourceConfigured(t *testing.T) {
	p, err := NewProvider(&Config{}, nil)
	require.NoError(t, err)

	key, err := p.Key(context.Background())
	require.NoError(t, err)
	assert.Nil(t, key)
}

func TestProvider_StaticKey(t *testing.T) {
	p, err := NewProvider(&Config{StaticKey: "local-dev-key"}, nil)
	require.NoError(t, err)

	key, err := p.Key(context.Background())
	require.NoError(t, err)
	require.Len(t, key, KeySize)

	// Deterministic derivation.
	again, err := p.Key(context.Background())
	require.NoError(t, err)
	assert.Equal(t, key, again)

	// A different static key yields a different derived key.
	other, err := NewProvider(&Config{StaticKey: "other"}, nil)
	require.NoError(t, err)
	otherKey, err := other.Key(context.Background())
	require.NoError(t, err)
	assert.False(t, bytes.Equal(key, otherKey))
}

func TestProvider_StaticKeyPrecedesKMS(t *testing.T) {
	mock := &MockKMSClient{}
	p, err := NewProviderWithClient(&Config{
		StaticKey: "local",
		KMSKeyID:  "alias/mfa",
		Region:    "us-east-1",
	}, mock, nil)
	require.NoError(t, err)

	key, err := p.Key(context.Background())
	require.NoError(t, err)
	require.Len(t, key, KeySize)
	assert.Zero(t, mock.Calls)
}

func TestProvider_KMSDataKey(t *testing.T) {
	plaintext := bytes.Repeat([]byte{0xAB}, KeySize)
	mock := &MockKMSClient{
		GenerateDataKeyFunc: func(_ context.Context, params *kms.GenerateDataKeyInput, _ ...func(*kms.Options)) (*kms.GenerateDataKeyOutput, error) {
			assert.Equal(t, "alias/mfa", *params.KeyId)
			return &kms.GenerateDataKeyOutput{Plaintext: plaintext}, nil
		},
	}
	p, err := NewProviderWithClient(&Config{KMSKeyID: "alias/mfa", Region: "us-east-1"}, mock, nil)
	require.NoError(t, err)

	key, err := p.Key(context.Background())
	require.NoError(t, err)
	assert.Equal(t, plaintext, key)
	assert.Equal(t, 1, mock.Calls)
}

func TestProvider_CachesKMSResult(t *testing.T) {
	mock := &MockKMSClient{
		GenerateDataKeyFunc: func(_ context.Context, _ *kms.GenerateDataKeyInput, _ ...func(*kms.Options)) (*kms.GenerateDataKeyOutput, error) {
			return &kms.GenerateDataKeyOutput{Plaintext: bytes.Repeat([]byte{1}, KeySize)}, nil
		},
	}
	p, err := NewProviderWithClient(&Config{
		KMSKeyID: "alias/mfa",
		Region:   "us-east-1",
		CacheTTL: time.Hour,
	}, mock, nil)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := p.Key(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, mock.Calls)

	// Invalidation forces a fresh KMS round-trip.
	p.Invalidate()
	_, err = p.Key(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, mock.Calls)
}

func TestProvider_KMSFailureDegradesToNoKey(t *testing.T) {
	mock := &MockKMSClient{
		GenerateDataKeyFunc: func(_ context.Context, _ *kms.GenerateDataKeyInput, _ ...func(*kms.Options)) (*kms.GenerateDataKeyOutput, error) {
			return nil, fmt.Errorf("kms unavailable")
		},
	}
	p, err := NewProviderWithClient(&Config{KMSKeyID: "alias/mfa", Region: "us-east-1"}, mock, nil)
	require.NoError(t, err)

	key, err := p.Key(context.Background())
	require.NoError(t, err)
	assert.Nil(t, key)
}

func TestProvider_RejectsWrongSizeKey(t *testing.T) {
	mock := &MockKMSClient{
		GenerateDataKeyFunc: func(_ context.Context, _ *kms.GenerateDataKeyInput, _ ...func(*kms.Options)) (*kms.GenerateDataKeyOutput, error) {
			return &kms.GenerateDataKeyOutput{Plaintext: []byte{1, 2, 3}}, nil
		},
	}
	p, err := NewProviderWithClient(&Config{KMSKeyID: "alias/mfa", Region: "us-east-1"}, mock, nil)
	require.NoError(t, err)

	key, err := p.Key(context.Background())
	require.NoError(t, err)
	assert.Nil(t, key)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"empty is degraded mode", Config{}, false},
		{"static only", Config{StaticKey: "k"}, false},
		{"kms with region", Config{KMSKeyID: "alias/mfa", Region: "us-east-1"}, false},
		{"kms without region", Config{KMSKeyID: "alias/mfa"}, true},
		{"negative ttl", Config{CacheTTL: -time.Second}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfigSetDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.SetDefaults()
	assert.Equal(t, 15*time.Minute, cfg.CacheTTL)

	cfg = &Config{CacheTTL: time.Minute}
	cfg.SetDefaults()
	assert.Equal(t, time.Minute, cfg.CacheTTL)
}
