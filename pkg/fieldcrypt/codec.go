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

// Package fieldcrypt encrypts individual string fields with AES-256-GCM.
//
// Ciphertexts carry the "enc:v1:" prefix so that plaintext values written
// before encryption was enabled continue to read back correctly: a value
// without the prefix is returned as-is. When the key source reports no key,
// the codec is an identity transform; this is the explicit degraded mode of
// the subsystem, not a silent failure.
package fieldcrypt

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

// Prefix tags every value produced by Encrypt. Values lacking the prefix are
// treated as legacy plaintext.
const Prefix = "enc:v1:"

// KeySource yields the current data-encryption key. A nil key with a nil
// error means no key is available and the codec passes values through.
type KeySource interface {
	Key(ctx context.Context) ([]byte, error)
}

// Codec encrypts and decrypts individual string fields.
type Codec struct {
	keys KeySource
}

// NewCodec creates a field codec backed by the given key source.
func NewCodec(keys KeySource) *Codec {
	return &Codec{keys: keys}
}

// EncryptString encrypts a single value. Returns the value unchanged when no
// key is available.
func (c *Codec) EncryptString(ctx context.Context, plaintext string) (string, error) {
	key, err := c.keys.Key(ctx)
	if err != nil {
		return "", err
	}
	if key == nil {
		return plaintext, nil
	}

	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return Prefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptString decrypts a single value. Values without the ciphertext
// prefix pass through unchanged (legacy plaintext).
func (c *Codec) DecryptString(ctx context.Context, value string) (string, error) {
	if !strings.HasPrefix(value, Prefix) {
		return value, nil
	}

	key, err := c.keys.Key(ctx)
	if err != nil {
		return "", err
	}
	if key == nil {
		return "", fmt.Errorf("encrypted value present but no key is available")
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, Prefix))
	if err != nil {
		return "", fmt.Errorf("malformed ciphertext: %w", err)
	}

	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	if len(raw) < gcm.NonceSize() {
		return "", fmt.Errorf("malformed ciphertext: too short")
	}
	nonce, ciphertext := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decryption failed (authentication error): %w", err)
	}
	return string(plaintext), nil
}

// EncryptFields encrypts the named fields of record in place. Missing fields
// are skipped.
func (c *Codec) EncryptFields(ctx context.Context, record map[string]string, fields ...string) error {
	for _, f := range fields {
		v, ok := record[f]
		if !ok {
			continue
		}
		enc, err := c.EncryptString(ctx, v)
		if err != nil {
			return fmt.Errorf("encrypt field %q: %w", f, err)
		}
		record[f] = enc
	}
	return nil
}

// DecryptFields decrypts the named fields of record in place. Missing fields
// are skipped.
func (c *Codec) DecryptFields(ctx context.Context, record map[string]string, fields ...string) error {
	for _, f := range fields {
		v, ok := record[f]
		if !ok {
			continue
		}
		dec, err := c.DecryptString(ctx, v)
		if err != nil {
			return fmt.Errorf("decrypt field %q: %w", f, err)
		}
		record[f] = dec
	}
	return nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
