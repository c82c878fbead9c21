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

package fieldcrypt

import (
	"context"
	"crypto/sha256"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticKeySource struct {
	key []byte
	err error
}

func (s *staticKeySource) Key(_ context.Context) ([]byte, error) {
	return s.key, s.err
}

func testKey() []byte {
	sum := sha256.Sum256([]byte("test-key-material"))
	return sum[:]
}

func TestCodec_RoundTrip(t *testing.T) {
	codec := NewCodec(&staticKeySource{key: testKey()})
	ctx := context.Background()

	enc, err := codec.EncryptString(ctx, "555-0100")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(enc, Prefix))
	assert.NotContains(t, enc, "555-0100")

	dec, err := codec.DecryptString(ctx, enc)
	require.NoError(t, err)
	assert.Equal(t, "555-0100", dec)
}

func TestCodec_NonDeterministic(t *testing.T) {
	codec := NewCodec(&staticKeySource{key: testKey()})
	ctx := context.Background()

	a, err := codec.EncryptString(ctx, "same value")
	require.NoError(t, err)
	b, err := codec.EncryptString(ctx, "same value")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestCodec_LegacyPlaintextPassesThrough(t *testing.T) {
	codec := NewCodec(&staticKeySource{key: testKey()})

	dec, err := codec.DecryptString(context.Background(), "plain old value")
	require.NoError(t, err)
	assert.Equal(t, "plain old value", dec)
}

func TestCodec_DegradedModeIsIdentity(t *testing.T) {
	codec := NewCodec(&staticKeySource{key: nil})
	ctx := context.Background()

	enc, err := codec.EncryptString(ctx, "secret")
	require.NoError(t, err)
	assert.Equal(t, "secret", enc)
}

func TestCodec_DecryptWithoutKeyFails(t *testing.T) {
	withKey := NewCodec(&staticKeySource{key: testKey()})
	enc, err := withKey.EncryptString(context.Background(), "secret")
	require.NoError(t, err)

	noKey := NewCodec(&staticKeySource{key: nil})
	_, err = noKey.DecryptString(context.Background(), enc)
	assert.Error(t, err)
}

func TestCodec_TamperedCiphertextFails(t *testing.T) {
	codec := NewCodec(&staticKeySource{key: testKey()})
	ctx := context.Background()

	enc, err := codec.EncryptString(ctx, "secret")
	require.NoError(t, err)

	tampered := enc[:len(enc)-2] + "AA"
	if tampered == enc {
		tampered = enc[:len(enc)-2] + "BB"
	}
	_, err = codec.DecryptString(ctx, tampered)
	assert.Error(t, err)
}

func TestCodec_WrongKeyFails(t *testing.T) {
	codec := NewCodec(&staticKeySource{key: testKey()})
	enc, err := codec.EncryptString(context.Background(), "secret")
	require.NoError(t, err)

	other := sha256.Sum256([]byte("different-key"))
	wrong := NewCodec(&staticKeySource{key: other[:]})
	_, err = wrong.DecryptString(context.Background(), enc)
	assert.Error(t, err)
}

func TestCodec_Fields(t *testing.T) {
	codec := NewCodec(&staticKeySource{key: testKey()})
	ctx := context.Background()

	record := map[string]string{
		"phone": "555-0100",
		"email": "user@example.com",
		"name":  "Alice",
	}
	require.NoError(t, codec.EncryptFields(ctx, record, "phone", "email", "missing"))
	assert.True(t, strings.HasPrefix(record["phone"], Prefix))
	assert.True(t, strings.HasPrefix(record["email"], Prefix))
	assert.Equal(t, "Alice", record["name"])

	require.NoError(t, codec.DecryptFields(ctx, record, "phone", "email"))
	assert.Equal(t, "555-0100", record["phone"])
	assert.Equal(t, "user@example.com", record["email"])
}

func TestCodec_MalformedCiphertext(t *testing.T) {
	codec := NewCodec(&staticKeySource{key: testKey()})
	ctx := context.Background()

	_, err := codec.DecryptString(ctx, Prefix+"not-base64!!!")
	assert.Error(t, err)

	_, err = codec.DecryptString(ctx, Prefix+"QUJD")
	assert.Error(t, err)
}
