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
	"context"

	"github.com/aws/aws-sdk-go-v2/service/kms"
)

// MockKMSClient is a mock implementation of the KMSClient interface for
// testing. The operation can be customized by setting the function field.
type MockKMSClient struct {
	GenerateDataKeyFunc func(ctx context.Context, params *kms.GenerateDataKeyInput, optFns ...func(*kms.Options)) (*kms.GenerateDataKeyOutput, error)

	// Calls counts invocations, useful for cache assertions.
	Calls int
}

// GenerateDataKey mocks the GenerateDataKey operation.
func (m *MockKMSClient) GenerateDataKey(ctx context.Context, params *kms.GenerateDataKeyInput, optFns ...func(*kms.Options)) (*kms.GenerateDataKeyOutput, error) {
	m.Calls++
	if m.GenerateDataKeyFunc != nil {
		return m.GenerateDataKeyFunc(ctx, params, optFns...)
	}
	return nil, nil
}
