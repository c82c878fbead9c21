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

package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-mfa/pkg/mfa"
)

func TestMapServiceError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"method not found", mfa.ErrMethodNotFound, http.StatusNotFound},
		{"credential not found", mfa.ErrCredentialNotFound, http.StatusNotFound},
		{"challenge not found", mfa.ErrChallengeNotFound, http.StatusNotFound},
		{"totp conflict", mfa.ErrTOTPAlreadyEnabled, http.StatusConflict},
		{"challenge consumed", mfa.ErrChallengeConsumed, http.StatusGone},
		{"challenge expired", mfa.ErrChallengeExpired, http.StatusGone},
		{"invalid code", mfa.ErrInvalidCode, http.StatusBadRequest},
		{"verification failed", mfa.ErrVerificationFailed, http.StatusBadRequest},
		{"counter regression", mfa.ErrCounterRegression, http.StatusBadRequest},
		{"invalid request", ErrInvalidRequest, http.StatusBadRequest},
		{"infrastructure error", errors.New("connection refused"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, mapServiceError(tt.err))
		})
	}
}

func TestMapServiceError_WrappedOperationErrors(t *testing.T) {
	err := mfa.WrapError("confirm enrollment", mfa.ErrInvalidCode)
	assert.Equal(t, http.StatusBadRequest, mapServiceError(err))

	err = mfa.WrapError("verify login", mfa.ErrChallengeConsumed)
	assert.Equal(t, http.StatusGone, mapServiceError(err))
}

func TestHandleServiceError_MasksInfrastructureErrors(t *testing.T) {
	rr := httptest.NewRecorder()
	handleServiceError(rr, errors.New("pq: connection reset"))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, ErrInternalError.Error(), resp.Error)
	assert.NotContains(t, resp.Error, "connection reset")
}

func TestHandleServiceError_PassesCategoryMessage(t *testing.T) {
	rr := httptest.NewRecorder()
	handleServiceError(rr, mfa.ErrChallengeExpired)

	assert.Equal(t, http.StatusGone, rr.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error, "challenge expired")
}

func TestWriteJSON(t *testing.T) {
	rr := httptest.NewRecorder()
	writeJSON(rr, HealthResponse{Status: "healthy"}, http.StatusOK)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
}
