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
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/jeremyhahn/go-mfa/pkg/logging"
	"github.com/jeremyhahn/go-mfa/pkg/mfa"
)

// HandlerContext holds dependencies for REST handlers.
type HandlerContext struct {
	service *mfa.Service
	logger  *logging.Logger

	// Version is the API version
	Version string
}

// NewHandlerContext creates a new handler context.
func NewHandlerContext(service *mfa.Service, logger *logging.Logger, version string) *HandlerContext {
	return &HandlerContext{
		service: service,
		logger:  logger,
		Version: version,
	}
}

// HealthHandler handles GET /health requests.
func (h *HandlerContext) HealthHandler(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "healthy",
		Version: h.Version,
	}
	writeJSON(w, resp, http.StatusOK)
}

// ListMethodsHandler handles GET /auth/mfa/methods requests.
func (h *HandlerContext) ListMethodsHandler(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}

	methods, err := h.service.ListMethods(r.Context(), principal.UserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, ListMethodsResponse{Methods: methods}, http.StatusOK)
}

// TOTPSetupHandler handles POST /auth/mfa/totp/setup requests.
func (h *HandlerContext) TOTPSetupHandler(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}

	var req TOTPSetupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, ErrInvalidRequest, http.StatusBadRequest)
		return
	}

	enrollment, err := h.service.StartTOTPEnrollment(r.Context(), principal.UserID, req.Label, req.AccountLabel)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := TOTPSetupResponse{
		Method:     enrollment.Method,
		Secret:     enrollment.Secret,
		OtpauthURL: enrollment.OtpauthURL,
	}
	writeJSON(w, resp, http.StatusCreated)
}

// TOTPConfirmHandler handles POST /auth/mfa/totp/confirm requests.
func (h *HandlerContext) TOTPConfirmHandler(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}

	var req TOTPConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, ErrInvalidRequest, http.StatusBadRequest)
		return
	}
	if req.MethodID == uuid.Nil {
		writeError(w, fmt.Errorf("%w: methodId is required", ErrInvalidRequest), http.StatusBadRequest)
		return
	}
	if req.Code == "" {
		writeError(w, fmt.Errorf("%w: code is required", ErrInvalidRequest), http.StatusBadRequest)
		return
	}

	method, err := h.service.ConfirmTOTPEnrollment(r.Context(), principal.UserID, req.MethodID, req.Code)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, MethodResponse{Method: method}, http.StatusOK)
}

// TOTPDeleteHandler handles DELETE /auth/mfa/totp/{methodId} requests.
func (h *HandlerContext) TOTPDeleteHandler(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}

	methodID, err := uuid.Parse(chi.URLParam(r, "methodId"))
	if err != nil {
		writeError(w, fmt.Errorf("%w: invalid method id", ErrInvalidRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.DisableTOTP(r.Context(), principal.UserID, methodID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// WebAuthnRegistrationOptionsHandler handles
// POST /auth/mfa/webauthn/registration/options requests.
func (h *HandlerContext) WebAuthnRegistrationOptionsHandler(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}

	var req RegistrationOptionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, ErrInvalidRequest, http.StatusBadRequest)
		return
	}

	start, err := h.service.StartWebAuthnRegistration(r.Context(), principal.UserID, principal.Identity(), req.DeviceName, req.Label)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := RegistrationOptionsResponse{
		ChallengeID: start.ChallengeID,
		Options:     start.Options,
		Method:      start.Method,
	}
	writeJSON(w, resp, http.StatusCreated)
}

// WebAuthnRegistrationVerifyHandler handles
// POST /auth/mfa/webauthn/registration/verify requests.
func (h *HandlerContext) WebAuthnRegistrationVerifyHandler(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}

	var req RegistrationVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, ErrInvalidRequest, http.StatusBadRequest)
		return
	}
	if req.ChallengeID == uuid.Nil {
		writeError(w, fmt.Errorf("%w: challengeId is required", ErrInvalidRequest), http.StatusBadRequest)
		return
	}
	if len(req.Response) == 0 {
		writeError(w, fmt.Errorf("%w: response is required", ErrInvalidRequest), http.StatusBadRequest)
		return
	}

	method, err := h.service.CompleteWebAuthnRegistration(r.Context(), principal.UserID, req.ChallengeID, req.Response)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, MethodResponse{Method: method}, http.StatusOK)
}

// WebAuthnCredentialDeleteHandler handles
// DELETE /auth/mfa/webauthn/credentials/{credentialId} requests.
func (h *HandlerContext) WebAuthnCredentialDeleteHandler(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}

	credentialID, err := uuid.Parse(chi.URLParam(r, "credentialId"))
	if err != nil {
		writeError(w, fmt.Errorf("%w: invalid credential id", ErrInvalidRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.RemoveWebAuthnCredential(r.Context(), principal.UserID, credentialID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// LoginChallengeHandler handles POST /internal/login/challenges requests.
// The challenge in the response is null when the user has no enabled factor.
func (h *HandlerContext) LoginChallengeHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, ErrInvalidRequest, http.StatusBadRequest)
		return
	}
	if req.UserID == uuid.Nil {
		writeError(w, fmt.Errorf("%w: userId is required", ErrInvalidRequest), http.StatusBadRequest)
		return
	}

	challenge, err := h.service.CreateLoginChallenge(r.Context(), req.UserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, LoginChallengeResponse{Challenge: challenge}, http.StatusCreated)
}

// LoginTOTPVerifyHandler handles
// POST /internal/login/challenges/{challengeId}/totp requests.
func (h *HandlerContext) LoginTOTPVerifyHandler(w http.ResponseWriter, r *http.Request) {
	challengeID, err := uuid.Parse(chi.URLParam(r, "challengeId"))
	if err != nil {
		writeError(w, fmt.Errorf("%w: invalid challenge id", ErrInvalidRequest), http.StatusBadRequest)
		return
	}

	var req VerifyTOTPLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, ErrInvalidRequest, http.StatusBadRequest)
		return
	}
	if req.Code == "" {
		writeError(w, fmt.Errorf("%w: code is required", ErrInvalidRequest), http.StatusBadRequest)
		return
	}

	userID, err := h.service.VerifyTOTPLogin(r.Context(), challengeID, req.Code)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, VerifyLoginResponse{UserID: userID}, http.StatusOK)
}

// LoginWebAuthnVerifyHandler handles
// POST /internal/login/challenges/{challengeId}/webauthn requests.
func (h *HandlerContext) LoginWebAuthnVerifyHandler(w http.ResponseWriter, r *http.Request) {
	challengeID, err := uuid.Parse(chi.URLParam(r, "challengeId"))
	if err != nil {
		writeError(w, fmt.Errorf("%w: invalid challenge id", ErrInvalidRequest), http.StatusBadRequest)
		return
	}

	var req VerifyWebAuthnLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, ErrInvalidRequest, http.StatusBadRequest)
		return
	}
	if len(req.Response) == 0 {
		writeError(w, fmt.Errorf("%w: response is required", ErrInvalidRequest), http.StatusBadRequest)
		return
	}

	userID, err := h.service.VerifyWebAuthnLogin(r.Context(), challengeID, req.Response)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, VerifyLoginResponse{UserID: userID}, http.StatusOK)
}

// principal fetches the authenticated principal, writing a 401 when the
// authentication middleware did not run.
func (h *HandlerContext) principal(w http.ResponseWriter, r *http.Request) (*Principal, bool) {
	principal := PrincipalFrom(r.Context())
	if principal == nil {
		writeErrorWithMessage(w, ErrUnauthorized, "Authentication required", http.StatusUnauthorized)
		return nil, false
	}
	return principal, true
}
