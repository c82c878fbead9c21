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
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jeremyhahn/go-mfa/pkg/audit"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	totpPeriod = 30
	totpSkew   = 1
)

// TOTPEnrollment is the result of starting TOTP enrollment. Secret and
// OtpauthURL are returned to the client exactly once, for QR rendering; only
// the encrypted secret is persisted.
type TOTPEnrollment struct {
	Method     *Method `json:"method"`
	Secret     string  `json:"secret"`
	OtpauthURL string  `json:"otpauth_url"`
}

// StartTOTPEnrollment begins or restarts TOTP enrollment for a user.
//
// Fails with ErrTOTPAlreadyEnabled when an enabled TOTP method exists.
// Otherwise the user's disabled TOTP method is reused or created, a fresh
// secret is generated and stored encrypted, and any pending unconfirmed
// enrollment is invalidated by the rotation.
func (s *Service) StartTOTPEnrollment(ctx context.Context, userID uuid.UUID, label, accountLabel string) (*TOTPEnrollment, error) {
	existing, err := s.methods.GetByUserAndType(ctx, userID, MethodTOTP)
	if err != nil {
		return nil, WrapError("get totp methods", err)
	}

	var method *Method
	for _, m := range existing {
		if m.Enabled {
			return nil, ErrTOTPAlreadyEnabled
		}
		method = m
	}

	now := s.now()
	created := false
	if method == nil {
		method = &Method{
			ID:        uuid.New(),
			UserID:    userID,
			Type:      MethodTOTP,
			Label:     label,
			Enabled:   false,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.methods.Create(ctx, method); err != nil {
			return nil, WrapError("create totp method", err)
		}
		created = true
	} else if label != "" && label != method.Label {
		method.Label = label
		method.UpdatedAt = now
		if err := s.methods.Update(ctx, method); err != nil {
			return nil, WrapError("update totp method", err)
		}
	}

	if accountLabel == "" {
		accountLabel = userID.String()
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.config.TOTPIssuer,
		AccountName: accountLabel,
		Period:      totpPeriod,
	})
	if err != nil {
		return nil, WrapError("generate totp secret", err)
	}

	encrypted, err := s.cipher.EncryptString(ctx, key.Secret())
	if err != nil {
		return nil, WrapError("encrypt totp secret", err)
	}
	if err := s.secrets.Upsert(ctx, &TOTPSecret{
		MethodID:        method.ID,
		EncryptedSecret: encrypted,
	}); err != nil {
		return nil, WrapError("store totp secret", err)
	}

	if created {
		if err := s.recordAudit(ctx, userID, "mfa_method", method.ID.String(), audit.ActionCreate, nil, snapshotMethod(method)); err != nil {
			return nil, WrapError("audit totp enrollment", err)
		}
	}

	return &TOTPEnrollment{
		Method:     method,
		Secret:     key.Secret(),
		OtpauthURL: key.URL(),
	}, nil
}

// ConfirmTOTPEnrollment verifies the first code against the pending secret
// and enables the method.
func (s *Service) ConfirmTOTPEnrollment(ctx context.Context, userID, methodID uuid.UUID, code string) (*Method, error) {
	method, err := s.ownedMethod(ctx, userID, methodID)
	if err != nil {
		return nil, err
	}
	if method.Type != MethodTOTP {
		return nil, ErrWrongMethodType
	}

	secret, err := s.secrets.GetByMethodID(ctx, methodID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	ok, err := s.validateCode(ctx, code, secret.EncryptedSecret, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidCode
	}

	if err := s.secrets.MarkConfirmed(ctx, methodID, now); err != nil {
		return nil, WrapError("confirm totp secret", err)
	}

	before := snapshotMethod(method)
	method.Enabled = true
	method.LastUsedAt = &now
	method.UpdatedAt = now
	if err := s.methods.Update(ctx, method); err != nil {
		return nil, WrapError("enable totp method", err)
	}

	if err := s.recordAudit(ctx, userID, "mfa_method", method.ID.String(), audit.ActionUpdate, before, snapshotMethod(method)); err != nil {
		return nil, WrapError("audit totp confirmation", err)
	}

	return method, nil
}

// VerifyTOTPCode checks a login code against every enabled TOTP method the
// user owns. Returns false when no enabled method matches. The first match
// updates the method's last-used time.
func (s *Service) VerifyTOTPCode(ctx context.Context, userID uuid.UUID, code string) (bool, error) {
	methods, err := s.methods.GetByUserAndType(ctx, userID, MethodTOTP)
	if err != nil {
		return false, WrapError("get totp methods", err)
	}

	now := s.now()
	for _, method := range methods {
		if !method.Enabled {
			continue
		}
		secret, err := s.secrets.GetByMethodID(ctx, method.ID)
		if err != nil {
			if IsNotFound(err) {
				continue
			}
			return false, err
		}
		ok, err := s.validateCode(ctx, code, secret.EncryptedSecret, now)
		if err != nil {
			return false, err
		}
		if !ok {
			continue
		}

		method.LastUsedAt = &now
		method.UpdatedAt = now
		if err := s.methods.Update(ctx, method); err != nil {
			return false, WrapError("update totp method", err)
		}
		return true, nil
	}
	return false, nil
}

// DisableTOTP removes a user's TOTP method and its secret.
func (s *Service) DisableTOTP(ctx context.Context, userID, methodID uuid.UUID) error {
	method, err := s.ownedMethod(ctx, userID, methodID)
	if err != nil {
		return err
	}
	if method.Type != MethodTOTP {
		return ErrWrongMethodType
	}

	if err := s.secrets.DeleteByMethodID(ctx, methodID); err != nil {
		return WrapError("delete totp secret", err)
	}
	if err := s.methods.Delete(ctx, methodID); err != nil {
		return WrapError("delete totp method", err)
	}

	if err := s.recordAudit(ctx, userID, "mfa_method", method.ID.String(), audit.ActionDelete, snapshotMethod(method), nil); err != nil {
		return WrapError("audit totp disable", err)
	}
	return nil
}

// validateCode decrypts the stored secret and checks the code at the given
// time, tolerating one time step of clock skew in either direction.
func (s *Service) validateCode(ctx context.Context, code, encryptedSecret string, at time.Time) (bool, error) {
	plaintext, err := s.cipher.DecryptString(ctx, encryptedSecret)
	if err != nil {
		return false, WrapError("decrypt totp secret", err)
	}
	ok, err := totp.ValidateCustom(code, plaintext, at, totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		// ValidateCustom only errors on malformed input, not mismatches.
		return false, nil
	}
	return ok, nil
}
