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
	"errors"
	"fmt"
)

// Category sentinels. Every domain error wraps exactly one of these so the
// transport layer can map errors to a status code with errors.Is.
var (
	// ErrNotFound covers unknown methods, credentials and challenges,
	// including ownership mismatches (indistinguishable from true absence).
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when an operation collides with existing state.
	ErrConflict = errors.New("conflict")

	// ErrGone is returned for challenges that are consumed or expired.
	// Distinct from ErrNotFound so callers know not to retry the same id.
	ErrGone = errors.New("gone")

	// ErrValidation covers malformed input, wrong method types and failed
	// cryptographic verification.
	ErrValidation = errors.New("validation failed")
)

// Specific sentinels, each chained to its category.
var (
	// ErrMethodNotFound is returned when a method cannot be found or is not
	// owned by the caller.
	ErrMethodNotFound = fmt.Errorf("%w: method", ErrNotFound)

	// ErrCredentialNotFound is returned when a credential cannot be found or
	// is not owned by the caller.
	ErrCredentialNotFound = fmt.Errorf("%w: credential", ErrNotFound)

	// ErrChallengeNotFound is returned when a challenge cannot be found.
	ErrChallengeNotFound = fmt.Errorf("%w: challenge", ErrNotFound)

	// ErrSecretNotFound is returned when a TOTP method has no stored secret.
	ErrSecretNotFound = fmt.Errorf("%w: totp secret", ErrNotFound)

	// ErrTOTPAlreadyEnabled is returned when enrolling while an enabled TOTP
	// method already exists for the user.
	ErrTOTPAlreadyEnabled = fmt.Errorf("%w: totp method already enabled", ErrConflict)

	// ErrChallengeConsumed is returned when a challenge has already been
	// consumed by a prior verification.
	ErrChallengeConsumed = fmt.Errorf("%w: challenge already consumed", ErrGone)

	// ErrChallengeExpired is returned when a challenge is past its expiry.
	ErrChallengeExpired = fmt.Errorf("%w: challenge expired", ErrGone)

	// ErrInvalidCode is returned when a TOTP code does not verify within the
	// allowed window.
	ErrInvalidCode = fmt.Errorf("%w: invalid code", ErrValidation)

	// ErrWrongMethodType is returned when an operation targets a method of
	// the wrong type.
	ErrWrongMethodType = fmt.Errorf("%w: wrong method type", ErrValidation)

	// ErrWrongPurpose is returned when a challenge is presented to an
	// operation with a different purpose.
	ErrWrongPurpose = fmt.Errorf("%w: wrong challenge purpose", ErrValidation)

	// ErrMethodNotAllowed is returned when the presented factor is not among
	// the challenge's allowed methods.
	ErrMethodNotAllowed = fmt.Errorf("%w: method not allowed for challenge", ErrValidation)

	// ErrVerificationFailed is returned when cryptographic verification of a
	// WebAuthn response fails.
	ErrVerificationFailed = fmt.Errorf("%w: verification failed", ErrValidation)

	// ErrCounterRegression is returned when an assertion reports a signature
	// counter that is not strictly greater than the stored counter.
	ErrCounterRegression = fmt.Errorf("%w: credential counter regression", ErrValidation)
)

// MFAError wraps an error with the operation that produced it.
type MFAError struct {
	Op  string // Operation that failed
	Err error  // Underlying error
}

// Error returns the error message.
func (e *MFAError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *MFAError) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches.
func (e *MFAError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewError creates a new MFAError with the given operation and error.
func NewError(op string, err error) error {
	return &MFAError{
		Op:  op,
		Err: err,
	}
}

// WrapError wraps an error with an operation name if it's not nil.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return NewError(op, err)
}

// IsNotFound returns true if the error belongs to the not-found category.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict returns true if the error belongs to the conflict category.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsGone returns true if the error belongs to the gone category.
func IsGone(err error) bool {
	return errors.Is(err, ErrGone)
}

// IsValidation returns true if the error belongs to the validation category.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}
