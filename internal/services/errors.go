package services

import "errors"

// Password reset failures. Handlers map these to HTTP status codes.
var (
	ErrUnknownIdentifier   = errors.New("no account found for this identifier")
	ErrRateLimited         = errors.New("too many reset requests, please wait before trying again")
	ErrInvalidOTP          = errors.New("the code is invalid")
	ErrExpiredOTP          = errors.New("the code has expired")
	ErrTooManyAttempts     = errors.New("too many incorrect codes, request a new one")
	ErrUnauthorizedReset   = errors.New("reset token is invalid or expired")
	ErrWeakPassword        = errors.New("password does not meet the policy")
	ErrPasswordMismatch    = errors.New("password confirmation does not match")
	ErrNoPendingReset      = errors.New("no pending reset for this identifier")
	ErrPasswordNotSaved    = errors.New("password could not be saved, request a new code")
	ErrDeliveryFailure     = errors.New("notification delivery failed")
	ErrDeliveryUnavailable = errors.New("notification delivery is unavailable, try again later")
)

// Account failures.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountExists      = errors.New("email or phone already registered")
	ErrAccountDisabled    = errors.New("account is disabled")
	ErrNoProfileChanges   = errors.New("no valid fields provided for update")
)
