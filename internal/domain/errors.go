package domain

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrProviderNotConfigured = errors.New("provider not configured for landlord")
	ErrProviderAuth          = errors.New("provider authentication failed")
	ErrProviderTimeout       = errors.New("provider request timed out")
	ErrProviderRejected      = errors.New("provider rejected push request")
	ErrInvalidPhone          = errors.New("phone number is not a valid kenyan msisdn")
	ErrInvalidAmount         = errors.New("amount must be greater than zero")
	ErrInvalidProvider       = errors.New("unknown payment provider")
	ErrInvalidRequest        = errors.New("invalid request")
	ErrAmountMismatch        = errors.New("callback amount does not match requested amount")
	ErrDuplicateTransaction  = errors.New("duplicate correlation identifier")
	ErrInvalidSigningKey     = errors.New("signing key material is missing or malformed")
)
