package app

import "errors"

var (
	// ErrQuotaExceeded indicates a free-tier caller has used up the
	// count-limited allowance.
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrPremiumRequired indicates an action reserved for premium plans.
	ErrPremiumRequired = errors.New("premium required")
	// ErrInvalidPayload indicates a missing or malformed request payload.
	ErrInvalidPayload = errors.New("invalid payload")
)
