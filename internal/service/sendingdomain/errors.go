package sendingdomain

import "errors"

// Sentinel errors for the sending domain service layer.
var (
	ErrInvalidDomain     = errors.New("domain must be a fully qualified hostname")
	ErrAlreadyRegistered = errors.New("a custom domain is already registered; remove it first")
	ErrNoDomain          = errors.New("no custom domain registered")
	ErrProvider          = errors.New("email provider domain request failed")
)
