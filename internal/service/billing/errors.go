package billing

import "errors"

// Sentinel errors for the billing service layer.
var (
	ErrUnknownPlan       = errors.New("unknown plan")
	ErrPlanNotConfigured = errors.New("plan is not configured for checkout")
	ErrProviderRejected  = errors.New("checkout provider rejected the request")
	ErrInvalidSignature  = errors.New("invalid webhook signature")
	ErrInvalidPayload    = errors.New("invalid webhook payload")
)
