package user

import "errors"

// Sentinel errors for the user service layer.
var (
	ErrNotFound            = errors.New("user not found")
	ErrMissingUserID       = errors.New("userId is required")
	ErrInvalidSenderName   = errors.New("sender name must be 1-64 characters of a-z, 0-9, '.', '_' or '-'")
	ErrSenderNameTaken     = errors.New("sender name already taken")
	ErrSenderNameExhausted = errors.New("could not find an available sender name")
	ErrUnknownPlan         = errors.New("unknown plan")
)
