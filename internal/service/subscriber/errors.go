package subscriber

import "errors"

// Sentinel errors for the subscriber service layer.
var (
	ErrNotFound     = errors.New("subscriber not found")
	ErrInvalidEmail = errors.New("a valid email is required")
	ErrNoIDs        = errors.New("subscriberIds must not be empty")
	ErrInvalidCSV   = errors.New("csv must have a header row with an email column")
	ErrUpstream     = errors.New("whop membership sync failed")
	ErrNoCompany    = errors.New("no whop company is configured")

	ErrCompanyForbidden = errors.New("companyId does not match this workspace's company")
)
