package campaign

import "errors"

// Sentinel errors for the campaign service layer.
var (
	ErrNotFound        = errors.New("campaign not found")
	ErrNameRequired    = errors.New("name is required")
	ErrSubjectRequired = errors.New("subject is required")
	ErrHTMLRequired    = errors.New("html_content is required")
	ErrInvalidSyntax   = errors.New("template_syntax must be merge or liquid")
	ErrInvalidTemplate = errors.New("template does not parse")
	ErrCampaignSent    = errors.New("campaign has already been sent")
	ErrCampaignSending = errors.New("campaign is currently sending")
	ErrNoIDs           = errors.New("campaignIds must not be empty")
	ErrSendInProgress  = errors.New("a send for this campaign is already in progress")
	ErrNoRecipients    = errors.New("no active subscribers match this segment")
	ErrQuotaExceeded   = errors.New("monthly email limit reached for your plan")
	ErrRecipientEmail  = errors.New("a valid test email address is required")
)
