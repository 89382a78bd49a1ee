package domain

import (
	"time"
)

// CampaignStatus enumerates the lifecycle states of a campaign:
// draft -> sending -> sent.
type CampaignStatus string

const (
	CampaignDraft   CampaignStatus = "draft"
	CampaignSending CampaignStatus = "sending"
	CampaignSent    CampaignStatus = "sent"
)

// TemplateSyntax selects how a campaign's HTML is personalized.
type TemplateSyntax string

const (
	// SyntaxMerge replaces the literal {{name}}, {{email}} and {{tier}} tags.
	SyntaxMerge TemplateSyntax = "merge"
	// SyntaxLiquid renders the body as a Liquid template.
	SyntaxLiquid TemplateSyntax = "liquid"
)

// SegmentAll targets every active subscriber of the campaign owner.
const SegmentAll = "all"

// Campaign is a single email broadcast with its own content and lifecycle.
type Campaign struct {
	ID              string         `json:"id" db:"id"`
	UserID          string         `json:"user_id" db:"user_id"`
	Name            string         `json:"name" db:"name"`
	Subject         string         `json:"subject" db:"subject"`
	PreviewText     string         `json:"preview_text" db:"preview_text"`
	HTMLContent     string         `json:"html_content" db:"html_content"`
	TemplateSyntax  TemplateSyntax `json:"template_syntax" db:"template_syntax"`
	Segment         string         `json:"segment" db:"segment"`
	Status          CampaignStatus `json:"status" db:"status"`
	TotalRecipients int            `json:"total_recipients" db:"total_recipients"`
	SentCount       int            `json:"sent_count" db:"sent_count"`
	FailedCount     int            `json:"failed_count" db:"failed_count"`
	SentAt          *time.Time     `json:"sent_at" db:"sent_at"`
	CreatedAt       time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at" db:"updated_at"`
}

// IsEditable returns true while the campaign is still a draft.
func (c *Campaign) IsEditable() bool {
	return c.Status == CampaignDraft
}

// IsDeletable returns true if the campaign may be hard-deleted by its owner.
func (c *Campaign) IsDeletable() bool {
	return c.Status != CampaignSending && c.Status != CampaignSent
}

// SendStatus is the outcome recorded in the per-recipient send ledger.
type SendStatus string

const (
	SendSent   SendStatus = "sent"
	SendFailed SendStatus = "failed"
)

// CampaignSend is one row of the send ledger. A recipient with a ledger row
// is never sent the same campaign again.
type CampaignSend struct {
	ID                string     `json:"id" db:"id"`
	CampaignID        string     `json:"campaign_id" db:"campaign_id"`
	SubscriberID      string     `json:"subscriber_id" db:"subscriber_id"`
	Email             string     `json:"email" db:"email"`
	Status            SendStatus `json:"status" db:"status"`
	ProviderMessageID string     `json:"provider_message_id,omitempty" db:"provider_message_id"`
	Error             string     `json:"error,omitempty" db:"error"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
}
