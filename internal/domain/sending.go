package domain

import "time"

// EmailProvider identifies the transactional email provider used for sending.
type EmailProvider string

const (
	ProviderResend EmailProvider = "resend"
	ProviderSES    EmailProvider = "ses"
	ProviderNoop   EmailProvider = "noop"
)

// EmailMessage is the fully-resolved message ready for a provider.
// By the time a message reaches this struct, all merge-tag substitution
// is complete.
type EmailMessage struct {
	CampaignID   string            `json:"campaign_id"`
	SubscriberID string            `json:"subscriber_id"`
	To           string            `json:"to"`
	From         string            `json:"from"`
	ReplyTo      string            `json:"reply_to,omitempty"`
	Subject      string            `json:"subject"`
	HTMLContent  string            `json:"html_content"`
	Headers      map[string]string `json:"headers,omitempty"`
}

// SendResult is returned by a provider after it accepted a message.
type SendResult struct {
	MessageID string        `json:"message_id"`
	Provider  EmailProvider `json:"provider"`
	SentAt    time.Time     `json:"sent_at"`
}

// EmailEvent is a provider webhook event kept as a write-only audit log.
type EmailEvent struct {
	ID           string    `json:"id" db:"id"`
	EventType    string    `json:"event_type" db:"event_type"`
	EmailID      string    `json:"email_id" db:"email_id"`
	CampaignID   string    `json:"campaign_id,omitempty" db:"campaign_id"`
	SubscriberID string    `json:"subscriber_id,omitempty" db:"subscriber_id"`
	Payload      []byte    `json:"payload" db:"payload"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
