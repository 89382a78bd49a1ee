package domain

import "time"

// SubscriberStatus enumerates the states a subscriber can be in. Synced
// members carry the Whop membership status verbatim when it is not active.
type SubscriberStatus string

const (
	SubscriberActive   SubscriberStatus = "active"
	SubscriberInactive SubscriberStatus = "inactive"
)

// Default merge-tag values used when a subscriber field is empty.
const (
	DefaultSubscriberName = "Member"
	DefaultSubscriberTier = "Basic"
)

// Subscriber is a community member eligible to receive campaign emails.
// Email uniqueness is scoped to the owning user.
type Subscriber struct {
	ID               string           `json:"id" db:"id"`
	UserID           string           `json:"user_id" db:"user_id"`
	Name             string           `json:"name" db:"name"`
	Email            string           `json:"email" db:"email"`
	Tier             string           `json:"tier" db:"tier"`
	Status           SubscriberStatus `json:"status" db:"status"`
	WhopMembershipID string           `json:"whop_membership_id,omitempty" db:"whop_membership_id"`
	SyncedAt         *time.Time       `json:"synced_at" db:"synced_at"`
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`
}

// IsActive reports whether the subscriber receives campaign sends.
func (s *Subscriber) IsActive() bool {
	return s.Status == SubscriberActive
}
