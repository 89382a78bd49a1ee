package domain

import "time"

// Plan identifies a billing tier. It controls the monthly send allowance.
type Plan string

const (
	PlanFree     Plan = "free"
	PlanPro      Plan = "pro"
	PlanBusiness Plan = "business"
)

// DomainStatus tracks the custom sending domain lifecycle:
// unregistered -> registered -> verified.
type DomainStatus string

const (
	DomainUnregistered DomainStatus = "unregistered"
	DomainRegistered   DomainStatus = "registered"
	DomainVerified     DomainStatus = "verified"
)

// DNSRecord is a DNS entry the user must publish to verify a custom domain.
type DNSRecord struct {
	Record string `json:"record"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Value  string `json:"value"`
	TTL    string `json:"ttl,omitempty"`
	Status string `json:"status,omitempty"`
}

// User is a FlowMail account, keyed externally by the Whop user id.
type User struct {
	ID                  string       `json:"id" db:"id"`
	WhopUserID          string       `json:"whop_user_id" db:"whop_user_id"`
	Email               string       `json:"email" db:"email"`
	Username            string       `json:"username" db:"username"`
	Plan                Plan         `json:"plan" db:"plan"`
	EmailsSentThisMonth int          `json:"emails_sent_this_month" db:"emails_sent_this_month"`
	UsageMonth          string       `json:"usage_month" db:"usage_month"`
	SenderName          string       `json:"sender_name" db:"sender_name"`
	CustomDomain        string       `json:"custom_domain" db:"custom_domain"`
	DomainProviderID    string       `json:"-" db:"domain_provider_id"`
	DomainStatus        DomainStatus `json:"domain_status" db:"domain_status"`
	DomainRecords       []DNSRecord  `json:"domain_records,omitempty" db:"domain_records"`
	CreatedAt           time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at" db:"updated_at"`
}

// UsageMonthKey formats t as the key stored in users.usage_month.
func UsageMonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// SentThisMonth returns the monthly counter, treating a counter from an
// earlier month as zero.
func (u *User) SentThisMonth(now time.Time) int {
	if u.UsageMonth != UsageMonthKey(now) {
		return 0
	}
	return u.EmailsSentThisMonth
}

// HasVerifiedDomain reports whether mail can be sent from the custom domain.
func (u *User) HasVerifiedDomain() bool {
	return u.CustomDomain != "" && u.DomainStatus == DomainVerified
}
