package whop

import "fmt"

// Config holds the Whop client settings
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    int // seconds
	MaxRetries int
}

// Identity is the signed-in Whop user returned by /me.
type Identity struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Name     string `json:"name"`
}

// Membership is one member of a Whop company.
type Membership struct {
	ID     string         `json:"id"`
	Status string         `json:"status"`
	Valid  bool           `json:"valid"`
	User   MembershipUser `json:"user"`
	Email  string         `json:"email"`
	Plan   MembershipPlan `json:"plan"`
}

// MembershipUser is the member's Whop profile.
type MembershipUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Email    string `json:"email"`
}

// MembershipPlan identifies what the member bought.
type MembershipPlan struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ProductName string `json:"product_name"`
}

// MemberEmail prefers the profile email over the membership contact email.
func (m Membership) MemberEmail() string {
	if m.User.Email != "" {
		return m.User.Email
	}
	return m.Email
}

// DisplayName prefers the profile name, then the username.
func (m Membership) DisplayName() string {
	if m.User.Name != "" {
		return m.User.Name
	}
	return m.User.Username
}

// TierName is the plan name, then the product name.
func (m Membership) TierName() string {
	if m.Plan.Name != "" {
		return m.Plan.Name
	}
	return m.Plan.ProductName
}

type membershipList struct {
	Data []Membership `json:"data"`
}

// CheckoutRequest asks Whop for a hosted checkout session.
type CheckoutRequest struct {
	PlanID      string            `json:"plan_id"`
	RedirectURL string            `json:"redirect_url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// CheckoutSession is passed back to the caller verbatim.
type CheckoutSession map[string]any

// APIError is a non-2xx response from Whop. Message carries the upstream text.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("whop API error (status %d): %s", e.StatusCode, e.Message)
}
