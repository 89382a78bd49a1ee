// Package mailing renders campaign HTML for a single recipient.
//
// Two syntaxes are supported. The default merge syntax replaces the literal
// tokens {{name}}, {{email}} and {{tier}}. Campaigns created with the liquid
// syntax are rendered with the Liquid template language and see the same
// three variables.
//
// Recipient values are inserted without HTML escaping.
package mailing

import (
	"strings"

	"github.com/flowmail/dashboard/internal/domain"
)

// Recipient is the data merged into a template.
type Recipient struct {
	Name  string
	Email string
	Tier  string
}

// RecipientFromSubscriber copies the mergeable fields of a subscriber.
func RecipientFromSubscriber(s domain.Subscriber) Recipient {
	return Recipient{Name: s.Name, Email: s.Email, Tier: s.Tier}
}

// withDefaults fills the fallbacks used for absent values. Email has none.
func (r Recipient) withDefaults() Recipient {
	if strings.TrimSpace(r.Name) == "" {
		r.Name = domain.DefaultSubscriberName
	}
	if strings.TrimSpace(r.Tier) == "" {
		r.Tier = domain.DefaultSubscriberTier
	}
	return r
}

// RenderMergeTags replaces every occurrence of {{name}}, {{email}} and
// {{tier}} in html. Templates without those tokens come back unchanged.
func RenderMergeTags(html string, r Recipient) string {
	if !strings.Contains(html, "{{") {
		return html
	}
	r = r.withDefaults()
	return strings.NewReplacer(
		"{{name}}", r.Name,
		"{{email}}", r.Email,
		"{{tier}}", r.Tier,
	).Replace(html)
}
