// Package user resolves FlowMail accounts from Whop identities and owns the
// per-account settings: plan, monthly usage and sender name.
//
// Every request resolves its user independently with a single repository
// lookup. There is no cache.
package user
