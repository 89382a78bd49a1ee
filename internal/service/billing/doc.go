// Package billing bridges FlowMail plans to Whop checkout and membership
// webhooks.
package billing
