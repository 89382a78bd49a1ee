// Package subscriber manages the per-user subscriber list: manual adds,
// CSV import, bulk deletes and reconciliation against Whop memberships.
//
// Sync is fetch-then-upsert keyed on (user, email). Members who left the
// community are not removed, so the list can hold stale rows.
package subscriber
