// Package campaign implements campaign lifecycle management.
//
// Campaigns move draft -> sending -> sent. Only drafts are edited, and
// sending or sent campaigns are never deleted. The send pipeline delivers
// to each recipient sequentially and records every attempt in a
// per-recipient ledger, so an interrupted send can be resumed without
// reaching anyone twice.
//
// Repository implementations live in repository/postgres/.
package campaign
