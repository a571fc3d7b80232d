// Package models defines the core domain models for group ordering.
//
// # Aggregate
//
// A GroupOrder is the aggregate root. Everything else hangs off its ID:
//   - ShareLink: opaque join token mapped to a group order
//   - Participant: one row per (group order, user); the host is a participant too
//   - Selection: one participant's item list, written only by that participant
//   - Contribution: an append-only ledger entry pledging funds to the pool
//
// # Money
//
// Amounts are integer minor currency units (pence). Sums over the ledger are exact
// and independent of the order contributions arrive in.
//
// # Relationships
//
// Models reference each other by ID strings rather than pointers, matching the
// storage layout. Participants are identified by their user ID.
package models
