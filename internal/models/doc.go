// Package models defines the core domain models for SettleX.
//
// # Models
//
//   - Principal: an opaque, verifiable identity (payer or member)
//   - PaymentRecord: one recorded payment toward an expense
//   - PaymentSubmission: the caller-supplied fields of a payment
//   - PaymentRecorded: the notification published after a payment is stored
//
// Trips and expenses are not modeled. They exist only as opaque string
// identifiers used as storage keys.
//
// # Design Principles
//
// 1. **Raw facts only**: records carry what was paid, never derived balances
// 2. **Immutable records**: a PaymentRecord is never edited once stored
// 3. **Host-assigned time**: timestamps come from the ledger clock, not callers
package models
