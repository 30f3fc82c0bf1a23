package models

import "time"

// Reason classifies why a ledger entry was written.
type Reason string

const (
	ReasonDeposit    Reason = "DEPOSIT"
	ReasonDebitGame  Reason = "DEBIT_GAME"
	ReasonCreditGame Reason = "CREDIT_GAME"
	ReasonAdjustment Reason = "ADJUSTMENT"
)

// LedgerEntry is an immutable signed delta on a user's balance.
// IdempotencyKey is globally unique; re-submitting an operation with the same
// key returns the prior entry without side effects.
type LedgerEntry struct {
	ID               string     `db:"id"`
	User             int64      `db:"user_id"`
	Delta            FiatAmount `db:"delta"`
	Reason           Reason     `db:"reason"`
	IdempotencyKey   string     `db:"idempotency_key"`
	ResultingBalance FiatAmount `db:"resulting_balance"`
	CreatedAt        time.Time  `db:"created_at"`
}
