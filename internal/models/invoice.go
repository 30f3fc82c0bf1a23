package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus is the local invoice state. Invoices are created PENDING and
// move monotonically to exactly one terminal state.
type InvoiceStatus string

const (
	InvoicePending   InvoiceStatus = "PENDING"
	InvoicePaid      InvoiceStatus = "PAID"
	InvoiceExpired   InvoiceStatus = "EXPIRED"
	InvoiceCancelled InvoiceStatus = "CANCELLED"
)

// Terminal reports whether the status admits no further transitions.
func (s InvoiceStatus) Terminal() bool {
	return s == InvoicePaid || s == InvoiceExpired || s == InvoiceCancelled
}

// Invoice is the local record of a provider invoice.
type Invoice struct {
	ProviderInvoiceID int64           `db:"provider_invoice_id"`
	User              int64           `db:"user_id"`
	Asset             Asset           `db:"asset"`
	CryptoAmount      decimal.Decimal `db:"crypto_amount"`
	FiatAtIssue       FiatAmount      `db:"fiat_at_issue"`
	Status            InvoiceStatus   `db:"status"`
	CreatedAt         time.Time       `db:"created_at"`
	ExpiresAt         time.Time       `db:"expires_at"`
	PaidAt            *time.Time      `db:"paid_at"`
	CreditedEntryID   string          `db:"credited_entry_id"`
}

// OrphanInvoice describes a provider invoice that was created but whose local
// record failed to persist. The reconciliation loop adopts these on its next
// pass.
type OrphanInvoice struct {
	User              int64
	ProviderInvoiceID int64
	Asset             Asset
	CryptoAmount      decimal.Decimal
	FiatAtIssue       FiatAmount
	CreatedAt         time.Time
	ExpiresAt         time.Time
}

// DepositInvoice is what the dispatch facade hands back to the chat layer
// after creating a deposit.
type DepositInvoice struct {
	InvoiceID    int64
	PayURL       string
	MiniAppURL   string
	CryptoAmount CryptoAmount
	FiatAmount   FiatAmount
	ExpiresAt    time.Time
}
