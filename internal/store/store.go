package store

import (
	"context"
	"errors"
	"time"

	"casino-payments-go/internal/models"

	"github.com/shopspring/decimal"
)

// Sentinel errors shared across all backend implementations. These are the
// only payment-core failures the chat layer ever sees; provider error codes
// stay in the logs.
var (
	// ErrInsufficientFunds: debit request exceeds the user's balance.
	// Reported to the caller, never logged as an error.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrRateUnavailable: no fresh exchange rate for the requested asset.
	ErrRateUnavailable = errors.New("exchange rate unavailable")
	// ErrProviderUnavailable: transport-level failure talking to the
	// provider. Retryable on the next reconciliation tick.
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	// ErrProviderRejected: the provider returned a definitive error.
	ErrProviderRejected = errors.New("payment provider rejected request")
	// ErrDuplicateInvoice: provider invoice id already recorded.
	ErrDuplicateInvoice = errors.New("duplicate invoice")
	// ErrIllegalTransition: invoice state machine guard tripped.
	ErrIllegalTransition = errors.New("illegal invoice transition")
	// ErrLedgerInvariant: cached balance disagrees with the journal.
	// Fatal; the process exits with code 2.
	ErrLedgerInvariant = errors.New("ledger invariant violated")
	// ErrConcurrentModification: optimistic version check failed.
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// InvoiceRecordParams contains the parameters for recording a freshly created
// provider invoice.
type InvoiceRecordParams struct {
	User              int64
	ProviderInvoiceID int64
	Asset             models.Asset
	CryptoAmount      decimal.Decimal
	FiatAtIssue       models.FiatAmount
	CreatedAt         time.Time
	ExpiresAt         time.Time
}

// Ledger is the per-user balance store with an append-only journal.
type Ledger interface {
	Credit(ctx context.Context, user int64, amount models.FiatAmount, reason models.Reason, idempotencyKey string) (*models.LedgerEntry, error)
	Debit(ctx context.Context, user int64, amount models.FiatAmount, reason models.Reason, idempotencyKey string) (*models.LedgerEntry, error)
	Balance(ctx context.Context, user int64) (models.FiatAmount, error)
	History(ctx context.Context, user int64, limit int, before time.Time) ([]models.LedgerEntry, error)
	// Audit recomputes the balance from the journal and returns
	// ErrLedgerInvariant on any discrepancy.
	Audit(ctx context.Context, user int64) error
	TotalEntries(ctx context.Context) (int64, error)
}

// InvoiceRegistry is the durable table of invoices keyed by provider id.
type InvoiceRegistry interface {
	RecordCreated(ctx context.Context, params InvoiceRecordParams) (*models.Invoice, error)
	// MarkPaid transitions PENDING to PAID. firstTime is true only on the
	// first successful transition; repeated calls return the existing
	// record with firstTime=false.
	MarkPaid(ctx context.Context, providerInvoiceID int64, paidAt time.Time) (inv *models.Invoice, firstTime bool, err error)
	MarkExpired(ctx context.Context, providerInvoiceID int64) error
	MarkCancelled(ctx context.Context, providerInvoiceID int64) error
	LinkLedgerEntry(ctx context.Context, providerInvoiceID int64, entryID string) error
	ListPending(ctx context.Context, olderThan time.Time) ([]models.Invoice, error)
	// ListUncredited returns PAID invoices not yet linked to a ledger
	// entry, so an interrupted credit can be completed later.
	ListUncredited(ctx context.Context) ([]models.Invoice, error)
	PendingCount(ctx context.Context) (int, error)
	Get(ctx context.Context, providerInvoiceID int64) (*models.Invoice, error)
}
