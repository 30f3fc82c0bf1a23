package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"casino-payments-go/internal/models"
	"casino-payments-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RecordCreated inserts a PENDING invoice. A repeated provider invoice id
// fails with ErrDuplicateInvoice.
func (s *Store) RecordCreated(ctx context.Context, params store.InvoiceRecordParams) (*models.Invoice, error) {
	createdAt := params.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, queryInsertInvoice,
		params.ProviderInvoiceID, params.User, string(params.Asset),
		params.CryptoAmount.String(), int64(params.FiatAtIssue),
		string(models.InvoicePending), createdAt, params.ExpiresAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: provider invoice %d", store.ErrDuplicateInvoice, params.ProviderInvoiceID)
		}
		return nil, fmt.Errorf("failed to insert invoice: %w", err)
	}

	zap.L().Info("Invoice recorded",
		zap.Int64("provider_invoice_id", params.ProviderInvoiceID),
		zap.Int64("user", params.User),
		zap.String("asset", string(params.Asset)),
		zap.String("crypto_amount", params.CryptoAmount.String()),
		zap.String("fiat_at_issue", params.FiatAtIssue.String()))

	return s.Get(ctx, params.ProviderInvoiceID)
}

// MarkPaid transitions a PENDING invoice to PAID. The conditional UPDATE
// makes concurrent callers elect exactly one winner: only the caller whose
// update matched the PENDING row sees firstTime=true.
func (s *Store) MarkPaid(ctx context.Context, providerInvoiceID int64, paidAt time.Time) (*models.Invoice, bool, error) {
	return s.transition(ctx, providerInvoiceID, models.InvoicePaid, &paidAt)
}

// MarkExpired transitions a PENDING invoice to EXPIRED.
func (s *Store) MarkExpired(ctx context.Context, providerInvoiceID int64) error {
	_, _, err := s.transition(ctx, providerInvoiceID, models.InvoiceExpired, nil)
	return err
}

// MarkCancelled transitions a PENDING invoice to CANCELLED.
func (s *Store) MarkCancelled(ctx context.Context, providerInvoiceID int64) error {
	_, _, err := s.transition(ctx, providerInvoiceID, models.InvoiceCancelled, nil)
	return err
}

func (s *Store) transition(ctx context.Context, providerInvoiceID int64, target models.InvoiceStatus, paidAt *time.Time) (*models.Invoice, bool, error) {
	result, err := s.db.ExecContext(ctx, queryUpdateInvoiceStatus,
		string(target), paidAtValue(paidAt), providerInvoiceID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to update invoice status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to check rows affected: %w", err)
	}

	inv, err := s.Get(ctx, providerInvoiceID)
	if err != nil {
		return nil, false, err
	}

	if rowsAffected == 1 {
		zap.L().Info("Invoice transitioned",
			zap.Int64("provider_invoice_id", providerInvoiceID),
			zap.String("status", string(target)))
		return inv, true, nil
	}

	// No row moved: the invoice was already terminal. Repeating the same
	// transition is a no-op; crossing terminal states is a bug or a
	// replayed message.
	if inv.Status == target {
		return inv, false, nil
	}
	return nil, false, fmt.Errorf("%w: invoice %d is %s, wanted %s",
		store.ErrIllegalTransition, providerInvoiceID, inv.Status, target)
}

func paidAtValue(paidAt *time.Time) any {
	if paidAt == nil {
		return nil
	}
	return paidAt.UTC()
}

// LinkLedgerEntry records which ledger entry credited a PAID invoice.
func (s *Store) LinkLedgerEntry(ctx context.Context, providerInvoiceID int64, entryID string) error {
	result, err := s.db.ExecContext(ctx, queryLinkInvoiceEntry, entryID, providerInvoiceID)
	if err != nil {
		return fmt.Errorf("failed to link ledger entry: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("invoice %d not found", providerInvoiceID)
	}
	return nil
}

// ListPending returns PENDING invoices created at or before olderThan,
// oldest first.
func (s *Store) ListPending(ctx context.Context, olderThan time.Time) ([]models.Invoice, error) {
	rows, err := s.db.QueryContext(ctx, queryListPendingInvoices, olderThan.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list pending invoices: %w", err)
	}
	defer rows.Close()

	var invoices []models.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, *inv)
	}
	return invoices, rows.Err()
}

// ListUncredited returns PAID invoices whose ledger credit has not landed
// yet, oldest first. A crash or rate outage between MarkPaid and Credit
// leaves the invoice here until a later pass completes the credit.
func (s *Store) ListUncredited(ctx context.Context) ([]models.Invoice, error) {
	rows, err := s.db.QueryContext(ctx, queryListUncreditedInvoices)
	if err != nil {
		return nil, fmt.Errorf("failed to list uncredited invoices: %w", err)
	}
	defer rows.Close()

	var invoices []models.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, *inv)
	}
	return invoices, rows.Err()
}

// PendingCount reports the number of PENDING invoices for metrics.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, queryCountPendingInvoices).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count pending invoices: %w", err)
	}
	return count, nil
}

// Get fetches one invoice by provider id.
func (s *Store) Get(ctx context.Context, providerInvoiceID int64) (*models.Invoice, error) {
	inv, err := scanInvoice(s.db.QueryRowContext(ctx, queryGetInvoice, providerInvoiceID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("invoice %d not found", providerInvoiceID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return inv, nil
}

func scanInvoice(row rowScanner) (*models.Invoice, error) {
	var inv models.Invoice
	var asset, amountStr, status string
	var fiatAtIssue int64
	var paidAt sql.NullTime
	var creditedEntryID sql.NullString

	err := row.Scan(&inv.ProviderInvoiceID, &inv.User, &asset, &amountStr,
		&fiatAtIssue, &status, &inv.CreatedAt, &inv.ExpiresAt, &paidAt, &creditedEntryID)
	if err != nil {
		return nil, err
	}

	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse crypto amount %q: %w", amountStr, err)
	}

	inv.Asset = models.Asset(asset)
	inv.CryptoAmount = amount
	inv.FiatAtIssue = models.FiatAmount(fiatAtIssue)
	inv.Status = models.InvoiceStatus(status)
	if paidAt.Valid {
		t := paidAt.Time
		inv.PaidAt = &t
	}
	if creditedEntryID.Valid {
		inv.CreditedEntryID = creditedEntryID.String
	}
	return &inv, nil
}
