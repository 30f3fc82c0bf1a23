package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"casino-payments-go/internal/models"
	"casino-payments-go/internal/store"

	"github.com/shopspring/decimal"
)

func recordTestInvoice(t *testing.T, s *Store, id int64) *models.Invoice {
	t.Helper()
	now := time.Now().UTC()
	inv, err := s.RecordCreated(context.Background(), store.InvoiceRecordParams{
		ProviderInvoiceID: id,
		User:              42,
		Asset:             models.AssetLTC,
		CryptoAmount:      decimal.RequireFromString("0.12500000"),
		FiatAtIssue:       models.FiatFromCents(1000),
		CreatedAt:         now,
		ExpiresAt:         now.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("RecordCreated failed: %v", err)
	}
	return inv
}

func TestRecordCreated(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	inv := recordTestInvoice(t, s, 1001)

	if inv.Status != models.InvoicePending {
		t.Errorf("Expected PENDING, got %s", inv.Status)
	}
	if inv.User != 42 {
		t.Errorf("Expected user 42, got %d", inv.User)
	}
	if !inv.CryptoAmount.Equal(decimal.RequireFromString("0.125")) {
		t.Errorf("Expected 0.125 LTC, got %s", inv.CryptoAmount)
	}
	if inv.FiatAtIssue != models.FiatFromCents(1000) {
		t.Errorf("Expected $10.00 at issue, got %s", inv.FiatAtIssue)
	}
}

func TestRecordCreated_Duplicate(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	recordTestInvoice(t, s, 1001)

	_, err := s.RecordCreated(context.Background(), store.InvoiceRecordParams{
		ProviderInvoiceID: 1001,
		User:              43,
		Asset:             models.AssetTON,
		CryptoAmount:      decimal.NewFromInt(1),
		FiatAtIssue:       models.FiatFromCents(100),
		ExpiresAt:         time.Now().Add(time.Hour),
	})
	if !errors.Is(err, store.ErrDuplicateInvoice) {
		t.Fatalf("Expected ErrDuplicateInvoice, got %v", err)
	}
}

func TestMarkPaid_WinnerElection(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	recordTestInvoice(t, s, 1001)
	ctx := context.Background()
	paidAt := time.Now().UTC()

	inv, firstTime, err := s.MarkPaid(ctx, 1001, paidAt)
	if err != nil {
		t.Fatalf("First MarkPaid failed: %v", err)
	}
	if !firstTime {
		t.Error("Expected firstTime=true on first transition")
	}
	if inv.Status != models.InvoicePaid {
		t.Errorf("Expected PAID, got %s", inv.Status)
	}
	if inv.PaidAt == nil {
		t.Error("Expected paid_at to be set")
	}

	// Replaying the same transition is a no-op, never a second win.
	inv2, firstTime2, err := s.MarkPaid(ctx, 1001, paidAt)
	if err != nil {
		t.Fatalf("Repeated MarkPaid failed: %v", err)
	}
	if firstTime2 {
		t.Error("Expected firstTime=false on replay")
	}
	if inv2.Status != models.InvoicePaid {
		t.Errorf("Expected PAID after replay, got %s", inv2.Status)
	}
}

func TestTransition_CrossTerminalIsIllegal(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	recordTestInvoice(t, s, 1001)
	ctx := context.Background()

	if err := s.MarkExpired(ctx, 1001); err != nil {
		t.Fatalf("MarkExpired failed: %v", err)
	}

	_, _, err := s.MarkPaid(ctx, 1001, time.Now())
	if !errors.Is(err, store.ErrIllegalTransition) {
		t.Fatalf("Expected ErrIllegalTransition, got %v", err)
	}

	// Repeating the terminal state the invoice already holds stays a no-op.
	if err := s.MarkExpired(ctx, 1001); err != nil {
		t.Errorf("Repeated MarkExpired should be a no-op, got %v", err)
	}
}

func TestMarkCancelled(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	recordTestInvoice(t, s, 1001)

	if err := s.MarkCancelled(context.Background(), 1001); err != nil {
		t.Fatalf("MarkCancelled failed: %v", err)
	}

	inv, err := s.Get(context.Background(), 1001)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if inv.Status != models.InvoiceCancelled {
		t.Errorf("Expected CANCELLED, got %s", inv.Status)
	}
}

func TestLinkLedgerEntry(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	recordTestInvoice(t, s, 1001)
	ctx := context.Background()

	if err := s.LinkLedgerEntry(ctx, 1001, "entry-abc"); err != nil {
		t.Fatalf("LinkLedgerEntry failed: %v", err)
	}

	inv, err := s.Get(ctx, 1001)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if inv.CreditedEntryID != "entry-abc" {
		t.Errorf("Expected credited entry entry-abc, got %q", inv.CreditedEntryID)
	}

	if err := s.LinkLedgerEntry(ctx, 9999, "entry-xyz"); err == nil {
		t.Error("Expected error linking unknown invoice")
	}
}

func TestListPending_FiltersByAgeAndStatus(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now().UTC()

	mkInvoice := func(id int64, createdAt time.Time) {
		_, err := s.RecordCreated(ctx, store.InvoiceRecordParams{
			ProviderInvoiceID: id,
			User:              1,
			Asset:             models.AssetTON,
			CryptoAmount:      decimal.NewFromInt(1),
			FiatAtIssue:       models.FiatFromCents(100),
			CreatedAt:         createdAt,
			ExpiresAt:         createdAt.Add(time.Hour),
		})
		if err != nil {
			t.Fatalf("RecordCreated %d failed: %v", id, err)
		}
	}

	mkInvoice(1, now.Add(-2*time.Minute))
	mkInvoice(2, now.Add(-1*time.Minute))
	mkInvoice(3, now) // too fresh
	if err := s.MarkExpired(ctx, 2); err != nil {
		t.Fatalf("MarkExpired failed: %v", err)
	}

	pending, err := s.ListPending(ctx, now.Add(-30*time.Second))
	if err != nil {
		t.Fatalf("ListPending failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("Expected 1 pending invoice, got %d", len(pending))
	}
	if pending[0].ProviderInvoiceID != 1 {
		t.Errorf("Expected invoice 1, got %d", pending[0].ProviderInvoiceID)
	}

	count, err := s.PendingCount(ctx)
	if err != nil {
		t.Fatalf("PendingCount failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 pending in total, got %d", count)
	}
}
