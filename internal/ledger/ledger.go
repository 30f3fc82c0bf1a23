package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"casino-payments-go/internal/models"
	"casino-payments-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Credit appends a positive-delta entry for the user. A repeated idempotency
// key returns the prior entry unchanged.
func (s *Store) Credit(ctx context.Context, user int64, amount models.FiatAmount, reason models.Reason, idempotencyKey string) (*models.LedgerEntry, error) {
	if amount.IsNegative() {
		return nil, fmt.Errorf("credit amount cannot be negative")
	}
	return s.apply(ctx, user, amount, reason, idempotencyKey)
}

// Debit appends a negative-delta entry. Fails with ErrInsufficientFunds when
// the balance would drop below zero; no entry is written in that case.
func (s *Store) Debit(ctx context.Context, user int64, amount models.FiatAmount, reason models.Reason, idempotencyKey string) (*models.LedgerEntry, error) {
	if amount.IsNegative() {
		return nil, fmt.Errorf("debit amount cannot be negative")
	}
	return s.apply(ctx, user, -amount, reason, idempotencyKey)
}

// apply atomically appends a journal entry and updates the cached balance.
func (s *Store) apply(ctx context.Context, user int64, delta models.FiatAmount, reason models.Reason, idempotencyKey string) (*models.LedgerEntry, error) {
	if idempotencyKey == "" {
		return nil, fmt.Errorf("idempotency key cannot be empty")
	}

	// Fast path: the operation already happened.
	if existing, err := s.getEntryByKey(ctx, idempotencyKey); err != nil {
		return nil, err
	} else if existing != nil {
		zap.L().Debug("Idempotency key already applied, returning prior entry",
			zap.String("idempotency_key", idempotencyKey),
			zap.String("entry_id", existing.ID))
		return existing, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var currentBalance models.FiatAmount
	var version int64

	err = tx.QueryRowContext(ctx, queryGetBalance, user).Scan(&currentBalance, &version)
	if errors.Is(err, sql.ErrNoRows) {
		// Users are created lazily on first reference with balance 0.
		currentBalance = 0
		version = 1
		if _, err := tx.ExecContext(ctx, queryInsertBalance, user, 0, 1); err != nil {
			return nil, fmt.Errorf("failed to create balance row: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to get current balance: %w", err)
	}

	newBalance := currentBalance + delta
	if newBalance.IsNegative() {
		return nil, fmt.Errorf("%w: balance %s, requested %s",
			store.ErrInsufficientFunds, currentBalance, (-delta))
	}

	entry := &models.LedgerEntry{
		ID:               uuid.New().String(),
		User:             user,
		Delta:            delta,
		Reason:           reason,
		IdempotencyKey:   idempotencyKey,
		ResultingBalance: newBalance,
		CreatedAt:        time.Now().UTC(),
	}

	_, err = tx.ExecContext(ctx, queryInsertEntry,
		entry.ID, entry.User, int64(entry.Delta), string(entry.Reason),
		entry.IdempotencyKey, int64(entry.ResultingBalance), entry.CreatedAt)
	if err != nil {
		// A concurrent writer won the race on the same key; their entry
		// is the result.
		if isUniqueViolation(err) {
			_ = tx.Rollback()
			existing, lookupErr := s.getEntryByKey(ctx, idempotencyKey)
			if lookupErr != nil {
				return nil, lookupErr
			}
			if existing != nil {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("failed to insert ledger entry: %w", err)
	}

	result, err := tx.ExecContext(ctx, queryUpdateBalance, int64(newBalance), entry.ID, user, version)
	if err != nil {
		return nil, fmt.Errorf("failed to update balance: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, fmt.Errorf("balance update failed - %w", store.ErrConcurrentModification)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Info("Ledger entry applied",
		zap.String("entry_id", entry.ID),
		zap.Int64("user", user),
		zap.String("reason", string(reason)),
		zap.String("delta", delta.String()),
		zap.String("new_balance", newBalance.String()))

	return entry, nil
}

func (s *Store) getEntryByKey(ctx context.Context, idempotencyKey string) (*models.LedgerEntry, error) {
	entry, err := scanEntry(s.db.QueryRowContext(ctx, queryGetEntryByIdempotencyKey, idempotencyKey))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up idempotency key: %w", err)
	}
	return entry, nil
}

// Balance returns the user's current balance; unknown users hold zero.
func (s *Store) Balance(ctx context.Context, user int64) (models.FiatAmount, error) {
	var balance models.FiatAmount
	var version int64
	err := s.db.QueryRowContext(ctx, queryGetBalance, user).Scan(&balance, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

// History returns the user's most recent entries, newest first. A zero
// `before` means no upper bound.
func (s *Store) History(ctx context.Context, user int64, limit int, before time.Time) ([]models.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	if before.IsZero() {
		before = time.Now().UTC().Add(time.Hour)
	}

	rows, err := s.db.QueryContext(ctx, queryGetHistory, user, before, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// Audit recomputes the user's balance from the journal and compares it to the
// cached value. A mismatch is a fatal invariant violation.
func (s *Store) Audit(ctx context.Context, user int64) error {
	var journalSum int64
	if err := s.db.QueryRowContext(ctx, querySumDeltas, user).Scan(&journalSum); err != nil {
		return fmt.Errorf("failed to sum journal deltas: %w", err)
	}

	cached, err := s.Balance(ctx, user)
	if err != nil {
		return err
	}

	if int64(cached) != journalSum {
		return fmt.Errorf("%w: user %d cached balance %d, journal sum %d",
			store.ErrLedgerInvariant, user, int64(cached), journalSum)
	}
	return nil
}

// TotalEntries counts all journal entries; the metrics endpoint reports it.
func (s *Store) TotalEntries(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, queryCountEntries).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count ledger entries: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	var delta, resulting int64
	var reason string
	err := row.Scan(&entry.ID, &entry.User, &delta, &reason,
		&entry.IdempotencyKey, &resulting, &entry.CreatedAt)
	if err != nil {
		return nil, err
	}
	entry.Delta = models.FiatAmount(delta)
	entry.Reason = models.Reason(reason)
	entry.ResultingBalance = models.FiatAmount(resulting)
	return &entry, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
