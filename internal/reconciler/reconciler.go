/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package reconciler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"casino-payments-go/internal/models"
	"casino-payments-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// tickTimeout bounds every provider and persistence call in a tick.
const tickTimeout = 30 * time.Second

// maxPaidPages caps how far a tick walks the provider's paid history.
const maxPaidPages = 10

// ProviderClient is the slice of the payment client the reconciler needs.
type ProviderClient interface {
	GetInvoices(ctx context.Context, status string, offset, count int) ([]models.ProviderInvoice, error)
}

// Quoter converts a paid crypto amount into the fiat to credit, at the
// current rate.
type Quoter interface {
	QuoteFiatForCrypto(ctx context.Context, asset models.Asset, amount decimal.Decimal) (models.FiatAmount, error)
}

// Config contains the reconciler's collaborators and timing knobs.
type Config struct {
	Client   ProviderClient
	Registry store.InvoiceRegistry
	Ledger   store.Ledger
	Quoter   Quoter

	Interval      time.Duration
	PendingMinAge time.Duration
	ExpiryGrace   time.Duration
	PageSize      int

	// Fatal is called on a ledger invariant violation. The default logs
	// and lets the loop continue; cmd/service installs one that exits the
	// process with code 2.
	Fatal func(error)
}

// Reconciler periodically discovers newly paid invoices at the provider and
// credits the corresponding users. Every tick is safe to replay: the invoice
// state machine is monotonic and every credit carries an idempotency key.
type Reconciler struct {
	client   ProviderClient
	registry store.InvoiceRegistry
	ledger   store.Ledger
	quoter   Quoter

	interval      time.Duration
	pendingMinAge time.Duration
	expiryGrace   time.Duration
	pageSize      int
	fatal         func(error)

	lastTick time.Time
	orphans  []models.OrphanInvoice
	mu       sync.Mutex

	stopChan chan struct{}
	doneChan chan struct{}
}

func New(cfg Config) *Reconciler {
	fatal := cfg.Fatal
	if fatal == nil {
		fatal = func(err error) {
			zap.L().Error("Ledger invariant violation with no fatal handler installed", zap.Error(err))
		}
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 100
	}

	return &Reconciler{
		client:        cfg.Client,
		registry:      cfg.Registry,
		ledger:        cfg.Ledger,
		quoter:        cfg.Quoter,
		interval:      cfg.Interval,
		pendingMinAge: cfg.PendingMinAge,
		expiryGrace:   cfg.ExpiryGrace,
		pageSize:      pageSize,
		fatal:         fatal,
		stopChan:      make(chan struct{}),
		doneChan:      make(chan struct{}),
	}
}

// Start begins the reconciliation loop.
func (r *Reconciler) Start(ctx context.Context) {
	zap.L().Info("Starting reconciliation loop",
		zap.Duration("interval", r.interval),
		zap.Duration("pending_min_age", r.pendingMinAge),
		zap.Duration("expiry_grace", r.expiryGrace))
	go r.run(ctx)
}

// Stop shuts the loop down, letting an in-flight tick finish. The tick's own
// timeouts bound the wait.
func (r *Reconciler) Stop() {
	zap.L().Info("Stopping reconciliation loop")
	close(r.stopChan)
	<-r.doneChan
	zap.L().Info("Reconciliation loop stopped")
}

func (r *Reconciler) run(ctx context.Context) {
	defer close(r.doneChan)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.tick()

	for {
		select {
		case <-ticker.C:
			r.tick()
		case <-r.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// tick runs one reconciliation pass on its own deadline so that shutdown
// never interrupts it mid-credit.
func (r *Reconciler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), tickTimeout)
	defer cancel()

	if err := r.Tick(ctx); err != nil {
		// Transport errors abort the tick; the next one retries from
		// scratch with no partial state left behind.
		zap.L().Warn("Reconciliation tick aborted", zap.Error(err))
	}

	r.mu.Lock()
	r.lastTick = time.Now().UTC()
	r.mu.Unlock()
}

// Tick performs a single reconciliation pass.
func (r *Reconciler) Tick(ctx context.Context) error {
	r.adoptOrphans(ctx)

	now := time.Now().UTC()
	pending, err := r.registry.ListPending(ctx, now.Add(-r.pendingMinAge))
	if err != nil {
		return fmt.Errorf("list pending invoices: %w", err)
	}

	var toCheck, toExpire []models.Invoice
	for _, inv := range pending {
		if now.After(inv.ExpiresAt.Add(r.expiryGrace)) {
			toExpire = append(toExpire, inv)
		} else {
			toCheck = append(toCheck, inv)
		}
	}

	// PAID invoices whose credit did not land (crash or rate outage between
	// MarkPaid and Credit) go back through creditPaid, which replays safely.
	uncredited, err := r.registry.ListUncredited(ctx)
	if err != nil {
		return fmt.Errorf("list uncredited invoices: %w", err)
	}
	toCheck = append(toCheck, uncredited...)

	if len(toCheck) > 0 {
		paid, err := r.fetchPaidInvoices(ctx)
		if err != nil {
			return err
		}

		for _, inv := range toCheck {
			provider, ok := paid[inv.ProviderInvoiceID]
			if !ok {
				continue
			}
			if err := r.creditPaid(ctx, inv, provider); err != nil {
				if errors.Is(err, store.ErrLedgerInvariant) {
					r.fatal(err)
					return err
				}
				if errors.Is(err, store.ErrProviderRejected) {
					// Definitive provider failure on this one
					// invoice: cancel it and tell the operator.
					zap.L().Error("Cancelling invoice after permanent provider error",
						zap.Int64("provider_invoice_id", inv.ProviderInvoiceID),
						zap.Error(err))
					if cancelErr := r.registry.MarkCancelled(ctx, inv.ProviderInvoiceID); cancelErr != nil {
						zap.L().Error("Failed to cancel invoice",
							zap.Int64("provider_invoice_id", inv.ProviderInvoiceID),
							zap.Error(cancelErr))
					}
					continue
				}
				zap.L().Error("Failed to credit paid invoice",
					zap.Int64("provider_invoice_id", inv.ProviderInvoiceID),
					zap.Error(err))
			}
		}
	}

	for _, inv := range toExpire {
		if err := r.registry.MarkExpired(ctx, inv.ProviderInvoiceID); err != nil {
			zap.L().Error("Failed to expire invoice",
				zap.Int64("provider_invoice_id", inv.ProviderInvoiceID),
				zap.Error(err))
			continue
		}
		zap.L().Info("Invoice expired without payment",
			zap.Int64("provider_invoice_id", inv.ProviderInvoiceID),
			zap.Int64("user", inv.User),
			zap.Time("expired_at", inv.ExpiresAt))
	}

	return nil
}

// fetchPaidInvoices walks the provider's paid pages. The provider does not
// accept id filters, so the whole recent paid set is fetched and intersected
// with local pending invoices.
func (r *Reconciler) fetchPaidInvoices(ctx context.Context) (map[int64]models.ProviderInvoice, error) {
	paid := make(map[int64]models.ProviderInvoice)

	for page := 0; page < maxPaidPages; page++ {
		batch, err := r.client.GetInvoices(ctx, models.ProviderStatusPaid, page*r.pageSize, r.pageSize)
		if err != nil {
			return nil, fmt.Errorf("fetch paid invoices: %w", err)
		}
		for _, inv := range batch {
			paid[inv.InvoiceID] = inv
		}
		if len(batch) < r.pageSize {
			break
		}
	}

	return paid, nil
}

// creditPaid moves one invoice to PAID and credits the ledger exactly once.
// The idempotency key makes the credit replay-safe even when a prior tick
// transitioned the invoice but crashed before crediting.
func (r *Reconciler) creditPaid(ctx context.Context, local models.Invoice, provider models.ProviderInvoice) error {
	paidAt := time.Now().UTC()
	if provider.PaidAt != "" {
		if t, err := time.Parse(time.RFC3339, provider.PaidAt); err == nil {
			paidAt = t.UTC()
		}
	}

	inv, firstTime, err := r.registry.MarkPaid(ctx, local.ProviderInvoiceID, paidAt)
	if err != nil {
		return err
	}
	if !firstTime && inv.CreditedEntryID != "" {
		return nil
	}

	// The provider is authoritative for what was actually paid.
	paidAmount, err := decimal.NewFromString(provider.Amount)
	if err != nil {
		return fmt.Errorf("parse provider paid amount %q: %w", provider.Amount, err)
	}
	if !paidAmount.Equal(inv.CryptoAmount) {
		zap.L().Warn("Provider paid amount differs from requested amount",
			zap.Int64("provider_invoice_id", inv.ProviderInvoiceID),
			zap.String("requested", inv.CryptoAmount.String()),
			zap.String("paid", paidAmount.String()))
	}

	fiat, err := r.quoter.QuoteFiatForCrypto(ctx, inv.Asset, paidAmount)
	if err != nil {
		return fmt.Errorf("quote credit for invoice %d: %w", inv.ProviderInvoiceID, err)
	}

	key := "invoice:" + strconv.FormatInt(inv.ProviderInvoiceID, 10)
	entry, err := r.ledger.Credit(ctx, inv.User, fiat, models.ReasonDeposit, key)
	if err != nil {
		return fmt.Errorf("credit invoice %d: %w", inv.ProviderInvoiceID, err)
	}

	if err := r.registry.LinkLedgerEntry(ctx, inv.ProviderInvoiceID, entry.ID); err != nil {
		return fmt.Errorf("link ledger entry for invoice %d: %w", inv.ProviderInvoiceID, err)
	}

	zap.L().Info("Deposit credited",
		zap.Int64("provider_invoice_id", inv.ProviderInvoiceID),
		zap.Int64("user", inv.User),
		zap.String("asset", string(inv.Asset)),
		zap.String("paid", paidAmount.String()),
		zap.String("credited", fiat.String()),
		zap.String("entry_id", entry.ID))

	return r.ledger.Audit(ctx, inv.User)
}

// Adopt queues a provider invoice whose local record failed to persist. The
// next tick records it before reconciling, so the payment is never lost.
func (r *Reconciler) Adopt(orphan models.OrphanInvoice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orphans = append(r.orphans, orphan)
	zap.L().Warn("Orphan invoice queued for adoption",
		zap.Int64("provider_invoice_id", orphan.ProviderInvoiceID),
		zap.Int64("user", orphan.User))
}

func (r *Reconciler) adoptOrphans(ctx context.Context) {
	r.mu.Lock()
	orphans := r.orphans
	r.orphans = nil
	r.mu.Unlock()

	for _, o := range orphans {
		_, err := r.registry.RecordCreated(ctx, store.InvoiceRecordParams{
			User:              o.User,
			ProviderInvoiceID: o.ProviderInvoiceID,
			Asset:             o.Asset,
			CryptoAmount:      o.CryptoAmount,
			FiatAtIssue:       o.FiatAtIssue,
			CreatedAt:         o.CreatedAt,
			ExpiresAt:         o.ExpiresAt,
		})
		if err != nil && !errors.Is(err, store.ErrDuplicateInvoice) {
			// Keep it queued; persistence may recover by next tick.
			r.mu.Lock()
			r.orphans = append(r.orphans, o)
			r.mu.Unlock()
			zap.L().Error("Failed to adopt orphan invoice",
				zap.Int64("provider_invoice_id", o.ProviderInvoiceID),
				zap.Error(err))
			continue
		}
		if err == nil {
			zap.L().Info("Orphan invoice adopted",
				zap.Int64("provider_invoice_id", o.ProviderInvoiceID),
				zap.Int64("user", o.User))
		}
	}
}

// LastTick reports when the loop last completed a pass; the health server
// compares it against twice the interval.
func (r *Reconciler) LastTick() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastTick
}
