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

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"casino-payments-go/internal/common"
	"casino-payments-go/internal/cryptopay"
	"casino-payments-go/internal/models"
	"casino-payments-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// depositExpiry is how long a provider invoice stays payable.
const depositExpiry = time.Hour

// ErrClosed is returned once shutdown has begun and the facade no longer
// accepts requests.
var ErrClosed = errors.New("payment service is shutting down")

// ErrBelowMinimum is returned when a deposit request is under the asset's
// minimum.
var ErrBelowMinimum = errors.New("deposit below asset minimum")

// InvoiceCreator is the slice of the payment client the facade needs.
type InvoiceCreator interface {
	CreateInvoice(ctx context.Context, params cryptopay.CreateInvoiceParams) (*models.ProviderInvoice, error)
}

// RateQuoter converts between fiat and crypto at cached rates.
type RateQuoter interface {
	QuoteCryptoForFiat(ctx context.Context, asset models.Asset, fiat models.FiatAmount) (models.CryptoAmount, time.Time, error)
	QuoteFiatForCrypto(ctx context.Context, asset models.Asset, amount decimal.Decimal) (models.FiatAmount, error)
}

// OrphanSink adopts provider invoices whose local record failed to persist.
type OrphanSink interface {
	Adopt(orphan models.OrphanInvoice)
}

// Facade is the single entry point the chat layer uses. It is handed to the
// chat layer by reference at startup; it holds no state beyond its
// collaborators and a shutdown flag.
type Facade struct {
	ledger   store.Ledger
	registry store.InvoiceRegistry
	rates    RateQuoter
	client   InvoiceCreator
	orphans  OrphanSink

	minimums map[models.Asset]models.FiatAmount
	closed   atomic.Bool
}

// Config wires a Facade.
type Config struct {
	Ledger   store.Ledger
	Registry store.InvoiceRegistry
	Rates    RateQuoter
	Client   InvoiceCreator
	Orphans  OrphanSink
	Assets   []common.AssetConfig
}

func New(cfg Config) *Facade {
	minimums := make(map[models.Asset]models.FiatAmount, len(cfg.Assets))
	for _, a := range cfg.Assets {
		minimums[a.Symbol] = models.FiatFromCents(a.MinDepositCents)
	}

	return &Facade{
		ledger:   cfg.Ledger,
		registry: cfg.Registry,
		rates:    cfg.Rates,
		client:   cfg.Client,
		orphans:  cfg.Orphans,
		minimums: minimums,
	}
}

// Close stops the facade from accepting new requests. In-flight background
// work is unaffected.
func (f *Facade) Close() {
	f.closed.Store(true)
}

func (f *Facade) guard() error {
	if f.closed.Load() {
		return ErrClosed
	}
	return nil
}

// Quote converts a fiat amount into the asset at the current cached rate.
func (f *Facade) Quote(ctx context.Context, asset models.Asset, fiat models.FiatAmount) (models.CryptoAmount, time.Time, error) {
	if err := f.guard(); err != nil {
		return models.CryptoAmount{}, time.Time{}, err
	}
	return f.rates.QuoteCryptoForFiat(ctx, asset, fiat)
}

// CreateDeposit quotes a crypto amount, creates a provider invoice, and
// records it locally. If local persistence fails after the provider invoice
// exists, the invoice is handed to the orphan sink so the reconciliation
// loop adopts it by provider id on its next pass.
func (f *Facade) CreateDeposit(ctx context.Context, user int64, fiat models.FiatAmount, asset models.Asset) (*models.DepositInvoice, error) {
	if err := f.guard(); err != nil {
		return nil, err
	}
	if fiat <= 0 {
		return nil, fmt.Errorf("deposit amount must be positive")
	}
	if min, ok := f.minimums[asset]; ok && fiat < min {
		return nil, fmt.Errorf("%w: %s requires at least %s", ErrBelowMinimum, asset, min)
	}

	crypto, _, err := f.rates.QuoteCryptoForFiat(ctx, asset, fiat)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	expiresAt := now.Add(depositExpiry)

	provider, err := f.client.CreateInvoice(ctx, cryptopay.CreateInvoiceParams{
		Asset:         asset,
		Amount:        crypto.Value.StringFixed(models.CryptoPrecision),
		Description:   fmt.Sprintf("Casino deposit - %s USD", fiat),
		HiddenMessage: strconv.FormatInt(user, 10),
		ExpiresIn:     int(depositExpiry.Seconds()),
	})
	if err != nil {
		return nil, err
	}

	_, err = f.registry.RecordCreated(ctx, store.InvoiceRecordParams{
		User:              user,
		ProviderInvoiceID: provider.InvoiceID,
		Asset:             asset,
		CryptoAmount:      crypto.Value,
		FiatAtIssue:       fiat,
		CreatedAt:         now,
		ExpiresAt:         expiresAt,
	})
	if err != nil {
		// The provider invoice exists and is payable; never drop it.
		zap.L().Warn("Invoice persisted at provider but not locally, queueing for adoption",
			zap.Int64("provider_invoice_id", provider.InvoiceID),
			zap.Int64("user", user),
			zap.Error(err))
		f.orphans.Adopt(models.OrphanInvoice{
			User:              user,
			ProviderInvoiceID: provider.InvoiceID,
			Asset:             asset,
			CryptoAmount:      crypto.Value,
			FiatAtIssue:       fiat,
			CreatedAt:         now,
			ExpiresAt:         expiresAt,
		})
	}

	zap.L().Info("Deposit invoice created",
		zap.Int64("provider_invoice_id", provider.InvoiceID),
		zap.Int64("user", user),
		zap.String("asset", string(asset)),
		zap.String("fiat", fiat.String()),
		zap.String("crypto", crypto.String()))

	return &models.DepositInvoice{
		InvoiceID:    provider.InvoiceID,
		PayURL:       provider.PayURL,
		MiniAppURL:   provider.MiniAppInvoiceURL,
		CryptoAmount: crypto,
		FiatAmount:   fiat,
		ExpiresAt:    expiresAt,
	}, nil
}

// Balance returns the user's current fiat balance.
func (f *Facade) Balance(ctx context.Context, user int64) (models.FiatAmount, error) {
	if err := f.guard(); err != nil {
		return 0, err
	}
	return f.ledger.Balance(ctx, user)
}

// Debit removes funds from the user's balance.
func (f *Facade) Debit(ctx context.Context, user int64, amount models.FiatAmount, reason models.Reason, idempotencyKey string) (*models.LedgerEntry, error) {
	if err := f.guard(); err != nil {
		return nil, err
	}
	return f.ledger.Debit(ctx, user, amount, reason, idempotencyKey)
}

// Credit adds funds to the user's balance.
func (f *Facade) Credit(ctx context.Context, user int64, amount models.FiatAmount, reason models.Reason, idempotencyKey string) (*models.LedgerEntry, error) {
	if err := f.guard(); err != nil {
		return nil, err
	}
	return f.ledger.Credit(ctx, user, amount, reason, idempotencyKey)
}

// History returns the user's most recent ledger entries, newest first.
func (f *Facade) History(ctx context.Context, user int64, limit int, before time.Time) ([]models.LedgerEntry, error) {
	if err := f.guard(); err != nil {
		return nil, err
	}
	return f.ledger.History(ctx, user, limit, before)
}
