package rates

import (
	"context"
	"fmt"
	"sync"
	"time"

	"casino-payments-go/internal/models"
	"casino-payments-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Fetcher fetches the full rate table from the payment provider.
type Fetcher interface {
	GetExchangeRates(ctx context.Context) ([]models.ExchangeRate, error)
}

type cachedRate struct {
	rate       decimal.Decimal // USD per unit of the asset
	observedAt time.Time
}

// Cache serves crypto<->USD conversions from a periodically refreshed rate
// table. Rates older than SoftTTL are lazily refreshed on read; rates older
// than HardTTL make quote operations fail with ErrRateUnavailable. Failed
// refreshes never evict existing rates before the hard ceiling.
type Cache struct {
	fetcher Fetcher
	softTTL time.Duration
	hardTTL time.Duration

	mu          sync.RWMutex
	rates       map[models.Asset]cachedRate
	lastRefresh time.Time

	// At most one refresh in flight; concurrent readers keep seeing the
	// previous table until the new one is swapped in.
	group singleflight.Group
}

func NewCache(fetcher Fetcher, cfg models.RatesConfig) *Cache {
	return &Cache{
		fetcher: fetcher,
		softTTL: cfg.SoftTTL,
		hardTTL: cfg.HardTTL,
		rates:   make(map[models.Asset]cachedRate),
	}
}

// Refresh refetches all rates from the provider. Invalid or non-USD pairs
// are skipped.
func (c *Cache) Refresh(ctx context.Context) error {
	_, err, _ := c.group.Do("refresh", func() (any, error) {
		return nil, c.refresh(ctx)
	})
	return err
}

func (c *Cache) refresh(ctx context.Context) error {
	fetched, err := c.fetcher.GetExchangeRates(ctx)
	if err != nil {
		return fmt.Errorf("refresh rates: %w", err)
	}

	now := time.Now().UTC()
	updated := 0

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, r := range fetched {
		if r.Target != "USD" || !r.IsValid {
			continue
		}
		asset, err := models.ParseAsset(r.Source)
		if err != nil {
			continue
		}
		rate, err := decimal.NewFromString(r.Rate)
		if err != nil || rate.LessThanOrEqual(decimal.Zero) {
			zap.L().Warn("Skipping unparseable exchange rate",
				zap.String("asset", r.Source),
				zap.String("rate", r.Rate))
			continue
		}
		c.rates[asset] = cachedRate{rate: rate, observedAt: now}
		updated++
	}

	if updated == 0 {
		return fmt.Errorf("refresh rates: provider returned no usable USD rates")
	}

	c.lastRefresh = now
	zap.L().Debug("Exchange rates refreshed", zap.Int("assets", updated))
	return nil
}

// Run refreshes the table at the configured interval until ctx is cancelled.
// Refresh failures are logged; existing rates stay in place until HardTTL.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				zap.L().Warn("Background rate refresh failed", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}

// rateFor returns a usable rate for the asset, lazily refreshing a stale one.
func (c *Cache) rateFor(ctx context.Context, asset models.Asset) (cachedRate, error) {
	c.mu.RLock()
	cached, ok := c.rates[asset]
	c.mu.RUnlock()

	age := time.Since(cached.observedAt)
	if !ok || age > c.softTTL {
		if err := c.Refresh(ctx); err != nil {
			zap.L().Warn("Lazy rate refresh failed",
				zap.String("asset", string(asset)),
				zap.Error(err))
		}
		c.mu.RLock()
		cached, ok = c.rates[asset]
		c.mu.RUnlock()
	}

	if !ok || time.Since(cached.observedAt) > c.hardTTL {
		return cachedRate{}, fmt.Errorf("%w: %s", store.ErrRateUnavailable, asset)
	}
	return cached, nil
}

// QuoteCryptoForFiat converts a USD amount into the asset, rounding the
// crypto amount up to the asset's smallest unit so the user never underpays.
func (c *Cache) QuoteCryptoForFiat(ctx context.Context, asset models.Asset, fiat models.FiatAmount) (models.CryptoAmount, time.Time, error) {
	if fiat.IsNegative() {
		return models.CryptoAmount{}, time.Time{}, fmt.Errorf("fiat amount cannot be negative")
	}

	cached, err := c.rateFor(ctx, asset)
	if err != nil {
		return models.CryptoAmount{}, time.Time{}, err
	}

	quantity := fiat.Decimal().Div(cached.rate).RoundCeil(models.CryptoPrecision)
	// Division is computed at finite precision; bump one smallest unit if
	// the rounded quantity still converts below the requested fiat value.
	if quantity.Mul(cached.rate).LessThan(fiat.Decimal()) {
		quantity = quantity.Add(decimal.New(1, -models.CryptoPrecision))
	}

	return models.NewCryptoAmount(asset, quantity), cached.observedAt, nil
}

// QuoteFiatForCrypto converts an asset amount into USD, rounding down to the
// cent so the house never over-credits.
func (c *Cache) QuoteFiatForCrypto(ctx context.Context, asset models.Asset, amount decimal.Decimal) (models.FiatAmount, error) {
	if amount.IsNegative() {
		return 0, fmt.Errorf("crypto amount cannot be negative")
	}

	cached, err := c.rateFor(ctx, asset)
	if err != nil {
		return 0, err
	}

	usd := amount.Mul(cached.rate).RoundFloor(2)
	return models.FiatFromDecimal(usd), nil
}

// LastRefresh reports when the table was last successfully refreshed.
func (c *Cache) LastRefresh() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastRefresh
}

// HasFreshRate reports whether at least one rate is within the hard ceiling.
func (c *Cache) HasFreshRate() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, cached := range c.rates {
		if time.Since(cached.observedAt) <= c.hardTTL {
			return true
		}
	}
	return false
}
