package rates

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"casino-payments-go/internal/models"
	"casino-payments-go/internal/store"

	"github.com/shopspring/decimal"
)

type fakeFetcher struct {
	rates []models.ExchangeRate
	err   error
	calls int
}

func (f *fakeFetcher) GetExchangeRates(ctx context.Context) ([]models.ExchangeRate, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.rates, nil
}

func usdRate(asset, rate string) models.ExchangeRate {
	return models.ExchangeRate{Source: asset, Target: "USD", Rate: rate, IsValid: true}
}

func newTestCache(t *testing.T, fetcher *fakeFetcher) *Cache {
	t.Helper()
	c := NewCache(fetcher, models.RatesConfig{
		RefreshInterval: time.Minute,
		SoftTTL:         time.Minute,
		HardTTL:         10 * time.Minute,
	})
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Initial refresh failed: %v", err)
	}
	return c
}

func TestQuoteCryptoForFiat_RoundsUp(t *testing.T) {
	fetcher := &fakeFetcher{rates: []models.ExchangeRate{usdRate("LTC", "80")}}
	c := newTestCache(t, fetcher)

	// $10.00 at $80/LTC divides evenly: exactly 0.125 LTC.
	amount, observedAt, err := c.QuoteCryptoForFiat(context.Background(), models.AssetLTC, models.FiatFromCents(1000))
	if err != nil {
		t.Fatalf("Quote failed: %v", err)
	}
	if !amount.Value.Equal(decimal.RequireFromString("0.125")) {
		t.Errorf("Expected 0.125 LTC, got %s", amount.Value)
	}
	if amount.Asset != models.AssetLTC {
		t.Errorf("Expected LTC, got %s", amount.Asset)
	}
	if observedAt.IsZero() {
		t.Error("Expected a rate observation timestamp")
	}
}

func TestQuoteCryptoForFiat_NeverUnderpays(t *testing.T) {
	// An awkward rate forces rounding on every quote.
	rate := decimal.RequireFromString("67.123456789")
	fetcher := &fakeFetcher{rates: []models.ExchangeRate{usdRate("LTC", rate.String())}}
	c := newTestCache(t, fetcher)

	for cents := int64(1); cents <= 2000; cents += 37 {
		fiat := models.FiatFromCents(cents)
		amount, _, err := c.QuoteCryptoForFiat(context.Background(), models.AssetLTC, fiat)
		if err != nil {
			t.Fatalf("Quote for %s failed: %v", fiat, err)
		}
		if amount.Value.Mul(rate).LessThan(fiat.Decimal()) {
			t.Errorf("Quote for %s underpays: %s LTC is worth %s USD",
				fiat, amount.Value, amount.Value.Mul(rate))
		}
	}
}

func TestQuoteFiatForCrypto_RoundsDown(t *testing.T) {
	fetcher := &fakeFetcher{rates: []models.ExchangeRate{usdRate("TON", "5.4321")}}
	c := newTestCache(t, fetcher)

	// 1.5 TON * 5.4321 = 8.14815 USD, floors to $8.14.
	fiat, err := c.QuoteFiatForCrypto(context.Background(), models.AssetTON, decimal.RequireFromString("1.5"))
	if err != nil {
		t.Fatalf("Quote failed: %v", err)
	}
	if fiat != models.FiatFromCents(814) {
		t.Errorf("Expected $8.14, got %s", fiat)
	}
}

func TestQuoteRoundTrip_NeverOverCredits(t *testing.T) {
	rate := decimal.RequireFromString("113.7919")
	fetcher := &fakeFetcher{rates: []models.ExchangeRate{usdRate("SOL", rate.String())}}
	c := newTestCache(t, fetcher)
	ctx := context.Background()

	for cents := int64(100); cents <= 5000; cents += 113 {
		fiat := models.FiatFromCents(cents)
		amount, _, err := c.QuoteCryptoForFiat(ctx, models.AssetSOL, fiat)
		if err != nil {
			t.Fatalf("Forward quote failed: %v", err)
		}
		back, err := c.QuoteFiatForCrypto(ctx, models.AssetSOL, amount.Value)
		if err != nil {
			t.Fatalf("Reverse quote failed: %v", err)
		}
		// Crediting the exact quoted quantity at the same rate must land on
		// the requested fiat amount once floored to the cent.
		if back < fiat {
			t.Errorf("Round trip of %s credits only %s", fiat, back)
		}
		if back > fiat+models.FiatFromCents(1) {
			t.Errorf("Round trip of %s over-credits to %s", fiat, back)
		}
	}
}

func TestRefresh_SkipsUnusableRates(t *testing.T) {
	fetcher := &fakeFetcher{rates: []models.ExchangeRate{
		usdRate("LTC", "80"),
		{Source: "LTC", Target: "EUR", Rate: "75", IsValid: true},
		{Source: "TON", Target: "USD", Rate: "5", IsValid: false},
		usdRate("DOGE", "0.2"), // unsupported asset
		usdRate("SOL", "not-a-number"),
	}}
	c := newTestCache(t, fetcher)

	if _, _, err := c.QuoteCryptoForFiat(context.Background(), models.AssetLTC, models.FiatFromCents(100)); err != nil {
		t.Errorf("Expected usable LTC rate, got %v", err)
	}
	for _, asset := range []models.Asset{models.AssetTON, models.AssetSOL} {
		_, _, err := c.QuoteCryptoForFiat(context.Background(), asset, models.FiatFromCents(100))
		if !errors.Is(err, store.ErrRateUnavailable) {
			t.Errorf("Expected ErrRateUnavailable for %s, got %v", asset, err)
		}
	}
}

func TestRefresh_NoUsableRates(t *testing.T) {
	fetcher := &fakeFetcher{rates: []models.ExchangeRate{
		{Source: "LTC", Target: "USD", Rate: "80", IsValid: false},
	}}
	c := NewCache(fetcher, models.RatesConfig{SoftTTL: time.Minute, HardTTL: 10 * time.Minute})

	if err := c.Refresh(context.Background()); err == nil {
		t.Fatal("Expected refresh error when no rates are usable")
	}
	if c.HasFreshRate() {
		t.Error("Expected no fresh rates")
	}
}

func TestQuote_StaleBeyondHardTTL(t *testing.T) {
	fetcher := &fakeFetcher{rates: []models.ExchangeRate{usdRate("LTC", "80")}}
	c := NewCache(fetcher, models.RatesConfig{
		SoftTTL: 10 * time.Millisecond,
		HardTTL: 30 * time.Millisecond,
	})
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Initial refresh failed: %v", err)
	}

	// Fetcher starts failing; rates age out past the hard ceiling.
	fetcher.err = fmt.Errorf("provider down")
	time.Sleep(50 * time.Millisecond)

	_, _, err := c.QuoteCryptoForFiat(context.Background(), models.AssetLTC, models.FiatFromCents(100))
	if !errors.Is(err, store.ErrRateUnavailable) {
		t.Fatalf("Expected ErrRateUnavailable, got %v", err)
	}
}

func TestQuote_LazyRefreshPastSoftTTL(t *testing.T) {
	fetcher := &fakeFetcher{rates: []models.ExchangeRate{usdRate("LTC", "80")}}
	c := NewCache(fetcher, models.RatesConfig{
		SoftTTL: 10 * time.Millisecond,
		HardTTL: 10 * time.Minute,
	})
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Initial refresh failed: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	fetcher.rates = []models.ExchangeRate{usdRate("LTC", "100")}

	amount, _, err := c.QuoteCryptoForFiat(context.Background(), models.AssetLTC, models.FiatFromCents(1000))
	if err != nil {
		t.Fatalf("Quote failed: %v", err)
	}
	if !amount.Value.Equal(decimal.RequireFromString("0.1")) {
		t.Errorf("Expected quote at refreshed rate (0.1 LTC), got %s", amount.Value)
	}
	if fetcher.calls != 2 {
		t.Errorf("Expected a lazy refresh, fetcher called %d times", fetcher.calls)
	}
}

func TestQuote_SurvivesFailedRefreshWithinHardTTL(t *testing.T) {
	fetcher := &fakeFetcher{rates: []models.ExchangeRate{usdRate("LTC", "80")}}
	c := NewCache(fetcher, models.RatesConfig{
		SoftTTL: 10 * time.Millisecond,
		HardTTL: 10 * time.Minute,
	})
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Initial refresh failed: %v", err)
	}

	fetcher.err = fmt.Errorf("provider down")
	time.Sleep(20 * time.Millisecond)

	// Past soft TTL with a failing provider: the cached rate still serves.
	amount, _, err := c.QuoteCryptoForFiat(context.Background(), models.AssetLTC, models.FiatFromCents(1000))
	if err != nil {
		t.Fatalf("Quote failed despite cached rate: %v", err)
	}
	if !amount.Value.Equal(decimal.RequireFromString("0.125")) {
		t.Errorf("Expected 0.125 LTC from cached rate, got %s", amount.Value)
	}
}
