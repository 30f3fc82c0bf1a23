package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Asset is a supported crypto asset code.
type Asset string

const (
	AssetLTC  Asset = "LTC"
	AssetTON  Asset = "TON"
	AssetSOL  Asset = "SOL"
	AssetUSDT Asset = "USDT"
	AssetBTC  Asset = "BTC"
	AssetETH  Asset = "ETH"
)

// CryptoPrecision is the number of fractional digits carried for every
// supported asset. It matches the provider's native precision.
const CryptoPrecision = 8

// SupportedAssets lists the assets the payment core accepts, in display order.
var SupportedAssets = []Asset{AssetLTC, AssetTON, AssetSOL, AssetUSDT, AssetBTC, AssetETH}

// ParseAsset validates an asset code coming from the chat layer.
func ParseAsset(s string) (Asset, error) {
	for _, a := range SupportedAssets {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("unsupported asset %q", s)
}

// FiatAmount is a USD value in hundredths of a cent (1 USD = 10000 units).
// Arithmetic on it is exact integer arithmetic. Ledger deltas reuse the type
// with a sign.
type FiatAmount int64

// fiatUnitsPerCent and fiatUnitsPerDollar pin the fixed-point scale.
const (
	fiatUnitsPerCent   = 100
	fiatUnitsPerDollar = 10000
)

// FiatFromCents builds a FiatAmount from whole USD cents.
func FiatFromCents(cents int64) FiatAmount {
	return FiatAmount(cents * fiatUnitsPerCent)
}

// FiatFromDecimal converts a decimal USD value, truncating anything beyond
// hundredths of a cent.
func FiatFromDecimal(usd decimal.Decimal) FiatAmount {
	return FiatAmount(usd.Mul(decimal.NewFromInt(fiatUnitsPerDollar)).IntPart())
}

// Cents returns the amount in whole USD cents, truncating sub-cent units.
func (f FiatAmount) Cents() int64 {
	return int64(f) / fiatUnitsPerCent
}

// Decimal returns the amount as a decimal USD value.
func (f FiatAmount) Decimal() decimal.Decimal {
	return decimal.New(int64(f), 0).Div(decimal.NewFromInt(fiatUnitsPerDollar))
}

func (f FiatAmount) IsNegative() bool {
	return f < 0
}

// String renders the amount as dollars, e.g. "$10.00". Sub-cent units are
// shown only when present.
func (f FiatAmount) String() string {
	sign := ""
	v := int64(f)
	if v < 0 {
		sign = "-"
		v = -v
	}
	if v%fiatUnitsPerCent == 0 {
		return fmt.Sprintf("%s$%d.%02d", sign, v/fiatUnitsPerDollar, (v%fiatUnitsPerDollar)/fiatUnitsPerCent)
	}
	return fmt.Sprintf("%s$%d.%04d", sign, v/fiatUnitsPerDollar, v%fiatUnitsPerDollar)
}

// CryptoAmount is a non-negative quantity of a specific asset. The asset is
// part of the value; callers must never mix amounts of different assets.
type CryptoAmount struct {
	Asset Asset
	Value decimal.Decimal
}

func NewCryptoAmount(asset Asset, value decimal.Decimal) CryptoAmount {
	return CryptoAmount{Asset: asset, Value: value}
}

func (c CryptoAmount) String() string {
	return fmt.Sprintf("%s %s", c.Value.StringFixed(CryptoPrecision), c.Asset)
}
