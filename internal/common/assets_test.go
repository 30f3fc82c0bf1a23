package common

import (
	"os"
	"path/filepath"
	"testing"

	"casino-payments-go/internal/models"
)

func writeAssetsFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "assets.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write assets file: %v", err)
	}
	return path
}

func TestLoadAssetConfig(t *testing.T) {
	path := writeAssetsFile(t, `
assets:
  - symbol: LTC
    min_deposit_cents: 200
  - symbol: TON
`)

	assets, err := LoadAssetConfig(path)
	if err != nil {
		t.Fatalf("LoadAssetConfig failed: %v", err)
	}
	if len(assets) != 2 {
		t.Fatalf("Expected 2 assets, got %d", len(assets))
	}
	if assets[0].Symbol != models.AssetLTC || assets[0].MinDepositCents != 200 {
		t.Errorf("Unexpected first asset: %+v", assets[0])
	}
	// Missing minimum falls back to the default.
	if assets[1].Symbol != models.AssetTON || assets[1].MinDepositCents != 100 {
		t.Errorf("Unexpected second asset: %+v", assets[1])
	}
}

func TestLoadAssetConfig_EmptyPathUsesDefaults(t *testing.T) {
	assets, err := LoadAssetConfig("")
	if err != nil {
		t.Fatalf("LoadAssetConfig failed: %v", err)
	}
	if len(assets) != len(models.SupportedAssets) {
		t.Fatalf("Expected %d default assets, got %d", len(models.SupportedAssets), len(assets))
	}
	for _, a := range assets {
		if a.MinDepositCents != 100 {
			t.Errorf("Expected default minimum for %s, got %d", a.Symbol, a.MinDepositCents)
		}
	}
}

func TestLoadAssetConfig_RejectsUnsupportedAsset(t *testing.T) {
	path := writeAssetsFile(t, `
assets:
  - symbol: DOGE
`)
	if _, err := LoadAssetConfig(path); err == nil {
		t.Fatal("Expected error for unsupported asset")
	}
}

func TestLoadAssetConfig_RejectsNegativeMinimum(t *testing.T) {
	path := writeAssetsFile(t, `
assets:
  - symbol: LTC
    min_deposit_cents: -5
`)
	if _, err := LoadAssetConfig(path); err == nil {
		t.Fatal("Expected error for negative minimum")
	}
}

func TestLoadAssetConfig_MissingFile(t *testing.T) {
	if _, err := LoadAssetConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("Expected error for missing file")
	}
}
