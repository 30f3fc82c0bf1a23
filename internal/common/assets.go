package common

import (
	"fmt"
	"os"
	"path/filepath"

	"casino-payments-go/internal/models"

	"gopkg.in/yaml.v2"
)

// defaultMinDepositCents applies to assets without an explicit minimum.
const defaultMinDepositCents = 100

type AssetConfig struct {
	Symbol          models.Asset `yaml:"symbol"`
	MinDepositCents int64        `yaml:"min_deposit_cents"`
}

type AssetsConfig struct {
	Assets []AssetConfig `yaml:"assets"`
}

// LoadAssetConfig reads the asset list from a yaml file. An empty path means
// the built-in defaults: every supported asset with the default minimum.
func LoadAssetConfig(assetsFile string) ([]AssetConfig, error) {
	if assetsFile == "" {
		return DefaultAssetConfig(), nil
	}

	var assetsPath string
	if filepath.IsAbs(assetsFile) {
		assetsPath = assetsFile
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		assetsPath = filepath.Join(wd, assetsFile)
	}

	data, err := os.ReadFile(assetsPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", assetsFile, err)
	}

	var config AssetsConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", assetsFile, err)
	}

	for i := range config.Assets {
		asset := &config.Assets[i]
		if asset.Symbol == "" {
			return nil, fmt.Errorf("asset at index %d missing symbol", i)
		}
		if _, err := models.ParseAsset(string(asset.Symbol)); err != nil {
			return nil, fmt.Errorf("asset at index %d: %w", i, err)
		}
		if asset.MinDepositCents < 0 {
			return nil, fmt.Errorf("asset at index %d has negative minimum deposit", i)
		}
		if asset.MinDepositCents == 0 {
			asset.MinDepositCents = defaultMinDepositCents
		}
	}

	return config.Assets, nil
}

// DefaultAssetConfig covers all supported assets with the default minimum.
func DefaultAssetConfig() []AssetConfig {
	assets := make([]AssetConfig, len(models.SupportedAssets))
	for i, symbol := range models.SupportedAssets {
		assets[i] = AssetConfig{Symbol: symbol, MinDepositCents: defaultMinDepositCents}
	}
	return assets
}
