package models

import "time"

// Config represents the application configuration
type Config struct {
	Provider   ProviderConfig
	Database   DatabaseConfig
	Reconciler ReconcilerConfig
	Rates      RatesConfig
	Health     HealthConfig
	AssetsFile string
}

// ProviderConfig holds CryptoBot API settings
type ProviderConfig struct {
	Token          string
	BaseURL        string
	RequestTimeout time.Duration
}

// DatabaseConfig holds ledger store connection settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// ReconcilerConfig holds reconciliation loop settings
type ReconcilerConfig struct {
	Interval      time.Duration
	PendingMinAge time.Duration
	ExpiryGrace   time.Duration
	PageSize      int
}

// RatesConfig holds exchange-rate cache settings
type RatesConfig struct {
	RefreshInterval time.Duration
	SoftTTL         time.Duration
	HardTTL         time.Duration
}

// HealthConfig holds health server settings
type HealthConfig struct {
	Port int
}
