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

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"casino-payments-go/internal/models"
)

const (
	defaultBaseURL = "https://pay.crypt.bot/api"
	defaultPort    = 10000
)

func Load() (*models.Config, error) {
	reconcileInterval, err := getEnvSeconds("RECONCILE_INTERVAL_SECONDS", 20*time.Second)
	if err != nil {
		return nil, err
	}

	rateRefreshInterval, err := getEnvSeconds("RATE_REFRESH_INTERVAL_SECONDS", 30*time.Second)
	if err != nil {
		return nil, err
	}

	connMaxLifetime, err := getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	connMaxIdleTime, err := getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Second)
	if err != nil {
		return nil, err
	}

	pingTimeout, err := getEnvDuration("DB_PING_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	return &models.Config{
		Provider: models.ProviderConfig{
			// Required for anything that talks to the provider; the
			// client constructor enforces presence.
			Token:          getEnvString("CRYPTOBOT_API_TOKEN", ""),
			BaseURL:        getEnvString("CRYPTOBOT_API_URL", defaultBaseURL),
			RequestTimeout: 30 * time.Second,
		},
		Database: models.DatabaseConfig{
			Path:            getEnvString("LEDGER_PATH", "casino.db"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: connMaxLifetime,
			ConnMaxIdleTime: connMaxIdleTime,
			PingTimeout:     pingTimeout,
		},
		Reconciler: models.ReconcilerConfig{
			Interval:      reconcileInterval,
			PendingMinAge: 30 * time.Second,
			ExpiryGrace:   5 * time.Minute,
			PageSize:      100,
		},
		Rates: models.RatesConfig{
			RefreshInterval: rateRefreshInterval,
			SoftTTL:         60 * time.Second,
			HardTTL:         10 * time.Minute,
		},
		Health: models.HealthConfig{
			Port: getEnvInt("PORT", defaultPort),
		},
		AssetsFile: getEnvString("ASSETS_FILE", ""),
	}, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvSeconds reads a plain integer number of seconds, the unit the hosting
// platform's variables use.
func getEnvSeconds(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		seconds, err := strconv.Atoi(value)
		if err != nil || seconds <= 0 {
			return 0, fmt.Errorf("invalid seconds for %s: %q", key, value)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	return defaultValue, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
