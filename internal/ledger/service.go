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

package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"casino-payments-go/internal/models"
	"casino-payments-go/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Compile-time checks: *Store must satisfy both store contracts.
var (
	_ store.Ledger          = (*Store)(nil)
	_ store.InvoiceRegistry = (*Store)(nil)
)

// Store is the SQLite-backed ledger and invoice registry.
type Store struct {
	db *sql.DB
}

func NewStore(ctx context.Context, cfg models.DatabaseConfig) (*Store, error) {
	// Validate configuration
	if cfg.Path == "" {
		return nil, fmt.Errorf("ledger path cannot be empty")
	}
	if cfg.MaxOpenConns <= 0 {
		return nil, fmt.Errorf("max open connections must be positive, got %d", cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns < 0 {
		return nil, fmt.Errorf("max idle connections cannot be negative, got %d", cfg.MaxIdleConns)
	}
	if cfg.PingTimeout <= 0 {
		return nil, fmt.Errorf("ping timeout must be positive, got %v", cfg.PingTimeout)
	}

	zap.L().Info("Opening ledger database", zap.String("file", cfg.Path))
	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=1000")
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, closeErr
		}
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, closeErr
		}
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}

	zap.L().Info("Ledger store initialized successfully")
	return s, nil
}

func (s *Store) Close() {
	if err := s.db.Close(); err != nil {
		zap.L().Warn("Failed to close database connection", zap.Error(err))
	}
}

// Ping reports whether the store is reachable; the health server calls it.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) initSchema() error {
	schema := `
	-- Balances Table (Current State - Hot Data)
	CREATE TABLE IF NOT EXISTS balances (
		user_id INTEGER PRIMARY KEY,
		balance INTEGER NOT NULL DEFAULT 0,
		last_entry_id TEXT,
		version INTEGER NOT NULL DEFAULT 1,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- Ledger Entries Table (Append-Only Journal - Cold Data)
	-- delta and resulting_balance are USD in hundredths of a cent.
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		delta INTEGER NOT NULL,
		reason TEXT NOT NULL,
		idempotency_key TEXT NOT NULL UNIQUE,
		resulting_balance INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_entries_user_id ON ledger_entries(user_id);
	CREATE INDEX IF NOT EXISTS idx_ledger_entries_created_at ON ledger_entries(created_at);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_ledger_entries_idempotency_key ON ledger_entries(idempotency_key);

	-- Invoices Table, keyed by the provider-assigned id.
	-- crypto_amount is the exact decimal string; fiat_at_issue is USD in
	-- hundredths of a cent.
	CREATE TABLE IF NOT EXISTS invoices (
		provider_invoice_id INTEGER PRIMARY KEY,
		user_id INTEGER NOT NULL,
		asset TEXT NOT NULL,
		crypto_amount TEXT NOT NULL,
		fiat_at_issue INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING',
		created_at TIMESTAMP NOT NULL,
		expires_at TIMESTAMP NOT NULL,
		paid_at TIMESTAMP,
		credited_entry_id TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_invoices_user_id ON invoices(user_id);
	CREATE INDEX IF NOT EXISTS idx_invoices_status ON invoices(status);
	CREATE INDEX IF NOT EXISTS idx_invoices_created_at ON invoices(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}
