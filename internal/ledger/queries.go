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

const (
	// Ledger queries
	queryGetEntryByIdempotencyKey = `
		SELECT id, user_id, delta, reason, idempotency_key, resulting_balance, created_at
		FROM ledger_entries
		WHERE idempotency_key = ?`

	queryGetBalance = `
		SELECT balance, version
		FROM balances
		WHERE user_id = ?`

	queryInsertBalance = `
		INSERT INTO balances (user_id, balance, version) VALUES (?, ?, ?)`

	queryUpdateBalance = `
		UPDATE balances
		SET balance = ?, last_entry_id = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ? AND version = ?`

	queryInsertEntry = `
		INSERT INTO ledger_entries (id, user_id, delta, reason, idempotency_key, resulting_balance, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	queryGetHistory = `
		SELECT id, user_id, delta, reason, idempotency_key, resulting_balance, created_at
		FROM ledger_entries
		WHERE user_id = ? AND created_at < ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`

	querySumDeltas = `
		SELECT COALESCE(SUM(delta), 0)
		FROM ledger_entries
		WHERE user_id = ?`

	queryCountEntries = `
		SELECT COUNT(*) FROM ledger_entries`

	// Invoice queries
	queryInsertInvoice = `
		INSERT INTO invoices (provider_invoice_id, user_id, asset, crypto_amount, fiat_at_issue, status, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetInvoice = `
		SELECT provider_invoice_id, user_id, asset, crypto_amount, fiat_at_issue, status, created_at, expires_at, paid_at, credited_entry_id
		FROM invoices
		WHERE provider_invoice_id = ?`

	queryUpdateInvoiceStatus = `
		UPDATE invoices
		SET status = ?, paid_at = ?
		WHERE provider_invoice_id = ? AND status = 'PENDING'`

	queryLinkInvoiceEntry = `
		UPDATE invoices
		SET credited_entry_id = ?
		WHERE provider_invoice_id = ?`

	queryListPendingInvoices = `
		SELECT provider_invoice_id, user_id, asset, crypto_amount, fiat_at_issue, status, created_at, expires_at, paid_at, credited_entry_id
		FROM invoices
		WHERE status = 'PENDING' AND created_at <= ?
		ORDER BY created_at`

	queryCountPendingInvoices = `
		SELECT COUNT(*) FROM invoices WHERE status = 'PENDING'`

	queryListUncreditedInvoices = `
		SELECT provider_invoice_id, user_id, asset, crypto_amount, fiat_at_issue, status, created_at, expires_at, paid_at, credited_entry_id
		FROM invoices
		WHERE status = 'PAID' AND credited_entry_id IS NULL
		ORDER BY created_at`
)
