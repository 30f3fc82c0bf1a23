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

package main

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	"casino-payments-go/internal/common"
	"casino-payments-go/internal/config"
	"casino-payments-go/internal/models"

	"go.uber.org/zap"
)

const reportWidth = 80

func printHeader(title string) {
	fmt.Println("\n" + strings.Repeat("=", reportWidth))
	fmt.Println(title)
	fmt.Println(strings.Repeat("=", reportWidth))
}

func printFooter(message string) {
	fmt.Println("\n" + strings.Repeat("=", reportWidth))
	fmt.Println(message)
	fmt.Println(strings.Repeat("=", reportWidth) + "\n")
}

func entryPrefix(isLast bool) string {
	if isLast {
		return "└  "
	}
	return "│  "
}

func formatKey(key string) string {
	if len(key) > 32 {
		return key[:32] + "..."
	}
	return key
}

func printEntries(entries []models.LedgerEntry) {
	for i, entry := range entries {
		prefix := entryPrefix(i == len(entries)-1)
		fmt.Printf("%s %-12s %12s -> %12s  %s (%s)\n",
			prefix,
			entry.Reason,
			entry.Delta.String(),
			entry.ResultingBalance.String(),
			entry.CreatedAt.Format("2006-01-02 15:04:05"),
			formatKey(entry.IdempotencyKey))
	}
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	userFlag := flag.Int64("user", 0, "User id to report on (required)")
	limitFlag := flag.Int("limit", 20, "Number of recent ledger entries to show")
	flag.Parse()

	if *userFlag == 0 {
		logger.Fatal("The -user flag is required")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	logger.Info("Connecting to ledger", zap.String("path", cfg.Database.Path))
	store, err := common.InitializeStoreOnly(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize ledger store", zap.Error(err))
	}
	defer store.Close()

	balance, err := store.Balance(ctx, *userFlag)
	if err != nil {
		logger.Fatal("Failed to get balance", zap.Error(err))
	}

	entries, err := store.History(ctx, *userFlag, *limitFlag, time.Time{})
	if err != nil {
		logger.Fatal("Failed to get history", zap.Error(err))
	}

	printHeader("USER BALANCE REPORT")
	fmt.Printf("\n┌─ User: %d\n", *userFlag)
	fmt.Printf("│  Balance: %s\n", balance)
	fmt.Printf("│  Recent entries: %d\n", len(entries))
	fmt.Println("├" + strings.Repeat("─", reportWidth-2))
	printEntries(entries)

	if err := store.Audit(ctx, *userFlag); err != nil {
		printFooter(fmt.Sprintf("AUDIT FAILED: %v", err))
		logger.Fatal("Ledger audit failed", zap.Error(err))
	}

	printFooter(fmt.Sprintf("SUMMARY: balance %s across %d recent entries (journal audit passed)",
		balance, len(entries)))

	logger.Info("Balance query completed",
		zap.Int64("user", *userFlag),
		zap.Int("entries", len(entries)))
}
