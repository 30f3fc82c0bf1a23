package common

import (
	"context"
	"log"
	"strings"

	"casino-payments-go/internal/cryptopay"
	"casino-payments-go/internal/ledger"
	"casino-payments-go/internal/models"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	// Environment variables can also be set via other means (shell export,
	// docker, the hosting platform), so a missing .env is fine.
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
	} else {
		log.Println("Loaded environment variables from .env file")
	}
}

// Services bundles the long-lived collaborators the entrypoints wire up.
type Services struct {
	Store  *ledger.Store
	Client *cryptopay.Client
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	store, err := ledger.NewStore(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	client, err := cryptopay.NewClient(cfg.Provider)
	if err != nil {
		store.Close()
		return nil, err
	}

	return &Services{
		Store:  store,
		Client: client,
	}, nil
}

// InitializeStoreOnly opens just the ledger store, for read-only tooling
// that never talks to the payment provider.
func InitializeStoreOnly(ctx context.Context, cfg *models.Config) (*ledger.Store, error) {
	return ledger.NewStore(ctx, cfg.Database)
}

func (cs *Services) Close() {
	if cs.Store != nil {
		cs.Store.Close()
	}
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
