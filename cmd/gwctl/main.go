// Package main implements gwctl, the gateway's local operator CLI. It runs
// directly against the catalog file and master key on disk, not through the
// HTTP API, so it keeps working even when the gateway process is down.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/akz4ol/sqlgateway/internal/audit"
	"github.com/akz4ol/sqlgateway/internal/catalog"
	"github.com/akz4ol/sqlgateway/internal/config"
	"github.com/akz4ol/sqlgateway/internal/crypto"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	catalogPath   string
	masterKeyPath string
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cfg, _ := config.Load()

	root := &cobra.Command{
		Use:   "gwctl",
		Short: "Operator CLI for the SQL gateway's catalog store",
		Long: `gwctl performs maintenance operations against the gateway's embedded
catalog directly: rotating the password-encryption master key and purging
old audit log entries. It does not require the gateway process to be running.`,
	}

	defaultCatalogPath := "./data/catalog.db"
	defaultMasterKeyPath := "./data/master.key"
	if cfg != nil {
		defaultCatalogPath = cfg.Storage.CatalogPath
		defaultMasterKeyPath = cfg.Storage.MasterKeyPath
	}

	root.PersistentFlags().StringVar(&catalogPath, "catalog", defaultCatalogPath, "path to the catalog SQLite file")
	root.PersistentFlags().StringVar(&masterKeyPath, "master-key", defaultMasterKeyPath, "path to the master key file")

	root.AddCommand(rotateKeyCmd())
	root.AddCommand(purgeLogsCmd())
	return root
}

func openStore(ctx context.Context) (*catalog.Store, error) {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	return catalog.Open(ctx, catalogPath, logger)
}

func rotateKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rotate-key",
		Short: "Rotate the master encryption key and re-encrypt all stored connection passwords",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			store, err := openStore(ctx)
			if err != nil {
				return fmt.Errorf("open catalog: %w", err)
			}
			defer store.Close()

			oldKey, err := crypto.NewMasterKey(masterKeyPath)
			if err != nil {
				return fmt.Errorf("load master key: %w", err)
			}

			ciphertexts, err := store.ListConnectionPasswordCiphertexts(ctx)
			if err != nil {
				return fmt.Errorf("list connection passwords: %w", err)
			}

			ids := make([]string, 0, len(ciphertexts))
			blobs := make([][]byte, 0, len(ciphertexts))
			for id, ct := range ciphertexts {
				ids = append(ids, id)
				blobs = append(blobs, ct)
			}

			_, rotated, err := crypto.RotateMasterKey(masterKeyPath, oldKey, blobs)
			if err != nil {
				return fmt.Errorf("rotate master key: %w", err)
			}

			for i, id := range ids {
				if err := store.UpdateConnectionCiphertext(ctx, id, rotated[i]); err != nil {
					return fmt.Errorf("update connection %s: %w", id, err)
				}
			}

			fmt.Printf("rotated master key and re-encrypted %d connection password(s)\n", len(ids))
			return nil
		},
	}
}

func purgeLogsCmd() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "purge-logs",
		Short: "Delete audit log entries older than the given retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			store, err := openStore(ctx)
			if err != nil {
				return fmt.Errorf("open catalog: %w", err)
			}
			defer store.Close()

			cutoff := audit.Since(olderThan)
			n, err := store.PurgeLogsOlderThan(ctx, cutoff)
			if err != nil {
				return fmt.Errorf("purge logs: %w", err)
			}

			fmt.Printf("purged %d log entr(ies) older than %s\n", n, cutoff.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "retention window; entries older than this are deleted")
	return cmd
}
