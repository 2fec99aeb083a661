package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"payPlanner/internal/indexer"
	"payPlanner/internal/lifecycle"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print or clear an account's stored payment history",
		RunE:  runHistory,
	}

	addStorageFlags(cmd)
	cmd.Flags().Bool("clear", false, "delete every stored entry of the account")
	cmd.Flags().Bool("reconcile", false, "merge deposits from the remote indexer before printing")

	return cmd
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	account, _ := cmd.Flags().GetString("account")
	clearHistory, _ := cmd.Flags().GetBool("clear")
	reconcile, _ := cmd.Flags().GetBool("reconcile")
	if !common.IsHexAddress(account) {
		return fmt.Errorf("account address is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	accounts, release, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer release()

	var remote lifecycle.RemoteIndexer
	if reconcile && !clearHistory {
		remote = indexer.NewClient(indexer.Config{
			BaseURL: cfg.IndexerURL,
			Timeout: cfg.HTTPTimeout,
			Retries: cfg.IndexerRetries,
			Backoff: cfg.IndexerBackoff,
		}, logger)
	}

	store := lifecycle.NewStore(accounts, nil, remote, lifecycle.Config{PollInterval: cfg.PollInterval}, logger, nil)
	defer store.Close()
	if err := store.Init(ctx, account); err != nil {
		return fmt.Errorf("init history: %w", err)
	}

	if clearHistory {
		if err := store.Clear(ctx); err != nil {
			return err
		}
		logger.Info("history cleared", zap.String("account", store.Account()))
		return nil
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(store.Snapshot()); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	return nil
}
