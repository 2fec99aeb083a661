package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"payPlanner/internal/chain"
	"payPlanner/internal/indexer"
	"payPlanner/internal/lifecycle"
	"payPlanner/internal/model"
	"payPlanner/internal/pricing"
)

func newTrackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "track",
		Short: "Follow an account's payments until interrupted",
		RunE:  runTrack,
	}

	addStorageFlags(cmd)
	cmd.Flags().StringSlice("rpc", nil, "chain RPC endpoints for on-chain fill lookups (chainId=url)")
	cmd.Flags().StringSlice("spoke-pools", nil, "spoke pool addresses (chainId=address, comma-separated)")
	cmd.Flags().Duration("poll-interval", 10*time.Second, "delay between status polls")
	cmd.Flags().Uint64("log-lookback-blocks", 50000, "blocks scanned backwards for deposit and fill logs")
	cmd.Flags().Uint64("log-batch-size", 5000, "blocks per log query")
	cmd.Flags().String("metrics-addr", "", "prometheus listen address (empty disables)")

	return cmd
}

func runTrack(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	account, _ := cmd.Flags().GetString("account")
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

	recorder, err := serveMetrics(ctx, cfg.MetricsAddr, logger)
	if err != nil {
		return err
	}

	var tracker lifecycle.DepositTracker
	if len(cfg.RPC) > 0 {
		reg, err := chain.Dial(ctx, cfg.ChainClients())
		if err != nil {
			return fmt.Errorf("connect rpc: %w", err)
		}
		defer reg.Close()
		tracker = pricing.NewTracker(pricing.LogsFromRegistry(reg), cfg.LogLookbackBlocks, cfg.LogBatchSize, logger)
	}

	pricingClient := pricing.NewClient(pricing.Config{SpokePools: cfg.SpokePools}, logger)
	remote := indexer.NewClient(indexer.Config{
		BaseURL: cfg.IndexerURL,
		Timeout: cfg.HTTPTimeout,
		Retries: cfg.IndexerRetries,
		Backoff: cfg.IndexerBackoff,
	}, logger)

	store := lifecycle.NewStore(accounts, tracker, remote, lifecycle.Config{
		PollInterval: cfg.PollInterval,
		SpokePool:    pricingClient.SpokePoolAddress,
	}, logger, recorder)
	defer store.Close()

	unsubscribe := store.Subscribe(func(entries []model.PaymentHistoryEntry) {
		fields := []zap.Field{zap.Int("entries", len(entries))}
		if len(entries) > 0 {
			fields = append(fields,
				zap.String("entry_id", entries[0].ID),
				zap.String("status", string(entries[0].Status)),
			)
		}
		logger.Info("history updated", fields...)
	})
	defer unsubscribe()

	if err := store.Init(ctx, account); err != nil {
		return fmt.Errorf("init history: %w", err)
	}

	logger.Info("track start",
		zap.String("account", store.Account()),
		zap.String("storage", cfg.Storage),
		zap.Bool("on_chain_lookups", tracker != nil),
		zap.Duration("poll_interval", cfg.PollInterval),
	)

	<-ctx.Done()
	logger.Info("track stop")
	return nil
}
