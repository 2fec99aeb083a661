package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"payPlanner/internal/balance"
	"payPlanner/internal/chain"
	"payPlanner/internal/model"
	"payPlanner/internal/planner"
	"payPlanner/internal/pricing"
	"payPlanner/internal/quote"
	"payPlanner/internal/token"
)

func newPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Discover, quote and rank the ways to pay a target amount",
		RunE:  runPlan,
	}

	cmd.Flags().String("token", "", "target token address (0x0 for native)")
	cmd.Flags().Uint64("chain", 0, "target chain id")
	cmd.Flags().String("amount", "", "target amount in base units")
	cmd.Flags().String("payer", "", "payer wallet address")
	cmd.Flags().String("recipient", "", "recipient address (defaults to payer)")
	cmd.Flags().String("message", "", "destination contract call data (hex)")
	cmd.Flags().String("fallback-recipient", "", "recipient when the contract call fails")
	cmd.Flags().Bool("show-unavailable", false, "include options that cannot be used")
	cmd.Flags().StringSlice("rpc", nil, "chain RPC endpoints (chainId=url, comma-separated)")
	cmd.Flags().StringSlice("spoke-pools", nil, "spoke pool addresses (chainId=address, comma-separated)")
	cmd.Flags().StringSlice("wrapped-tokens", nil, "wrapped native token overrides (chainId=address)")
	cmd.Flags().String("pricing-url", "https://app.across.to/api", "pricing API base URL")
	cmd.Flags().Duration("http-timeout", 15*time.Second, "HTTP request timeout")
	cmd.Flags().String("slippage", "0.005", "bridge slippage tolerance")
	cmd.Flags().String("swap-slippage", "0.01", "swap slippage tolerance")
	cmd.Flags().String("usd-buffer", "0.98", "USD pre-filter buffer")
	cmd.Flags().Int("swap-candidates", 5, "number of swap candidates to quote")
	cmd.Flags().Duration("balance-cache-ttl", 15*time.Second, "balance cache lifetime")
	cmd.Flags().String("multi-balance-method", chain.DefaultBalanceMethod, "batched token balance RPC method")

	return cmd
}

type planOutput struct {
	ID      string                `json:"id"`
	Status  planner.Status        `json:"status"`
	Target  model.TokenDescriptor `json:"target"`
	Amount  string                `json:"amount"`
	Options []model.PaymentOption `json:"options"`
}

func runPlan(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	req, err := planRequest(cmd)
	if err != nil {
		return err
	}
	req.ShowUnavailable = cfg.ShowUnavailable
	if len(cfg.RPC) == 0 {
		return fmt.Errorf("at least one rpc endpoint is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg, err := chain.Dial(ctx, cfg.ChainClients())
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer reg.Close()

	pricingClient := pricing.NewClient(pricing.Config{
		BaseURL:    cfg.PricingURL,
		Timeout:    cfg.HTTPTimeout,
		SpokePools: cfg.SpokePools,
	}, logger)
	engine := quote.NewEngine(pricingClient, quote.Config{
		Slippage:       cfg.Slippage,
		SwapSlippage:   cfg.SwapSlippage,
		USDBuffer:      cfg.USDBuffer,
		SwapCandidates: cfg.SwapCandidates,
	}, logger, nil)
	svc := planner.NewService(
		pricingClient,
		token.NewResolver(reg, logger),
		balance.NewAggregator(balance.FromRegistry(reg), cfg.BalanceCacheTTL, logger, nil),
		engine,
		planner.Config{Chains: cfg.ChainIDs(), Wrapped: cfg.WrappedTokens},
		logger,
		nil,
	)

	logger.Info("plan start",
		zap.String("token", req.Token.Hex()),
		zap.Uint64("chain_id", req.ChainID),
		zap.String("amount", req.Amount.String()),
		zap.String("payer", req.Payer.Hex()),
		zap.Uint64s("chains", cfg.ChainIDs()),
	)

	plan := svc.Refresh(ctx, req)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(planOutput{
		ID:      plan.ID,
		Status:  plan.Status,
		Target:  plan.Target,
		Amount:  model.AmountString(plan.Amount),
		Options: plan.Options,
	}); err != nil {
		return fmt.Errorf("write plan: %w", err)
	}
	if plan.Status.Stage == planner.StageError {
		return fmt.Errorf("planning failed: %s", plan.Status.Err)
	}
	return nil
}

func planRequest(cmd *cobra.Command) (planner.Request, error) {
	flags := cmd.Flags()
	tokenStr, _ := flags.GetString("token")
	chainID, _ := flags.GetUint64("chain")
	amountStr, _ := flags.GetString("amount")
	payerStr, _ := flags.GetString("payer")
	recipientStr, _ := flags.GetString("recipient")
	messageStr, _ := flags.GetString("message")
	fallbackStr, _ := flags.GetString("fallback-recipient")

	if chainID == 0 {
		return planner.Request{}, fmt.Errorf("chain is required")
	}
	tokenAddr, err := parseAddress("token", tokenStr)
	if err != nil {
		return planner.Request{}, err
	}
	payer, err := parseAddress("payer", payerStr)
	if err != nil {
		return planner.Request{}, err
	}
	if payer == (common.Address{}) {
		return planner.Request{}, fmt.Errorf("payer is required")
	}
	recipient := payer
	if recipientStr != "" {
		if recipient, err = parseAddress("recipient", recipientStr); err != nil {
			return planner.Request{}, err
		}
	}
	amount, err := model.ParseAmount(amountStr)
	if err != nil {
		return planner.Request{}, fmt.Errorf("parse amount: %w", err)
	}

	req := planner.Request{
		Token:     tokenAddr,
		ChainID:   chainID,
		Amount:    amount,
		Payer:     payer,
		Recipient: recipient,
	}
	if messageStr != "" {
		msg, err := hexutil.Decode(messageStr)
		if err != nil {
			return planner.Request{}, fmt.Errorf("parse message: %w", err)
		}
		call := &quote.ContractCall{Message: msg}
		if fallbackStr != "" {
			if call.FallbackRecipient, err = parseAddress("fallback-recipient", fallbackStr); err != nil {
				return planner.Request{}, err
			}
		}
		req.ContractCall = call
	}
	return req, nil
}

func parseAddress(name, value string) (common.Address, error) {
	if value == "" || value == "0x0" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("invalid %s address: %s", name, value)
	}
	return common.HexToAddress(value), nil
}
