package quote

import (
	"context"
	"errors"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"payPlanner/internal/metrics"
	"payPlanner/internal/model"
	"payPlanner/internal/pricing"
)

// ErrMissingFallbackRecipient rejects a destination call without a fallback recipient.
var ErrMissingFallbackRecipient = errors.New("destination call requires a fallback recipient")

// Pricer is the part of the pricing client the engine uses.
type Pricer interface {
	Limits(ctx context.Context, route model.Route) (model.DepositLimits, error)
	Quote(ctx context.Context, req pricing.QuoteRequest) (model.QuoteSummary, error)
	SwapQuote(ctx context.Context, req pricing.SwapQuoteRequest) (model.SwapQuoteSummary, error)
}

// Config tunes the engine.
type Config struct {
	// Slippage is the tolerated excess above target for bridge refinement.
	Slippage       decimal.Decimal
	SwapSlippage   decimal.Decimal
	USDBuffer      decimal.Decimal
	SwapCandidates int
	AppFee         *decimal.Decimal
	Concurrency    int
}

// ContractCall is a destination contract call attached to bridge deposits.
type ContractCall struct {
	Message           []byte
	FallbackRecipient common.Address
}

// Request is one quoting round for a target.
type Request struct {
	Target       Target
	Payer        common.Address
	Recipient    common.Address
	ContractCall *ContractCall
}

// Engine quotes candidate options against a target.
type Engine struct {
	pricer   Pricer
	cfg      Config
	logger   *zap.Logger
	recorder metrics.Recorder
}

// NewEngine creates a quote engine.
func NewEngine(pricer Pricer, cfg Config, logger *zap.Logger, recorder metrics.Recorder) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.USDBuffer.IsZero() {
		cfg.USDBuffer = DefaultUSDBuffer
	}
	if cfg.SwapCandidates <= 0 {
		cfg.SwapCandidates = 5
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	return &Engine{pricer: pricer, cfg: cfg, logger: logger, recorder: metrics.OrNoop(recorder)}
}

// Apply fills quotes, canMeetTarget and unavailability on every option. It
// never fails: per-candidate problems become unavailability values.
func (e *Engine) Apply(ctx context.Context, req Request, options []model.PaymentOption) []model.PaymentOption {
	out := make([]model.PaymentOption, len(options))
	copy(out, options)

	swapAllowed := e.topSwapCandidates(out)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for i := range out {
		opt := &out[i]
		if opt.Balance == nil {
			opt.SetBalance(nil)
		}
		switch opt.Mode {
		case model.ModeDirect:
			e.applyDirect(req, opt)
		case model.ModeBridge:
			g.Go(func() error {
				e.applyBridge(gctx, req, opt)
				return nil
			})
		case model.ModeSwap:
			if !swapAllowed[i] {
				opt.CanMeetTarget = false
				continue
			}
			g.Go(func() error {
				e.applySwap(gctx, req, opt)
				return nil
			})
		}
	}
	_ = g.Wait()
	return out
}

func (e *Engine) applyDirect(req Request, opt *model.PaymentOption) {
	if opt.Balance.Cmp(req.Target.Amount) >= 0 {
		opt.CanMeetTarget = true
		opt.Unavailable = nil
		return
	}
	opt.MarkUnavailable(model.InsufficientBalance{
		Required: new(big.Int).Set(req.Target.Amount),
		Balance:  new(big.Int).Set(opt.Balance),
	})
}

func (e *Engine) applyBridge(ctx context.Context, req Request, opt *model.PaymentOption) {
	if short, ok := CheckUSD(req.Target, opt.EstimatedUSD, e.cfg.USDBuffer); ok {
		e.count(model.ModeBridge, "usd_shortfall")
		opt.MarkUnavailable(short)
		return
	}

	var message *pricing.CrossChainMessage
	if call := req.ContractCall; call != nil {
		if call.FallbackRecipient == (common.Address{}) {
			e.count(model.ModeBridge, "rejected")
			opt.MarkUnavailable(model.QuoteFetchFailed{Reason: ErrMissingFallbackRecipient.Error()})
			return
		}
		message = &pricing.CrossChainMessage{Message: call.Message, FallbackRecipient: call.FallbackRecipient}
	}

	start := time.Now()
	limits, err := e.pricer.Limits(ctx, opt.Route)
	if err != nil {
		e.fetchFailed(model.ModeBridge, opt, err)
		return
	}
	if limits.MinDeposit != nil && opt.Balance.Cmp(limits.MinDeposit) < 0 {
		e.count(model.ModeBridge, "min_deposit")
		opt.MarkUnavailable(model.MinDepositShortfall{
			MinDeposit: new(big.Int).Set(limits.MinDeposit),
			Balance:    new(big.Int).Set(opt.Balance),
		})
		return
	}

	fetch := func(ctx context.Context, amount *big.Int) (model.QuoteSummary, error) {
		q, err := e.pricer.Quote(ctx, pricing.QuoteRequest{
			Route:     opt.Route,
			Amount:    amount,
			Recipient: req.Recipient,
			Message:   message,
		})
		if err == nil && q.Limits.MinDeposit == nil {
			q.Limits = limits
		}
		return q, err
	}
	refined, err := Refine(ctx, RefineParams{
		Target:   req.Target.Amount,
		Balance:  opt.Balance,
		Limits:   limits,
		Slippage: e.cfg.Slippage,
	}, fetch)
	e.recorder.ObserveLatency(metrics.QuoteRequest, time.Since(start), map[string]string{"mode": string(model.ModeBridge)})
	switch {
	case err != nil:
		e.fetchFailed(model.ModeBridge, opt, err)
		return
	case refined.Shortfall:
		e.count(model.ModeBridge, "min_deposit")
		opt.MarkUnavailable(model.MinDepositShortfall{MinDeposit: model.CopyAmount(limits.MinDeposit), Balance: new(big.Int).Set(opt.Balance)})
		return
	}

	opt.Quote = refined.Quote
	opt.Unavailable = nil
	opt.CanMeetTarget = refined.Quote.OutputAmount != nil && refined.Quote.OutputAmount.Cmp(req.Target.Amount) >= 0
	if !opt.CanMeetTarget {
		opt.Unavailable = model.InsufficientBalance{
			Required: estimateInput(refined.Quote, req.Target.Amount),
			Balance:  new(big.Int).Set(opt.Balance),
		}
	}
	e.count(model.ModeBridge, "ok")
	e.logger.Debug("bridge quote refined",
		zap.String("option_id", opt.ID),
		zap.Int("attempts", refined.Attempts),
		zap.Bool("converged", refined.Converged),
	)
}

func (e *Engine) applySwap(ctx context.Context, req Request, opt *model.PaymentOption) {
	if short, ok := CheckUSD(req.Target, opt.EstimatedUSD, e.cfg.USDBuffer); ok {
		e.count(model.ModeSwap, "usd_shortfall")
		opt.MarkUnavailable(short)
		return
	}

	start := time.Now()
	q, err := e.pricer.SwapQuote(ctx, pricing.SwapQuoteRequest{
		Route:     opt.Route,
		Amount:    new(big.Int).Set(req.Target.Amount),
		Depositor: req.Payer,
		Recipient: req.Recipient,
		Slippage:  e.cfg.SwapSlippage,
		AppFee:    e.cfg.AppFee,
	})
	e.recorder.ObserveLatency(metrics.QuoteRequest, time.Since(start), map[string]string{"mode": string(model.ModeSwap)})
	if err != nil {
		e.fetchFailed(model.ModeSwap, opt, err)
		return
	}

	opt.SwapQuote = &q
	opt.Unavailable = nil
	covers := q.InputAmount != nil && opt.Balance.Cmp(q.InputAmount) >= 0
	delivers := q.ExpectedOutput != nil && q.ExpectedOutput.Cmp(req.Target.Amount) >= 0
	opt.CanMeetTarget = covers && delivers
	if !covers {
		opt.Unavailable = model.InsufficientBalance{Required: model.CopyAmount(q.InputAmount), Balance: new(big.Int).Set(opt.Balance)}
	}
	e.count(model.ModeSwap, "ok")
}

// topSwapCandidates marks the N swap options with the largest balances.
// Estimated USD is compared when both options carry it.
func (e *Engine) topSwapCandidates(options []model.PaymentOption) map[int]bool {
	var idx []int
	for i := range options {
		if options[i].Mode == model.ModeSwap {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool {
		oa, ob := options[idx[a]], options[idx[b]]
		if oa.EstimatedUSD != nil && ob.EstimatedUSD != nil {
			return oa.EstimatedUSD.GreaterThan(*ob.EstimatedUSD)
		}
		return amountOrZero(oa.Balance).Cmp(amountOrZero(ob.Balance)) > 0
	})
	allowed := make(map[int]bool, e.cfg.SwapCandidates)
	for n, i := range idx {
		if n >= e.cfg.SwapCandidates {
			break
		}
		allowed[i] = true
	}
	return allowed
}

func (e *Engine) fetchFailed(mode model.Mode, opt *model.PaymentOption, err error) {
	e.count(mode, "error")
	e.logger.Warn("quote fetch failed", zap.String("option_id", opt.ID), zap.Error(err))
	opt.MarkUnavailable(model.QuoteFetchFailed{Reason: err.Error()})
}

func (e *Engine) count(mode model.Mode, result string) {
	e.recorder.IncCounter(metrics.QuoteRequest, map[string]string{"mode": string(mode), "result": result})
}

// estimateInput extrapolates the input needed to reach target from q.
func estimateInput(q *model.QuoteSummary, target *big.Int) *big.Int {
	if q == nil || q.OutputAmount == nil || q.OutputAmount.Sign() <= 0 || q.InputAmount == nil {
		return new(big.Int).Set(target)
	}
	out := new(big.Int).Mul(q.InputAmount, target)
	return out.Quo(out, q.OutputAmount)
}

func amountOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
