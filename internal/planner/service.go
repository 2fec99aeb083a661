package planner

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"payPlanner/internal/balance"
	"payPlanner/internal/metrics"
	"payPlanner/internal/model"
	"payPlanner/internal/pricing"
	"payPlanner/internal/quote"
	"payPlanner/internal/token"
)

// ErrStaleRefresh marks a refresh superseded by a newer one.
var ErrStaleRefresh = errors.New("refresh superseded by a newer one")

// Catalog lists routes and priced tokens.
type Catalog interface {
	AvailableRoutes(ctx context.Context, token common.Address, chainID uint64) ([]pricing.AvailableRoute, error)
	SwapTokens(ctx context.Context) ([]model.ListedToken, error)
}

// MetadataResolver resolves token descriptors against a per-refresh index.
type MetadataResolver interface {
	Resolve(ctx context.Context, idx *token.Index, chainID uint64, address common.Address) model.TokenDescriptor
}

// BalanceFetcher reads wallet balances across chains.
type BalanceFetcher interface {
	Fetch(ctx context.Context, wallet common.Address, tokens []model.TokenKey) balance.Balances
}

// Quoter prices candidate options.
type Quoter interface {
	Apply(ctx context.Context, req quote.Request, options []model.PaymentOption) []model.PaymentOption
}

// Config holds planning inputs that do not change between refreshes.
type Config struct {
	// Chains the payer may pay from.
	Chains  []uint64
	Wrapped map[uint64]common.Address
}

// Request is the payment target and payer.
type Request struct {
	Token           common.Address
	ChainID         uint64
	Amount          *big.Int
	Payer           common.Address
	Recipient       common.Address
	ContractCall    *quote.ContractCall
	ShowUnavailable bool
}

// Plan is the outcome of one refresh.
type Plan struct {
	ID         string
	Generation uint64
	Target     model.TokenDescriptor
	Amount     *big.Int
	Options    []model.PaymentOption
	Status     Status
	Stale      bool
}

// Service discovers, quotes and ranks payment options.
type Service struct {
	catalog  Catalog
	resolver MetadataResolver
	balances BalanceFetcher
	quoter   Quoter
	cfg      Config
	logger   *zap.Logger
	recorder metrics.Recorder
	now      func() time.Time

	mu         sync.RWMutex
	generation uint64
	status     Status
	latest     *Plan
}

// NewService wires a planning service.
func NewService(catalog Catalog, resolver MetadataResolver, balances BalanceFetcher, quoter Quoter, cfg Config, logger *zap.Logger, recorder metrics.Recorder) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		catalog:  catalog,
		resolver: resolver,
		balances: balances,
		quoter:   quoter,
		cfg:      cfg,
		logger:   logger,
		recorder: metrics.OrNoop(recorder),
		now:      time.Now,
		status:   Status{Stage: StageIdle},
	}
}

// Status returns the status of the newest refresh.
func (s *Service) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Latest returns the newest completed plan.
func (s *Service) Latest() (Plan, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return Plan{}, false
	}
	return *s.latest, true
}

// Refresh runs a planning cycle. It never returns an error: failures are
// reported in Plan.Status.Err. A refresh overtaken by a newer one is returned
// with Stale set and does not replace Latest.
func (s *Service) Refresh(ctx context.Context, req Request) Plan {
	start := s.now()
	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	plan := Plan{ID: uuid.NewString(), Generation: gen, Amount: model.CopyAmount(req.Amount)}
	log := s.logger.With(zap.String("refresh_id", plan.ID), zap.Uint64("generation", gen))

	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return s.finish(plan, start, fmt.Errorf("target amount must be positive"))
	}

	s.setStage(gen, StageDiscovering)
	routes, listed, discoverErr := s.discover(ctx, req, log)
	idx := token.NewIndex(listed, s.cfg.Wrapped)

	s.setStage(gen, StageResolving)
	plan.Target = s.resolver.Resolve(ctx, idx, req.ChainID, req.Token)
	candidates := s.candidates(ctx, req, idx, plan.Target, routes)

	s.setStage(gen, StageBalances)
	candidates = s.applyBalances(ctx, req.Payer, idx, candidates)

	s.setStage(gen, StageQuoting)
	target := quote.Target{Token: plan.Target, Amount: req.Amount}
	if price, ok := idx.Price(req.ChainID, req.Token); ok {
		target.PriceUSD = &price
	}
	candidates = s.quoter.Apply(ctx, quote.Request{
		Target:       target,
		Payer:        req.Payer,
		Recipient:    req.Recipient,
		ContractCall: req.ContractCall,
	}, candidates)

	s.setStage(gen, StageRanking)
	plan.Options = Rank(candidates, req.ShowUnavailable)
	log.Debug("refresh ranked",
		zap.Int("candidates", len(candidates)),
		zap.Int("options", len(plan.Options)),
	)
	return s.finish(plan, start, discoverErr)
}

func (s *Service) finish(plan Plan, start time.Time, err error) Plan {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	if plan.Generation != s.generation {
		plan.Stale = true
		plan.Status = Status{Stage: StageReady, Err: ErrStaleRefresh.Error(), UpdatedAt: now, RefreshID: plan.ID}
		s.recorder.IncCounter(metrics.PlanRefreshStale, nil)
		s.logger.Debug("discarding stale refresh", zap.String("refresh_id", plan.ID))
		return plan
	}

	plan.Status = Status{Stage: StageReady, UpdatedAt: now, RefreshID: plan.ID}
	result := "ok"
	if err != nil {
		plan.Status.Err = err.Error()
		result = "error"
		if len(plan.Options) == 0 {
			plan.Status.Stage = StageError
		}
	}
	s.status = plan.Status
	stored := plan
	s.latest = &stored

	s.recorder.IncCounter(metrics.PlanRefresh, map[string]string{"result": result})
	s.recorder.ObserveLatency(metrics.PlanRefresh, now.Sub(start), nil)
	return plan
}

func (s *Service) setStage(gen uint64, stage Stage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return
	}
	s.status.Stage = stage
	s.status.Err = ""
}

// discover loads routes and the token catalogue concurrently. Either may fail
// without aborting the refresh.
func (s *Service) discover(ctx context.Context, req Request, log *zap.Logger) ([]pricing.AvailableRoute, []model.ListedToken, error) {
	var (
		routes   []pricing.AvailableRoute
		listed   []model.ListedToken
		routeErr error
		listErr  error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		routes, routeErr = s.catalog.AvailableRoutes(gctx, req.Token, req.ChainID)
		return nil
	})
	g.Go(func() error {
		listed, listErr = s.catalog.SwapTokens(gctx)
		return nil
	})
	_ = g.Wait()

	var msgs []string
	if routeErr != nil {
		log.Warn("route discovery failed", zap.Error(routeErr))
		msgs = append(msgs, "routes: "+routeErr.Error())
	}
	if listErr != nil {
		log.Warn("token catalogue unavailable", zap.Error(listErr))
		msgs = append(msgs, "tokens: "+listErr.Error())
	}
	if len(msgs) > 0 {
		return routes, listed, errors.New(strings.Join(msgs, "; "))
	}
	return routes, listed, nil
}

func (s *Service) candidates(ctx context.Context, req Request, idx *token.Index, target model.TokenDescriptor, routes []pricing.AvailableRoute) []model.PaymentOption {
	var out []model.PaymentOption
	seen := make(map[string]bool)
	add := func(opt model.PaymentOption) {
		opt.ID = model.OptionID(opt.Mode, opt.Token.Key(), opt.RequiresWrap)
		if seen[opt.ID] {
			return
		}
		seen[opt.ID] = true
		out = append(out, opt)
	}

	add(model.PaymentOption{
		Mode:  model.ModeDirect,
		Token: target,
		Route: model.Route{
			OriginChainID:      req.ChainID,
			DestinationChainID: req.ChainID,
			InputToken:         req.Token,
			OutputToken:        req.Token,
			IsNative:           target.IsNative(),
		},
	})

	enabled := make(map[uint64]bool, len(s.cfg.Chains))
	for _, id := range s.cfg.Chains {
		enabled[id] = true
	}

	for _, r := range routes {
		if r.DestinationChainID != req.ChainID || r.OutputToken != req.Token || !r.CrossChain() {
			continue
		}
		if len(enabled) > 0 && !enabled[r.OriginChainID] {
			continue
		}
		input := s.resolver.Resolve(ctx, idx, r.OriginChainID, r.InputToken)
		if !r.IsNative {
			add(model.PaymentOption{Mode: model.ModeBridge, Token: input, Route: r.Route})
		}
		if r.IsNative || idx.IsWrappedNative(r.OriginChainID, r.InputToken) {
			wrapped := input
			route := r.Route
			route.IsNative = true
			add(model.PaymentOption{
				Mode:         model.ModeBridge,
				Token:        token.NativeToken(r.OriginChainID),
				WrappedToken: &wrapped,
				RequiresWrap: true,
				Route:        route,
			})
		}
	}

	chains := append([]uint64(nil), s.cfg.Chains...)
	sort.Slice(chains, func(i, j int) bool { return chains[i] < chains[j] })
	for _, chainID := range chains {
		listed := idx.Tokens(chainID)
		sort.Slice(listed, func(i, j int) bool {
			return listed[i].Address.Hex() < listed[j].Address.Hex()
		})
		for _, item := range listed {
			if chainID == req.ChainID && item.Address == req.Token {
				continue
			}
			add(model.PaymentOption{
				Mode:  model.ModeSwap,
				Token: item.TokenDescriptor,
				Route: model.Route{
					OriginChainID:      chainID,
					DestinationChainID: req.ChainID,
					InputToken:         item.Address,
					OutputToken:        req.Token,
					IsNative:           item.IsNative(),
				},
			})
		}
	}
	return out
}

// applyBalances sets balances and USD estimates. Bridge and swap candidates
// with nothing to spend are dropped; the direct candidate is always kept.
func (s *Service) applyBalances(ctx context.Context, payer common.Address, idx *token.Index, candidates []model.PaymentOption) []model.PaymentOption {
	keys := make([]model.TokenKey, 0, len(candidates))
	for _, opt := range candidates {
		keys = append(keys, opt.Token.Key())
	}
	balances := s.balances.Fetch(ctx, payer, keys)

	out := candidates[:0]
	for _, opt := range candidates {
		opt.SetBalance(balances.Get(opt.Token.Key()))
		if opt.Mode != model.ModeDirect && opt.Balance.Sign() == 0 {
			continue
		}
		if price, ok := idx.Price(opt.Token.ChainID, opt.Token.Address); ok {
			p := price
			est := model.USDValue(opt.Balance, opt.Token.Decimals, price)
			opt.PriceUSD = &p
			opt.EstimatedUSD = &est
		}
		out = append(out, opt)
	}
	return out
}
