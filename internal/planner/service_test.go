package planner

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"payPlanner/internal/balance"
	"payPlanner/internal/model"
	"payPlanner/internal/pricing"
	"payPlanner/internal/quote"
	"payPlanner/internal/token"
)

var (
	usdcArb  = common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831")
	usdcBase = common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
	wethBase = common.HexToAddress("0x4200000000000000000000000000000000000006")
	daiOp    = common.HexToAddress("0xDA10009cBd5D07dd0CeCc66161FC93D7c9000da1")
)

type fakeCatalog struct {
	routes   []pricing.AvailableRoute
	tokens   []model.ListedToken
	routeErr error
}

func (f fakeCatalog) AvailableRoutes(context.Context, common.Address, uint64) ([]pricing.AvailableRoute, error) {
	return f.routes, f.routeErr
}

func (f fakeCatalog) SwapTokens(context.Context) ([]model.ListedToken, error) {
	return f.tokens, nil
}

type indexResolver struct{}

func (indexResolver) Resolve(_ context.Context, idx *token.Index, chainID uint64, addr common.Address) model.TokenDescriptor {
	if addr == (common.Address{}) {
		return token.NativeToken(chainID)
	}
	if item, ok := idx.Lookup(chainID, addr); ok {
		return item.TokenDescriptor
	}
	return model.PlaceholderToken(chainID, addr)
}

type fakeBalances map[model.TokenKey]*big.Int

func (f fakeBalances) Fetch(_ context.Context, _ common.Address, keys []model.TokenKey) balance.Balances {
	out := balance.Balances{}
	for _, k := range keys {
		if v, ok := f[k]; ok {
			out[k] = v
		}
	}
	return out
}

// meetAll marks every option with a positive balance as able to pay.
type meetAll struct {
	mu    sync.Mutex
	seen  []quote.Request
	block chan struct{}
}

func (q *meetAll) Apply(_ context.Context, req quote.Request, opts []model.PaymentOption) []model.PaymentOption {
	q.mu.Lock()
	q.seen = append(q.seen, req)
	block := q.block
	q.block = nil
	q.mu.Unlock()
	if block != nil {
		<-block
	}
	out := append([]model.PaymentOption(nil), opts...)
	for i := range out {
		out[i].CanMeetTarget = out[i].Balance.Sign() > 0
	}
	return out
}

func priced(chainID uint64, addr common.Address, symbol string, decimals uint8, price string) model.ListedToken {
	p := decimal.RequireFromString(price)
	return model.ListedToken{
		TokenDescriptor: model.TokenDescriptor{ChainID: chainID, Address: addr, Symbol: symbol, Decimals: decimals},
		PriceUSD:        &p,
	}
}

func newTestService(catalog Catalog, balances fakeBalances, quoter Quoter) *Service {
	return NewService(catalog, indexResolver{}, balances, quoter, Config{Chains: []uint64{8453, 10, 42161}}, nil, nil)
}

func testCatalog() fakeCatalog {
	return fakeCatalog{
		routes: []pricing.AvailableRoute{
			{Route: model.Route{OriginChainID: 8453, DestinationChainID: 42161, InputToken: usdcBase, OutputToken: usdcArb}},
			{Route: model.Route{OriginChainID: 8453, DestinationChainID: 42161, InputToken: wethBase, OutputToken: usdcArb}},
			{Route: model.Route{OriginChainID: 1, DestinationChainID: 42161, InputToken: usdcBase, OutputToken: usdcArb}},
		},
		tokens: []model.ListedToken{
			priced(42161, usdcArb, "USDC", 6, "1"),
			priced(8453, usdcBase, "USDC", 6, "1"),
			priced(8453, wethBase, "WETH", 18, "3000"),
			priced(10, daiOp, "DAI", 18, "1"),
		},
	}
}

func TestRefreshBuildsAndRanksCandidates(t *testing.T) {
	eth := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	balances := fakeBalances{
		{ChainID: 42161, Address: usdcArb}:        big.NewInt(5_000_000),
		{ChainID: 8453, Address: usdcBase}:        big.NewInt(200_000_000),
		{ChainID: 8453, Address: common.Address{}}: eth,
		{ChainID: 10, Address: daiOp}:             eth,
	}
	quoter := &meetAll{}
	svc := newTestService(testCatalog(), balances, quoter)

	plan := svc.Refresh(context.Background(), Request{
		Token:           usdcArb,
		ChainID:         42161,
		Amount:          big.NewInt(100_000_000),
		ShowUnavailable: true,
	})
	require.False(t, plan.Stale)
	require.Equal(t, StageReady, plan.Status.Stage)
	require.Empty(t, plan.Status.Err)
	require.Equal(t, "USDC", plan.Target.Symbol)

	modes := map[string]model.PaymentOption{}
	for _, opt := range plan.Options {
		modes[opt.ID] = opt
	}
	direct := modes[model.OptionID(model.ModeDirect, model.TokenKey{ChainID: 42161, Address: usdcArb}, false)]
	require.Equal(t, "5000000", direct.Balance.String())
	require.Equal(t, model.ModeDirect, plan.Options[0].Mode)

	wrapped, ok := modes[model.OptionID(model.ModeBridge, model.TokenKey{ChainID: 8453}, true)]
	require.True(t, ok)
	require.True(t, wrapped.RequiresWrap)
	require.Equal(t, wethBase, wrapped.WrappedToken.Address)
	require.Equal(t, "3000", wrapped.EstimatedUSD.String())

	// the Base USDC bridge wins over the Base USDC swap
	baseUSDC := model.TokenKey{ChainID: 8453, Address: usdcBase}
	_, hasBridge := modes[model.OptionID(model.ModeBridge, baseUSDC, false)]
	_, hasSwap := modes[model.OptionID(model.ModeSwap, baseUSDC, false)]
	require.True(t, hasBridge)
	require.False(t, hasSwap)

	_, hasDAI := modes[model.OptionID(model.ModeSwap, model.TokenKey{ChainID: 10, Address: daiOp}, false)]
	require.True(t, hasDAI)

	require.Len(t, quoter.seen, 1)
	require.NotNil(t, quoter.seen[0].Target.PriceUSD)

	latest, ok := svc.Latest()
	require.True(t, ok)
	require.Equal(t, plan.ID, latest.ID)
}

func TestRefreshReportsDiscoveryErrorButKeepsDirect(t *testing.T) {
	catalog := testCatalog()
	catalog.routeErr = errors.New("pricing api down")
	svc := newTestService(catalog, fakeBalances{{ChainID: 42161, Address: usdcArb}: big.NewInt(1)}, &meetAll{})

	plan := svc.Refresh(context.Background(), Request{Token: usdcArb, ChainID: 42161, Amount: big.NewInt(10)})
	require.Contains(t, plan.Status.Err, "pricing api down")
	require.Equal(t, StageReady, plan.Status.Stage)
	require.Len(t, plan.Options, 1)
}

func TestRefreshDiscardsStaleResult(t *testing.T) {
	release := make(chan struct{})
	quoter := &meetAll{block: release}
	svc := newTestService(testCatalog(), fakeBalances{{ChainID: 42161, Address: usdcArb}: big.NewInt(10)}, quoter)
	req := Request{Token: usdcArb, ChainID: 42161, Amount: big.NewInt(10)}

	first := make(chan Plan, 1)
	go func() { first <- svc.Refresh(context.Background(), req) }()

	// wait until the first refresh is parked in the quoter
	require.Eventually(t, func() bool {
		quoter.mu.Lock()
		defer quoter.mu.Unlock()
		return len(quoter.seen) == 1
	}, time.Second, time.Millisecond)

	second := svc.Refresh(context.Background(), req)
	close(release)
	stale := <-first

	require.False(t, second.Stale)
	require.True(t, stale.Stale)
	require.Equal(t, ErrStaleRefresh.Error(), stale.Status.Err)

	latest, ok := svc.Latest()
	require.True(t, ok)
	require.Equal(t, second.ID, latest.ID)
	require.Equal(t, second.ID, svc.Status().RefreshID)
}

func TestRefreshRejectsNonPositiveAmount(t *testing.T) {
	svc := newTestService(testCatalog(), fakeBalances{}, &meetAll{})
	plan := svc.Refresh(context.Background(), Request{Token: usdcArb, ChainID: 42161})
	require.Equal(t, StageError, plan.Status.Stage)
	require.NotEmpty(t, plan.Status.Err)
}
