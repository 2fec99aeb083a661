package balance

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"payPlanner/internal/chain"
	"payPlanner/internal/model"
)

type fakeReader struct {
	mu           sync.Mutex
	native       *big.Int
	nativeErr    error
	balances     map[common.Address]*big.Int
	batchedErr   error
	multicallErr error
	failTokens   map[common.Address]bool

	batchedCalls    int
	multicallCalls  int
	individualCalls map[common.Address]int
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		balances:        map[common.Address]*big.Int{},
		failTokens:      map[common.Address]bool{},
		individualCalls: map[common.Address]int{},
	}
}

func (f *fakeReader) NativeBalance(context.Context, common.Address) (*big.Int, error) {
	return f.native, f.nativeErr
}

func (f *fakeReader) TokenBalances(_ context.Context, _ common.Address, tokens []common.Address) (map[common.Address]*big.Int, error) {
	f.mu.Lock()
	f.batchedCalls++
	f.mu.Unlock()
	if f.batchedErr != nil {
		return nil, f.batchedErr
	}
	return f.pick(tokens), nil
}

func (f *fakeReader) MulticallBalances(_ context.Context, _ common.Address, tokens []common.Address) (map[common.Address]*big.Int, error) {
	f.mu.Lock()
	f.multicallCalls++
	f.mu.Unlock()
	if f.multicallErr != nil {
		return nil, f.multicallErr
	}
	return f.pick(tokens), nil
}

func (f *fakeReader) TokenBalance(_ context.Context, token, _ common.Address) (*big.Int, error) {
	f.mu.Lock()
	f.individualCalls[token]++
	f.mu.Unlock()
	if f.failTokens[token] {
		return nil, errors.New("execution reverted")
	}
	if v, ok := f.balances[token]; ok {
		return v, nil
	}
	return big.NewInt(0), nil
}

func (f *fakeReader) pick(tokens []common.Address) map[common.Address]*big.Int {
	out := map[common.Address]*big.Int{}
	for _, t := range tokens {
		if v, ok := f.balances[t]; ok && !f.failTokens[t] {
			out[t] = v
		}
	}
	return out
}

var (
	wallet = common.HexToAddress("0x9999999999999999999999999999999999999999")
	usdc   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	weth   = common.HexToAddress("0x00000000000000000000000000000000000000a2")
)

func newTestAggregator(readers map[uint64]*fakeReader) *Aggregator {
	src := SourceFunc(func(chainID uint64) (Reader, bool) {
		r, ok := readers[chainID]
		if !ok {
			return nil, false
		}
		return r, true
	})
	return NewAggregator(src, 15*time.Second, nil, nil)
}

func TestFetchBatchedAndNative(t *testing.T) {
	r := newFakeReader()
	r.native = big.NewInt(5)
	r.balances[usdc] = big.NewInt(100)
	agg := newTestAggregator(map[uint64]*fakeReader{10: r})

	got := agg.Fetch(context.Background(), wallet, []model.TokenKey{
		{ChainID: 10, Address: common.Address{}},
		{ChainID: 10, Address: usdc},
		{ChainID: 10, Address: weth},
	})

	require.Equal(t, "5", got.Get(model.TokenKey{ChainID: 10}).String())
	require.Equal(t, "100", got.Get(model.TokenKey{ChainID: 10, Address: usdc}).String())
	require.Equal(t, "0", got.Get(model.TokenKey{ChainID: 10, Address: weth}).String())
	require.Equal(t, 1, r.batchedCalls)
	require.Zero(t, r.multicallCalls)
}

func TestFetchFallsBackToMulticall(t *testing.T) {
	r := newFakeReader()
	r.batchedErr = fmt.Errorf("alchemy_getTokenBalances: %w", chain.ErrMethodUnsupported)
	r.balances[usdc] = big.NewInt(7)
	agg := newTestAggregator(map[uint64]*fakeReader{1: r})

	got := agg.Fetch(context.Background(), wallet, []model.TokenKey{{ChainID: 1, Address: usdc}})
	require.Equal(t, "7", got.Get(model.TokenKey{ChainID: 1, Address: usdc}).String())
	require.Equal(t, 1, r.multicallCalls)
	require.Empty(t, r.individualCalls)
}

func TestFetchFallsBackToIndividualReadsOncePerToken(t *testing.T) {
	r := newFakeReader()
	r.batchedErr = chain.ErrMethodUnsupported
	r.multicallErr = errors.New("no multicall")
	r.balances[usdc] = big.NewInt(3)
	r.failTokens[weth] = true
	agg := newTestAggregator(map[uint64]*fakeReader{1: r})

	got := agg.Fetch(context.Background(), wallet, []model.TokenKey{
		{ChainID: 1, Address: usdc},
		{ChainID: 1, Address: usdc},
		{ChainID: 1, Address: weth},
	})
	require.Equal(t, "3", got.Get(model.TokenKey{ChainID: 1, Address: usdc}).String())
	require.Equal(t, "0", got.Get(model.TokenKey{ChainID: 1, Address: weth}).String())
	require.Equal(t, 1, r.individualCalls[usdc])
	require.Equal(t, 1, r.individualCalls[weth])
}

func TestFetchMissingChainAndNativeFailureResolveToZero(t *testing.T) {
	r := newFakeReader()
	r.nativeErr = errors.New("timeout")
	agg := newTestAggregator(map[uint64]*fakeReader{1: r})

	got := agg.Fetch(context.Background(), wallet, []model.TokenKey{
		{ChainID: 1},
		{ChainID: 999, Address: usdc},
	})
	require.Equal(t, 0, got.Get(model.TokenKey{ChainID: 1}).Sign())
	require.Equal(t, 0, got.Get(model.TokenKey{ChainID: 999, Address: usdc}).Sign())
}

func TestFetchUsesCacheOnlyWhenAllTokensPresent(t *testing.T) {
	r := newFakeReader()
	r.balances[usdc] = big.NewInt(1)
	r.balances[weth] = big.NewInt(2)
	agg := newTestAggregator(map[uint64]*fakeReader{1: r})
	now := time.Unix(1_700_000_000, 0)
	agg.now = func() time.Time { return now }
	ctx := context.Background()

	agg.Fetch(ctx, wallet, []model.TokenKey{{ChainID: 1, Address: usdc}})
	agg.Fetch(ctx, wallet, []model.TokenKey{{ChainID: 1, Address: usdc}})
	require.Equal(t, 1, r.batchedCalls)

	agg.Fetch(ctx, wallet, []model.TokenKey{{ChainID: 1, Address: usdc}, {ChainID: 1, Address: weth}})
	require.Equal(t, 2, r.batchedCalls)

	now = now.Add(16 * time.Second)
	agg.Fetch(ctx, wallet, []model.TokenKey{{ChainID: 1, Address: usdc}})
	require.Equal(t, 3, r.batchedCalls)
}
